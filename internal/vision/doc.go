// Package vision talks to asynchronous label-detection services.
//
// A Service starts one job per stored video, reports its coarse state, and
// returns raw per-timestamp detections once the job completes. Two backends
// are available: Amazon Rekognition Video (label detection plus optional
// content moderation) and a small JSON REST protocol for self-hosted models.
//
// Backends classify failures with the services markers: a request the
// service refuses carries services.ErrDispatch, throttling and server faults
// carry services.ErrTransientIO. Retrying is left to callers.
package vision
