// Package storage persists raw downloads and processed label summaries in an
// append-only object store.
//
// Two backends are provided: a filesystem tree rooted at storage.root and an
// S3 bucket. Both refuse to overwrite an existing key, so every object written
// to the raw and processed zones is immutable once visible. Keys are built by
// RawKey and ProcessedKey and always use forward slashes.
package storage
