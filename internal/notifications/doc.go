// Package notifications delivers run lifecycle events to ntfy.
//
// The ntfy implementation posts to the topic configured in config.toml and
// honours the per-event toggles in the [notifications] section. Without a
// topic the service is a no-op, so workflow code can publish unconditionally.
package notifications
