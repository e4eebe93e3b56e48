// Package config loads, normalizes, and validates Clipwise configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours CLIPWISE_* environment overrides
// for credentials and endpoints. The Config type centralizes every knob the
// daemon and CLI need so catalogs, storage, and the vision backend are
// discovered in one pass.
//
// The package also owns the persisted campaign state consumed by the
// scheduled trigger. State is loaded and saved explicitly at run boundaries.
package config
