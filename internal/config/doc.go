// Package config loads, normalizes, and validates reelpipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELPIPE_API_TOKEN and TELEGRAM_BOT_TOKEN. The Config type centralizes every
// knob the daemon and CLI need: directories, the pipeline retry and dedup
// policy, the run schedule, and collaborator settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
