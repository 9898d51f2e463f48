// Package configs manages nudge's user configuration and file locations.
//
// Configuration is stored in TOML at $XDG_CONFIG_HOME/nudge/config.toml:
//
//	[user]
//	id = "6f1c..."
//	email = "alice@example.com"
//	display_name = "Alice"
//
//	[store]
//	driver = "mongo"            # or "memory"
//	uri = "mongodb://localhost:27017"
//	database = "nudge"
//
//	[sync]
//	backoff_delays = ["2s", "4s", "8s", "16s"]
//	backoff_steady = "30s"
//	debounce = "100ms"
//
// Durations are written as strings. Missing values take their defaults when
// the file is loaded.
//
// # Settings
//
// UserNudgeSettings is initialized at startup with the paths of the config
// file and of the data directory, which holds the local key cache, the
// device key sealing it and the audit log.
package configs
