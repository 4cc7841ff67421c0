// Package config loads and saves the bridge configuration.
//
// The configuration is a single YAML file that selects which parts of the
// bridge run (device listener, cloud mirror, raw capture, live stream, MQTT,
// SQLite history, mDNS announcement) and stores per-device nicknames.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/aseko-local/config.yaml or $HOME/.config/aseko-local/config.yaml
//   - macOS: $HOME/.config/aseko-local/config.yaml
//   - Windows: %LOCALAPPDATA%\aseko-local\config.yaml
//
// # Example
//
//	version: 1
//	server:
//	  port: 47524
//	mirror:
//	  enabled: true              # keep the Aseko cloud app working
//	mqtt:
//	  enabled: true
//	  broker: tcp://homeassistant.local:1883
//	devices:
//	  "110200612":
//	    nickname: Backyard pool
//
// Omitted keys keep the values from Default. Durations are Go duration
// strings.
//
// # Security
//
// The MQTT password may be left out of the file and supplied through
// ASEKO_MQTT_PASSWORD instead. Save writes the file with mode 0600.
//
// # Thread Safety
//
// Load and Save are serialized by a package mutex and Save replaces the
// file atomically. A *Config itself is not safe for concurrent mutation.
package config
