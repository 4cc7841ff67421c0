package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "aseko-local"
	configFile = "config.yaml"

	// MQTTPasswordEnvVar overrides mqtt.password so it can stay out of the file.
	MQTTPasswordEnvVar = "ASEKO_MQTT_PASSWORD"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/aseko-local or $HOME/.config/aseko-local
//   - macOS: $HOME/.config/aseko-local (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\aseko-local
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			// Fallback to USERPROFILE\AppData\Local if LOCALAPPDATA not set
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// dataDir is where the history database and captures go by default. It
// falls back to the working directory when no config dir can be found.
func dataDir() string {
	dir, err := GetConfigDir()
	if err != nil {
		return "."
	}
	return dir
}

// Default returns a configuration with every section filled in. Only the
// device listener is enabled.
func Default() *Config {
	dir := dataDir()
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Host:                 protocol.DefaultBindAddress,
			Port:                 protocol.DefaultPort,
			ReadTimeout:          5 * time.Minute,
			MaxImplausibleFrames: 3,
		},
		Mirror: MirrorConfig{
			Host:              protocol.DefaultMirrorHost,
			Port:              protocol.DefaultMirrorPort,
			QueueSize:         1000,
			MaxBackoff:        10 * time.Second,
			ReconnectInterval: 15 * time.Minute,
		},
		Capture: CaptureConfig{
			Dir: filepath.Join(dir, "captures"),
		},
		Stream: StreamConfig{
			Listen: ":8080",
		},
		MQTT: MQTTConfig{
			ClientID:        appName,
			TopicPrefix:     "aseko",
			DiscoveryPrefix: "homeassistant",
			Retain:          true,
		},
		History: HistoryConfig{
			Path:      filepath.Join(dir, "history.db"),
			Retention: 30 * 24 * time.Hour,
			Interval:  time.Minute,
		},
		Discovery: DiscoveryConfig{
			Instance: appName,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Devices: make(map[string]*Device),
	}
}

// ApplyDefaults fills zero values from Default. Booleans are left alone.
func (c *Config) ApplyDefaults() {
	d := Default()

	if c.Version == 0 {
		c.Version = d.Version
	}

	setString(&c.Server.Host, d.Server.Host)
	setInt(&c.Server.Port, d.Server.Port)
	setDuration(&c.Server.ReadTimeout, d.Server.ReadTimeout)

	setString(&c.Mirror.Host, d.Mirror.Host)
	setInt(&c.Mirror.Port, d.Mirror.Port)
	setInt(&c.Mirror.QueueSize, d.Mirror.QueueSize)
	setDuration(&c.Mirror.MaxBackoff, d.Mirror.MaxBackoff)
	setDuration(&c.Mirror.ReconnectInterval, d.Mirror.ReconnectInterval)

	setString(&c.Capture.Dir, d.Capture.Dir)
	setString(&c.Stream.Listen, d.Stream.Listen)

	setString(&c.MQTT.ClientID, d.MQTT.ClientID)
	setString(&c.MQTT.TopicPrefix, d.MQTT.TopicPrefix)
	setString(&c.MQTT.DiscoveryPrefix, d.MQTT.DiscoveryPrefix)

	setString(&c.History.Path, d.History.Path)
	setDuration(&c.History.Retention, d.History.Retention)
	setDuration(&c.History.Interval, d.History.Interval)

	setString(&c.Discovery.Instance, d.Discovery.Instance)

	setString(&c.Log.Level, d.Log.Level)
	setString(&c.Log.Format, d.Log.Format)

	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion))
	}
	if !validPort(c.Server.Port) {
		errs = append(errs, fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, errors.New("server.read_timeout must not be negative"))
	}
	if c.Server.MaxImplausibleFrames < 0 {
		errs = append(errs, errors.New("server.max_implausible_frames must not be negative"))
	}

	if c.Mirror.Enabled {
		if c.Mirror.Host == "" {
			errs = append(errs, errors.New("mirror.host is required when the mirror is enabled"))
		}
		if !validPort(c.Mirror.Port) {
			errs = append(errs, fmt.Errorf("mirror.port %d out of range 1-65535", c.Mirror.Port))
		}
		if c.Mirror.QueueSize < 1 {
			errs = append(errs, errors.New("mirror.queue_size must be at least 1"))
		}
	}

	if c.Capture.Enabled && c.Capture.Dir == "" {
		errs = append(errs, errors.New("capture.dir is required when capture is enabled"))
	}
	if c.Stream.Enabled && c.Stream.Listen == "" {
		errs = append(errs, errors.New("stream.listen is required when the stream is enabled"))
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when MQTT is enabled"))
		} else if !strings.Contains(c.MQTT.Broker, "://") {
			errs = append(errs, fmt.Errorf("mqtt.broker %q needs a scheme (tcp://, ssl://, ws://)", c.MQTT.Broker))
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
			errs = append(errs, fmt.Errorf("mqtt.topic_prefix %q is not a valid topic", c.MQTT.TopicPrefix))
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history is enabled"))
	}
	if c.History.Retention < 0 {
		errs = append(errs, errors.New("history.retention must not be negative"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != logging.FormatConsole && c.Log.Format != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("log.format %q must be %q or %q", c.Log.Format, logging.FormatConsole, logging.FormatJSON))
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// LoadDefault loads the config from GetConfigPath.
func LoadDefault() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return Load(path)
}

// Load reads path, fills defaults and validates. A missing file yields
// Default().
func Load(path string) (*Config, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal over the defaults so omitted keys keep their default.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if pw := os.Getenv(MQTTPasswordEnvVar); pw != "" {
		c.MQTT.Password = pw
	}
}

// Save writes the config to path atomically with user-only permissions.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}

	header := []byte(`# aseko-local configuration
#
# Point your Aseko unit (or a DNS override for its cloud host) at
# server.host:server.port. Durations use Go syntax: 30s, 15m, 720h.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

// Marshal renders the config as YAML without the file header.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
