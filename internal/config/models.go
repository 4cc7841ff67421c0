package config

import (
	"fmt"
	"strconv"
	"time"
)

// CurrentVersion is the config file schema version.
const CurrentVersion = 1

// Config is the bridge configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Capture   CaptureConfig   `yaml:"capture"`
	Stream    StreamConfig    `yaml:"stream"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	History   HistoryConfig   `yaml:"history"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`

	Devices map[string]*Device `yaml:"devices,omitempty"` // Keyed by device serial number
}

// ServerConfig is the listener the pool units connect to.
type ServerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	MaxImplausibleFrames int           `yaml:"max_implausible_frames"`
}

// MirrorConfig forwards raw frames to a second endpoint (normally the
// Aseko cloud, so the official app keeps working).
type MirrorConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	QueueSize         int           `yaml:"queue_size"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// CaptureConfig is the raw frame logging toggle.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// StreamConfig is the HTTP/WebSocket live feed.
type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig publishes device state with Home Assistant discovery.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"` // e.g. tcp://homeassistant.local:1883
	Username        string `yaml:"username,omitempty"`
	Password        string `yaml:"password,omitempty"` // Prefer ASEKO_MQTT_PASSWORD
	ClientID        string `yaml:"client_id"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	Retain          bool   `yaml:"retain"`
}

// HistoryConfig stores decoded samples in SQLite.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
	Interval  time.Duration `yaml:"interval"` // Minimum spacing between stored samples per device
}

// DiscoveryConfig announces the bridge over mDNS.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LogConfig selects zap level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Device represents user-defined metadata for a single pool unit.
type Device struct {
	Nickname string    `yaml:"nickname,omitempty"`  // User-friendly name
	LastAddr string    `yaml:"last_addr,omitempty"` // Last remote address
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last frame time
}

// GetDevice retrieves device metadata by serial number.
// Returns nil if the device doesn't exist in the config.
func (c *Config) GetDevice(serial string) *Device {
	return c.Devices[serial]
}

// EnsureDevice ensures a device entry exists and returns it.
func (c *Config) EnsureDevice(serial string) *Device {
	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}

	if device, exists := c.Devices[serial]; exists {
		return device
	}

	device := &Device{}
	c.Devices[serial] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and address for a device.
func (c *Config) UpdateDeviceLastSeen(serial, addr string) {
	device := c.EnsureDevice(serial)
	device.LastSeen = time.Now()
	device.LastAddr = addr
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (c *Config) SetDeviceNickname(serial, nickname string) {
	c.EnsureDevice(serial).Nickname = nickname
}

// DisplayName returns the nickname for serial, or a name built from the
// serial number.
func (c *Config) DisplayName(serial uint32) string {
	if d := c.GetDevice(strconv.FormatUint(uint64(serial), 10)); d != nil && d.Nickname != "" {
		return d.Nickname
	}
	return fmt.Sprintf("Aseko %d", serial)
}

// Nicknames returns serial -> nickname for every named device.
func (c *Config) Nicknames() map[uint32]string {
	out := make(map[uint32]string)
	for serial, d := range c.Devices {
		if d == nil || d.Nickname == "" {
			continue
		}
		n, err := strconv.ParseUint(serial, 10, 32)
		if err != nil {
			continue
		}
		out[uint32(n)] = d.Nickname
	}
	return out
}
