package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge represents an aseko-local instance announced on the network
type Bridge struct {
	// Instance is the mDNS instance name (e.g., "aseko-local")
	Instance string

	// Hostname is the mDNS hostname (e.g., "raspberrypi.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the bridge has no IPv4
	IP string

	// Port is the stream HTTP port
	Port int

	// Metadata contains the TXT record data
	// Fields: "version", "ws", "api", "device_port"
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Aseko bridge %s (%s) at %s", b.Instance, b.Hostname, b.Address())
}

// Address returns ip:port.
func (b *Bridge) Address() string {
	return net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// BaseURL returns the HTTP base URL of the bridge
func (b *Bridge) BaseURL() string {
	return "http://" + b.Address()
}

// StreamURL returns the WebSocket URL of the live feed.
func (b *Bridge) StreamURL() string {
	path := b.GetMetadata("ws")
	if path == "" {
		path = DefaultStreamPath
	}
	return "ws://" + b.Address() + path
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
