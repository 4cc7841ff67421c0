package stream

import "github.com/muurk/aseko-local/internal/devices"

// MessageType tags every message sent to stream clients.
type MessageType string

const (
	// MessageHello is sent once after the upgrade with every known unit.
	MessageHello MessageType = "hello"
	// MessageState carries one new snapshot.
	MessageState MessageType = "state"
)

// Message is the JSON text frame sent on /ws.
type Message struct {
	Type    MessageType      `json:"type"`
	Version string           `json:"version,omitempty"`
	Device  *devices.Device  `json:"device,omitempty"`
	Devices []devices.Device `json:"devices,omitempty"`
}
