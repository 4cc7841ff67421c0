package hexdump

import (
	"github.com/muurk/aseko-local/internal/protocol"
)

// Decoded is the outcome of running a dump through the frame pipeline.
type Decoded struct {
	Rotation int                   `json:"rotation"`
	Frame    []byte                `json:"-"`
	State    *protocol.DeviceState `json:"state"`
}

// Decode realigns data, applies the plausibility gate and decodes it the
// way the server does for a received frame.
func Decode(d *protocol.Decoder, data []byte) (*Decoded, error) {
	if d == nil {
		d = protocol.NewDecoder()
	}
	frame, k, err := protocol.Resync(data)
	if err != nil {
		return nil, err
	}
	if err := protocol.CheckPlausibility(frame); err != nil {
		return nil, err
	}
	state, err := d.Decode(frame)
	if err != nil {
		return nil, err
	}
	return &Decoded{Rotation: k, Frame: frame, State: state}, nil
}
