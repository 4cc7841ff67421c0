package devices

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"go.uber.org/zap"
)

// EventType distinguishes the first frame of a unit from later ones.
type EventType int

const (
	EventNewDevice EventType = iota
	EventUpdate
)

func (t EventType) String() string {
	switch t {
	case EventNewDevice:
		return "new_device"
	case EventUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after every accepted snapshot.
type Event struct {
	Type   EventType
	Device Device
}

// Device is the bridge's view of one pool unit.
type Device struct {
	Serial    uint32                `json:"serial_number"`
	State     *protocol.DeviceState `json:"state"`
	FirstSeen time.Time             `json:"first_seen"`
	LastSeen  time.Time             `json:"last_seen"`
	Frames    int64                 `json:"frames"`
}

// Online reports whether the unit's last frame is recent enough.
func (d Device) Online(now time.Time) bool {
	return d.State.Online(now)
}

type subscriber struct {
	id int
	fn func(Event)
}

// Registry holds the latest snapshot per serial number. Each update
// replaces the previous snapshot; snapshots are never mutated.
type Registry struct {
	now func() time.Time

	mu      sync.RWMutex
	devices map[uint32]*Device
	subs    []subscriber
	nextSub int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		now:     time.Now,
		devices: make(map[uint32]*Device),
	}
}

// Update stores state and notifies subscribers. It reports whether this
// is the first frame seen from the unit.
func (r *Registry) Update(state *protocol.DeviceState) bool {
	if state == nil {
		return false
	}
	now := r.now()

	r.mu.Lock()
	d, ok := r.devices[state.SerialNumber]
	if !ok {
		d = &Device{Serial: state.SerialNumber, FirstSeen: now}
		r.devices[state.SerialNumber] = d
	}
	d.State = state
	d.LastSeen = now
	d.Frames++
	snapshot := *d
	subs := slices.Clone(r.subs)
	r.mu.Unlock()

	ev := Event{Type: EventUpdate, Device: snapshot}
	if !ok {
		ev.Type = EventNewDevice
		logging.Info("New Aseko unit discovered",
			zap.Uint32("serial", state.SerialNumber),
			zap.Stringer("device_type", state.Type),
			zap.Stringer("configuration", state.Configuration),
		)
	} else {
		logging.Debug("Aseko unit updated", zap.Uint32("serial", state.SerialNumber))
	}

	for _, s := range subs {
		s.fn(ev)
	}
	return !ok
}

// OnData adapts Update to the server's decoded-frame callback.
func (r *Registry) OnData(_ context.Context, state *protocol.DeviceState) error {
	r.Update(state)
	return nil
}

// Subscribe registers fn for every future event and returns a function
// that removes it. fn runs on the connection goroutine and must not block.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.subs = slices.DeleteFunc(r.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Get returns the unit with the given serial.
func (r *Registry) Get(serial uint32) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[serial]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// All returns every known unit sorted by serial.
func (r *Registry) All() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Device) int {
		switch {
		case a.Serial < b.Serial:
			return -1
		case a.Serial > b.Serial:
			return 1
		}
		return 0
	})
	return out
}

// Online reports whether serial is known and its clock is within
// protocol.OnlineWindow of now.
func (r *Registry) Online(serial uint32, now time.Time) bool {
	d, ok := r.Get(serial)
	return ok && d.Online(now)
}

// Len returns the number of known units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
