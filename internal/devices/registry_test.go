package devices

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/muurk/aseko-local/internal/protocol"
)

func state(serial uint32, ts time.Time) *protocol.DeviceState {
	ph := 7.2
	return &protocol.DeviceState{
		SerialNumber:  serial,
		Type:          protocol.DeviceTypeNet,
		Configuration: protocol.ProbeSet(0).With(protocol.ProbePH),
		Timestamp:     ts,
		PH:            &ph,
	}
}

func TestRegistryUpdate(t *testing.T) {
	reg := NewRegistry()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	if !reg.Update(state(42, now)) {
		t.Error("first Update() = false, want new device")
	}
	if reg.Update(state(42, now.Add(time.Second))) {
		t.Error("second Update() = true, want existing device")
	}
	if reg.Update(nil) {
		t.Error("Update(nil) = true")
	}

	d, ok := reg.Get(42)
	if !ok {
		t.Fatal("Get(42) not found")
	}
	if d.Frames != 2 {
		t.Errorf("Frames = %d, want 2", d.Frames)
	}
	if !d.State.Timestamp.Equal(now.Add(time.Second)) {
		t.Errorf("State not replaced, timestamp = %v", d.State.Timestamp)
	}
	if !d.FirstSeen.Equal(now) || !d.LastSeen.Equal(now) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", d.FirstSeen, d.LastSeen)
	}
	if _, ok := reg.Get(7); ok {
		t.Error("Get(7) found an unknown serial")
	}
}

func TestRegistryAllSorted(t *testing.T) {
	reg := NewRegistry()
	now := time.Now()
	for _, serial := range []uint32{300, 100, 200} {
		reg.Update(state(serial, now))
	}

	all := reg.All()
	if len(all) != 3 || reg.Len() != 3 {
		t.Fatalf("All() returned %d devices, Len() = %d", len(all), reg.Len())
	}
	for i, want := range []uint32{100, 200, 300} {
		if all[i].Serial != want {
			t.Errorf("All()[%d].Serial = %d, want %d", i, all[i].Serial, want)
		}
	}
}

func TestRegistryOnline(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry()
	reg.Update(state(1, now.Add(-5*time.Second)))
	reg.Update(state(2, now.Add(-time.Minute)))

	tests := []struct {
		serial uint32
		want   bool
	}{
		{1, true},
		{2, false},
		{3, false},
	}
	for _, tt := range tests {
		if got := reg.Online(tt.serial, now); got != tt.want {
			t.Errorf("Online(%d) = %v, want %v", tt.serial, got, tt.want)
		}
	}
}

func TestRegistrySubscribe(t *testing.T) {
	reg := NewRegistry()

	var mu sync.Mutex
	var events []Event
	unsubscribe := reg.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	now := time.Now()
	if err := reg.OnData(context.Background(), state(5, now)); err != nil {
		t.Fatalf("OnData() error = %v", err)
	}
	reg.Update(state(5, now))
	unsubscribe()
	reg.Update(state(5, now))

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventNewDevice || events[1].Type != EventUpdate {
		t.Errorf("event types = %v, %v", events[0].Type, events[1].Type)
	}
	if events[1].Device.Frames != 2 {
		t.Errorf("second event Frames = %d, want 2", events[1].Device.Frames)
	}
}

func TestEventTypeString(t *testing.T) {
	if EventNewDevice.String() != "new_device" || EventUpdate.String() != "update" {
		t.Error("unexpected EventType strings")
	}
	if EventType(9).String() != "unknown" {
		t.Error("EventType(9) should be unknown")
	}
}
