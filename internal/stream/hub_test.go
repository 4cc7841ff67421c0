package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/protocol"
)

type fakeSource struct {
	mu      sync.Mutex
	devices []devices.Device
}

func (f *fakeSource) All() []devices.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]devices.Device(nil), f.devices...)
}

func device(serial uint32) devices.Device {
	ph := 7.3
	return devices.Device{
		Serial: serial,
		State: &protocol.DeviceState{
			SerialNumber: serial,
			Type:         protocol.DeviceTypeNet,
			Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			PH:           &ph,
		},
		Frames: 1,
	}
}

func startHub(t *testing.T, src Source) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(src)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+DefaultPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func next(t *testing.T, c *Client) Message {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	msg, err := c.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	return msg
}

func TestHubHelloAndState(t *testing.T) {
	src := &fakeSource{devices: []devices.Device{device(1)}}
	hub, srv := startHub(t, src)
	c := dialHub(t, srv)

	hello := next(t, c)
	if hello.Type != MessageHello {
		t.Fatalf("first message type = %q, want hello", hello.Type)
	}
	if len(hello.Devices) != 1 || hello.Devices[0].Serial != 1 {
		t.Errorf("hello devices = %+v", hello.Devices)
	}
	if hub.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", hub.Clients())
	}

	hub.Publish(devices.Event{Type: devices.EventUpdate, Device: device(2)})

	msg := next(t, c)
	if msg.Type != MessageState || msg.Device == nil {
		t.Fatalf("message = %+v, want state", msg)
	}
	if msg.Device.Serial != 2 || msg.Device.State.PH == nil || *msg.Device.State.PH != 7.3 {
		t.Errorf("state device = %+v", msg.Device)
	}
	if msg.Device.State.Type != protocol.DeviceTypeNet {
		t.Errorf("device type = %v, want NET", msg.Device.State.Type)
	}
}

func TestHubClientDisconnect(t *testing.T) {
	hub, srv := startHub(t, &fakeSource{})
	c := dialHub(t, srv)
	next(t, c)

	_ = c.Close()
	deadline := time.Now().Add(3 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not unregistered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubRunStopClosesClients(t *testing.T) {
	hub := NewHub(&fakeSource{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	c := dialHub(t, srv)
	next(t, c)
	cancel()
	<-done

	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := c.Next(); err == nil {
		t.Error("Next() after hub stop returned no error")
	}
}

func TestHTTPEndpoints(t *testing.T) {
	src := &fakeSource{devices: []devices.Device{device(10), device(20)}}
	_, srv := startHub(t, src)

	resp, err := http.Get(srv.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var list []devices.Device
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[1].Serial != 20 {
		t.Errorf("device list = %+v", list)
	}

	resp2, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	body, _ := io.ReadAll(resp2.Body)
	if resp2.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Errorf("/healthz = %d %q", resp2.StatusCode, body)
	}

	resp3, err := http.Post(srv.URL+"/api/devices", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/devices: %v", err)
	}
	_ = resp3.Body.Close()
	if resp3.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", resp3.StatusCode)
	}
}

func TestServeShutdown(t *testing.T) {
	hub := NewHub(&fakeSource{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- hub.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}

func TestFetchDevices(t *testing.T) {
	src := &fakeSource{devices: []devices.Device{device(7)}}
	_, srv := startHub(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	list, err := FetchDevices(ctx, srv.URL+"/")
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(list) != 1 || list[0].Serial != 7 || list[0].State == nil {
		t.Errorf("FetchDevices() = %+v", list)
	}

	if _, err := FetchDevices(ctx, srv.URL+"/missing"); err == nil {
		t.Error("FetchDevices() on a bad path should fail")
	}
}
