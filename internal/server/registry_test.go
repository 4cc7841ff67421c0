package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/aseko-local/internal/protocol"
)

func TestRegistryAcquireReusesListener(t *testing.T) {
	reg := NewRegistry(testConfig())
	t.Cleanup(func() { _ = reg.ReleaseAll(context.Background()) })

	states, onData := stateChan(2)
	first, err := reg.Acquire(context.Background(), "127.0.0.1", 0, Handlers{OnData: onData})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	var forwarded atomic.Int32
	second, err := reg.Acquire(context.Background(), "127.0.0.1", 0, Handlers{
		Forward: func(context.Context, []byte) error {
			forwarded.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if first != second {
		t.Fatal("Acquire() created a second server for the same key")
	}
	if keys := reg.Keys(); len(keys) != 1 {
		t.Errorf("Keys() = %v, want one entry", keys)
	}

	// Both handler sets are active on the shared listener.
	conn := dial(t, first)
	write(t, conn, validFrame(t))
	receive(t, states)
	waitFor(t, "forward handler", func() bool { return forwarded.Load() == 1 })
}

func TestRegistryGetAndRelease(t *testing.T) {
	reg := NewRegistry(testConfig())

	srv, err := reg.Acquire(context.Background(), "127.0.0.1", 0, Handlers{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	got, ok := reg.Get("127.0.0.1", 0)
	if !ok || got != srv {
		t.Fatal("Get() did not return the acquired server")
	}
	if _, ok := reg.Get("127.0.0.1", 1); ok {
		t.Error("Get() found an unknown key")
	}

	if err := reg.Release(context.Background(), "127.0.0.1", 0); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if srv.Running() {
		t.Error("released server is still running")
	}
	if _, ok := reg.Get("127.0.0.1", 0); ok {
		t.Error("released key still registered")
	}
	if err := reg.Release(context.Background(), "127.0.0.1", 0); err != nil {
		t.Errorf("releasing an unknown key returned %v", err)
	}
}

func TestRegistryBindFailureNotRegistered(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = taken.Close() }()
	port := taken.Addr().(*net.TCPAddr).Port

	reg := NewRegistry(testConfig())
	_, err = reg.Acquire(context.Background(), "127.0.0.1", port, Handlers{})
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("Acquire() error = %v, want *BindError", err)
	}
	if len(reg.Keys()) != 0 {
		t.Error("failed listener was registered")
	}
}

func TestRegistryReleaseAll(t *testing.T) {
	reg := NewRegistry(testConfig(), WithDecoder(&protocol.Decoder{Location: time.UTC}))

	var servers []*Server
	for _, host := range []string{"127.0.0.1", "localhost"} {
		srv, err := reg.Acquire(context.Background(), host, 0, Handlers{})
		if err != nil {
			t.Fatalf("Acquire(%s) error = %v", host, err)
		}
		servers = append(servers, srv)
	}

	keys := reg.Keys()
	if len(keys) != 2 || keys[0].Host != "127.0.0.1" || keys[1].Host != "localhost" {
		t.Errorf("Keys() = %v, want sorted by host", keys)
	}

	if err := reg.ReleaseAll(context.Background()); err != nil {
		t.Fatalf("ReleaseAll() error = %v", err)
	}
	for _, srv := range servers {
		if srv.Running() {
			t.Error("server still running after ReleaseAll")
		}
	}
	if len(reg.Keys()) != 0 {
		t.Error("registry not empty after ReleaseAll")
	}
}

func TestKeyString(t *testing.T) {
	if got := (Key{Host: "0.0.0.0", Port: 47524}).String(); got != "0.0.0.0:47524" {
		t.Errorf("Key.String() = %q", got)
	}
	if got := (Key{Host: "::1", Port: 1}).String(); got != "[::1]:1" {
		t.Errorf("Key.String() = %q", got)
	}
}
