package bridge

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/muurk/aseko-local/internal/capture"
	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/protocol"
	"github.com/muurk/aseko-local/internal/publish"
	"github.com/muurk/aseko-local/internal/server"
	"github.com/muurk/aseko-local/internal/store"
	"github.com/muurk/aseko-local/internal/stream"
)

// Captured from an ASIN AQUA NET with a free chlorine probe.
const frameNetCLF = "069187240901ffffffffffff000402da0027ffff0095ff01400149ff000006640000000000ff006c" +
	"069187240903ffffffffffff480a08ffffffffffffffffff027e0149ffffffffffffffffffffffea" +
	"069187240902ffffffffffff0001003cffff003cffff010383ff00781e02581e28ffffffff0049a9"

const serialNetCLF = 110200612

func validFrame(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(frameNetCLF)
	if err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return b
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeClient records published topics.
type fakeClient struct {
	mqtt.Client

	mu     sync.Mutex
	topics []string
}

func (c *fakeClient) Connect() mqtt.Token { return doneToken{} }
func (c *fakeClient) IsConnected() bool   { return true }
func (c *fakeClient) Disconnect(uint)     {}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return doneToken{}
}

func (c *fakeClient) published(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Capture.Dir = filepath.Join(dir, "captures")
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.History.Interval = 0
	cfg.Stream.Listen = "127.0.0.1:0"
	return cfg
}

func startBridge(t *testing.T, cfg *config.Config, opts ...Option) *Bridge {
	t.Helper()
	b := New(cfg, opts...)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { shutdown(t, b) })
	return b
}

func shutdown(t *testing.T, b *Bridge) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func sendFrame(t *testing.T, b *Bridge) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", b.DeviceAddr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := conn.Write(validFrame(t)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBridgeListenerOnly(t *testing.T) {
	b := startBridge(t, testConfig(t))

	if b.DeviceAddr() == nil {
		t.Fatal("DeviceAddr() = nil after Start")
	}
	if b.StreamAddr() != nil {
		t.Error("stream bound although disabled")
	}

	sendFrame(t, b)
	waitFor(t, "device registration", func() bool { return b.Devices().Len() == 1 })

	d, ok := b.Devices().Get(serialNetCLF)
	if !ok || d.State.Type != protocol.DeviceTypeNet {
		t.Errorf("Get() = %+v, %v", d, ok)
	}
}

func TestBridgeFansOutToConsumers(t *testing.T) {
	mirrorLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer mirrorLn.Close()
	mirrored := make(chan []byte, 1)
	go func() {
		conn, err := mirrorLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, protocol.FrameSize)
		if _, err := io.ReadFull(conn, buf); err == nil {
			mirrored <- buf
		}
	}()

	cfg := testConfig(t)
	cfg.Capture.Enabled = true
	cfg.History.Enabled = true
	cfg.Stream.Enabled = true
	cfg.Mirror.Enabled = true
	cfg.Mirror.Host = "127.0.0.1"
	cfg.Mirror.Port = mirrorLn.Addr().(*net.TCPAddr).Port
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker = "tcp://127.0.0.1:1"

	client := &fakeClient{}
	b := New(cfg, WithPublisherOptions(publish.WithClient(client)))
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, err := stream.Dial(ctx, "ws://"+b.StreamAddr().String()+stream.DefaultPath)
	if err != nil {
		t.Fatalf("stream.Dial() error = %v", err)
	}
	defer ws.Close()
	hello, err := ws.Next()
	if err != nil || hello.Type != stream.MessageHello {
		t.Fatalf("first message = %+v, %v; want hello", hello, err)
	}

	sendFrame(t, b)

	msg, err := ws.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if msg.Type != stream.MessageState || msg.Device == nil || msg.Device.Serial != serialNetCLF {
		t.Errorf("stream message = %+v", msg)
	}

	select {
	case got := <-mirrored:
		if hex.EncodeToString(got) != frameNetCLF {
			t.Errorf("mirrored frame = %x", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("frame not mirrored")
	}

	waitFor(t, "MQTT state", func() bool {
		return client.published(publish.StateTopic(cfg.MQTT.TopicPrefix, serialNetCLF))
	})

	shutdown(t, b)

	s, err := store.Open(cfg.History.Path)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer s.Close()
	if _, err := s.Latest(context.Background(), serialNetCLF); err != nil {
		t.Errorf("Latest() error = %v, want stored reading", err)
	}

	f, err := os.Open(filepath.Join(cfg.Capture.Dir, capture.FramesJSONL))
	if err != nil {
		t.Fatalf("capture file: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() || !strings.Contains(sc.Text(), `"serial_number":110200612`) {
		t.Errorf("capture record = %q", sc.Text())
	}

	for _, name := range []string{capture.MirrorHexLog, capture.FlowratesLog, capture.InfoLog} {
		if _, err := os.Stat(filepath.Join(cfg.Capture.Dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestBridgeRecordsNewDevicesInConfig(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	b := startBridge(t, cfg, WithConfigPath(path))
	sendFrame(t, b)

	waitFor(t, "config file", func() bool {
		_, err := os.Stat(path)
		return err == nil
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "\"110200612\":") {
		t.Errorf("config does not list the unit:\n%s", data)
	}
}

func TestBridgeBindFailureCleansUp(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Server.Port = busy.Addr().(*net.TCPAddr).Port
	cfg.History.Enabled = true

	b := New(cfg)
	err = b.Start(context.Background())
	var bindErr *server.BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("Start() error = %v, want *server.BindError", err)
	}

	// The store was closed again, so it can be reopened and removed.
	s, err := store.Open(cfg.History.Path)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	_ = s.Close()
}
