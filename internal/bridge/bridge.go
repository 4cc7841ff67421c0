package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/aseko-local/internal/capture"
	"github.com/muurk/aseko-local/internal/config"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/discovery"
	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/mirror"
	"github.com/muurk/aseko-local/internal/protocol"
	"github.com/muurk/aseko-local/internal/publish"
	"github.com/muurk/aseko-local/internal/server"
	"github.com/muurk/aseko-local/internal/store"
	"github.com/muurk/aseko-local/internal/stream"
)

// Option configures a Bridge
type Option func(*Bridge)

// WithConfigPath makes the bridge record newly seen units in the config
// file at path, so they can be given a nickname.
func WithConfigPath(path string) Option {
	return func(b *Bridge) {
		b.configPath = path
	}
}

// WithServerOptions passes options to every device listener.
func WithServerOptions(opts ...server.Option) Option {
	return func(b *Bridge) {
		b.serverOpts = append(b.serverOpts, opts...)
	}
}

// WithPublisherOptions passes options to the MQTT publisher.
func WithPublisherOptions(opts ...publish.Option) Option {
	return func(b *Bridge) {
		b.publishOpts = append(b.publishOpts, opts...)
	}
}

// Bridge runs the device listener and every enabled consumer of its
// frames.
type Bridge struct {
	cfg         *config.Config
	configPath  string
	serverOpts  []server.Option
	publishOpts []publish.Option

	cfgMu sync.Mutex // guards cfg.Devices

	devices   *devices.Registry
	servers   *server.Registry
	listener  *server.Server
	capture   *capture.Writer
	mirror    *mirror.Forwarder
	hub       *stream.Hub
	streamLn  net.Listener
	publisher *publish.Publisher
	store     *store.Store
	announce  *discovery.Announcement

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	errs        chan error
	unsubscribe []func()
}

// New creates a bridge for cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:     cfg,
		devices: devices.NewRegistry(),
		errs:    make(chan error, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.servers = server.NewRegistry(server.Config{
		ReadTimeout:          cfg.Server.ReadTimeout,
		MaxImplausibleFrames: cfg.Server.MaxImplausibleFrames,
	}, b.serverOpts...)
	return b
}

// Devices returns the aggregator fed by the device listener.
func (b *Bridge) Devices() *devices.Registry {
	return b.devices
}

// DeviceAddr returns the bound device listener address.
func (b *Bridge) DeviceAddr() net.Addr {
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// StreamAddr returns the bound stream address, nil when the stream is off.
func (b *Bridge) StreamAddr() net.Addr {
	if b.streamLn == nil {
		return nil
	}
	return b.streamLn.Addr()
}

// Errors delivers the first failure of a background component.
func (b *Bridge) Errors() <-chan error {
	return b.errs
}

// Start brings up every enabled component, consumers first and the device
// listener last. On failure everything already started is shut down.
func (b *Bridge) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel

	if err := b.start(ctx, runCtx); err != nil {
		_ = b.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	return nil
}

func (b *Bridge) start(ctx, runCtx context.Context) error {
	cfg := b.cfg
	handlers := server.Handlers{OnData: b.onData}

	if cfg.Capture.Enabled {
		w, err := capture.NewWriter(cfg.Capture.Dir)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		b.capture = w
		handlers.RawSink = w.Sink
		b.subscribe(func(ev devices.Event) {
			if err := w.Flowrates("server", ev.Device.State); err != nil {
				logging.Warn("Failed to log flowrates", zap.Error(err))
			}
		})
		_ = w.Info("server", "capture started")
	}

	if cfg.History.Enabled {
		s, err := store.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		b.store = s
		rec := store.NewRecorder(s, store.RecorderConfig{
			Interval:  cfg.History.Interval,
			Retention: cfg.History.Retention,
		})
		b.subscribe(rec.Handle)
		b.goRun(func() { rec.Run(runCtx) })
	}

	if cfg.Mirror.Enabled {
		mc := mirror.DefaultConfig()
		mc.Host = cfg.Mirror.Host
		mc.Port = cfg.Mirror.Port
		mc.QueueSize = cfg.Mirror.QueueSize
		mc.MaxBackoff = cfg.Mirror.MaxBackoff
		mc.ReconnectInterval = cfg.Mirror.ReconnectInterval

		var opts []mirror.Option
		if b.capture != nil {
			opts = append(opts, mirror.WithFrameLog(b.capture.MirrorSink))
		}
		b.mirror = mirror.New(mc, opts...)
		if err := b.mirror.Start(ctx); err != nil {
			return fmt.Errorf("mirror: %w", err)
		}
		handlers.Forward = b.mirror.EnqueueFunc()
	}

	if cfg.Stream.Enabled {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", cfg.Stream.Listen)
		if err != nil {
			return fmt.Errorf("stream: %w", err)
		}
		b.streamLn = ln
		b.hub = stream.NewHub(b.devices)
		b.subscribe(b.hub.Publish)
		b.goRun(func() { b.hub.Run(runCtx) })
		b.goRun(func() {
			if err := b.hub.Serve(runCtx, ln); err != nil {
				b.fail(fmt.Errorf("stream: %w", err))
			}
		})
	}

	if cfg.MQTT.Enabled {
		b.publisher = publish.New(publish.Config{
			Broker:          cfg.MQTT.Broker,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			ClientID:        cfg.MQTT.ClientID,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			Retain:          cfg.MQTT.Retain,
		}, append([]publish.Option{publish.WithNames(b.displayName)}, b.publishOpts...)...)
		if err := b.publisher.Connect(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		b.subscribe(b.publisher.Handle)
		b.goRun(func() {
			b.publisher.RunAvailability(runCtx, b.devices.Online, publish.DefaultAvailabilityInterval)
		})
	}

	srv, err := b.servers.Acquire(ctx, cfg.Server.Host, cfg.Server.Port, handlers)
	if err != nil {
		return err
	}
	b.listener = srv

	if cfg.Discovery.Enabled && b.streamLn != nil {
		port := b.streamLn.Addr().(*net.TCPAddr).Port
		a, err := discovery.Announce(cfg.Discovery.Instance, port,
			discovery.TXTRecords(b.devicePort(), stream.DefaultPath))
		if err != nil {
			// The bridge works without mDNS; monitors can use --url.
			logging.Warn("mDNS announcement failed", zap.Error(err))
		} else {
			b.announce = a
		}
	}

	logging.Info("Bridge started",
		zap.Stringer("device_addr", b.DeviceAddr()),
		zap.Bool("capture", b.capture != nil),
		zap.Bool("history", b.store != nil),
		zap.Bool("mirror", b.mirror != nil),
		zap.Bool("stream", b.hub != nil),
		zap.Bool("mqtt", b.publisher != nil),
	)
	return nil
}

// Shutdown stops accepting frames, lets the consumers drain and releases
// every resource. Errors are joined.
func (b *Bridge) Shutdown(ctx context.Context) error {
	var errs []error

	b.announce.Shutdown()
	b.announce = nil

	if err := b.servers.ReleaseAll(ctx); err != nil {
		errs = append(errs, err)
	}

	for _, unsub := range b.unsubscribe {
		unsub()
	}
	b.unsubscribe = nil

	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	if b.mirror != nil {
		if err := b.mirror.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if b.publisher != nil {
		b.publisher.Close()
		b.publisher = nil
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
		b.store = nil
	}
	if b.capture != nil {
		_ = b.capture.Info("server", "capture stopped")
		if err := b.capture.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture: %w", err))
		}
		b.capture = nil
	}

	logging.Info("Bridge stopped")
	return errors.Join(errs...)
}

func (b *Bridge) subscribe(fn func(devices.Event)) {
	b.unsubscribe = append(b.unsubscribe, b.devices.Subscribe(fn))
}

func (b *Bridge) goRun(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

func (b *Bridge) fail(err error) {
	select {
	case b.errs <- err:
	default:
	}
}

func (b *Bridge) onData(ctx context.Context, state *protocol.DeviceState) error {
	if !b.devices.Update(state) || b.configPath == "" {
		return nil
	}
	peer, _ := server.PeerFromContext(ctx)
	b.rememberDevice(state.SerialNumber, peer.RemoteAddr)
	return nil
}

// rememberDevice records a newly seen unit in the config file.
func (b *Bridge) rememberDevice(serial uint32, addr string) {
	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()

	b.cfg.UpdateDeviceLastSeen(strconv.FormatUint(uint64(serial), 10), addr)
	if err := b.cfg.Save(b.configPath); err != nil {
		logging.Warn("Failed to record device in config",
			zap.Uint32("serial", serial), zap.String("path", b.configPath), zap.Error(err))
	}
}

func (b *Bridge) displayName(serial uint32) string {
	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()
	return b.cfg.DisplayName(serial)
}

func (b *Bridge) devicePort() int {
	if addr, ok := b.DeviceAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return b.cfg.Server.Port
}
