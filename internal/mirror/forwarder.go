package mirror

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"go.uber.org/zap"
)

// Config holds the forwarder configuration
type Config struct {
	Host string
	Port int

	QueueSize         int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	ReconnectInterval time.Duration // forced reconnect period, 0 disables
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultConfig mirrors to the Aseko cloud endpoint.
func DefaultConfig() Config {
	return Config{
		Host:              protocol.DefaultMirrorHost,
		Port:              protocol.DefaultMirrorPort,
		QueueSize:         DefaultQueueSize,
		InitialBackoff:    time.Second,
		MaxBackoff:        10 * time.Second,
		ReconnectInterval: 15 * time.Minute,
		DialTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// DialFunc opens the outbound connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Forwarder
type Option func(*Forwarder)

// WithDialer replaces net.Dialer.DialContext.
func WithDialer(dial DialFunc) Option {
	return func(f *Forwarder) {
		if dial != nil {
			f.dial = dial
		}
	}
}

// WithFrameLog registers an observer called with every frame successfully
// written to the mirror.
func WithFrameLog(fn func(frame []byte)) Option {
	return func(f *Forwarder) {
		f.frameLog = fn
	}
}

// Stats is a snapshot of forwarder counters.
type Stats struct {
	Enqueued      uint64
	Sent          uint64
	Dropped       uint64
	Requeued      uint64
	Connects      uint64
	ConnectErrors uint64
	WriteErrors   uint64
	Queued        int
	Connected     bool
}

// Forwarder relays raw frames to a second TCP endpoint through a bounded
// queue, so a slow or dead mirror never delays device ingestion.
type Forwarder struct {
	config   Config
	queue    *Queue
	dial     DialFunc
	frameLog func([]byte)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	conn   net.Conn

	enqueued      atomic.Uint64
	sent          atomic.Uint64
	dropped       atomic.Uint64
	requeued      atomic.Uint64
	connects      atomic.Uint64
	connectErrors atomic.Uint64
	writeErrors   atomic.Uint64
}

// New creates a forwarder. Frames can be enqueued before Start.
func New(config Config, opts ...Option) *Forwarder {
	config = config.withDefaults()
	f := &Forwarder{
		config: config,
		queue:  NewQueue(config.QueueSize),
	}
	var d net.Dialer
	f.dial = d.DialContext
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the effective configuration.
func (f *Forwarder) Config() Config {
	return f.config
}

// Enqueue queues a copy of frame for forwarding. It never blocks; when the
// queue is full the oldest frame is dropped.
func (f *Forwarder) Enqueue(frame []byte) {
	f.enqueued.Add(1)
	if f.queue.Push(bytes.Clone(frame)) {
		n := f.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			logging.Warn("Mirror queue full, dropping oldest frame",
				zap.String("addr", f.config.Address()),
				zap.Uint64("dropped_total", n),
			)
		}
	}
}

// EnqueueFunc adapts Enqueue to the server's forward callback signature.
func (f *Forwarder) EnqueueFunc() func(context.Context, []byte) error {
	return func(_ context.Context, frame []byte) error {
		f.Enqueue(frame)
		return nil
	}
}

// Len returns the number of frames waiting to be sent.
func (f *Forwarder) Len() int {
	return f.queue.Len()
}

// Queue exposes the underlying queue.
func (f *Forwarder) Queue() *Queue {
	return f.queue
}

// Stats returns the current counters.
func (f *Forwarder) Stats() Stats {
	f.mu.Lock()
	connected := f.conn != nil
	f.mu.Unlock()

	return Stats{
		Enqueued:      f.enqueued.Load(),
		Sent:          f.sent.Load(),
		Dropped:       f.dropped.Load(),
		Requeued:      f.requeued.Load(),
		Connects:      f.connects.Load(),
		ConnectErrors: f.connectErrors.Load(),
		WriteErrors:   f.writeErrors.Load(),
		Queued:        f.queue.Len(),
		Connected:     connected,
	}
}

// Running reports whether the worker goroutine is active.
func (f *Forwarder) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

// Start launches the worker. ctx is only used as the parent for values;
// the worker runs until Stop.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		return ErrAlreadyRunning
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel
	f.done = make(chan struct{})

	logging.Info("Starting mirror forwarder",
		zap.String("addr", f.config.Address()),
		zap.Int("queue_size", f.queue.Cap()),
		zap.Duration("reconnect_interval", f.config.ReconnectInterval),
	)

	go f.run(workerCtx, f.done)
	return nil
}

// Stop cancels the worker, aborts any dial in progress, closes the outbound
// connection and waits for the worker to exit. Queued frames are kept.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	if cancel == nil {
		f.mu.Unlock()
		return nil
	}
	f.cancel = nil
	cancel()
	if f.conn != nil {
		_ = f.conn.Close()
	}
	f.mu.Unlock()

	select {
	case <-done:
		logging.Info("Mirror forwarder stopped", zap.Int("queued", f.queue.Len()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mirror stop: %w", ctx.Err())
	}
}

func (f *Forwarder) setConn(conn net.Conn) {
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
}

// session is the worker's view of the single outbound connection.
type session struct {
	conn        net.Conn
	connectedAt time.Time
}

func (f *Forwarder) run(ctx context.Context, done chan struct{}) {
	var s session
	defer func() {
		f.closeSession(&s)
		close(done)
	}()

	backoff := f.config.InitialBackoff
	writeFailures := 0

	for {
		frame, err := f.queue.Wait(ctx)
		if err != nil {
			return
		}

		if s.conn != nil && f.config.ReconnectInterval > 0 &&
			time.Since(s.connectedAt) >= f.config.ReconnectInterval {
			logging.Info("Periodic mirror reconnect",
				zap.String("addr", f.config.Address()),
				zap.Duration("session_age", time.Since(s.connectedAt)),
			)
			f.closeSession(&s)
		}

		for s.conn == nil {
			if err := f.connect(ctx, &s); err != nil {
				if ctx.Err() != nil {
					f.requeue(frame)
					return
				}
				logging.Warn("Mirror connect failed",
					zap.Error(err),
					zap.Duration("retry_in", backoff),
				)
				if !sleep(ctx, backoff) {
					f.requeue(frame)
					return
				}
				backoff = min(2*backoff, f.config.MaxBackoff)
			}
		}

		if err := f.write(s.conn, frame); err != nil {
			f.writeErrors.Add(1)
			writeFailures++
			logging.Warn("Mirror write failed, reconnecting",
				zap.Error(err),
				zap.Int("consecutive_failures", writeFailures),
			)
			f.closeSession(&s)
			f.requeue(frame)

			// A peer that accepts and immediately drops us gets the same
			// backoff as one that refuses.
			if writeFailures > 1 {
				if !sleep(ctx, backoff) {
					return
				}
				backoff = min(2*backoff, f.config.MaxBackoff)
			}
			continue
		}

		writeFailures = 0
		backoff = f.config.InitialBackoff
		f.sent.Add(1)
		if f.frameLog != nil {
			f.frameLog(frame)
		}
	}
}

func (f *Forwarder) connect(ctx context.Context, s *session) error {
	addr := f.config.Address()
	dialCtx, cancel := context.WithTimeout(ctx, f.config.DialTimeout)
	defer cancel()

	conn, err := f.dial(dialCtx, "tcp", addr)
	if err != nil {
		f.connectErrors.Add(1)
		return ClassifyNetworkError(OpConnect, addr, err)
	}

	// Stop may have run while dialing.
	f.mu.Lock()
	if ctx.Err() != nil {
		f.mu.Unlock()
		_ = conn.Close()
		return ctx.Err()
	}
	f.conn = conn
	f.mu.Unlock()

	s.conn = conn
	s.connectedAt = time.Now()
	f.connects.Add(1)
	logging.Info("Connected to mirror",
		zap.String("addr", addr),
		zap.String("local_addr", conn.LocalAddr().String()),
	)
	return nil
}

func (f *Forwarder) write(conn net.Conn, frame []byte) error {
	addr := f.config.Address()
	if err := conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout)); err != nil {
		return ClassifyNetworkError(OpWrite, addr, err)
	}
	if _, err := conn.Write(frame); err != nil {
		return ClassifyNetworkError(OpWrite, addr, err)
	}
	logging.LogRawFrame("Frame mirrored", frame, zap.String("addr", addr))
	return nil
}

func (f *Forwarder) closeSession(s *session) {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	f.setConn(nil)
}

func (f *Forwarder) requeue(frame []byte) {
	if f.queue.PushFront(frame) {
		f.requeued.Add(1)
		return
	}
	f.dropped.Add(1)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
