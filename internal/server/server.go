package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"go.uber.org/zap"
)

// DefaultMaxImplausibleFrames is the number of consecutive implausible
// frames after which a connection is dropped.
const DefaultMaxImplausibleFrames = 3

// Config holds the server configuration
type Config struct {
	Host string
	Port int

	// ReadTimeout closes a connection that sends nothing for this long.
	// Zero disables the deadline.
	ReadTimeout time.Duration

	// MaxImplausibleFrames closes a connection after this many consecutive
	// frames fail the plausibility gate. Zero means never.
	MaxImplausibleFrames int
}

// DefaultConfig returns the configuration used by the bridge when nothing
// else is specified.
func DefaultConfig() Config {
	return Config{
		Host:                 protocol.DefaultBindAddress,
		Port:                 protocol.DefaultPort,
		ReadTimeout:          5 * time.Minute,
		MaxImplausibleFrames: DefaultMaxImplausibleFrames,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DataFunc receives every decoded frame.
type DataFunc func(ctx context.Context, state *protocol.DeviceState) error

// BytesFunc receives the raw bytes of every accepted frame (after
// realignment, before decoding).
type BytesFunc func(ctx context.Context, frame []byte) error

// Handlers is the set of callbacks a server fans frames out to. Nil
// handlers are skipped.
type Handlers struct {
	OnData  DataFunc
	RawSink BytesFunc
	Forward BytesFunc
}

// Merge returns h with every non-nil handler of other taking precedence.
func (h Handlers) Merge(other Handlers) Handlers {
	if other.OnData != nil {
		h.OnData = other.OnData
	}
	if other.RawSink != nil {
		h.RawSink = other.RawSink
	}
	if other.Forward != nil {
		h.Forward = other.Forward
	}
	return h
}

// Option configures a Server
type Option func(*Server)

// WithHandlers sets the initial callbacks.
func WithHandlers(h Handlers) Option {
	return func(s *Server) {
		s.handlers.Store(&h)
	}
}

// WithDecoder replaces the default frame decoder (used to pin the time
// zone or clock of substituted timestamps).
func WithDecoder(d *protocol.Decoder) Option {
	return func(s *Server) {
		if d != nil {
			s.decoder = d
		}
	}
}

// ConnectionInfo describes one connected device.
type ConnectionInfo struct {
	Session     string
	RemoteAddr  string
	ConnectedAt time.Time
	Frames      int64
	Dropped     int64
}

// Server accepts TCP connections from Aseko units and runs one frame
// processing loop per connection.
type Server struct {
	config   Config
	decoder  *protocol.Decoder
	handlers atomic.Pointer[Handlers]

	mu          sync.Mutex
	listener    net.Listener
	cancel      context.CancelFunc
	activeConns map[string]*connection
	wg          sync.WaitGroup
}

// New creates a new Server instance. Call Start to bind.
func New(config Config, opts ...Option) *Server {
	if config.MaxImplausibleFrames < 0 {
		config.MaxImplausibleFrames = 0
	}
	s := &Server{
		config:      config,
		decoder:     protocol.NewDecoder(),
		activeConns: make(map[string]*connection),
	}
	s.handlers.Store(&Handlers{})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the configuration the server was created with.
func (s *Server) Config() Config {
	return s.config
}

// Start binds the listener and accepts connections in the background. It
// returns a *BindError when the address cannot be bound. ctx bounds the
// bind and is the parent of handler contexts; cancelling it later does not
// stop the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyRunning
	}

	addr := s.config.Address()
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}

	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.listener = listener
	s.cancel = cancel

	logging.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("read_timeout", s.config.ReadTimeout),
		zap.Int("max_implausible_frames", s.config.MaxImplausibleFrames),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections(serveCtx, listener)
	}()
	return nil
}

// acceptConnections accepts and handles incoming connections
func (s *Server) acceptConnections(ctx context.Context, listener net.Listener) {
	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			logging.Error("Failed to accept connection",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 0

		c := newConnection(conn)

		s.mu.Lock()
		if s.listener != listener {
			// Stop raced with Accept.
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.activeConns[c.session] = c
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, c)
		}()
	}
}

// Stop closes the listener, force-closes every active connection and waits
// for all connection goroutines to return. It returns ctx.Err() if ctx ends
// first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	if listener == nil {
		s.mu.Unlock()
		return nil
	}
	logging.Info("Shutting down server...", zap.String("addr", listener.Addr().String()))

	s.listener = nil
	s.cancel()
	if err := listener.Close(); err != nil {
		logging.Error("Error closing listener", zap.Error(err))
	}
	for session, c := range s.activeConns {
		logging.Info("Closing active connection",
			zap.String("session", session),
			zap.String("remote_addr", c.remote),
		)
		_ = c.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed")
		return nil
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, connections still closing")
		return fmt.Errorf("server stop: %w", ctx.Err())
	}
}

// Running reports whether the listener is bound.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Addr returns the bound listener address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveConnections returns the connected devices, oldest first.
func (s *Server) ActiveConnections() []ConnectionInfo {
	s.mu.Lock()
	infos := make([]ConnectionInfo, 0, len(s.activeConns))
	for _, c := range s.activeConns {
		infos = append(infos, c.info())
	}
	s.mu.Unlock()

	slices.SortFunc(infos, func(a, b ConnectionInfo) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	return infos
}

// Handlers returns a copy of the current callbacks.
func (s *Server) Handlers() Handlers {
	return *s.handlers.Load()
}

// SetHandlers replaces all callbacks. Connections pick up the new set with
// their next frame.
func (s *Server) SetHandlers(h Handlers) {
	s.handlers.Store(&h)
}

// MergeHandlers replaces only the callbacks that are non-nil in h.
func (s *Server) MergeHandlers(h Handlers) {
	s.updateHandlers(func(cur *Handlers) { *cur = cur.Merge(h) })
}

// SetOnData replaces the decoded-state callback. nil disables it.
func (s *Server) SetOnData(fn DataFunc) {
	s.updateHandlers(func(h *Handlers) { h.OnData = fn })
}

// SetRawSink replaces the raw frame callback. nil disables it.
func (s *Server) SetRawSink(fn BytesFunc) {
	s.updateHandlers(func(h *Handlers) { h.RawSink = fn })
}

// SetForward replaces the mirror callback. nil disables it.
func (s *Server) SetForward(fn BytesFunc) {
	s.updateHandlers(func(h *Handlers) { h.Forward = fn })
}

func (s *Server) updateHandlers(update func(*Handlers)) {
	for {
		old := s.handlers.Load()
		next := *old
		update(&next)
		if s.handlers.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *Server) removeConnection(c *connection) {
	s.mu.Lock()
	delete(s.activeConns, c.session)
	s.mu.Unlock()
}
