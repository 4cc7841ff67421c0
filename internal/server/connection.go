package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"go.uber.org/zap"
)

// readBufferSize is large enough for a burst of several frames.
const readBufferSize = 4096

// connection is one accepted device socket. The extractor and the
// implausible-frame counter belong to the connection goroutine.
type connection struct {
	session     string
	conn        net.Conn
	remote      string
	connectedAt time.Time

	frames  atomic.Int64
	dropped atomic.Int64

	extractor   *protocol.Extractor
	implausible int
}

func newConnection(conn net.Conn) *connection {
	return &connection{
		session:     uuid.NewString(),
		conn:        conn,
		remote:      conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		extractor:   protocol.NewExtractor(),
	}
}

func (c *connection) info() ConnectionInfo {
	return ConnectionInfo{
		Session:     c.session,
		RemoteAddr:  c.remote,
		ConnectedAt: c.connectedAt,
		Frames:      c.frames.Load(),
		Dropped:     c.dropped.Load(),
	}
}

func (c *connection) fields(extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("session", c.session),
		zap.String("remote_addr", c.remote),
	}, extra...)
}

// handleConnection reads the socket until it closes, feeding every candidate
// frame through processFrame in arrival order.
func (s *Server) handleConnection(ctx context.Context, c *connection) {
	ctx, cancel := context.WithCancel(withPeer(ctx, c))
	defer func() {
		cancel()
		_ = c.conn.Close()
		s.removeConnection(c)
		logging.LogConnection(c.session, c.remote, "connection_closed")
	}()

	logging.LogConnection(c.session, c.remote, "connection_accepted")

	buf := make([]byte, readBufferSize)
	for {
		if s.config.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
				logging.Info("Failed to set read deadline, connection may be closed",
					c.fields(zap.Error(err))...)
				return
			}
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.extractor.Push(buf[:n])
			for {
				frame, ok := c.extractor.Next()
				if !ok {
					break
				}
				if !s.processFrame(ctx, c, frame) {
					return
				}
			}
		}
		if err != nil {
			logReadError(c, err)
			return
		}
	}
}

func logReadError(c *connection, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logging.Info("Connection closed by device", c.fields()...)
	case errors.Is(err, net.ErrClosed):
		logging.Debug("Connection closed locally", c.fields()...)
	case errors.As(err, &netErr) && netErr.Timeout():
		logging.Warn("Read timeout, dropping idle connection", c.fields()...)
	default:
		logging.Info("Connection closed or error reading frame", c.fields(zap.Error(err))...)
	}
}

// processFrame runs one candidate through realignment, the plausibility
// gate, the raw callbacks and the decoder. It returns false when the
// connection must be closed.
func (s *Server) processFrame(ctx context.Context, c *connection, candidate []byte) bool {
	frame, shift, err := protocol.Resync(candidate)
	if err != nil {
		c.dropped.Add(1)
		logging.Error("Unrecoverable frame alignment, closing connection",
			c.fields(zap.Error(err), zap.String("frame_hex", logging.FrameHex(candidate)))...)
		return false
	}
	if shift > 0 {
		logging.Warn("Frame realigned",
			c.fields(
				zap.Int("shift", shift),
				zap.String("original_hex", logging.FrameHex(candidate)),
			)...)
		c.extractor.Skip(shift)
	}

	if err := protocol.CheckPlausibility(frame); err != nil {
		c.dropped.Add(1)
		c.implausible++
		logging.Warn("Dropping implausible frame",
			c.fields(
				zap.Error(err),
				zap.Int("consecutive", c.implausible),
				zap.String("frame_hex", logging.FrameHex(frame)),
			)...)
		if limit := s.config.MaxImplausibleFrames; limit > 0 && c.implausible >= limit {
			logging.Error("Too many implausible frames, closing connection",
				c.fields(zap.Int("consecutive", c.implausible))...)
			return false
		}
		return true
	}
	c.implausible = 0

	logging.LogRawFrame("Frame received", frame, c.fields()...)

	h := s.handlers.Load()
	if h.RawSink != nil {
		s.invoke(c, "raw_sink", func() error { return h.RawSink(ctx, bytes.Clone(frame)) })
	}
	if h.Forward != nil {
		s.invoke(c, "forward", func() error { return h.Forward(ctx, bytes.Clone(frame)) })
	}

	state, err := s.decoder.Decode(frame)
	if err != nil {
		c.dropped.Add(1)
		if protocol.IsFatal(err) {
			logging.Error("Cannot decode frame, closing connection",
				c.fields(zap.Error(err), zap.String("frame_hex", logging.FrameHex(frame)))...)
			return false
		}
		logging.Warn("Dropping malformed frame",
			c.fields(zap.Error(err), zap.String("frame_hex", logging.FrameHex(frame)))...)
		return true
	}
	c.frames.Add(1)

	logging.Debug("Frame decoded",
		c.fields(
			zap.Uint32("serial", state.SerialNumber),
			zap.Stringer("device_type", state.Type),
		)...)

	if h.OnData != nil {
		s.invoke(c, "on_data", func() error { return h.OnData(ctx, state) })
	}
	return true
}

// invoke runs a handler, turning returned errors and panics into a logged
// *CallbackError.
func (s *Server) invoke(c *connection, name string, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn()
	}()
	if err == nil {
		return
	}
	cbErr := &CallbackError{Callback: name, Session: c.session, Err: err}
	logging.Error("Callback failed", c.fields(zap.Error(cbErr))...)
}
