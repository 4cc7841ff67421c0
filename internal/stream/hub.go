package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/version"
	"go.uber.org/zap"
)

const (
	// DefaultPath is where the WebSocket endpoint is served.
	DefaultPath = "/ws"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
	broadcastSize  = 256
)

// Source provides the device snapshot for new clients and /api/devices.
type Source interface {
	All() []devices.Device
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// Hub fans device events out to every connected WebSocket client. A
// client whose send buffer is full is disconnected.
type Hub struct {
	source   Source
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	count      atomic.Int32
	done       chan struct{}
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(source Source) *Hub {
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local dashboards are served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastSize),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Run owns the client set until ctx is cancelled, then disconnects
// everyone. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			hello, err := json.Marshal(Message{
				Type:    MessageHello,
				Version: version.Version,
				Devices: h.source.All(),
			})
			if err != nil {
				logging.Error("Failed to marshal hello message", zap.Error(err))
				close(c.send)
				continue
			}
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			c.send <- hello
			logging.Info("Stream client connected",
				zap.String("remote_addr", c.remote),
				zap.Int("clients", len(h.clients)),
			)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				logging.Info("Stream client disconnected", zap.String("remote_addr", c.remote))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					logging.Warn("Stream client too slow, disconnecting", zap.String("remote_addr", c.remote))
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	h.count.Store(int32(len(h.clients)))
	close(c.send)
}

// Publish queues a state message for every client. It never blocks.
func (h *Hub) Publish(ev devices.Event) {
	d := ev.Device
	msg, err := json.Marshal(Message{Type: MessageState, Device: &d})
	if err != nil {
		logging.Error("Failed to marshal state message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn("Stream broadcast queue full, dropping update", zap.Uint32("serial", d.Serial))
	}
}

// Handler serves /ws, /api/devices and /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+DefaultPath, h.serveWS)
	mux.HandleFunc("GET "+DevicesPath, h.serveDevices)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (h *Hub) serveDevices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.source.All()); err != nil {
		logging.Debug("Failed to write device list", zap.Error(err))
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Debug("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &client{conn: conn, remote: r.RemoteAddr, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and keeps the read deadline alive
// from pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Stream client read error", zap.String("remote_addr", c.remote), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ListenAndServe serves Handler on addr until ctx is cancelled. The hub
// itself must be running.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.Info("Stream server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
