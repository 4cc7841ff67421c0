package server

import (
	"cmp"
	"context"
	"errors"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/muurk/aseko-local/internal/logging"
	"go.uber.org/zap"
)

// Key identifies a listener by bind host and port.
type Key struct {
	Host string
	Port int
}

func (k Key) String() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(k.Port))
}

// Registry owns at most one Server per (host, port). Asking for a pair that
// is already registered adds handlers to the running instance instead of
// binding a second listener.
type Registry struct {
	base Config
	opts []Option

	mu      sync.Mutex
	servers map[Key]*Server
}

// NewRegistry creates a registry. base supplies every setting except the
// host and port; opts are applied to each server it creates.
func NewRegistry(base Config, opts ...Option) *Registry {
	return &Registry{
		base:    base,
		opts:    opts,
		servers: make(map[Key]*Server),
	}
}

// Acquire returns the running server for host:port, merging the non-nil
// handlers of h into it. When no server exists one is created and started;
// a bind failure is returned as *BindError and nothing is registered.
func (r *Registry) Acquire(ctx context.Context, host string, port int, h Handlers) (*Server, error) {
	key := Key{Host: host, Port: port}

	r.mu.Lock()
	defer r.mu.Unlock()

	if srv, ok := r.servers[key]; ok {
		srv.MergeHandlers(h)
		if !srv.Running() {
			if err := srv.Start(ctx); err != nil {
				return nil, err
			}
		}
		logging.Debug("Reusing listener", zap.Stringer("key", key))
		return srv, nil
	}

	cfg := r.base
	cfg.Host = host
	cfg.Port = port

	opts := append(slices.Clone(r.opts), WithHandlers(h))
	srv := New(cfg, opts...)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	r.servers[key] = srv
	return srv, nil
}

// Get returns the server registered for host:port.
func (r *Registry) Get(host string, port int) (*Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	srv, ok := r.servers[Key{Host: host, Port: port}]
	return srv, ok
}

// Keys returns the registered listeners sorted by host then port.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	keys := make([]Key, 0, len(r.servers))
	for k := range r.servers {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.Host, b.Host), cmp.Compare(a.Port, b.Port))
	})
	return keys
}

// Release stops and unregisters the server for host:port. Releasing an
// unknown key is a no-op.
func (r *Registry) Release(ctx context.Context, host string, port int) error {
	key := Key{Host: host, Port: port}

	r.mu.Lock()
	srv, ok := r.servers[key]
	delete(r.servers, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return srv.Stop(ctx)
}

// ReleaseAll stops every registered server.
func (r *Registry) ReleaseAll(ctx context.Context) error {
	r.mu.Lock()
	servers := r.servers
	r.servers = make(map[Key]*Server)
	r.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
