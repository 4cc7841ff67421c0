package server

import "context"

type connKey struct{}

// Peer identifies the device connection a callback runs for.
type Peer struct {
	Session    string
	RemoteAddr string
}

// PeerFromContext returns the connection a handler context belongs to.
func PeerFromContext(ctx context.Context) (Peer, bool) {
	p, ok := ctx.Value(connKey{}).(Peer)
	return p, ok
}

func withPeer(ctx context.Context, c *connection) context.Context {
	return context.WithValue(ctx, connKey{}, Peer{Session: c.session, RemoteAddr: c.remote})
}
