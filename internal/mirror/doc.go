// Package mirror forwards raw device frames to a second TCP endpoint.
//
// The bridge can keep the official Aseko cloud (or any other collector)
// fed while it decodes frames locally. Forwarding is decoupled from
// ingestion through a bounded Queue:
//
//   - Enqueue copies the frame and never blocks. When the queue is full
//     the oldest frame is evicted.
//   - A single worker goroutine drains the queue over one outbound
//     connection.
//   - Dial failures back off exponentially from InitialBackoff up to
//     MaxBackoff.
//   - A failed write closes the connection and puts the frame back at the
//     head of the queue, so order is kept.
//   - Every ReconnectInterval the connection is replaced even if it looks
//     healthy, which bounds the life of a silently half-open socket.
//
// Failures are logged as *ForwardError (see ClassifyNetworkError) and are
// never returned to callers of Enqueue.
//
// # Usage Example
//
//	fwd := mirror.New(mirror.DefaultConfig())
//	if err := fwd.Start(ctx); err != nil {
//	    return err
//	}
//	defer fwd.Stop(context.Background())
//
//	srv.SetForward(fwd.EnqueueFunc())
package mirror
