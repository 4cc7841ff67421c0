// Package server implements the TCP listener that Aseko pool units report to.
//
// Aseko ASIN AQUA units open a plain TCP connection to their cloud endpoint
// and push one 120-byte telemetry frame every few seconds. Pointing the unit
// (or a DNS override) at this server lets the bridge read the frames
// locally.
//
// # Frame Pipeline
//
// Each accepted connection gets its own goroutine, session id and
// protocol.Extractor. Every candidate frame goes through:
//
//  1. Realignment (protocol.Resync). No alignment closes the connection.
//     A shift realigns the rest of the stream too.
//  2. The plausibility gate (protocol.CheckPlausibility). Implausible
//     frames are dropped; after Config.MaxImplausibleFrames in a row the
//     connection is closed so the unit reconnects cleanly.
//  3. RawSink and Forward, with a copy of the accepted bytes.
//  4. Decoding. An unknown device type closes the connection; any other
//     decode error drops just that frame.
//  5. OnData with the decoded snapshot.
//
// Frames of one connection are handled strictly in arrival order.
//
// # Callbacks
//
// Errors and panics from callbacks are logged as *CallbackError and never
// affect the connection. Handlers can be swapped while the server runs:
//
//	srv := server.New(server.DefaultConfig(), server.WithHandlers(server.Handlers{
//	    OnData: func(ctx context.Context, st *protocol.DeviceState) error {
//	        registry.Update(st)
//	        return nil
//	    },
//	}))
//	if err := srv.Start(ctx); err != nil {
//	    var bindErr *server.BindError
//	    if errors.As(err, &bindErr) { ... }
//	}
//	defer srv.Stop(context.Background())
//
//	srv.SetForward(forwarder.EnqueueFunc()) // takes effect on the next frame
//
// # Registry
//
// Registry keeps one server per (host, port). Acquiring an existing key
// merges the new handlers instead of binding again, which avoids "address
// already in use" when configuration is reloaded.
//
// # Shutdown
//
// Stop closes the listener, closes every device socket and waits for all
// connection goroutines before returning.
package server
