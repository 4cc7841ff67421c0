// Package logging provides structured logging for the Aseko bridge.
//
// It wraps a global zap logger with convenience functions so packages can
// log without passing a logger around.
//
// # Log Levels
//
//   - Debug: frame hex dumps, resync details, callback timing
//   - Info: listener start/stop, device connections, new devices
//   - Warn: frame shifts, substituted device clocks, mirror reconnects
//   - Error: dropped connections, callback failures
//
// # Configuration
//
//	if err := logging.InitializeWithFormat("info", logging.FormatJSON); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// With an empty level the ASEKO_LOG_LEVEL environment variable is used;
// when that is unset too the logger is a no-op, which keeps the CLI tools
// quiet.
//
// # Frame Logging
//
//	logging.LogConnection(session, remoteAddr, "connection_accepted")
//	logging.LogRawFrame("Frame received", frame, zap.String("session", session))
//
// FrameHex groups the 120 bytes by sub-block so a shifted frame is easy to
// spot in the logs.
package logging
