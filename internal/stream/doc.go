// Package stream pushes decoded device snapshots to browsers and terminal
// monitors over WebSocket.
//
// # Endpoints
//
//   - GET /ws: WebSocket; a "hello" message with every known unit, then one
//     "state" message per decoded frame
//   - GET /api/devices: JSON array of the current units
//   - GET /healthz: liveness probe
//
// A Hub is fed from devices.Registry.Subscribe and must be started with Run.
// Dial returns a Client for consuming the stream from Go.
package stream
