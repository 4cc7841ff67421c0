// Package monitor is a full-screen terminal view of a running bridge. It
// connects to the bridge's WebSocket stream and shows one table row per
// pool unit, reconnecting on its own when the bridge restarts.
package monitor
