// Package store persists decoded snapshots in SQLite (modernc.org/sqlite,
// no cgo) so trends survive restarts.
//
// Each row keeps the full snapshot as JSON plus the headline measurements
// as columns for ad-hoc queries:
//
//	sqlite3 history.db 'SELECT datetime(recorded_at/1000, "unixepoch"), ph, redox FROM readings'
//
// A Recorder samples aggregator events at a fixed interval per unit and
// prunes readings older than the retention period.
package store
