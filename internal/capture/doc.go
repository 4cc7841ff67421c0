// Package capture records raw device traffic to disk for offline analysis.
//
// A Writer keeps one append-only file handle per output:
//
//   - frames.jsonl: one JSON record per received frame (hex, printable ASCII, peer)
//   - frames_hex.log / frames.bin: the same frames as timestamped hex and raw bytes
//   - mirror_hex.log / mirror_bin.log: frames written to the mirror endpoint
//   - flowrates.log: dosing pump flow rates per decoded snapshot
//   - info.log: free-form "[source] message" lines
//
// frames.bin and mirror_bin.log are plain concatenations of 120-byte frames
// and can be fed back through protocol.Extractor.
package capture
