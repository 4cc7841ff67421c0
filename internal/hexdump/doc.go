// Package hexdump renders captured Aseko frames for manual analysis.
//
// It parses a hex dump of one 120-byte frame and annotates every byte with
// the fields known to live there. The same table can be written as
// Markdown, and Generate emits a Go function that rebuilds the frame field
// by field, which is how new test fixtures are made from captures.
package hexdump
