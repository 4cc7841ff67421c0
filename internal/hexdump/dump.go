package hexdump

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/muurk/aseko-local/internal/protocol"
)

// ErrLength is returned by Parse when the input is not exactly one frame.
var ErrLength = errors.New("hex dump is not one frame")

// Headers are the column titles of the byte table.
var Headers = []string{"Byte", "Hex", "Dec Byte", "Dec Word", "Field"}

// Parse decodes a hex dump of one frame. Whitespace, colons and dashes
// between bytes are ignored, as is a leading 0x.
func Parse(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', '-':
			return -1
		}
		return r
	}, s)

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex dump: %w", err)
	}
	if len(data) != protocol.FrameSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrLength, len(data), protocol.FrameSize)
	}
	return data, nil
}

// Row is one line of the byte table.
type Row struct {
	Index  int
	Byte   byte
	Word   uint16
	Last   bool // no big-endian word starts at the final byte
	Fields []string
}

// WordString returns the big-endian word starting at the row, or N/A on
// the final byte.
func (r Row) WordString() string {
	if r.Last {
		return "N/A"
	}
	return fmt.Sprintf("%d", r.Word)
}

// Cells returns the row formatted for a table.
func (r Row) Cells() []string {
	return []string{
		fmt.Sprintf("%03d", r.Index),
		fmt.Sprintf("%02x", r.Byte),
		fmt.Sprintf("%d", r.Byte),
		r.WordString(),
		strings.Join(r.Fields, ", "),
	}
}

// Rows annotates every byte of data.
func Rows(data []byte) []Row {
	rows := make([]Row, len(data))
	for i, b := range data {
		row := Row{Index: i, Byte: b, Last: i+1 >= len(data), Fields: FieldsAt(i)}
		if !row.Last {
			row.Word = binary.BigEndian.Uint16(data[i:])
		}
		rows[i] = row
	}
	return rows
}

// Cells returns Rows(data) as table cells.
func Cells(data []byte) [][]string {
	rows := Rows(data)
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.Cells()
	}
	return cells
}

// WriteTable writes a plain-text byte table.
func WriteTable(w io.Writer, data []byte) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Byte | Hex | Dec Byte | Dec Word | Field")
	fmt.Fprintln(bw, "-----|-----|----------|----------|------")
	for _, r := range Rows(data) {
		fmt.Fprintf(bw, "%03d  | %02x  | %3d      | %-8s | %s\n",
			r.Index, r.Byte, r.Byte, r.WordString(), strings.Join(r.Fields, ", "))
	}
	return bw.Flush()
}

// WriteMarkdown writes the byte table as a Markdown table.
func WriteMarkdown(w io.Writer, data []byte) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "| Byte | Hex | Dec Byte | Dec Word | Field |")
	fmt.Fprintln(bw, "|------|-----|----------|----------|-------|")
	for _, r := range Rows(data) {
		fmt.Fprintf(bw, "| %03d | %02x | %3d | %s | %s |\n",
			r.Index, r.Byte, r.Byte, r.WordString(), strings.Join(r.Fields, ", "))
	}
	return bw.Flush()
}

// ByteInfo is the value at one index of a frame.
type ByteInfo struct {
	Row
}

// String renders the info in one line.
func (b ByteInfo) String() string {
	s := fmt.Sprintf("byte %d: value = 0x%02x (%d) / word value: %s", b.Index, b.Byte, b.Byte, b.WordString())
	if len(b.Fields) > 0 {
		s += " [" + strings.Join(b.Fields, ", ") + "]"
	}
	return s
}

// Info returns the byte and big-endian word at index i.
func Info(data []byte, i int) (ByteInfo, error) {
	if i < 0 || i >= len(data) {
		return ByteInfo{}, fmt.Errorf("byte index %d out of range [0, %d)", i, len(data))
	}
	return ByteInfo{Row: Rows(data)[i]}, nil
}
