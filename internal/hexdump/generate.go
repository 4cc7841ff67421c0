package hexdump

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"go/format"
	"go/token"
	"io"

	"github.com/muurk/aseko-local/internal/protocol"
)

// DefaultFuncName is the name Generate uses when none is given.
const DefaultFuncName = "frameFromDump"

// Generate writes Go source for a function that rebuilds data from a
// 0xff-filled buffer, one annotated statement per mapped field. The
// function needs the bytes and encoding/binary imports.
func Generate(w io.Writer, data []byte, funcName string) error {
	if funcName == "" {
		funcName = DefaultFuncName
	}
	if !token.IsIdentifier(funcName) {
		return fmt.Errorf("invalid function name %q", funcName)
	}
	if len(data) != protocol.FrameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrLength, len(data), protocol.FrameSize)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// %s rebuilds a captured frame.\n", funcName)
	fmt.Fprintf(&buf, "func %s() []byte {\n", funcName)
	fmt.Fprintf(&buf, "data := bytes.Repeat([]byte{0xff}, %d)\n", protocol.FrameSize)
	for _, f := range Fields {
		fmt.Fprintln(&buf, statement(data, f))
	}
	fmt.Fprintln(&buf, "return data")
	fmt.Fprintln(&buf, "}")

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("format generated source: %w", err)
	}
	_, err = w.Write(src)
	return err
}

func statement(data []byte, f Field) string {
	raw := data[f.Offset:f.End()]
	comment := fmt.Sprintf("// %s / HEX: 0x%s", f.Name, hex.EncodeToString(raw))
	if f.Comment != "" {
		comment += " (" + f.Comment + ")"
	}

	switch f.Size {
	case 1:
		return fmt.Sprintf("data[%d] = %d %s", f.Offset, raw[0], comment)
	case 2:
		return fmt.Sprintf("binary.BigEndian.PutUint16(data[%d:%d], %d) %s",
			f.Offset, f.End(), binary.BigEndian.Uint16(raw), comment)
	case 4:
		return fmt.Sprintf("binary.BigEndian.PutUint32(data[%d:%d], %d) %s",
			f.Offset, f.End(), binary.BigEndian.Uint32(raw), comment)
	default:
		return fmt.Sprintf("copy(data[%d:%d], %#v) %s", f.Offset, f.End(), raw, comment)
	}
}
