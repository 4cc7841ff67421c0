package capture

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/muurk/aseko-local/internal/logging"
	"github.com/muurk/aseko-local/internal/protocol"
	"github.com/muurk/aseko-local/internal/server"
	"go.uber.org/zap"
)

// File names inside the capture directory.
const (
	FramesJSONL  = "frames.jsonl"
	FramesHexLog = "frames_hex.log"
	FramesBin    = "frames.bin"
	MirrorHexLog = "mirror_hex.log"
	MirrorBinLog = "mirror_bin.log"
	FlowratesLog = "flowrates.log"
	InfoLog      = "info.log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("capture writer closed")

// Record is one line of frames.jsonl.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Index      int64     `json:"index"`
	Session    string    `json:"session,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Serial     uint32    `json:"serial_number"`
	Length     int       `json:"length"`
	Hex        string    `json:"hex"`
	ASCII      string    `json:"ascii"`
}

// Writer appends raw frames to a set of files in one directory. Files are
// opened on first use and kept open until Close.
type Writer struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	files  map[string]*os.File
	index  int64
	closed bool
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("capture directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	return &Writer{
		dir:   dir,
		now:   time.Now,
		files: make(map[string]*os.File),
	}, nil
}

// Dir returns the capture directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Sink records a frame received from a device. It has the signature of
// server.BytesFunc so it can be installed as the raw sink.
func (w *Writer) Sink(ctx context.Context, frame []byte) error {
	now := w.now()
	rec := Record{
		Timestamp: now,
		Length:    len(frame),
		Hex:       hex.EncodeToString(frame),
		ASCII:     toASCII(frame),
	}
	if len(frame) >= protocol.IdentityLength {
		rec.Serial = binary.BigEndian.Uint32(frame)
	}
	if p, ok := server.PeerFromContext(ctx); ok {
		rec.Session = p.Session
		rec.RemoteAddr = p.RemoteAddr
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	w.index++
	rec.Index = w.index
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal capture record: %w", err)
	}

	if err := w.append(FramesJSONL, append(line, '\n')); err != nil {
		return err
	}
	if err := w.append(FramesHexLog, hexLine(now, frame)); err != nil {
		return err
	}
	return w.append(FramesBin, frame)
}

// MirrorSink records a frame that was written to the mirror. Errors are
// logged since the mirror worker has nobody to return them to.
func (w *Writer) MirrorSink(frame []byte) {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if err := w.append(MirrorHexLog, hexLine(now, frame)); err != nil {
		logging.Error("Failed to capture mirrored frame", zap.Error(err))
		return
	}
	if err := w.append(MirrorBinLog, frame); err != nil {
		logging.Error("Failed to capture mirrored frame", zap.Error(err))
	}
}

// Info appends a "timestamp [source] message" line to info.log.
func (w *Writer) Info(source, message string) error {
	return w.line(InfoLog, fmt.Sprintf("%s [%s] %s\n", w.now().Format(timestampLayout), source, message))
}

// Flowrates appends the unit's dosing pump flow rates to flowrates.log.
func (w *Writer) Flowrates(source string, state *protocol.DeviceState) error {
	if state == nil {
		return nil
	}
	return w.line(FlowratesLog, fmt.Sprintf("%s [%s] serial=%d chlor=%s ph_minus=%s ph_plus=%s algicide=%s floc=%s\n",
		w.now().Format(timestampLayout), source, state.SerialNumber,
		protocol.FormatInt(state.FlowrateChlor),
		protocol.FormatInt(state.FlowratePHMinus),
		protocol.FormatInt(state.FlowratePHPlus),
		protocol.FormatInt(state.FlowrateAlgicide),
		protocol.FormatInt(state.FlowrateFloc),
	))
}

func (w *Writer) line(name, s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.append(name, []byte(s))
}

// append must be called with mu held.
func (w *Writer) append(name string, data []byte) error {
	f, ok := w.files[name]
	if !ok {
		path := filepath.Join(w.dir, name)
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %w", err)
		}
		w.files[name] = f
		logging.Debug("Opened capture file", zap.String("filename", path))
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Close closes every open file. Later writes return ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	names := make([]string, 0, len(w.files))
	for name := range w.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := w.files[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	w.files = nil
	return errors.Join(errs...)
}

func hexLine(ts time.Time, frame []byte) []byte {
	return []byte(ts.Format(timestampLayout) + " " + hex.EncodeToString(frame) + "\n")
}

// toASCII replaces non-printable bytes with '.'.
func toASCII(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
