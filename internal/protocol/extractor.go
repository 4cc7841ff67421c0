package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Extractor cuts a TCP byte stream into fixed-size candidate frames. It is
// owned by a single connection and is not safe for concurrent use.
type Extractor struct {
	buf  []byte
	skip int
}

// NewExtractor returns an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{buf: make([]byte, 0, 2*FrameSize)}
}

// Feed appends p to the internal buffer and returns every complete
// candidate frame, oldest first. Returned frames are copies; bytes past the
// last complete frame stay buffered.
func (e *Extractor) Feed(p []byte) [][]byte {
	e.Push(p)

	var frames [][]byte
	for {
		frame, ok := e.Next()
		if !ok {
			return frames
		}
		frames = append(frames, frame)
	}
}

// Push appends p to the internal buffer without cutting frames.
func (e *Extractor) Push(p []byte) {
	if e.skip > 0 {
		n := min(e.skip, len(p))
		p = p[n:]
		e.skip -= n
	}
	e.buf = append(e.buf, p...)
}

// Next removes and returns the leading candidate frame, or false when fewer
// than FrameSize bytes are buffered.
func (e *Extractor) Next() ([]byte, bool) {
	if len(e.buf) < FrameSize {
		return nil, false
	}
	frame := make([]byte, FrameSize)
	copy(frame, e.buf[:FrameSize])
	e.consume(FrameSize)
	return frame, true
}

// Skip discards the next n bytes of the stream, including bytes that have
// not arrived yet. After Resync reports a shift k, Skip(k) moves the cut
// point so the following frames arrive aligned.
func (e *Extractor) Skip(n int) {
	if n <= 0 {
		return
	}
	m := min(n, len(e.buf))
	e.consume(m)
	e.skip += n - m
}

func (e *Extractor) consume(n int) {
	e.buf = e.buf[n:]
	// Compact so the backing array does not grow without bound.
	if len(e.buf) == 0 {
		e.buf = e.buf[:0:cap(e.buf)]
	} else if cap(e.buf) > 4*FrameSize {
		e.buf = append(make([]byte, 0, 2*FrameSize), e.buf...)
	}
}

// Buffered returns the number of bytes waiting for a complete frame.
func (e *Extractor) Buffered() int {
	return len(e.buf)
}

// Reset discards buffered bytes.
func (e *Extractor) Reset() {
	e.buf = e.buf[:0]
	e.skip = 0
}

// markersAt reports whether the three sub-block markers and the repeated
// serial number line up when the frame is read starting at offset k
// (indices wrap around the frame).
func markersAt(frame []byte, k int) bool {
	at := func(i int) byte { return frame[(k+i)%FrameSize] }

	if at(MarkerOffsetBlock1) != MarkerBlock1 ||
		at(MarkerOffsetBlock2) != MarkerBlock2 ||
		at(MarkerOffsetBlock3) != MarkerBlock3 {
		return false
	}
	for i := 0; i < IdentityLength; i++ {
		id := at(i)
		if at(BlockSize+i) != id || at(2*BlockSize+i) != id {
			return false
		}
	}
	return true
}

// Aligned reports whether the frame's structural markers are in place
// without any rotation.
func Aligned(frame []byte) bool {
	return len(frame) == FrameSize && markersAt(frame, 0)
}

// Resync searches offsets 0..FrameSize-1 for the first alignment at which
// the structural markers hold and returns the frame rotated left by that
// offset together with the offset. An aligned frame is returned unchanged
// with offset 0.
func Resync(frame []byte) ([]byte, int, error) {
	if len(frame) != FrameSize {
		return nil, 0, newFrameError(ErrKindMalformed, len(frame), frame,
			"frame is %d bytes, want %d", len(frame), FrameSize)
	}

	for k := 0; k < FrameSize; k++ {
		if !markersAt(frame, k) {
			continue
		}
		if k == 0 {
			return frame, 0, nil
		}
		return Rotate(frame, k), k, nil
	}

	return nil, 0, newFrameError(ErrKindResyncExhausted, -1, frame,
		"no alignment found in frame %s", hex.EncodeToString(frame))
}

// Rotate returns a copy of frame rotated left by k bytes.
func Rotate(frame []byte, k int) []byte {
	n := len(frame)
	if n == 0 {
		return nil
	}
	k = ((k % n) + n) % n
	out := make([]byte, 0, n)
	out = append(out, frame[k:]...)
	out = append(out, frame[:k]...)
	return out
}

// CheckPlausibility rejects frames whose pH or required pH fall outside
// physically sensible bounds. Misaligned or corrupted data almost always
// trips this check.
func CheckPlausibility(frame []byte) error {
	if len(frame) != FrameSize {
		return newFrameError(ErrKindMalformed, len(frame), frame,
			"frame is %d bytes, want %d", len(frame), FrameSize)
	}

	phRaw := word(frame, OffsetPH)
	ph := float64(phRaw) / ScalePH
	if ph < MinPH || ph > MaxPH {
		return newFrameError(ErrKindImplausible, int(phRaw), frame,
			"pH %.2f outside [%g, %g]", ph, MinPH, MaxPH)
	}

	reqRaw := frame[OffsetRequiredPH]
	required := float64(reqRaw) / ScaleRequiredPH
	if required < MinRequiredPH || required > MaxRequiredPH {
		return newFrameError(ErrKindImplausible, int(reqRaw), frame,
			"required pH %.1f outside [%g, %g]", required, MinRequiredPH, MaxRequiredPH)
	}
	return nil
}

// Identity returns the serial number bytes repeated in each sub-block, or
// an error when they disagree.
func Identity(frame []byte) ([]byte, error) {
	if len(frame) != FrameSize {
		return nil, fmt.Errorf("frame is %d bytes, want %d", len(frame), FrameSize)
	}
	id := frame[:IdentityLength]
	if !bytes.Equal(id, frame[BlockSize:BlockSize+IdentityLength]) ||
		!bytes.Equal(id, frame[2*BlockSize:2*BlockSize+IdentityLength]) {
		return nil, fmt.Errorf("sub-block identities disagree: %s", hex.EncodeToString(frame))
	}
	return append([]byte(nil), id...), nil
}
