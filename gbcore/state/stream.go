// Package state implements the bidirectional traversal used for save-states.
//
// A single Sync method per component walks every mutable field in a fixed
// order; the Stream either copies the fields out to a buffer or loads them
// back, depending on its mode. Save and load share the one traversal, so the
// two directions cannot drift apart.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Mode selects the direction of a traversal.
type Mode int

const (
	// Save copies engine state into the stream.
	Save Mode = iota
	// Load copies stream contents back into engine state.
	Load
)

// ErrShortState is returned when a load runs out of data mid-traversal.
var ErrShortState = errors.New("state: unexpected end of state data")

// Syncer is implemented by every component that owns serializable state.
type Syncer interface {
	Sync(s *Stream)
}

// Stream walks component state in one direction. All accessors are no-ops
// after the first failure; check Err once at the end of a traversal.
type Stream struct {
	mode Mode
	w    io.Writer
	r    io.Reader
	err  error
	buf  [8]byte
}

// NewSaver returns a Stream that writes state to w.
func NewSaver(w io.Writer) *Stream {
	return &Stream{mode: Save, w: w}
}

// NewLoader returns a Stream that reads state back from r.
func NewLoader(r io.Reader) *Stream {
	return &Stream{mode: Load, r: r}
}

// Mode returns the direction of the traversal.
func (s *Stream) Mode() Mode { return s.mode }

// Err returns the first error encountered, if any.
func (s *Stream) Err() error { return s.err }

// Fail aborts the traversal with err. Later accessors become no-ops.
func (s *Stream) Fail(err error) { s.fail(err) }

func (s *Stream) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) write(b []byte) {
	if s.err != nil {
		return
	}
	if _, err := s.w.Write(b); err != nil {
		s.fail(fmt.Errorf("state: write: %w", err))
	}
}

func (s *Stream) read(b []byte) {
	if s.err != nil {
		return
	}
	if _, err := io.ReadFull(s.r, b); err != nil {
		s.fail(ErrShortState)
	}
}

// U8 syncs a single byte.
func (s *Stream) U8(v *uint8) {
	if s.mode == Save {
		s.buf[0] = *v
		s.write(s.buf[:1])
		return
	}
	s.read(s.buf[:1])
	if s.err == nil {
		*v = s.buf[0]
	}
}

// Bool syncs a boolean as one byte.
func (s *Stream) Bool(v *bool) {
	var b uint8
	if *v {
		b = 1
	}
	s.U8(&b)
	*v = b != 0
}

// U16 syncs a 16-bit value.
func (s *Stream) U16(v *uint16) {
	if s.mode == Save {
		binary.LittleEndian.PutUint16(s.buf[:2], *v)
		s.write(s.buf[:2])
		return
	}
	s.read(s.buf[:2])
	if s.err == nil {
		*v = binary.LittleEndian.Uint16(s.buf[:2])
	}
}

// U32 syncs a 32-bit value.
func (s *Stream) U32(v *uint32) {
	if s.mode == Save {
		binary.LittleEndian.PutUint32(s.buf[:4], *v)
		s.write(s.buf[:4])
		return
	}
	s.read(s.buf[:4])
	if s.err == nil {
		*v = binary.LittleEndian.Uint32(s.buf[:4])
	}
}

// U64 syncs a 64-bit value.
func (s *Stream) U64(v *uint64) {
	if s.mode == Save {
		binary.LittleEndian.PutUint64(s.buf[:8], *v)
		s.write(s.buf[:8])
		return
	}
	s.read(s.buf[:8])
	if s.err == nil {
		*v = binary.LittleEndian.Uint64(s.buf[:8])
	}
}

// I64 syncs a signed 64-bit value.
func (s *Stream) I64(v *int64) {
	u := uint64(*v)
	s.U64(&u)
	*v = int64(u)
}

// Int syncs an int as a signed 64-bit value.
func (s *Stream) Int(v *int) {
	i := int64(*v)
	s.I64(&i)
	*v = int(i)
}

// Bytes syncs a fixed-length byte slice in place. The slice length must be
// identical on both directions of the traversal.
func (s *Stream) Bytes(b []byte) {
	if s.mode == Save {
		s.write(b)
		return
	}
	s.read(b)
}

// U16s syncs a fixed-length slice of 16-bit values.
func (s *Stream) U16s(vs []uint16) {
	for i := range vs {
		s.U16(&vs[i])
	}
}

// U32s syncs a fixed-length slice of 32-bit values.
func (s *Stream) U32s(vs []uint32) {
	for i := range vs {
		s.U32(&vs[i])
	}
}
