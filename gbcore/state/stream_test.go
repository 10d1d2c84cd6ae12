package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture is a stand-in component with one field of every synced type.
type fixture struct {
	b    uint8
	flag bool
	w    uint16
	d    uint32
	q    uint64
	i    int64
	n    int
	mem  []byte
	pal  []uint32
}

func (f *fixture) Sync(s *Stream) {
	s.U8(&f.b)
	s.Bool(&f.flag)
	s.U16(&f.w)
	s.U32(&f.d)
	s.U64(&f.q)
	s.I64(&f.i)
	s.Int(&f.n)
	s.Bytes(f.mem)
	s.U32s(f.pal)
}

func TestRoundTrip(t *testing.T) {
	src := &fixture{
		b:    0xAB,
		flag: true,
		w:    0xBEEF,
		d:    0xDEADBEEF,
		q:    0x0123456789ABCDEF,
		i:    -42,
		n:    -1,
		mem:  []byte{1, 2, 3, 4},
		pal:  []uint32{0xFF00FF, 0x00FF00},
	}

	var buf bytes.Buffer
	saver := NewSaver(&buf)
	src.Sync(saver)
	require.NoError(t, saver.Err())

	dst := &fixture{mem: make([]byte, 4), pal: make([]uint32, 2)}
	loader := NewLoader(&buf)
	dst.Sync(loader)
	require.NoError(t, loader.Err())

	assert.Equal(t, src, dst)
}

func TestShortData(t *testing.T) {
	dst := &fixture{mem: make([]byte, 4), pal: make([]uint32, 2)}
	loader := NewLoader(bytes.NewReader([]byte{1, 2, 3}))
	dst.Sync(loader)
	assert.ErrorIs(t, loader.Err(), ErrShortState)
}

func TestErrorIsSticky(t *testing.T) {
	loader := NewLoader(bytes.NewReader(nil))
	var v uint8
	loader.U8(&v)
	first := loader.Err()
	require.Error(t, first)

	// further syncs must not clobber the original error or touch targets
	v = 0x55
	loader.U8(&v)
	assert.Equal(t, first, loader.Err())
	assert.Equal(t, uint8(0x55), v)
}
