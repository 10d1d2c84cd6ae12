package video

import "github.com/valerio/go-gbcore/gbcore/state"

// Screen dimensions in pixels.
const (
	ScreenWidth  = 160
	ScreenHeight = 144
)

// FrameBuffer double-buffers the rendered image so a completed frame stays
// stable while the next one is drawn.
type FrameBuffer struct {
	buffers [2][ScreenWidth * ScreenHeight]uint32
	back    int
}

// Line returns the writable back-buffer slice for one scanline.
func (f *FrameBuffer) Line(y int) []uint32 {
	return f.buffers[f.back][y*ScreenWidth : (y+1)*ScreenWidth]
}

// Swap publishes the back buffer as the completed frame.
func (f *FrameBuffer) Swap() {
	f.back ^= 1
}

// BlitTo copies the completed frame into dst with the given row pitch in
// pixels. dst must hold at least (ScreenHeight-1)*pitch+ScreenWidth pixels.
func (f *FrameBuffer) BlitTo(dst []uint32, pitch int) {
	front := &f.buffers[f.back^1]
	for y := 0; y < ScreenHeight; y++ {
		copy(dst[y*pitch:y*pitch+ScreenWidth], front[y*ScreenWidth:(y+1)*ScreenWidth])
	}
}

// Front returns the completed frame as a flat slice, row-major.
func (f *FrameBuffer) Front() []uint32 {
	return f.buffers[f.back^1][:]
}

// Sync serializes both buffers and the back index so a restored instance
// keeps the lines already drawn mid-frame.
func (f *FrameBuffer) Sync(s *state.Stream) {
	s.U32s(f.buffers[0][:])
	s.U32s(f.buffers[1][:])
	s.Int(&f.back)
}
