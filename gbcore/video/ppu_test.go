package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-gbcore/gbcore/addr"
)

type fakeMem struct {
	vram    [0x4000]uint8
	oam     [0xA0]uint8
	hblanks int
}

func (m *fakeMem) VRAM() []uint8 { return m.vram[:] }
func (m *fakeMem) OAM() []uint8  { return m.oam[:] }
func (m *fakeMem) OnHBlank()     { m.hblanks++ }

type irqLog struct {
	fired []addr.Interrupt
}

func (l *irqLog) request(i addr.Interrupt) { l.fired = append(l.fired, i) }

func (l *irqLog) count(i addr.Interrupt) int {
	n := 0
	for _, f := range l.fired {
		if f == i {
			n++
		}
	}
	return n
}

func newTestPPU(cgb bool) (*PPU, *fakeMem, *irqLog) {
	mem := &fakeMem{}
	log := &irqLog{}
	p := New(mem, log.request, cgb)
	return p, mem, log
}

func TestFrameTiming(t *testing.T) {
	p, mem, log := newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x91)

	p.Tick(FrameCycles)

	assert.True(t, p.FrameDone())
	assert.False(t, p.FrameDone(), "flag clears on read")
	assert.Equal(t, uint8(0), p.ReadRegister(addr.LY), "LY wrapped to 0")
	assert.Equal(t, 1, log.count(addr.VBlankInterrupt))
	assert.Equal(t, ScreenHeight, mem.hblanks, "one hblank per visible line")
}

func TestLYAdvancesPerLine(t *testing.T) {
	p, _, _ := newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x91)

	p.Tick(CyclesPerLine*10 + 4)

	assert.Equal(t, uint8(10), p.ReadRegister(addr.LY))
}

func TestModeSequence(t *testing.T) {
	p, _, _ := newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x91)

	assert.Equal(t, modeOAMScan, p.ReadRegister(addr.STAT)&0x03)

	p.Tick(oamScanCycles)
	assert.Equal(t, modeDraw, p.ReadRegister(addr.STAT)&0x03)

	p.Tick(p.mode3Len)
	assert.Equal(t, modeHBlank, p.ReadRegister(addr.STAT)&0x03)

	p.Tick(CyclesPerLine * ScreenHeight)
	assert.Equal(t, modeVBlank, p.ReadRegister(addr.STAT)&0x03)
}

func TestMode3LengthVariesWithScrollAndSprites(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x93)
	p.Tick(oamScanCycles)
	require.Equal(t, 172, p.mode3Len, "baseline with no sprites, scx 0")

	p, mem, _ = newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x93)
	p.WriteRegister(addr.SCX, 5)
	// two sprites on line 0
	for i := 0; i < 2; i++ {
		mem.oam[i*4] = 16
		mem.oam[i*4+1] = uint8(8 + 8*i)
	}
	p.Tick(oamScanCycles)
	assert.Equal(t, 172+5+20, p.mode3Len)
}

func TestLYCCoincidenceInterrupt(t *testing.T) {
	p, _, log := newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x91)
	p.WriteRegister(addr.LYC, 5)
	p.WriteRegister(addr.STAT, 0x40)

	p.Tick(CyclesPerLine * 5)

	assert.Equal(t, 1, log.count(addr.LCDSTATInterrupt))
	assert.NotZero(t, p.ReadRegister(addr.STAT)&0x04, "coincidence flag set")

	p.Tick(CyclesPerLine)
	assert.Zero(t, p.ReadRegister(addr.STAT)&0x04)
}

func TestScanlineCallback(t *testing.T) {
	p, _, _ := newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x91)

	var lines []int
	p.SetScanlineCallback(func(line int) { lines = append(lines, line) }, 40)

	p.Tick(FrameCycles)
	assert.Equal(t, []int{40}, lines, "fires once per frame at the target line")

	p.SetScanlineCallback(nil, 40)
	p.Tick(FrameCycles)
	assert.Len(t, lines, 1)
}

func TestScanlineCallbackDuringVBlank(t *testing.T) {
	for _, target := range []int{144, 145, 153} {
		p, _, _ := newTestPPU(false)
		p.WriteRegister(addr.LCDC, 0x91)

		var lines []int
		p.SetScanlineCallback(func(line int) { lines = append(lines, line) }, target)

		p.Tick(FrameCycles)
		assert.Equal(t, []int{target}, lines, "vblank lines notify like visible ones")
	}
}

func TestLCDOff(t *testing.T) {
	p, _, log := newTestPPU(false)
	p.WriteRegister(addr.LCDC, 0x91)
	p.Tick(CyclesPerLine * 20)

	p.WriteRegister(addr.LCDC, 0x11)
	assert.Equal(t, uint8(0), p.ReadRegister(addr.LY))
	assert.Zero(t, p.ReadRegister(addr.STAT)&0x03, "mode reads 0 with the LCD off")

	before := len(log.fired)
	p.Tick(FrameCycles)
	assert.Equal(t, uint8(0), p.ReadRegister(addr.LY), "no progress with the LCD off")
	assert.Len(t, log.fired, before)
	assert.False(t, p.frameDone)
}

// paintTile fills one tile with a solid DMG color number.
func paintTile(mem *fakeMem, tile int, colorNum uint8) {
	var lo, hi uint8
	if colorNum&1 != 0 {
		lo = 0xFF
	}
	if colorNum&2 != 0 {
		hi = 0xFF
	}
	for row := 0; row < 8; row++ {
		mem.vram[tile*16+row*2] = lo
		mem.vram[tile*16+row*2+1] = hi
	}
}

func renderFrame(p *PPU) []uint32 {
	p.Tick(FrameCycles)
	return p.Frame()
}

func TestBackgroundRendering(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4) // identity shade mapping

	paintTile(mem, 1, 2)
	mem.vram[0x1800] = 1 // map (0,0) -> tile 1

	p.WriteRegister(addr.LCDC, 0x91)
	frame := renderFrame(p)

	assert.Equal(t, defaultDmgShades[2], frame[0], "tile 1 pixel")
	assert.Equal(t, defaultDmgShades[0], frame[8], "tile 0 is blank")
}

func TestBackgroundScroll(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4)

	paintTile(mem, 1, 3)
	mem.vram[0x1800+1] = 1 // map (1,0) -> tile 1

	p.WriteRegister(addr.SCX, 8)
	p.WriteRegister(addr.LCDC, 0x91)
	frame := renderFrame(p)

	assert.Equal(t, defaultDmgShades[3], frame[0], "scroll brings tile (1,0) to the left edge")
}

func TestSpriteRendering(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4)
	p.WriteRegister(addr.OBP0, 0xE4)

	paintTile(mem, 2, 3)
	mem.oam[0] = 16 // y: line 0
	mem.oam[1] = 8  // x: column 0
	mem.oam[2] = 2
	mem.oam[3] = 0x00

	p.WriteRegister(addr.LCDC, 0x93)
	frame := renderFrame(p)

	assert.Equal(t, defaultDmgShades[3], frame[0], "sprite pixel over blank background")
	assert.Equal(t, defaultDmgShades[0], frame[8], "background past the sprite")
}

func TestSpriteBehindBackground(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4)
	p.WriteRegister(addr.OBP0, 0xE4)

	paintTile(mem, 1, 1)
	mem.vram[0x1800] = 1
	paintTile(mem, 2, 3)
	mem.oam[0] = 16
	mem.oam[1] = 8
	mem.oam[2] = 2
	mem.oam[3] = 0x80 // behind non-zero background

	p.WriteRegister(addr.LCDC, 0x93)
	frame := renderFrame(p)

	assert.Equal(t, defaultDmgShades[1], frame[0], "background color 1 hides the sprite")
}

func TestDmgSpritePriorityByX(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.OBP0, 0xE4)
	p.WriteRegister(addr.OBP1, 0x00)

	paintTile(mem, 2, 3)
	// sprite 0 at x=4, sprite 1 overlapping at x=0; lower x wins
	mem.oam[0], mem.oam[1], mem.oam[2], mem.oam[3] = 16, 12, 2, 0x00
	mem.oam[4], mem.oam[5], mem.oam[6], mem.oam[7] = 16, 8, 2, 0x10

	p.WriteRegister(addr.LCDC, 0x93)
	frame := renderFrame(p)

	assert.Equal(t, p.dmgPal[PaletteSP2][0], frame[4], "sprite 1 wins the overlap on the monochrome model")
}

func TestWindowRendering(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4)

	paintTile(mem, 1, 3)
	// window map at 0x9C00 all pointing at tile 1
	for i := 0; i < 32*32; i++ {
		mem.vram[0x1C00+i] = 1
	}

	p.WriteRegister(addr.WY, 0)
	p.WriteRegister(addr.WX, 7+80) // window covers the right half
	p.WriteRegister(addr.LCDC, 0xF1)
	frame := renderFrame(p)

	assert.Equal(t, defaultDmgShades[0], frame[79], "background left of the window")
	assert.Equal(t, defaultDmgShades[3], frame[80], "window pixel")
}

func TestLayerMasking(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4)

	paintTile(mem, 1, 3)
	mem.vram[0x1800] = 1
	paintTile(mem, 2, 3)
	mem.oam[0], mem.oam[1], mem.oam[2] = 16, 8, 2

	p.SetLayers(0)
	p.WriteRegister(addr.LCDC, 0x93)
	frame := renderFrame(p)

	assert.Equal(t, defaultDmgShades[0], frame[0], "all layers masked")
}

func TestSetDmgPaletteColor(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4)

	paintTile(mem, 1, 3)
	mem.vram[0x1800] = 1

	p.SetDmgPaletteColor(PaletteBG, 3, 0x00FF00)
	p.SetDmgPaletteColor(99, 0, 0x123456) // ignored
	p.WriteRegister(addr.LCDC, 0x91)
	frame := renderFrame(p)

	assert.Equal(t, uint32(0x00FF00), frame[0])
}

func TestCgbPaletteRAM(t *testing.T) {
	p, _, _ := newTestPPU(true)

	// auto-increment writes
	p.WriteRegister(addr.BCPS, 0x80)
	p.WriteRegister(addr.BCPD, 0x1F) // color 0 low: red 31
	p.WriteRegister(addr.BCPD, 0x00)

	p.WriteRegister(addr.BCPS, 0x00)
	assert.Equal(t, uint8(0x1F), p.ReadRegister(addr.BCPD))
	assert.Equal(t, uint8(0x40), p.ReadRegister(addr.BCPS)&0x40, "bit 6 reads as 1")

	assert.Equal(t, uint32(0xFF0000), p.cgbColor(p.bgPal[:], 0, 0), "15-bit red expands to full red")
}

func TestCgbBackgroundUsesPaletteRAM(t *testing.T) {
	p, mem, _ := newTestPPU(true)

	paintTile(mem, 1, 1)
	mem.vram[0x1800] = 1
	// palette 0 color 1 = pure blue
	p.WriteRegister(addr.BCPS, 2)
	p.WriteRegister(addr.BCPD, 0x00)
	p.WriteRegister(addr.BCPS, 3)
	p.WriteRegister(addr.BCPD, 0x7C)

	p.WriteRegister(addr.LCDC, 0x91)
	frame := renderFrame(p)

	assert.Equal(t, uint32(0x0000FF), frame[0])
}

func TestSetCgbPalette(t *testing.T) {
	p, mem, _ := newTestPPU(true)

	paintTile(mem, 1, 1)
	mem.vram[0x1800] = 1
	p.WriteRegister(addr.BCPS, 2)
	p.WriteRegister(addr.BCPD, 0x1F)

	lut := make([]uint32, 0x8000)
	lut[0x1F] = 0xDEADBE
	p.SetCgbPalette(lut)

	p.WriteRegister(addr.LCDC, 0x91)
	frame := renderFrame(p)

	assert.Equal(t, uint32(0xDEADBE), frame[0])
}

func TestBlitToPitch(t *testing.T) {
	p, mem, _ := newTestPPU(false)
	p.WriteRegister(addr.BGP, 0xE4)
	paintTile(mem, 1, 3)
	mem.vram[0x1800] = 1
	p.WriteRegister(addr.LCDC, 0x91)
	p.Tick(FrameCycles)

	pitch := ScreenWidth + 16
	dst := make([]uint32, pitch*ScreenHeight)
	p.BlitTo(dst, pitch)

	assert.Equal(t, defaultDmgShades[3], dst[0])
	assert.Equal(t, p.Frame()[ScreenWidth], dst[pitch], "rows land at the pitch stride")
}
