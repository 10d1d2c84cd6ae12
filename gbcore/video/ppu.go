// Package video implements the pixel processing unit: the mode state
// machine, scanline rendering for both the monochrome and color models,
// and the host-facing frame buffer.
package video

import (
	"github.com/valerio/go-gbcore/gbcore/addr"
	"github.com/valerio/go-gbcore/gbcore/bit"
	"github.com/valerio/go-gbcore/gbcore/state"
)

// Line timing in 4 MiHz cycles.
const (
	CyclesPerLine = 456
	oamScanCycles = 80
	linesPerFrame = 154
	// FrameCycles is one complete frame.
	FrameCycles = CyclesPerLine * linesPerFrame
)

// PPU modes as reported in STAT bits 0-1.
const (
	modeHBlank uint8 = iota
	modeVBlank
	modeOAMScan
	modeDraw
)

// Layer mask bits for SetLayers.
const (
	LayerBG = 1 << iota
	LayerOBJ
	LayerWindow
)

// Memory gives the PPU access to video memory and the hblank notification
// used by VRAM DMA.
type Memory interface {
	VRAM() []uint8
	OAM() []uint8
	OnHBlank()
}

// PPU is the pixel processing unit. Rendering is per-scanline: the whole
// line is drawn when mode 3 begins.
type PPU struct {
	mem Memory
	irq func(addr.Interrupt)
	cgb bool

	fb FrameBuffer

	lcdc uint8
	stat uint8
	scy  uint8
	scx  uint8
	ly   uint8
	lyc  uint8
	bgp  uint8
	obp0 uint8
	obp1 uint8
	wy   uint8
	wx   uint8

	mode       uint8
	lineClock  int
	mode3Len   int
	windowLine int
	frameDone  bool

	// CGB palette RAM and index ports
	bcps   uint8
	ocps   uint8
	bgPal  [64]uint8
	objPal [64]uint8

	dmgPal [3][4]uint32
	cgbLUT []uint32

	layerMask uint8

	scanlineCB     func(line int)
	scanlineTarget int
}

// New builds a PPU over the given memory. irq requests interrupts; cgb
// selects color model behavior.
func New(mem Memory, irq func(addr.Interrupt), cgb bool) *PPU {
	p := &PPU{
		mem:            mem,
		irq:            irq,
		cgb:            cgb,
		layerMask:      LayerBG | LayerOBJ | LayerWindow,
		scanlineTarget: -1,
		mode:           modeOAMScan,
	}
	for i := range p.dmgPal {
		p.dmgPal[i] = defaultDmgShades
	}
	return p
}

// SetLayers selects which layers render; cleared layers draw as if absent.
// Timing is unaffected.
func (p *PPU) SetLayers(mask uint8) { p.layerMask = mask }

// SetDmgPaletteColor overrides one host color of a DMG palette slot
// (PaletteBG, PaletteSP1, PaletteSP2). colorNum is the DMG color number
// 0-3. Out-of-range arguments are ignored.
func (p *PPU) SetDmgPaletteColor(palNum, colorNum int, rgb32 uint32) {
	if palNum < 0 || palNum >= len(p.dmgPal) || colorNum < 0 || colorNum > 3 {
		return
	}
	p.dmgPal[palNum][colorNum] = rgb32
}

// SetCgbPalette installs a 32768-entry lookup table mapping 15-bit BGR
// values to host colors. A short or nil table restores the default DAC
// conversion.
func (p *PPU) SetCgbPalette(lut []uint32) {
	if len(lut) < 0x8000 {
		p.cgbLUT = nil
		return
	}
	p.cgbLUT = lut[:0x8000]
}

// SetScanlineCallback installs a callback fired right before the given
// scanline is drawn. A negative line or nil callback disables it.
func (p *PPU) SetScanlineCallback(cb func(line int), line int) {
	p.scanlineCB = cb
	p.scanlineTarget = line
	if cb == nil {
		p.scanlineTarget = -1
	}
}

// FrameDone reports and clears the frame-completed flag.
func (p *PPU) FrameDone() bool {
	done := p.frameDone
	p.frameDone = false
	return done
}

// BlitTo copies the last completed frame to dst with the given pitch.
func (p *PPU) BlitTo(dst []uint32, pitch int) {
	p.fb.BlitTo(dst, pitch)
}

// Frame returns the last completed frame, row-major.
func (p *PPU) Frame() []uint32 { return p.fb.Front() }

// Tick advances the PPU by the given number of 4 MiHz cycles.
func (p *PPU) Tick(cycles int) {
	if !bit.IsSet(7, p.lcdc) {
		return
	}
	p.lineClock += cycles
	for p.stepMode() {
	}
}

// stepMode performs at most one mode transition, reporting whether another
// may be due.
func (p *PPU) stepMode() bool {
	switch p.mode {
	case modeOAMScan:
		if p.lineClock < oamScanCycles {
			return false
		}
		p.setMode(modeDraw)
		p.renderLine()
	case modeDraw:
		if p.lineClock < oamScanCycles+p.mode3Len {
			return false
		}
		p.setMode(modeHBlank)
		p.mem.OnHBlank()
	case modeHBlank:
		if p.lineClock < CyclesPerLine {
			return false
		}
		p.lineClock -= CyclesPerLine
		p.setLY(p.ly + 1)
		if p.ly == ScreenHeight {
			p.enterVBlank()
		} else {
			p.startLine()
		}
	case modeVBlank:
		if p.lineClock < CyclesPerLine {
			return false
		}
		p.lineClock -= CyclesPerLine
		if p.ly == linesPerFrame-1 {
			p.setLY(0)
			p.windowLine = 0
			p.startLine()
		} else {
			p.setLY(p.ly + 1)
			p.notifyScanline()
		}
	}
	return true
}

func (p *PPU) startLine() {
	p.setMode(modeOAMScan)
	p.notifyScanline()
}

func (p *PPU) enterVBlank() {
	p.setMode(modeVBlank)
	p.fb.Swap()
	p.frameDone = true
	p.irq(addr.VBlankInterrupt)
	p.notifyScanline()
}

// notifyScanline fires the host callback at the start of a line, for any
// line in 0..153.
func (p *PPU) notifyScanline() {
	if p.scanlineCB != nil && int(p.ly) == p.scanlineTarget {
		p.scanlineCB(int(p.ly))
	}
}

// setMode updates STAT and raises the STAT interrupt when the new mode's
// source bit is enabled.
func (p *PPU) setMode(mode uint8) {
	p.mode = mode
	statBit := -1
	switch mode {
	case modeHBlank:
		statBit = 3
	case modeVBlank:
		statBit = 4
	case modeOAMScan:
		statBit = 5
	}
	if statBit >= 0 && bit.IsSet(uint8(statBit), p.stat) {
		p.irq(addr.LCDSTATInterrupt)
	}
}

// setLY updates LY and the LYC coincidence, raising the STAT interrupt on
// a match when enabled.
func (p *PPU) setLY(ly uint8) {
	p.ly = ly
	if p.ly == p.lyc {
		p.stat = bit.Set(2, p.stat)
		if bit.IsSet(6, p.stat) {
			p.irq(addr.LCDSTATInterrupt)
		}
	} else {
		p.stat = bit.Clear(2, p.stat)
	}
}

// ReadRegister services CPU reads of the LCD and palette registers.
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		v := 0x80 | p.stat&0x7C
		if bit.IsSet(7, p.lcdc) {
			v |= p.mode
		}
		return v
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.ly
	case addr.LYC:
		return p.lyc
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	case addr.BCPS:
		return p.bcps | 0x40
	case addr.BCPD:
		return p.bgPal[p.bcps&0x3F]
	case addr.OCPS:
		return p.ocps | 0x40
	case addr.OCPD:
		return p.objPal[p.ocps&0x3F]
	}
	return 0xFF
}

// WriteRegister services CPU writes to the LCD and palette registers.
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address {
	case addr.LCDC:
		wasOn := bit.IsSet(7, p.lcdc)
		p.lcdc = value
		if on := bit.IsSet(7, value); on != wasOn {
			if on {
				p.lineClock = 0
				p.setLY(0)
				p.windowLine = 0
				p.startLine()
			} else {
				p.ly = 0
				p.lineClock = 0
				p.mode = modeHBlank
			}
		}
	case addr.STAT:
		p.stat = p.stat&0x07 | value&0x78
	case addr.SCY:
		p.scy = value
	case addr.SCX:
		p.scx = value
	case addr.LY:
		// read-only
	case addr.LYC:
		p.lyc = value
		if bit.IsSet(7, p.lcdc) {
			p.setLY(p.ly)
		}
	case addr.BGP:
		p.bgp = value
	case addr.OBP0:
		p.obp0 = value
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
	case addr.WX:
		p.wx = value
	case addr.BCPS:
		p.bcps = value & 0xBF
	case addr.BCPD:
		p.bgPal[p.bcps&0x3F] = value
		if bit.IsSet(7, p.bcps) {
			p.bcps = p.bcps&0x80 | (p.bcps+1)&0x3F
		}
	case addr.OCPS:
		p.ocps = value & 0xBF
	case addr.OCPD:
		p.objPal[p.ocps&0x3F] = value
		if bit.IsSet(7, p.ocps) {
			p.ocps = p.ocps&0x80 | (p.ocps+1)&0x3F
		}
	}
}

// Reset restores power-on state. Host palettes and layer selection are
// host configuration and survive.
func (p *PPU) Reset() {
	p.lcdc = 0
	p.stat = 0
	p.scy = 0
	p.scx = 0
	p.ly = 0
	p.lyc = 0
	p.bgp = 0
	p.obp0 = 0
	p.obp1 = 0
	p.wy = 0
	p.wx = 0
	p.mode = modeOAMScan
	p.lineClock = 0
	p.mode3Len = 0
	p.windowLine = 0
	p.frameDone = false
	p.bcps = 0
	p.ocps = 0
	p.bgPal = [64]uint8{}
	p.objPal = [64]uint8{}
}

// Sync serializes the emulated PPU state. Host configuration (palettes,
// layer mask, callbacks) is not part of it.
func (p *PPU) Sync(s *state.Stream) {
	s.U8(&p.lcdc)
	s.U8(&p.stat)
	s.U8(&p.scy)
	s.U8(&p.scx)
	s.U8(&p.ly)
	s.U8(&p.lyc)
	s.U8(&p.bgp)
	s.U8(&p.obp0)
	s.U8(&p.obp1)
	s.U8(&p.wy)
	s.U8(&p.wx)
	s.U8(&p.mode)
	s.Int(&p.lineClock)
	s.Int(&p.mode3Len)
	s.Int(&p.windowLine)
	s.U8(&p.bcps)
	s.U8(&p.ocps)
	s.Bytes(p.bgPal[:])
	s.Bytes(p.objPal[:])
	s.Bool(&p.frameDone)
	p.fb.Sync(s)
}
