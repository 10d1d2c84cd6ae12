package video

import (
	"sort"

	"github.com/valerio/go-gbcore/gbcore/bit"
)

// tile map attribute bits (CGB, VRAM bank 1)
const (
	attrPalette  = 0x07
	attrBank     = 0x08
	attrXFlip    = 0x20
	attrYFlip    = 0x40
	attrPriority = 0x80
)

type spriteInfo struct {
	x     int
	y     int
	tile  uint8
	attr  uint8
	index int
}

// renderLine draws the current scanline into the back buffer and fixes the
// mode 3 length from the fetcher stalls it implies.
func (p *PPU) renderLine() {
	line := p.fb.Line(int(p.ly))
	vram := p.mem.VRAM()

	var bgColor [ScreenWidth]uint8
	var bgPrio [ScreenWidth]bool

	windowDrawn := p.drawBackground(line, vram, &bgColor, &bgPrio)

	sprites := p.collectSprites()
	if p.layerMask&LayerOBJ != 0 {
		p.drawSprites(line, vram, sprites, &bgColor, &bgPrio)
	}

	// each sprite stalls the fetcher; the low scroll bits and the window
	// restart add on top of the 172-cycle minimum
	p.mode3Len = 172 + int(p.scx&7) + 10*len(sprites)
	if windowDrawn {
		p.mode3Len += 6
		p.windowLine++
	}
}

func (p *PPU) drawBackground(line []uint32, vram []uint8, bgColor *[ScreenWidth]uint8, bgPrio *[ScreenWidth]bool) bool {
	y := int(p.ly)

	// on the color model LCDC bit 0 only demotes background priority
	bgEnabled := p.cgb || bit.IsSet(0, p.lcdc)
	bgVisible := bgEnabled && p.layerMask&LayerBG != 0

	useWindow := bit.IsSet(5, p.lcdc) && p.layerMask&LayerWindow != 0 &&
		bgEnabled && int(p.wy) <= y && int(p.wx) <= 166
	windowStartX := int(p.wx) - 7

	drawn := false
	for x := 0; x < ScreenWidth; x++ {
		var mapBase, tileX, tileY int
		switch {
		case useWindow && x >= windowStartX:
			mapBase = 0x1800
			if bit.IsSet(6, p.lcdc) {
				mapBase = 0x1C00
			}
			tileX = x - windowStartX
			tileY = p.windowLine
			drawn = true
		case bgVisible:
			mapBase = 0x1800
			if bit.IsSet(3, p.lcdc) {
				mapBase = 0x1C00
			}
			tileX = (x + int(p.scx)) & 0xFF
			tileY = (y + int(p.scy)) & 0xFF
		default:
			line[x] = p.blankColor()
			bgColor[x] = 0
			continue
		}

		mapIdx := mapBase + tileY/8*32 + tileX/8
		tileNum := vram[mapIdx]
		var attr uint8
		if p.cgb {
			attr = vram[0x2000+mapIdx]
		}

		var tileBase int
		if bit.IsSet(4, p.lcdc) {
			tileBase = int(tileNum) * 16
		} else {
			tileBase = 0x1000 + int(int8(tileNum))*16
		}

		rowY := tileY % 8
		if attr&attrYFlip != 0 {
			rowY = 7 - rowY
		}
		bank := int(attr&attrBank) >> 3 << 13

		lo := vram[bank+tileBase+rowY*2]
		hi := vram[bank+tileBase+rowY*2+1]
		pixBit := 7 - tileX%8
		if attr&attrXFlip != 0 {
			pixBit = tileX % 8
		}
		colorNum := (hi>>pixBit&1)<<1 | lo>>pixBit&1

		bgColor[x] = colorNum
		bgPrio[x] = attr&attrPriority != 0
		if p.cgb {
			line[x] = p.cgbColor(p.bgPal[:], attr&attrPalette, colorNum)
		} else {
			line[x] = p.dmgPal[PaletteBG][p.bgp>>(2*colorNum)&3]
		}
	}
	return drawn
}

// collectSprites performs the OAM scan: the first 10 sprites covering the
// current line, in OAM order. The scan runs even with the sprite layer
// masked so frame timing does not depend on layer selection.
func (p *PPU) collectSprites() []spriteInfo {
	if !bit.IsSet(1, p.lcdc) {
		return nil
	}
	oam := p.mem.OAM()
	height := 8
	if bit.IsSet(2, p.lcdc) {
		height = 16
	}
	y := int(p.ly)

	var out []spriteInfo
	for i := 0; i < 40 && len(out) < 10; i++ {
		sy := int(oam[i*4]) - 16
		if y < sy || y >= sy+height {
			continue
		}
		out = append(out, spriteInfo{
			x:     int(oam[i*4+1]) - 8,
			y:     sy,
			tile:  oam[i*4+2],
			attr:  oam[i*4+3],
			index: i,
		})
	}
	return out
}

func (p *PPU) drawSprites(line []uint32, vram []uint8, sprites []spriteInfo, bgColor *[ScreenWidth]uint8, bgPrio *[ScreenWidth]bool) {
	if len(sprites) == 0 {
		return
	}
	height := 8
	if bit.IsSet(2, p.lcdc) {
		height = 16
	}
	y := int(p.ly)

	// order by display priority: OAM index on the color model, X position
	// with the index as tiebreaker on the monochrome one
	ordered := make([]spriteInfo, len(sprites))
	copy(ordered, sprites)
	if !p.cgb {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].x < ordered[j].x
		})
	}

	// draw lowest priority first so higher priority sprites overwrite
	for i := len(ordered) - 1; i >= 0; i-- {
		s := ordered[i]
		row := y - s.y
		if s.attr&attrYFlip != 0 {
			row = height - 1 - row
		}
		tile := s.tile
		if height == 16 {
			tile &= 0xFE
			if row >= 8 {
				tile++
				row -= 8
			}
		}

		bank := 0
		if p.cgb {
			bank = int(s.attr&attrBank) >> 3 << 13
		}
		lo := vram[bank+int(tile)*16+row*2]
		hi := vram[bank+int(tile)*16+row*2+1]

		for px := 0; px < 8; px++ {
			x := s.x + px
			if x < 0 || x >= ScreenWidth {
				continue
			}
			pixBit := 7 - px
			if s.attr&attrXFlip != 0 {
				pixBit = px
			}
			colorNum := (hi>>pixBit&1)<<1 | lo>>pixBit&1
			if colorNum == 0 {
				continue
			}

			behind := s.attr&attrPriority != 0
			if p.cgb {
				if !bit.IsSet(0, p.lcdc) {
					// master priority: sprites always win
					behind = false
				} else if bgPrio[x] {
					behind = true
				}
			}
			if behind && bgColor[x] != 0 {
				continue
			}

			if p.cgb {
				line[x] = p.cgbColor(p.objPal[:], s.attr&attrPalette, colorNum)
			} else {
				obp := p.obp0
				slot := PaletteSP1
				if s.attr&0x10 != 0 {
					obp = p.obp1
					slot = PaletteSP2
				}
				line[x] = p.dmgPal[slot][obp>>(2*colorNum)&3]
			}
		}
	}
}

// cgbColor resolves a color through palette RAM and the host color table.
func (p *PPU) cgbColor(palRAM []uint8, palette, colorNum uint8) uint32 {
	i := int(palette)*8 + int(colorNum)*2
	bgr := (uint16(palRAM[i]) | uint16(palRAM[i+1])<<8) & 0x7FFF
	if p.cgbLUT != nil {
		return p.cgbLUT[bgr]
	}
	return defaultCgbColor(bgr)
}

// blankColor is the color of a disabled or masked background pixel.
func (p *PPU) blankColor() uint32 {
	if p.cgb {
		return 0xFFFFFF
	}
	return p.dmgPal[PaletteBG][0]
}
