package video

// DMG palette slots for SetDmgPaletteColor.
const (
	PaletteBG = iota
	PaletteSP1
	PaletteSP2
)

// defaultDmgShades is the grayscale mapping of the four DMG color numbers,
// lightest first.
var defaultDmgShades = [4]uint32{0xFFFFFF, 0xAAAAAA, 0x555555, 0x000000}

// expand5 widens a 5-bit color component to 8 bits.
func expand5(v uint32) uint32 {
	return v<<3 | v>>2
}

// defaultCgbColor converts a 15-bit BGR value to 32-bit RGB the way the
// hardware DAC would, without color correction.
func defaultCgbColor(bgr15 uint16) uint32 {
	r := expand5(uint32(bgr15) & 0x1F)
	g := expand5(uint32(bgr15) >> 5 & 0x1F)
	b := expand5(uint32(bgr15) >> 10 & 0x1F)
	return r<<16 | g<<8 | b
}
