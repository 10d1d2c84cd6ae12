// Package addr defines memory-mapped register addresses and interrupt
// identifiers for the Game Boy and Game Boy Color.
package addr

// joypad
const (
	// P1 is used to read the joypad state. Bits 4-5 select a button group.
	P1 uint16 = 0xFF00
)

// serial I/O
const (
	// SB (serial transfer data). Holds the byte being shifted out MSB-first;
	// after a transfer it holds the byte shifted in from the peer.
	SB uint16 = 0xFF01
	// SC (serial transfer control). Bit 7 starts a transfer, bit 0 selects
	// the internal (1) or external (0) clock.
	SC uint16 = 0xFF02
)

// timers
const (
	// DIV is the divider register, the upper 8 bits of the internal counter.
	DIV uint16 = 0xFF04
	// TIMA is the timer counter. Requests an interrupt on overflow.
	TIMA uint16 = 0xFF05
	// TMA is the timer modulo, loaded into TIMA on overflow.
	TMA uint16 = 0xFF06
	// TAC is the timer control register.
	TAC uint16 = 0xFF07
)

// video registers
const (
	// LCDC is the LCD control register.
	LCDC uint16 = 0xFF40
	// STAT is the LCD status register.
	STAT uint16 = 0xFF41
	// SCY is the background scroll Y register.
	SCY uint16 = 0xFF42
	// SCX is the background scroll X register.
	SCX uint16 = 0xFF43
	// LY is the current scanline (read-only).
	LY uint16 = 0xFF44
	// LYC is the LY compare register.
	LYC uint16 = 0xFF45
	// DMA starts an OAM DMA transfer from the written page.
	DMA uint16 = 0xFF46
	// BGP is the DMG background palette register.
	BGP uint16 = 0xFF47
	// OBP0 is DMG object palette 0.
	OBP0 uint16 = 0xFF48
	// OBP1 is DMG object palette 1.
	OBP1 uint16 = 0xFF49
	// WY is the window Y position.
	WY uint16 = 0xFF4A
	// WX is the window X position (plus 7).
	WX uint16 = 0xFF4B
)

// CGB-only registers
const (
	// KEY1 prepares and reports the CPU speed switch.
	KEY1 uint16 = 0xFF4D
	// VBK selects the active VRAM bank (bit 0).
	VBK uint16 = 0xFF4F
	// BANK unmaps the boot ROM when written to.
	BANK uint16 = 0xFF50
	// HDMA1-HDMA4 hold the VRAM DMA source/destination.
	HDMA1 uint16 = 0xFF51
	HDMA2 uint16 = 0xFF52
	HDMA3 uint16 = 0xFF53
	HDMA4 uint16 = 0xFF54
	// HDMA5 starts a general-purpose or per-hblank VRAM DMA.
	HDMA5 uint16 = 0xFF55
	// BCPS selects the background palette RAM index.
	BCPS uint16 = 0xFF68
	// BCPD reads/writes background palette RAM at the BCPS index.
	BCPD uint16 = 0xFF69
	// OCPS selects the object palette RAM index.
	OCPS uint16 = 0xFF6A
	// OCPD reads/writes object palette RAM at the OCPS index.
	OCPD uint16 = 0xFF6B
	// SVBK selects the active WRAM bank at 0xD000 (bits 0-2).
	SVBK uint16 = 0xFF70
)

// audio registers
const (
	AudioStart uint16 = 0xFF10
	AudioEnd   uint16 = 0xFF3F

	NR10 uint16 = 0xFF10 // channel 1 sweep
	NR11 uint16 = 0xFF11 // channel 1 length timer & duty
	NR12 uint16 = 0xFF12 // channel 1 volume & envelope
	NR13 uint16 = 0xFF13 // channel 1 period low
	NR14 uint16 = 0xFF14 // channel 1 period high & control

	NR21 uint16 = 0xFF16 // channel 2 length timer & duty
	NR22 uint16 = 0xFF17 // channel 2 volume & envelope
	NR23 uint16 = 0xFF18 // channel 2 period low
	NR24 uint16 = 0xFF19 // channel 2 period high & control

	NR30 uint16 = 0xFF1A // channel 3 DAC enable
	NR31 uint16 = 0xFF1B // channel 3 length timer
	NR32 uint16 = 0xFF1C // channel 3 output level
	NR33 uint16 = 0xFF1D // channel 3 period low
	NR34 uint16 = 0xFF1E // channel 3 period high & control

	NR41 uint16 = 0xFF20 // channel 4 length timer
	NR42 uint16 = 0xFF21 // channel 4 volume & envelope
	NR43 uint16 = 0xFF22 // channel 4 frequency & randomness
	NR44 uint16 = 0xFF23 // channel 4 control

	NR50 uint16 = 0xFF24 // master volume
	NR51 uint16 = 0xFF25 // panning
	NR52 uint16 = 0xFF26 // power / channel status

	WaveRAMStart uint16 = 0xFF30
	WaveRAMEnd   uint16 = 0xFF3F
)

// OAM
const (
	// OAMStart is the start of object attribute memory (40 sprites, 4 bytes each).
	OAMStart uint16 = 0xFE00
	// OAMEnd is the last byte of object attribute memory.
	OAMEnd uint16 = 0xFE9F
)

// tile data and tile maps
const (
	TileData0 uint16 = 0x8000
	TileData1 uint16 = 0x8800
	TileData2 uint16 = 0x9000

	TileMap0 uint16 = 0x9800
	TileMap1 uint16 = 0x9C00
)

// interrupts
const (
	// IF is the interrupt flags register.
	IF uint16 = 0xFF0F
	// IE is the interrupt enable register.
	IE uint16 = 0xFFFF
)

// Interrupt identifies one of the five interrupt sources. The value is the
// bit mask used in the IE and IF registers; bit 0 has the highest priority.
type Interrupt uint8

const (
	// VBlankInterrupt fires when the PPU enters vertical blank (line 144).
	VBlankInterrupt Interrupt = 1
	// LCDSTATInterrupt fires on the conditions enabled in the STAT register.
	LCDSTATInterrupt Interrupt = 1 << 1
	// TimerInterrupt fires when TIMA overflows.
	TimerInterrupt Interrupt = 1 << 2
	// SerialInterrupt fires when a serial transfer completes.
	SerialInterrupt Interrupt = 1 << 3
	// JoypadInterrupt fires on a high-to-low transition of a selected input.
	JoypadInterrupt Interrupt = 1 << 4
)

// Vector returns the interrupt handler address for the source.
func (i Interrupt) Vector() uint16 {
	switch i {
	case VBlankInterrupt:
		return 0x40
	case LCDSTATInterrupt:
		return 0x48
	case TimerInterrupt:
		return 0x50
	case SerialInterrupt:
		return 0x58
	case JoypadInterrupt:
		return 0x60
	}
	return 0
}
