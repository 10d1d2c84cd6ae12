// Package memory implements the bus connecting the CPU to cartridge,
// video, audio, timer, serial and work memory, along with the cartridge
// header parsing and the bank controller variants.
package memory

import (
	"github.com/valerio/go-gbcore/gbcore/addr"
	"github.com/valerio/go-gbcore/gbcore/audio"
	"github.com/valerio/go-gbcore/gbcore/bit"
	"github.com/valerio/go-gbcore/gbcore/rtc"
	"github.com/valerio/go-gbcore/gbcore/serial"
	"github.com/valerio/go-gbcore/gbcore/state"
)

// VideoPort is the register interface of the video unit. The bus routes
// reads and writes of the LCD registers (except the OAM DMA trigger, which
// the bus services itself) and the CGB palette ports through it.
type VideoPort interface {
	ReadRegister(address uint16) uint8
	WriteRegister(address uint16, value uint8)
}

// Memory area selectors for MemoryArea.
const (
	AreaVRAM = iota
	AreaROM
	AreaWRAM
	AreaCartRAM
	AreaOAM
	AreaHRAM
)

// Bus is the 64 KiB address space. It owns work memory and the fixed
// regions; cartridge windows go to the bank controller, register windows
// to the owning unit.
type Bus struct {
	cart *Cartridge
	mbc  MBC
	cgb  bool

	vram [0x4000]uint8 // 2 banks, CGB uses both
	wram [0x8000]uint8 // 8 banks, DMG uses the first two
	oam  [0xA0]uint8
	hram [0x7F]uint8

	vramBank uint8
	wramBank uint8

	iflag uint8
	ie    uint8

	p1Sel  uint8 // P1 group selection bits (4-5)
	dmaReg uint8 // last value written to the OAM DMA trigger

	bios       []uint8
	biosMapped bool

	doubleSpeed bool
	speedArmed  bool

	hdmaSrc    uint16
	hdmaDst    uint16
	hdmaBlocks int
	hdmaActive bool

	timer Timer
	link  *serial.Link
	apu   *audio.APU
	video VideoPort

	getInput  func() Buttons
	lastInput Buttons

	readCB  AccessCallback
	writeCB AccessCallback
	execCB  AccessCallback
	cdCB    CDLogCallback

	cpuClock   func() uint64
	audioClock func() uint64
}

// NewBus wires a bus for the given cartridge. clock may be nil when the
// cartridge has no RTC. cgb selects Game Boy Color behavior (banked VRAM
// and WRAM, speed switching, VRAM DMA).
func NewBus(cart *Cartridge, clock *rtc.RTC, cgb bool) *Bus {
	b := &Bus{
		cart:       cart,
		mbc:        newMBC(cart, clock),
		cgb:        cgb,
		wramBank:   1,
		apu:        audio.New(),
		cpuClock:   func() uint64 { return 0 },
		audioClock: func() uint64 { return 0 },
	}
	b.timer.irq = b.RequestInterrupt
	b.link = serial.New(b.RequestInterrupt)
	return b
}

// SetVideo attaches the video unit register port. Must be called before
// the first access to an LCD register.
func (b *Bus) SetVideo(v VideoPort) { b.video = v }

// SetBios maps a boot ROM over the start of the cartridge window until the
// program writes the unmap register.
func (b *Bus) SetBios(bios []uint8) {
	b.bios = bios
	b.biosMapped = len(bios) > 0
}

// BiosMapped reports whether the boot ROM overlay is still active.
func (b *Bus) BiosMapped() bool { return b.biosMapped }

// SetCycleSources installs the counters used to stamp access callbacks
// (CPU cycles) and to position audio catch-up (the 4 MiHz counter, which
// advances at half the CPU pace in double speed).
func (b *Bus) SetCycleSources(cpu, audio func() uint64) {
	b.cpuClock = cpu
	b.audioClock = audio
}

// SetInputGetter installs the host joypad poll. A nil getter reads as no
// buttons pressed.
func (b *Bus) SetInputGetter(get func() Buttons) { b.getInput = get }

// SetReadCallback installs the data read hook. Nil disables it.
func (b *Bus) SetReadCallback(cb AccessCallback) { b.readCB = cb }

// SetWriteCallback installs the write hook. Nil disables it.
func (b *Bus) SetWriteCallback(cb AccessCallback) { b.writeCB = cb }

// SetExecCallback installs the instruction fetch hook. Nil disables it.
func (b *Bus) SetExecCallback(cb AccessCallback) { b.execCB = cb }

// SetCDCallback installs the code/data log hook. Nil disables it.
func (b *Bus) SetCDCallback(cb CDLogCallback) { b.cdCB = cb }

// SetLinkDataSentCallback installs the serial byte-sent hook.
func (b *Bus) SetLinkDataSentCallback(cb func()) { b.link.SetDataSentCallback(cb) }

// Link exposes the serial unit for host-side link queries.
func (b *Bus) Link() *serial.Link { return b.link }

// APU exposes the audio unit for sample buffer management.
func (b *Bus) APU() *audio.APU { return b.apu }

// Timer exposes the timer unit for divider seeding at boot.
func (b *Bus) Timer() *Timer { return &b.timer }

// Cartridge returns the loaded cartridge.
func (b *Bus) Cartridge() *Cartridge { return b.cart }

// ROMBank returns the bank currently mapped at 0x4000-0x7FFF.
func (b *Bus) ROMBank() int { return b.mbc.ROMBank() }

// DoubleSpeed reports whether the CPU runs at doubled clock rate.
func (b *Bus) DoubleSpeed() bool { return b.doubleSpeed }

// Tick advances the timer and serial units by the given CPU cycles.
func (b *Bus) Tick(cycles int) {
	b.timer.Tick(cycles)
	b.link.Tick(cycles)
}

// RequestInterrupt raises the given source's bit in the interrupt flags.
func (b *Bus) RequestInterrupt(i addr.Interrupt) {
	b.iflag |= uint8(i)
}

// Pending returns the interrupt sources that are both raised and enabled.
func (b *Bus) Pending() uint8 { return b.ie & b.iflag & 0x1F }

// ClearInterrupt acknowledges the given sources.
func (b *Bus) ClearInterrupt(mask uint8) { b.iflag &^= mask }

// SpeedSwitch performs an armed speed switch, reporting whether one was
// pending. Called by the CPU when it executes STOP.
func (b *Bus) SpeedSwitch() bool {
	if !b.cgb || !b.speedArmed {
		return false
	}
	b.speedArmed = false
	b.doubleSpeed = !b.doubleSpeed
	return true
}

// Read services a program data read, firing the installed hooks.
func (b *Bus) Read(address uint16) uint8 {
	if b.readCB != nil {
		b.readCB(address, b.cpuClock())
	}
	if b.cdCB != nil {
		b.cdLog(address, CDLogData)
	}
	return b.dispatchRead(address)
}

// ReadOperand services an instruction operand fetch. It fires the read
// hook like a data read but is logged as an operand in the code/data log.
func (b *Bus) ReadOperand(address uint16) uint8 {
	if b.readCB != nil {
		b.readCB(address, b.cpuClock())
	}
	if b.cdCB != nil {
		b.cdLog(address, CDLogExecOperand)
	}
	return b.dispatchRead(address)
}

// ReadOpcode services an instruction opcode fetch. refetch marks the
// re-read of the same opcode after the halt bug; hooks are suppressed for
// it so the instruction is observed once.
func (b *Bus) ReadOpcode(address uint16, refetch bool) uint8 {
	if !refetch {
		if b.execCB != nil {
			b.execCB(address, b.cpuClock())
		}
		if b.cdCB != nil {
			b.cdLog(address, CDLogExecOpcode)
		}
	}
	return b.dispatchRead(address)
}

// Write services a program write, firing the installed hooks.
func (b *Bus) Write(address uint16, value uint8) {
	if b.writeCB != nil {
		b.writeCB(address, b.cpuClock())
	}
	if b.cdCB != nil {
		b.cdLog(address, CDLogData)
	}
	b.dispatchWrite(address, value)
}

// ExternalRead services a host-side read. No hooks fire and no cycles are
// consumed; the emulated program cannot observe it.
func (b *Bus) ExternalRead(address uint16) uint8 {
	return b.dispatchRead(address)
}

// ExternalWrite services a host-side write without firing hooks.
func (b *Bus) ExternalWrite(address uint16, value uint8) {
	b.dispatchWrite(address, value)
}

// biosHas reports whether the boot overlay covers the address. The CGB
// boot ROM leaves the 0x100-0x1FF header window visible.
func (b *Bus) biosHas(address uint16) bool {
	if !b.biosMapped || int(address) >= len(b.bios) {
		return false
	}
	if len(b.bios) > 0x100 && address >= 0x100 && address < 0x200 {
		return false
	}
	return true
}

func (b *Bus) vramOffset(address uint16) int {
	return int(b.vramBank)<<13 | int(address&0x1FFF)
}

// wramOffset maps 0xC000-0xFDFF (echo included) to a flat offset. The
// switchable bank never selects bank 0.
func (b *Bus) wramOffset(address uint16) int {
	if address >= 0xE000 {
		address -= 0x2000
	}
	if address < 0xD000 {
		return int(address - 0xC000)
	}
	return int(b.wramBank)<<12 | int(address&0x0FFF)
}

func (b *Bus) dispatchRead(address uint16) uint8 {
	switch {
	case address < 0x8000:
		if b.biosHas(address) {
			return b.bios[address]
		}
		return b.mbc.Read(address)
	case address < 0xA000:
		return b.vram[b.vramOffset(address)]
	case address < 0xC000:
		return b.mbc.Read(address)
	case address < 0xFE00:
		return b.wram[b.wramOffset(address)]
	case address < 0xFEA0:
		return b.oam[address-addr.OAMStart]
	case address < 0xFF00:
		// unusable region
		return 0xFF
	case address < 0xFF80:
		return b.readIO(address)
	case address < 0xFFFF:
		return b.hram[address-0xFF80]
	default:
		return b.ie
	}
}

func (b *Bus) dispatchWrite(address uint16, value uint8) {
	switch {
	case address < 0x8000:
		b.mbc.Write(address, value)
	case address < 0xA000:
		b.vram[b.vramOffset(address)] = value
	case address < 0xC000:
		b.mbc.Write(address, value)
	case address < 0xFE00:
		b.wram[b.wramOffset(address)] = value
	case address < 0xFEA0:
		b.oam[address-addr.OAMStart] = value
	case address < 0xFF00:
		// unusable region
	case address < 0xFF80:
		b.writeIO(address, value)
	case address < 0xFFFF:
		b.hram[address-0xFF80] = value
	default:
		b.ie = value
	}
}

func (b *Bus) readIO(address uint16) uint8 {
	switch {
	case address == addr.P1:
		return b.readJoypad()
	case address == addr.SB || address == addr.SC:
		return b.link.Read(address)
	case address >= addr.DIV && address <= addr.TAC:
		return b.timer.Read(address)
	case address == addr.IF:
		return b.iflag | 0xE0
	case address >= addr.AudioStart && address <= addr.WaveRAMEnd:
		return b.apu.ReadRegister(b.audioClock(), address)
	case address == addr.DMA:
		return b.dmaReg
	case address >= addr.LCDC && address <= addr.WX:
		return b.video.ReadRegister(address)
	case address == addr.KEY1 && b.cgb:
		v := uint8(0x7E)
		if b.doubleSpeed {
			v |= 0x80
		}
		if b.speedArmed {
			v |= 0x01
		}
		return v
	case address == addr.VBK && b.cgb:
		return 0xFE | b.vramBank
	case address == addr.HDMA5 && b.cgb:
		if !b.hdmaActive {
			return 0xFF
		}
		return uint8(b.hdmaBlocks-1) & 0x7F
	case address >= addr.BCPS && address <= addr.OCPD && b.cgb:
		return b.video.ReadRegister(address)
	case address == addr.SVBK && b.cgb:
		return 0xF8 | b.wramBank
	default:
		return 0xFF
	}
}

func (b *Bus) writeIO(address uint16, value uint8) {
	switch {
	case address == addr.P1:
		b.p1Sel = value & 0x30
	case address == addr.SB || address == addr.SC:
		b.link.Write(address, value)
	case address >= addr.DIV && address <= addr.TAC:
		b.timer.Write(address, value)
	case address == addr.IF:
		b.iflag = value & 0x1F
	case address >= addr.AudioStart && address <= addr.WaveRAMEnd:
		b.apu.WriteRegister(b.audioClock(), address, value)
	case address == addr.DMA:
		b.dmaReg = value
		b.oamDMA(value)
	case address >= addr.LCDC && address <= addr.WX:
		b.video.WriteRegister(address, value)
	case address == addr.KEY1 && b.cgb:
		b.speedArmed = value&0x01 != 0
	case address == addr.VBK && b.cgb:
		b.vramBank = value & 0x01
	case address == addr.BANK:
		if b.biosMapped && value != 0 {
			b.biosMapped = false
		}
	case address == addr.HDMA1 && b.cgb:
		b.hdmaSrc = b.hdmaSrc&0x00FF | uint16(value)<<8
	case address == addr.HDMA2 && b.cgb:
		b.hdmaSrc = b.hdmaSrc&0xFF00 | uint16(value&0xF0)
	case address == addr.HDMA3 && b.cgb:
		b.hdmaDst = b.hdmaDst&0x00FF | uint16(value&0x1F)<<8
	case address == addr.HDMA4 && b.cgb:
		b.hdmaDst = b.hdmaDst&0xFF00 | uint16(value&0xF0)
	case address == addr.HDMA5 && b.cgb:
		b.writeHDMA5(value)
	case address >= addr.BCPS && address <= addr.OCPD && b.cgb:
		b.video.WriteRegister(address, value)
	case address == addr.SVBK && b.cgb:
		b.wramBank = value & 0x07
		if b.wramBank == 0 {
			b.wramBank = 1
		}
	}
}

// readJoypad builds the P1 value from the host input state. Selected lines
// read 0 for pressed keys.
func (b *Bus) readJoypad() uint8 {
	res := 0xC0 | b.p1Sel | 0x0F
	input := b.pollInput()
	if b.p1Sel&0x10 == 0 {
		res &^= uint8(input>>4) & 0x0F
	}
	if b.p1Sel&0x20 == 0 {
		res &^= uint8(input) & 0x0F
	}
	return res
}

// pollInput reads the host getter and raises the Joypad interrupt on new
// presses.
func (b *Bus) pollInput() Buttons {
	if b.getInput == nil {
		b.lastInput = 0
		return 0
	}
	cur := b.getInput()
	if cur&^b.lastInput != 0 {
		b.RequestInterrupt(addr.JoypadInterrupt)
	}
	b.lastInput = cur
	return cur
}

// oamDMA copies a 160-byte page into OAM. The bus conflict window of the
// real transfer is not modeled.
func (b *Bus) oamDMA(page uint8) {
	src := uint16(page) << 8
	for i := uint16(0); i < 0xA0; i++ {
		b.oam[i] = b.dispatchRead(src + i)
	}
}

func (b *Bus) writeHDMA5(value uint8) {
	if b.hdmaActive && !bit.IsSet(7, value) {
		// terminating an hblank transfer early
		b.hdmaActive = false
		return
	}
	blocks := int(value&0x7F) + 1
	if bit.IsSet(7, value) {
		b.hdmaBlocks = blocks
		b.hdmaActive = true
		return
	}
	for i := 0; i < blocks; i++ {
		b.hdmaCopyBlock()
	}
}

// hdmaCopyBlock moves one 16-byte block from the source to VRAM at the
// current bank, advancing both pointers.
func (b *Bus) hdmaCopyBlock() {
	for i := 0; i < 16; i++ {
		dst := int(b.vramBank)<<13 | int(b.hdmaDst+uint16(i))&0x1FFF
		b.vram[dst] = b.dispatchRead(b.hdmaSrc + uint16(i))
	}
	b.hdmaSrc += 16
	b.hdmaDst += 16
}

// OnHBlank advances an active hblank VRAM DMA by one block. The video unit
// calls it at the start of each horizontal blank.
func (b *Bus) OnHBlank() {
	if !b.hdmaActive {
		return
	}
	b.hdmaCopyBlock()
	b.hdmaBlocks--
	if b.hdmaBlocks == 0 {
		b.hdmaActive = false
	}
}

// VRAM exposes both VRAM banks contiguously for the video unit.
func (b *Bus) VRAM() []uint8 { return b.vram[:] }

// OAM exposes object attribute memory for the video unit.
func (b *Bus) OAM() []uint8 { return b.oam[:] }

// cdLog classifies an access and reports it with the bank-resolved flat
// offset.
func (b *Bus) cdLog(address uint16, flags CDLogFlags) {
	switch {
	case address < 0x8000 && !b.biosHas(address):
		b.cdCB(b.mbc.ROMOffset(address), CDLogROM, flags)
	case address >= 0xA000 && address < 0xC000:
		if off := b.mbc.RAMOffset(address); off >= 0 {
			b.cdCB(off, CDLogCartRAM, flags)
			return
		}
		b.cdCB(int(address), CDLogNone, flags)
	case address >= 0xC000 && address < 0xFE00:
		b.cdCB(b.wramOffset(address), CDLogWRAM, flags)
	case address >= 0xFF80 && address < 0xFFFF:
		b.cdCB(int(address-0xFF80), CDLogHRAM, flags)
	default:
		b.cdCB(int(address), CDLogNone, flags)
	}
}

// MemoryArea returns a live view of the selected memory region, sized for
// the running model, or nil for an unknown selector or absent region.
func (b *Bus) MemoryArea(which int) []uint8 {
	switch which {
	case AreaVRAM:
		if b.cgb {
			return b.vram[:]
		}
		return b.vram[:0x2000]
	case AreaROM:
		return b.cart.ROM()
	case AreaWRAM:
		if b.cgb {
			return b.wram[:]
		}
		return b.wram[:0x2000]
	case AreaCartRAM:
		return b.mbc.RAM()
	case AreaOAM:
		return b.oam[:]
	case AreaHRAM:
		return b.hram[:]
	}
	return nil
}

// Reset restores power-on state. Cartridge ROM and the boot overlay are
// kept; everything volatile is cleared.
func (b *Bus) Reset() {
	b.vram = [0x4000]uint8{}
	b.wram = [0x8000]uint8{}
	b.oam = [0xA0]uint8{}
	b.hram = [0x7F]uint8{}
	b.vramBank = 0
	b.wramBank = 1
	b.iflag = 0
	b.ie = 0
	b.p1Sel = 0x30
	b.dmaReg = 0
	b.biosMapped = len(b.bios) > 0
	b.doubleSpeed = false
	b.speedArmed = false
	b.hdmaSrc = 0
	b.hdmaDst = 0
	b.hdmaBlocks = 0
	b.hdmaActive = false
	b.lastInput = 0
	b.timer.Reset()
	b.link.Reset()
	b.apu.Reset()
	b.mbc.Reset()
}

// Sync serializes bus state including the owned units and the bank
// controller.
func (b *Bus) Sync(s *state.Stream) {
	s.Bytes(b.vram[:])
	s.Bytes(b.wram[:])
	s.Bytes(b.oam[:])
	s.Bytes(b.hram[:])
	s.U8(&b.vramBank)
	s.U8(&b.wramBank)
	s.U8(&b.iflag)
	s.U8(&b.ie)
	s.U8(&b.p1Sel)
	s.U8(&b.dmaReg)
	s.Bool(&b.biosMapped)
	s.Bool(&b.doubleSpeed)
	s.Bool(&b.speedArmed)
	s.U16(&b.hdmaSrc)
	s.U16(&b.hdmaDst)
	s.Int(&b.hdmaBlocks)
	s.Bool(&b.hdmaActive)
	s.U8((*uint8)(&b.lastInput))
	b.timer.Sync(s)
	b.link.Sync(s)
	b.apu.Sync(s)
	b.mbc.Sync(s)
}
