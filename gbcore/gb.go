// Package gbcore implements a Game Boy and Game Boy Color emulation engine.
//
// The engine is driven through the GB handle: load a ROM with Load, then
// call RunFor repeatedly to emulate forward. RunFor fills a caller-supplied
// stereo sample buffer and reports where in that buffer a video frame
// completed, which lets the host pace emulation off its audio device.
// Everything mutable lives behind the handle; hosts interact only through
// the exported operations.
package gbcore

import (
	"errors"
	"fmt"

	"github.com/valerio/go-gbcore/gbcore/audio"
	"github.com/valerio/go-gbcore/gbcore/cpu"
	"github.com/valerio/go-gbcore/gbcore/memory"
	"github.com/valerio/go-gbcore/gbcore/rtc"
	"github.com/valerio/go-gbcore/gbcore/serial"
	"github.com/valerio/go-gbcore/gbcore/video"
)

// LoadFlag adjusts how Load configures the console.
type LoadFlag uint32

const (
	// CGBMode runs the console as a Game Boy Color.
	CGBMode LoadFlag = 1 << iota
	// GBAFlag boots with the register values a Game Boy Advance uses in
	// CGB compatibility mode. Only meaningful together with CGBMode.
	GBAFlag
	// MulticartCompat enables the MBC1 multicart heuristic for collection
	// cartridges that present several logo copies across the ROM.
	MulticartCompat
	// NoBios skips any loaded boot ROM and seeds post-boot state directly.
	NoBios
)

// Button bitfield values for the input getter, dpad in the high nibble.
type Buttons = memory.Buttons

const (
	ButtonA      = memory.ButtonA
	ButtonB      = memory.ButtonB
	ButtonSelect = memory.ButtonSelect
	ButtonStart  = memory.ButtonStart
	ButtonRight  = memory.ButtonRight
	ButtonLeft   = memory.ButtonLeft
	ButtonUp     = memory.ButtonUp
	ButtonDown   = memory.ButtonDown
)

// Layer mask bits for SetLayers.
const (
	LayerBG     = video.LayerBG
	LayerOBJ    = video.LayerOBJ
	LayerWindow = video.LayerWindow
)

// Memory area selectors for GetMemoryArea.
const (
	AreaVRAM    = memory.AreaVRAM
	AreaROM     = memory.AreaROM
	AreaWRAM    = memory.AreaWRAM
	AreaCartRAM = memory.AreaCartRAM
	AreaOAM     = memory.AreaOAM
	AreaHRAM    = memory.AreaHRAM
)

// Link status selectors for LinkStatus.
const (
	LinkShiftReg      = serial.StatusShiftReg
	LinkClockInternal = serial.StatusClockInternal
	LinkBitsLeft      = serial.StatusBitsLeft
)

// Screen dimensions in pixels.
const (
	ScreenWidth  = video.ScreenWidth
	ScreenHeight = video.ScreenHeight
)

// SamplesPerFrame is the number of stereo samples one complete video frame
// spans at normal speed.
const SamplesPerFrame = video.FrameCycles / audio.CyclesPerSample

// RunFor may overshoot the requested sample count by up to this many
// samples, so sample buffers need the extra headroom.
const MaxSamplesOverrun = 2064

// MemoryCallback observes a bus access at the given cycle count.
type MemoryCallback = memory.AccessCallback

// CDLogCallback receives code/data log classification events.
type CDLogCallback = memory.CDLogCallback

// Regs is the CPU register file as exposed to hosts.
type Regs = cpu.Regs

// TraceCallback observes the register file before each executed opcode.
type TraceCallback = cpu.TraceFunc

var (
	ErrNotLoaded   = errors.New("gbcore: no ROM loaded")
	ErrBadBiosSize = errors.New("gbcore: bad boot ROM size")
	ErrBadState    = errors.New("gbcore: unrecognized save state")
)

const (
	dmgBiosLen = 256
	cgbBiosLen = 2304
)

// hostConfig holds everything the host has configured on the handle. It
// survives loads and resets and is re-applied to each fresh core.
type hostConfig struct {
	getInput   func() Buttons
	readCB     MemoryCallback
	writeCB    MemoryCallback
	execCB     MemoryCallback
	cdCB       CDLogCallback
	trace      TraceCallback
	scanlineCB func(line int)
	scanline   int
	linkCB     func()

	dmgPalettes [3][4]uint32
	cgbLUT      []uint32
	layers      uint8

	timeModeCycles bool
	divisorOffset  int64

	breakAddrs []int32
	bios       []byte
}

// core owns all emulation state for one loaded cartridge.
type core struct {
	cart  *memory.Cartridge
	clock *rtc.RTC
	bus   *memory.Bus
	cpu   *cpu.CPU
	ppu   *video.PPU
	apu   *audio.APU

	flags LoadFlag
	cgb   bool

	cpuCycles   uint64 // CPU-rate cycles, doubled under CGB double speed
	videoCycles uint64 // video-rate cycles pacing PPU/APU/RTC
	speedRem    int    // odd CPU cycle carried between steps in double speed
}

// GB is the public engine handle. The zero value is not usable; construct
// with New.
type GB struct {
	cfg  hostConfig
	core *core
}

// New returns an engine handle with no ROM loaded. Callbacks and palettes
// may be configured before the first Load.
func New() *GB {
	g := &GB{}
	g.cfg.layers = LayerBG | LayerOBJ | LayerWindow
	g.cfg.scanline = -1
	for pal := range g.cfg.dmgPalettes {
		g.cfg.dmgPalettes[pal] = [4]uint32{0xFFFFFF, 0xAAAAAA, 0x555555, 0x000000}
	}
	return g
}

// Load parses the ROM image and boots a fresh console. On failure the
// previously loaded state, if any, is left untouched.
func (g *GB) Load(rom []byte, flags LoadFlag) error {
	cart, err := memory.LoadCartridge(rom, flags&MulticartCompat != 0)
	if err != nil {
		return fmt.Errorf("gbcore: load: %w", err)
	}

	cgb := flags&CGBMode != 0
	clock := rtc.New()
	bus := memory.NewBus(cart, clock, cgb)
	ppu := video.New(bus, bus.RequestInterrupt, cgb)
	bus.SetVideo(ppu)

	c := &core{
		cart:  cart,
		clock: clock,
		bus:   bus,
		cpu:   cpu.New(bus),
		ppu:   ppu,
		apu:   bus.APU(),
		flags: flags,
		cgb:   cgb,
	}
	bus.SetCycleSources(
		func() uint64 { return c.cpuCycles },
		func() uint64 { return c.videoCycles },
	)

	g.core = c
	g.applyConfig()
	c.boot(g.cfg.bios)
	return nil
}

// LoadBios registers a boot ROM image for subsequent loads and resets.
// Accepts the 256 byte DMG and 2304 byte CGB images; it is applied only
// when its size matches the loaded console type.
func (g *GB) LoadBios(bios []byte) error {
	if len(bios) != dmgBiosLen && len(bios) != cgbBiosLen {
		return fmt.Errorf("%w: %d bytes", ErrBadBiosSize, len(bios))
	}
	g.cfg.bios = append([]byte(nil), bios...)
	return nil
}

// boot either maps the boot ROM or seeds the post-boot state directly.
func (c *core) boot(bios []byte) {
	want := dmgBiosLen
	if c.cgb {
		want = cgbBiosLen
	}
	if c.flags&NoBios == 0 && len(bios) == want {
		c.bus.SetBios(bios)
		c.cpu.SetRegs(Regs{})
		return
	}
	c.seedRegisters()
	c.seedIO()
}

// seedRegisters applies the register file the boot ROM leaves behind.
func (c *core) seedRegisters() {
	r := Regs{SP: 0xFFFE, PC: 0x0100}
	if c.cgb {
		r.A, r.F = 0x11, 0x80
		r.D, r.E = 0xFF, 0x56
		r.H, r.L = 0x00, 0x0D
		if c.flags&GBAFlag != 0 {
			r.B = 0x01
		}
	} else {
		r.A, r.F = 0x01, 0xB0
		r.B, r.C = 0x00, 0x13
		r.D, r.E = 0x00, 0xD8
		r.H, r.L = 0x01, 0x4D
	}
	c.cpu.SetRegs(r)
}

// seedIO applies the I/O register values the boot ROM leaves behind.
func (c *core) seedIO() {
	w := c.bus.ExternalWrite

	w(0xFF10, 0x80) // NR10
	w(0xFF11, 0xBF) // NR11
	w(0xFF12, 0xF3) // NR12
	w(0xFF14, 0xBF) // NR14
	w(0xFF16, 0x3F) // NR21
	w(0xFF17, 0x00) // NR22
	w(0xFF19, 0xBF) // NR24
	w(0xFF1A, 0x7F) // NR30
	w(0xFF1B, 0xFF) // NR31
	w(0xFF1C, 0x9F) // NR32
	w(0xFF1E, 0xBF) // NR34
	w(0xFF20, 0xFF) // NR41
	w(0xFF21, 0x00) // NR42
	w(0xFF22, 0x00) // NR43
	w(0xFF23, 0xBF) // NR44
	w(0xFF24, 0x77) // NR50
	w(0xFF25, 0xF3) // NR51
	w(0xFF26, 0xF1) // NR52

	w(0xFF40, 0x91) // LCDC
	w(0xFF42, 0x00) // SCY
	w(0xFF43, 0x00) // SCX
	w(0xFF45, 0x00) // LYC
	w(0xFF47, 0xFC) // BGP
	w(0xFF48, 0xFF) // OBP0
	w(0xFF49, 0xFF) // OBP1
	w(0xFF4A, 0x00) // WY
	w(0xFF4B, 0x00) // WX
	w(0xFFFF, 0x00) // IE

	c.bus.Timer().SetDivider(0xABCC)
}

// applyConfig pushes the host configuration onto the current core.
func (g *GB) applyConfig() {
	c := g.core
	c.bus.SetInputGetter(g.cfg.getInput)
	c.bus.SetReadCallback(g.cfg.readCB)
	c.bus.SetWriteCallback(g.cfg.writeCB)
	c.bus.SetExecCallback(g.cfg.execCB)
	c.bus.SetCDCallback(g.cfg.cdCB)
	c.bus.SetLinkDataSentCallback(g.cfg.linkCB)
	c.cpu.SetTrace(g.cfg.trace)
	c.cpu.SetInterruptAddresses(g.cfg.breakAddrs)
	c.ppu.SetLayers(g.cfg.layers)
	c.ppu.SetScanlineCallback(g.cfg.scanlineCB, g.cfg.scanline)
	for pal := range g.cfg.dmgPalettes {
		for color, rgb := range g.cfg.dmgPalettes[pal] {
			c.ppu.SetDmgPaletteColor(pal, color, rgb)
		}
	}
	if g.cfg.cgbLUT != nil {
		c.ppu.SetCgbPalette(g.cfg.cgbLUT)
	}
	c.clock.SetTimeMode(g.cfg.timeModeCycles)
	c.clock.SetDivisorOffset(g.cfg.divisorOffset)
}

// IsLoaded reports whether a ROM is currently loaded.
func (g *GB) IsLoaded() bool { return g.core != nil }

// IsCgb reports whether the console runs in Game Boy Color mode.
func (g *GB) IsCgb() bool { return g.core != nil && g.core.cgb }

// IsCgbDmg reports whether a color-capable cartridge is being run on the
// monochrome console model.
func (g *GB) IsCgbDmg() bool {
	return g.core != nil && !g.core.cgb && g.core.cart.CGB()
}

// RomTitle returns the title from the loaded cartridge header, empty when
// nothing is loaded.
func (g *GB) RomTitle() string {
	if g.core == nil {
		return ""
	}
	return g.core.cart.Title()
}

// SetInputGetter registers the callback polled for button state. The
// returned bitfield uses the Button constants; nil means no input.
func (g *GB) SetInputGetter(get func() Buttons) {
	g.cfg.getInput = get
	if g.core != nil {
		g.core.bus.SetInputGetter(get)
	}
}

// SetReadCallback observes CPU data reads.
func (g *GB) SetReadCallback(cb MemoryCallback) {
	g.cfg.readCB = cb
	if g.core != nil {
		g.core.bus.SetReadCallback(cb)
	}
}

// SetWriteCallback observes CPU writes.
func (g *GB) SetWriteCallback(cb MemoryCallback) {
	g.cfg.writeCB = cb
	if g.core != nil {
		g.core.bus.SetWriteCallback(cb)
	}
}

// SetExecCallback observes opcode fetches. Halt-bug refetches of the same
// byte are reported once.
func (g *GB) SetExecCallback(cb MemoryCallback) {
	g.cfg.execCB = cb
	if g.core != nil {
		g.core.bus.SetExecCallback(cb)
	}
}

// SetCDCallback registers the code/data logging observer.
func (g *GB) SetCDCallback(cb CDLogCallback) {
	g.cfg.cdCB = cb
	if g.core != nil {
		g.core.bus.SetCDCallback(cb)
	}
}

// SetTraceCallback observes the register file before every executed opcode.
func (g *GB) SetTraceCallback(cb TraceCallback) {
	g.cfg.trace = cb
	if g.core != nil {
		g.core.cpu.SetTrace(cb)
	}
}

// SetScanlineCallback fires cb when the PPU starts the given scanline.
// A nil callback or an out of range line disables it.
func (g *GB) SetScanlineCallback(cb func(line int), line int) {
	g.cfg.scanlineCB = cb
	g.cfg.scanline = line
	if g.core != nil {
		g.core.ppu.SetScanlineCallback(cb, line)
	}
}

// SetLinkCallback fires cb when the serial unit finishes shifting a byte out.
func (g *GB) SetLinkCallback(cb func()) {
	g.cfg.linkCB = cb
	if g.core != nil {
		g.core.bus.SetLinkDataSentCallback(cb)
	}
}

// SetLayers selects which display layers are composited. Timing is not
// affected by hidden layers.
func (g *GB) SetLayers(mask uint8) {
	g.cfg.layers = mask
	if g.core != nil {
		g.core.ppu.SetLayers(mask)
	}
}

// SetDMGPaletteColor overrides one of the twelve DMG palette slots with an
// RGB32 color. palNum selects BG, SP1 or SP2.
func (g *GB) SetDMGPaletteColor(palNum, colorNum int, rgb32 uint32) {
	if palNum < 0 || palNum > 2 || colorNum < 0 || colorNum > 3 {
		return
	}
	g.cfg.dmgPalettes[palNum][colorNum] = rgb32
	if g.core != nil {
		g.core.ppu.SetDmgPaletteColor(palNum, colorNum, rgb32)
	}
}

// SetCGBPalette installs a 32768 entry lookup table translating CGB 15-bit
// colors to RGB32. A short or nil table restores the default conversion.
func (g *GB) SetCGBPalette(lut []uint32) {
	g.cfg.cgbLUT = lut
	if g.core != nil {
		g.core.ppu.SetCgbPalette(lut)
	}
}

// SetTimeMode selects cycle-based RTC timekeeping (deterministic) over
// wall-clock timekeeping.
func (g *GB) SetTimeMode(useCycles bool) {
	g.cfg.timeModeCycles = useCycles
	if g.core != nil {
		g.core.clock.SetTimeMode(useCycles)
	}
}

// SetRTCDivisorOffset adjusts how many cycles count as one RTC second in
// cycle-based mode.
func (g *GB) SetRTCDivisorOffset(offset int64) {
	g.cfg.divisorOffset = offset
	if g.core != nil {
		g.core.clock.SetDivisorOffset(offset)
	}
}

// SetInterruptAddresses installs a list of breakpoint addresses. Addresses
// in the switchable ROM window are bank-qualified as bank<<16|address.
// An empty list disables breakpoints.
func (g *GB) SetInterruptAddresses(addrs []int) {
	g.cfg.breakAddrs = g.cfg.breakAddrs[:0]
	for _, a := range addrs {
		g.cfg.breakAddrs = append(g.cfg.breakAddrs, int32(a))
	}
	if g.core != nil {
		g.core.cpu.SetInterruptAddresses(g.cfg.breakAddrs)
	}
}

// GetHitInterruptAddress returns the breakpoint hit during the last RunFor,
// or -1. The value resets at the start of each RunFor.
func (g *GB) GetHitInterruptAddress() int {
	if g.core == nil {
		return -1
	}
	return int(g.core.cpu.HitAddress())
}

// GetRegs returns the CPU register file.
func (g *GB) GetRegs() Regs {
	if g.core == nil {
		return Regs{}
	}
	return g.core.cpu.Regs()
}

// SetRegs replaces the CPU register file.
func (g *GB) SetRegs(r Regs) {
	if g.core != nil {
		g.core.cpu.SetRegs(r)
	}
}

// RegsToArray flattens the register file in the documented transfer order
// [pc sp a b c d e f h l].
func RegsToArray(r Regs) [10]int32 {
	return [10]int32{
		int32(r.PC), int32(r.SP),
		int32(r.A), int32(r.B), int32(r.C), int32(r.D),
		int32(r.E), int32(r.F), int32(r.H), int32(r.L),
	}
}

// RegsFromArray is the inverse of RegsToArray.
func RegsFromArray(a [10]int32) Regs {
	return Regs{
		PC: uint16(a[0]), SP: uint16(a[1]),
		A: uint8(a[2]), B: uint8(a[3]), C: uint8(a[4]), D: uint8(a[5]),
		E: uint8(a[6]), F: uint8(a[7]), H: uint8(a[8]), L: uint8(a[9]),
	}
}

// GetRtcRegs returns the RTC registers in the documented transfer order
// [dh dl h m s c dhl dll hl ml sl].
func (g *GB) GetRtcRegs() [11]uint32 {
	if g.core == nil {
		return [11]uint32{}
	}
	return g.core.clock.Regs()
}

// SetRtcRegs replaces the RTC registers, same order as GetRtcRegs.
func (g *GB) SetRtcRegs(regs [11]uint32) {
	if g.core != nil {
		g.core.clock.SetRegs(regs)
	}
}

// GetMemoryArea returns a live view of one of the six fixed memory regions.
// The slice aliases engine memory and is invalidated by Load.
func (g *GB) GetMemoryArea(which int) ([]byte, bool) {
	if g.core == nil {
		return nil, false
	}
	area := g.core.bus.MemoryArea(which)
	if area == nil {
		return nil, false
	}
	return area, true
}

// ExternalRead reads a bus address without cycle cost and without firing
// the CPU access callbacks. Returns 0xFF when nothing is loaded.
func (g *GB) ExternalRead(address uint16) uint8 {
	if g.core == nil {
		return 0xFF
	}
	return g.core.bus.ExternalRead(address)
}

// ExternalWrite writes a bus address without cycle cost and without firing
// the CPU access callbacks.
func (g *GB) ExternalWrite(address uint16, value uint8) {
	if g.core != nil {
		g.core.bus.ExternalWrite(address, value)
	}
}

// LinkStatus inspects the serial unit without altering it. Unknown
// selectors and the unloaded state return -1.
func (g *GB) LinkStatus(which int) int {
	if g.core == nil {
		return -1
	}
	return g.core.bus.Link().Status(which)
}

// LinkReceive completes a pending externally clocked transfer with the
// remote byte, returning the byte shifted out. ok is false when no
// externally clocked transfer is waiting.
func (g *GB) LinkReceive(data uint8) (out uint8, ok bool) {
	if g.core == nil {
		return 0xFF, false
	}
	return g.core.bus.Link().Receive(data)
}

// SaveSavedataLength returns the size of the persistent savedata blob.
// Deterministic mode excludes the RTC block, whose contents depend on host
// time.
func (g *GB) SaveSavedataLength(deterministic bool) int {
	if g.core == nil {
		return 0
	}
	n := 0
	if g.core.cart.HasBattery() {
		n += len(g.core.bus.MemoryArea(AreaCartRAM))
	}
	if g.core.cart.HasRTC() && !deterministic {
		n += rtc.SavedataLen
	}
	return n
}

// SaveSavedata serializes battery-backed cartridge RAM plus, outside
// deterministic mode, the RTC block. Returns nil when the cartridge has no
// persistent state.
func (g *GB) SaveSavedata(deterministic bool) []byte {
	n := g.SaveSavedataLength(deterministic)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	pos := 0
	if g.core.cart.HasBattery() {
		pos += copy(out, g.core.bus.MemoryArea(AreaCartRAM))
	}
	if g.core.cart.HasRTC() && !deterministic {
		g.core.clock.MarshalSavedata(out[pos:])
	}
	return out
}

// LoadSavedata restores a blob produced by SaveSavedata. Short data fills
// what it covers; extra data is ignored.
func (g *GB) LoadSavedata(data []byte) {
	if g.core == nil {
		return
	}
	if g.core.cart.HasBattery() {
		data = data[copy(g.core.bus.MemoryArea(AreaCartRAM), data):]
	}
	if g.core.cart.HasRTC() && len(data) >= rtc.SavedataLen {
		g.core.clock.UnmarshalSavedata(data)
	}
}
