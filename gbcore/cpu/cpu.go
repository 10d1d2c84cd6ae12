// Package cpu implements the SM83 core: registers, the interrupt state
// machine, halt and stop handling, and the full instruction set.
package cpu

import (
	"github.com/valerio/go-gbcore/gbcore/state"
)

// flag bits in F
const (
	flagZ uint8 = 0x80
	flagN uint8 = 0x40
	flagH uint8 = 0x20
	flagC uint8 = 0x10
)

// interruptDispatchCycles is the cost of jumping to an interrupt vector.
const interruptDispatchCycles = 20

// Bus is the CPU's view of memory. Opcode and operand fetches are
// distinguished from data accesses so instrumentation can classify them;
// the refetch flag on ReadOpcode marks the repeated fetch caused by the
// halt bug.
type Bus interface {
	Read(address uint16) uint8
	ReadOperand(address uint16) uint8
	ReadOpcode(address uint16, refetch bool) uint8
	Write(address uint16, value uint8)

	// Pending returns the interrupt sources both raised and enabled.
	Pending() uint8
	// ClearInterrupt acknowledges the given IF bits.
	ClearInterrupt(mask uint8)

	// ROMBank qualifies program addresses in the switchable window for
	// breakpoint matching.
	ROMBank() int
	// SpeedSwitch commits an armed speed switch, reporting whether one was
	// pending. Consulted by STOP.
	SpeedSwitch() bool
}

// Regs is a snapshot of the register file.
type Regs struct {
	PC, SP                 uint16
	A, F, B, C, D, E, H, L uint8
}

// TraceFunc observes the register state before an instruction executes.
type TraceFunc func(Regs)

// CPU is the SM83 core.
type CPU struct {
	bus Bus

	a, f uint8
	b, c uint8
	d, e uint8
	h, l uint8
	sp   uint16
	pc   uint16

	ime        bool
	imePending bool
	halted     bool
	stopped    bool
	haltBug    bool
	refetch    bool

	trace TraceFunc

	breaks map[int32]struct{}
	hit    int32
}

// New creates a core on the given bus with cleared registers. Power-on
// values are set by the boot path.
func New(bus Bus) *CPU {
	return &CPU{bus: bus, hit: -1}
}

// Regs returns the current register file.
func (c *CPU) Regs() Regs {
	return Regs{
		PC: c.pc, SP: c.sp,
		A: c.a, F: c.f, B: c.b, C: c.c,
		D: c.d, E: c.e, H: c.h, L: c.l,
	}
}

// SetRegs overwrites the register file. The low F bits stay clear, as on
// hardware.
func (c *CPU) SetRegs(r Regs) {
	c.pc, c.sp = r.PC, r.SP
	c.a, c.f = r.A, r.F&0xF0
	c.b, c.c = r.B, r.C
	c.d, c.e = r.D, r.E
	c.h, c.l = r.H, r.L
}

// SetTrace installs a per-instruction observer. Nil disables it.
func (c *CPU) SetTrace(t TraceFunc) { c.trace = t }

// SetInterruptAddresses installs execution breakpoints. Addresses in the
// switchable ROM window are bank-qualified as bank<<16|pc. An empty slice
// removes all breakpoints.
func (c *CPU) SetInterruptAddresses(addrs []int32) {
	if len(addrs) == 0 {
		c.breaks = nil
		return
	}
	c.breaks = make(map[int32]struct{}, len(addrs))
	for _, a := range addrs {
		c.breaks[a] = struct{}{}
	}
}

// HitAddress returns the breakpoint hit since the last ClearHit, or -1.
func (c *CPU) HitAddress() int32 { return c.hit }

// ClearHit rearms breakpoint reporting.
func (c *CPU) ClearHit() { c.hit = -1 }

// Halted reports whether the core waits for an interrupt.
func (c *CPU) Halted() bool { return c.halted }

// breakKey bank-qualifies the current program counter.
func (c *CPU) breakKey() int32 {
	if c.pc >= 0x4000 && c.pc < 0x8000 {
		return int32(c.bus.ROMBank())<<16 | int32(c.pc)
	}
	return int32(c.pc)
}

// Step runs one instruction or interrupt dispatch and returns the consumed
// CPU cycles. It returns 0 when a breakpoint at the current program
// counter stops execution before the fetch.
func (c *CPU) Step() int {
	if pending := c.bus.Pending(); pending != 0 {
		c.halted = false
		c.stopped = false
		if c.ime {
			return c.dispatchInterrupt(pending)
		}
	}
	if c.halted || c.stopped {
		return 4
	}

	if c.breaks != nil && c.hit < 0 {
		key := c.breakKey()
		if _, ok := c.breaks[key]; ok {
			c.hit = key
			return 0
		}
	}

	if c.trace != nil {
		c.trace(c.Regs())
	}

	// EI takes effect after the instruction that follows it
	enableIME := c.imePending

	op := c.bus.ReadOpcode(c.pc, c.refetch)
	c.refetch = false
	if c.haltBug {
		// the fetch fails to advance PC once; the same byte runs again
		c.haltBug = false
		c.refetch = true
	} else {
		c.pc++
	}

	cycles := c.execute(op)

	if enableIME {
		c.ime = true
		c.imePending = false
	}
	return cycles
}

// dispatchInterrupt jumps to the highest priority pending vector.
func (c *CPU) dispatchInterrupt(pending uint8) int {
	c.ime = false
	c.imePending = false

	mask := pending & (^pending + 1) // lowest set bit wins
	c.bus.ClearInterrupt(mask)

	c.push16(c.pc)
	vector := uint16(0x40)
	for m := mask; m > 1; m >>= 1 {
		vector += 8
	}
	c.pc = vector
	return interruptDispatchCycles
}

// fetch8 reads the next operand byte.
func (c *CPU) fetch8() uint8 {
	v := c.bus.ReadOperand(c.pc)
	c.pc++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return hi<<8 | lo
}

func (c *CPU) bc() uint16 { return uint16(c.b)<<8 | uint16(c.c) }
func (c *CPU) de() uint16 { return uint16(c.d)<<8 | uint16(c.e) }
func (c *CPU) hl() uint16 { return uint16(c.h)<<8 | uint16(c.l) }
func (c *CPU) af() uint16 { return uint16(c.a)<<8 | uint16(c.f) }

func (c *CPU) setBC(v uint16) { c.b, c.c = uint8(v>>8), uint8(v) }
func (c *CPU) setDE(v uint16) { c.d, c.e = uint8(v>>8), uint8(v) }
func (c *CPU) setHL(v uint16) { c.h, c.l = uint8(v>>8), uint8(v) }
func (c *CPU) setAF(v uint16) { c.a, c.f = uint8(v>>8), uint8(v)&0xF0 }

func (c *CPU) flag(mask uint8) bool { return c.f&mask != 0 }

func (c *CPU) setFlag(mask uint8, on bool) {
	if on {
		c.f |= mask
	} else {
		c.f &^= mask
	}
}

func (c *CPU) push16(v uint16) {
	c.sp--
	c.bus.Write(c.sp, uint8(v>>8))
	c.sp--
	c.bus.Write(c.sp, uint8(v))
}

func (c *CPU) pop16() uint16 {
	lo := uint16(c.bus.Read(c.sp))
	c.sp++
	hi := uint16(c.bus.Read(c.sp))
	c.sp++
	return hi<<8 | lo
}

// Reset clears the register file and interrupt state. Breakpoints and the
// trace hook are host configuration and survive.
func (c *CPU) Reset() {
	c.a, c.f, c.b, c.c = 0, 0, 0, 0
	c.d, c.e, c.h, c.l = 0, 0, 0, 0
	c.sp, c.pc = 0, 0
	c.ime = false
	c.imePending = false
	c.halted = false
	c.stopped = false
	c.haltBug = false
	c.refetch = false
	c.hit = -1
}

// Sync serializes the core state.
func (c *CPU) Sync(s *state.Stream) {
	s.U8(&c.a)
	s.U8(&c.f)
	s.U8(&c.b)
	s.U8(&c.c)
	s.U8(&c.d)
	s.U8(&c.e)
	s.U8(&c.h)
	s.U8(&c.l)
	s.U16(&c.sp)
	s.U16(&c.pc)
	s.Bool(&c.ime)
	s.Bool(&c.imePending)
	s.Bool(&c.halted)
	s.Bool(&c.stopped)
	s.Bool(&c.haltBug)
	s.Bool(&c.refetch)
}
