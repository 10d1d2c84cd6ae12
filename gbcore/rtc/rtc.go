// Package rtc emulates the MBC3 cartridge real-time clock.
//
// The clock has five live counters (seconds, minutes, hours and a 9-bit day
// counter with halt and carry flags) plus a latched copy of each. A latch
// command freezes the latched copies so the CPU can read a consistent time
// while the live counters keep running.
package rtc

import (
	"encoding/binary"
	"time"

	"github.com/valerio/go-gbcore/gbcore/state"
)

// BaseClockRate is the assumed CPU clock in cycles per second. The effective
// divisor for cycle-based timekeeping is BaseClockRate plus the configured
// divisor offset.
const BaseClockRate = 4194304

// SavedataLen is the size of the RTC block in the persistent savedata blob:
// ten counter bytes, the sub-second cycle accumulator and a unix timestamp.
const SavedataLen = 10 + 8 + 8

// register indexes as mapped by MBC3 RAM bank selection (0x08-0x0C).
const (
	RegSec = iota
	RegMin
	RegHour
	RegDayLow
	RegDayHigh
)

// dayHigh flag bits.
const (
	dayHighBit  = 0x01
	haltBit     = 0x40
	carryBit    = 0x80
	dayHighMask = dayHighBit | haltBit | carryBit
)

// Clock abstracts the host time source so wall-clock behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClockFunc func() time.Time

func (f systemClockFunc) Now() time.Time { return f() }

// RTC holds the live and latched counter state.
type RTC struct {
	live    [5]uint8
	latched [5]uint8

	// latch sequence: writing 0x00 then 0x01 to the latch address copies the
	// live counters into the latched set.
	lastLatchWrite uint8

	useCycles bool
	divisor   int64
	cycleAcc  int64

	clock    Clock
	lastTime time.Time
}

// New returns an RTC in wall-clock mode backed by the system clock.
func New() *RTC {
	return NewWithClock(systemClockFunc(time.Now))
}

// NewWithClock returns an RTC using the supplied host time source.
func NewWithClock(clock Clock) *RTC {
	return &RTC{
		divisor:  BaseClockRate,
		clock:    clock,
		lastTime: clock.Now(),
	}
}

// SetTimeMode selects cycle-based (deterministic) or wall-clock timekeeping.
func (r *RTC) SetTimeMode(useCycles bool) {
	if r.useCycles == useCycles {
		return
	}
	r.catchUp()
	r.useCycles = useCycles
	r.cycleAcc = 0
	r.lastTime = r.clock.Now()
}

// SetDivisorOffset adjusts the assumed CPU clock rate for cycle-based mode.
func (r *RTC) SetDivisorOffset(offset int64) {
	r.divisor = BaseClockRate + offset
	if r.divisor <= 0 {
		r.divisor = 1
	}
}

// Tick advances cycle-based time. It is a no-op in wall-clock mode.
func (r *RTC) Tick(cycles int64) {
	if !r.useCycles || r.halted() {
		return
	}
	r.cycleAcc += cycles
	for r.cycleAcc >= r.divisor {
		r.cycleAcc -= r.divisor
		r.advanceSecond()
	}
}

// Read returns the latched value of the given register (RegSec..RegDayHigh).
func (r *RTC) Read(reg int) uint8 {
	if reg < RegSec || reg > RegDayHigh {
		return 0xFF
	}
	return r.latched[reg]
}

// Write stores into a live register. Hardware writes go to the live counters;
// the latched copies change only on a latch command.
func (r *RTC) Write(reg int, value uint8) {
	if reg < RegSec || reg > RegDayHigh {
		return
	}
	r.catchUp()
	if reg == RegDayHigh {
		value &= dayHighMask
	}
	r.live[reg] = value
	// writing seconds also resets the sub-second progress, like hardware
	if reg == RegSec {
		r.cycleAcc = 0
		r.lastTime = r.clock.Now()
	}
}

// WriteLatch handles a write to the MBC3 latch address range. The 0x00 to
// 0x01 sequence copies the live counters into the latched registers.
func (r *RTC) WriteLatch(value uint8) {
	if r.lastLatchWrite == 0x00 && value == 0x01 {
		r.Latch()
	}
	r.lastLatchWrite = value
}

// Latch copies the live counters into the latched set.
func (r *RTC) Latch() {
	r.catchUp()
	r.latched = r.live
}

// Regs returns all counters in the fixed external order
// [dh, dl, h, m, s, c, dhl, dll, hl, ml, sl], where c is the sub-second
// cycle accumulator and the l-suffixed entries are the latched copies.
func (r *RTC) Regs() [11]uint32 {
	r.catchUp()
	return [11]uint32{
		uint32(r.live[RegDayHigh]),
		uint32(r.live[RegDayLow]),
		uint32(r.live[RegHour]),
		uint32(r.live[RegMin]),
		uint32(r.live[RegSec]),
		uint32(r.cycleAcc),
		uint32(r.latched[RegDayHigh]),
		uint32(r.latched[RegDayLow]),
		uint32(r.latched[RegHour]),
		uint32(r.latched[RegMin]),
		uint32(r.latched[RegSec]),
	}
}

// SetRegs installs counters in the same order Regs returns them.
func (r *RTC) SetRegs(regs [11]uint32) {
	r.live[RegDayHigh] = uint8(regs[0]) & dayHighMask
	r.live[RegDayLow] = uint8(regs[1])
	r.live[RegHour] = uint8(regs[2])
	r.live[RegMin] = uint8(regs[3])
	r.live[RegSec] = uint8(regs[4])
	r.cycleAcc = int64(regs[5])
	r.latched[RegDayHigh] = uint8(regs[6]) & dayHighMask
	r.latched[RegDayLow] = uint8(regs[7])
	r.latched[RegHour] = uint8(regs[8])
	r.latched[RegMin] = uint8(regs[9])
	r.latched[RegSec] = uint8(regs[10])
	r.lastTime = r.clock.Now()
}

// Reset restores power-on state. Counters persist on real hardware, so only
// the latch sequence tracking is cleared.
func (r *RTC) Reset() {
	r.lastLatchWrite = 0xFF
}

// Sync serializes every mutable field for save-states.
func (r *RTC) Sync(s *state.Stream) {
	s.Bytes(r.live[:])
	s.Bytes(r.latched[:])
	s.U8(&r.lastLatchWrite)
	s.Bool(&r.useCycles)
	s.I64(&r.divisor)
	s.I64(&r.cycleAcc)
	unix := r.lastTime.Unix()
	s.I64(&unix)
	if s.Mode() == state.Load {
		r.lastTime = time.Unix(unix, 0)
	}
}

// MarshalSavedata writes the fixed-layout RTC block used in savedata files.
func (r *RTC) MarshalSavedata(dst []byte) {
	r.catchUp()
	copy(dst[0:5], r.live[:])
	copy(dst[5:10], r.latched[:])
	binary.LittleEndian.PutUint64(dst[10:18], uint64(r.cycleAcc))
	binary.LittleEndian.PutUint64(dst[18:26], uint64(r.lastTime.Unix()))
}

// UnmarshalSavedata restores the block written by MarshalSavedata. In
// wall-clock mode the time elapsed since saving is applied to the counters.
func (r *RTC) UnmarshalSavedata(src []byte) {
	copy(r.live[:], src[0:5])
	copy(r.latched[:], src[5:10])
	r.live[RegDayHigh] &= dayHighMask
	r.latched[RegDayHigh] &= dayHighMask
	r.cycleAcc = int64(binary.LittleEndian.Uint64(src[10:18]))
	r.lastTime = time.Unix(int64(binary.LittleEndian.Uint64(src[18:26])), 0)
	if r.useCycles {
		r.lastTime = r.clock.Now()
	} else {
		r.catchUp()
	}
}

func (r *RTC) halted() bool {
	return r.live[RegDayHigh]&haltBit != 0
}

// catchUp folds elapsed host time into the live counters (wall-clock mode).
func (r *RTC) catchUp() {
	now := r.clock.Now()
	if r.useCycles || r.halted() {
		r.lastTime = now
		return
	}
	elapsed := now.Sub(r.lastTime)
	whole := int64(elapsed / time.Second)
	if whole <= 0 {
		return
	}
	r.lastTime = r.lastTime.Add(time.Duration(whole) * time.Second)
	for i := int64(0); i < whole; i++ {
		r.advanceSecond()
	}
}

// advanceSecond increments the counter chain by one second. The day counter
// overflowing its 9 bits sets the carry flag; it is never cleared implicitly.
func (r *RTC) advanceSecond() {
	r.live[RegSec]++
	if r.live[RegSec] < 60 {
		return
	}
	r.live[RegSec] = 0
	r.live[RegMin]++
	if r.live[RegMin] < 60 {
		return
	}
	r.live[RegMin] = 0
	r.live[RegHour]++
	if r.live[RegHour] < 24 {
		return
	}
	r.live[RegHour] = 0
	if r.live[RegDayLow] < 0xFF {
		r.live[RegDayLow]++
		return
	}
	r.live[RegDayLow] = 0
	if r.live[RegDayHigh]&dayHighBit == 0 {
		r.live[RegDayHigh] |= dayHighBit
		return
	}
	r.live[RegDayHigh] &^= dayHighBit
	r.live[RegDayHigh] |= carryBit
}
