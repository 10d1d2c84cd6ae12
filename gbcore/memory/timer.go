package memory

import (
	"github.com/valerio/go-gbcore/gbcore/addr"
	"github.com/valerio/go-gbcore/gbcore/bit"
	"github.com/valerio/go-gbcore/gbcore/state"
)

// tacLookup maps the TAC clock select (bits 1-0) to the bit of the internal
// 16-bit divider used as the timer clock. TIMA increments on falling edges
// of the selected bit while the timer is enabled.
//
//	00 -> bit 9  (4096 Hz)
//	01 -> bit 3  (262144 Hz)
//	10 -> bit 5  (65536 Hz)
//	11 -> bit 7  (16384 Hz)
var tacLookup = [4]uint16{9, 3, 5, 7}

// Timer implements DIV/TIMA/TMA/TAC. The DIV register is the upper byte of
// the free-running divider; writing it clears the whole counter, which can
// itself produce a falling edge and an extra TIMA increment.
type Timer struct {
	divider      uint16
	lastBit      bool
	overflowWait int  // cycles left in the TIMA overflow limbo state
	pendingIRQ   bool // interrupt raised one cycle after TMA reload

	tima uint8
	tma  uint8
	tac  uint8

	irq func(addr.Interrupt)
}

func (t *Timer) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		if t.pendingIRQ {
			t.pendingIRQ = false
			if t.irq != nil {
				t.irq(addr.TimerInterrupt)
			}
		}

		t.divider++

		if t.overflowWait > 0 {
			t.overflowWait--
			if t.overflowWait == 0 {
				t.tima = t.tma
				t.pendingIRQ = true
			}
			continue
		}

		if !bit.IsSet(2, t.tac) {
			t.lastBit = false
			continue
		}

		current := bit.IsSet16(tacLookup[t.tac&0x03], t.divider)
		if t.lastBit && !current {
			t.increment()
		}
		t.lastBit = current
	}
}

func (t *Timer) increment() {
	if t.tima == 0xFF {
		t.overflowWait = 4
	}
	t.tima++
}

func (t *Timer) Read(address uint16) uint8 {
	switch address {
	case addr.DIV:
		return uint8(t.divider >> 8)
	case addr.TIMA:
		return t.tima
	case addr.TMA:
		return t.tma
	case addr.TAC:
		return t.tac | 0xF8
	}
	return 0xFF
}

func (t *Timer) Write(address uint16, value uint8) {
	switch address {
	case addr.DIV:
		t.divider = 0
	case addr.TIMA:
		t.tima = value
	case addr.TMA:
		t.tma = value
	case addr.TAC:
		t.tac = value & 0x07
	}
}

// Divider exposes the internal counter for power-on seeding.
func (t *Timer) Divider() uint16 { return t.divider }

// SetDivider seeds the internal counter, used by the no-BIOS boot path.
func (t *Timer) SetDivider(seed uint16) {
	t.divider = seed
	t.lastBit = false
	t.overflowWait = 0
	t.pendingIRQ = false
}

func (t *Timer) Reset() {
	t.divider = 0
	t.lastBit = false
	t.overflowWait = 0
	t.pendingIRQ = false
	t.tima = 0
	t.tma = 0
	t.tac = 0
}

func (t *Timer) Sync(s *state.Stream) {
	s.U16(&t.divider)
	s.Bool(&t.lastBit)
	s.Int(&t.overflowWait)
	s.Bool(&t.pendingIRQ)
	s.U8(&t.tima)
	s.U8(&t.tma)
	s.U8(&t.tac)
}
