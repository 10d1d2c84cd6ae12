// Package serial emulates the link cable port as a shift register.
//
// With the internal clock selected, one bit shifts every 512 cycles (8192 Hz
// on the DMG bit clock), so a byte completes after 4096 cycles. With the
// external clock selected the peer paces the transfer; without a peer the
// transfer stays pending indefinitely, which matches a disconnected cable.
package serial

import (
	"github.com/valerio/go-gbcore/gbcore/addr"
	"github.com/valerio/go-gbcore/gbcore/bit"
	"github.com/valerio/go-gbcore/gbcore/state"
)

// cyclesPerBit is the internal clock bit period in CPU cycles.
const cyclesPerBit = 512

// LinkStatus query selectors, see Link.Status.
const (
	StatusShiftReg = iota
	StatusClockInternal
	StatusBitsLeft
)

// Link is the serial transfer unit mapped at SB/SC.
type Link struct {
	sb uint8
	sc uint8

	active    bool
	bitsLeft  int
	countdown int

	// dataSent fires after a byte has fully shifted out, before the Serial
	// interrupt is requested.
	dataSent func()
	irq      func(addr.Interrupt)
}

// New creates a link unit. irq is called to request the Serial interrupt.
func New(irq func(addr.Interrupt)) *Link {
	return &Link{irq: irq}
}

// SetDataSentCallback installs the host callback invoked when a byte has
// been shifted out. A nil callback disables the hook.
func (l *Link) SetDataSentCallback(cb func()) {
	l.dataSent = cb
}

// Read services CPU reads of SB and SC.
func (l *Link) Read(address uint16) uint8 {
	switch address {
	case addr.SB:
		return l.sb
	case addr.SC:
		// unused bits read as 1
		return l.sc | 0x7E
	}
	return 0xFF
}

// Write services CPU writes to SB and SC.
func (l *Link) Write(address uint16, value uint8) {
	switch address {
	case addr.SB:
		l.sb = value
	case addr.SC:
		l.sc = value & 0x81
		if bit.IsSet(7, l.sc) && !l.active {
			l.active = true
			l.bitsLeft = 8
			l.countdown = cyclesPerBit
		}
	}
}

// Tick advances an active transfer by the given number of cycles. Externally
// clocked transfers do not self-advance.
func (l *Link) Tick(cycles int) {
	if !l.active || !bit.IsSet(0, l.sc) {
		return
	}
	l.countdown -= cycles
	for l.countdown <= 0 && l.bitsLeft > 0 {
		l.countdown += cyclesPerBit
		l.shiftBit()
	}
}

// shiftBit moves one bit out of SB, shifting in 1 (no connected peer).
func (l *Link) shiftBit() {
	l.sb = l.sb<<1 | 0x01
	l.bitsLeft--
	if l.bitsLeft == 0 {
		l.complete()
	}
}

func (l *Link) complete() {
	l.active = false
	l.countdown = 0
	l.sc = bit.Clear(7, l.sc)
	if l.dataSent != nil {
		l.dataSent()
	}
	if l.irq != nil {
		l.irq(addr.SerialInterrupt)
	}
}

// Receive completes a pending externally clocked transfer with the byte the
// peer shifted in, returning the byte shifted out. ok is false when no
// externally clocked transfer is pending, in which case nothing changes.
func (l *Link) Receive(in uint8) (out uint8, ok bool) {
	if !l.active || bit.IsSet(0, l.sc) {
		return 0, false
	}
	out = l.sb
	l.sb = in
	l.bitsLeft = 0
	l.complete()
	return out, true
}

// Status inspects the unit without altering it. which selects the value:
// StatusShiftReg returns the shift register contents, StatusClockInternal
// returns 1 for the internal clock, StatusBitsLeft the bits still pending
// (0 when idle). Unknown selectors return -1.
func (l *Link) Status(which int) int {
	switch which {
	case StatusShiftReg:
		return int(l.sb)
	case StatusClockInternal:
		if bit.IsSet(0, l.sc) {
			return 1
		}
		return 0
	case StatusBitsLeft:
		if !l.active {
			return 0
		}
		return l.bitsLeft
	}
	return -1
}

// Reset restores power-on state.
func (l *Link) Reset() {
	l.sb = 0x00
	l.sc = 0x00
	l.active = false
	l.bitsLeft = 0
	l.countdown = 0
}

// Sync serializes the shift state for save-states.
func (l *Link) Sync(s *state.Stream) {
	s.U8(&l.sb)
	s.U8(&l.sc)
	s.Bool(&l.active)
	s.Int(&l.bitsLeft)
	s.Int(&l.countdown)
}
