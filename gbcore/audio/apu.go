// Package audio implements the four-channel audio unit.
//
// Generation is lazy: the APU remembers the cycle it has rendered up to and
// catches up only when the run loop flushes it or when the CPU touches an
// audio register, so register reads always observe an up-to-date unit.
package audio

import (
	"github.com/valerio/go-gbcore/gbcore/addr"
	"github.com/valerio/go-gbcore/gbcore/bit"
	"github.com/valerio/go-gbcore/gbcore/state"
)

// CyclesPerSample is the number of 4 MiHz cycles per output stereo sample,
// giving 35112 samples per 70224-cycle video frame.
const CyclesPerSample = 2

// frameSequencerCycles is the period of one frame sequencer step (512 Hz).
const frameSequencerCycles = 8192

var dutyPatterns = [4]uint8{0x01, 0x81, 0x87, 0x7E}

// noiseDivisors maps the NR43 divisor code to the base divisor.
var noiseDivisors = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// readMasks are OR-ed into register readback; unreadable bits return 1.
var readMasks = [0x20]uint8{
	0x80, 0x3F, 0x00, 0xFF, 0xBF, // NR10-NR14
	0xFF, 0x3F, 0x00, 0xFF, 0xBF, // NR20-NR24
	0x7F, 0xFF, 0x9F, 0xFF, 0xBF, // NR30-NR34
	0xFF, 0xFF, 0x00, 0x00, 0xBF, // NR40-NR44
	0x00, 0x00, 0x70, // NR50-NR52
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // unused
}

// APU is the audio unit. All cycle arguments are positions of the shared
// 4 MiHz counter; they must be monotonic.
type APU struct {
	enabled bool
	cycle   uint64 // generated up to here
	fsClock int    // cycles into the current frame sequencer step
	fsStep  int    // 0-7

	ch1 pulseChannel
	ch2 pulseChannel
	ch3 waveChannel
	ch4 noiseChannel

	nr50 uint8
	nr51 uint8

	regs [0x20]uint8 // raw NRxx values for readback

	buf []uint32
	pos int
}

// New returns an APU in its power-on state. Register init values are
// written by the boot heuristics through the bus, as on hardware.
func New() *APU {
	a := &APU{enabled: true}
	a.ch1.hasSweep = true
	a.ch4.lfsr = 0x7FFF
	return a
}

// AttachBuffer directs sample output into buf, starting at offset zero.
func (a *APU) AttachBuffer(buf []uint32) {
	a.buf = buf
	a.pos = 0
}

// DetachBuffer stops sample capture and returns the number of stereo
// samples produced since AttachBuffer.
func (a *APU) DetachBuffer() int {
	n := a.pos
	a.buf = nil
	a.pos = 0
	return n
}

// Pos returns the number of samples produced since AttachBuffer.
func (a *APU) Pos() int { return a.pos }

// RunTo renders samples up to the given cycle position. Without an attached
// buffer the channels still advance so register state stays accurate.
func (a *APU) RunTo(cycle uint64) {
	for a.cycle+CyclesPerSample <= cycle {
		a.stepSample()
	}
}

func (a *APU) stepSample() {
	a.cycle += CyclesPerSample

	if a.enabled {
		a.fsClock += CyclesPerSample
		if a.fsClock >= frameSequencerCycles {
			a.fsClock -= frameSequencerCycles
			a.stepFrameSequencer()
		}

		a.ch1.step(CyclesPerSample)
		a.ch2.step(CyclesPerSample)
		a.ch3.step(CyclesPerSample)
		a.ch4.step(CyclesPerSample)
	}

	if a.buf == nil {
		return
	}
	left, right := a.mix()
	if a.pos < len(a.buf) {
		a.buf[a.pos] = bit.Pack(left, right)
	}
	a.pos++
}

// stepFrameSequencer clocks length (256 Hz), sweep (128 Hz) and envelope
// (64 Hz) units.
func (a *APU) stepFrameSequencer() {
	a.fsStep = (a.fsStep + 1) & 7
	switch a.fsStep {
	case 0, 4:
		a.clockLengths()
	case 2, 6:
		a.clockLengths()
		a.ch1.clockSweep()
	case 7:
		a.ch1.clockEnvelope()
		a.ch2.clockEnvelope()
		a.ch4.clockEnvelope()
	}
}

func (a *APU) clockLengths() {
	a.ch1.clockLength()
	a.ch2.clockLength()
	a.ch3.clockLength()
	a.ch4.clockLength()
}

// mix combines the four channel outputs per the NR51 panning matrix and the
// NR50 master volume into one signed stereo pair.
func (a *APU) mix() (left, right int16) {
	if !a.enabled {
		return 0, 0
	}
	outs := [4]int32{
		int32(a.ch1.output()),
		int32(a.ch2.output()),
		int32(a.ch3.output()),
		int32(a.ch4.output()),
	}
	dacs := [4]bool{a.ch1.dacOn, a.ch2.dacOn, a.ch3.dacOn, a.ch4.dacOn}

	var l, r int32
	for i, v := range outs {
		// A powered DAC maps 0..15 onto -15..15. A disabled DAC sits at
		// the midpoint and contributes nothing even when routed.
		if !dacs[i] {
			continue
		}
		v = v*2 - 15
		if bit.IsSet(uint8(i+4), a.nr51) {
			l += v
		}
		if bit.IsSet(uint8(i), a.nr51) {
			r += v
		}
	}

	lVol := int32(a.nr50>>4&0x07) + 1
	rVol := int32(a.nr50&0x07) + 1
	return int16(l * lVol * 64), int16(r * rVol * 64)
}

// ReadRegister services CPU reads in 0xFF10-0xFF3F after catching up to the
// given cycle position.
func (a *APU) ReadRegister(cycle uint64, address uint16) uint8 {
	a.RunTo(cycle)

	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		return a.ch3.ram[address-addr.WaveRAMStart]
	}
	if address < addr.AudioStart || address > addr.NR52 {
		return 0xFF
	}

	idx := address - addr.AudioStart
	if address == addr.NR52 {
		status := uint8(0x70)
		if a.enabled {
			status |= 0x80
		}
		if a.ch1.enabled {
			status |= 0x01
		}
		if a.ch2.enabled {
			status |= 0x02
		}
		if a.ch3.enabled {
			status |= 0x04
		}
		if a.ch4.enabled {
			status |= 0x08
		}
		return status
	}
	return a.regs[idx] | readMasks[idx]
}

// WriteRegister services CPU writes in 0xFF10-0xFF3F after catching up to
// the given cycle position.
func (a *APU) WriteRegister(cycle uint64, address uint16, value uint8) {
	a.RunTo(cycle)

	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		a.ch3.ram[address-addr.WaveRAMStart] = value
		return
	}
	if address < addr.AudioStart || address > addr.NR52 {
		return
	}

	if address == addr.NR52 {
		wasEnabled := a.enabled
		a.enabled = bit.IsSet(7, value)
		if wasEnabled && !a.enabled {
			a.powerOff()
		}
		return
	}
	// with power off, only NR52 is writable
	if !a.enabled {
		return
	}

	a.regs[address-addr.AudioStart] = value

	switch address {
	case addr.NR10:
		a.ch1.writeSweep(value)
	case addr.NR11:
		a.ch1.writeLengthDuty(value)
	case addr.NR12:
		a.ch1.writeEnvelope(value)
	case addr.NR13:
		a.ch1.writeFreqLow(value)
	case addr.NR14:
		a.ch1.writeFreqHighCtl(value)
	case addr.NR21:
		a.ch2.writeLengthDuty(value)
	case addr.NR22:
		a.ch2.writeEnvelope(value)
	case addr.NR23:
		a.ch2.writeFreqLow(value)
	case addr.NR24:
		a.ch2.writeFreqHighCtl(value)
	case addr.NR30:
		a.ch3.writeDAC(value)
	case addr.NR31:
		a.ch3.writeLength(value)
	case addr.NR32:
		a.ch3.writeLevel(value)
	case addr.NR33:
		a.ch3.writeFreqLow(value)
	case addr.NR34:
		a.ch3.writeFreqHighCtl(value)
	case addr.NR41:
		a.ch4.writeLength(value)
	case addr.NR42:
		a.ch4.writeEnvelope(value)
	case addr.NR43:
		a.ch4.writePoly(value)
	case addr.NR44:
		a.ch4.writeCtl(value)
	case addr.NR50:
		a.nr50 = value
	case addr.NR51:
		a.nr51 = value
	}
}

// powerOff clears every register and channel; wave RAM survives.
func (a *APU) powerOff() {
	ram := a.ch3.ram
	a.ch1 = pulseChannel{hasSweep: true}
	a.ch2 = pulseChannel{}
	a.ch3 = waveChannel{ram: ram}
	a.ch4 = noiseChannel{lfsr: 0x7FFF}
	a.nr50 = 0
	a.nr51 = 0
	a.fsStep = 0
	a.regs = [0x20]uint8{}
}

// Reset restores power-on state. The caller is expected to rewind the
// shared cycle counter alongside, as a console reset restarts the timebase.
func (a *APU) Reset() {
	*a = APU{enabled: true}
	a.ch1.hasSweep = true
	a.ch4.lfsr = 0x7FFF
}

// Sync serializes the complete audio state.
func (a *APU) Sync(s *state.Stream) {
	s.Bool(&a.enabled)
	s.U64(&a.cycle)
	s.Int(&a.fsClock)
	s.Int(&a.fsStep)
	a.ch1.sync(s)
	a.ch2.sync(s)
	a.ch3.sync(s)
	a.ch4.sync(s)
	s.U8(&a.nr50)
	s.U8(&a.nr51)
	s.Bytes(a.regs[:])
}
