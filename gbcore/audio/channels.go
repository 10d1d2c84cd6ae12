package audio

import (
	"github.com/valerio/go-gbcore/gbcore/bit"
	"github.com/valerio/go-gbcore/gbcore/state"
)

// pulseChannel is a square wave generator with envelope, used for channels
// 1 and 2. Channel 1 additionally owns the frequency sweep unit.
type pulseChannel struct {
	enabled bool
	dacOn   bool

	duty    uint8
	dutyPos uint8
	freq    uint16 // 11-bit period register
	timer   int

	volume     uint8
	envVolume  uint8 // reload value
	envAdd     bool
	envPeriod  uint8
	envTimer   uint8
	envRunning bool

	length     int
	lengthOn   bool
	hasSweep   bool
	sweepOn    bool
	sweepNeg   bool
	sweepShift uint8
	sweepPer   uint8
	sweepTimer uint8
	sweepFreq  uint16
}

func (c *pulseChannel) period() int { return (2048 - int(c.freq)) * 4 }

func (c *pulseChannel) step(cycles int) {
	c.timer -= cycles
	for c.timer <= 0 {
		c.timer += c.period()
		c.dutyPos = (c.dutyPos + 1) & 7
	}
}

func (c *pulseChannel) output() uint8 {
	if !c.enabled || !c.dacOn {
		return 0
	}
	if dutyPatterns[c.duty]&(1<<c.dutyPos) == 0 {
		return 0
	}
	return c.volume
}

func (c *pulseChannel) writeSweep(value uint8) {
	c.sweepPer = value >> 4 & 0x07
	c.sweepNeg = bit.IsSet(3, value)
	c.sweepShift = value & 0x07
}

func (c *pulseChannel) writeLengthDuty(value uint8) {
	c.duty = value >> 6
	c.length = 64 - int(value&0x3F)
}

func (c *pulseChannel) writeEnvelope(value uint8) {
	c.envVolume = value >> 4
	c.envAdd = bit.IsSet(3, value)
	c.envPeriod = value & 0x07
	c.dacOn = value&0xF8 != 0
	if !c.dacOn {
		c.enabled = false
	}
}

func (c *pulseChannel) writeFreqLow(value uint8) {
	c.freq = c.freq&0x0700 | uint16(value)
}

func (c *pulseChannel) writeFreqHighCtl(value uint8) {
	c.freq = c.freq&0x00FF | uint16(value&0x07)<<8
	c.lengthOn = bit.IsSet(6, value)
	if bit.IsSet(7, value) {
		c.trigger()
	}
}

func (c *pulseChannel) trigger() {
	c.enabled = c.dacOn
	if c.length == 0 {
		c.length = 64
	}
	c.timer = c.period()
	c.volume = c.envVolume
	c.envTimer = c.envPeriod
	c.envRunning = true

	if c.hasSweep {
		c.sweepFreq = c.freq
		c.sweepTimer = c.sweepPer
		if c.sweepTimer == 0 {
			c.sweepTimer = 8
		}
		c.sweepOn = c.sweepPer != 0 || c.sweepShift != 0
		if c.sweepShift != 0 && c.nextSweepFreq() > 2047 {
			c.enabled = false
		}
	}
}

func (c *pulseChannel) clockLength() {
	if c.lengthOn && c.length > 0 {
		c.length--
		if c.length == 0 {
			c.enabled = false
		}
	}
}

func (c *pulseChannel) clockEnvelope() {
	if c.envPeriod == 0 || !c.envRunning {
		return
	}
	c.envTimer--
	if c.envTimer > 0 {
		return
	}
	c.envTimer = c.envPeriod
	if c.envAdd && c.volume < 15 {
		c.volume++
	} else if !c.envAdd && c.volume > 0 {
		c.volume--
	} else {
		c.envRunning = false
	}
}

func (c *pulseChannel) nextSweepFreq() uint16 {
	delta := c.sweepFreq >> c.sweepShift
	if c.sweepNeg {
		return c.sweepFreq - delta
	}
	return c.sweepFreq + delta
}

func (c *pulseChannel) clockSweep() {
	if !c.hasSweep || !c.sweepOn {
		return
	}
	c.sweepTimer--
	if c.sweepTimer > 0 {
		return
	}
	c.sweepTimer = c.sweepPer
	if c.sweepTimer == 0 {
		c.sweepTimer = 8
	}
	if c.sweepPer == 0 {
		return
	}
	next := c.nextSweepFreq()
	if next > 2047 {
		c.enabled = false
		return
	}
	if c.sweepShift != 0 {
		c.sweepFreq = next
		c.freq = next
		if c.nextSweepFreq() > 2047 {
			c.enabled = false
		}
	}
}

func (c *pulseChannel) sync(s *state.Stream) {
	s.Bool(&c.enabled)
	s.Bool(&c.dacOn)
	s.U8(&c.duty)
	s.U8(&c.dutyPos)
	s.U16(&c.freq)
	s.Int(&c.timer)
	s.U8(&c.volume)
	s.U8(&c.envVolume)
	s.Bool(&c.envAdd)
	s.U8(&c.envPeriod)
	s.U8(&c.envTimer)
	s.Bool(&c.envRunning)
	s.Int(&c.length)
	s.Bool(&c.lengthOn)
	s.Bool(&c.hasSweep)
	s.Bool(&c.sweepOn)
	s.Bool(&c.sweepNeg)
	s.U8(&c.sweepShift)
	s.U8(&c.sweepPer)
	s.U8(&c.sweepTimer)
	s.U16(&c.sweepFreq)
}

// waveChannel plays 4-bit samples out of the 16-byte wave RAM.
type waveChannel struct {
	enabled bool
	dacOn   bool

	freq  uint16
	timer int
	pos   uint8 // 0-31, nibble index

	level    uint8 // volume code from NR32
	length   int
	lengthOn bool

	ram [16]uint8
}

func (c *waveChannel) period() int { return (2048 - int(c.freq)) * 2 }

func (c *waveChannel) step(cycles int) {
	if !c.enabled {
		return
	}
	c.timer -= cycles
	for c.timer <= 0 {
		c.timer += c.period()
		c.pos = (c.pos + 1) & 31
	}
}

func (c *waveChannel) output() uint8 {
	if !c.enabled || !c.dacOn {
		return 0
	}
	sample := c.ram[c.pos/2]
	if c.pos&1 == 0 {
		sample >>= 4
	}
	sample &= 0x0F
	switch c.level {
	case 0:
		return 0
	case 1:
		return sample
	case 2:
		return sample >> 1
	default:
		return sample >> 2
	}
}

func (c *waveChannel) writeDAC(value uint8) {
	c.dacOn = bit.IsSet(7, value)
	if !c.dacOn {
		c.enabled = false
	}
}

func (c *waveChannel) writeLength(value uint8) {
	c.length = 256 - int(value)
}

func (c *waveChannel) writeLevel(value uint8) {
	c.level = value >> 5 & 0x03
}

func (c *waveChannel) writeFreqLow(value uint8) {
	c.freq = c.freq&0x0700 | uint16(value)
}

func (c *waveChannel) writeFreqHighCtl(value uint8) {
	c.freq = c.freq&0x00FF | uint16(value&0x07)<<8
	c.lengthOn = bit.IsSet(6, value)
	if bit.IsSet(7, value) {
		c.enabled = c.dacOn
		if c.length == 0 {
			c.length = 256
		}
		c.timer = c.period()
		c.pos = 0
	}
}

func (c *waveChannel) clockLength() {
	if c.lengthOn && c.length > 0 {
		c.length--
		if c.length == 0 {
			c.enabled = false
		}
	}
}

func (c *waveChannel) sync(s *state.Stream) {
	s.Bool(&c.enabled)
	s.Bool(&c.dacOn)
	s.U16(&c.freq)
	s.Int(&c.timer)
	s.U8(&c.pos)
	s.U8(&c.level)
	s.Int(&c.length)
	s.Bool(&c.lengthOn)
	s.Bytes(c.ram[:])
}

// noiseChannel is the LFSR noise generator.
type noiseChannel struct {
	enabled bool
	dacOn   bool

	lfsr  uint16
	width bool // true selects the 7-bit tap
	shift uint8
	div   uint8
	timer int

	volume     uint8
	envVolume  uint8
	envAdd     bool
	envPeriod  uint8
	envTimer   uint8
	envRunning bool

	length   int
	lengthOn bool
}

func (c *noiseChannel) period() int { return noiseDivisors[c.div] << c.shift }

func (c *noiseChannel) step(cycles int) {
	if !c.enabled {
		return
	}
	c.timer -= cycles
	for c.timer <= 0 {
		c.timer += c.period()
		feedback := (c.lfsr ^ c.lfsr>>1) & 1
		c.lfsr = c.lfsr>>1 | feedback<<14
		if c.width {
			c.lfsr = c.lfsr&^0x40 | feedback<<6
		}
	}
}

func (c *noiseChannel) output() uint8 {
	if !c.enabled || !c.dacOn || c.lfsr&1 != 0 {
		return 0
	}
	return c.volume
}

func (c *noiseChannel) writeLength(value uint8) {
	c.length = 64 - int(value&0x3F)
}

func (c *noiseChannel) writeEnvelope(value uint8) {
	c.envVolume = value >> 4
	c.envAdd = bit.IsSet(3, value)
	c.envPeriod = value & 0x07
	c.dacOn = value&0xF8 != 0
	if !c.dacOn {
		c.enabled = false
	}
}

func (c *noiseChannel) writePoly(value uint8) {
	c.shift = value >> 4
	c.width = bit.IsSet(3, value)
	c.div = value & 0x07
}

func (c *noiseChannel) writeCtl(value uint8) {
	c.lengthOn = bit.IsSet(6, value)
	if bit.IsSet(7, value) {
		c.enabled = c.dacOn
		if c.length == 0 {
			c.length = 64
		}
		c.timer = c.period()
		c.lfsr = 0x7FFF
		c.volume = c.envVolume
		c.envTimer = c.envPeriod
		c.envRunning = true
	}
}

func (c *noiseChannel) clockLength() {
	if c.lengthOn && c.length > 0 {
		c.length--
		if c.length == 0 {
			c.enabled = false
		}
	}
}

func (c *noiseChannel) clockEnvelope() {
	if c.envPeriod == 0 || !c.envRunning {
		return
	}
	c.envTimer--
	if c.envTimer > 0 {
		return
	}
	c.envTimer = c.envPeriod
	if c.envAdd && c.volume < 15 {
		c.volume++
	} else if !c.envAdd && c.volume > 0 {
		c.volume--
	} else {
		c.envRunning = false
	}
}

func (c *noiseChannel) sync(s *state.Stream) {
	s.Bool(&c.enabled)
	s.Bool(&c.dacOn)
	s.U16(&c.lfsr)
	s.Bool(&c.width)
	s.U8(&c.shift)
	s.U8(&c.div)
	s.Int(&c.timer)
	s.U8(&c.volume)
	s.U8(&c.envVolume)
	s.Bool(&c.envAdd)
	s.U8(&c.envPeriod)
	s.U8(&c.envTimer)
	s.Bool(&c.envRunning)
	s.Int(&c.length)
	s.Bool(&c.lengthOn)
}
