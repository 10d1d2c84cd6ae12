package gbcore

// RunFor emulates until the sample buffer holds at least *samples stereo
// samples or a video frame completes, whichever comes first. Each buffer
// entry packs a left/right pair of signed 16-bit samples, left in the low
// half. The buffer needs room for *samples plus MaxSamplesOverrun entries.
//
// On return *samples holds the number of samples produced. The result is
// the sample offset at which the frame completed, or -1 if the call ended
// without finishing a frame. Two consecutive calls never report the same
// physical frame. A breakpoint hit also ends the call early; check
// GetHitInterruptAddress.
func (g *GB) RunFor(buf []uint32, samples *int) int {
	if g.core == nil {
		*samples = 0
		return -1
	}

	c := g.core
	target := *samples
	hasRTC := c.cart.HasRTC()
	c.cpu.ClearHit()
	c.apu.AttachBuffer(buf)

	frameOffset := -1
	for c.apu.Pos() < target && frameOffset < 0 {
		cycles := c.cpu.Step()
		if cycles == 0 {
			break // breakpoint
		}
		c.cpuCycles += uint64(cycles)
		c.bus.Tick(cycles)

		// PPU, APU and RTC run at the video rate, which is half the
		// CPU rate under CGB double speed.
		vcycles := cycles
		if c.bus.DoubleSpeed() {
			c.speedRem += cycles
			vcycles = c.speedRem >> 1
			c.speedRem &= 1
		}
		c.videoCycles += uint64(vcycles)
		c.ppu.Tick(vcycles)
		if hasRTC {
			c.clock.Tick(int64(vcycles))
		}
		c.apu.RunTo(c.videoCycles)

		if c.ppu.FrameDone() {
			frameOffset = c.apu.Pos()
		}
	}

	*samples = c.apu.DetachBuffer()
	return frameOffset
}

// BlitTo copies the most recently completed frame into dst, one RGB32
// pixel per element, rows pitch elements apart. No-op when nothing is
// loaded.
func (g *GB) BlitTo(dst []uint32, pitch int) {
	if g.core == nil {
		return
	}
	g.core.ppu.BlitTo(dst, pitch)
}

// Reset reboots the console, keeping the loaded ROM, savedata and all host
// configuration. Resetting an already reset console is a no-op in effect:
// the result matches a freshly loaded one.
func (g *GB) Reset() {
	if g.core == nil {
		return
	}
	c := g.core
	c.cpu.Reset()
	c.bus.Reset()
	c.ppu.Reset()
	c.clock.Reset()
	c.cpuCycles = 0
	c.videoCycles = 0
	c.speedRem = 0
	c.boot(g.cfg.bios)
}
