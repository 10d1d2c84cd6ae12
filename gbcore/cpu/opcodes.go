package cpu

// execute runs one decoded instruction and returns its cycle cost.
// Conditional control flow returns the taken or untaken cost as
// appropriate.
func (c *CPU) execute(op uint8) int {
	if op >= 0x40 && op < 0x80 {
		if op == 0x76 {
			return c.halt()
		}
		src, dst := op&7, op>>3&7
		c.setR8(dst, c.r8(src))
		if src == 6 || dst == 6 {
			return 8
		}
		return 4
	}
	if op >= 0x80 && op < 0xC0 {
		c.alu(op>>3&7, c.r8(op&7))
		if op&7 == 6 {
			return 8
		}
		return 4
	}
	return c.executeMisc(op)
}

// r8 reads a register by its 3-bit encoding; 6 is memory at HL.
func (c *CPU) r8(i uint8) uint8 {
	switch i {
	case 0:
		return c.b
	case 1:
		return c.c
	case 2:
		return c.d
	case 3:
		return c.e
	case 4:
		return c.h
	case 5:
		return c.l
	case 6:
		return c.bus.Read(c.hl())
	default:
		return c.a
	}
}

func (c *CPU) setR8(i, v uint8) {
	switch i {
	case 0:
		c.b = v
	case 1:
		c.c = v
	case 2:
		c.d = v
	case 3:
		c.e = v
	case 4:
		c.h = v
	case 5:
		c.l = v
	case 6:
		c.bus.Write(c.hl(), v)
	default:
		c.a = v
	}
}

// alu applies the 8 accumulator operations by their 3-bit encoding.
func (c *CPU) alu(idx, v uint8) {
	switch idx {
	case 0:
		c.add8(v, 0)
	case 1:
		c.add8(v, c.carry())
	case 2:
		c.a = c.sub8(v, 0)
	case 3:
		c.a = c.sub8(v, c.carry())
	case 4:
		c.a &= v
		c.setFlag(flagZ, c.a == 0)
		c.setFlag(flagN, false)
		c.setFlag(flagH, true)
		c.setFlag(flagC, false)
	case 5:
		c.a ^= v
		c.f = 0
		c.setFlag(flagZ, c.a == 0)
	case 6:
		c.a |= v
		c.f = 0
		c.setFlag(flagZ, c.a == 0)
	case 7:
		c.sub8(v, 0)
	}
}

func (c *CPU) carry() uint8 {
	if c.flag(flagC) {
		return 1
	}
	return 0
}

func (c *CPU) add8(v, carry uint8) {
	r := uint16(c.a) + uint16(v) + uint16(carry)
	c.setFlag(flagZ, uint8(r) == 0)
	c.setFlag(flagN, false)
	c.setFlag(flagH, c.a&0xF+v&0xF+carry > 0xF)
	c.setFlag(flagC, r > 0xFF)
	c.a = uint8(r)
}

// sub8 computes A-v-borrow and sets flags; CP uses the flags only.
func (c *CPU) sub8(v, borrow uint8) uint8 {
	r := int16(c.a) - int16(v) - int16(borrow)
	c.setFlag(flagZ, uint8(r) == 0)
	c.setFlag(flagN, true)
	c.setFlag(flagH, int16(c.a&0xF)-int16(v&0xF)-int16(borrow) < 0)
	c.setFlag(flagC, r < 0)
	return uint8(r)
}

func (c *CPU) inc8(v uint8) uint8 {
	r := v + 1
	c.setFlag(flagZ, r == 0)
	c.setFlag(flagN, false)
	c.setFlag(flagH, v&0xF == 0xF)
	return r
}

func (c *CPU) dec8(v uint8) uint8 {
	r := v - 1
	c.setFlag(flagZ, r == 0)
	c.setFlag(flagN, true)
	c.setFlag(flagH, v&0xF == 0)
	return r
}

func (c *CPU) addHL(v uint16) {
	hl := c.hl()
	r := uint32(hl) + uint32(v)
	c.setFlag(flagN, false)
	c.setFlag(flagH, hl&0xFFF+v&0xFFF > 0xFFF)
	c.setFlag(flagC, r > 0xFFFF)
	c.setHL(uint16(r))
}

// addSP computes SP plus a fetched signed offset, with the byte-wise carry
// flags shared by ADD SP,e and LD HL,SP+e.
func (c *CPU) addSP() uint16 {
	e := uint16(int16(int8(c.fetch8())))
	c.setFlag(flagZ, false)
	c.setFlag(flagN, false)
	c.setFlag(flagH, c.sp&0xF+e&0xF > 0xF)
	c.setFlag(flagC, c.sp&0xFF+e&0xFF > 0xFF)
	return c.sp + e
}

func (c *CPU) setRotFlags(r uint8, carry bool) {
	c.setFlag(flagZ, r == 0)
	c.setFlag(flagN, false)
	c.setFlag(flagH, false)
	c.setFlag(flagC, carry)
}

func (c *CPU) rlc(v uint8) uint8 {
	r := v<<1 | v>>7
	c.setRotFlags(r, v&0x80 != 0)
	return r
}

func (c *CPU) rrc(v uint8) uint8 {
	r := v>>1 | v<<7
	c.setRotFlags(r, v&1 != 0)
	return r
}

func (c *CPU) rl(v uint8) uint8 {
	r := v<<1 | c.carry()
	c.setRotFlags(r, v&0x80 != 0)
	return r
}

func (c *CPU) rr(v uint8) uint8 {
	r := v>>1 | c.carry()<<7
	c.setRotFlags(r, v&1 != 0)
	return r
}

func (c *CPU) sla(v uint8) uint8 {
	r := v << 1
	c.setRotFlags(r, v&0x80 != 0)
	return r
}

func (c *CPU) sra(v uint8) uint8 {
	r := v>>1 | v&0x80
	c.setRotFlags(r, v&1 != 0)
	return r
}

func (c *CPU) swap(v uint8) uint8 {
	r := v<<4 | v>>4
	c.setRotFlags(r, false)
	return r
}

func (c *CPU) srl(v uint8) uint8 {
	r := v >> 1
	c.setRotFlags(r, v&1 != 0)
	return r
}

func (c *CPU) daa() {
	a := uint16(c.a)
	if c.flag(flagN) {
		if c.flag(flagH) {
			a = (a - 6) & 0xFF
		}
		if c.flag(flagC) {
			a -= 0x60
		}
	} else {
		if c.flag(flagH) || a&0xF > 9 {
			a += 6
		}
		if c.flag(flagC) || a > 0x9F {
			a += 0x60
		}
	}
	if a&0x100 != 0 {
		c.setFlag(flagC, true)
	}
	c.a = uint8(a)
	c.setFlag(flagZ, c.a == 0)
	c.setFlag(flagH, false)
}

func (c *CPU) jr(cond bool) int {
	off := int8(c.fetch8())
	if !cond {
		return 8
	}
	c.pc = uint16(int32(c.pc) + int32(off))
	return 12
}

func (c *CPU) jp(cond bool) int {
	target := c.fetch16()
	if !cond {
		return 12
	}
	c.pc = target
	return 16
}

func (c *CPU) call(cond bool) int {
	target := c.fetch16()
	if !cond {
		return 12
	}
	c.push16(c.pc)
	c.pc = target
	return 24
}

func (c *CPU) retCond(cond bool) int {
	if !cond {
		return 8
	}
	c.pc = c.pop16()
	return 20
}

func (c *CPU) rst(vector uint16) int {
	c.push16(c.pc)
	c.pc = vector
	return 16
}

func (c *CPU) halt() int {
	if !c.ime && c.bus.Pending() != 0 {
		c.haltBug = true
	} else {
		c.halted = true
	}
	return 4
}

func (c *CPU) stop() int {
	c.fetch8() // the byte after STOP is skipped
	if c.bus.SpeedSwitch() {
		return 4
	}
	c.stopped = true
	return 4
}

func (c *CPU) executeMisc(op uint8) int {
	switch op {
	case 0x00: // NOP
		return 4
	case 0x01:
		c.setBC(c.fetch16())
		return 12
	case 0x02:
		c.bus.Write(c.bc(), c.a)
		return 8
	case 0x03:
		c.setBC(c.bc() + 1)
		return 8
	case 0x04:
		c.b = c.inc8(c.b)
		return 4
	case 0x05:
		c.b = c.dec8(c.b)
		return 4
	case 0x06:
		c.b = c.fetch8()
		return 8
	case 0x07: // RLCA clears Z
		c.a = c.rlc(c.a)
		c.setFlag(flagZ, false)
		return 4
	case 0x08:
		target := c.fetch16()
		c.bus.Write(target, uint8(c.sp))
		c.bus.Write(target+1, uint8(c.sp>>8))
		return 20
	case 0x09:
		c.addHL(c.bc())
		return 8
	case 0x0A:
		c.a = c.bus.Read(c.bc())
		return 8
	case 0x0B:
		c.setBC(c.bc() - 1)
		return 8
	case 0x0C:
		c.c = c.inc8(c.c)
		return 4
	case 0x0D:
		c.c = c.dec8(c.c)
		return 4
	case 0x0E:
		c.c = c.fetch8()
		return 8
	case 0x0F:
		c.a = c.rrc(c.a)
		c.setFlag(flagZ, false)
		return 4

	case 0x10:
		return c.stop()
	case 0x11:
		c.setDE(c.fetch16())
		return 12
	case 0x12:
		c.bus.Write(c.de(), c.a)
		return 8
	case 0x13:
		c.setDE(c.de() + 1)
		return 8
	case 0x14:
		c.d = c.inc8(c.d)
		return 4
	case 0x15:
		c.d = c.dec8(c.d)
		return 4
	case 0x16:
		c.d = c.fetch8()
		return 8
	case 0x17:
		c.a = c.rl(c.a)
		c.setFlag(flagZ, false)
		return 4
	case 0x18:
		return c.jr(true)
	case 0x19:
		c.addHL(c.de())
		return 8
	case 0x1A:
		c.a = c.bus.Read(c.de())
		return 8
	case 0x1B:
		c.setDE(c.de() - 1)
		return 8
	case 0x1C:
		c.e = c.inc8(c.e)
		return 4
	case 0x1D:
		c.e = c.dec8(c.e)
		return 4
	case 0x1E:
		c.e = c.fetch8()
		return 8
	case 0x1F:
		c.a = c.rr(c.a)
		c.setFlag(flagZ, false)
		return 4

	case 0x20:
		return c.jr(!c.flag(flagZ))
	case 0x21:
		c.setHL(c.fetch16())
		return 12
	case 0x22:
		c.bus.Write(c.hl(), c.a)
		c.setHL(c.hl() + 1)
		return 8
	case 0x23:
		c.setHL(c.hl() + 1)
		return 8
	case 0x24:
		c.h = c.inc8(c.h)
		return 4
	case 0x25:
		c.h = c.dec8(c.h)
		return 4
	case 0x26:
		c.h = c.fetch8()
		return 8
	case 0x27:
		c.daa()
		return 4
	case 0x28:
		return c.jr(c.flag(flagZ))
	case 0x29:
		c.addHL(c.hl())
		return 8
	case 0x2A:
		c.a = c.bus.Read(c.hl())
		c.setHL(c.hl() + 1)
		return 8
	case 0x2B:
		c.setHL(c.hl() - 1)
		return 8
	case 0x2C:
		c.l = c.inc8(c.l)
		return 4
	case 0x2D:
		c.l = c.dec8(c.l)
		return 4
	case 0x2E:
		c.l = c.fetch8()
		return 8
	case 0x2F: // CPL
		c.a = ^c.a
		c.setFlag(flagN, true)
		c.setFlag(flagH, true)
		return 4

	case 0x30:
		return c.jr(!c.flag(flagC))
	case 0x31:
		c.sp = c.fetch16()
		return 12
	case 0x32:
		c.bus.Write(c.hl(), c.a)
		c.setHL(c.hl() - 1)
		return 8
	case 0x33:
		c.sp++
		return 8
	case 0x34:
		c.bus.Write(c.hl(), c.inc8(c.bus.Read(c.hl())))
		return 12
	case 0x35:
		c.bus.Write(c.hl(), c.dec8(c.bus.Read(c.hl())))
		return 12
	case 0x36:
		c.bus.Write(c.hl(), c.fetch8())
		return 12
	case 0x37: // SCF
		c.setFlag(flagN, false)
		c.setFlag(flagH, false)
		c.setFlag(flagC, true)
		return 4
	case 0x38:
		return c.jr(c.flag(flagC))
	case 0x39:
		c.addHL(c.sp)
		return 8
	case 0x3A:
		c.a = c.bus.Read(c.hl())
		c.setHL(c.hl() - 1)
		return 8
	case 0x3B:
		c.sp--
		return 8
	case 0x3C:
		c.a = c.inc8(c.a)
		return 4
	case 0x3D:
		c.a = c.dec8(c.a)
		return 4
	case 0x3E:
		c.a = c.fetch8()
		return 8
	case 0x3F: // CCF
		c.setFlag(flagN, false)
		c.setFlag(flagH, false)
		c.setFlag(flagC, !c.flag(flagC))
		return 4

	case 0xC0:
		return c.retCond(!c.flag(flagZ))
	case 0xC1:
		c.setBC(c.pop16())
		return 12
	case 0xC2:
		return c.jp(!c.flag(flagZ))
	case 0xC3:
		return c.jp(true)
	case 0xC4:
		return c.call(!c.flag(flagZ))
	case 0xC5:
		c.push16(c.bc())
		return 16
	case 0xC6:
		c.add8(c.fetch8(), 0)
		return 8
	case 0xC7:
		return c.rst(0x00)
	case 0xC8:
		return c.retCond(c.flag(flagZ))
	case 0xC9:
		c.pc = c.pop16()
		return 16
	case 0xCA:
		return c.jp(c.flag(flagZ))
	case 0xCB:
		return c.executeCB()
	case 0xCC:
		return c.call(c.flag(flagZ))
	case 0xCD:
		return c.call(true)
	case 0xCE:
		c.add8(c.fetch8(), c.carry())
		return 8
	case 0xCF:
		return c.rst(0x08)

	case 0xD0:
		return c.retCond(!c.flag(flagC))
	case 0xD1:
		c.setDE(c.pop16())
		return 12
	case 0xD2:
		return c.jp(!c.flag(flagC))
	case 0xD4:
		return c.call(!c.flag(flagC))
	case 0xD5:
		c.push16(c.de())
		return 16
	case 0xD6:
		c.a = c.sub8(c.fetch8(), 0)
		return 8
	case 0xD7:
		return c.rst(0x10)
	case 0xD8:
		return c.retCond(c.flag(flagC))
	case 0xD9: // RETI
		c.pc = c.pop16()
		c.ime = true
		return 16
	case 0xDA:
		return c.jp(c.flag(flagC))
	case 0xDC:
		return c.call(c.flag(flagC))
	case 0xDE:
		c.a = c.sub8(c.fetch8(), c.carry())
		return 8
	case 0xDF:
		return c.rst(0x18)

	case 0xE0:
		c.bus.Write(0xFF00+uint16(c.fetch8()), c.a)
		return 12
	case 0xE1:
		c.setHL(c.pop16())
		return 12
	case 0xE2:
		c.bus.Write(0xFF00+uint16(c.c), c.a)
		return 8
	case 0xE5:
		c.push16(c.hl())
		return 16
	case 0xE6:
		c.alu(4, c.fetch8())
		return 8
	case 0xE7:
		return c.rst(0x20)
	case 0xE8:
		c.sp = c.addSP()
		return 16
	case 0xE9:
		c.pc = c.hl()
		return 4
	case 0xEA:
		c.bus.Write(c.fetch16(), c.a)
		return 16
	case 0xEE:
		c.alu(5, c.fetch8())
		return 8
	case 0xEF:
		return c.rst(0x28)

	case 0xF0:
		c.a = c.bus.Read(0xFF00 + uint16(c.fetch8()))
		return 12
	case 0xF1:
		c.setAF(c.pop16())
		return 12
	case 0xF2:
		c.a = c.bus.Read(0xFF00 + uint16(c.c))
		return 8
	case 0xF3: // DI
		c.ime = false
		c.imePending = false
		return 4
	case 0xF5:
		c.push16(c.af())
		return 16
	case 0xF6:
		c.alu(6, c.fetch8())
		return 8
	case 0xF7:
		return c.rst(0x30)
	case 0xF8:
		c.setHL(c.addSP())
		return 12
	case 0xF9:
		c.sp = c.hl()
		return 8
	case 0xFA:
		c.a = c.bus.Read(c.fetch16())
		return 16
	case 0xFB: // EI
		c.imePending = true
		return 4
	case 0xFE:
		c.alu(7, c.fetch8())
		return 8
	case 0xFF:
		return c.rst(0x38)
	}
	// unused encodings lock the CPU on hardware; treat them as NOPs
	return 4
}

// executeCB runs a CB-prefixed instruction.
func (c *CPU) executeCB() int {
	op := c.fetch8()
	reg := op & 7
	v := c.r8(reg)

	switch {
	case op < 0x40:
		var r uint8
		switch op >> 3 {
		case 0:
			r = c.rlc(v)
		case 1:
			r = c.rrc(v)
		case 2:
			r = c.rl(v)
		case 3:
			r = c.rr(v)
		case 4:
			r = c.sla(v)
		case 5:
			r = c.sra(v)
		case 6:
			r = c.swap(v)
		default:
			r = c.srl(v)
		}
		c.setR8(reg, r)
	case op < 0x80: // BIT
		c.setFlag(flagZ, v&(1<<(op>>3&7)) == 0)
		c.setFlag(flagN, false)
		c.setFlag(flagH, true)
		if reg == 6 {
			return 12
		}
		return 8
	case op < 0xC0: // RES
		c.setR8(reg, v&^(1<<(op>>3&7)))
	default: // SET
		c.setR8(reg, v|1<<(op>>3&7))
	}
	if reg == 6 {
		return 16
	}
	return 8
}
