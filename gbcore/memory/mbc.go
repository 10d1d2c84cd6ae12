package memory

import (
	"github.com/valerio/go-gbcore/gbcore/rtc"
	"github.com/valerio/go-gbcore/gbcore/state"
)

const (
	romBankSize = 0x4000
	ramBankSize = 0x2000
)

// MBC is the cartridge-side bank controller. Reads and writes cover the
// cartridge windows of the bus (0x0000-0x7FFF and 0xA000-0xBFFF); writes to
// the ROM window drive the banking control registers.
type MBC interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)

	// ROMBank returns the bank currently mapped at 0x4000-0x7FFF.
	ROMBank() int
	// ROMOffset maps a bus address in the ROM window to its flat ROM offset.
	ROMOffset(address uint16) int
	// RAMOffset maps a bus address in the RAM window to its flat cartridge
	// RAM offset, or -1 when the access does not hit RAM.
	RAMOffset(address uint16) int
	// RAM exposes the full cartridge RAM for savedata and introspection.
	// Nil when the cartridge has none.
	RAM() []byte

	Reset()
	Sync(s *state.Stream)
}

// newMBC builds the controller for a parsed cartridge. clock may be nil for
// cartridges without an RTC.
func newMBC(cart *Cartridge, clock *rtc.RTC) MBC {
	switch cart.kind {
	case KindNone:
		return &noMBC{rom: cart.data}
	case KindMBC1, KindMBC1Multi:
		return newMBC1(cart.data, cart.ramBanks, cart.kind == KindMBC1Multi)
	case KindMBC2:
		return newMBC2(cart.data)
	case KindMBC3:
		return newMBC3(cart.data, cart.ramBanks, clock)
	case KindMBC5:
		return newMBC5(cart.data, cart.ramBanks)
	}
	// cartridge parsing rejects unknown kinds before this point
	panic("memory: no controller for cartridge kind " + cart.kind.String())
}

// noMBC maps a plain 32 KiB image with no banking and no external RAM.
type noMBC struct {
	rom []byte
}

func (m *noMBC) Read(address uint16) uint8 {
	if int(address) < len(m.rom) && address < 0x8000 {
		return m.rom[address]
	}
	return 0xFF
}

func (m *noMBC) Write(address uint16, value uint8) {}

func (m *noMBC) ROMBank() int                 { return 1 }
func (m *noMBC) ROMOffset(address uint16) int { return int(address) }
func (m *noMBC) RAMOffset(address uint16) int { return -1 }
func (m *noMBC) RAM() []byte                  { return nil }
func (m *noMBC) Reset()                       {}
func (m *noMBC) Sync(s *state.Stream)         {}

// mbc1 implements the MBC1 family, including the multicart (MBC1M) variant
// where the low bank register is 4 bits wide and the upper register shifts
// by 4 instead of 5.
type mbc1 struct {
	rom []byte
	ram []byte

	bankLow    uint8 // 5-bit (4-bit on multicart) ROM bank register
	bankHigh   uint8 // 2-bit RAM bank / upper ROM bank register
	mode       uint8 // 0 = ROM banking, 1 = RAM banking
	ramEnabled bool
	multicart  bool
}

func newMBC1(rom []byte, ramBanks int, multicart bool) *mbc1 {
	return &mbc1{
		rom:       rom,
		ram:       make([]byte, ramBanks*ramBankSize),
		bankLow:   1,
		multicart: multicart,
	}
}

func (m *mbc1) lowMask() uint8 {
	if m.multicart {
		return 0x0F
	}
	return 0x1F
}

func (m *mbc1) highShift() uint {
	if m.multicart {
		return 4
	}
	return 5
}

// lowBankBase is the flat offset mapped at 0x0000-0x3FFF. In mode 1 the
// upper register applies to the low window as well.
func (m *mbc1) lowBankBase() int {
	if m.mode == 0 {
		return 0
	}
	bank := int(m.bankHigh) << m.highShift()
	return (bank * romBankSize) % len(m.rom)
}

func (m *mbc1) highBankBase() int {
	bank := int(m.bankHigh)<<m.highShift() | int(m.bankLow&m.lowMask())
	return (bank * romBankSize) % len(m.rom)
}

func (m *mbc1) ramBase() int {
	if len(m.ram) == 0 {
		return 0
	}
	if m.mode == 0 {
		return 0
	}
	return (int(m.bankHigh) * ramBankSize) % len(m.ram)
}

func (m *mbc1) Read(address uint16) uint8 {
	switch {
	case address < 0x4000:
		return m.rom[m.lowBankBase()+int(address)]
	case address < 0x8000:
		return m.rom[m.highBankBase()+int(address-0x4000)]
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		return m.ram[(m.ramBase()+int(address-0xA000))%len(m.ram)]
	}
	return 0xFF
}

func (m *mbc1) Write(address uint16, value uint8) {
	switch {
	case address < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case address < 0x4000:
		bank := value & m.lowMask()
		if value&0x1F == 0 {
			// bank 0 is never selectable through the low register
			bank = 1
		}
		m.bankLow = bank
	case address < 0x6000:
		m.bankHigh = value & 0x03
	case address < 0x8000:
		m.mode = value & 0x01
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		m.ram[(m.ramBase()+int(address-0xA000))%len(m.ram)] = value
	}
}

func (m *mbc1) ROMBank() int {
	return m.highBankBase() / romBankSize
}

func (m *mbc1) ROMOffset(address uint16) int {
	if address < 0x4000 {
		return m.lowBankBase() + int(address)
	}
	return m.highBankBase() + int(address-0x4000)
}

func (m *mbc1) RAMOffset(address uint16) int {
	if !m.ramEnabled || len(m.ram) == 0 {
		return -1
	}
	return (m.ramBase() + int(address-0xA000)) % len(m.ram)
}

func (m *mbc1) RAM() []byte { return m.ram }

func (m *mbc1) Reset() {
	m.bankLow = 1
	m.bankHigh = 0
	m.mode = 0
	m.ramEnabled = false
}

func (m *mbc1) Sync(s *state.Stream) {
	s.U8(&m.bankLow)
	s.U8(&m.bankHigh)
	s.U8(&m.mode)
	s.Bool(&m.ramEnabled)
	if len(m.ram) > 0 {
		s.Bytes(m.ram)
	}
}

// mbc2 has a 4-bit ROM bank register and 512 half-byte cells of built-in RAM.
type mbc2 struct {
	rom []byte
	ram []byte // 512 cells, upper nibbles unused

	romBank    uint8
	ramEnabled bool
}

func newMBC2(rom []byte) *mbc2 {
	return &mbc2{
		rom:     rom,
		ram:     make([]byte, 512),
		romBank: 1,
	}
}

func (m *mbc2) bankBase() int {
	return (int(m.romBank) * romBankSize) % len(m.rom)
}

func (m *mbc2) Read(address uint16) uint8 {
	switch {
	case address < 0x4000:
		return m.rom[address]
	case address < 0x8000:
		return m.rom[m.bankBase()+int(address-0x4000)]
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled {
			return 0xFF
		}
		// the 512 cells repeat through the whole window; upper nibble open
		return m.ram[int(address-0xA000)&0x1FF] | 0xF0
	}
	return 0xFF
}

func (m *mbc2) Write(address uint16, value uint8) {
	switch {
	case address < 0x4000:
		// address bit 8 selects between RAM enable and ROM bank
		if address&0x0100 == 0 {
			m.ramEnabled = value&0x0F == 0x0A
		} else {
			m.romBank = value & 0x0F
			if m.romBank == 0 {
				m.romBank = 1
			}
		}
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled {
			return
		}
		m.ram[int(address-0xA000)&0x1FF] = value & 0x0F
	}
}

func (m *mbc2) ROMBank() int { return m.bankBase() / romBankSize }

func (m *mbc2) ROMOffset(address uint16) int {
	if address < 0x4000 {
		return int(address)
	}
	return m.bankBase() + int(address-0x4000)
}

func (m *mbc2) RAMOffset(address uint16) int {
	if !m.ramEnabled {
		return -1
	}
	return int(address-0xA000) & 0x1FF
}

func (m *mbc2) RAM() []byte { return m.ram }

func (m *mbc2) Reset() {
	m.romBank = 1
	m.ramEnabled = false
}

func (m *mbc2) Sync(s *state.Stream) {
	s.U8(&m.romBank)
	s.Bool(&m.ramEnabled)
	s.Bytes(m.ram)
}

// mbc3 adds the RTC register window: RAM bank selections 0x08-0x0C map the
// clock registers into the external RAM window instead of RAM.
type mbc3 struct {
	rom []byte
	ram []byte

	romBank    uint8
	ramBank    uint8
	ramEnabled bool

	clock *rtc.RTC
}

func newMBC3(rom []byte, ramBanks int, clock *rtc.RTC) *mbc3 {
	return &mbc3{
		rom:     rom,
		ram:     make([]byte, ramBanks*ramBankSize),
		romBank: 1,
		clock:   clock,
	}
}

func (m *mbc3) bankBase() int {
	return (int(m.romBank) * romBankSize) % len(m.rom)
}

func (m *mbc3) ramBase() int {
	return (int(m.ramBank) * ramBankSize) % len(m.ram)
}

func (m *mbc3) Read(address uint16) uint8 {
	switch {
	case address < 0x4000:
		return m.rom[address]
	case address < 0x8000:
		return m.rom[m.bankBase()+int(address-0x4000)]
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.ramBank <= 0x03 {
			if len(m.ram) == 0 {
				return 0xFF
			}
			return m.ram[m.ramBase()+int(address-0xA000)]
		}
		if m.clock != nil && m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			return m.clock.Read(int(m.ramBank) - 0x08)
		}
		return 0xFF
	}
	return 0xFF
}

func (m *mbc3) Write(address uint16, value uint8) {
	switch {
	case address < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case address < 0x4000:
		bank := value & 0x7F
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank
	case address < 0x6000:
		m.ramBank = value & 0x0F
	case address < 0x8000:
		if m.clock != nil {
			m.clock.WriteLatch(value)
		}
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled {
			return
		}
		if m.ramBank <= 0x03 {
			if len(m.ram) == 0 {
				return
			}
			m.ram[m.ramBase()+int(address-0xA000)] = value
			return
		}
		if m.clock != nil && m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			m.clock.Write(int(m.ramBank)-0x08, value)
		}
	}
}

func (m *mbc3) ROMBank() int { return m.bankBase() / romBankSize }

func (m *mbc3) ROMOffset(address uint16) int {
	if address < 0x4000 {
		return int(address)
	}
	return m.bankBase() + int(address-0x4000)
}

func (m *mbc3) RAMOffset(address uint16) int {
	if !m.ramEnabled || m.ramBank > 0x03 || len(m.ram) == 0 {
		return -1
	}
	return m.ramBase() + int(address-0xA000)
}

func (m *mbc3) RAM() []byte { return m.ram }

func (m *mbc3) Reset() {
	m.romBank = 1
	m.ramBank = 0
	m.ramEnabled = false
	if m.clock != nil {
		m.clock.Reset()
	}
}

func (m *mbc3) Sync(s *state.Stream) {
	s.U8(&m.romBank)
	s.U8(&m.ramBank)
	s.Bool(&m.ramEnabled)
	if len(m.ram) > 0 {
		s.Bytes(m.ram)
	}
	if m.clock != nil {
		m.clock.Sync(s)
	}
}

// mbc5 has a flat 9-bit ROM bank register and up to 16 RAM banks. Bank 0 is
// selectable, unlike MBC1/3.
type mbc5 struct {
	rom []byte
	ram []byte

	romBank    uint16
	ramBank    uint8
	ramEnabled bool
}

func newMBC5(rom []byte, ramBanks int) *mbc5 {
	return &mbc5{
		rom:     rom,
		ram:     make([]byte, ramBanks*ramBankSize),
		romBank: 1,
	}
}

func (m *mbc5) bankBase() int {
	return (int(m.romBank) * romBankSize) % len(m.rom)
}

func (m *mbc5) ramBase() int {
	if len(m.ram) == 0 {
		return 0
	}
	return (int(m.ramBank) * ramBankSize) % len(m.ram)
}

func (m *mbc5) Read(address uint16) uint8 {
	switch {
	case address < 0x4000:
		return m.rom[address]
	case address < 0x8000:
		return m.rom[m.bankBase()+int(address-0x4000)]
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		return m.ram[m.ramBase()+int(address-0xA000)]
	}
	return 0xFF
}

func (m *mbc5) Write(address uint16, value uint8) {
	switch {
	case address < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case address < 0x3000:
		m.romBank = m.romBank&0x100 | uint16(value)
	case address < 0x4000:
		m.romBank = m.romBank&0xFF | uint16(value&0x01)<<8
	case address < 0x6000:
		// bit 3 drives the rumble motor on rumble carts; it never selects RAM
		m.ramBank = value & 0x0F
	case address >= 0xA000 && address < 0xC000:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		m.ram[m.ramBase()+int(address-0xA000)] = value
	}
}

func (m *mbc5) ROMBank() int { return m.bankBase() / romBankSize }

func (m *mbc5) ROMOffset(address uint16) int {
	if address < 0x4000 {
		return int(address)
	}
	return m.bankBase() + int(address-0x4000)
}

func (m *mbc5) RAMOffset(address uint16) int {
	if !m.ramEnabled || len(m.ram) == 0 {
		return -1
	}
	return m.ramBase() + int(address-0xA000)
}

func (m *mbc5) RAM() []byte { return m.ram }

func (m *mbc5) Reset() {
	m.romBank = 1
	m.ramBank = 0
	m.ramEnabled = false
}

func (m *mbc5) Sync(s *state.Stream) {
	s.U16(&m.romBank)
	s.U8(&m.ramBank)
	s.Bool(&m.ramEnabled)
	if len(m.ram) > 0 {
		s.Bytes(m.ram)
	}
}
