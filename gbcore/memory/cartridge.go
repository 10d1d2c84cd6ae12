package memory

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
)

// header field offsets
const (
	logoAddress          = 0x104
	titleAddress         = 0x134
	titleLength          = 16
	cgbFlagAddress       = 0x143
	sgbFlagAddress       = 0x146
	cartridgeTypeAddress = 0x147
	romSizeAddress       = 0x148
	ramSizeAddress       = 0x149
	versionAddress       = 0x14C
	headerEnd            = 0x150
)

// Load failure taxonomy. Load entry points wrap these; callers can match
// with errors.Is.
var (
	ErrTruncatedROM   = errors.New("cartridge: ROM image shorter than header")
	ErrBadROMSize     = errors.New("cartridge: ROM shorter than header-declared size")
	ErrUnsupportedMBC = errors.New("cartridge: unsupported cartridge type")
)

// nintendoLogo is the 48-byte bitmap every licensed cartridge carries at
// 0x104. It is also what the multicart heuristic scans for at bank starts.
var nintendoLogo = []byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83,
	0x00, 0x0C, 0x00, 0x0D, 0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E,
	0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99, 0xBB, 0xBB, 0x67, 0x63,
	0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

// Kind identifies the memory bank controller family of a cartridge.
type Kind uint8

const (
	KindNone Kind = iota
	KindMBC1
	KindMBC1Multi
	KindMBC2
	KindMBC3
	KindMBC5
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMBC1:
		return "MBC1"
	case KindMBC1Multi:
		return "MBC1 multicart"
	case KindMBC2:
		return "MBC2"
	case KindMBC3:
		return "MBC3"
	case KindMBC5:
		return "MBC5"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Cartridge holds the parsed ROM image and its header metadata.
type Cartridge struct {
	data    []byte
	title   string
	version uint8

	kind       Kind
	cgb        bool
	hasBattery bool
	hasRTC     bool
	hasRumble  bool

	romBanks int
	ramBanks int
}

// LoadCartridge parses and validates a ROM image. When multicartCompat is
// set, a load-time heuristic decides whether an MBC1 image is really a
// multicart compilation needing the MBC1M addressing indirection; the
// decision is never re-evaluated after load.
func LoadCartridge(data []byte, multicartCompat bool) (*Cartridge, error) {
	if len(data) < headerEnd {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedROM, len(data))
	}

	c := &Cartridge{
		version:  data[versionAddress],
		cgb:      data[cgbFlagAddress]&0x80 != 0,
		romBanks: 2 << (data[romSizeAddress] & 0x0F),
	}

	title := data[titleAddress : titleAddress+titleLength]
	if i := bytes.IndexByte(title, 0); i >= 0 {
		title = title[:i]
	}
	c.title = string(bytes.TrimRight(title, "\x00"))

	switch data[ramSizeAddress] {
	case 0x00, 0x01:
		c.ramBanks = 0
	case 0x02:
		c.ramBanks = 1
	case 0x03:
		c.ramBanks = 4
	case 0x04:
		c.ramBanks = 16
	case 0x05:
		c.ramBanks = 8
	default:
		c.ramBanks = 4
	}

	cartType := data[cartridgeTypeAddress]
	switch cartType {
	case 0x00, 0x08, 0x09:
		c.kind = KindNone
		c.hasBattery = cartType == 0x09
	case 0x01, 0x02, 0x03:
		c.kind = KindMBC1
		c.hasBattery = cartType == 0x03
	case 0x05, 0x06:
		c.kind = KindMBC2
		c.hasBattery = cartType == 0x06
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		c.kind = KindMBC3
		c.hasBattery = cartType == 0x0F || cartType == 0x10 || cartType == 0x13
		c.hasRTC = cartType == 0x0F || cartType == 0x10
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		c.kind = KindMBC5
		c.hasBattery = cartType == 0x1B || cartType == 0x1E
		c.hasRumble = cartType >= 0x1C
	default:
		return nil, fmt.Errorf("%w: type 0x%02X", ErrUnsupportedMBC, cartType)
	}

	declared := c.romBanks * romBankSize
	if len(data) < declared {
		return nil, fmt.Errorf("%w: have %d, header declares %d",
			ErrBadROMSize, len(data), declared)
	}

	// pad to a whole number of banks so bank arithmetic never runs off the end
	size := len(data)
	if rem := size % romBankSize; rem != 0 {
		size += romBankSize - rem
	}
	c.data = make([]byte, size)
	copy(c.data, data)

	if c.kind == KindMBC1 && multicartCompat && c.isMulticart() {
		c.kind = KindMBC1Multi
	}

	slog.Info("cartridge loaded",
		"title", c.title,
		"mbc", c.kind.String(),
		"romBanks", c.romBanks,
		"ramBanks", c.ramBanks,
		"battery", c.hasBattery,
		"rtc", c.hasRTC,
		"cgb", c.cgb)

	return c, nil
}

// isMulticart scans for the header logo at each 256 KiB boundary. Multicart
// compilations repeat a full header per sub-game, so two or more logo hits
// mean the bank-1 controller needs the multicart addressing indirection.
func (c *Cartridge) isMulticart() bool {
	if len(c.data) < 0x100000 {
		return false
	}
	hits := 0
	for base := 0; base+logoAddress+len(nintendoLogo) <= len(c.data); base += 0x40000 {
		if bytes.Equal(c.data[base+logoAddress:base+logoAddress+len(nintendoLogo)], nintendoLogo) {
			hits++
		}
	}
	return hits >= 2
}

// Title returns the ROM header title.
func (c *Cartridge) Title() string { return c.title }

// CGB reports whether the header advertises Game Boy Color support.
func (c *Cartridge) CGB() bool { return c.cgb }

// Kind returns the detected controller family.
func (c *Cartridge) Kind() Kind { return c.kind }

// ROM returns the padded ROM image.
func (c *Cartridge) ROM() []byte { return c.data }

// HasBattery reports whether cartridge RAM is battery backed.
func (c *Cartridge) HasBattery() bool { return c.hasBattery }

// HasRTC reports whether the cartridge carries a real-time clock.
func (c *Cartridge) HasRTC() bool { return c.hasRTC }
