package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildROM assembles a minimal valid image. banks must match the power of
// two the size code implies.
func buildROM(cartType uint8, banks int, ramSizeCode uint8) []byte {
	rom := make([]byte, banks*romBankSize)
	copy(rom[logoAddress:], nintendoLogo)
	copy(rom[titleAddress:], "TESTCART")

	sizeCode := uint8(0)
	for b := 2; b < banks; b <<= 1 {
		sizeCode++
	}
	rom[cartridgeTypeAddress] = cartType
	rom[romSizeAddress] = sizeCode
	rom[ramSizeAddress] = ramSizeCode
	return rom
}

func TestLoadCartridgeHeader(t *testing.T) {
	cart, err := LoadCartridge(buildROM(0x03, 4, 0x02), false)
	require.NoError(t, err)

	assert.Equal(t, "TESTCART", cart.Title())
	assert.Equal(t, KindMBC1, cart.Kind())
	assert.True(t, cart.HasBattery())
	assert.False(t, cart.HasRTC())
	assert.False(t, cart.CGB())
	assert.Equal(t, 4, cart.romBanks)
	assert.Equal(t, 1, cart.ramBanks)
}

func TestLoadCartridgeCGBFlag(t *testing.T) {
	rom := buildROM(0x19, 2, 0x00)
	rom[cgbFlagAddress] = 0x80

	cart, err := LoadCartridge(rom, false)
	require.NoError(t, err)

	assert.True(t, cart.CGB())
	assert.Equal(t, KindMBC5, cart.Kind())
}

func TestLoadCartridgeTruncated(t *testing.T) {
	_, err := LoadCartridge(make([]byte, 0x100), false)
	assert.ErrorIs(t, err, ErrTruncatedROM)
}

func TestLoadCartridgeShorterThanDeclared(t *testing.T) {
	rom := buildROM(0x00, 2, 0x00)
	rom[romSizeAddress] = 0x02 // declares 16 banks

	_, err := LoadCartridge(rom, false)
	assert.ErrorIs(t, err, ErrBadROMSize)
}

func TestLoadCartridgeUnsupportedType(t *testing.T) {
	rom := buildROM(0x00, 2, 0x00)
	rom[cartridgeTypeAddress] = 0xFC // pocket camera

	_, err := LoadCartridge(rom, false)
	assert.ErrorIs(t, err, ErrUnsupportedMBC)
}

func TestLoadCartridgeRTCType(t *testing.T) {
	cart, err := LoadCartridge(buildROM(0x10, 2, 0x03), false)
	require.NoError(t, err)

	assert.Equal(t, KindMBC3, cart.Kind())
	assert.True(t, cart.HasRTC())
	assert.True(t, cart.HasBattery())
	assert.Equal(t, 4, cart.ramBanks)
}

func TestMulticartDetection(t *testing.T) {
	// 64 banks = 1 MiB, with a second full header at the 256 KiB boundary
	rom := buildROM(0x01, 64, 0x00)
	copy(rom[0x40000+logoAddress:], nintendoLogo)

	t.Run("detected with compat flag", func(t *testing.T) {
		cart, err := LoadCartridge(rom, true)
		require.NoError(t, err)
		assert.Equal(t, KindMBC1Multi, cart.Kind())
	})

	t.Run("plain MBC1 without flag", func(t *testing.T) {
		cart, err := LoadCartridge(rom, false)
		require.NoError(t, err)
		assert.Equal(t, KindMBC1, cart.Kind())
	})

	t.Run("single header stays plain", func(t *testing.T) {
		cart, err := LoadCartridge(buildROM(0x01, 64, 0x00), true)
		require.NoError(t, err)
		assert.Equal(t, KindMBC1, cart.Kind())
	})
}
