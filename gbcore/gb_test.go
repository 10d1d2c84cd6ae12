package gbcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testROM builds a minimal image that jumps to 0x0150 and spins there.
func testROM(cartType uint8, banks int, ramSizeCode uint8) []byte {
	rom := make([]byte, banks*0x4000)
	copy(rom[0x134:], "FACADETEST")

	sizeCode := uint8(0)
	for b := 2; b < banks; b <<= 1 {
		sizeCode++
	}
	rom[0x147] = cartType
	rom[0x148] = sizeCode
	rom[0x149] = ramSizeCode

	// JP 0x0150
	rom[0x100] = 0xC3
	rom[0x101] = 0x50
	rom[0x102] = 0x01
	// NOP; JR -3
	rom[0x150] = 0x00
	rom[0x151] = 0x18
	rom[0x152] = 0xFD
	return rom
}

func load(t *testing.T, rom []byte, flags LoadFlag) *GB {
	t.Helper()
	g := New()
	require.NoError(t, g.Load(rom, flags))
	return g
}

// runFrame emulates until one frame completes, returning the sample offset.
func runFrame(t *testing.T, g *GB) (int, []uint32) {
	t.Helper()
	buf := make([]uint32, SamplesPerFrame+MaxSamplesOverrun)
	samples := SamplesPerFrame
	offset := g.RunFor(buf, &samples)
	require.GreaterOrEqual(t, offset, 0, "expected a completed frame")
	return offset, buf[:samples]
}

func TestQueriesBeforeLoad(t *testing.T) {
	g := New()

	assert.False(t, g.IsLoaded())
	assert.False(t, g.IsCgb())
	assert.Empty(t, g.RomTitle())
	assert.Equal(t, -1, g.GetHitInterruptAddress())
	assert.Equal(t, -1, g.LinkStatus(LinkShiftReg))
	assert.Equal(t, uint8(0xFF), g.ExternalRead(0xC000))
	assert.Zero(t, g.SaveSavedataLength(false))

	area, ok := g.GetMemoryArea(AreaVRAM)
	assert.Nil(t, area)
	assert.False(t, ok)

	samples := 100
	assert.Equal(t, -1, g.RunFor(make([]uint32, 100+MaxSamplesOverrun), &samples))
	assert.Zero(t, samples)

	g.BlitTo(make([]uint32, ScreenWidth*ScreenHeight), ScreenWidth)
	assert.Error(t, g.SaveState(&bytes.Buffer{}))
}

func TestLoadRejectsBadROM(t *testing.T) {
	g := New()
	assert.Error(t, g.Load(make([]byte, 0x100), 0))
	assert.False(t, g.IsLoaded())

	bad := testROM(0x00, 2, 0x00)
	bad[0x147] = 0xC0
	assert.Error(t, g.Load(bad, 0))
	assert.False(t, g.IsLoaded())
}

func TestLoadBasicROM(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	assert.True(t, g.IsLoaded())
	assert.False(t, g.IsCgb())
	assert.Equal(t, "FACADETEST", g.RomTitle())
}

func TestLoadCGBMode(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), CGBMode)

	assert.True(t, g.IsCgb())
	assert.Equal(t, uint8(0x11), g.GetRegs().A)

	area, ok := g.GetMemoryArea(AreaVRAM)
	require.True(t, ok)
	assert.Len(t, area, 0x4000, "both VRAM banks visible")
}

func TestBiosSizeValidation(t *testing.T) {
	g := New()
	assert.ErrorIs(t, g.LoadBios(make([]byte, 100)), ErrBadBiosSize)
	assert.NoError(t, g.LoadBios(make([]byte, 256)))
	assert.NoError(t, g.LoadBios(make([]byte, 2304)))
}

func TestBiosOverlayBoots(t *testing.T) {
	g := New()
	bios := make([]byte, 256)
	bios[0] = 0x18 // JR -2, spin at 0x0000
	bios[1] = 0xFE
	require.NoError(t, g.LoadBios(bios))
	require.NoError(t, g.Load(testROM(0x00, 2, 0x00), 0))

	assert.Equal(t, uint16(0), g.GetRegs().PC)
	assert.Equal(t, uint8(0x18), g.ExternalRead(0x0000), "boot ROM mapped")

	samples := 100
	g.RunFor(make([]uint32, 100+MaxSamplesOverrun), &samples)
	assert.Equal(t, uint8(0x18), g.ExternalRead(0x0000), "still mapped until FF50")
}

func TestRunForReportsFrame(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	offset, got := runFrame(t, g)
	assert.LessOrEqual(t, offset, SamplesPerFrame+MaxSamplesOverrun)
	assert.LessOrEqual(t, len(got), SamplesPerFrame+MaxSamplesOverrun)
	assert.GreaterOrEqual(t, len(got), offset)
}

func TestRunForOverrunBound(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	for i := 0; i < 20; i++ {
		request := 1000
		samples := request
		g.RunFor(make([]uint32, request+MaxSamplesOverrun), &samples)
		assert.LessOrEqual(t, samples, request+MaxSamplesOverrun)
	}
}

func TestConsecutiveFramesAreDistinct(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	runFrame(t, g)
	offset, got := runFrame(t, g)

	// the second call must emulate a whole new frame, not re-report the
	// previous one
	assert.Greater(t, len(got), SamplesPerFrame/2)
	assert.GreaterOrEqual(t, offset, SamplesPerFrame/2)
}

func TestSaveStateRoundTripIsBitIdentical(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)
	g.SetTimeMode(true)
	runFrame(t, g)

	var snap bytes.Buffer
	require.NoError(t, g.SaveState(&snap))

	const n = 8000
	first := make([]uint32, n+MaxSamplesOverrun)
	firstN := n
	firstRet := g.RunFor(first, &firstN)

	require.NoError(t, g.LoadState(bytes.NewReader(snap.Bytes())))

	second := make([]uint32, n+MaxSamplesOverrun)
	secondN := n
	secondRet := g.RunFor(second, &secondN)

	assert.Equal(t, firstRet, secondRet)
	assert.Equal(t, firstN, secondN)
	assert.Equal(t, first[:firstN], second[:secondN])
}

func TestSaveStateRestoresIntoFreshInstance(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)
	g.SetTimeMode(true)
	runFrame(t, g)

	// stop partway through the next frame so the back buffer holds
	// freshly drawn lines
	partial := make([]uint32, 8000+MaxSamplesOverrun)
	n := 8000
	require.Equal(t, -1, g.RunFor(partial, &n))

	var snap bytes.Buffer
	require.NoError(t, g.SaveState(&snap))

	restored := load(t, testROM(0x00, 2, 0x00), 0)
	restored.SetTimeMode(true)
	require.NoError(t, restored.LoadState(bytes.NewReader(snap.Bytes())))

	want := make([]uint32, ScreenWidth*ScreenHeight)
	got := make([]uint32, ScreenWidth*ScreenHeight)
	g.BlitTo(want, ScreenWidth)
	restored.BlitTo(got, ScreenWidth)
	assert.Equal(t, want, got, "completed frame survives the transfer")

	_, origAudio := runFrame(t, g)
	_, restAudio := runFrame(t, restored)
	assert.Equal(t, origAudio, restAudio)

	g.BlitTo(want, ScreenWidth)
	restored.BlitTo(got, ScreenWidth)
	assert.Equal(t, want, got, "lines drawn before the save survive the transfer")
}

func TestLoadStateRejectsGarbage(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	err := g.LoadState(bytes.NewReader([]byte("not a savestate at all")))
	assert.ErrorIs(t, err, ErrBadState)
}

func TestResetMatchesFreshLoad(t *testing.T) {
	rom := testROM(0x00, 2, 0x00)

	g := load(t, rom, 0)
	g.SetTimeMode(true)
	runFrame(t, g)
	runFrame(t, g)
	g.Reset()

	fresh := load(t, rom, 0)
	fresh.SetTimeMode(true)

	assert.Equal(t, fresh.GetRegs(), g.GetRegs())

	offReset, audioReset := runFrame(t, g)
	offFresh, audioFresh := runFrame(t, fresh)
	assert.Equal(t, offFresh, offReset)
	assert.Equal(t, audioFresh, audioReset)
}

func TestResetIsIdempotent(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)
	g.SetTimeMode(true)

	g.Reset()
	var once bytes.Buffer
	require.NoError(t, g.SaveState(&once))

	runFrame(t, g)
	g.Reset()
	g.Reset()
	var twice bytes.Buffer
	require.NoError(t, g.SaveState(&twice))

	assert.Equal(t, once.Bytes(), twice.Bytes())
}

func TestBreakpointHalts(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)
	g.SetInterruptAddresses([]int{0x0150})

	buf := make([]uint32, SamplesPerFrame+MaxSamplesOverrun)
	samples := SamplesPerFrame
	ret := g.RunFor(buf, &samples)

	assert.Equal(t, -1, ret)
	assert.Equal(t, 0x0150, g.GetHitInterruptAddress())
	assert.Equal(t, uint16(0x0150), g.GetRegs().PC, "halted before executing")
	assert.Less(t, samples, 100)

	g.SetInterruptAddresses(nil)
	samples = SamplesPerFrame
	ret = g.RunFor(buf, &samples)
	assert.GreaterOrEqual(t, ret, 0, "runs normally once cleared")
	assert.Equal(t, -1, g.GetHitInterruptAddress())
}

func TestInputGetterWiring(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)
	g.SetInputGetter(func() Buttons { return ButtonA })

	g.ExternalWrite(0xFF00, 0x10) // select button keys
	samples := 100
	g.RunFor(make([]uint32, 100+MaxSamplesOverrun), &samples)

	assert.Equal(t, uint8(0xDE), g.ExternalRead(0xFF00), "A pressed reads low")
}

func TestMemoryAreaSizes(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	for _, tc := range []struct {
		which int
		size  int
	}{
		{AreaVRAM, 0x2000},
		{AreaROM, 0x8000},
		{AreaWRAM, 0x2000},
		{AreaOAM, 0xA0},
		{AreaHRAM, 0x7F},
	} {
		area, ok := g.GetMemoryArea(tc.which)
		require.True(t, ok, "area %d", tc.which)
		assert.Len(t, area, tc.size, "area %d", tc.which)
	}

	area, ok := g.GetMemoryArea(99)
	assert.Nil(t, area)
	assert.False(t, ok)
}

func TestExternalAccessSkipsHooks(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	hooks := 0
	g.SetReadCallback(func(address uint16, cycle uint64) { hooks++ })
	g.SetWriteCallback(func(address uint16, cycle uint64) { hooks++ })

	g.ExternalWrite(0xC123, 0x42)
	assert.Equal(t, uint8(0x42), g.ExternalRead(0xC123))
	assert.Zero(t, hooks)
}

func TestSavedataRoundTrip(t *testing.T) {
	// MBC3 with battery RAM and RTC
	g := load(t, testROM(0x10, 2, 0x03), 0)

	withRTC := g.SaveSavedataLength(false)
	deterministic := g.SaveSavedataLength(true)
	assert.Less(t, deterministic, withRTC)
	assert.Equal(t, 26, withRTC-deterministic)

	ram, ok := g.GetMemoryArea(AreaCartRAM)
	require.True(t, ok)
	ram[0] = 0xAB
	ram[len(ram)-1] = 0xCD

	blob := g.SaveSavedata(false)
	require.Len(t, blob, withRTC)

	ram[0] = 0
	ram[len(ram)-1] = 0
	g.LoadSavedata(blob)

	assert.Equal(t, uint8(0xAB), ram[0])
	assert.Equal(t, uint8(0xCD), ram[len(ram)-1])
}

func TestSavedataEmptyWithoutBattery(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	assert.Zero(t, g.SaveSavedataLength(false))
	assert.Nil(t, g.SaveSavedata(false))
}

func TestRtcRegsTransferOrder(t *testing.T) {
	g := load(t, testROM(0x10, 2, 0x03), 0)
	g.SetTimeMode(true)

	regs := g.GetRtcRegs()
	regs[2] = 13 // hours
	regs[4] = 59 // seconds
	g.SetRtcRegs(regs)

	got := g.GetRtcRegs()
	assert.Equal(t, uint32(13), got[2])
	assert.Equal(t, uint32(59), got[4])
}

func TestRegsArrayOrder(t *testing.T) {
	r := Regs{PC: 0x1234, SP: 0x5678, A: 1, B: 2, C: 3, D: 4, E: 5, F: 0xF0, H: 7, L: 8}

	a := RegsToArray(r)
	assert.Equal(t, [10]int32{0x1234, 0x5678, 1, 2, 3, 4, 5, 0xF0, 7, 8}, a)
	assert.Equal(t, r, RegsFromArray(a))
}

func TestBlitToProducesPixels(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)
	runFrame(t, g)

	dst := make([]uint32, ScreenWidth*ScreenHeight)
	g.BlitTo(dst, ScreenWidth)
	// boot leaves BGP 0xFC with blank tile data, every pixel resolves
	assert.NotPanics(t, func() { g.BlitTo(dst, ScreenWidth) })
}

func TestSetLayersDisablesBackground(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)
	g.SetLayers(0)
	runFrame(t, g)

	dst := make([]uint32, ScreenWidth*ScreenHeight)
	g.BlitTo(dst, ScreenWidth)
	for _, px := range dst[:ScreenWidth] {
		assert.Equal(t, uint32(0xFFFFFF), px)
	}
}

func TestScanlineCallback(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	hits := 0
	g.SetScanlineCallback(func(line int) {
		hits++
		assert.Equal(t, 40, line)
	}, 40)

	runFrame(t, g)
	assert.Equal(t, 1, hits)
}

func TestTraceCallbackObservesExecution(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	seen := 0
	var firstPC uint16
	g.SetTraceCallback(func(r Regs) {
		if seen == 0 {
			firstPC = r.PC
		}
		seen++
	})

	samples := 100
	g.RunFor(make([]uint32, 100+MaxSamplesOverrun), &samples)

	assert.Greater(t, seen, 10)
	assert.Equal(t, uint16(0x0100), firstPC)
}

func TestLinkStatusIdle(t *testing.T) {
	g := load(t, testROM(0x00, 2, 0x00), 0)

	assert.Equal(t, 0, g.LinkStatus(LinkBitsLeft))
	assert.Equal(t, -1, g.LinkStatus(1234))

	_, ok := g.LinkReceive(0x55)
	assert.False(t, ok, "no externally clocked transfer pending")
}
