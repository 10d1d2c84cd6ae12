package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestRTC() (*RTC, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_000_000, 0)}
	return NewWithClock(clock), clock
}

func TestCycleModeSeconds(t *testing.T) {
	r, _ := newTestRTC()
	r.SetTimeMode(true)

	// one second minus one cycle: nothing yet
	r.Tick(BaseClockRate - 1)
	regs := r.Regs()
	assert.Equal(t, uint32(0), regs[4], "seconds")

	r.Tick(1)
	regs = r.Regs()
	assert.Equal(t, uint32(1), regs[4], "seconds")
	assert.Equal(t, uint32(0), regs[5], "sub-second cycles")
}

func TestDivisorOffset(t *testing.T) {
	r, _ := newTestRTC()
	r.SetTimeMode(true)
	r.SetDivisorOffset(-BaseClockRate + 100) // effective divisor of 100

	r.Tick(250)
	regs := r.Regs()
	assert.Equal(t, uint32(2), regs[4])
	assert.Equal(t, uint32(50), regs[5])
}

func TestWallClockCatchUp(t *testing.T) {
	r, clock := newTestRTC()

	clock.advance(61 * time.Second)
	regs := r.Regs()
	assert.Equal(t, uint32(1), regs[4], "seconds")
	assert.Equal(t, uint32(1), regs[3], "minutes")
}

func TestHaltStopsTime(t *testing.T) {
	r, clock := newTestRTC()
	r.Write(RegDayHigh, 0x40) // halt

	clock.advance(10 * time.Second)
	regs := r.Regs()
	assert.Equal(t, uint32(0), regs[4])

	// resume: elapsed time while halted must not be applied retroactively
	r.Write(RegDayHigh, 0x00)
	clock.advance(2 * time.Second)
	regs = r.Regs()
	assert.Equal(t, uint32(2), regs[4])
}

func TestLatchSequence(t *testing.T) {
	r, _ := newTestRTC()
	r.SetTimeMode(true)
	r.Tick(5 * BaseClockRate)

	// latched copies stay at zero until the 0x00,0x01 sequence
	assert.Equal(t, uint8(0), r.Read(RegSec))
	r.WriteLatch(0x00)
	r.WriteLatch(0x01)
	assert.Equal(t, uint8(5), r.Read(RegSec))

	// live counters keep running past the latch
	r.Tick(3 * BaseClockRate)
	assert.Equal(t, uint8(5), r.Read(RegSec))
	assert.Equal(t, uint32(8), r.Regs()[4])
}

func TestDayOverflowSetsCarry(t *testing.T) {
	r, _ := newTestRTC()
	r.SetTimeMode(true)
	r.SetRegs([11]uint32{0x01, 0xFF, 23, 59, 59, 0, 0, 0, 0, 0, 0})

	r.Tick(BaseClockRate)
	regs := r.Regs()
	assert.Equal(t, uint32(0x80), regs[0], "carry flag set, day bit cleared")
	assert.Equal(t, uint32(0), regs[1])
	assert.Equal(t, uint32(0), regs[2])
}

func TestSavedataRoundTrip(t *testing.T) {
	r, _ := newTestRTC()
	r.SetTimeMode(true)
	r.Tick(90 * BaseClockRate)
	r.WriteLatch(0x00)
	r.WriteLatch(0x01)

	blob := make([]byte, SavedataLen)
	r.MarshalSavedata(blob)

	fresh, _ := newTestRTC()
	fresh.SetTimeMode(true)
	fresh.UnmarshalSavedata(blob)

	require.Equal(t, r.Regs(), fresh.Regs())
}
