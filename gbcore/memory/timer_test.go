package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/go-gbcore/gbcore/addr"
)

func TestDivIncrementsEvery256Cycles(t *testing.T) {
	var tm Timer

	tm.Tick(255)
	assert.Equal(t, uint8(0), tm.Read(addr.DIV))

	tm.Tick(1)
	assert.Equal(t, uint8(1), tm.Read(addr.DIV))

	tm.Tick(256)
	assert.Equal(t, uint8(2), tm.Read(addr.DIV))
}

func TestDivWriteClearsCounter(t *testing.T) {
	var tm Timer

	tm.Tick(1000)
	tm.Write(addr.DIV, 0x5A)

	assert.Equal(t, uint8(0), tm.Read(addr.DIV), "any write clears DIV")
}

func TestTimaRate(t *testing.T) {
	var tm Timer
	tm.Write(addr.TAC, 0x05) // enabled, 16-cycle period

	tm.Tick(256)

	assert.Equal(t, uint8(16), tm.Read(addr.TIMA))
}

func TestTimaDisabled(t *testing.T) {
	var tm Timer
	tm.Write(addr.TAC, 0x01) // clock selected but not enabled

	tm.Tick(1024)

	assert.Equal(t, uint8(0), tm.Read(addr.TIMA))
}

func TestTimaOverflowReloadAndInterrupt(t *testing.T) {
	var fired int
	tm := Timer{irq: func(i addr.Interrupt) {
		assert.Equal(t, addr.TimerInterrupt, i)
		fired++
	}}
	tm.Write(addr.TAC, 0x05)
	tm.Write(addr.TMA, 0xAB)
	tm.Write(addr.TIMA, 0xFF)

	// first falling edge of divider bit 3
	tm.Tick(16)
	assert.Equal(t, uint8(0x00), tm.Read(addr.TIMA), "TIMA reads 0 during the overflow limbo")
	assert.Zero(t, fired)

	tm.Tick(4)
	assert.Equal(t, uint8(0xAB), tm.Read(addr.TIMA), "TMA reload after 4 cycles")
	assert.Zero(t, fired, "interrupt trails the reload by one cycle")

	tm.Tick(1)
	assert.Equal(t, 1, fired)
}

func TestTacRegisterMask(t *testing.T) {
	var tm Timer
	tm.Write(addr.TAC, 0xFF)

	assert.Equal(t, uint8(0xFF), tm.Read(addr.TAC), "upper bits read as 1")
	assert.Equal(t, uint8(0x07), tm.tac, "only the low 3 bits are stored")
}
