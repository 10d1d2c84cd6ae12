package gbcore

import (
	"fmt"
	"io"

	"github.com/valerio/go-gbcore/gbcore/state"
)

var stateMagic = [4]byte{'G', 'B', 'C', 'S'}

const stateVersion uint32 = 2

// SaveState writes a full snapshot of the emulation state to w. The
// snapshot restores bit-identical behavior under cycle-based RTC
// timekeeping.
func (g *GB) SaveState(w io.Writer) error {
	if g.core == nil {
		return ErrNotLoaded
	}
	s := state.NewSaver(w)
	g.core.syncState(s)
	return s.Err()
}

// LoadState restores a snapshot produced by SaveState for the same ROM.
func (g *GB) LoadState(r io.Reader) error {
	if g.core == nil {
		return ErrNotLoaded
	}
	s := state.NewLoader(r)
	g.core.syncState(s)
	return s.Err()
}

// syncState is the single traversal shared by save and load. Any new
// mutable field must be added here or snapshots corrupt silently.
func (c *core) syncState(s *state.Stream) {
	magic := stateMagic
	version := stateVersion
	s.Bytes(magic[:])
	s.U32(&version)
	if s.Mode() == state.Load && s.Err() == nil {
		if magic != stateMagic {
			s.Fail(fmt.Errorf("%w: bad magic", ErrBadState))
			return
		}
		if version != stateVersion {
			s.Fail(fmt.Errorf("%w: version %d", ErrBadState, version))
			return
		}
	}

	s.U64(&c.cpuCycles)
	s.U64(&c.videoCycles)
	s.Int(&c.speedRem)

	c.cpu.Sync(s)
	c.bus.Sync(s)
	c.ppu.Sync(s)
	c.clock.Sync(s)
}
