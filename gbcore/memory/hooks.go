package memory

// AccessCallback observes a memory access made by the executing program.
// cycle is the CPU cycle count at the time of the access. Callbacks fire
// only for genuine program accesses, never for host-side reads or writes.
type AccessCallback func(address uint16, cycle uint64)

// CDLogRegion classifies the backing storage of a logged access.
type CDLogRegion uint8

const (
	CDLogROM CDLogRegion = iota
	CDLogHRAM
	CDLogWRAM
	CDLogCartRAM
	// CDLogNone covers accesses with no loggable backing, such as disabled
	// cartridge RAM or I/O registers.
	CDLogNone
)

// CDLogFlags describes how a logged address was used.
type CDLogFlags uint8

const (
	CDLogExecOpcode CDLogFlags = 1 << iota
	CDLogExecOperand
	CDLogData
)

// CDLogCallback receives one record per program access. offset is the flat
// offset within the region (bank effects already applied), so a code/data
// logger can build a coverage map of the whole ROM.
type CDLogCallback func(offset int, region CDLogRegion, flags CDLogFlags)
