// Package regs presents the ~85 Xtensa architectural registers as a
// uniform, index-addressable cache (layer 6), translating each read and
// write into a recipe against the Nexus/OCD/instruction-injection
// layers below it.
package regs

import "fmt"

// Class tags the access recipe a register descriptor needs.
type Class int

const (
	General Class = iota
	User
	Special
	Debug
)

func (c Class) String() string {
	switch c {
	case General:
		return "general"
	case User:
		return "user"
	case Special:
		return "special"
	case Debug:
		return "debug"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Descriptor is one entry of the fixed, GDB-wire-order register table.
type Descriptor struct {
	Name  string
	Num   uint8 // ISA register number; meaning depends on Class.
	Class Class
}

// NumRegs is the fixed size of the architectural register vector
// (XT_NUM_REGS in the reference driver).
const NumRegs = 85

// DebugLevel is XCHAL_DEBUGLEVEL for the 108Mini configuration. PC is
// exposed as the SPECIAL register EPC[DebugLevel].
const DebugLevel = 6

// Fixed indices into Table for registers the driver's own code (not
// just GDB) needs to name directly.
const (
	IdxPC          = 0
	IdxAR0         = 1
	IdxAR15        = 16
	IdxAR63        = 64
	IdxLBeg        = 65
	IdxLEnd        = 66
	IdxLCount      = 67
	IdxSAR         = 68
	IdxWindowBase  = 69
	IdxWindowStart = 70
	IdxConfigID0   = 71
	IdxConfigID1   = 72
	IdxPS          = 73
	IdxThreadPtr   = 74
	IdxBR          = 75
	IdxSCompare1   = 76
	IdxAccLo       = 77
	IdxAccHi       = 78
	IdxM0          = 79
	IdxM1          = 80
	IdxM2          = 81
	IdxM3          = 82
	IdxExpState    = 83
	IdxDDR         = 84
)

// IBREAKA/IBREAKENABLE/DBREAK* are not part of GDB's fixed 85-entry
// vector, but the breakpoint manager (layer 8) still reaches them
// through the same SR read/write recipe this package exposes, so their
// SR numbers live here alongside the table.
const (
	SRIBreakA0      uint8 = 0x80
	SRIBreakA1      uint8 = 0x81
	SRIBreakEnable  uint8 = 0x60
	SRDBreakA0      uint8 = 0x90
	SRDBreakA1      uint8 = 0x91
	SRDBreakC0      uint8 = 0xA0
	SRDBreakC1      uint8 = 0xA1
	SRICountLevel   uint8 = 0xB1
	SRICount        uint8 = 0xEC
)

// Table is the fixed, GDB-order vector of register descriptors.
var Table [NumRegs]Descriptor

func init() {
	Table[IdxPC] = Descriptor{"pc", 176 + DebugLevel, Special} // EPC[DEBUGLEVEL]
	for i := 0; i < 64; i++ {
		Table[IdxAR0+i] = Descriptor{fmt.Sprintf("ar%d", i), uint8(i), General}
	}
	Table[IdxLBeg] = Descriptor{"lbeg", 0x00, Special}
	Table[IdxLEnd] = Descriptor{"lend", 0x01, Special}
	Table[IdxLCount] = Descriptor{"lcount", 0x02, Special}
	Table[IdxSAR] = Descriptor{"sar", 0x03, Special}
	Table[IdxWindowBase] = Descriptor{"windowbase", 0x48, Special}
	Table[IdxWindowStart] = Descriptor{"windowstart", 0x49, Special}
	Table[IdxConfigID0] = Descriptor{"configid0", 0xB0, Special}
	Table[IdxConfigID1] = Descriptor{"configid1", 0xD0, Special}
	Table[IdxPS] = Descriptor{"ps", 0xE6, Special}
	Table[IdxThreadPtr] = Descriptor{"threadptr", 0xE7, User}
	Table[IdxBR] = Descriptor{"br", 0x04, Special}
	Table[IdxSCompare1] = Descriptor{"scompare1", 0x0C, Special}
	Table[IdxAccLo] = Descriptor{"acclo", 0x10, Special}
	Table[IdxAccHi] = Descriptor{"acchi", 0x11, Special}
	Table[IdxM0] = Descriptor{"m0", 0x20, Special}
	Table[IdxM1] = Descriptor{"m1", 0x21, Special}
	Table[IdxM2] = Descriptor{"m2", 0x22, Special}
	Table[IdxM3] = Descriptor{"m3", 0x23, Special}
	Table[IdxExpState] = Descriptor{"expstate", 0xE6, User}
	Table[IdxDDR] = Descriptor{"ddr", 0x68, Debug}
}

// ByName returns the index of the register named n, or -1 if there is
// no such register.
func ByName(n string) int {
	for i, d := range Table {
		if d.Name == n {
			return i
		}
	}
	return -1
}
