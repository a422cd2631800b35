package bp

import (
	"github.com/cesanta/esp108jtag/xtensa/isa"
	"github.com/cesanta/esp108jtag/xtensa/regs"
)

// a0Scratch marks AR0's cache entry dirty for the duration of a WriteSR/
// ReadSR recipe, which clobbers the physical A0 register as scratch.
// Restore then writes AR0's last-known-good value back on the next
// resume, same pattern as mem.a0a1Scratch.
func a0Scratch(file *regs.File) (release func()) {
	idx := int(isa.A0) + regs.IdxAR0
	file.Cache().SetLocal(idx, file.Cache().Get(idx).Value)
	return func() {
		file.Cache().SetLocal(idx, file.Cache().Get(idx).Value)
	}
}
