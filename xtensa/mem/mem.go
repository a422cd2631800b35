// Package mem implements the memory-access engine (layer 7): chunked
// reads and writes through two general registers used as base/scratch,
// plus the word-aligned read_buffer/write_buffer wrappers used for
// instruction-memory access.
package mem

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"github.com/cesanta/esp108jtag/xtensa/hostif"
	"github.com/cesanta/esp108jtag/xtensa/isa"
	"github.com/cesanta/esp108jtag/xtensa/nexus"
	"github.com/cesanta/esp108jtag/xtensa/ocd"
	"github.com/cesanta/esp108jtag/xtensa/regs"
)

// Engine is the layer-7 memory-access engine.
type Engine struct {
	inj  *isa.Injector
	ocd  *ocd.Client
	file *regs.File
}

func NewEngine(inj *isa.Injector, o *ocd.Client, file *regs.File) *Engine {
	return &Engine{inj: inj, ocd: o, file: file}
}

func validateSize(size int) error {
	switch size {
	case 1, 2, 4:
		return nil
	default:
		return hostif.Errorf(hostif.StatusSyntaxError, "invalid access size %d", size)
	}
}

func validateRequest(halted bool, addr uint32, size, count int, bufLen int) error {
	if !halted {
		return hostif.ErrNotHalted
	}
	if err := validateSize(size); err != nil {
		return err
	}
	if count == 0 {
		return hostif.Errorf(hostif.StatusSyntaxError, "count must be > 0")
	}
	if size > 1 && addr%uint32(size) != 0 {
		return hostif.Errorf(hostif.StatusUnalignedAccess, "address 0x%x is not %d-byte aligned", addr, size)
	}
	if bufLen < size*count {
		return hostif.Errorf(hostif.StatusSyntaxError, "buffer too small: need %d bytes, got %d", size*count, bufLen)
	}
	return nil
}

func loadInsn(size int, s, t, imm8 uint8) uint32 {
	switch size {
	case 1:
		return isa.L8UI(s, t, imm8)
	case 2:
		return isa.L16UI(s, t, imm8)
	default:
		return isa.L32I(s, t, imm8)
	}
}

func storeInsn(size int, s, t, imm8 uint8) uint32 {
	switch size {
	case 1:
		return isa.S8I(s, t, imm8)
	case 2:
		return isa.S16I(s, t, imm8)
	default:
		return isa.S32I(s, t, imm8)
	}
}

// ReadMemory reads count elements of size bytes each starting at addr
// into buf. halted must reflect the current target state;
// the engine itself performs no TAP traffic for a rejected precondition.
func (e *Engine) ReadMemory(ctx context.Context, halted bool, addr uint32, size, count int, buf []byte) error {
	if err := validateRequest(halted, addr, size, count, len(buf)); err != nil {
		return err
	}
	release := a0a1Scratch(ctx, e.file)
	defer release()

	for off := 0; off < count; {
		n := count - off
		if n > isa.MaxImm8 {
			n = isa.MaxImm8
		}
		chunkAddr := addr + uint32(off*size)
		if err := e.inj.WriteAR(ctx, isa.A0, chunkAddr); err != nil {
			return errors.Annotatef(err, "failed to load base address for chunk at 0x%x", chunkAddr)
		}
		results := make([]*nexus.Result, n)
		for i := 0; i < n; i++ {
			if err := e.inj.Exec(ctx, loadInsn(size, isa.A0, isa.A1, uint8(i))); err != nil {
				return errors.Annotatef(err, "failed to inject load at imm8=%d", i)
			}
			res, err := e.inj.ReadAR(ctx, isa.A1)
			if err != nil {
				return errors.Annotatef(err, "failed to queue read of a1 at imm8=%d", i)
			}
			results[i] = res
		}
		if err := e.inj.Flush(ctx); err != nil {
			e.file.Cache().InvalidateAll()
			return hostif.Annotatef(hostif.StatusFail, err, "flush failed reading memory at 0x%x", chunkAddr)
		}
		for i, res := range results {
			v := res.Value()
			dst := buf[(off+i)*size : (off+i)*size+size]
			for b := 0; b < size; b++ {
				dst[b] = byte(v >> (8 * b))
			}
		}
		glog.V(4).Infof("read_memory chunk addr=0x%x size=%d n=%d", chunkAddr, size, n)
		off += n
	}
	return nil
}

// WriteMemory writes count elements of size bytes each from buf to addr.
func (e *Engine) WriteMemory(ctx context.Context, halted bool, addr uint32, size, count int, buf []byte) error {
	if err := validateRequest(halted, addr, size, count, len(buf)); err != nil {
		return err
	}
	release := a0a1Scratch(ctx, e.file)
	defer release()

	for off := 0; off < count; {
		n := count - off
		if n > isa.MaxImm8 {
			n = isa.MaxImm8
		}
		chunkAddr := addr + uint32(off*size)
		if err := e.inj.WriteAR(ctx, isa.A0, chunkAddr); err != nil {
			return errors.Annotatef(err, "failed to load base address for chunk at 0x%x", chunkAddr)
		}
		for i := 0; i < n; i++ {
			src := buf[(off+i)*size : (off+i)*size+size]
			var v uint32
			for b := 0; b < size; b++ {
				v |= uint32(src[b]) << (8 * b)
			}
			if err := e.inj.WriteAR(ctx, isa.A1, v); err != nil {
				return errors.Annotatef(err, "failed to stage a1 at imm8=%d", i)
			}
			if err := e.inj.Exec(ctx, storeInsn(size, isa.A0, isa.A1, uint8(i))); err != nil {
				return errors.Annotatef(err, "failed to inject store at imm8=%d", i)
			}
		}
		if err := e.inj.Flush(ctx); err != nil {
			e.file.Cache().InvalidateAll()
			return hostif.Annotatef(hostif.StatusFail, err, "flush failed writing memory at 0x%x", chunkAddr)
		}
		glog.V(4).Infof("write_memory chunk addr=0x%x size=%d n=%d", chunkAddr, size, n)
		off += n
	}
	return nil
}

// ReadBuffer reads length bytes at addr into a plain byte slice,
// word-aligning the access (instruction fetch may require word-sized
// accesses when touching IRAM/IROM) and trimming the result to exactly
// the requested window.
func (e *Engine) ReadBuffer(ctx context.Context, halted bool, addr uint32, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	alignedStart := addr &^ 3
	alignedEnd := (addr + uint32(length) + 3) &^ 3
	words := int(alignedEnd-alignedStart) / 4
	wbuf := make([]byte, words*4)
	if err := e.ReadMemory(ctx, halted, alignedStart, 4, words, wbuf); err != nil {
		return nil, errors.Trace(err)
	}
	start := int(addr - alignedStart)
	return wbuf[start : start+length], nil
}

// WriteBuffer writes data to addr, performing a read-modify-write of the
// partial head/tail words so bytes outside [addr, addr+len(data)) are
// left untouched.
func (e *Engine) WriteBuffer(ctx context.Context, halted bool, addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	alignedStart := addr &^ 3
	alignedEnd := (addr + uint32(len(data)) + 3) &^ 3
	words := int(alignedEnd-alignedStart) / 4
	wbuf := make([]byte, words*4)
	if err := e.ReadMemory(ctx, halted, alignedStart, 4, words, wbuf); err != nil {
		return errors.Trace(err)
	}
	start := int(addr - alignedStart)
	copy(wbuf[start:start+len(data)], data)
	if err := e.WriteMemory(ctx, halted, alignedStart, 4, words, wbuf); err != nil {
		return errors.Trace(err)
	}
	return nil
}
