// Package bp is the breakpoint/watchpoint manager (layer 8): it
// allocates among a fixed number of hardware IBREAK/DBREAK slots and
// mirrors their enable bits against the on-chip IBREAKENABLE register.
package bp

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"github.com/cesanta/esp108jtag/xtensa/hostif"
	"github.com/cesanta/esp108jtag/xtensa/isa"
	"github.com/cesanta/esp108jtag/xtensa/regs"
)

// NumBreakpoints and NumWatchpoints are the fixed slot-table sizes
// (XT_NUM_BREAKPOINTS / XT_NUM_WATCHPOINTS in the reference driver).
const (
	NumBreakpoints = 2
	NumWatchpoints = 2
)

// Manager owns the hardware breakpoint and watchpoint slot tables.
type Manager struct {
	inj  *isa.Injector
	file *regs.File

	bpSlots     [NumBreakpoints]*hostif.Breakpoint
	bpFreeCount int

	wpSlots     [NumWatchpoints]*hostif.Watchpoint
	wpFreeCount int
}

func NewManager(inj *isa.Injector, file *regs.File) *Manager {
	return &Manager{
		inj: inj, file: file,
		bpFreeCount: NumBreakpoints,
		wpFreeCount: NumWatchpoints,
	}
}

func (m *Manager) FreeBreakpointCount() int { return m.bpFreeCount }
func (m *Manager) FreeWatchpointCount() int { return m.wpFreeCount }

// AddBreakpoint allocates the lowest-index free IBREAK slot for bp,
// writes its address and sets its enable bit. Only
// hardware breakpoints are supported; a SOFT request is rejected without
// any TAP traffic.
func (m *Manager) AddBreakpoint(ctx context.Context, halted bool, bp *hostif.Breakpoint) error {
	if bp.Type == hostif.BreakpointSoft {
		return hostif.Errorf(hostif.StatusResourceNotAvailable, "software breakpoints are not supported")
	}
	if !halted {
		return hostif.ErrNotHalted
	}
	if m.bpFreeCount == 0 {
		return hostif.ErrResourceNotAvailable
	}
	slot := -1
	for i, s := range m.bpSlots {
		if s == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return hostif.ErrResourceNotAvailable
	}
	release := a0Scratch(m.file)
	defer release()
	ibreakaSR := []uint8{regs.SRIBreakA0, regs.SRIBreakA1}[slot]
	if err := m.inj.WriteSR(ctx, ibreakaSR, bp.Address); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to write IBREAKA[%d]", slot)
	}
	enableMask, err := m.readIBreakEnable(ctx)
	if err != nil {
		return err
	}
	enableMask |= 1 << uint(slot)
	if err := m.inj.WriteSR(ctx, regs.SRIBreakEnable, enableMask); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to write IBREAKENABLE")
	}
	if err := m.inj.Flush(ctx); err != nil {
		m.file.Cache().InvalidateAll()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush breakpoint add")
	}
	m.bpSlots[slot] = bp
	m.bpFreeCount--
	glog.V(3).Infof("breakpoint added in slot %d at 0x%08x", slot, bp.Address)
	return nil
}

// RemoveBreakpoint clears bp's slot's enable bit and frees the slot.
// Failing to find bp is a logic error in the caller.
func (m *Manager) RemoveBreakpoint(ctx context.Context, halted bool, bp *hostif.Breakpoint) error {
	if !halted {
		return hostif.ErrNotHalted
	}
	slot := -1
	for i, s := range m.bpSlots {
		if s == bp {
			slot = i
			break
		}
	}
	if slot < 0 {
		panic("bp: remove of breakpoint not present in any slot")
	}
	release := a0Scratch(m.file)
	defer release()
	enableMask, err := m.readIBreakEnable(ctx)
	if err != nil {
		return err
	}
	enableMask &^= 1 << uint(slot)
	if err := m.inj.WriteSR(ctx, regs.SRIBreakEnable, enableMask); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to write IBREAKENABLE")
	}
	if err := m.inj.Flush(ctx); err != nil {
		m.file.Cache().InvalidateAll()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush breakpoint remove")
	}
	m.bpSlots[slot] = nil
	m.bpFreeCount++
	glog.V(3).Infof("breakpoint removed from slot %d", slot)
	return nil
}

func (m *Manager) readIBreakEnable(ctx context.Context) (uint32, error) {
	res, err := m.inj.ReadSR(ctx, regs.SRIBreakEnable)
	if err != nil {
		return 0, hostif.Annotatef(hostif.StatusFail, err, "failed to queue read of IBREAKENABLE")
	}
	if err := m.inj.Flush(ctx); err != nil {
		m.file.Cache().InvalidateAll()
		return 0, hostif.Annotatef(hostif.StatusFail, err, "failed to flush IBREAKENABLE read")
	}
	return res.Value(), nil
}

// AddWatchpoint allocates a DBREAK slot for a data watchpoint. DBREAKC
// encodes the watched length (as a power-of-two mask) and access type;
// DBREAKA holds the watched address.
func (m *Manager) AddWatchpoint(ctx context.Context, halted bool, wp *hostif.Watchpoint) error {
	if !halted {
		return hostif.ErrNotHalted
	}
	if m.wpFreeCount == 0 {
		return hostif.ErrResourceNotAvailable
	}
	slot := -1
	for i, s := range m.wpSlots {
		if s == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return hostif.ErrResourceNotAvailable
	}
	release := a0Scratch(m.file)
	defer release()
	dbreakaSR := []uint8{regs.SRDBreakA0, regs.SRDBreakA1}[slot]
	dbreakcSR := []uint8{regs.SRDBreakC0, regs.SRDBreakC1}[slot]
	if err := m.inj.WriteSR(ctx, dbreakaSR, wp.Address); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to write DBREAKA[%d]", slot)
	}
	if err := m.inj.WriteSR(ctx, dbreakcSR, watchpointCtrl(wp)); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to write DBREAKC[%d]", slot)
	}
	if err := m.inj.Flush(ctx); err != nil {
		m.file.Cache().InvalidateAll()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush watchpoint add")
	}
	m.wpSlots[slot] = wp
	m.wpFreeCount--
	return nil
}

// RemoveWatchpoint clears wp's DBREAKC (disabling the slot) and frees it.
func (m *Manager) RemoveWatchpoint(ctx context.Context, halted bool, wp *hostif.Watchpoint) error {
	if !halted {
		return hostif.ErrNotHalted
	}
	slot := -1
	for i, s := range m.wpSlots {
		if s == wp {
			slot = i
			break
		}
	}
	if slot < 0 {
		panic("bp: remove of watchpoint not present in any slot")
	}
	release := a0Scratch(m.file)
	defer release()
	dbreakcSR := []uint8{regs.SRDBreakC0, regs.SRDBreakC1}[slot]
	if err := m.inj.WriteSR(ctx, dbreakcSR, 0); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to clear DBREAKC[%d]", slot)
	}
	if err := m.inj.Flush(ctx); err != nil {
		m.file.Cache().InvalidateAll()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush watchpoint remove")
	}
	m.wpSlots[slot] = nil
	m.wpFreeCount++
	return nil
}

// DBREAKC bits: BI (break-in, bits 0-5: mask of low address bits to
// ignore, expressed as 64-len), LoadAddr (bit 30), StoreAddr (bit 31).
func watchpointCtrl(wp *hostif.Watchpoint) uint32 {
	mask := uint32(0)
	for l := wp.Length; l > 1; l >>= 1 {
		mask++
	}
	ctrl := (^uint32(0) << mask) & 0x3f
	switch wp.RW {
	case hostif.WatchpointRead:
		ctrl |= 1 << 30
	case hostif.WatchpointWrite:
		ctrl |= 1 << 31
	case hostif.WatchpointAccess:
		ctrl |= 1<<30 | 1<<31
	}
	return ctrl
}

// BreakpointAt returns the breakpoint record occupying the slot
// watching addr, or nil if none does. Callers that only know an address
// (rather than holding the original record pointer, as a host framework
// normally would) use this to get something RemoveBreakpoint accepts.
func (m *Manager) BreakpointAt(addr uint32) *hostif.Breakpoint {
	if slot := m.FindSlotAt(addr); slot >= 0 {
		return m.bpSlots[slot]
	}
	return nil
}

// FindSlotAt returns the index of the breakpoint slot watching addr, or
// -1 if none does. Used by the resume path's breakpoint-stepover logic
// when the caller asks resume to step past a breakpoint sitting on the
// resume address.
func (m *Manager) FindSlotAt(addr uint32) int {
	for i, s := range m.bpSlots {
		if s != nil && s.Address == addr {
			return i
		}
	}
	return -1
}

// SetSlotEnabled toggles an occupied slot's IBREAKENABLE bit without
// freeing it or touching IBREAKA, so it can be stepped over and then
// re-armed.
func (m *Manager) SetSlotEnabled(ctx context.Context, slot int, enabled bool) error {
	release := a0Scratch(m.file)
	defer release()
	enableMask, err := m.readIBreakEnable(ctx)
	if err != nil {
		return err
	}
	if enabled {
		enableMask |= 1 << uint(slot)
	} else {
		enableMask &^= 1 << uint(slot)
	}
	if err := m.inj.WriteSR(ctx, regs.SRIBreakEnable, enableMask); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to write IBREAKENABLE")
	}
	if err := m.inj.Flush(ctx); err != nil {
		m.file.Cache().InvalidateAll()
		return errors.Trace(err)
	}
	return nil
}

// InvalidateMirror clears every breakpoint and watchpoint slot without
// touching the chip, for use after an observed core reset: the chip's
// own IBREAKENABLE/DBREAKC reset to 0 along with everything else, so
// the mirror must be reset to match.
func (m *Manager) InvalidateMirror() {
	for i := range m.bpSlots {
		m.bpSlots[i] = nil
	}
	m.bpFreeCount = NumBreakpoints
	for i := range m.wpSlots {
		m.wpSlots[i] = nil
	}
	m.wpFreeCount = NumWatchpoints
}
