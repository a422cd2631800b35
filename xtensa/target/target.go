// Package target is the top-level driver (layer 9): it owns one
// target's TAP/Nexus/OCD/register/memory/breakpoint stack and exposes
// the examine/poll/halt/resume/step/reset operations a host on-chip-
// debugger framework drives, mapping Debug Status Register bits onto
// the abstract states in xtensa/hostif.
package target

import (
	"context"
	"time"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"github.com/cesanta/esp108jtag/xtensa/bp"
	"github.com/cesanta/esp108jtag/xtensa/hostif"
	"github.com/cesanta/esp108jtag/xtensa/isa"
	"github.com/cesanta/esp108jtag/xtensa/mem"
	"github.com/cesanta/esp108jtag/xtensa/nexus"
	"github.com/cesanta/esp108jtag/xtensa/ocd"
	"github.com/cesanta/esp108jtag/xtensa/regs"
	"github.com/cesanta/esp108jtag/xtensa/tap"
)

// wakeupBits is the PWRCTL mask driven on every poll to keep the debug,
// memory and core power domains awake.
const wakeupBits = nexus.PwrctlDebugWakeup | nexus.PwrctlMemWakeup | nexus.PwrctlCoreWakeup

const (
	resetPulse         = 5 * time.Millisecond
	resetSettle        = 100 * time.Millisecond
	defaultStepTimeout = 500 * time.Millisecond
	defaultStepPoll    = 50 * time.Millisecond
)

// Handle is a per-target record: the TAP device and every layer built
// on top of it, plus the host-visible state. Created once at
// target-registration time.
type Handle struct {
	tp  tap.Transport
	nx  *nexus.Client
	pw  *nexus.PowerClient
	ocd *ocd.Client
	inj *isa.Injector

	Regs *regs.File
	Mem  *mem.Engine
	Bps  *bp.Manager

	notifier hostif.Notifier

	// StepTimeout bounds how long Step waits for an ICOUNT trap.
	// StepPollInterval is how often it polls DSR while waiting. TRSTWired
	// reports whether the adapter's TRST line reaches the target; when
	// false, AssertReset never drives TRST regardless of what's asked.
	// All three default to the ESP32-DevKitC values below and are
	// normally set from xtensa/config right after NewHandle.
	StepTimeout      time.Duration
	StepPollInterval time.Duration
	TRSTWired        bool

	state      hostif.State
	haltReason hostif.HaltReason
	examined   bool
}

// NewHandle builds the full layer stack over t. notifier may be nil, in
// which case state-change events are dropped (useful in tests).
func NewHandle(t tap.Transport, notifier hostif.Notifier) *Handle {
	nx := nexus.NewClient(t)
	ocdc := ocd.NewClient(nx)
	inj := isa.NewInjector(ocdc)
	file := regs.NewFile(inj)
	return &Handle{
		tp:               t,
		nx:               nx,
		pw:               nexus.NewPowerClient(t),
		ocd:              ocdc,
		inj:              inj,
		Regs:             file,
		Mem:              mem.NewEngine(inj, ocdc, file),
		Bps:              bp.NewManager(inj, file),
		notifier:         notifier,
		StepTimeout:      defaultStepTimeout,
		StepPollInterval: defaultStepPoll,
		state:            hostif.StateUnknown,
	}
}

func (h *Handle) State() hostif.State          { return h.state }
func (h *Handle) HaltReason() hostif.HaltReason { return h.haltReason }

func (h *Handle) notify(e hostif.Event) {
	glog.V(2).Infof("target event: %s", e)
	if h.notifier != nil {
		h.notifier.Notify(e)
	}
}

// invalidateOnFailure marks driver state as lost after a failed flush
// after a failed flush: the register cache is invalidated and the
// state machine drops to UNKNOWN, so the next examine is the recovery path.
func (h *Handle) invalidateOnFailure() {
	h.Regs.InvalidateAll()
	h.state = hostif.StateUnknown
}

// Examine is the one-shot initial poll that establishes RUNNING or
// HALTED from UNKNOWN.
func (h *Handle) Examine(ctx context.Context) error {
	if err := h.Poll(ctx); err != nil {
		return errors.Trace(err)
	}
	h.examined = true
	return nil
}

func (h *Handle) Examined() bool { return h.examined }

// Poll is called periodically by the host framework to refresh target
// state. It drives the power/wakeup handshake on every
// call, since JTAGDEBUGUSE is cleared by any PWRCTL write and must be
// re-armed every batch.
func (h *Handle) Poll(ctx context.Context) error {
	pwrstat, err := h.pw.ReadClearPWRSTAT(ctx)
	if err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue PWRSTAT read")
	}
	if err := h.pw.WritePWRCTL(ctx, wakeupBits); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue PWRCTL wakeup write")
	}
	if err := h.pw.WritePWRCTL(ctx, wakeupBits|nexus.PwrctlJtagDebugUse); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue PWRCTL JTAGDEBUGUSE arm")
	}
	if err := h.ocd.DCRSet(ctx, ocd.DCREnableOCD); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue DCRSET ENABLEOCD")
	}
	ocdID, err := h.ocd.ReadOCDID(ctx)
	if err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue OCDID read")
	}
	dsr, err := h.ocd.ReadDSR(ctx)
	if err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue DSR read")
	}
	if err := h.inj.Flush(ctx); err != nil {
		h.invalidateOnFailure()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush poll batch")
	}

	if pwrstat.DebugWasReset() || pwrstat.CoreWasReset() {
		glog.Warningf("observed target reset (pwrstat=0x%02x)", pwrstat.Value())
		h.Regs.InvalidateAll()
		h.Bps.InvalidateMirror()
		h.state = hostif.StateReset
	}

	if ocdID.Value() == 0 {
		glog.V(3).Infof("OCDID read as zero; debug module may not be accessible yet")
	}

	dsrVal := dsr.Value()
	glog.V(4).Infof("poll: dsr=0x%08x", dsrVal)
	if dsrVal&ocd.DSRStopped != 0 {
		if h.state != hostif.StateHalted {
			prior := h.state
			h.state = hostif.StateHalted
			h.haltReason = hostif.HaltReasonDebugInterrupt
			if err := h.Regs.RefreshAll(ctx); err != nil {
				h.invalidateOnFailure()
				return hostif.Annotatef(hostif.StatusFail, err, "failed to refresh register cache on halt")
			}
			if prior == hostif.StateDebugRunning {
				h.notify(hostif.EventDebugHalted)
			} else {
				h.notify(hostif.EventHalted)
			}
		}
	} else {
		if h.state != hostif.StateDebugRunning {
			h.state = hostif.StateRunning
		}
	}
	return nil
}

// Halt requests a debug interrupt; the next Poll observes DSR.STOPPED
// and performs the actual state transition.
func (h *Handle) Halt(ctx context.Context) error {
	if err := h.ocd.DCRSet(ctx, ocd.DCRDebugInterrupt); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue DCRSET DEBUGINTERRUPT")
	}
	if err := h.inj.Flush(ctx); err != nil {
		h.invalidateOnFailure()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush halt request")
	}
	return nil
}

// Resume releases the core from halt. If handleBreakpoints is
// set and the resume PC sits on an armed breakpoint, that breakpoint is
// stepped over (disabled for exactly one instruction) so the core does
// not immediately re-trap on its own last stop.
func (h *Handle) Resume(ctx context.Context, current bool, addr uint32, handleBreakpoints, debugExec bool) error {
	if h.state != hostif.StateHalted {
		return hostif.ErrNotHalted
	}
	resumePC := addr
	if current {
		resumePC = h.Regs.Get(regs.IdxPC).Value
	}
	if handleBreakpoints {
		if slot := h.Bps.FindSlotAt(resumePC); slot >= 0 {
			if err := h.Bps.SetSlotEnabled(ctx, slot, false); err != nil {
				return errors.Trace(err)
			}
			if err := h.step(ctx, current, addr); err != nil {
				return errors.Trace(err)
			}
			if err := h.Bps.SetSlotEnabled(ctx, slot, true); err != nil {
				return errors.Trace(err)
			}
			// The core has already moved one instruction past resumePC;
			// the outer resume below continues from wherever it now is.
			current = true
		}
	}
	return h.resume(ctx, current, addr, debugExec)
}

// resume is the unconditional resume primitive used by both Resume and
// the internal single-step sequence.
func (h *Handle) resume(ctx context.Context, current bool, addr uint32, debugExec bool) error {
	if !current {
		h.Regs.SetLocal(regs.IdxPC, addr)
	}
	if err := h.Regs.Restore(ctx); err != nil {
		h.invalidateOnFailure()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to restore register context")
	}
	if err := h.ocd.DCRClr(ctx, ocd.DCRDebugInterrupt); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue DCRCLR DEBUGINTERRUPT")
	}
	to := 0
	if debugExec {
		to = 1
	}
	if err := h.inj.Exec(ctx, isa.RFDO(to)); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to inject RFDO")
	}
	if err := h.inj.Flush(ctx); err != nil {
		h.invalidateOnFailure()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush resume batch")
	}
	h.Regs.InvalidateAll()
	if debugExec {
		h.state = hostif.StateDebugRunning
	} else {
		h.state = hostif.StateRunning
	}
	h.notify(hostif.EventResumed)
	return nil
}

// Step executes exactly one instruction and leaves the target halted
// again.
func (h *Handle) Step(ctx context.Context, current bool, addr uint32) error {
	if h.state != hostif.StateHalted {
		return hostif.ErrNotHalted
	}
	return h.step(ctx, current, addr)
}

func (h *Handle) step(ctx context.Context, current bool, addr uint32) error {
	if err := h.inj.WriteSR(ctx, regs.SRICountLevel, 1); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to set ICOUNTLEVEL")
	}
	icount := int32(-2)
	if err := h.inj.WriteSR(ctx, regs.SRICount, uint32(icount)); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to set ICOUNT")
	}
	if err := h.inj.Flush(ctx); err != nil {
		h.invalidateOnFailure()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush step setup")
	}
	if err := h.resume(ctx, current, addr, false); err != nil {
		return errors.Trace(err)
	}

	deadline := time.Now().Add(h.StepTimeout)
	for {
		if err := h.Poll(ctx); err != nil {
			return errors.Trace(err)
		}
		if h.state == hostif.StateHalted {
			break
		}
		if time.Now().After(deadline) {
			return hostif.Errorf(hostif.StatusTimeout, "step did not complete within %s", h.StepTimeout)
		}
		select {
		case <-ctx.Done():
			return hostif.Annotatef(hostif.StatusFail, ctx.Err(), "step cancelled")
		case <-time.After(h.StepPollInterval):
		}
	}
	h.haltReason = hostif.HaltReasonSingleStep

	if err := h.inj.WriteSR(ctx, regs.SRICountLevel, 0); err != nil {
		glog.Warningf("failed to clear ICOUNTLEVEL after step: %s", err)
	}
	if err := h.inj.Flush(ctx); err != nil {
		glog.Warningf("failed to flush ICOUNTLEVEL clear after step: %s", err)
	}
	return nil
}

// AssertReset drives SRST (and TRST, if trst is set and the adapter's
// TRST line is actually wired to the target) for a short pulse.
func (h *Handle) AssertReset(ctx context.Context, trst bool) error {
	if trst && !h.TRSTWired {
		glog.Warningf("TRST requested but not wired per configuration; asserting SRST only")
		trst = false
	}
	if err := h.tp.AddReset(ctx, trst, true); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to assert reset")
	}
	if err := h.tp.AddSleep(ctx, resetPulse); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue reset-pulse sleep")
	}
	if err := h.tp.FlushQueue(ctx); err != nil {
		h.invalidateOnFailure()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush reset assert")
	}
	h.state = hostif.StateReset
	h.Regs.InvalidateAll()
	h.Bps.InvalidateMirror()
	return nil
}

// DeassertReset releases SRST/TRST, lets the power domains settle and
// re-polls. If haltAfter is set it then issues a Halt, but the core runs
// briefly (non-atomically) before it actually stops.
func (h *Handle) DeassertReset(ctx context.Context, haltAfter bool) error {
	if err := h.tp.AddReset(ctx, false, false); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to deassert reset")
	}
	if err := h.tp.AddSleep(ctx, resetSettle); err != nil {
		return hostif.Annotatef(hostif.StatusFail, err, "failed to queue reset-settle sleep")
	}
	if err := h.tp.FlushQueue(ctx); err != nil {
		h.invalidateOnFailure()
		return hostif.Annotatef(hostif.StatusFail, err, "failed to flush reset deassert")
	}
	if err := h.Poll(ctx); err != nil {
		return errors.Trace(err)
	}
	if haltAfter {
		glog.Warningf("halt-on-reset is not atomic on this core; target may execute briefly before halting")
		if err := h.Halt(ctx); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadRegister returns the cached value of register i, refreshing
// nothing itself: the cache is only ever populated by RefreshAll on
// halt.
func (h *Handle) ReadRegister(i int) (uint32, error) {
	if h.state != hostif.StateHalted {
		return 0, hostif.ErrNotHalted
	}
	return h.Regs.Get(i).Value, nil
}

// WriteRegister stages a local write to register i, to be flushed by
// the next Resume's context restore.
func (h *Handle) WriteRegister(i int, v uint32) error {
	if h.state != hostif.StateHalted {
		return hostif.ErrNotHalted
	}
	h.Regs.SetLocal(i, v)
	return nil
}

// GDBRegList returns the fixed 85-entry register vector in wire order,
// the layout a GDB remote-serial stub expects for a register-read reply.
func (h *Handle) GDBRegList() []regs.Descriptor {
	list := make([]regs.Descriptor, regs.NumRegs)
	copy(list, regs.Table[:])
	return list
}
