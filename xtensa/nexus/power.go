package nexus

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"github.com/cesanta/esp108jtag/xtensa/tap"
)

// PWRCTL bits (TAP IR opcode 0x08, 8-bit DR).
const (
	PwrctlJtagDebugUse uint8 = 1 << 7
	PwrctlDebugReset   uint8 = 1 << 6
	PwrctlCoreReset    uint8 = 1 << 4
	PwrctlDebugWakeup  uint8 = 1 << 2
	PwrctlMemWakeup    uint8 = 1 << 1
	PwrctlCoreWakeup   uint8 = 1 << 0
)

// PWRSTAT bits (TAP IR opcode 0x09, 8-bit DR, write-1-to-clear).
const (
	PwrstatDebugWasReset  uint8 = 1 << 6
	PwrstatCoreWasReset   uint8 = 1 << 4
	PwrstatCoreStillNeed  uint8 = 1 << 3
	PwrstatDebugDomainOn  uint8 = 1 << 2
	PwrstatMemDomainOn    uint8 = 1 << 1
	PwrstatCoreDomainOn   uint8 = 1 << 0
	pwrstatClearMask            = PwrstatDebugWasReset | PwrstatCoreWasReset
)

// PowerClient manipulates the PWRCTL/PWRSTAT TAP registers directly
// (they are not Nexus registers; NARSEL does not apply to them).
type PowerClient struct {
	t tap.Transport
}

func NewPowerClient(t tap.Transport) *PowerClient {
	return &PowerClient{t: t}
}

// WritePWRCTL enqueues a PWRCTL write. Per the manual, any write to this
// register clears JTAGDEBUGUSE on-chip; callers that need the debug path
// to stay live must re-assert PwrctlJtagDebugUse on every write after the
// initial 0->1 arming transition.
func (p *PowerClient) WritePWRCTL(ctx context.Context, value uint8) error {
	glog.V(4).Infof("PWRCTL = 0x%02x", value)
	if err := tap.EnqueueIRConst(ctx, p.t, tap.InsPWRCTL); err != nil {
		return errors.Trace(err)
	}
	buf := []byte{value}
	if err := tap.EnqueueDRConst(ctx, p.t, tap.PWRCTLLen, buf, nil); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// PWRSTATResult is a pending read-and-clear of PWRSTAT.
type PWRSTATResult struct {
	buf [1]byte
}

func (r *PWRSTATResult) Value() uint8             { return r.buf[0] }
func (r *PWRSTATResult) DebugWasReset() bool       { return r.buf[0]&PwrstatDebugWasReset != 0 }
func (r *PWRSTATResult) CoreWasReset() bool        { return r.buf[0]&PwrstatCoreWasReset != 0 }
func (r *PWRSTATResult) DebugDomainOn() bool       { return r.buf[0]&PwrstatDebugDomainOn != 0 }
func (r *PWRSTATResult) MemDomainOn() bool         { return r.buf[0]&PwrstatMemDomainOn != 0 }
func (r *PWRSTATResult) CoreDomainOn() bool        { return r.buf[0]&PwrstatCoreDomainOn != 0 }
func (r *PWRSTATResult) CoreStillNeeded() bool     { return r.buf[0]&PwrstatCoreStillNeed != 0 }

// ReadClearPWRSTAT enqueues a read-and-clear of PWRSTAT: the outgoing
// byte asserts write-1-to-clear on DEBUGWASRESET|COREWASRESET while
// simultaneously shifting out the register's prior contents.
func (p *PowerClient) ReadClearPWRSTAT(ctx context.Context) (*PWRSTATResult, error) {
	if err := tap.EnqueueIRConst(ctx, p.t, tap.InsPWRSTAT); err != nil {
		return nil, errors.Trace(err)
	}
	res := &PWRSTATResult{}
	out := []byte{pwrstatClearMask}
	if err := p.t.EnqueueDRShift(ctx, tap.PWRSTATLen, out, res.buf[:], tap.Idle); err != nil {
		return nil, errors.Annotatef(err, "failed to enqueue PWRSTAT read-clear")
	}
	return res, nil
}

// Flush flushes the underlying transport's queue.
func (p *PowerClient) Flush(ctx context.Context) error {
	return errors.Trace(p.t.FlushQueue(ctx))
}
