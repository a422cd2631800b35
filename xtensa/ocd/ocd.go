// Package ocd exposes named reads/writes of the Nexus addresses in the
// OCD block (0x40-0x4F), TRAX (0x00-0x09), performance counters
// (0x20-0x3F), power/status (0x58, 0x69) and CoreSight IDs (0x60-0x7F).
// It is layer 4 of the driver: everything above it talks about named
// registers, never raw Nexus addresses.
package ocd

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"github.com/cesanta/esp108jtag/xtensa/nexus"
)

// Nexus register addresses (NAR), matching esp108.c's NARADR_* constants.
const (
	// TRAX
	RegTraxID       nexus.Reg = 0x00
	RegTraxCtrl     nexus.Reg = 0x01
	RegTraxStat     nexus.Reg = 0x02
	RegTraxData     nexus.Reg = 0x03
	RegTraxAddr     nexus.Reg = 0x04
	RegTriggerPC    nexus.Reg = 0x05
	RegPCMatchCtrl  nexus.Reg = 0x06
	RegDelayCnt     nexus.Reg = 0x07
	RegMemAddrStart nexus.Reg = 0x08
	RegMemAddrEnd   nexus.Reg = 0x09

	// Performance monitor
	RegPMG      nexus.Reg = 0x20
	RegINTPC    nexus.Reg = 0x24
	RegPM0      nexus.Reg = 0x28
	RegPMCTRL0  nexus.Reg = 0x30
	RegPMSTAT0  nexus.Reg = 0x38

	// OCD
	RegOCDID    nexus.Reg = 0x40
	RegDCRClr   nexus.Reg = 0x42
	RegDCRSet   nexus.Reg = 0x43
	RegDSR      nexus.Reg = 0x44
	RegDDR      nexus.Reg = 0x45
	RegDDRExec  nexus.Reg = 0x46
	RegDIR0Exec nexus.Reg = 0x47
	RegDIR0     nexus.Reg = 0x48

	// Misc
	RegPWRCTL  nexus.Reg = 0x58
	RegERIStat nexus.Reg = 0x5A

	// CoreSight
	RegITCtrl     nexus.Reg = 0x60
	RegClaimSet   nexus.Reg = 0x68
	RegClaimClr   nexus.Reg = 0x69
	RegLockAccess nexus.Reg = 0x6c
	RegLockStatus nexus.Reg = 0x6d
	RegAuthStatus nexus.Reg = 0x6e
	RegDevID      nexus.Reg = 0x72
	RegDevType    nexus.Reg = 0x73
	RegPerID0     nexus.Reg = 0x78
	RegCompID0    nexus.Reg = 0x7c
)

// DCR (Debug Control Register) bits.
const (
	DCREnableOCD        uint32 = 1 << 0
	DCRDebugInterrupt    uint32 = 1 << 1
	DCRInterruptAllConds uint32 = 1 << 2
	DCRBreakInEn         uint32 = 1 << 16
	DCRBreakOutEn        uint32 = 1 << 17
	DCRDebugSWActive     uint32 = 1 << 20
	DCRRunStallInEn      uint32 = 1 << 21
	DCRDebugModeOutEn    uint32 = 1 << 22
)

// DSR (Debug Status Register) bits.
const (
	DSRExecDone        uint32 = 1 << 0
	DSRExecException   uint32 = 1 << 1
	DSRExecBusy        uint32 = 1 << 2
	DSRExecOverrun     uint32 = 1 << 3
	DSRStopped         uint32 = 1 << 4
	DSRCoreWroteDDR    uint32 = 1 << 10
	DSRCoreReadDDR     uint32 = 1 << 11
	DSRHostWroteDDR    uint32 = 1 << 14
	DSRHostReadDDR     uint32 = 1 << 15
	DSRDebugPendBreak  uint32 = 1 << 16
	DSRDebugPendHost   uint32 = 1 << 17
	DSRDebugPendTrax   uint32 = 1 << 18
	DSRDebugIntBreak   uint32 = 1 << 20
	DSRDebugIntHost    uint32 = 1 << 21
	DSRDebugIntTrax    uint32 = 1 << 22
	DSRRunStallSample  uint32 = 1 << 24
)

// Client is the layer-4 OCD register client, built directly on a Nexus
// Client (layer 2).
type Client struct {
	nx *nexus.Client
}

func NewClient(nx *nexus.Client) *Client {
	return &Client{nx: nx}
}

func (c *Client) Write(ctx context.Context, reg nexus.Reg, value uint32) error {
	return errors.Trace(c.nx.Write(ctx, reg, value))
}

func (c *Client) ReadInto(ctx context.Context, reg nexus.Reg) (*nexus.Result, error) {
	return c.nx.ReadInto(ctx, reg)
}

// DCRSet sets bits in the Debug Control Register.
func (c *Client) DCRSet(ctx context.Context, bits uint32) error {
	glog.V(3).Infof("DCRSET 0x%08x", bits)
	return errors.Trace(c.Write(ctx, RegDCRSet, bits))
}

// DCRClr clears bits in the Debug Control Register.
func (c *Client) DCRClr(ctx context.Context, bits uint32) error {
	glog.V(3).Infof("DCRCLR 0x%08x", bits)
	return errors.Trace(c.Write(ctx, RegDCRClr, bits))
}

// ReadDSR enqueues a read of the Debug Status Register.
func (c *Client) ReadDSR(ctx context.Context) (*nexus.Result, error) {
	return c.ReadInto(ctx, RegDSR)
}

// ReadOCDID enqueues a read of the OCD identity register.
func (c *Client) ReadOCDID(ctx context.Context) (*nexus.Result, error) {
	return c.ReadInto(ctx, RegOCDID)
}

// WriteDDR writes a 32-bit value into the scratch data-exchange register.
func (c *Client) WriteDDR(ctx context.Context, value uint32) error {
	return errors.Trace(c.Write(ctx, RegDDR, value))
}

// ReadDDR enqueues a read of the scratch data-exchange register.
func (c *Client) ReadDDR(ctx context.Context) (*nexus.Result, error) {
	return c.ReadInto(ctx, RegDDR)
}

// ExecuteInstruction writes a 24-bit Xtensa instruction word into
// DIR0EXEC, which causes the core to execute it immediately.
func (c *Client) ExecuteInstruction(ctx context.Context, insn uint32) error {
	glog.V(4).Infof("DIR0EXEC <- 0x%06x", insn&0xffffff)
	return errors.Trace(c.Write(ctx, RegDIR0Exec, insn))
}

// Flush flushes the underlying Nexus client's transport queue.
func (c *Client) Flush(ctx context.Context) error {
	return c.nx.Flush(ctx)
}

// CheckDSR inspects a flushed DSR read for protocol anomalies.
// EXECEXCEPTION or EXECOVERRUN during a batch is a FAIL that callers
// must treat as cache-invalidating.
func CheckDSR(dsr uint32) error {
	if dsr&DSRExecException != 0 {
		return errors.Errorf("DSR.EXECEXCEPTION set (dsr=0x%08x)", dsr)
	}
	if dsr&DSRExecOverrun != 0 {
		return errors.Errorf("DSR.EXECOVERRUN set (dsr=0x%08x)", dsr)
	}
	return nil
}
