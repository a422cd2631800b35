// Package tap provides the thin wrappers that enqueue IR/DR shifts on the
// host framework's JTAG scan queue. No I/O happens here: shifts
// accumulate in the Transport's own queue until the caller flushes it.
package tap

import (
	"context"
	"time"

	"github.com/cesanta/errors"
)

// IR opcodes used on the ESP108's 5-bit instruction register.
const (
	InsPWRCTL  uint8 = 0x08
	InsPWRSTAT uint8 = 0x09
	InsNARSEL  uint8 = 0x1C
	InsIDCODE  uint8 = 0x1E
	InsBYPASS  uint8 = 0x1F
)

// DR bit widths for the IR opcodes above.
const (
	PWRCTLLen     = 8
	PWRSTATLen    = 8
	NARSELAddrLen = 8
	NARSELDataLen = 32
	IDCODELen     = 32
	BYPASSLen     = 1
)

// EndState is the TAP state a shift should settle in once it completes.
// The driver always requests Idle so scans end in the canonical state.
type EndState int

const Idle EndState = 0

// Transport is the JTAG physical-transport contract the driver consumes.
// It mirrors the host framework's deferred-execution scan queue: shifts
// enqueued here are not actually clocked onto the wire until FlushQueue
// is called, and output buffers passed to EnqueueDRShift/EnqueueIRShift
// are only safe to read after a successful flush.
type Transport interface {
	// EnqueueIRShift appends an Instruction Register shift of the given
	// bit length to the queue. out holds the bits to shift in; in, if
	// non-nil, is filled with the bits shifted out once the queue is
	// flushed successfully.
	EnqueueIRShift(ctx context.Context, lenBits int, out, in []byte, end EndState) error
	// EnqueueDRShift is the Data Register analogue of EnqueueIRShift.
	EnqueueDRShift(ctx context.Context, lenBits int, out, in []byte, end EndState) error
	// FlushQueue drives every enqueued shift across the wire in enqueue
	// order and reports whether the batch as a whole succeeded. A failed
	// flush leaves any "in" buffers passed to prior Enqueue* calls
	// undefined; callers must treat driver state as lost and re-examine.
	FlushQueue(ctx context.Context) error
	// AddReset schedules a hardware reset pulse (TRST and/or SRST,
	// depending on adapter wiring) ahead of the next flush.
	AddReset(ctx context.Context, trst, srst bool) error
	// AddSleep schedules a delay of the given duration ahead of the next
	// flush (or, on transports with no native delay primitive, sleeps
	// immediately — callers must not depend on which).
	AddSleep(ctx context.Context, d time.Duration) error
	// IRWidth reports the TAP's instruction register width in bits
	// (typically 5 for the ESP108's TAP, but transport-provided since
	// it depends on the target board's TAP chain position).
	IRWidth() int
}

// EnqueueIRConst is a convenience for enqueuing a fixed IR opcode that
// the caller does not need the prior IR value back for.
func EnqueueIRConst(ctx context.Context, t Transport, ins uint8) error {
	buf := []byte{ins}
	if err := t.EnqueueIRShift(ctx, t.IRWidth(), buf, nil, Idle); err != nil {
		return errors.Annotatef(err, "failed to enqueue IR shift 0x%02x", ins)
	}
	return nil
}

// EnqueueDRConst enqueues a DR shift of lenBits, writing out and
// (optionally) capturing the previous contents into in.
func EnqueueDRConst(ctx context.Context, t Transport, lenBits int, out, in []byte) error {
	if err := t.EnqueueDRShift(ctx, lenBits, out, in, Idle); err != nil {
		return errors.Annotatef(err, "failed to enqueue %d-bit DR shift", lenBits)
	}
	return nil
}
