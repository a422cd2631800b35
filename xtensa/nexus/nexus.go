// Package nexus implements the Nexus transaction layer (layer 2) and the
// power/status TAP registers (layer 3): everything needed to read and
// write one of the 128 Nexus registers, and to bring the Xtensa debug
// module out of reset and keep it accessible.
package nexus

import (
	"context"

	"github.com/cesanta/errors"
	"github.com/golang/glog"

	"github.com/cesanta/esp108jtag/xtensa/tap"
)

// Reg is a Nexus register address (NAR), 0-127.
type Reg uint8

// Client performs Nexus register transactions over a tap.Transport.
// All methods enqueue shifts only; nothing is defined until FlushQueue
// is called by whoever owns the batch.
type Client struct {
	t tap.Transport
}

func NewClient(t tap.Transport) *Client {
	return &Client{t: t}
}

// Write enqueues a Nexus register write: IR=NARSEL, DR1=8 bits
// (reg<<1)|1, DR2=32 bits little-endian value.
func (c *Client) Write(ctx context.Context, reg Reg, value uint32) error {
	glog.V(4).Infof("nexus write reg=0x%02x value=0x%08x", uint8(reg), value)
	if err := tap.EnqueueIRConst(ctx, c.t, tap.InsNARSEL); err != nil {
		return errors.Trace(err)
	}
	addr := []byte{(byte(reg) << 1) | 1}
	if err := tap.EnqueueDRConst(ctx, c.t, tap.NARSELAddrLen, addr, nil); err != nil {
		return errors.Trace(err)
	}
	data := []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	if err := tap.EnqueueDRConst(ctx, c.t, tap.NARSELDataLen, data, nil); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Result is a pending Nexus register read: the capture buffer is shared
// with the enqueued DR shift and is only valid after FlushQueue succeeds.
type Result struct {
	buf [4]byte
}

// Value decodes the captured little-endian 32-bit value. Calling this
// before the owning batch has been flushed returns garbage; callers must
// flush first.
func (r *Result) Value() uint32 {
	return uint32(r.buf[0]) | uint32(r.buf[1])<<8 | uint32(r.buf[2])<<16 | uint32(r.buf[3])<<24
}

// ReadInto enqueues a Nexus register read whose value becomes available
// in the returned Result once the batch is flushed.
func (c *Client) ReadInto(ctx context.Context, reg Reg) (*Result, error) {
	if err := tap.EnqueueIRConst(ctx, c.t, tap.InsNARSEL); err != nil {
		return nil, errors.Trace(err)
	}
	addr := []byte{(byte(reg) << 1) | 0}
	if err := tap.EnqueueDRConst(ctx, c.t, tap.NARSELAddrLen, addr, nil); err != nil {
		return nil, errors.Trace(err)
	}
	res := &Result{}
	dummy := []byte{0, 0, 0, 0}
	if err := c.t.EnqueueDRShift(ctx, tap.NARSELDataLen, dummy, res.buf[:], tap.Idle); err != nil {
		return nil, errors.Annotatef(err, "failed to enqueue Nexus read of reg 0x%02x", uint8(reg))
	}
	return res, nil
}

// Flush flushes the underlying transport's queue.
func (c *Client) Flush(ctx context.Context) error {
	return errors.Trace(c.t.FlushQueue(ctx))
}
