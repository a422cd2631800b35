// Package faketap provides an in-memory tap.Transport for tests and for
// the driver's standalone CLI harness's --dry-run mode. It records every
// enqueued shift and lets the caller script canned DR capture data,
// generalizing a build-tag no-op transport stub into something that can
// actually drive the state machine under test.
package faketap

import (
	"context"
	"time"

	"github.com/cesanta/errors"

	"github.com/cesanta/esp108jtag/xtensa/tap"
)

// Shift records one enqueued IR or DR shift for later inspection by tests.
type Shift struct {
	IsDR bool
	Len  int
	Out  []byte
}

// Transport is a scriptable fake satisfying tap.Transport.
type Transport struct {
	IRWidthVal int
	History    []Shift

	// Responses is consumed in FIFO order: each entry is copied into the
	// "in" buffer of the next DR shift that requests one. Tests should
	// queue exactly as many responses as they expect DR reads.
	Responses [][]byte

	// FlushErr, if set, is returned by the next call to FlushQueue (and
	// then cleared), for exercising the driver's flush-failure path.
	FlushErr error

	Resets  []struct{ TRST, SRST bool }
	Sleeps  []time.Duration
	Flushes int

	pendingIn [][]byte
}

func New(irWidth int) *Transport {
	return &Transport{IRWidthVal: irWidth}
}

func (f *Transport) IRWidth() int { return f.IRWidthVal }

func (f *Transport) EnqueueIRShift(ctx context.Context, lenBits int, out, in []byte, end tap.EndState) error {
	f.History = append(f.History, Shift{IsDR: false, Len: lenBits, Out: append([]byte(nil), out...)})
	if in != nil {
		f.pendingIn = append(f.pendingIn, in)
	}
	return nil
}

func (f *Transport) EnqueueDRShift(ctx context.Context, lenBits int, out, in []byte, end tap.EndState) error {
	f.History = append(f.History, Shift{IsDR: true, Len: lenBits, Out: append([]byte(nil), out...)})
	if in != nil {
		f.pendingIn = append(f.pendingIn, in)
	}
	return nil
}

func (f *Transport) FlushQueue(ctx context.Context) error {
	f.Flushes++
	if f.FlushErr != nil {
		err := f.FlushErr
		f.FlushErr = nil
		return err
	}
	for _, in := range f.pendingIn {
		if len(f.Responses) == 0 {
			return errors.Errorf("faketap: no scripted response for pending capture buffer")
		}
		resp := f.Responses[0]
		f.Responses = f.Responses[1:]
		n := len(resp)
		if n > len(in) {
			n = len(in)
		}
		copy(in, resp[:n])
	}
	f.pendingIn = nil
	return nil
}

func (f *Transport) AddReset(ctx context.Context, trst, srst bool) error {
	f.Resets = append(f.Resets, struct{ TRST, SRST bool }{trst, srst})
	return nil
}

func (f *Transport) AddSleep(ctx context.Context, d time.Duration) error {
	f.Sleeps = append(f.Sleeps, d)
	return nil
}

// PushU32Response queues a little-endian 32-bit value as the next DR
// capture response.
func (f *Transport) PushU32Response(v uint32) {
	f.Responses = append(f.Responses, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// PushU8Response queues an 8-bit value as the next DR capture response.
func (f *Transport) PushU8Response(v uint8) {
	f.Responses = append(f.Responses, []byte{v})
}
