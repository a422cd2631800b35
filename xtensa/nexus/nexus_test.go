package nexus

import (
	"context"
	"testing"

	"github.com/cesanta/esp108jtag/xtensa/tap"
	"github.com/cesanta/esp108jtag/xtensa/tap/faketap"
)

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWriteEncodesNARSEL(t *testing.T) {
	ft := faketap.New(5)
	c := NewClient(ft)
	ctx := context.Background()
	if err := c.Write(ctx, Reg(0x44), 0x12345678); err != nil {
		t.Fatal(err)
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if len(ft.History) != 3 {
		t.Fatalf("expected 3 shifts (IR, addr DR, data DR), got %d", len(ft.History))
	}
	if ft.History[0].IsDR || ft.History[0].Out[0] != tap.InsNARSEL {
		t.Errorf("shift 0 should be IR=NARSEL, got %+v", ft.History[0])
	}
	addrShift := ft.History[1]
	if !addrShift.IsDR || addrShift.Len != tap.NARSELAddrLen || addrShift.Out[0] != (0x44<<1)|1 {
		t.Errorf("unexpected address shift: %+v", addrShift)
	}
	dataShift := ft.History[2]
	if want := []byte{0x78, 0x56, 0x34, 0x12}; !bytesEqual(dataShift.Out, want) {
		t.Errorf("unexpected data shift %v, want %v", dataShift.Out, want)
	}
}

func TestReadIntoDecodesLittleEndianAfterFlush(t *testing.T) {
	ft := faketap.New(5)
	c := NewClient(ft)
	ctx := context.Background()
	ft.PushU32Response(0xdeadbeef)
	res, err := c.ReadInto(ctx, Reg(0x45))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if res.Value() != 0xdeadbeef {
		t.Errorf("got 0x%08x, want 0xdeadbeef", res.Value())
	}
	addrShift := ft.History[1]
	if addrShift.Out[0] != (0x45 << 1) {
		t.Errorf("read address shift should have R/W bit clear, got 0x%02x", addrShift.Out[0])
	}
}
