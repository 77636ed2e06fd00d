package block

import (
	"testing"

	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/diskio"
	"github.com/vorteil/blockdb/pkg/schema"
)

func newTestPool(t *testing.T) *buffer.Pool {
	t.Helper()
	geom := schema.Geometry{BlockSize: 256, DiskBlocks: 32, BufferCapacity: 8}
	dev := diskio.NewMemDevice(geom.DiskBlocks, geom.BlockSize)
	p, err := buffer.NewPool(dev, geom, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestHeaderRoundTrip(t *testing.T) {
	p := newTestPool(t)
	b, err := Open(p, 10)
	if err != nil {
		t.Fatal(err)
	}
	h := Header{BlockType: schema.Rec, PBlock: -1, LBlock: 3, RBlock: -1, NumEntries: 2, NumAttrs: 4, NumSlots: 5}
	if err := b.SetHeader(h); err != nil {
		t.Fatal(err)
	}
	got := b.Header()
	if got != h {
		t.Errorf("header round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestMaxSlotsFitsInBlock(t *testing.T) {
	blockSize := 256
	numAttrs := 3
	slots := MaxSlots(blockSize, numAttrs)
	used := HeaderSize + slots + slots*RecordSize(numAttrs)
	if used > blockSize {
		t.Errorf("MaxSlots overflowed block: used %d of %d", used, blockSize)
	}
	usedOneMore := HeaderSize + (slots + 1) + (slots+1)*RecordSize(numAttrs)
	if usedOneMore <= blockSize {
		t.Errorf("MaxSlots is not tight: one more slot still fits (%d <= %d)", usedOneMore, blockSize)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	p := newTestPool(t)
	types := []schema.AttrType{schema.Number, schema.String}
	numSlots := MaxSlots(p.Geometry().BlockSize, len(types))

	rb, err := NewRecordBlock(p, len(types))
	if err != nil {
		t.Fatal(err)
	}
	rec := []schema.Attr{schema.NumAttr(42), schema.StrAttr("hello")}
	if err := rb.SetRecord(0, numSlots, types, rec); err != nil {
		t.Fatal(err)
	}
	if err := rb.SetSlotOccupied(0, numSlots, true); err != nil {
		t.Fatal(err)
	}

	if !rb.SlotOccupied(0, numSlots) {
		t.Errorf("expected slot 0 to be occupied")
	}
	got := rb.GetRecord(0, numSlots, types)
	if got[0].Num != 42 || got[1].Str != "hello" {
		t.Errorf("record round trip mismatch: got %+v", got)
	}
}

func TestLeafEntryRoundTrip(t *testing.T) {
	p := newTestPool(t)
	lb, err := NewLeafBlock(p)
	if err != nil {
		t.Fatal(err)
	}
	e := LeafEntry{Val: schema.NumAttr(7), RecBlock: 9, RecSlot: 1}
	if err := lb.SetEntry(0, e, schema.Number); err != nil {
		t.Fatal(err)
	}
	got := lb.GetEntry(0, schema.Number)
	if got != e {
		t.Errorf("leaf entry round trip mismatch: got %+v want %+v", got, e)
	}
}

func TestInternalEntryRoundTrip(t *testing.T) {
	p := newTestPool(t)
	ib, err := NewInternalBlock(p)
	if err != nil {
		t.Fatal(err)
	}
	e := InternalEntry{LChild: 2, Val: schema.StrAttr("mid"), RChild: 3}
	if err := ib.SetEntry(0, e, schema.String); err != nil {
		t.Fatal(err)
	}
	got := ib.GetEntry(0, schema.String)
	if got != e {
		t.Errorf("internal entry round trip mismatch: got %+v want %+v", got, e)
	}
}
