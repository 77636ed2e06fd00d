package block

import (
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

const (
	slotOccupied   = 1
	slotUnoccupied = 0
)

// RecordSize returns the on-disk size of one tuple with numAttrs attributes.
func RecordSize(numAttrs int) int {
	return numAttrs * schema.AttrSize
}

// MaxSlots computes the largest numSlots such that
// HeaderSize + numSlots + numSlots*numAttrs*AttrSize fits within blockSize.
func MaxSlots(blockSize, numAttrs int) int {
	denom := 1 + RecordSize(numAttrs)
	avail := blockSize - HeaderSize
	if avail <= 0 {
		return 0
	}
	return avail / denom
}

// RecordBlock is a typed view over a record block: header, slot map, and
// fixed-width tuple slots.
type RecordBlock struct {
	*Buffer
}

// OpenRecord opens blockNum as a record block.
func OpenRecord(pool *buffer.Pool, blockNum int) (*RecordBlock, error) {
	b, err := Open(pool, blockNum)
	if err != nil {
		return nil, err
	}
	return &RecordBlock{Buffer: b}, nil
}

func (r *RecordBlock) slotMapOffset() int { return HeaderSize }

func (r *RecordBlock) slotsOffset(numSlots int) int { return HeaderSize + numSlots }

// SlotOffset returns the byte offset of slot i's record given the block's
// current numSlots/numAttrs.
func (r *RecordBlock) SlotOffset(i, numSlots, numAttrs int) int {
	return r.slotsOffset(numSlots) + i*RecordSize(numAttrs)
}

// GetSlotMap returns a copy of the numSlots-byte occupancy map.
func (r *RecordBlock) GetSlotMap(numSlots int) []byte {
	buf := r.data()
	out := make([]byte, numSlots)
	copy(out, buf[r.slotMapOffset():r.slotMapOffset()+numSlots])
	return out
}

// SetSlotMap writes the occupancy map and marks the block dirty.
func (r *RecordBlock) SetSlotMap(m []byte) error {
	buf := r.data()
	copy(buf[r.slotMapOffset():r.slotMapOffset()+len(m)], m)
	return r.pool.MarkDirty(r.blockNum)
}

// SlotOccupied reports whether slot i is occupied.
func (r *RecordBlock) SlotOccupied(i, numSlots int) bool {
	buf := r.data()
	return buf[r.slotMapOffset()+i] == slotOccupied
}

// SetSlotOccupied sets slot i's slot-map byte to occupied or unoccupied and
// marks the block dirty.
func (r *RecordBlock) SetSlotOccupied(i, numSlots int, occupied bool) error {
	buf := r.data()
	if occupied {
		buf[r.slotMapOffset()+i] = slotOccupied
	} else {
		buf[r.slotMapOffset()+i] = slotUnoccupied
	}
	return r.pool.MarkDirty(r.blockNum)
}

// GetRecord decodes slot i's tuple, given each attribute's declared type in
// column order.
func (r *RecordBlock) GetRecord(slot, numSlots int, types []schema.AttrType) []schema.Attr {
	buf := r.data()
	off := r.SlotOffset(slot, numSlots, len(types))
	out := make([]schema.Attr, len(types))
	for i, typ := range types {
		cell := buf[off+i*schema.AttrSize : off+(i+1)*schema.AttrSize]
		out[i] = schema.Decode(cell, typ)
	}
	return out
}

// SetRecord encodes rec into slot i according to types and marks the block
// dirty.
func (r *RecordBlock) SetRecord(slot, numSlots int, types []schema.AttrType, rec []schema.Attr) error {
	if len(rec) != len(types) {
		return errs.ErrNAttrMismatch
	}
	buf := r.data()
	off := r.SlotOffset(slot, numSlots, len(types))
	for i, typ := range types {
		cell := schema.Encode(rec[i], typ)
		copy(buf[off+i*schema.AttrSize:off+(i+1)*schema.AttrSize], cell)
	}
	return r.pool.MarkDirty(r.blockNum)
}
