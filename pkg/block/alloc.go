package block

import (
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/schema"
)

// NewBlock allocates the first FREE block, stamps it with typ in the
// allocation map, writes an initialized header (numEntries=0, all link
// fields -1, the given numAttrs/numSlots) and returns a handle to it.
// Returns ErrDiskFull if no block is free.
func NewBlock(pool *buffer.Pool, typ schema.BlockType, numAttrs, numSlots int) (*Buffer, error) {
	blockNum, err := pool.FirstFree()
	if err != nil {
		return nil, err
	}
	if err := pool.SetBlockType(blockNum, typ); err != nil {
		return nil, err
	}
	b, err := Open(pool, blockNum)
	if err != nil {
		return nil, err
	}
	h := Header{
		BlockType:  typ,
		PBlock:     -1,
		LBlock:     -1,
		RBlock:     -1,
		NumEntries: 0,
		NumAttrs:   int32(numAttrs),
		NumSlots:   int32(numSlots),
	}
	if err := b.SetHeader(h); err != nil {
		return nil, err
	}
	return b, nil
}

// NewRecordBlock allocates a fresh record block sized for numAttrs
// attributes, with every slot initialized UNOCCUPIED.
func NewRecordBlock(pool *buffer.Pool, numAttrs int) (*RecordBlock, error) {
	numSlots := MaxSlots(pool.Geometry().BlockSize, numAttrs)
	b, err := NewBlock(pool, schema.Rec, numAttrs, numSlots)
	if err != nil {
		return nil, err
	}
	rb := &RecordBlock{Buffer: b}
	if err := rb.SetSlotMap(make([]byte, numSlots)); err != nil {
		return nil, err
	}
	return rb, nil
}

// NewLeafBlock allocates a fresh, empty leaf index block.
func NewLeafBlock(pool *buffer.Pool) (*LeafBlock, error) {
	b, err := NewBlock(pool, schema.IndLeaf, 0, 0)
	if err != nil {
		return nil, err
	}
	return &LeafBlock{Buffer: b}, nil
}

// NewInternalBlock allocates a fresh, empty internal index block.
func NewInternalBlock(pool *buffer.Pool) (*InternalBlock, error) {
	b, err := NewBlock(pool, schema.IndInternal, 0, 0)
	if err != nil {
		return nil, err
	}
	return &InternalBlock{Buffer: b}, nil
}
