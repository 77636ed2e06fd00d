package block

import (
	"encoding/binary"

	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/schema"
)

// MaxKeysLeaf is the maximum number of entries a leaf index block holds.
const MaxKeysLeaf = 63

// MiddleIndexLeaf is the split point for a leaf overflowing to 64 entries:
// entries [0,32) stay left, [32,64) move right.
const MiddleIndexLeaf = 31

// MaxKeysInternal is the maximum number of entries an internal index block
// holds.
const MaxKeysInternal = 100

// MiddleIndexInternal is the split point for an internal block overflowing
// to 101 entries: entry 50 is promoted, [0,50) stay left, [51,101) move
// right.
const MiddleIndexInternal = 50

// LeafEntry is one {attrVal, recBlock, recSlot} entry of a leaf index block.
type LeafEntry struct {
	Val      schema.Attr
	RecBlock int32
	RecSlot  int32
}

const leafEntrySize = schema.AttrSize + 8

// InternalEntry is one {lChild, attrVal, rChild} entry of an internal index
// block.
type InternalEntry struct {
	LChild int32
	Val    schema.Attr
	RChild int32
}

const internalEntrySize = 4 + schema.AttrSize + 4

// LeafBlock is a typed view over a B+ tree leaf index block.
type LeafBlock struct {
	*Buffer
}

// OpenLeaf opens blockNum as a leaf index block.
func OpenLeaf(pool *buffer.Pool, blockNum int) (*LeafBlock, error) {
	b, err := Open(pool, blockNum)
	if err != nil {
		return nil, err
	}
	return &LeafBlock{Buffer: b}, nil
}

func (l *LeafBlock) entryOffset(i int) int { return HeaderSize + i*leafEntrySize }

// GetEntry decodes entry i.
func (l *LeafBlock) GetEntry(i int, typ schema.AttrType) LeafEntry {
	buf := l.data()
	off := l.entryOffset(i)
	val := schema.Decode(buf[off:off+schema.AttrSize], typ)
	recBlock := int32(binary.LittleEndian.Uint32(buf[off+schema.AttrSize:]))
	recSlot := int32(binary.LittleEndian.Uint32(buf[off+schema.AttrSize+4:]))
	return LeafEntry{Val: val, RecBlock: recBlock, RecSlot: recSlot}
}

// SetEntry encodes entry i and marks the block dirty.
func (l *LeafBlock) SetEntry(i int, e LeafEntry, typ schema.AttrType) error {
	buf := l.data()
	off := l.entryOffset(i)
	copy(buf[off:off+schema.AttrSize], schema.Encode(e.Val, typ))
	binary.LittleEndian.PutUint32(buf[off+schema.AttrSize:], uint32(e.RecBlock))
	binary.LittleEndian.PutUint32(buf[off+schema.AttrSize+4:], uint32(e.RecSlot))
	return l.pool.MarkDirty(l.blockNum)
}

// InternalBlock is a typed view over a B+ tree internal index block.
type InternalBlock struct {
	*Buffer
}

// OpenInternal opens blockNum as an internal index block.
func OpenInternal(pool *buffer.Pool, blockNum int) (*InternalBlock, error) {
	b, err := Open(pool, blockNum)
	if err != nil {
		return nil, err
	}
	return &InternalBlock{Buffer: b}, nil
}

func (n *InternalBlock) entryOffset(i int) int { return HeaderSize + i*internalEntrySize }

// GetEntry decodes entry i.
func (n *InternalBlock) GetEntry(i int, typ schema.AttrType) InternalEntry {
	buf := n.data()
	off := n.entryOffset(i)
	lChild := int32(binary.LittleEndian.Uint32(buf[off:]))
	val := schema.Decode(buf[off+4:off+4+schema.AttrSize], typ)
	rChild := int32(binary.LittleEndian.Uint32(buf[off+4+schema.AttrSize:]))
	return InternalEntry{LChild: lChild, Val: val, RChild: rChild}
}

// SetEntry encodes entry i and marks the block dirty.
func (n *InternalBlock) SetEntry(i int, e InternalEntry, typ schema.AttrType) error {
	buf := n.data()
	off := n.entryOffset(i)
	binary.LittleEndian.PutUint32(buf[off:], uint32(e.LChild))
	copy(buf[off+4:off+4+schema.AttrSize], schema.Encode(e.Val, typ))
	binary.LittleEndian.PutUint32(buf[off+4+schema.AttrSize:], uint32(e.RChild))
	return n.pool.MarkDirty(n.blockNum)
}
