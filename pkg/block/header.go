// Package block implements the L2 typed block views: thin handles over a
// buffer-pool frame that know how to read and write a block header, slot
// map, records, and B+ tree index entries.
package block

import (
	"encoding/binary"

	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

// Header is the common prefix of every non-map block.
type Header struct {
	BlockType  schema.BlockType
	PBlock     int32
	LBlock     int32
	RBlock     int32
	NumEntries int32
	NumAttrs   int32
	NumSlots   int32
}

// headerFieldCount is the number of int32 fields in Header.
const headerFieldCount = 7

// HeaderSize is the on-disk size of Header in bytes.
const HeaderSize = headerFieldCount * 4

// Buffer is a handle to one acquired block, wrapping a buffer-pool frame.
type Buffer struct {
	pool     *buffer.Pool
	blockNum int
}

// Open acquires blockNum and returns a handle to it.
func Open(pool *buffer.Pool, blockNum int) (*Buffer, error) {
	if _, err := pool.Acquire(blockNum); err != nil {
		return nil, err
	}
	return &Buffer{pool: pool, blockNum: blockNum}, nil
}

// BlockNum returns the underlying block number.
func (b *Buffer) BlockNum() int { return b.blockNum }

func (b *Buffer) data() []byte {
	idx, err := b.pool.Locate(b.blockNum)
	if err != nil {
		// The buffer was acquired through Open/NewRecordBlock/etc, so it
		// cannot have been evicted without this handle re-acquiring it; a
		// miss here means a caller held a Buffer across an unrelated
		// Acquire storm larger than the pool's capacity.
		panic(errs.ErrBlockNotInBuffer)
	}
	return b.pool.FrameData(idx)
}

// Header decodes the block's header.
func (b *Buffer) Header() Header {
	buf := b.data()[:HeaderSize]
	fields := [headerFieldCount]int32{}
	for i := range fields {
		fields[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return Header{
		BlockType:  schema.BlockType(fields[0]),
		PBlock:     fields[1],
		LBlock:     fields[2],
		RBlock:     fields[3],
		NumEntries: fields[4],
		NumAttrs:   fields[5],
		NumSlots:   fields[6],
	}
}

// SetHeader encodes h into the block and marks the block dirty.
func (b *Buffer) SetHeader(h Header) error {
	buf := b.data()[:HeaderSize]
	fields := [headerFieldCount]int32{
		int32(h.BlockType), h.PBlock, h.LBlock, h.RBlock, h.NumEntries, h.NumAttrs, h.NumSlots,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return b.pool.MarkDirty(b.blockNum)
}

// Release marks the block's allocation-map entry FREE and frees its
// resident frame, so it returns to the pool for preferential reuse instead
// of sitting around until the aging clock evicts it.
func (b *Buffer) Release() error {
	if err := b.pool.SetBlockType(b.blockNum, schema.Free); err != nil {
		return err
	}
	return b.pool.Evict(b.blockNum)
}
