// Package buffer implements the L1 buffer pool: a fixed-capacity, write-back
// cache of disk blocks with an LRU-approximating replacement policy, plus
// the in-memory mirror of the block allocation/type map.
package buffer

import (
	"github.com/vorteil/blockdb/pkg/dblog"
	"github.com/vorteil/blockdb/pkg/diskio"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

// Frame is one resident buffer slot.
type Frame struct {
	Free      bool
	Dirty     bool
	BlockNum  int
	Timestamp int
	Data      []byte
}

// Stats are cumulative counters surfaced for observability; not part of the
// functional contract.
type Stats struct {
	Hits, Misses, Evictions int
}

// Pool is the L1 buffer pool.
type Pool struct {
	dev      diskio.BlockDevice
	log      dblog.Logger
	geom     schema.Geometry
	frames   []Frame
	allocMap []byte
	stats    Stats
}

// NewPool constructs a buffer pool over dev, reading the allocation map from
// the device's first MapBlocks() blocks into memory.
func NewPool(dev diskio.BlockDevice, geom schema.Geometry, log dblog.Logger) (*Pool, error) {
	if log == nil {
		log = dblog.Nil
	}
	p := &Pool{
		dev:      dev,
		log:      log,
		geom:     geom,
		frames:   make([]Frame, geom.BufferCapacity),
		allocMap: make([]byte, geom.DiskBlocks),
	}
	for i := range p.frames {
		p.frames[i].Free = true
		p.frames[i].Timestamp = -1
		p.frames[i].BlockNum = -1
	}
	for i := 0; i < geom.MapBlocks(); i++ {
		buf, err := dev.ReadBlock(i)
		if err != nil {
			return nil, err
		}
		copy(p.allocMap[i*geom.BlockSize:], buf)
	}
	return p, nil
}

// Geometry returns the pool's fixed dimensions.
func (p *Pool) Geometry() schema.Geometry { return p.geom }

// Stats returns a snapshot of the pool's cumulative counters.
func (p *Pool) Stats() Stats { return p.stats }

// Locate returns the frame index holding blockNum, or ErrBlockNotInBuffer.
func (p *Pool) Locate(blockNum int) (int, error) {
	for i := range p.frames {
		if !p.frames[i].Free && p.frames[i].BlockNum == blockNum {
			return i, nil
		}
	}
	return -1, errs.ErrBlockNotInBuffer
}

// Acquire returns the frame index holding blockNum, loading it from disk
// (evicting the least recently touched frame if necessary) if it isn't
// already resident.
func (p *Pool) Acquire(blockNum int) (int, error) {
	if blockNum < 0 || blockNum >= p.geom.DiskBlocks {
		return -1, errs.ErrOutOfBound
	}

	if idx, err := p.Locate(blockNum); err == nil {
		p.stats.Hits++
		return idx, nil
	}
	p.stats.Misses++

	for i := range p.frames {
		if !p.frames[i].Free {
			p.frames[i].Timestamp++
		}
	}

	idx := -1
	for i := range p.frames {
		if p.frames[i].Free {
			idx = i
			break
		}
	}
	if idx == -1 {
		max := 0
		for i := 1; i < len(p.frames); i++ {
			if p.frames[i].Timestamp > p.frames[max].Timestamp {
				max = i
			}
		}
		idx = max
		p.stats.Evictions++
		if p.frames[idx].Dirty {
			if err := p.flush(idx); err != nil {
				return -1, err
			}
		}
	}

	data, err := p.dev.ReadBlock(blockNum)
	if err != nil {
		return -1, err
	}
	p.frames[idx] = Frame{Free: false, Dirty: false, BlockNum: blockNum, Timestamp: 0, Data: data}
	p.log.Debugf("buffer: loaded block %d into frame %d", blockNum, idx)
	return idx, nil
}

// FrameData returns the live byte slice backing frameIdx; callers mutate it
// in place and must call MarkDirty.
func (p *Pool) FrameData(frameIdx int) []byte {
	return p.frames[frameIdx].Data
}

// MarkDirty flags blockNum's resident frame as dirty.
func (p *Pool) MarkDirty(blockNum int) error {
	idx, err := p.Locate(blockNum)
	if err != nil {
		return err
	}
	p.frames[idx].Dirty = true
	return nil
}

// BlockType returns the allocation-map type byte for blockNum without
// touching the buffer pool itself.
func (p *Pool) BlockType(blockNum int) (schema.BlockType, error) {
	if blockNum < 0 || blockNum >= p.geom.DiskBlocks {
		return 0, errs.ErrOutOfBound
	}
	return schema.BlockType(p.allocMap[blockNum]), nil
}

// SetBlockType stamps the allocation-map entry for blockNum.
func (p *Pool) SetBlockType(blockNum int, t schema.BlockType) error {
	if blockNum < 0 || blockNum >= p.geom.DiskBlocks {
		return errs.ErrOutOfBound
	}
	p.allocMap[blockNum] = byte(t)
	return nil
}

// Evict frees blockNum's resident frame, if any, without flushing it: the
// caller is releasing the block, so its contents no longer need to survive.
// A no-op if blockNum isn't currently resident.
func (p *Pool) Evict(blockNum int) error {
	idx, err := p.Locate(blockNum)
	if err == errs.ErrBlockNotInBuffer {
		return nil
	}
	if err != nil {
		return err
	}
	p.frames[idx] = Frame{Free: true, Timestamp: -1, BlockNum: -1}
	return nil
}

// FirstFree returns the first FREE block number, or ErrDiskFull.
func (p *Pool) FirstFree() (int, error) {
	for i, t := range p.allocMap {
		if schema.BlockType(t) == schema.Free {
			return i, nil
		}
	}
	return -1, errs.ErrDiskFull
}

func (p *Pool) flush(idx int) error {
	f := &p.frames[idx]
	if err := p.dev.WriteBlock(f.BlockNum, f.Data); err != nil {
		return err
	}
	f.Dirty = false
	return nil
}

// Shutdown writes the allocation map back to its reserved blocks, then
// flushes every dirty resident frame. It must be called exactly once, with
// no further operations afterward.
func (p *Pool) Shutdown() error {
	for i := 0; i < p.geom.MapBlocks(); i++ {
		start := i * p.geom.BlockSize
		end := start + p.geom.BlockSize
		if end > len(p.allocMap) {
			end = len(p.allocMap)
		}
		buf := make([]byte, p.geom.BlockSize)
		copy(buf, p.allocMap[start:end])
		if err := p.dev.WriteBlock(i, buf); err != nil {
			return err
		}
	}
	for i := range p.frames {
		if !p.frames[i].Free && p.frames[i].Dirty {
			if err := p.flush(i); err != nil {
				return err
			}
		}
	}
	p.log.Debugf("buffer: shutdown complete (%d hits, %d misses, %d evictions)",
		p.stats.Hits, p.stats.Misses, p.stats.Evictions)
	return nil
}
