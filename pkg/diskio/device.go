// Package diskio is the external block-device collaborator the storage core
// is built against: something that can read and write one fixed-size block
// at a time, addressed by a non-negative integer index. The core never opens
// files or does its own I/O scheduling; it only calls through this
// interface, so tests can swap in an in-memory device.
package diskio

import (
	"os"

	"github.com/pkg/errors"
)

// BlockDevice reads and writes fixed-size blocks by index.
type BlockDevice interface {
	ReadBlock(blockNum int) ([]byte, error)
	WriteBlock(blockNum int, buf []byte) error
	BlockCount() int
	BlockSize() int
}

// MemDevice is an in-memory BlockDevice, used by tests. It is the equivalent of the teacher's vio.CustomFile fakes
// that stand in for real files during unit tests.
type MemDevice struct {
	blockSize int
	data      [][]byte
}

// NewMemDevice allocates a zeroed in-memory device of blockCount blocks.
func NewMemDevice(blockCount, blockSize int) *MemDevice {
	d := &MemDevice{blockSize: blockSize, data: make([][]byte, blockCount)}
	for i := range d.data {
		d.data[i] = make([]byte, blockSize)
	}
	return d
}

func (d *MemDevice) ReadBlock(blockNum int) ([]byte, error) {
	if blockNum < 0 || blockNum >= len(d.data) {
		return nil, errors.Errorf("diskio: block %d out of range", blockNum)
	}
	out := make([]byte, d.blockSize)
	copy(out, d.data[blockNum])
	return out, nil
}

func (d *MemDevice) WriteBlock(blockNum int, buf []byte) error {
	if blockNum < 0 || blockNum >= len(d.data) {
		return errors.Errorf("diskio: block %d out of range", blockNum)
	}
	if len(buf) != d.blockSize {
		return errors.Errorf("diskio: write of %d bytes does not match block size %d", len(buf), d.blockSize)
	}
	copy(d.data[blockNum], buf)
	return nil
}

func (d *MemDevice) BlockCount() int { return len(d.data) }
func (d *MemDevice) BlockSize() int  { return d.blockSize }

// FileDevice is a BlockDevice backed by a regular file, preallocated to
// blockCount*blockSize bytes the way pkg/vdisk/pkg/vimg preallocate virtual
// disk images before writing into them.
type FileDevice struct {
	f         *os.File
	blockSize int
	blocks    int
}

// OpenFileDevice opens (creating if necessary) a file-backed block device
// with the given geometry, growing the file to the required size.
func OpenFileDevice(path string, blockCount, blockSize int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "diskio: opening device file")
	}
	size := int64(blockCount) * int64(blockSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "diskio: sizing device file")
	}
	return &FileDevice{f: f, blockSize: blockSize, blocks: blockCount}, nil
}

func (d *FileDevice) ReadBlock(blockNum int) ([]byte, error) {
	if blockNum < 0 || blockNum >= d.blocks {
		return nil, errors.Errorf("diskio: block %d out of range", blockNum)
	}
	buf := make([]byte, d.blockSize)
	_, err := d.f.ReadAt(buf, int64(blockNum)*int64(d.blockSize))
	if err != nil {
		return nil, errors.Wrap(err, "diskio: reading block")
	}
	return buf, nil
}

func (d *FileDevice) WriteBlock(blockNum int, buf []byte) error {
	if blockNum < 0 || blockNum >= d.blocks {
		return errors.Errorf("diskio: block %d out of range", blockNum)
	}
	if len(buf) != d.blockSize {
		return errors.Errorf("diskio: write of %d bytes does not match block size %d", len(buf), d.blockSize)
	}
	_, err := d.f.WriteAt(buf, int64(blockNum)*int64(d.blockSize))
	if err != nil {
		return errors.Wrap(err, "diskio: writing block")
	}
	return nil
}

func (d *FileDevice) BlockCount() int { return d.blocks }
func (d *FileDevice) BlockSize() int  { return d.blockSize }

// Close flushes and closes the underlying file.
func (d *FileDevice) Close() error {
	if err := d.f.Sync(); err != nil {
		return errors.Wrap(err, "diskio: syncing device file")
	}
	return d.f.Close()
}
