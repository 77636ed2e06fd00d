// Package engine wires the buffer pool, catalog cache, B+ tree and block
// access layers into a single value with one lifecycle: open a device once,
// run operations against it, close it once. It is the in-process stand-in
// for the single global buffer pool and open-relation table a process would
// otherwise construct at startup and tear down at exit.
package engine

import (
	"github.com/vorteil/blockdb/pkg/access"
	"github.com/vorteil/blockdb/pkg/algebra"
	"github.com/vorteil/blockdb/pkg/bplustree"
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/catalog"
	"github.com/vorteil/blockdb/pkg/dblog"
	"github.com/vorteil/blockdb/pkg/diskio"
	"github.com/vorteil/blockdb/pkg/schema"
)

// Engine is the fully wired storage core: L1 through L6 over one device.
type Engine struct {
	pool    *buffer.Pool
	catalog *catalog.Table
	tree    *bplustree.Tree
	access  *access.Access
	algebra *algebra.Facade
	log     dblog.Logger
}

// Open builds an Engine over dev. A device whose block 0 allocation-map
// entry is still FREE (the zero value an unformatted device reads as) is
// formatted fresh, writing the allocation map and the self-describing
// RelCat/AttrCat blocks at 4 and 5; any other device is assumed already
// formatted and its catalogs are loaded as-is.
func Open(dev diskio.BlockDevice, geom schema.Geometry, log dblog.Logger) (*Engine, error) {
	if log == nil {
		log = dblog.Nil
	}
	pool, err := buffer.NewPool(dev, geom, log)
	if err != nil {
		return nil, err
	}

	fresh, err := pool.BlockType(0)
	if err != nil {
		return nil, err
	}

	var cat *catalog.Table
	if fresh == schema.Free {
		log.Infof("engine: formatting fresh device (%d blocks, %d bytes/block)", geom.DiskBlocks, geom.BlockSize)
		cat, err = catalog.Format(pool, log)
	} else {
		log.Infof("engine: loading existing catalogs")
		cat, err = catalog.Open(pool, log)
	}
	if err != nil {
		return nil, err
	}

	tree := bplustree.New(pool, cat)
	acc := access.New(pool, cat, tree)
	alg := algebra.New(acc, cat, tree, log)

	return &Engine{pool: pool, catalog: cat, tree: tree, access: acc, algebra: alg, log: log}, nil
}

// Access returns the L5 block access engine.
func (e *Engine) Access() *access.Access { return e.access }

// Algebra returns the L6 relational-algebra facade.
func (e *Engine) Algebra() *algebra.Facade { return e.algebra }

// Catalog returns the L3 open-relation cache.
func (e *Engine) Catalog() *catalog.Table { return e.catalog }

// Close flushes every open relation's dirty catalog rows, then the buffer
// pool's dirty frames and allocation map, in that order. It must be called
// exactly once.
func (e *Engine) Close() error {
	if err := e.catalog.Shutdown(); err != nil {
		return err
	}
	if err := e.pool.Shutdown(); err != nil {
		return err
	}
	e.log.Infof("engine: closed")
	return nil
}
