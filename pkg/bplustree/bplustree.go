// Package bplustree implements the L4 single-attribute B+ tree index: the
// usual search descent (leftmost-child for NE/LT/LE, relaxed-comparison
// descent for EQ/GT/GE), leaf and internal insertion with cascading splits,
// and whole-subtree destruction.
package bplustree

import (
	"github.com/vorteil/blockdb/pkg/block"
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/catalog"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

// Tree is the L4 B+ tree engine, operating against the catalog cache for
// attribute metadata and the buffer pool for block I/O.
type Tree struct {
	pool *buffer.Pool
	cat  *catalog.Table
}

// New builds a Tree over pool and cat.
func New(pool *buffer.Pool, cat *catalog.Table) *Tree {
	return &Tree{pool: pool, cat: cat}
}

// Search advances relID/attrName's search cursor to the next leaf entry
// satisfying op against val, returning the matching tuple's record id, or
// errs.ErrNotFound once exhausted.
func (t *Tree) Search(relID int, attrName string, val schema.Attr, op schema.Op) (schema.RecordID, error) {
	attr, err := t.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return schema.NilRecordID, err
	}
	cursor, err := t.cat.GetAttrSearchIndex(relID, attrName)
	if err != nil {
		return schema.NilRecordID, err
	}

	var blockNum, index int
	if cursor.IsNil() {
		if attr.RootBlock == -1 {
			return schema.NilRecordID, errs.ErrNotFound
		}
		blockNum, index = attr.RootBlock, 0
	} else {
		blockNum, index = cursor.Block, cursor.Slot+1
		leaf, err := block.OpenLeaf(t.pool, blockNum)
		if err != nil {
			return schema.NilRecordID, err
		}
		h := leaf.Header()
		if index >= int(h.NumEntries) {
			blockNum, index = int(h.RBlock), 0
			if blockNum == -1 {
				return schema.NilRecordID, errs.ErrNotFound
			}
		}
	}

	for {
		typ, err := t.pool.BlockType(blockNum)
		if err != nil {
			return schema.NilRecordID, err
		}
		if typ != schema.IndInternal {
			break
		}
		internal, err := block.OpenInternal(t.pool, blockNum)
		if err != nil {
			return schema.NilRecordID, err
		}
		h := internal.Header()
		switch op {
		case schema.NE, schema.LT, schema.LE:
			entry := internal.GetEntry(0, attr.Type)
			blockNum = int(entry.LChild)
		default:
			i := 0
			var entry block.InternalEntry
			for ; i < int(h.NumEntries); i++ {
				entry = internal.GetEntry(i, attr.Type)
				c := schema.Compare(entry.Val, val, attr.Type)
				if (op == schema.GE || op == schema.EQ) && c >= 0 {
					break
				}
				if op == schema.GT && c > 0 {
					break
				}
			}
			if i != int(h.NumEntries) {
				blockNum = int(entry.LChild)
			} else {
				last := internal.GetEntry(int(h.NumEntries)-1, attr.Type)
				blockNum = int(last.RChild)
			}
		}
	}

	for blockNum != -1 {
		leaf, err := block.OpenLeaf(t.pool, blockNum)
		if err != nil {
			return schema.NilRecordID, err
		}
		h := leaf.Header()
		for index < int(h.NumEntries) {
			e := leaf.GetEntry(index, attr.Type)
			c := schema.Compare(e.Val, val, attr.Type)
			if schema.Satisfies(e.Val, val, attr.Type, op) {
				if err := t.cat.SetAttrSearchIndex(relID, attrName, schema.RecordID{Block: blockNum, Slot: index}); err != nil {
					return schema.NilRecordID, err
				}
				return schema.RecordID{Block: int(e.RecBlock), Slot: int(e.RecSlot)}, nil
			}
			if (op == schema.EQ || op == schema.LE || op == schema.LT) && c > 0 {
				return schema.NilRecordID, errs.ErrNotFound
			}
			index++
		}
		if op != schema.NE {
			break
		}
		blockNum, index = int(h.RBlock), 0
	}
	return schema.NilRecordID, errs.ErrNotFound
}

// Create builds a fresh B+ tree over attrName from the relation's existing
// records. It always allocates a root leaf, so attr.RootBlock is set even
// when the relation is empty.
func (t *Tree) Create(relID int, attrName string) error {
	if relID == catalog.RelCatRelID || relID == catalog.AttrCatRelID {
		return errs.ErrNotPermitted
	}
	attr, err := t.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return err
	}
	if attr.RootBlock != -1 {
		return nil
	}

	root, err := block.NewLeafBlock(t.pool)
	if err != nil {
		return err
	}
	attr.RootBlock = root.BlockNum()
	if err := t.cat.SetAttrCat(relID, attr); err != nil {
		return err
	}

	rel, err := t.cat.GetRelCat(relID)
	if err != nil {
		return err
	}
	attrs, err := t.cat.AttrList(relID)
	if err != nil {
		return err
	}
	types := make([]schema.AttrType, len(attrs))
	for i, a := range attrs {
		types[i] = a.Type
	}

	blockNum := rel.FirstBlk
	for blockNum != -1 {
		rb, err := block.OpenRecord(t.pool, blockNum)
		if err != nil {
			return err
		}
		for slot := 0; slot < rel.NumSlotsPerBlk; slot++ {
			if !rb.SlotOccupied(slot, rel.NumSlotsPerBlk) {
				continue
			}
			rec := rb.GetRecord(slot, rel.NumSlotsPerBlk, types)
			rid := schema.RecordID{Block: blockNum, Slot: slot}
			if err := t.Insert(relID, attrName, rec[attr.AttrOffset], rid); err != nil {
				return err
			}
		}
		blockNum = int(rb.Header().RBlock)
	}
	return nil
}

// Insert adds {val, rid} to relID/attrName's B+ tree. On disk-full it
// destroys the attribute's whole tree, sets its root block to -1 and
// returns errs.ErrDiskFull.
func (t *Tree) Insert(relID int, attrName string, val schema.Attr, rid schema.RecordID) error {
	attr, err := t.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return err
	}
	if attr.RootBlock == -1 {
		return errs.ErrNoIndex
	}

	leafBlk, err := t.findLeafToInsert(attr.RootBlock, val, attr.Type)
	if err != nil {
		return err
	}
	entry := block.LeafEntry{Val: val, RecBlock: int32(rid.Block), RecSlot: int32(rid.Slot)}
	err = t.insertIntoLeaf(relID, attrName, leafBlk, entry)
	if err == errs.ErrDiskFull {
		if derr := t.Destroy(attr.RootBlock); derr != nil {
			return derr
		}
		attr.RootBlock = -1
		if serr := t.cat.SetAttrCat(relID, attr); serr != nil {
			return serr
		}
		return errs.ErrDiskFull
	}
	return err
}

func (t *Tree) findLeafToInsert(rootBlock int, val schema.Attr, typ schema.AttrType) (int, error) {
	blockNum := rootBlock
	for {
		bt, err := t.pool.BlockType(blockNum)
		if err != nil {
			return -1, err
		}
		if bt == schema.IndLeaf {
			return blockNum, nil
		}
		internal, err := block.OpenInternal(t.pool, blockNum)
		if err != nil {
			return -1, err
		}
		h := internal.Header()
		i := 0
		var entry block.InternalEntry
		for ; i < int(h.NumEntries); i++ {
			entry = internal.GetEntry(i, typ)
			if schema.Compare(entry.Val, val, typ) >= 0 {
				break
			}
		}
		if i == int(h.NumEntries) {
			last := internal.GetEntry(i-1, typ)
			blockNum = int(last.RChild)
		} else {
			blockNum = int(entry.LChild)
		}
	}
}

func (t *Tree) insertIntoLeaf(relID int, attrName string, blockNum int, entry block.LeafEntry) error {
	attr, err := t.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return err
	}
	leaf, err := block.OpenLeaf(t.pool, blockNum)
	if err != nil {
		return err
	}
	h := leaf.Header()
	n := int(h.NumEntries)

	indices := make([]block.LeafEntry, n+1)
	for i := 0; i < n; i++ {
		indices[i] = leaf.GetEntry(i, attr.Type)
	}
	j := 0
	for ; j < n; j++ {
		if schema.Compare(indices[j].Val, entry.Val, attr.Type) > 0 {
			break
		}
	}
	copy(indices[j+1:n+1], indices[j:n])
	indices[j] = entry

	if n != block.MaxKeysLeaf {
		h.NumEntries = int32(n + 1)
		if err := leaf.SetHeader(h); err != nil {
			return err
		}
		for i := 0; i <= n; i++ {
			if err := leaf.SetEntry(i, indices[i], attr.Type); err != nil {
				return err
			}
		}
		return nil
	}

	newRight, err := t.splitLeaf(blockNum, indices, attr.Type)
	if err != nil {
		return err
	}

	if h.PBlock != -1 {
		mid := indices[block.MiddleIndexLeaf]
		return t.insertIntoInternal(relID, attrName, int(h.PBlock), block.InternalEntry{
			LChild: int32(blockNum), Val: mid.Val, RChild: int32(newRight),
		})
	}
	return t.createNewRoot(relID, attrName, indices[block.MiddleIndexLeaf].Val, blockNum, newRight)
}

func (t *Tree) splitLeaf(leftBlockNum int, indices []block.LeafEntry, typ schema.AttrType) (int, error) {
	right, err := block.NewLeafBlock(t.pool)
	if err != nil {
		return -1, err
	}
	left, err := block.OpenLeaf(t.pool, leftBlockNum)
	if err != nil {
		return -1, err
	}

	leftHeader := left.Header()
	rightHeader := right.Header()

	half := (block.MaxKeysLeaf + 1) / 2

	rightHeader.NumEntries = int32(half)
	rightHeader.PBlock = leftHeader.PBlock
	rightHeader.LBlock = int32(leftBlockNum)
	rightHeader.RBlock = leftHeader.RBlock
	if err := right.SetHeader(rightHeader); err != nil {
		return -1, err
	}

	leftHeader.NumEntries = int32(half)
	leftHeader.RBlock = int32(right.BlockNum())
	if err := left.SetHeader(leftHeader); err != nil {
		return -1, err
	}

	for i := 0; i < half; i++ {
		if err := left.SetEntry(i, indices[i], typ); err != nil {
			return -1, err
		}
	}
	for i := 0; i < half; i++ {
		if err := right.SetEntry(i, indices[i+half], typ); err != nil {
			return -1, err
		}
	}
	return right.BlockNum(), nil
}

func (t *Tree) insertIntoInternal(relID int, attrName string, blockNum int, entry block.InternalEntry) error {
	attr, err := t.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return err
	}
	internal, err := block.OpenInternal(t.pool, blockNum)
	if err != nil {
		return err
	}
	h := internal.Header()
	n := int(h.NumEntries)

	entries := make([]block.InternalEntry, n+1)
	for i := 0; i < n; i++ {
		entries[i] = internal.GetEntry(i, attr.Type)
	}
	j := 0
	for ; j < n; j++ {
		if schema.Compare(entries[j].Val, entry.Val, attr.Type) >= 0 {
			break
		}
	}
	copy(entries[j+1:n+1], entries[j:n])
	entries[j] = entry
	for i := 1; i <= n; i++ {
		entries[i].LChild = entries[i-1].RChild
	}

	if n != block.MaxKeysInternal {
		h.NumEntries = int32(n + 1)
		if err := internal.SetHeader(h); err != nil {
			return err
		}
		for i := 0; i <= n; i++ {
			if err := internal.SetEntry(i, entries[i], attr.Type); err != nil {
				return err
			}
		}
		return nil
	}

	newRight, err := t.splitInternal(blockNum, entries, attr.Type)
	if err == errs.ErrDiskFull {
		if derr := t.Destroy(int(entry.RChild)); derr != nil {
			return derr
		}
		return errs.ErrDiskFull
	}
	if err != nil {
		return err
	}

	if h.PBlock != -1 {
		mid := entries[block.MiddleIndexInternal]
		return t.insertIntoInternal(relID, attrName, int(h.PBlock), block.InternalEntry{
			LChild: int32(blockNum), Val: mid.Val, RChild: int32(newRight),
		})
	}
	return t.createNewRoot(relID, attrName, entries[block.MiddleIndexInternal].Val, blockNum, newRight)
}

func (t *Tree) splitInternal(leftBlockNum int, entries []block.InternalEntry, typ schema.AttrType) (int, error) {
	right, err := block.NewInternalBlock(t.pool)
	if err != nil {
		return -1, err
	}
	left, err := block.OpenInternal(t.pool, leftBlockNum)
	if err != nil {
		return -1, err
	}

	leftHeader := left.Header()
	rightHeader := right.Header()

	half := block.MaxKeysInternal / 2

	rightHeader.NumEntries = int32(half)
	rightHeader.PBlock = leftHeader.PBlock
	if err := right.SetHeader(rightHeader); err != nil {
		return -1, err
	}

	leftHeader.NumEntries = int32(half)
	if err := left.SetHeader(leftHeader); err != nil {
		return -1, err
	}

	for i := 0; i < half; i++ {
		if err := left.SetEntry(i, entries[i], typ); err != nil {
			return -1, err
		}
	}
	for i := 0; i < half; i++ {
		if err := right.SetEntry(i, entries[i+block.MiddleIndexInternal+1], typ); err != nil {
			return -1, err
		}
	}

	for i := 0; i < half; i++ {
		child := entries[block.MiddleIndexInternal+i+1]
		if i == 0 {
			if err := setPBlock(t.pool, int(child.LChild), int32(right.BlockNum())); err != nil {
				return -1, err
			}
		}
		if err := setPBlock(t.pool, int(child.RChild), int32(right.BlockNum())); err != nil {
			return -1, err
		}
	}
	return right.BlockNum(), nil
}

func (t *Tree) createNewRoot(relID int, attrName string, val schema.Attr, lChild, rChild int) error {
	attr, err := t.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return err
	}
	root, err := block.NewInternalBlock(t.pool)
	if err != nil {
		if derr := t.Destroy(rChild); derr != nil {
			return derr
		}
		return errs.ErrDiskFull
	}
	h := root.Header()
	h.NumEntries = 1
	if err := root.SetHeader(h); err != nil {
		return err
	}
	if err := root.SetEntry(0, block.InternalEntry{LChild: int32(lChild), Val: val, RChild: int32(rChild)}, attr.Type); err != nil {
		return err
	}

	if err := setPBlock(t.pool, lChild, int32(root.BlockNum())); err != nil {
		return err
	}
	if err := setPBlock(t.pool, rChild, int32(root.BlockNum())); err != nil {
		return err
	}

	attr.RootBlock = root.BlockNum()
	return t.cat.SetAttrCat(relID, attr)
}

// Destroy recursively releases every block of the subtree rooted at
// rootBlockNum.
func (t *Tree) Destroy(rootBlockNum int) error {
	if rootBlockNum < 0 || rootBlockNum >= t.pool.Geometry().DiskBlocks {
		return errs.ErrOutOfBound
	}
	typ, err := t.pool.BlockType(rootBlockNum)
	if err != nil {
		return err
	}
	switch typ {
	case schema.IndLeaf:
		leaf, err := block.OpenLeaf(t.pool, rootBlockNum)
		if err != nil {
			return err
		}
		return leaf.Release()
	case schema.IndInternal:
		internal, err := block.OpenInternal(t.pool, rootBlockNum)
		if err != nil {
			return err
		}
		h := internal.Header()
		for i := 0; i < int(h.NumEntries); i++ {
			e := internal.GetEntry(i, schema.Number)
			if i == 0 {
				if err := t.Destroy(int(e.LChild)); err != nil {
					return err
				}
			}
			if err := t.Destroy(int(e.RChild)); err != nil {
				return err
			}
		}
		return internal.Release()
	default:
		return errs.ErrInvalidBlock
	}
}

func setPBlock(pool *buffer.Pool, blockNum int, pblock int32) error {
	b, err := block.Open(pool, blockNum)
	if err != nil {
		return err
	}
	h := b.Header()
	h.PBlock = pblock
	return b.SetHeader(h)
}
