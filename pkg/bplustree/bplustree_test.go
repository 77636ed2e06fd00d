package bplustree

import (
	"testing"

	"github.com/vorteil/blockdb/pkg/block"
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/catalog"
	"github.com/vorteil/blockdb/pkg/diskio"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIndexedRelation formats a fresh device, then hand-writes a single-
// attribute NUMBER relation's RELCAT/ATTRCAT rows directly (standing in for
// the not-yet-open relation-creation operation this package doesn't own)
// and opens it, returning the table and the new relation's id.
func newIndexedRelation(t *testing.T, diskBlocks int) (*buffer.Pool, *catalog.Table, int) {
	t.Helper()
	geom := schema.Geometry{BlockSize: 4096, DiskBlocks: diskBlocks, BufferCapacity: diskBlocks}
	dev := diskio.NewMemDevice(geom.DiskBlocks, geom.BlockSize)
	pool, err := buffer.NewPool(dev, geom, nil)
	require.NoError(t, err)

	tbl, err := catalog.Format(pool, nil)
	require.NoError(t, err)

	relCatTypes := []schema.AttrType{schema.String, schema.Number, schema.Number, schema.Number, schema.Number, schema.Number}
	attrCatTypes := []schema.AttrType{schema.String, schema.String, schema.Number, schema.Number, schema.Number, schema.Number}
	relCatSlots := block.MaxSlots(geom.BlockSize, 6)
	attrCatSlots := block.MaxSlots(geom.BlockSize, 6)

	rcBlk, err := block.OpenRecord(pool, catalog.RelCatBlock)
	require.NoError(t, err)
	relRow := []schema.Attr{
		schema.StrAttr("TESTREL"), schema.NumAttr(1), schema.NumAttr(0),
		schema.NumAttr(-1), schema.NumAttr(-1), schema.NumAttr(float64(block.MaxSlots(geom.BlockSize, 1))),
	}
	require.NoError(t, rcBlk.SetRecord(2, relCatSlots, relCatTypes, relRow))
	require.NoError(t, rcBlk.SetSlotOccupied(2, relCatSlots, true))

	acBlk, err := block.OpenRecord(pool, catalog.AttrCatBlock)
	require.NoError(t, err)
	attrRow := []schema.Attr{
		schema.StrAttr("TESTREL"), schema.StrAttr("VAL"), schema.NumAttr(float64(schema.Number)),
		schema.NumAttr(0), schema.NumAttr(-1), schema.NumAttr(0),
	}
	require.NoError(t, acBlk.SetRecord(12, attrCatSlots, attrCatTypes, attrRow))
	require.NoError(t, acBlk.SetSlotOccupied(12, attrCatSlots, true))

	relID, err := tbl.OpenRelation("TESTREL")
	require.NoError(t, err)
	return pool, tbl, relID
}

func TestLeafSplitOnOverflow(t *testing.T) {
	pool, tbl, relID := newIndexedRelation(t, 256)
	tree := New(pool, tbl)

	attr, err := tbl.GetAttrCatByName(relID, "VAL")
	require.NoError(t, err)
	require.Equal(t, -1, attr.RootBlock)

	root, err := newEmptyRoot(t, tree, relID, "VAL")
	require.NoError(t, err)

	for i := 0; i < block.MaxKeysLeaf+1; i++ {
		err := tree.Insert(relID, "VAL", schema.NumAttr(float64(i)), schema.RecordID{Block: 200, Slot: i % 8})
		require.NoError(t, err)
	}

	attr, err = tbl.GetAttrCatByName(relID, "VAL")
	require.NoError(t, err)
	assert.NotEqual(t, root, attr.RootBlock, "root should have been replaced by a new internal node")

	rootBlk, err := block.OpenInternal(pool, attr.RootBlock)
	require.NoError(t, err)
	h := rootBlk.Header()
	assert.EqualValues(t, 1, h.NumEntries)

	entry := rootBlk.GetEntry(0, schema.Number)
	leftBlk, err := block.OpenLeaf(pool, int(entry.LChild))
	require.NoError(t, err)
	rightBlk, err := block.OpenLeaf(pool, int(entry.RChild))
	require.NoError(t, err)
	lh, rh := leftBlk.Header(), rightBlk.Header()
	assert.EqualValues(t, 32, lh.NumEntries)
	assert.EqualValues(t, 32, rh.NumEntries)
	assert.EqualValues(t, int(entry.RChild), lh.RBlock)
	assert.EqualValues(t, int(entry.LChild), rh.LBlock)
	assert.EqualValues(t, attr.RootBlock, lh.PBlock)
	assert.EqualValues(t, attr.RootBlock, rh.PBlock)
}

// newEmptyRoot allocates the root leaf block the way Create would, without
// scanning (non-existent) physical relation records, then records it on the
// attribute catalog entry. Returns the allocated block number.
func newEmptyRoot(t *testing.T, tree *Tree, relID int, attrName string) (int, error) {
	t.Helper()
	root, err := block.NewLeafBlock(tree.pool)
	if err != nil {
		return -1, err
	}
	attr, err := tree.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return -1, err
	}
	attr.RootBlock = root.BlockNum()
	if err := tree.cat.SetAttrCat(relID, attr); err != nil {
		return -1, err
	}
	return root.BlockNum(), nil
}

func TestSearchEQFindsExactMatch(t *testing.T) {
	pool, tbl, relID := newIndexedRelation(t, 256)
	tree := New(pool, tbl)
	_, err := newEmptyRoot(t, tree, relID, "VAL")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, tree.Insert(relID, "VAL", schema.NumAttr(float64(i)), schema.RecordID{Block: 200, Slot: i}))
	}

	rid, err := tree.Search(relID, "VAL", schema.NumAttr(5), schema.EQ)
	require.NoError(t, err)
	assert.Equal(t, schema.RecordID{Block: 200, Slot: 5}, rid)

	_, err = tree.Search(relID, "VAL", schema.NumAttr(5), schema.EQ)
	assert.Equal(t, errs.ErrNotFound, err)

	require.NoError(t, tbl.ResetAttrSearchIndex(relID, "VAL"))
	_, err = tree.Search(relID, "VAL", schema.NumAttr(99), schema.EQ)
	assert.Equal(t, errs.ErrNotFound, err)
}

func TestSearchNETraversesSplitLeaves(t *testing.T) {
	pool, tbl, relID := newIndexedRelation(t, 256)
	tree := New(pool, tbl)
	_, err := newEmptyRoot(t, tree, relID, "VAL")
	require.NoError(t, err)

	total := block.MaxKeysLeaf + 5
	for i := 0; i < total; i++ {
		require.NoError(t, tree.Insert(relID, "VAL", schema.NumAttr(float64(i)), schema.RecordID{Block: 200, Slot: i % 8}))
	}

	require.NoError(t, tbl.ResetAttrSearchIndex(relID, "VAL"))
	seen := 0
	for {
		_, err := tree.Search(relID, "VAL", schema.NumAttr(-1), schema.NE)
		if err == errs.ErrNotFound {
			break
		}
		require.NoError(t, err)
		seen++
		if seen > total+1 {
			t.Fatal("NE search did not terminate")
		}
	}
	assert.Equal(t, total, seen)
}

func TestInsertDiskFullDestroysPartialTreeAndClearsRootBlock(t *testing.T) {
	// 1 map block + RELCAT(4) + ATTRCAT(5) fixed leaves blocks 1-3 and 6-7
	// free: the root leaf, the first split (a new leaf plus a new root) and
	// two further leaf splits; the split after that finds no free block.
	pool, tbl, relID := newIndexedRelation(t, 8)
	tree := New(pool, tbl)
	_, err := newEmptyRoot(t, tree, relID, "VAL")
	require.NoError(t, err)

	var lastErr error
	inserted := 0
	for i := 0; i < 4*block.MaxKeysLeaf; i++ {
		lastErr = tree.Insert(relID, "VAL", schema.NumAttr(float64(i)), schema.RecordID{Block: 200, Slot: i % 8})
		if lastErr != nil {
			break
		}
		inserted++
	}
	require.Equal(t, errs.ErrDiskFull, lastErr)

	attr, err := tbl.GetAttrCatByName(relID, "VAL")
	require.NoError(t, err)
	assert.Equal(t, -1, attr.RootBlock)
}

func TestDestroyReleasesWholeSubtree(t *testing.T) {
	pool, tbl, relID := newIndexedRelation(t, 256)
	tree := New(pool, tbl)
	root, err := newEmptyRoot(t, tree, relID, "VAL")
	require.NoError(t, err)

	for i := 0; i < block.MaxKeysLeaf+1; i++ {
		require.NoError(t, tree.Insert(relID, "VAL", schema.NumAttr(float64(i)), schema.RecordID{Block: 200, Slot: i % 8}))
	}

	attr, err := tbl.GetAttrCatByName(relID, "VAL")
	require.NoError(t, err)
	assert.NotEqual(t, root, attr.RootBlock)

	require.NoError(t, tree.Destroy(attr.RootBlock))

	typ, err := pool.BlockType(attr.RootBlock)
	require.NoError(t, err)
	assert.Equal(t, schema.Free, typ)
}
