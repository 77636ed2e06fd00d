package access

import (
	"testing"

	"github.com/vorteil/blockdb/pkg/block"
	"github.com/vorteil/blockdb/pkg/bplustree"
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/catalog"
	"github.com/vorteil/blockdb/pkg/diskio"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccess(t *testing.T, diskBlocks int) (*buffer.Pool, *catalog.Table, *Access) {
	t.Helper()
	geom := schema.Geometry{BlockSize: 4096, DiskBlocks: diskBlocks, BufferCapacity: diskBlocks}
	dev := diskio.NewMemDevice(geom.DiskBlocks, geom.BlockSize)
	pool, err := buffer.NewPool(dev, geom, nil)
	require.NoError(t, err)
	tbl, err := catalog.Format(pool, nil)
	require.NoError(t, err)
	tree := bplustree.New(pool, tbl)
	return pool, tbl, New(pool, tbl, tree)
}

type attrSpec struct {
	name string
	typ  schema.AttrType
}

// createRelation inserts a RelCat row and matching AttrCat rows for a brand
// new relation the way a schema-layer "create relation" operation would, then
// opens it.
func createRelation(t *testing.T, pool *buffer.Pool, tbl *catalog.Table, acc *Access, name string, attrs []attrSpec) int {
	t.Helper()
	numSlots := block.MaxSlots(pool.Geometry().BlockSize, len(attrs))
	relRow := []schema.Attr{
		schema.StrAttr(name), schema.NumAttr(float64(len(attrs))), schema.NumAttr(0),
		schema.NumAttr(-1), schema.NumAttr(-1), schema.NumAttr(float64(numSlots)),
	}
	require.NoError(t, acc.Insert(catalog.RelCatRelID, relRow))

	for i, a := range attrs {
		attrRow := []schema.Attr{
			schema.StrAttr(name), schema.StrAttr(a.name), schema.NumAttr(float64(a.typ)),
			schema.NumAttr(0), schema.NumAttr(-1), schema.NumAttr(float64(i)),
		}
		require.NoError(t, acc.Insert(catalog.AttrCatRelID, attrRow))
	}

	relID, err := tbl.OpenRelation(name)
	require.NoError(t, err)
	return relID
}

func TestCreateRelationAndInsertRoundTrip(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	relID := createRelation(t, pool, tbl, acc, "EMP", []attrSpec{
		{"ID", schema.Number}, {"NAME", schema.String},
	})

	rows := [][]schema.Attr{
		{schema.NumAttr(1), schema.StrAttr("ALICE")},
		{schema.NumAttr(2), schema.StrAttr("BOB")},
		{schema.NumAttr(3), schema.StrAttr("CARL")},
	}
	for _, r := range rows {
		require.NoError(t, acc.Insert(relID, r))
	}

	rel, err := tbl.GetRelCat(relID)
	require.NoError(t, err)
	assert.Equal(t, 3, rel.NumRecs)

	seen := 0
	for {
		_, err := acc.Project(relID)
		if err == errs.ErrNotFound {
			break
		}
		require.NoError(t, err)
		seen++
	}
	assert.Equal(t, 3, seen)
}

func TestInsertAllocatesNewBlockWhenCurrentBlockFull(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	relID := createRelation(t, pool, tbl, acc, "SOLO", []attrSpec{{"N", schema.Number}})

	rel, err := tbl.GetRelCat(relID)
	require.NoError(t, err)
	numSlots := rel.NumSlotsPerBlk

	// The relation has no block until its first insert, so the first block
	// is read back after that insert.
	require.NoError(t, acc.Insert(relID, []schema.Attr{schema.NumAttr(0)}))
	rel, err = tbl.GetRelCat(relID)
	require.NoError(t, err)
	firstBlock := rel.FirstBlk

	for i := 1; i < numSlots+1; i++ {
		require.NoError(t, acc.Insert(relID, []schema.Attr{schema.NumAttr(float64(i))}))
	}

	rel, err = tbl.GetRelCat(relID)
	require.NoError(t, err)
	assert.Equal(t, firstBlock, rel.FirstBlk)
	assert.NotEqual(t, firstBlock, rel.LastBlk, "relation should have grown a second block")
	assert.Equal(t, numSlots+1, rel.NumRecs)

	seen := 0
	for {
		_, err := acc.Project(relID)
		if err == errs.ErrNotFound {
			break
		}
		require.NoError(t, err)
		seen++
	}
	assert.Equal(t, numSlots+1, seen)
}

func TestLinearSearchEQFindsEveryMatchAndResumes(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	relID := createRelation(t, pool, tbl, acc, "VALS", []attrSpec{{"V", schema.Number}})

	for _, v := range []float64{1, 2, 3, 2} {
		require.NoError(t, acc.Insert(relID, []schema.Attr{schema.NumAttr(v)}))
	}

	rid1, err := acc.LinearSearch(relID, "V", schema.NumAttr(2), schema.EQ)
	require.NoError(t, err)
	assert.Equal(t, schema.RecordID{Block: rid1.Block, Slot: 1}, rid1)

	rid2, err := acc.LinearSearch(relID, "V", schema.NumAttr(2), schema.EQ)
	require.NoError(t, err)
	assert.Equal(t, 3, rid2.Slot)

	_, err = acc.LinearSearch(relID, "V", schema.NumAttr(2), schema.EQ)
	assert.Equal(t, errs.ErrNotFound, err)
}

func TestSearchUsesIndexWhenAttributeIndexed(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	tree := bplustree.New(pool, tbl)
	relID := createRelation(t, pool, tbl, acc, "IDX", []attrSpec{{"K", schema.Number}})

	require.NoError(t, tree.Create(relID, "K"))
	attr, err := tbl.GetAttrCatByName(relID, "K")
	require.NoError(t, err)
	require.NotEqual(t, -1, attr.RootBlock)

	for _, v := range []float64{30, 10, 20} {
		require.NoError(t, acc.Insert(relID, []schema.Attr{schema.NumAttr(v)}))
	}

	rec, err := acc.Search(relID, "K", schema.NumAttr(20), schema.EQ)
	require.NoError(t, err)
	assert.Equal(t, 20.0, rec[0].Num)

	_, err = acc.Search(relID, "K", schema.NumAttr(20), schema.EQ)
	assert.Equal(t, errs.ErrNotFound, err)
}

func TestDeleteRelationReleasesBlocksAndRows(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	relID := createRelation(t, pool, tbl, acc, "TEMP", []attrSpec{{"A", schema.Number}, {"B", schema.Number}})

	require.NoError(t, acc.Insert(relID, []schema.Attr{schema.NumAttr(1), schema.NumAttr(2)}))
	rel, err := tbl.GetRelCat(relID)
	require.NoError(t, err)
	firstBlock := rel.FirstBlk

	require.NoError(t, tbl.CloseRelation(relID))
	require.NoError(t, acc.DeleteRelation("TEMP"))

	_, err = tbl.OpenRelation("TEMP")
	assert.Equal(t, errs.ErrRelNotExist, err)

	typ, err := pool.BlockType(firstBlock)
	require.NoError(t, err)
	assert.Equal(t, schema.Free, typ)
}

func TestDeleteRelationRejectsSystemCatalogs(t *testing.T) {
	_, _, acc := newAccess(t, 64)
	assert.Equal(t, errs.ErrNotPermitted, acc.DeleteRelation(catalog.RelCatName))
	assert.Equal(t, errs.ErrNotPermitted, acc.DeleteRelation(catalog.AttrCatName))
}

func TestRenameRelationUpdatesRelCatAndAttrCat(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	oldID := createRelation(t, pool, tbl, acc, "OLDNAME", []attrSpec{{"A", schema.Number}, {"B", schema.String}})
	require.NoError(t, tbl.CloseRelation(oldID))

	require.NoError(t, acc.RenameRelation("OLDNAME", "NEWNAME"))

	_, err := tbl.OpenRelation("OLDNAME")
	assert.Equal(t, errs.ErrRelNotExist, err)

	relID, err := tbl.OpenRelation("NEWNAME")
	require.NoError(t, err)
	attrs, err := tbl.AttrList(relID)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "A", attrs[0].AttrName)
}

func TestRenameRelationRejectsExistingTarget(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	createRelation(t, pool, tbl, acc, "A", []attrSpec{{"X", schema.Number}})
	createRelation(t, pool, tbl, acc, "B", []attrSpec{{"X", schema.Number}})

	assert.Equal(t, errs.ErrRelExist, acc.RenameRelation("A", "B"))
}

func TestRenameAttributeRejectsDuplicateAndMissing(t *testing.T) {
	pool, tbl, acc := newAccess(t, 64)
	oldID := createRelation(t, pool, tbl, acc, "RENAMER", []attrSpec{{"A", schema.Number}, {"B", schema.Number}})
	require.NoError(t, tbl.CloseRelation(oldID))

	assert.Equal(t, errs.ErrAttrExist, acc.RenameAttribute("RENAMER", "A", "B"))
	assert.Equal(t, errs.ErrAttrNotExist, acc.RenameAttribute("RENAMER", "Z", "C"))

	require.NoError(t, acc.RenameAttribute("RENAMER", "A", "C"))

	relID, err := tbl.OpenRelation("RENAMER")
	require.NoError(t, err)
	_, err = tbl.GetAttrCatByName(relID, "A")
	assert.Equal(t, errs.ErrAttrNotExist, err)
	_, err = tbl.GetAttrCatByName(relID, "C")
	assert.NoError(t, err)
}

func TestInsertMaxRelationsWhenRelCatFull(t *testing.T) {
	pool, _, acc := newAccess(t, 512)
	relCatSlots := block.MaxSlots(pool.Geometry().BlockSize, 6)

	// Two slots are already taken by RELCAT/ATTRCAT's own bootstrap rows.
	created := 0
	var lastErr error
	for i := 0; i < relCatSlots; i++ {
		relRow := []schema.Attr{
			schema.StrAttr("R"), schema.NumAttr(1), schema.NumAttr(0),
			schema.NumAttr(-1), schema.NumAttr(-1), schema.NumAttr(1),
		}
		lastErr = acc.Insert(catalog.RelCatRelID, relRow)
		if lastErr != nil {
			break
		}
		created++
	}
	assert.Equal(t, errs.ErrMaxRelations, lastErr)
	assert.Equal(t, relCatSlots-2, created)
}
