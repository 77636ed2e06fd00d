package catalog

import (
	"github.com/vorteil/blockdb/pkg/block"
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/dblog"
	"github.com/vorteil/blockdb/pkg/schema"
)

// relCatColumns and attrCatColumns describe RELCAT's and ATTRCAT's own rows
// in ATTRCAT, in attribute-offset order.
var relCatColumns = []struct {
	name string
	typ  schema.AttrType
}{
	{"RelName", schema.String},
	{"NumAttrs", schema.Number},
	{"NumRecs", schema.Number},
	{"FirstBlk", schema.Number},
	{"LastBlk", schema.Number},
	{"NumSlotsPerBlk", schema.Number},
}

var attrCatColumns = []struct {
	name string
	typ  schema.AttrType
}{
	{"RelName", schema.String},
	{"AttrName", schema.String},
	{"Type", schema.Number},
	{"PrimaryFlag", schema.Number},
	{"RootBlock", schema.Number},
	{"AttrOffset", schema.Number},
}

// Format initializes a fresh device: the allocation map's own blocks, and
// RELCAT/ATTRCAT at their fixed, well-known block numbers, each describing
// both catalogs (including themselves) as ordinary rows. It returns the
// Table loaded from the device it just wrote, equivalent to calling Open
// immediately afterward.
func Format(pool *buffer.Pool, log dblog.Logger) (*Table, error) {
	if log == nil {
		log = dblog.Nil
	}
	geom := pool.Geometry()

	for i := 0; i < geom.MapBlocks(); i++ {
		if err := pool.SetBlockType(i, schema.Map); err != nil {
			return nil, err
		}
	}
	if err := pool.SetBlockType(RelCatBlock, schema.Rec); err != nil {
		return nil, err
	}
	if err := pool.SetBlockType(AttrCatBlock, schema.Rec); err != nil {
		return nil, err
	}

	relCatSlots := block.MaxSlots(geom.BlockSize, relCatNumAttrs)
	attrCatSlots := block.MaxSlots(geom.BlockSize, attrCatNumAttrs)

	if err := formatRelCatBlock(pool, relCatSlots, attrCatSlots); err != nil {
		return nil, err
	}
	if err := formatAttrCatBlock(pool, attrCatSlots); err != nil {
		return nil, err
	}

	log.Debugf("catalog: formatted fresh device (relCatSlots=%d, attrCatSlots=%d)", relCatSlots, attrCatSlots)
	return Open(pool, log)
}

func formatRelCatBlock(pool *buffer.Pool, relCatSlots, attrCatSlots int) error {
	rb, err := block.OpenRecord(pool, RelCatBlock)
	if err != nil {
		return err
	}
	h := block.Header{
		BlockType: schema.Rec, PBlock: -1, LBlock: -1, RBlock: -1,
		NumEntries: 2, NumAttrs: relCatNumAttrs, NumSlots: int32(relCatSlots),
	}
	if err := rb.SetHeader(h); err != nil {
		return err
	}
	if err := rb.SetSlotMap(make([]byte, relCatSlots)); err != nil {
		return err
	}

	rows := []RelCatEntry{
		{RelName: RelCatName, NumAttrs: relCatNumAttrs, NumRecs: 2, FirstBlk: RelCatBlock, LastBlk: RelCatBlock, NumSlotsPerBlk: relCatSlots},
		{RelName: AttrCatName, NumAttrs: attrCatNumAttrs, NumRecs: len(relCatColumns) + len(attrCatColumns), FirstBlk: AttrCatBlock, LastBlk: AttrCatBlock, NumSlotsPerBlk: attrCatSlots},
	}
	for i, row := range rows {
		if err := rb.SetRecord(i, relCatSlots, relCatTypes, relCatToRecord(row)); err != nil {
			return err
		}
		if err := rb.SetSlotOccupied(i, relCatSlots, true); err != nil {
			return err
		}
	}
	return nil
}

func formatAttrCatBlock(pool *buffer.Pool, attrCatSlots int) error {
	rb, err := block.OpenRecord(pool, AttrCatBlock)
	if err != nil {
		return err
	}
	numRows := len(relCatColumns) + len(attrCatColumns)
	h := block.Header{
		BlockType: schema.Rec, PBlock: -1, LBlock: -1, RBlock: -1,
		NumEntries: int32(numRows), NumAttrs: attrCatNumAttrs, NumSlots: int32(attrCatSlots),
	}
	if err := rb.SetHeader(h); err != nil {
		return err
	}
	if err := rb.SetSlotMap(make([]byte, attrCatSlots)); err != nil {
		return err
	}

	slot := 0
	writeCols := func(relName string, cols []struct {
		name string
		typ  schema.AttrType
	}) error {
		for offset, col := range cols {
			row := AttrCatEntry{
				RelName: relName, AttrName: col.name, Type: col.typ,
				PrimaryFlag: 0, RootBlock: -1, AttrOffset: offset,
			}
			if err := rb.SetRecord(slot, attrCatSlots, attrCatTypes, attrCatToRecord(row)); err != nil {
				return err
			}
			if err := rb.SetSlotOccupied(slot, attrCatSlots, true); err != nil {
				return err
			}
			slot++
		}
		return nil
	}
	if err := writeCols(RelCatName, relCatColumns); err != nil {
		return err
	}
	return writeCols(AttrCatName, attrCatColumns)
}
