// Package access implements the L5 block access layer: linear and indexed
// search with resumable cursors, record insertion (first-fit into existing
// blocks, new-block allocation otherwise, with index maintenance), full
// relation projection, and relation/attribute deletion and rename.
package access

import (
	"github.com/vorteil/blockdb/pkg/block"
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/bplustree"
	"github.com/vorteil/blockdb/pkg/catalog"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

// Access is the L5 block access engine.
type Access struct {
	pool *buffer.Pool
	cat  *catalog.Table
	tree *bplustree.Tree
}

// New builds an Access layer over pool, cat and tree.
func New(pool *buffer.Pool, cat *catalog.Table, tree *bplustree.Tree) *Access {
	return &Access{pool: pool, cat: cat, tree: tree}
}

// RecordCapacity returns how many numAttrs-wide tuples fit in one record
// block under this engine's geometry.
func (a *Access) RecordCapacity(numAttrs int) int {
	return block.MaxSlots(a.pool.Geometry().BlockSize, numAttrs)
}

func (a *Access) attrTypes(relID int) ([]schema.AttrType, error) {
	attrs, err := a.cat.AttrList(relID)
	if err != nil {
		return nil, err
	}
	types := make([]schema.AttrType, len(attrs))
	for i, at := range attrs {
		types[i] = at.Type
	}
	return types, nil
}

// LinearSearch resumes relID's relation-level cursor and scans forward for
// the next tuple whose attrName column satisfies op against val.
func (a *Access) LinearSearch(relID int, attrName string, val schema.Attr, op schema.Op) (schema.RecordID, error) {
	attr, err := a.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return schema.NilRecordID, err
	}
	rel, err := a.cat.GetRelCat(relID)
	if err != nil {
		return schema.NilRecordID, err
	}
	types, err := a.attrTypes(relID)
	if err != nil {
		return schema.NilRecordID, err
	}

	prev, err := a.cat.GetSearchIndex(relID)
	if err != nil {
		return schema.NilRecordID, err
	}
	var blockNum, slot int
	if prev.IsNil() {
		blockNum, slot = rel.FirstBlk, 0
	} else {
		blockNum, slot = prev.Block, prev.Slot+1
	}

	for blockNum != -1 {
		rb, err := block.OpenRecord(a.pool, blockNum)
		if err != nil {
			return schema.NilRecordID, err
		}
		h := rb.Header()
		if slot >= int(h.NumSlots) {
			blockNum, slot = int(h.RBlock), 0
			continue
		}
		if !rb.SlotOccupied(slot, int(h.NumSlots)) {
			slot++
			continue
		}
		rec := rb.GetRecord(slot, int(h.NumSlots), types)
		if schema.Satisfies(rec[attr.AttrOffset], val, attr.Type, op) {
			found := schema.RecordID{Block: blockNum, Slot: slot}
			if err := a.cat.SetSearchIndex(relID, found); err != nil {
				return schema.NilRecordID, err
			}
			return found, nil
		}
		slot++
	}
	return schema.NilRecordID, errs.ErrNotFound
}

// Search resumes relID's cursor (the attribute's per-attribute B+ tree
// cursor if attrName is indexed, otherwise the relation-level linear
// cursor) and returns the next matching tuple in full.
func (a *Access) Search(relID int, attrName string, val schema.Attr, op schema.Op) ([]schema.Attr, error) {
	attr, err := a.cat.GetAttrCatByName(relID, attrName)
	if err != nil {
		return nil, err
	}

	var rid schema.RecordID
	if attr.RootBlock == -1 {
		rid, err = a.LinearSearch(relID, attrName, val, op)
	} else {
		rid, err = a.tree.Search(relID, attrName, val, op)
	}
	if err != nil {
		return nil, err
	}

	types, err := a.attrTypes(relID)
	if err != nil {
		return nil, err
	}
	rb, err := block.OpenRecord(a.pool, rid.Block)
	if err != nil {
		return nil, err
	}
	h := rb.Header()
	return rb.GetRecord(rid.Slot, int(h.NumSlots), types), nil
}

// Project resumes relID's relation-level cursor and returns the next tuple
// in full scan order, regardless of any index.
func (a *Access) Project(relID int) ([]schema.Attr, error) {
	rel, err := a.cat.GetRelCat(relID)
	if err != nil {
		return nil, err
	}
	types, err := a.attrTypes(relID)
	if err != nil {
		return nil, err
	}
	prev, err := a.cat.GetSearchIndex(relID)
	if err != nil {
		return nil, err
	}

	var blockNum, slot int
	if prev.IsNil() {
		blockNum, slot = rel.FirstBlk, 0
	} else {
		blockNum, slot = prev.Block, prev.Slot+1
	}

	for blockNum != -1 {
		rb, err := block.OpenRecord(a.pool, blockNum)
		if err != nil {
			return nil, err
		}
		h := rb.Header()
		if slot >= int(h.NumSlots) {
			blockNum, slot = int(h.RBlock), 0
			continue
		}
		if !rb.SlotOccupied(slot, int(h.NumSlots)) {
			slot++
			continue
		}
		break
	}
	if blockNum == -1 {
		return nil, errs.ErrNotFound
	}

	rb, err := block.OpenRecord(a.pool, blockNum)
	if err != nil {
		return nil, err
	}
	h := rb.Header()
	rec := rb.GetRecord(slot, int(h.NumSlots), types)
	if err := a.cat.SetSearchIndex(relID, schema.RecordID{Block: blockNum, Slot: slot}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Insert places rec into the first free slot of an existing record block,
// or allocates a new one (growing the relation's block chain and recording
// it in the relation's RelCat row) if none has room,
// then maintains every indexed attribute's B+ tree. RELCAT itself never
// grows past its one fixed block.
func (a *Access) Insert(relID int, rec []schema.Attr) error {
	rel, err := a.cat.GetRelCat(relID)
	if err != nil {
		return err
	}
	types, err := a.attrTypes(relID)
	if err != nil {
		return err
	}
	if len(rec) != len(types) {
		return errs.ErrNAttrMismatch
	}

	blockNum := rel.FirstBlk
	prevBlockNum := -1
	rid := schema.NilRecordID

	for blockNum != -1 {
		rb, err := block.OpenRecord(a.pool, blockNum)
		if err != nil {
			return err
		}
		slotFound := -1
		for i := 0; i < rel.NumSlotsPerBlk; i++ {
			if !rb.SlotOccupied(i, rel.NumSlotsPerBlk) {
				slotFound = i
				break
			}
		}
		if slotFound != -1 {
			rid = schema.RecordID{Block: blockNum, Slot: slotFound}
			break
		}
		prevBlockNum = blockNum
		blockNum = int(rb.Header().RBlock)
	}

	if rid.IsNil() {
		if relID == catalog.RelCatRelID {
			return errs.ErrMaxRelations
		}
		nb, err := block.NewRecordBlock(a.pool, rel.NumAttrs)
		if err != nil {
			return err
		}
		h := nb.Header()
		h.PBlock = -1
		h.RBlock = -1
		h.NumEntries = 0
		if rel.FirstBlk == -1 {
			h.LBlock = -1
		} else {
			h.LBlock = int32(prevBlockNum)
		}
		if err := nb.SetHeader(h); err != nil {
			return err
		}

		rid = schema.RecordID{Block: nb.BlockNum(), Slot: 0}

		if prevBlockNum != -1 {
			pb, err := block.OpenRecord(a.pool, prevBlockNum)
			if err != nil {
				return err
			}
			ph := pb.Header()
			ph.RBlock = int32(nb.BlockNum())
			if err := pb.SetHeader(ph); err != nil {
				return err
			}
		} else {
			rel.FirstBlk = nb.BlockNum()
		}
		rel.LastBlk = nb.BlockNum()
		if err := a.cat.SetRelCat(relID, rel); err != nil {
			return err
		}
	}

	rb, err := block.OpenRecord(a.pool, rid.Block)
	if err != nil {
		return err
	}
	if err := rb.SetRecord(rid.Slot, rel.NumSlotsPerBlk, types, rec); err != nil {
		return err
	}
	if err := rb.SetSlotOccupied(rid.Slot, rel.NumSlotsPerBlk, true); err != nil {
		return err
	}
	h := rb.Header()
	h.NumEntries++
	if err := rb.SetHeader(h); err != nil {
		return err
	}

	rel, err = a.cat.GetRelCat(relID)
	if err != nil {
		return err
	}
	rel.NumRecs++
	if err := a.cat.SetRelCat(relID, rel); err != nil {
		return err
	}

	flag := error(nil)
	attrs, err := a.cat.AttrList(relID)
	if err != nil {
		return err
	}
	for _, at := range attrs {
		if at.RootBlock == -1 {
			continue
		}
		if err := a.tree.Insert(relID, at.AttrName, rec[at.AttrOffset], rid); err == errs.ErrDiskFull {
			flag = errs.ErrIndexBlocksReleased
		} else if err != nil {
			return err
		}
	}
	return flag
}

// DeleteRelation releases every record block and index of the named
// relation, and removes its RelCat/AttrCat rows. RELCAT and ATTRCAT cannot
// be deleted.
func (a *Access) DeleteRelation(name string) error {
	if name == catalog.RelCatName || name == catalog.AttrCatName {
		return errs.ErrNotPermitted
	}
	if err := a.cat.ResetSearchIndex(catalog.RelCatRelID); err != nil {
		return err
	}
	relRid, err := a.LinearSearch(catalog.RelCatRelID, "RelName", schema.StrAttr(name), schema.EQ)
	if err == errs.ErrNotFound {
		return errs.ErrRelNotExist
	}
	if err != nil {
		return err
	}

	relCatSlots, err := a.numSlots(catalog.RelCatRelID)
	if err != nil {
		return err
	}
	relCatTypes, err := a.attrTypes(catalog.RelCatRelID)
	if err != nil {
		return err
	}
	rcBlk, err := block.OpenRecord(a.pool, relRid.Block)
	if err != nil {
		return err
	}
	relRow := rcBlk.GetRecord(relRid.Slot, relCatSlots, relCatTypes)
	firstBlock := int(relRow[3].Num)

	for firstBlock != -1 {
		rb, err := block.OpenRecord(a.pool, firstBlock)
		if err != nil {
			return err
		}
		next := int(rb.Header().RBlock)
		if err := rb.Release(); err != nil {
			return err
		}
		firstBlock = next
	}

	if err := a.cat.ResetSearchIndex(catalog.AttrCatRelID); err != nil {
		return err
	}
	attrCatSlots, err := a.numSlots(catalog.AttrCatRelID)
	if err != nil {
		return err
	}
	attrCatTypes, err := a.attrTypes(catalog.AttrCatRelID)
	if err != nil {
		return err
	}

	deleted := 0
	for {
		attrRid, err := a.LinearSearch(catalog.AttrCatRelID, "RelName", schema.StrAttr(name), schema.EQ)
		if err == errs.ErrNotFound {
			break
		}
		if err != nil {
			return err
		}
		deleted++

		acBlk, err := block.OpenRecord(a.pool, attrRid.Block)
		if err != nil {
			return err
		}
		h := acBlk.Header()
		row := acBlk.GetRecord(attrRid.Slot, attrCatSlots, attrCatTypes)
		rootBlock := int(row[4].Num)

		if err := acBlk.SetSlotOccupied(attrRid.Slot, attrCatSlots, false); err != nil {
			return err
		}
		h.NumEntries--
		if err := acBlk.SetHeader(h); err != nil {
			return err
		}

		if h.NumEntries == 0 {
			if err := unlinkRecordBlock(a.pool, a.cat, catalog.AttrCatRelID, attrRid.Block, h); err != nil {
				return err
			}
			if err := acBlk.Release(); err != nil {
				return err
			}
		}

		if rootBlock != -1 {
			if err := a.tree.Destroy(rootBlock); err != nil {
				return err
			}
		}
	}

	rcHeadBlk, err := block.OpenRecord(a.pool, relRid.Block)
	if err != nil {
		return err
	}
	h := rcHeadBlk.Header()
	h.NumEntries--
	if err := rcHeadBlk.SetHeader(h); err != nil {
		return err
	}
	if err := rcHeadBlk.SetSlotOccupied(relRid.Slot, relCatSlots, false); err != nil {
		return err
	}

	relCat, err := a.cat.GetRelCat(catalog.RelCatRelID)
	if err != nil {
		return err
	}
	relCat.NumRecs--
	if err := a.cat.SetRelCat(catalog.RelCatRelID, relCat); err != nil {
		return err
	}
	attrCat, err := a.cat.GetRelCat(catalog.AttrCatRelID)
	if err != nil {
		return err
	}
	attrCat.NumRecs -= deleted
	return a.cat.SetRelCat(catalog.AttrCatRelID, attrCat)
}

// unlinkRecordBlock splices blockNum (whose header h was just read) out of
// relID's record-block linked list, fixing the relation catalog's lastBlk
// if blockNum was the tail.
func unlinkRecordBlock(pool *buffer.Pool, cat *catalog.Table, relID, blockNum int, h block.Header) error {
	if h.LBlock != -1 {
		lb, err := block.OpenRecord(pool, int(h.LBlock))
		if err != nil {
			return err
		}
		lh := lb.Header()
		lh.RBlock = h.RBlock
		if err := lb.SetHeader(lh); err != nil {
			return err
		}
	}
	if h.RBlock != -1 {
		rb, err := block.OpenRecord(pool, int(h.RBlock))
		if err != nil {
			return err
		}
		rh := rb.Header()
		rh.LBlock = h.LBlock
		if err := rb.SetHeader(rh); err != nil {
			return err
		}
	} else {
		rel, err := cat.GetRelCat(relID)
		if err != nil {
			return err
		}
		rel.LastBlk = int(h.LBlock)
		if err := cat.SetRelCat(relID, rel); err != nil {
			return err
		}
	}
	return nil
}

func (a *Access) numSlots(relID int) (int, error) {
	rel, err := a.cat.GetRelCat(relID)
	if err != nil {
		return 0, err
	}
	return rel.NumSlotsPerBlk, nil
}

// RenameRelation renames an existing relation, rewriting its RelCat row and
// every AttrCat row that names it.
func (a *Access) RenameRelation(oldName, newName string) error {
	if err := a.cat.ResetSearchIndex(catalog.RelCatRelID); err != nil {
		return err
	}
	if _, err := a.LinearSearch(catalog.RelCatRelID, "RelName", schema.StrAttr(newName), schema.EQ); err != errs.ErrNotFound {
		if err == nil {
			return errs.ErrRelExist
		}
		return err
	}

	if err := a.cat.ResetSearchIndex(catalog.RelCatRelID); err != nil {
		return err
	}
	relRid, err := a.LinearSearch(catalog.RelCatRelID, "RelName", schema.StrAttr(oldName), schema.EQ)
	if err == errs.ErrNotFound {
		return errs.ErrRelNotExist
	}
	if err != nil {
		return err
	}

	relCatSlots, err := a.numSlots(catalog.RelCatRelID)
	if err != nil {
		return err
	}
	relCatTypes, err := a.attrTypes(catalog.RelCatRelID)
	if err != nil {
		return err
	}
	rcBlk, err := block.OpenRecord(a.pool, relRid.Block)
	if err != nil {
		return err
	}
	row := rcBlk.GetRecord(relRid.Slot, relCatSlots, relCatTypes)
	numAttrs := int(row[1].Num)
	row[0] = schema.StrAttr(newName)
	if err := rcBlk.SetRecord(relRid.Slot, relCatSlots, relCatTypes, row); err != nil {
		return err
	}

	if err := a.cat.ResetSearchIndex(catalog.AttrCatRelID); err != nil {
		return err
	}
	attrCatSlots, err := a.numSlots(catalog.AttrCatRelID)
	if err != nil {
		return err
	}
	attrCatTypes, err := a.attrTypes(catalog.AttrCatRelID)
	if err != nil {
		return err
	}
	for i := 0; i < numAttrs; i++ {
		rid, err := a.LinearSearch(catalog.AttrCatRelID, "RelName", schema.StrAttr(oldName), schema.EQ)
		if err != nil {
			return err
		}
		acBlk, err := block.OpenRecord(a.pool, rid.Block)
		if err != nil {
			return err
		}
		arow := acBlk.GetRecord(rid.Slot, attrCatSlots, attrCatTypes)
		arow[0] = schema.StrAttr(newName)
		if err := acBlk.SetRecord(rid.Slot, attrCatSlots, attrCatTypes, arow); err != nil {
			return err
		}
	}
	return nil
}

// RenameAttribute renames relName's oldName attribute to newName.
func (a *Access) RenameAttribute(relName, oldName, newName string) error {
	if err := a.cat.ResetSearchIndex(catalog.RelCatRelID); err != nil {
		return err
	}
	if _, err := a.LinearSearch(catalog.RelCatRelID, "RelName", schema.StrAttr(relName), schema.EQ); err == errs.ErrNotFound {
		return errs.ErrRelNotExist
	} else if err != nil {
		return err
	}

	if err := a.cat.ResetSearchIndex(catalog.AttrCatRelID); err != nil {
		return err
	}
	attrCatSlots, err := a.numSlots(catalog.AttrCatRelID)
	if err != nil {
		return err
	}
	attrCatTypes, err := a.attrTypes(catalog.AttrCatRelID)
	if err != nil {
		return err
	}

	target := schema.NilRecordID
	for {
		rid, err := a.LinearSearch(catalog.AttrCatRelID, "RelName", schema.StrAttr(relName), schema.EQ)
		if err == errs.ErrNotFound {
			break
		}
		if err != nil {
			return err
		}
		acBlk, err := block.OpenRecord(a.pool, rid.Block)
		if err != nil {
			return err
		}
		row := acBlk.GetRecord(rid.Slot, attrCatSlots, attrCatTypes)
		if row[1].Str == oldName {
			target = rid
		}
		if row[1].Str == newName {
			return errs.ErrAttrExist
		}
	}
	if target.IsNil() {
		return errs.ErrAttrNotExist
	}

	acBlk, err := block.OpenRecord(a.pool, target.Block)
	if err != nil {
		return err
	}
	row := acBlk.GetRecord(target.Slot, attrCatSlots, attrCatTypes)
	row[1] = schema.StrAttr(newName)
	return acBlk.SetRecord(target.Slot, attrCatSlots, attrCatTypes, row)
}
