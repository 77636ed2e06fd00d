// Package catalog implements the L3 catalog cache: the open-relation table
// that keeps each open relation's RelCat row and ordered AttrCat attribute
// list resident in memory, with per-relation and per-attribute search
// cursors, backed by the self-describing RELCAT/ATTRCAT relations at blocks
// 4 and 5.
package catalog

import (
	"github.com/vorteil/blockdb/pkg/block"
	"github.com/vorteil/blockdb/pkg/buffer"
	"github.com/vorteil/blockdb/pkg/dblog"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

// relEntry is one slot of the open-relation table.
type relEntry struct {
	rel   RelCatEntry
	attrs *AttrCatEntry // head of the attribute list, ordered by AttrOffset

	recID schema.RecordID // where rel is physically stored in RELCAT
	dirty bool

	cursor schema.RecordID // relation-level linear scan cursor
}

// Table is the L3 open-relation cache: up to MaxOpen relations resident at
// once, with slots 0 and 1 permanently pinned to RELCAT and ATTRCAT.
type Table struct {
	pool  *buffer.Pool
	log   dblog.Logger
	slots [MaxOpen]*relEntry
}

// Open loads RELCAT and ATTRCAT into slots 0 and 1 from an already-formatted
// device. Use Format to initialize a fresh device first.
func Open(pool *buffer.Pool, log dblog.Logger) (*Table, error) {
	if log == nil {
		log = dblog.Nil
	}
	t := &Table{pool: pool, log: log}

	relCatSlots := block.MaxSlots(pool.Geometry().BlockSize, relCatNumAttrs)
	relCatSelf, recID, err := scanByName(pool, RelCatBlock, relCatSlots, relCatTypes, RelCatName)
	if err != nil {
		return nil, err
	}
	attrCatSelf, attrCatRecID, err := scanByName(pool, RelCatBlock, relCatSlots, relCatTypes, AttrCatName)
	if err != nil {
		return nil, err
	}
	t.slots[RelCatRelID] = &relEntry{rel: recordToRelCat(relCatSelf), recID: recID, cursor: schema.NilRecordID}
	t.slots[AttrCatRelID] = &relEntry{rel: recordToRelCat(attrCatSelf), recID: attrCatRecID, cursor: schema.NilRecordID}

	attrCatSlots := block.MaxSlots(pool.Geometry().BlockSize, attrCatNumAttrs)
	relCatAttrs, err := scanAttrs(pool, t.slots[AttrCatRelID].rel, attrCatSlots, RelCatName)
	if err != nil {
		return nil, err
	}
	attrCatAttrs, err := scanAttrs(pool, t.slots[AttrCatRelID].rel, attrCatSlots, AttrCatName)
	if err != nil {
		return nil, err
	}
	t.slots[RelCatRelID].attrs = relCatAttrs
	t.slots[AttrCatRelID].attrs = attrCatAttrs
	return t, nil
}

// scanByName walks a relation's block chain starting at firstBlk looking for
// the row whose first (relName) column equals name.
func scanByName(pool *buffer.Pool, firstBlk, numSlots int, types []schema.AttrType, name string) ([]schema.Attr, schema.RecordID, error) {
	blk := firstBlk
	for blk != -1 {
		rb, err := block.OpenRecord(pool, blk)
		if err != nil {
			return nil, schema.NilRecordID, err
		}
		for slot := 0; slot < numSlots; slot++ {
			if !rb.SlotOccupied(slot, numSlots) {
				continue
			}
			rec := rb.GetRecord(slot, numSlots, types)
			if rec[0].Str == name {
				return rec, schema.RecordID{Block: blk, Slot: slot}, nil
			}
		}
		blk = int(rb.Header().RBlock)
	}
	return nil, schema.NilRecordID, errs.ErrRelNotExist
}

// scanAttrs walks ATTRCAT's block chain collecting every row whose relName
// column equals relName, returning them linked in AttrOffset order.
func scanAttrs(pool *buffer.Pool, attrCat RelCatEntry, numSlots int, relName string) (*AttrCatEntry, error) {
	var found []AttrCatEntry
	var recIDs []schema.RecordID
	blk := attrCat.FirstBlk
	for blk != -1 {
		rb, err := block.OpenRecord(pool, blk)
		if err != nil {
			return nil, err
		}
		for slot := 0; slot < numSlots; slot++ {
			if !rb.SlotOccupied(slot, numSlots) {
				continue
			}
			rec := rb.GetRecord(slot, numSlots, attrCatTypes)
			entry := recordToAttrCat(rec)
			if entry.RelName == relName {
				found = append(found, entry)
				recIDs = append(recIDs, schema.RecordID{Block: blk, Slot: slot})
			}
		}
		blk = int(rb.Header().RBlock)
	}

	// Insertion sort by AttrOffset; attribute counts are small.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].AttrOffset < found[j-1].AttrOffset; j-- {
			found[j], found[j-1] = found[j-1], found[j]
			recIDs[j], recIDs[j-1] = recIDs[j-1], recIDs[j]
		}
	}

	var head, tail *AttrCatEntry
	for i := range found {
		node := found[i]
		node.RecID = recIDs[i]
		node.Cursor = schema.NilRecordID
		n := &node
		if head == nil {
			head = n
			tail = n
		} else {
			tail.Next = n
			tail = n
		}
	}
	return head, nil
}

func (t *Table) findByName(name string) int {
	for i, e := range t.slots {
		if e != nil && e.rel.RelName == name {
			return i
		}
	}
	return -1
}

// IsOpen reports whether name is already open, returning its relation id.
func (t *Table) IsOpen(name string) (int, bool) {
	id := t.findByName(name)
	return id, id != -1
}

// OpenRelation opens an existing relation by name, returning its relation
// id. RELCAT and ATTRCAT are always open at ids 0 and 1.
func (t *Table) OpenRelation(name string) (int, error) {
	if id, ok := t.IsOpen(name); ok {
		return id, nil
	}

	relCatSlots := block.MaxSlots(t.pool.Geometry().BlockSize, relCatNumAttrs)
	rec, recID, err := scanByName(t.pool, RelCatBlock, relCatSlots, relCatTypes, name)
	if err != nil {
		return -1, err
	}

	slot := -1
	for i := 2; i < MaxOpen; i++ {
		if t.slots[i] == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return -1, errs.ErrCacheFull
	}

	attrCatSlots := block.MaxSlots(t.pool.Geometry().BlockSize, attrCatNumAttrs)
	attrs, err := scanAttrs(t.pool, t.slots[AttrCatRelID].rel, attrCatSlots, name)
	if err != nil {
		return -1, err
	}

	t.slots[slot] = &relEntry{
		rel:    recordToRelCat(rec),
		recID:  recID,
		attrs:  attrs,
		cursor: schema.NilRecordID,
	}
	t.log.Debugf("catalog: opened relation %q at id %d", name, slot)
	return slot, nil
}

func (t *Table) entry(relID int) (*relEntry, error) {
	if relID < 0 || relID >= MaxOpen || t.slots[relID] == nil {
		return nil, errs.ErrRelNotOpen
	}
	return t.slots[relID], nil
}

// CloseRelation flushes any dirty catalog rows for relID and frees its slot.
// RELCAT and ATTRCAT (ids 0 and 1) cannot be closed.
func (t *Table) CloseRelation(relID int) error {
	if relID == RelCatRelID || relID == AttrCatRelID {
		return errs.ErrNotPermitted
	}
	e, err := t.entry(relID)
	if err != nil {
		return err
	}
	if err := t.flush(e); err != nil {
		return err
	}
	t.slots[relID] = nil
	return nil
}

func (t *Table) flush(e *relEntry) error {
	if e.dirty {
		if err := t.writeRelCat(e.recID, e.rel); err != nil {
			return err
		}
		e.dirty = false
	}
	for a := e.attrs; a != nil; a = a.Next {
		if a.Dirty {
			if err := t.writeAttrCat(a.RecID, *a); err != nil {
				return err
			}
			a.Dirty = false
		}
	}
	return nil
}

func (t *Table) writeRelCat(recID schema.RecordID, rel RelCatEntry) error {
	numSlots := block.MaxSlots(t.pool.Geometry().BlockSize, relCatNumAttrs)
	rb, err := block.OpenRecord(t.pool, recID.Block)
	if err != nil {
		return err
	}
	return rb.SetRecord(recID.Slot, numSlots, relCatTypes, relCatToRecord(rel))
}

func (t *Table) writeAttrCat(recID schema.RecordID, attr AttrCatEntry) error {
	numSlots := block.MaxSlots(t.pool.Geometry().BlockSize, attrCatNumAttrs)
	rb, err := block.OpenRecord(t.pool, recID.Block)
	if err != nil {
		return err
	}
	return rb.SetRecord(recID.Slot, numSlots, attrCatTypes, attrCatToRecord(attr))
}

// GetRelCat returns relID's cached RelCat row.
func (t *Table) GetRelCat(relID int) (RelCatEntry, error) {
	e, err := t.entry(relID)
	if err != nil {
		return RelCatEntry{}, err
	}
	return e.rel, nil
}

// SetRelCat overwrites relID's cached RelCat row and marks it dirty.
func (t *Table) SetRelCat(relID int, rel RelCatEntry) error {
	e, err := t.entry(relID)
	if err != nil {
		return err
	}
	e.rel = rel
	e.dirty = true
	return nil
}

// AttrList returns relID's attribute list in AttrOffset order.
func (t *Table) AttrList(relID int) ([]AttrCatEntry, error) {
	e, err := t.entry(relID)
	if err != nil {
		return nil, err
	}
	var out []AttrCatEntry
	for a := e.attrs; a != nil; a = a.Next {
		out = append(out, *a)
	}
	return out, nil
}

// GetAttrCatByName returns the attribute named attrName on relID.
func (t *Table) GetAttrCatByName(relID int, attrName string) (AttrCatEntry, error) {
	e, err := t.entry(relID)
	if err != nil {
		return AttrCatEntry{}, err
	}
	for a := e.attrs; a != nil; a = a.Next {
		if a.AttrName == attrName {
			return *a, nil
		}
	}
	return AttrCatEntry{}, errs.ErrAttrNotExist
}

// GetAttrCatByOffset returns the attribute at attrOffset on relID.
func (t *Table) GetAttrCatByOffset(relID, attrOffset int) (AttrCatEntry, error) {
	e, err := t.entry(relID)
	if err != nil {
		return AttrCatEntry{}, err
	}
	for a := e.attrs; a != nil; a = a.Next {
		if a.AttrOffset == attrOffset {
			return *a, nil
		}
	}
	return AttrCatEntry{}, errs.ErrAttrNotExist
}

// SetAttrCat overwrites the cached fields of the attribute named
// updated.AttrName on relID and marks it dirty.
func (t *Table) SetAttrCat(relID int, updated AttrCatEntry) error {
	e, err := t.entry(relID)
	if err != nil {
		return err
	}
	for a := e.attrs; a != nil; a = a.Next {
		if a.AttrName == updated.AttrName {
			recID, next := a.RecID, a.Next
			*a = updated
			a.RecID = recID
			a.Next = next
			a.Dirty = true
			return nil
		}
	}
	return errs.ErrAttrNotExist
}

// GetSearchIndex returns relID's relation-level linear scan cursor.
func (t *Table) GetSearchIndex(relID int) (schema.RecordID, error) {
	e, err := t.entry(relID)
	if err != nil {
		return schema.NilRecordID, err
	}
	return e.cursor, nil
}

// SetSearchIndex advances relID's relation-level linear scan cursor.
func (t *Table) SetSearchIndex(relID int, rid schema.RecordID) error {
	e, err := t.entry(relID)
	if err != nil {
		return err
	}
	e.cursor = rid
	return nil
}

// ResetSearchIndex rewinds relID's relation-level linear scan cursor.
func (t *Table) ResetSearchIndex(relID int) error {
	return t.SetSearchIndex(relID, schema.NilRecordID)
}

// GetAttrSearchIndex returns the per-attribute B+ tree search cursor for
// attrName on relID.
func (t *Table) GetAttrSearchIndex(relID int, attrName string) (schema.RecordID, error) {
	e, err := t.entry(relID)
	if err != nil {
		return schema.NilRecordID, err
	}
	for a := e.attrs; a != nil; a = a.Next {
		if a.AttrName == attrName {
			return a.Cursor, nil
		}
	}
	return schema.NilRecordID, errs.ErrAttrNotExist
}

// SetAttrSearchIndex advances the per-attribute B+ tree search cursor for
// attrName on relID.
func (t *Table) SetAttrSearchIndex(relID int, attrName string, rid schema.RecordID) error {
	e, err := t.entry(relID)
	if err != nil {
		return err
	}
	for a := e.attrs; a != nil; a = a.Next {
		if a.AttrName == attrName {
			a.Cursor = rid
			return nil
		}
	}
	return errs.ErrAttrNotExist
}

// ResetAttrSearchIndex rewinds the per-attribute B+ tree search cursor for
// attrName on relID.
func (t *Table) ResetAttrSearchIndex(relID int, attrName string) error {
	return t.SetAttrSearchIndex(relID, attrName, schema.NilRecordID)
}

// Shutdown closes every relation still open beyond RELCAT/ATTRCAT, then
// flushes RELCAT and ATTRCAT's own dirty rows.
func (t *Table) Shutdown() error {
	for i := 2; i < MaxOpen; i++ {
		if t.slots[i] != nil {
			if err := t.CloseRelation(i); err != nil {
				return err
			}
		}
	}
	if err := t.flush(t.slots[RelCatRelID]); err != nil {
		return err
	}
	if err := t.flush(t.slots[AttrCatRelID]); err != nil {
		return err
	}
	t.log.Debugf("catalog: shutdown complete")
	return nil
}
