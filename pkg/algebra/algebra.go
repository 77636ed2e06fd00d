// Package algebra implements the L6 relational-algebra facade: the external
// boundary the storage core exposes to a front end. It layers schema
// operations (create/drop relation, create/drop index, rename) and the
// relational primitives (select, project, insert, join) over the L5 block
// access engine and the L3 catalog cache.
package algebra

import (
	"strconv"

	"github.com/vorteil/blockdb/pkg/access"
	"github.com/vorteil/blockdb/pkg/bplustree"
	"github.com/vorteil/blockdb/pkg/catalog"
	"github.com/vorteil/blockdb/pkg/dblog"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

// AttrDef describes one attribute of a relation being created.
type AttrDef struct {
	Name string
	Type schema.AttrType
}

// Facade is the L6 relational-algebra engine.
type Facade struct {
	acc  *access.Access
	cat  *catalog.Table
	tree *bplustree.Tree
	log  dblog.Logger
}

// New builds a Facade over the given access, catalog and index layers.
func New(acc *access.Access, cat *catalog.Table, tree *bplustree.Tree, log dblog.Logger) *Facade {
	if log == nil {
		log = dblog.Nil
	}
	return &Facade{acc: acc, cat: cat, tree: tree, log: log}
}

func (f *Facade) ensureOpen(name string) (int, error) {
	if id, ok := f.cat.IsOpen(name); ok {
		return id, nil
	}
	return f.cat.OpenRelation(name)
}

// exists reports whether name already has a RelCat row. It resets the
// relation catalog's search cursor before searching; on a match the cursor
// is left at the matching row.
func (f *Facade) exists(name string) (bool, error) {
	if err := f.cat.ResetSearchIndex(catalog.RelCatRelID); err != nil {
		return false, err
	}
	_, err := f.acc.LinearSearch(catalog.RelCatRelID, "RelName", schema.StrAttr(name), schema.EQ)
	if err == errs.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateRelation registers a new relation with the given attributes and
// opens it.
func (f *Facade) CreateRelation(name string, attrs []AttrDef) (int, error) {
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if seen[a.Name] {
			return -1, errs.ErrDuplicateAttr
		}
		seen[a.Name] = true
	}
	ok, err := f.exists(name)
	if err != nil {
		return -1, err
	}
	if ok {
		return -1, errs.ErrRelExist
	}

	numSlots := f.acc.RecordCapacity(len(attrs))
	relRow := []schema.Attr{
		schema.StrAttr(name), schema.NumAttr(float64(len(attrs))), schema.NumAttr(0),
		schema.NumAttr(-1), schema.NumAttr(-1), schema.NumAttr(float64(numSlots)),
	}
	if err := f.acc.Insert(catalog.RelCatRelID, relRow); err != nil {
		return -1, err
	}
	for i, a := range attrs {
		attrRow := []schema.Attr{
			schema.StrAttr(name), schema.StrAttr(a.Name), schema.NumAttr(float64(a.Type)),
			schema.NumAttr(0), schema.NumAttr(-1), schema.NumAttr(float64(i)),
		}
		if err := f.acc.Insert(catalog.AttrCatRelID, attrRow); err != nil {
			return -1, err
		}
	}
	f.log.Debugf("algebra: created relation %q (%d attrs)", name, len(attrs))
	return f.cat.OpenRelation(name)
}

// DropRelation closes name if open, releases its blocks and indexes, and
// removes its catalog rows. RELCAT and ATTRCAT cannot be dropped.
func (f *Facade) DropRelation(name string) error {
	if id, ok := f.cat.IsOpen(name); ok {
		if err := f.cat.CloseRelation(id); err != nil {
			return err
		}
	}
	return f.acc.DeleteRelation(name)
}

// OpenRelation opens name, returning its relation id.
func (f *Facade) OpenRelation(name string) (int, error) {
	return f.cat.OpenRelation(name)
}

// CloseRelation closes relID.
func (f *Facade) CloseRelation(relID int) error {
	return f.cat.CloseRelation(relID)
}

// RenameRelation closes oldName if open, then renames it.
func (f *Facade) RenameRelation(oldName, newName string) error {
	if id, ok := f.cat.IsOpen(oldName); ok {
		if err := f.cat.CloseRelation(id); err != nil {
			return err
		}
	}
	return f.acc.RenameRelation(oldName, newName)
}

// RenameAttribute closes relName if open, then renames one of its attributes.
func (f *Facade) RenameAttribute(relName, oldName, newName string) error {
	if id, ok := f.cat.IsOpen(relName); ok {
		if err := f.cat.CloseRelation(id); err != nil {
			return err
		}
	}
	return f.acc.RenameAttribute(relName, oldName, newName)
}

// CreateIndex builds a B+ tree on relName.attrName.
func (f *Facade) CreateIndex(relName, attrName string) error {
	id, err := f.ensureOpen(relName)
	if err != nil {
		return err
	}
	if _, err := f.cat.GetAttrCatByName(id, attrName); err != nil {
		return err
	}
	return f.tree.Create(id, attrName)
}

// DropIndex destroys the B+ tree on relName.attrName, if one exists.
func (f *Facade) DropIndex(relName, attrName string) error {
	id, err := f.ensureOpen(relName)
	if err != nil {
		return err
	}
	attr, err := f.cat.GetAttrCatByName(id, attrName)
	if err != nil {
		return err
	}
	if attr.RootBlock == -1 {
		return errs.ErrNoIndex
	}
	if err := f.tree.Destroy(attr.RootBlock); err != nil {
		return err
	}
	attr.RootBlock = -1
	return f.cat.SetAttrCat(id, attr)
}

// Select creates tgt with src's schema and copies every record satisfying
// op against val on attrName.
func (f *Facade) Select(src, tgt, attrName string, op schema.Op, val schema.Attr) error {
	srcID, err := f.ensureOpen(src)
	if err != nil {
		return err
	}
	attrs, err := f.cat.AttrList(srcID)
	if err != nil {
		return err
	}
	matchAttr, err := f.cat.GetAttrCatByName(srcID, attrName)
	if err != nil {
		return err
	}

	defs := make([]AttrDef, len(attrs))
	for i, a := range attrs {
		defs[i] = AttrDef{Name: a.AttrName, Type: a.Type}
	}
	tgtID, err := f.CreateRelation(tgt, defs)
	if err != nil {
		return err
	}

	if matchAttr.RootBlock != -1 {
		if err := f.cat.ResetAttrSearchIndex(srcID, attrName); err != nil {
			return f.rollback(tgt, err)
		}
	} else {
		if err := f.cat.ResetSearchIndex(srcID); err != nil {
			return f.rollback(tgt, err)
		}
	}

	for {
		rec, err := f.acc.Search(srcID, attrName, val, op)
		if err == errs.ErrNotFound {
			break
		}
		if err != nil {
			return f.rollback(tgt, err)
		}
		if err := f.acc.Insert(tgtID, rec); err != nil {
			return f.rollback(tgt, err)
		}
	}
	return nil
}

// Project materializes src's full schema and every record into a new
// relation tgt.
func (f *Facade) Project(src, tgt string) error {
	srcID, err := f.ensureOpen(src)
	if err != nil {
		return err
	}
	attrs, err := f.cat.AttrList(srcID)
	if err != nil {
		return err
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.AttrName
	}
	return f.ProjectAttrs(src, tgt, names)
}

// ProjectAttrs materializes only attrNames (in the given order) of src's
// records into a new relation tgt.
func (f *Facade) ProjectAttrs(src, tgt string, attrNames []string) error {
	srcID, err := f.ensureOpen(src)
	if err != nil {
		return err
	}
	offsets := make([]int, len(attrNames))
	defs := make([]AttrDef, len(attrNames))
	for i, name := range attrNames {
		a, err := f.cat.GetAttrCatByName(srcID, name)
		if err != nil {
			return err
		}
		offsets[i] = a.AttrOffset
		defs[i] = AttrDef{Name: a.AttrName, Type: a.Type}
	}

	tgtID, err := f.CreateRelation(tgt, defs)
	if err != nil {
		return err
	}

	if err := f.cat.ResetSearchIndex(srcID); err != nil {
		return f.rollback(tgt, err)
	}
	for {
		rec, err := f.acc.Project(srcID)
		if err == errs.ErrNotFound {
			break
		}
		if err != nil {
			return f.rollback(tgt, err)
		}
		out := make([]schema.Attr, len(offsets))
		for i, off := range offsets {
			out[i] = rec[off]
		}
		if err := f.acc.Insert(tgtID, out); err != nil {
			return f.rollback(tgt, err)
		}
	}
	return nil
}

// Insert converts stringValues by each attribute's declared type and inserts
// the resulting tuple into relName.
func (f *Facade) Insert(relName string, stringValues []string) error {
	id, err := f.ensureOpen(relName)
	if err != nil {
		return err
	}
	attrs, err := f.cat.AttrList(id)
	if err != nil {
		return err
	}
	if len(stringValues) != len(attrs) {
		return errs.ErrNAttrMismatch
	}
	rec := make([]schema.Attr, len(attrs))
	for i, a := range attrs {
		switch a.Type {
		case schema.Number:
			v, err := strconv.ParseFloat(stringValues[i], 64)
			if err != nil {
				return errs.ErrAttrTypeMismatch
			}
			rec[i] = schema.NumAttr(v)
		case schema.String:
			rec[i] = schema.StrAttr(stringValues[i])
		}
	}
	return f.acc.Insert(id, rec)
}

// Join performs a nested-loop equi-join of src1.attr1 = src2.attr2 into a
// new relation tgt, building a B+ tree on attr2 if one does not already
// exist. Any non-join attribute name common to both sources is rejected.
func (f *Facade) Join(src1, src2, tgt, attr1, attr2 string) error {
	id1, err := f.ensureOpen(src1)
	if err != nil {
		return err
	}
	id2, err := f.ensureOpen(src2)
	if err != nil {
		return err
	}
	attrs1, err := f.cat.AttrList(id1)
	if err != nil {
		return err
	}
	attrs2, err := f.cat.AttrList(id2)
	if err != nil {
		return err
	}
	joinAttr1, err := f.cat.GetAttrCatByName(id1, attr1)
	if err != nil {
		return err
	}
	joinAttr2, err := f.cat.GetAttrCatByName(id2, attr2)
	if err != nil {
		return err
	}
	if joinAttr1.Type != joinAttr2.Type {
		return errs.ErrAttrTypeMismatch
	}

	for _, a := range attrs1 {
		if a.AttrName == attr1 {
			continue
		}
		for _, b := range attrs2 {
			if b.AttrName == attr2 {
				continue
			}
			if a.AttrName == b.AttrName {
				return errs.ErrDuplicateAttr
			}
		}
	}

	defs := make([]AttrDef, 0, len(attrs1)+len(attrs2)-1)
	for _, a := range attrs1 {
		defs = append(defs, AttrDef{Name: a.AttrName, Type: a.Type})
	}
	var keepOffsets2 []int
	for _, a := range attrs2 {
		if a.AttrName == attr2 {
			continue
		}
		defs = append(defs, AttrDef{Name: a.AttrName, Type: a.Type})
		keepOffsets2 = append(keepOffsets2, a.AttrOffset)
	}

	tgtID, err := f.CreateRelation(tgt, defs)
	if err != nil {
		return err
	}

	if joinAttr2.RootBlock == -1 {
		if err := f.tree.Create(id2, attr2); err != nil {
			return f.rollback(tgt, err)
		}
		joinAttr2, err = f.cat.GetAttrCatByName(id2, attr2)
		if err != nil {
			return f.rollback(tgt, err)
		}
	}

	if err := f.cat.ResetSearchIndex(id1); err != nil {
		return f.rollback(tgt, err)
	}
	for {
		outerRec, err := f.acc.Project(id1)
		if err == errs.ErrNotFound {
			break
		}
		if err != nil {
			return f.rollback(tgt, err)
		}
		joinVal := outerRec[joinAttr1.AttrOffset]

		if err := f.cat.ResetAttrSearchIndex(id2, attr2); err != nil {
			return f.rollback(tgt, err)
		}
		for {
			innerRec, err := f.acc.Search(id2, attr2, joinVal, schema.EQ)
			if err == errs.ErrNotFound {
				break
			}
			if err != nil {
				return f.rollback(tgt, err)
			}
			combined := make([]schema.Attr, 0, len(defs))
			combined = append(combined, outerRec...)
			for _, off := range keepOffsets2 {
				combined = append(combined, innerRec[off])
			}
			if err := f.acc.Insert(tgtID, combined); err != nil {
				return f.rollback(tgt, err)
			}
		}
	}
	return nil
}

// rollback drops the half-built tgt relation before surfacing cause.
func (f *Facade) rollback(tgt string, cause error) error {
	if err := f.DropRelation(tgt); err != nil {
		f.log.Warnf("algebra: rollback of %q failed: %v (original error: %v)", tgt, err, cause)
	}
	return cause
}
