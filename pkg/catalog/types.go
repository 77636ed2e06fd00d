package catalog

import "github.com/vorteil/blockdb/pkg/schema"

// Fixed, well-known layout of the self-describing catalogs. RelCat and
// AttrCat are relations like any other, and Format writes ATTRCAT rows
// describing their columns, but the layout used to decode their own rows is
// compiled in, the same way the reference implementation hardcodes
// RELCAT_NO_ATTRS / ATTRCAT_NO_ATTRS.
const (
	RelCatName  = "RELCAT"
	AttrCatName = "ATTRCAT"

	RelCatRelID  = 0
	AttrCatRelID = 1

	RelCatBlock  = 4
	AttrCatBlock = 5

	MaxOpen = 12

	relCatNumAttrs  = 6
	attrCatNumAttrs = 6
)

// relCatTypes is the column type list of RelCat: relName, numAttrs, numRecs,
// firstBlk, lastBlk, numSlotsPerBlk.
var relCatTypes = []schema.AttrType{
	schema.String, schema.Number, schema.Number, schema.Number, schema.Number, schema.Number,
}

// attrCatTypes is the column type list of AttrCat: relName, attrName, type,
// primaryFlag, rootBlock, attrOffset.
var attrCatTypes = []schema.AttrType{
	schema.String, schema.String, schema.Number, schema.Number, schema.Number, schema.Number,
}

// RelCatEntry is the parsed form of one RelCat row.
type RelCatEntry struct {
	RelName        string
	NumAttrs       int
	NumRecs        int
	FirstBlk       int
	LastBlk        int
	NumSlotsPerBlk int
}

func relCatToRecord(e RelCatEntry) []schema.Attr {
	return []schema.Attr{
		schema.StrAttr(e.RelName),
		schema.NumAttr(float64(e.NumAttrs)),
		schema.NumAttr(float64(e.NumRecs)),
		schema.NumAttr(float64(e.FirstBlk)),
		schema.NumAttr(float64(e.LastBlk)),
		schema.NumAttr(float64(e.NumSlotsPerBlk)),
	}
}

func recordToRelCat(rec []schema.Attr) RelCatEntry {
	return RelCatEntry{
		RelName:        rec[0].Str,
		NumAttrs:       int(rec[1].Num),
		NumRecs:        int(rec[2].Num),
		FirstBlk:       int(rec[3].Num),
		LastBlk:        int(rec[4].Num),
		NumSlotsPerBlk: int(rec[5].Num),
	}
}

// AttrCatEntry is the parsed form of one AttrCat row, plus the bookkeeping
// the catalog cache needs to track it as a node in a relation's attribute
// list: where it physically lives, whether it has been mutated, and the
// per-attribute B+ tree search cursor (block, index).
type AttrCatEntry struct {
	RelName     string
	AttrName    string
	Type        schema.AttrType
	PrimaryFlag int
	RootBlock   int
	AttrOffset  int

	RecID  schema.RecordID
	Dirty  bool
	Cursor schema.RecordID

	Next *AttrCatEntry
}

func attrCatToRecord(e AttrCatEntry) []schema.Attr {
	return []schema.Attr{
		schema.StrAttr(e.RelName),
		schema.StrAttr(e.AttrName),
		schema.NumAttr(float64(e.Type)),
		schema.NumAttr(float64(e.PrimaryFlag)),
		schema.NumAttr(float64(e.RootBlock)),
		schema.NumAttr(float64(e.AttrOffset)),
	}
}

func recordToAttrCat(rec []schema.Attr) AttrCatEntry {
	return AttrCatEntry{
		RelName:     rec[0].Str,
		AttrName:    rec[1].Str,
		Type:        schema.AttrType(int32(rec[2].Num)),
		PrimaryFlag: int(rec[3].Num),
		RootBlock:   int(rec[4].Num),
		AttrOffset:  int(rec[5].Num),
	}
}
