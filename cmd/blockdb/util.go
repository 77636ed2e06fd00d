package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sisatech/tablewriter"
	"github.com/vorteil/blockdb/pkg/algebra"
	"github.com/vorteil/blockdb/pkg/schema"
)

// parseAttrDefs parses a comma-separated "name:type,name:type" column list,
// as used by create-table's --columns flag.
func parseAttrDefs(spec string) ([]algebra.AttrDef, error) {
	parts := strings.Split(spec, ",")
	defs := make([]algebra.AttrDef, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		nameType := strings.SplitN(p, ":", 2)
		if len(nameType) != 2 {
			return nil, fmt.Errorf("invalid column spec %q, expected name:type", p)
		}
		typ, err := parseAttrType(nameType[1])
		if err != nil {
			return nil, err
		}
		defs = append(defs, algebra.AttrDef{Name: strings.TrimSpace(nameType[0]), Type: typ})
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no columns specified")
	}
	return defs, nil
}

func parseAttrType(s string) (schema.AttrType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number", "num", "float":
		return schema.Number, nil
	case "string", "str", "text":
		return schema.String, nil
	default:
		return 0, fmt.Errorf("unknown column type %q, expected number or string", s)
	}
}

func parseOp(s string) (schema.Op, error) {
	switch s {
	case "=", "==":
		return schema.EQ, nil
	case "!=", "<>":
		return schema.NE, nil
	case "<":
		return schema.LT, nil
	case "<=":
		return schema.LE, nil
	case ">":
		return schema.GT, nil
	case ">=":
		return schema.GE, nil
	default:
		return 0, fmt.Errorf("unknown operator %q, expected one of = != < <= > >=", s)
	}
}

// parseAttrValue decodes a WHERE literal according to the target attribute's
// declared type, the same conversion Insert applies to row values.
func parseAttrValue(s string, typ schema.AttrType) (schema.Attr, error) {
	if typ == schema.Number {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return schema.Attr{}, fmt.Errorf("value %q is not a number", s)
		}
		return schema.NumAttr(v), nil
	}
	return schema.StrAttr(s), nil
}

// printRows renders a relation's rows as a left-aligned, borderless grid the
// way the teacher's PlainTable prints tabular CLI output.
func printRows(names []string, typs []schema.AttrType, rows [][]schema.Attr) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeader(names)

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if typs[i] == schema.Number {
				cells[i] = strconv.FormatFloat(v.Num, 'g', -1, 64)
			} else {
				cells[i] = v.Str
			}
		}
		table.Append(cells)
	}
	table.Render()
}
