package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vorteil/blockdb/pkg/errs"
	"github.com/vorteil/blockdb/pkg/schema"
)

var insertCmd = &cobra.Command{
	Use:   "insert TABLE VALUE...",
	Short: "INSERT INTO TABLE VALUES (...)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, values := args[0], args[1:]
		if err := eng.Algebra().Insert(table, values); err != nil {
			return err
		}
		log.Infof("inserted 1 row into %q", table)
		return nil
	},
}

var (
	flagSelectColumns string
	flagSelectWhere   string
)

var selectCmd = &cobra.Command{
	Use:   "select TABLE",
	Short: "SELECT [columns] FROM TABLE [WHERE column op value]",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]
		srcID, err := eng.Algebra().OpenRelation(table)
		if err != nil {
			return err
		}

		current := table
		var cleanup []string
		defer func() {
			for i := len(cleanup) - 1; i >= 0; i-- {
				if err := eng.Algebra().DropRelation(cleanup[i]); err != nil {
					log.Warnf("failed to drop temporary relation %q: %v", cleanup[i], err)
				}
			}
		}()

		if flagSelectWhere != "" {
			col, op, val, err := parseWhere(srcID, flagSelectWhere)
			if err != nil {
				return err
			}
			tmp := tempRelationName("select")
			if err := eng.Algebra().Select(table, tmp, col, op, val); err != nil {
				return err
			}
			cleanup = append(cleanup, tmp)
			current = tmp
		}

		var columns []string
		if flagSelectColumns == "" {
			attrs, err := eng.Catalog().AttrList(srcID)
			if err != nil {
				return err
			}
			for _, a := range attrs {
				columns = append(columns, a.AttrName)
			}
		} else {
			columns = strings.Split(flagSelectColumns, ",")
		}

		out := tempRelationName("project")
		if err := eng.Algebra().ProjectAttrs(current, out, columns); err != nil {
			return err
		}
		cleanup = append(cleanup, out)

		return printRelation(out)
	},
}

func init() {
	selectCmd.Flags().StringVar(&flagSelectColumns, "columns", "", "comma-separated column list (default: all columns)")
	selectCmd.Flags().StringVar(&flagSelectWhere, "where", "", `predicate "column op value", e.g. "age > 18"`)
}

// parseWhere splits a "column op value" predicate and converts value
// according to column's declared type.
func parseWhere(relID int, predicate string) (string, schema.Op, schema.Attr, error) {
	fields := strings.Fields(predicate)
	if len(fields) != 3 {
		return "", 0, schema.Attr{}, fmt.Errorf(`invalid predicate %q, expected "column op value"`, predicate)
	}
	col, opStr, valStr := fields[0], fields[1], fields[2]
	op, err := parseOp(opStr)
	if err != nil {
		return "", 0, schema.Attr{}, err
	}
	attr, err := eng.Catalog().GetAttrCatByName(relID, col)
	if err != nil {
		return "", 0, schema.Attr{}, err
	}
	val, err := parseAttrValue(valStr, attr.Type)
	if err != nil {
		return "", 0, schema.Attr{}, err
	}
	return col, op, val, nil
}

var joinCmd = &cobra.Command{
	Use:   "join SRC1 SRC2 TARGET ATTR1 ATTR2",
	Short: "SELECT * FROM SRC1 JOIN SRC2 WHERE SRC1.ATTR1 = SRC2.ATTR2, materialized into TARGET",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		src1, src2, target, attr1, attr2 := args[0], args[1], args[2], args[3], args[4]
		if err := eng.Algebra().Join(src1, src2, target, attr1, attr2); err != nil {
			return err
		}
		log.Infof("joined %q and %q into %q", src1, src2, target)
		return printRelation(target)
	},
}

func printRelation(name string) error {
	id, err := eng.Algebra().OpenRelation(name)
	if err != nil {
		return err
	}
	attrs, err := eng.Catalog().AttrList(id)
	if err != nil {
		return err
	}
	names := make([]string, len(attrs))
	typs := make([]schema.AttrType, len(attrs))
	for i, a := range attrs {
		names[i] = a.AttrName
		typs[i] = a.Type
	}

	if err := eng.Catalog().ResetSearchIndex(id); err != nil {
		return err
	}
	var rows [][]schema.Attr
	for {
		rec, err := eng.Access().Project(id)
		if err == errs.ErrNotFound {
			break
		}
		if err != nil {
			return err
		}
		rows = append(rows, rec)
	}
	printRows(names, typs, rows)
	return nil
}

func tempRelationName(op string) string {
	return fmt.Sprintf("_tmp_%s_%d", op, time.Now().UnixNano())
}
