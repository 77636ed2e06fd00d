package main

import (
	"github.com/spf13/cobra"
)

var flagColumns string

var createTableCmd = &cobra.Command{
	Use:   "create-table NAME",
	Short: "Create a relation with the given columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := parseAttrDefs(flagColumns)
		if err != nil {
			return err
		}
		if _, err := eng.Algebra().CreateRelation(args[0], defs); err != nil {
			return err
		}
		log.Infof("created relation %q", args[0])
		return nil
	},
}

func init() {
	createTableCmd.Flags().StringVar(&flagColumns, "columns", "", "comma-separated name:type column list, e.g. id:number,name:string")
	createTableCmd.MarkFlagRequired("columns")
}

var dropTableCmd = &cobra.Command{
	Use:   "drop-table NAME",
	Short: "Drop a relation and release its blocks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Algebra().DropRelation(args[0]); err != nil {
			return err
		}
		log.Infof("dropped relation %q", args[0])
		return nil
	},
}

var openTableCmd = &cobra.Command{
	Use:   "open-table NAME",
	Short: "Open a relation, loading its attribute catalog into the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := eng.Algebra().OpenRelation(args[0]); err != nil {
			return err
		}
		log.Infof("opened relation %q", args[0])
		return nil
	},
}

var closeTableCmd = &cobra.Command{
	Use:   "close-table NAME",
	Short: "Close an open relation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := eng.Catalog().IsOpen(args[0])
		if !ok {
			log.Infof("relation %q is not open", args[0])
			return nil
		}
		if err := eng.Algebra().CloseRelation(id); err != nil {
			return err
		}
		log.Infof("closed relation %q", args[0])
		return nil
	},
}

var renameTableCmd = &cobra.Command{
	Use:   "rename-table OLD NEW",
	Short: "ALTER TABLE OLD RENAME TO NEW",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Algebra().RenameRelation(args[0], args[1]); err != nil {
			return err
		}
		log.Infof("renamed relation %q to %q", args[0], args[1])
		return nil
	},
}

var renameColumnCmd = &cobra.Command{
	Use:   "rename-column TABLE OLD NEW",
	Short: "ALTER TABLE TABLE RENAME COLUMN OLD TO NEW",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Algebra().RenameAttribute(args[0], args[1], args[2]); err != nil {
			return err
		}
		log.Infof("renamed %s.%s to %s.%s", args[0], args[1], args[0], args[2])
		return nil
	},
}
