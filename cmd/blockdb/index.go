package main

import (
	"github.com/spf13/cobra"
)

var createIndexCmd = &cobra.Command{
	Use:   "create-index TABLE COLUMN",
	Short: "Build a B+ tree index on TABLE.COLUMN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Algebra().CreateIndex(args[0], args[1]); err != nil {
			return err
		}
		log.Infof("created index on %s.%s", args[0], args[1])
		return nil
	},
}

var dropIndexCmd = &cobra.Command{
	Use:   "drop-index TABLE COLUMN",
	Short: "Destroy the B+ tree index on TABLE.COLUMN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Algebra().DropIndex(args[0], args[1]); err != nil {
			return err
		}
		log.Infof("dropped index on %s.%s", args[0], args[1])
		return nil
	},
}
