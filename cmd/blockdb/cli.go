package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vorteil/blockdb/pkg/dblog"
	"github.com/vorteil/blockdb/pkg/diskio"
	"github.com/vorteil/blockdb/pkg/engine"
	"github.com/vorteil/blockdb/pkg/schema"
)

var (
	flagVerbose        bool
	flagDebug          bool
	flagBlockSize      int
	flagDiskBlocks     int
	flagBufferCapacity int
)

var log dblog.Logger

// dev and eng are the device and engine every subcommand operates against,
// opened in rootCmd's PersistentPreRunE and closed in PersistentPostRunE.
var dev *diskio.FileDevice
var eng *engine.Engine

var rootCmd = &cobra.Command{
	Use:   "blockdb",
	Short: "blockdb's command-line interface",
	Long: `blockdb's command-line interface manages relations, indexes and records
on a single block-structured database file.`,
}

func init() {
	def := schema.DefaultGeometry()
	rootCmd.PersistentFlags().String("db", "blockdb.img", "path to the database file")
	rootCmd.PersistentFlags().IntVar(&flagBlockSize, "blocksize", def.BlockSize, "block size in bytes of the database file")
	rootCmd.PersistentFlags().IntVar(&flagDiskBlocks, "diskblocks", def.DiskBlocks, "number of blocks in the database file (the file is resized to this many blocks when opened)")
	rootCmd.PersistentFlags().IntVar(&flagBufferCapacity, "buffercapacity", def.BufferCapacity, "number of frames the buffer pool keeps resident")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
}

func commandInit() {

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		log = dblog.NewCLI(flagDebug, flagVerbose)

		path := viper.GetString("db")
		geom := schema.Geometry{BlockSize: flagBlockSize, DiskBlocks: flagDiskBlocks, BufferCapacity: flagBufferCapacity}

		d, err := diskio.OpenFileDevice(path, geom.DiskBlocks, geom.BlockSize)
		if err != nil {
			return err
		}
		dev = d

		e, err := engine.Open(dev, geom, log)
		if err != nil {
			dev.Close()
			return err
		}
		eng = e
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if eng == nil {
			return nil
		}
		if err := eng.Close(); err != nil {
			return err
		}
		return dev.Close()
	}

	rootCmd.AddCommand(createTableCmd)
	rootCmd.AddCommand(dropTableCmd)
	rootCmd.AddCommand(openTableCmd)
	rootCmd.AddCommand(closeTableCmd)
	rootCmd.AddCommand(renameTableCmd)
	rootCmd.AddCommand(renameColumnCmd)
	rootCmd.AddCommand(createIndexCmd)
	rootCmd.AddCommand(dropIndexCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(seedCmd)
}
