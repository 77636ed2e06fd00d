package main

import (
	"io/ioutil"

	"github.com/spf13/cobra"
	"github.com/vorteil/blockdb/pkg/algebra"
	"gopkg.in/yaml.v2"
)

// seedFile is the batch-load document shape for the seed command: a list of tables to
// create, index and populate in one non-interactive pass. It exists for
// tests and demos that want a repeatable starting dataset without scripting
// a sequence of individual commands.
type seedFile struct {
	Tables []seedTable `yaml:"tables"`
}

type seedTable struct {
	Name    string       `yaml:"name"`
	Columns []seedColumn `yaml:"columns"`
	Indexes []string     `yaml:"indexes"`
	Rows    [][]string   `yaml:"rows"`
}

type seedColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sf := new(seedFile)
	if err := yaml.Unmarshal(data, sf); err != nil {
		return nil, err
	}
	return sf, nil
}

func applySeed(alg *algebra.Facade, sf *seedFile) error {
	for _, tbl := range sf.Tables {
		defs := make([]algebra.AttrDef, len(tbl.Columns))
		for i, c := range tbl.Columns {
			typ, err := parseAttrType(c.Type)
			if err != nil {
				return err
			}
			defs[i] = algebra.AttrDef{Name: c.Name, Type: typ}
		}
		if _, err := alg.CreateRelation(tbl.Name, defs); err != nil {
			return err
		}
		log.Infof("seed: created relation %q (%d columns)", tbl.Name, len(defs))

		for _, col := range tbl.Indexes {
			if err := alg.CreateIndex(tbl.Name, col); err != nil {
				return err
			}
			log.Infof("seed: indexed %s.%s", tbl.Name, col)
		}

		for _, row := range tbl.Rows {
			if err := alg.Insert(tbl.Name, row); err != nil {
				return err
			}
		}
		log.Infof("seed: inserted %d rows into %q", len(tbl.Rows), tbl.Name)
	}
	return nil
}

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Batch-load a YAML file of table definitions, indexes and rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, err := loadSeedFile(args[0])
		if err != nil {
			return err
		}
		return applySeed(eng.Algebra(), sf)
	},
}
