package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"gopkg.in/yaml.v3"

	"github.com/mimir-aip/mimir-lvq/pkg/dataset"
)

var recommendOut string

func recommend(cmd *commander.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: missing data file", cmd.Name())
	}
	dataPath := strings.Join(args, " ")

	runDef, err := loadRun(runFile)
	if err != nil {
		return err
	}
	opts, err := runDef.LoadOptions()
	if err != nil {
		return err
	}
	records, err := dataset.LoadFile(dataPath, opts)
	if err != nil {
		return err
	}

	env, err := setup(storeDir)
	if err != nil {
		return err
	}
	defer env.Close()

	rec, err := env.service.RecommendConfig(records, opts.Mapping)
	if err != nil {
		return err
	}

	fmt.Printf("recommended: %s with %s (score %d)\n", rec.Recommended, rec.Normalization, rec.Score)
	fmt.Println(rec.Reasoning)

	if recommendOut == "" {
		return nil
	}
	runDef.Training = rec.TrainingConfig
	data, err := yaml.Marshal(runDef)
	if err != nil {
		return fmt.Errorf("failed to encode run file: %w", err)
	}
	if err := os.WriteFile(recommendOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	fmt.Printf("run file written to %s\n", recommendOut)
	return nil
}

func recommendCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       recommend,
		UsageLine: "recommend [-config run.yaml] [-out run.yaml] <data file>",
		Short:     "recommend a sampling strategy and normalization for a data file",
		Long: `
recommend a sampling strategy and normalization for a data file

	$ ./lvq recommend -out tuned.yaml data/iris.data
	$ ./lvq train -config tuned.yaml data/iris.data
`,
		Flag: *flag.NewFlagSet("recommend", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&runFile, "config", "", "YAML run definition describing the data layout")
	cmd.Flag.StringVar(&storeDir, "store", "", "run store directory (overrides STORAGE_DIR)")
	cmd.Flag.StringVar(&recommendOut, "out", "", "write the recommended run definition to this file")
	return cmd
}
