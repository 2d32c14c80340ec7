package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"github.com/olekukonko/tablewriter"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

var deleteRun string

func runs(cmd *commander.Command, args []string) error {
	env, err := setup(storeDir)
	if err != nil {
		return err
	}
	defer env.Close()

	if deleteRun != "" {
		return env.service.DeleteRun(deleteRun)
	}

	if len(args) > 0 {
		run, err := env.service.GetRun(strings.Join(args, " "))
		if err != nil {
			return err
		}
		printRun(run)
		if plot {
			printCurve(run)
		}
		return nil
	}

	list, err := env.service.ListRuns()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Status", "Model", "Initializer", "Trained", "Accuracy", "Created"})
	for _, run := range list {
		accuracy := models.NoData
		if run.Report != nil {
			accuracy = run.Report.OverallAccuracy.String()
		}
		table.Append([]string{
			run.ID,
			run.Name,
			string(run.Status),
			string(run.ModelState),
			string(run.TrainingConfig.WeightsInitializer),
			fmt.Sprintf("%d/%d", run.TrainCount, run.RecordCount),
			accuracy,
			run.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func runsCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runs,
		UsageLine: "runs [-store dir] [-delete id] [<run id>]",
		Short:     "list stored training runs or show one",
		Long: `
list stored training runs, newest first, or show one in detail

	$ ./lvq runs
	$ ./lvq runs -plot <run id>
`,
		Flag: *flag.NewFlagSet("runs", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&storeDir, "store", "", "run store directory (overrides STORAGE_DIR)")
	cmd.Flag.StringVar(&deleteRun, "delete", "", "delete a finished run and exit")
	cmd.Flag.BoolVar(&plot, "plot", false, "plot the learning curve of the shown run")
	return cmd
}
