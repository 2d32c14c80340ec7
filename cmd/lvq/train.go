package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"github.com/guptarohit/asciigraph"

	"github.com/mimir-aip/mimir-lvq/pkg/config"
	"github.com/mimir-aip/mimir-lvq/pkg/dataset"
	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

var (
	runFile  string
	storeDir string
	plot     bool
)

func train(cmd *commander.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: missing data file", cmd.Name())
	}
	dataPath := strings.Join(args, " ")

	runDef, err := loadRun(runFile)
	if err != nil {
		return err
	}

	env, err := setup(storeDir)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := env.cfg.TrainTimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	run, err := trainOnce(ctx, env, runDef, dataPath)
	if err != nil {
		return err
	}

	printRun(run)
	if plot {
		printCurve(run)
	}
	if run.Status == models.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", run.ID, run.FailureReason)
	}
	return nil
}

// trainOnce loads the data file, trains a new run on it and blocks until the run is recorded.
// Cancelling ctx halts training; the halted model is still evaluated.
func trainOnce(ctx context.Context, env *environment, runDef *config.RunFile, dataPath string) (*models.TrainingRun, error) {
	opts, err := runDef.LoadOptions()
	if err != nil {
		return nil, err
	}
	records, err := dataset.LoadFile(dataPath, opts)
	if err != nil {
		return nil, err
	}
	env.logger.Info("Loaded data",
		logging.String("path", dataPath),
		logging.Int("records", len(records)),
		logging.Int("classes", opts.Mapping.Len()),
	)

	cfg := runDef.Training
	run, err := env.service.CreateRun(&models.RunCreateRequest{
		Name:           runDef.Name,
		DataSource:     dataPath,
		TrainingConfig: &cfg,
	})
	if err != nil {
		return nil, err
	}

	if _, err := env.service.StartTraining(ctx, run.ID, records, opts.Mapping); err != nil {
		return nil, err
	}

	// The service records the outcome even when ctx is cancelled, so wait unbounded
	finished, err := env.service.WaitRun(context.Background(), run.ID)
	if finished == nil {
		return nil, err
	}
	if err != nil {
		env.logger.Warn("Training run ended with error", logging.String("run_id", run.ID), logging.Error(err))
	}
	return finished, nil
}

func printRun(run *models.TrainingRun) {
	fmt.Printf("run:       %s (%s)\n", run.ID, run.Name)
	fmt.Printf("status:    %s\n", run.Status)
	fmt.Printf("model:     %s\n", run.ModelState)
	fmt.Printf("trained:   %d of %d records\n", run.TrainCount, run.RecordCount)
	if n := len(run.LearningCurve); n > 0 {
		last := run.LearningCurve[n-1]
		fmt.Printf("epochs:    %d (learn rate %.5f, squared error %.4f)\n", last.Epoch, last.LearnRate, last.SquaredError)
	}

	report := run.Report
	if report == nil {
		return
	}
	fmt.Printf("evaluated: %d records (%s)\n", report.Total, report.Scope)
	fmt.Printf("accuracy:  %s\n", report.OverallAccuracy)
	for _, c := range report.PerClass {
		fmt.Printf("  %-20s %8s  (%d/%d)\n", c.LabelText, c.Accuracy, c.Correct, c.Total)
	}
	if report.Summary != "" {
		fmt.Println()
		fmt.Println(report.Summary)
	}
}

func printCurve(run *models.TrainingRun) {
	if len(run.LearningCurve) < 2 {
		return
	}
	errs := make([]float64, len(run.LearningCurve))
	for i, p := range run.LearningCurve {
		errs[i] = p.SquaredError
	}
	fmt.Println()
	fmt.Println(asciigraph.Plot(errs, asciigraph.Height(10), asciigraph.Caption("squared error per report")))
}

func trainCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       train,
		UsageLine: "train [-config run.yaml] [-store dir] <data file>",
		Short:     "train and evaluate a classifier on a delimited data file",
		Long: `
train and evaluate a classifier on a delimited data file

	$ ./lvq train -config iris.yaml data/iris.data

Without -config the iris layout and default hyperparameters are used.
Interrupting the command halts training at the next epoch boundary and
evaluates the model trained so far.
`,
		Flag: *flag.NewFlagSet("train", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&runFile, "config", "", "YAML run definition")
	cmd.Flag.StringVar(&storeDir, "store", "", "run store directory (overrides STORAGE_DIR)")
	cmd.Flag.BoolVar(&plot, "plot", false, "plot the learning curve")
	return cmd
}
