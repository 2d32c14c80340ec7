package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"github.com/olekukonko/tablewriter"

	"github.com/mimir-aip/mimir-lvq/pkg/config"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
	"github.com/mimir-aip/mimir-lvq/pkg/scheduler"
)

var (
	cronExpr       string
	listSchedules  bool
	removeSchedule string
)

func schedule(cmd *commander.Command, args []string) error {
	runDef, err := loadRun(runFile)
	if err != nil {
		return err
	}

	env, err := setup(storeDir)
	if err != nil {
		return err
	}
	defer env.Close()

	retrain := func(ctx context.Context, s *models.ScheduledRetrain) (string, error) {
		scheduled, err := runForSchedule(s)
		if err != nil {
			return "", err
		}
		run, err := trainOnce(ctx, env, scheduled, s.DataSource)
		if err != nil {
			return "", err
		}
		if run.Status == models.RunStatusFailed {
			return run.ID, fmt.Errorf("run failed: %s", run.FailureReason)
		}
		return run.ID, nil
	}
	sched := scheduler.NewService(env.store, retrain, env.logger)

	switch {
	case listSchedules:
		schedules, err := sched.List()
		if err != nil {
			return err
		}
		printSchedules(schedules)
		return nil
	case removeSchedule != "":
		return sched.Remove(removeSchedule)
	}

	if len(args) > 0 {
		expr := cronExpr
		if expr == "" {
			expr = runDef.Schedule
		}
		if expr == "" {
			return fmt.Errorf("%s: no cron expression given with -cron or in the run file", cmd.Name())
		}
		runPath, err := absPath(runFile)
		if err != nil {
			return err
		}
		dataPath, err := absPath(strings.Join(args, " "))
		if err != nil {
			return err
		}
		added, err := sched.Add(runDef.Name, expr, dataPath, runPath)
		if err != nil {
			return err
		}
		fmt.Printf("schedule %s: %q next at %s\n", added.ID, added.CronSchedule, added.NextRun.Format("2006-01-02 15:04:05 MST"))
	}

	if err := sched.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	sched.Stop()
	return nil
}

// runForSchedule loads the run definition stored with a schedule, so every
// retrain uses the layout the schedule was added with
func runForSchedule(s *models.ScheduledRetrain) (*config.RunFile, error) {
	run, err := loadRun(s.RunFile)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", s.Name, err)
	}
	return run, nil
}

// absPath resolves a path against the working directory; empty stays empty
func absPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return filepath.Abs(path)
}

func printSchedules(schedules []*models.ScheduledRetrain) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Cron", "Data", "Run File", "Enabled", "Last Run", "Last Error"})
	for _, s := range schedules {
		lastRun := "-"
		if s.LastRun != nil {
			lastRun = s.LastRun.Format("2006-01-02 15:04")
		}
		table.Append([]string{
			s.ID,
			s.Name,
			s.CronSchedule,
			s.DataSource,
			s.RunFile,
			fmt.Sprint(s.Enabled),
			lastRun,
			s.LastError,
		})
	}
	table.Render()
}

func scheduleCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       schedule,
		UsageLine: "schedule [-cron expr] [-config run.yaml] [-store dir] [<data file>]",
		Short:     "retrain periodically on a cron schedule",
		Long: `
retrain periodically on a cron schedule

	$ ./lvq schedule -cron "0 3 * * *" -config iris.yaml data/iris.data

With a data file a new schedule is stored together with the run file, which
is reloaded on every retrain. The command then runs every enabled stored
schedule until interrupted. The expression falls back to the schedule key
of the run file.

	$ ./lvq schedule -list
	$ ./lvq schedule -remove <schedule id>
`,
		Flag: *flag.NewFlagSet("schedule", flag.ExitOnError),
	}
	cmd.Flag.StringVar(&cronExpr, "cron", "", "standard five-field cron expression")
	cmd.Flag.StringVar(&runFile, "config", "", "YAML run definition")
	cmd.Flag.StringVar(&storeDir, "store", "", "run store directory (overrides STORAGE_DIR)")
	cmd.Flag.BoolVar(&listSchedules, "list", false, "list stored schedules and exit")
	cmd.Flag.StringVar(&removeSchedule, "remove", "", "delete a stored schedule and exit")
	return cmd
}
