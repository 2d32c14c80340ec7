package evaluation

import (
	"context"
	"fmt"
	"sync"

	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/mlmodel/training"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// Sink receives the report of a finished run
type Sink func(ctx context.Context, runID string, report *models.EvaluationReport) error

// Observer evaluates the model once the final training event arrives
type Observer struct {
	engine *Engine
	logger *logging.Logger
	sink   Sink

	mu   sync.Mutex
	last *models.EvaluationReport
}

// NewObserver creates an evaluation observer; sink may be nil
func NewObserver(engine *Engine, sink Sink) *Observer {
	return &Observer{
		engine: engine,
		logger: engine.logger,
		sink:   sink,
	}
}

// Name identifies the observer in failure reports
func (o *Observer) Name() string {
	return "evaluation"
}

// Report returns the last computed report, nil before any run finished
func (o *Observer) Report() *models.EvaluationReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// OnUpdate ignores progress events and runs that ended with an error
func (o *Observer) OnUpdate(ctx context.Context, ev training.Event) error {
	if !ev.Finished || ev.Err != nil {
		return nil
	}

	report, err := o.engine.Evaluate(ev.Model, ev.EvaluationSet, ev.Mapping)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	report.Scope = ev.Scope

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()

	o.logBanner(ev, report)

	if o.sink != nil {
		if err := o.sink(ctx, ev.RunID, report); err != nil {
			return fmt.Errorf("failed to deliver evaluation report: %w", err)
		}
	}
	return nil
}

func (o *Observer) logBanner(ev training.Event, report *models.EvaluationReport) {
	logger := o.logger
	if ev.RunID != "" {
		logger = logger.With(logging.String("run_id", ev.RunID))
	}

	logger.Info("Evaluation finished",
		logging.String("scope", string(report.Scope)),
		logging.Int("epochs", ev.Epoch),
		logging.Bool("halted", ev.Halted),
		logging.Int("records", report.Total),
		logging.String("accuracy", report.OverallAccuracy.String()))
	for _, c := range report.PerClass {
		logger.Info("Class accuracy",
			logging.String("class", c.LabelText),
			logging.Int("records", c.Total),
			logging.String("accuracy", c.Accuracy.String()))
	}
}
