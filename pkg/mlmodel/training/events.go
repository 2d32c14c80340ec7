package training

import (
	"context"
	"fmt"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// Event is a lifecycle message posted by the training worker.
// Exactly one event per run has Finished set and it is always the last one.
type Event struct {
	RunID        string
	Epoch        int
	LearnRate    float64
	SquaredError float64
	Finished     bool
	Halted       bool
	Err          error

	// Model may only be queried once Finished is set
	Model Model
	// EvaluationSet holds the normalized evaluation records, final event only
	EvaluationSet []models.DataRecord
	Scope         models.EvaluationScope
	Mapping       *models.LabelMapping
}

// Observer reacts to training progress. Returning an error aborts the run.
type Observer interface {
	OnUpdate(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ctx context.Context, ev Event) error

// OnUpdate calls f(ctx, ev)
func (f ObserverFunc) OnUpdate(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

func observerName(obs Observer) string {
	if named, ok := obs.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", obs)
}
