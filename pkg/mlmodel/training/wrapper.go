package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/mimir-aip/mimir-lvq/pkg/dataset"
	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

var (
	// ErrRunActive is returned when Start is called while a run is in progress
	ErrRunActive = errors.New("a training run is already active")
	// ErrRunFinished is returned when Start is called on a wrapper whose run has ended
	ErrRunFinished = errors.New("training run already finished")
	// ErrNotStarted is returned by Wait before Start was called
	ErrNotStarted = errors.New("training run not started")
)

// ModelWrapper owns one model, its configuration and the full input record set,
// and runs preprocessing, codebook initialization and training off the caller's goroutine.
type ModelWrapper struct {
	cfg    *Config
	model  *LVQ
	runID  string
	logger *logging.Logger

	mu         sync.Mutex
	status     models.RunStatus
	selected   []int
	trainCount int
	err        error
	done       chan struct{}
}

// WrapperOption customizes a ModelWrapper
type WrapperOption func(*ModelWrapper)

// WithRunID tags every event and log entry with a run id
func WithRunID(id string) WrapperOption {
	return func(w *ModelWrapper) { w.runID = id }
}

// WithLogger sets the logger, the global logger is used otherwise
func WithLogger(l *logging.Logger) WrapperOption {
	return func(w *ModelWrapper) { w.logger = l }
}

// NewModelWrapper creates a wrapper in the configured state
func NewModelWrapper(cfg *Config, opts ...WrapperOption) (*ModelWrapper, error) {
	if cfg == nil {
		return nil, &models.ConfigurationError{Reason: "configuration is required"}
	}
	model, err := NewLVQ(cfg.params.DistanceMetric)
	if err != nil {
		return nil, err
	}

	w := &ModelWrapper{
		cfg:    cfg,
		model:  model,
		status: models.RunStatusConfigured,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.GetLogger()
	}
	w.logger = w.logger.With(logging.Component("trainer"))
	if w.runID != "" {
		w.logger = w.logger.With(logging.String("run_id", w.runID))
	}
	return w, nil
}

// Model returns the model; query it only after the final event
func (w *ModelWrapper) Model() *LVQ {
	return w.model
}

// Config returns the run configuration
func (w *ModelWrapper) Config() *Config {
	return w.cfg
}

// InputRecords returns every input record, including those not drawn for training
func (w *ModelWrapper) InputRecords() []models.DataRecord {
	return w.cfg.Records()
}

// TrainCount returns how many records participated in training
func (w *ModelWrapper) TrainCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.trainCount
}

// TrainingIndices returns the indices of the records drawn for training
func (w *ModelWrapper) TrainingIndices() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.selected...)
}

// Status returns the lifecycle state of the run
func (w *ModelWrapper) Status() models.RunStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *ModelWrapper) setStatus(s models.RunStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = s
}

// Halt asks a live run to stop at the next epoch boundary.
// It is safe from any goroutine and does nothing before Start or after completion.
func (w *ModelWrapper) Halt() {
	w.mu.Lock()
	active := w.status == models.RunStatusPreprocessing || w.status == models.RunStatusTraining
	w.mu.Unlock()
	if active {
		w.model.requestHalt()
	}
}

// Wait blocks until the run has finished and returns its error
func (w *ModelWrapper) Wait() error {
	if w.Status() == models.RunStatusConfigured {
		return ErrNotStarted
	}
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed once the run reaches a terminal state
func (w *ModelWrapper) Done() <-chan struct{} {
	return w.done
}

// PreprocessInitializeAndTrain runs the whole pipeline and blocks until it ends.
// Call it on its own goroutine to keep the caller unblocked, or use Start.
func (w *ModelWrapper) PreprocessInitializeAndTrain(ctx context.Context) error {
	events, err := w.Start(ctx)
	if err != nil {
		return err
	}
	for range events {
	}
	return w.Wait()
}

// Start draws the training subset, then launches the worker and returns immediately.
// Sampling errors are returned here. Events arrive in order on the returned channel,
// which is closed after the final event; the channel is buffered so it may be ignored.
func (w *ModelWrapper) Start(ctx context.Context) (<-chan Event, error) {
	w.mu.Lock()
	switch {
	case w.status == models.RunStatusPreprocessing || w.status == models.RunStatusTraining:
		w.mu.Unlock()
		return nil, ErrRunActive
	case w.status.Terminal():
		w.mu.Unlock()
		return nil, ErrRunFinished
	}

	params := w.cfg.params
	rng := dataset.NewRand(params.RandomSeed)
	selected, err := dataset.Select(params.WeightsInitializer, w.cfg.records, params.TrainSamples, rng)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.selected = selected
	w.trainCount = len(selected)
	w.status = models.RunStatusPreprocessing
	w.model.begin()
	w.mu.Unlock()

	w.logger.Info("Starting training run",
		logging.Int("records", len(w.cfg.records)),
		logging.Int("train_count", len(selected)),
		logging.String("initializer", string(params.WeightsInitializer)))

	raw := make(chan Event)
	out := make(chan Event, w.cfg.maxEvents())
	go func() {
		defer close(raw)
		w.run(ctx, rng, selected, raw)
	}()
	go w.dispatch(ctx, raw, out)

	return out, nil
}

// run is the training worker: preprocess, initialize the codebook, train
func (w *ModelWrapper) run(ctx context.Context, rng *rand.Rand, selected []int, raw chan<- Event) {
	params := w.cfg.params
	final := Event{
		RunID:     w.runID,
		Finished:  true,
		Model:     w.model,
		Mapping:   w.cfg.mapping,
		Scope:     params.EvaluationScope,
		LearnRate: params.LearnRate,
	}

	training := make([]models.DataRecord, len(selected))
	for i, idx := range selected {
		training[i] = w.cfg.records[idx]
	}

	normalizer, err := dataset.FitNormalizer(params.Normalization, training)
	if err != nil {
		final.Err = fmt.Errorf("preprocessing failed: %w", err)
		w.model.end()
		raw <- final
		return
	}
	trainSet := normalizer.Apply(training)

	evalSource := w.cfg.records
	if params.EvaluationScope == models.EvaluateHeldOut {
		held := dataset.HeldOut(len(w.cfg.records), selected)
		evalSource = make([]models.DataRecord, len(held))
		for i, idx := range held {
			evalSource[i] = w.cfg.records[idx]
		}
	}
	final.EvaluationSet = normalizer.Apply(evalSource)

	if err := w.model.initialize(trainSet, params.PrototypesPerClass); err != nil {
		final.Err = fmt.Errorf("weights initialization failed: %w", err)
		w.model.end()
		raw <- final
		return
	}

	w.setStatus(models.RunStatusTraining)
	w.logger.Debug("Codebook initialized", logging.Int("prototypes", len(w.model.codebook)))

	res := w.model.train(ctx, trainSet, params, rng, func(epoch int, learnRate, squaredError float64) {
		w.logger.Info("Training progress",
			logging.Int("epoch", epoch),
			logging.Float("learn_rate", learnRate),
			logging.Float("squared_error", squaredError))
		raw <- Event{
			RunID:        w.runID,
			Epoch:        epoch,
			LearnRate:    learnRate,
			SquaredError: squaredError,
			Model:        w.model,
			Mapping:      w.cfg.mapping,
		}
	})

	final.Epoch = res.epochs
	final.LearnRate = res.learnRate
	final.SquaredError = res.squaredError
	final.Halted = res.halted
	w.logger.Info("Training finished",
		logging.Int("epochs", res.epochs),
		logging.Float("learn_rate", res.learnRate),
		logging.Bool("halted", res.halted))
	raw <- final
}

// dispatch delivers worker events to the configured observers in order, then
// forwards them to the caller. The first observer error halts the run.
func (w *ModelWrapper) dispatch(ctx context.Context, raw <-chan Event, out chan<- Event) {
	defer close(out)

	var failure error
	for ev := range raw {
		if failure == nil {
			for _, obs := range w.cfg.observers {
				if err := obs.OnUpdate(ctx, ev); err != nil {
					failure = &models.ObserverFailure{Observer: observerName(obs), Epoch: ev.Epoch, Err: err}
					w.logger.Error("Observer failed, aborting run", err, logging.Int("epoch", ev.Epoch))
					w.model.requestHalt()
					break
				}
			}
		}

		if ev.Finished {
			if ev.Err == nil {
				ev.Err = failure
			}
			w.finish(ev.Err)
		}
		out <- ev
	}
}

// finish enters the terminal state exactly once
func (w *ModelWrapper) finish(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status.Terminal() {
		return
	}
	w.err = err
	if err != nil {
		w.status = models.RunStatusFailed
	} else {
		w.status = models.RunStatusTrained
	}
	close(w.done)
}
