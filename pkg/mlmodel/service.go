package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/metadatastore"
	"github.com/mimir-aip/mimir-lvq/pkg/mlmodel/evaluation"
	"github.com/mimir-aip/mimir-lvq/pkg/mlmodel/training"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// ErrRunNotActive is returned when halting a run that is not training
var ErrRunNotActive = errors.New("training run is not active")

// Service manages training runs and their persistence
type Service struct {
	store                metadatastore.RunStore
	logger               *logging.Logger
	engine               *evaluation.Engine
	recommendationEngine *RecommendationEngine

	mu     sync.Mutex
	active map[string]*activeRun
}

// activeRun tracks a started run; it stays registered after completion so WaitRun can report its error
type activeRun struct {
	wrapper *training.ModelWrapper
	done    chan struct{}
	err     error
}

func (a *activeRun) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// NewService creates a new training run service
func NewService(store metadatastore.RunStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetLogger()
	}
	logger = logger.With(logging.Component("mlmodel"))
	return &Service{
		store:                store,
		logger:               logger,
		engine:               evaluation.NewEngine(logger),
		recommendationEngine: NewRecommendationEngine(),
		active:               make(map[string]*activeRun),
	}
}

// CreateRun creates a new training run in the configured state
func (s *Service) CreateRun(req *models.RunCreateRequest) (*models.TrainingRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &models.TrainingRun{
		ID:         uuid.New().String(),
		Name:       req.Name,
		DataSource: req.DataSource,
		Status:     models.RunStatusConfigured,
		ModelState: models.ModelStateUntrained,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Set default training config if not provided
	if req.TrainingConfig != nil {
		run.TrainingConfig = *req.TrainingConfig
	} else {
		run.TrainingConfig = models.DefaultTrainingConfig()
	}

	if err := s.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Info("Training run created", logging.String("run_id", run.ID), logging.String("name", run.Name))
	return run, nil
}

// GetRun retrieves a training run by ID
func (s *Service) GetRun(id string) (*models.TrainingRun, error) {
	run, err := s.store.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists all training runs
func (s *Service) ListRuns() ([]*models.TrainingRun, error) {
	runs, err := s.store.ListRuns()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun deletes a training run that is not currently training
func (s *Service) DeleteRun(id string) error {
	s.mu.Lock()
	if active, ok := s.active[id]; ok {
		if !active.finished() {
			s.mu.Unlock()
			return fmt.Errorf("cannot delete run %s: %w", id, training.ErrRunActive)
		}
		delete(s.active, id)
	}
	s.mu.Unlock()

	if err := s.store.DeleteRun(id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// RecommendConfig suggests a training configuration for a dataset
func (s *Service) RecommendConfig(records []models.DataRecord, mapping *models.LabelMapping) (*models.ConfigRecommendation, error) {
	rec, err := s.recommendationEngine.Recommend(records, mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to recommend configuration: %w", err)
	}
	return rec, nil
}

// StartTraining launches training of a configured run on the given records and
// returns as soon as the worker is running. Progress reports are appended to the
// run's learning curve and the final evaluation is stored on completion.
func (s *Service) StartTraining(ctx context.Context, runID string, records []models.DataRecord, mapping *models.LabelMapping, observers ...training.Observer) (*training.ModelWrapper, error) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	// Verify run is in correct state to start training
	if run.Status != models.RunStatusConfigured {
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, training.ErrRunFinished)
	}

	s.mu.Lock()
	if existing, ok := s.active[runID]; ok && !existing.finished() {
		s.mu.Unlock()
		return nil, training.ErrRunActive
	}
	// Reserve the slot before the worker exists so concurrent starts fail fast
	active := &activeRun{done: make(chan struct{})}
	s.active[runID] = active
	s.mu.Unlock()

	wrapper, err := s.launch(ctx, run, records, mapping, active, observers)
	if err != nil {
		s.mu.Lock()
		delete(s.active, runID)
		s.mu.Unlock()
		close(active.done)
		if failErr := s.FailTraining(runID, err.Error()); failErr != nil {
			s.logger.Error("Failed to record training failure", failErr, logging.String("run_id", runID))
		}
		return nil, err
	}
	return wrapper, nil
}

func (s *Service) launch(ctx context.Context, run *models.TrainingRun, records []models.DataRecord, mapping *models.LabelMapping, active *activeRun, extra []training.Observer) (*training.ModelWrapper, error) {
	progress := &progressRecorder{service: s, runID: run.ID}
	evaluator := evaluation.NewObserver(s.engine, nil)

	observers := append([]training.Observer{progress, evaluator}, extra...)
	cfg, err := training.NewConfig(records, mapping, run.TrainingConfig, observers...)
	if err != nil {
		return nil, err
	}
	wrapper, err := training.NewModelWrapper(cfg, training.WithRunID(run.ID), training.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	active.wrapper = wrapper
	s.mu.Unlock()

	// Every strategy draws exactly TrainSamples records
	run.Status = models.RunStatusPreprocessing
	run.ModelState = models.ModelStateTraining
	run.Classes = mapping.Classes()
	run.RecordCount = len(records)
	run.TrainCount = run.TrainingConfig.TrainSamples
	run.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	events, err := wrapper.Start(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Training asynchronously",
		logging.String("run_id", run.ID),
		logging.Int("records", run.RecordCount),
		logging.Int("train_count", run.TrainCount))

	go s.supervise(run.ID, wrapper, evaluator, events, active)
	return wrapper, nil
}

// supervise drains the run's events and records its outcome
func (s *Service) supervise(runID string, wrapper *training.ModelWrapper, evaluator *evaluation.Observer, events <-chan training.Event, active *activeRun) {
	var final training.Event
	for ev := range events {
		if ev.Finished {
			final = ev
		}
	}

	runErr := wrapper.Wait()
	if runErr != nil {
		if err := s.FailTraining(runID, runErr.Error()); err != nil {
			s.logger.Error("Failed to record training failure", err, logging.String("run_id", runID))
		}
	} else {
		state := models.ModelStateTrained
		if final.Halted {
			state = models.ModelStateHalted
		}
		if err := s.CompleteTraining(runID, state, evaluator.Report()); err != nil {
			s.logger.Error("Failed to record training completion", err, logging.String("run_id", runID))
			runErr = err
		}
	}

	s.mu.Lock()
	active.err = runErr
	s.mu.Unlock()
	close(active.done)
}

// UpdateTrainingProgress appends a learning curve point and marks the run as training
func (s *Service) UpdateTrainingProgress(runID string, point models.LearningCurvePoint) error {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = models.RunStatusTraining
	run.LearningCurve = append(run.LearningCurve, point)
	run.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveRun(run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// CompleteTraining marks training as complete and stores the evaluation report
func (s *Service) CompleteTraining(runID string, state models.ModelState, report *models.EvaluationReport) error {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = models.RunStatusTrained
	run.ModelState = state
	run.Report = report
	now := time.Now().UTC()
	run.TrainedAt = &now
	run.UpdatedAt = now

	if err := s.store.SaveRun(run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	fields := []logging.Field{logging.String("run_id", runID), logging.String("model_state", string(state))}
	if report != nil {
		fields = append(fields, logging.String("accuracy", report.OverallAccuracy.String()))
	}
	s.logger.Info("Training run completed", fields...)
	return nil
}

// FailTraining marks training as failed
func (s *Service) FailTraining(runID, reason string) error {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = models.RunStatusFailed
	run.FailureReason = reason
	run.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveRun(run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	s.logger.Warn("Training run failed", logging.String("run_id", runID), logging.String("reason", reason))
	return nil
}

// HaltRun asks an active run to stop at the next epoch boundary
func (s *Service) HaltRun(runID string) error {
	s.mu.Lock()
	var wrapper *training.ModelWrapper
	if active, ok := s.active[runID]; ok && !active.finished() {
		wrapper = active.wrapper
	}
	s.mu.Unlock()
	if wrapper == nil {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotActive)
	}

	wrapper.Halt()
	s.logger.Info("Halt requested", logging.String("run_id", runID))
	return nil
}

// WaitRun blocks until an active run has been recorded as finished and returns the stored run
func (s *Service) WaitRun(ctx context.Context, runID string) (*models.TrainingRun, error) {
	s.mu.Lock()
	active, ok := s.active[runID]
	s.mu.Unlock()

	if ok {
		select {
		case <-active.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		runErr := active.err
		s.mu.Unlock()

		run, err := s.GetRun(runID)
		if err != nil {
			return nil, err
		}
		return run, runErr
	}

	return s.GetRun(runID)
}

// progressRecorder persists every progress report of a run
type progressRecorder struct {
	service *Service
	runID   string
}

func (p *progressRecorder) Name() string {
	return "progress"
}

func (p *progressRecorder) OnUpdate(ctx context.Context, ev training.Event) error {
	if ev.Finished {
		return nil
	}
	return p.service.UpdateTrainingProgress(p.runID, models.LearningCurvePoint{
		Epoch:        ev.Epoch,
		LearnRate:    ev.LearnRate,
		SquaredError: ev.SquaredError,
	})
}
