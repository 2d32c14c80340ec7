package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/metadatastore"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// RetrainFunc trains a new run for a schedule and returns the run id
type RetrainFunc func(ctx context.Context, schedule *models.ScheduledRetrain) (string, error)

// Service runs periodic retraining on cron schedules
type Service struct {
	store   metadatastore.RunStore
	retrain RetrainFunc
	logger  *logging.Logger
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID // Maps schedule ID to cron entry ID
}

// NewService creates a new scheduler service
func NewService(store metadatastore.RunStore, retrain RetrainFunc, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetLogger()
	}
	logger = logger.With(logging.Component("scheduler"))

	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cronLogAdapter{logger: logger}
	return &Service{
		store:   store,
		retrain: retrain,
		logger:  logger,
		// A retrain that outlasts its interval skips the next tick
		cron:   cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Start schedules every enabled stored schedule and starts the cron loop
func (s *Service) Start() error {
	schedules, err := s.store.ListSchedules()
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if schedule.Enabled {
			if err := s.scheduleJob(schedule); err != nil {
				s.logger.Error("Error scheduling retrain", err, logging.String("schedule", schedule.Name))
			}
		}
	}

	s.mu.Lock()
	scheduled := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Retrain scheduler started", logging.Int("schedules", scheduled))
	return nil
}

// Stop stops the cron loop, cancels running retrains and waits for them to return
func (s *Service) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Retrain scheduler stopped")
}

// Add creates, persists and schedules a retrain of dataSource with the run
// definition at runFile, or the defaults when runFile is empty
func (s *Service) Add(name, cronExpr, dataSource, runFile string) (*models.ScheduledRetrain, error) {
	if name == "" {
		return nil, fmt.Errorf("schedule name is required")
	}
	if dataSource == "" {
		return nil, fmt.Errorf("schedule data source is required")
	}
	parsed, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	now := time.Now().UTC()
	next := parsed.Next(now)
	schedule := &models.ScheduledRetrain{
		ID:           uuid.New().String(),
		Name:         name,
		CronSchedule: cronExpr,
		DataSource:   dataSource,
		RunFile:      runFile,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
		NextRun:      &next,
	}

	if err := s.store.SaveSchedule(schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}
	if err := s.scheduleJob(schedule); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Get retrieves a schedule by ID
func (s *Service) Get(id string) (*models.ScheduledRetrain, error) {
	return s.store.GetSchedule(id)
}

// List lists all schedules
func (s *Service) List() ([]*models.ScheduledRetrain, error) {
	return s.store.ListSchedules()
}

// Remove unschedules and deletes a schedule
func (s *Service) Remove(id string) error {
	s.unschedule(id)
	return s.store.DeleteSchedule(id)
}

// RunNow executes a schedule immediately, outside its cron timing
func (s *Service) RunNow(ctx context.Context, id string) (*models.ScheduledRetrain, error) {
	schedule, err := s.store.GetSchedule(id)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, schedule)
	return schedule, nil
}

func (s *Service) unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}
}

// scheduleJob registers a schedule with the cron loop
func (s *Service) scheduleJob(schedule *models.ScheduledRetrain) error {
	parsed, err := cron.ParseStandard(schedule.CronSchedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	id := schedule.ID
	jobFunc := func() {
		current, err := s.store.GetSchedule(id)
		if err != nil {
			s.logger.Error("Scheduled retrain vanished", err, logging.String("schedule_id", id))
			return
		}
		s.execute(s.ctx, current)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
	}
	s.jobs[id] = s.cron.Schedule(parsed, cron.FuncJob(jobFunc))

	s.logger.Info("Scheduled retrain",
		logging.String("schedule", schedule.Name),
		logging.String("schedule_id", id),
		logging.String("cron", schedule.CronSchedule))
	return nil
}

// execute runs one retrain and records its outcome on the schedule
func (s *Service) execute(ctx context.Context, schedule *models.ScheduledRetrain) {
	s.logger.Info("Executing scheduled retrain", logging.String("schedule", schedule.Name))

	now := time.Now().UTC()
	schedule.LastRun = &now
	if parsed, err := cron.ParseStandard(schedule.CronSchedule); err == nil {
		next := parsed.Next(now)
		schedule.NextRun = &next
	}

	runID, err := s.retrain(ctx, schedule)
	schedule.LastRunID = runID
	schedule.LastError = ""
	if err != nil {
		schedule.LastError = err.Error()
		s.logger.Error("Scheduled retrain failed", err, logging.String("schedule", schedule.Name))
	} else {
		s.logger.Info("Scheduled retrain completed",
			logging.String("schedule", schedule.Name),
			logging.String("run_id", runID))
	}

	schedule.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveSchedule(schedule); err != nil {
		s.logger.Error("Error updating schedule last run time", err, logging.String("schedule", schedule.Name))
	}
}

// cronLogAdapter routes cron's internal logging through the structured logger
type cronLogAdapter struct {
	logger *logging.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, pairs(keysAndValues)...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error("cron: "+msg, err, pairs(keysAndValues)...)
}

func pairs(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
