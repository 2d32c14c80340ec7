package metadatastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// SQLiteStore provides SQLite-based persistence for training runs and schedules
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based storage instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite, keep the pool small
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check journal mode: %w", err)
	}
	// In-memory databases report "memory"
	if journalMode != "wal" && journalMode != "delete" && journalMode != "memory" {
		db.Close()
		return nil, fmt.Errorf("unexpected journal mode: got %s", journalMode)
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries a database operation if it fails due to SQLITE_BUSY,
// on top of the busy_timeout pragma
func (s *SQLiteStore) retryOnBusy(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") {
			// 10ms, 20ms, 40ms, ...
			backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
			time.Sleep(backoff)
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS training_runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		data_source TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_training_runs_status ON training_runs(status);

	CREATE TABLE IF NOT EXISTS retrain_schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cron_schedule TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_run DATETIME,
		next_run DATETIME,
		data TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts or replaces a training run. Progress updates arrive from the
// training dispatcher while the CLI may be reading, so writes retry on busy.
func (s *SQLiteStore) SaveRun(run *models.TrainingRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal training run: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO training_runs (id, name, status, data_source, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err = s.retryOnBusy(func() error {
		_, execErr := s.db.Exec(query,
			run.ID,
			run.Name,
			string(run.Status),
			run.DataSource,
			run.CreatedAt,
			run.UpdatedAt,
			string(data),
		)
		return execErr
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to save training run: %w", err)
	}

	return nil
}

// GetRun retrieves a training run by ID
func (s *SQLiteStore) GetRun(id string) (*models.TrainingRun, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM training_runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("training run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}

	var run models.TrainingRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal training run: %w", err)
	}

	return &run, nil
}

// ListRuns lists all training runs, newest first
func (s *SQLiteStore) ListRuns() ([]*models.TrainingRun, error) {
	rows, err := s.db.Query(`SELECT data FROM training_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list training runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.TrainingRun, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}

		var run models.TrainingRun
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			continue
		}

		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// DeleteRun deletes a training run
func (s *SQLiteStore) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM training_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete training run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("training run %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveSchedule inserts or replaces a retrain schedule
func (s *SQLiteStore) SaveSchedule(schedule *models.ScheduledRetrain) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	enabled := 0
	if schedule.Enabled {
		enabled = 1
	}

	query := `
		INSERT OR REPLACE INTO retrain_schedules (id, name, cron_schedule, enabled, created_at, updated_at, last_run, next_run, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	// Scheduled executions save concurrently with the cron loop
	err = s.retryOnBusy(func() error {
		_, execErr := s.db.Exec(query,
			schedule.ID,
			schedule.Name,
			schedule.CronSchedule,
			enabled,
			schedule.CreatedAt,
			schedule.UpdatedAt,
			schedule.LastRun,
			schedule.NextRun,
			string(data),
		)
		return execErr
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

// GetSchedule retrieves a retrain schedule by ID
func (s *SQLiteStore) GetSchedule(id string) (*models.ScheduledRetrain, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM retrain_schedules WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	var schedule models.ScheduledRetrain
	if err := json.Unmarshal([]byte(data), &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
	}

	return &schedule, nil
}

// ListSchedules lists all retrain schedules
func (s *SQLiteStore) ListSchedules() ([]*models.ScheduledRetrain, error) {
	rows, err := s.db.Query(`SELECT data FROM retrain_schedules ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]*models.ScheduledRetrain, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}

		var schedule models.ScheduledRetrain
		if err := json.Unmarshal([]byte(data), &schedule); err != nil {
			continue
		}

		schedules = append(schedules, &schedule)
	}

	return schedules, rows.Err()
}

// DeleteSchedule deletes a retrain schedule
func (s *SQLiteStore) DeleteSchedule(id string) error {
	if _, err := s.db.Exec(`DELETE FROM retrain_schedules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}
