package models

import "time"

// ScheduledRetrain represents a recurring training run on a cron schedule
type ScheduledRetrain struct {
	ID           string     `json:"id" yaml:"-"`
	Name         string     `json:"name" yaml:"name"`
	CronSchedule string     `json:"cron_schedule" yaml:"cron_schedule"` // Standard 5-field cron expression
	DataSource   string     `json:"data_source" yaml:"data_source"`
	RunFile      string     `json:"run_file,omitempty" yaml:"run_file,omitempty"` // Run definition loaded on every retrain, defaults when empty
	Enabled      bool       `json:"enabled" yaml:"enabled"`
	CreatedAt    time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"-"`
	LastRun      *time.Time `json:"last_run,omitempty" yaml:"-"`
	NextRun      *time.Time `json:"next_run,omitempty" yaml:"-"`
	LastRunID    string     `json:"last_run_id,omitempty" yaml:"-"`
	LastError    string     `json:"last_error,omitempty" yaml:"-"`
}
