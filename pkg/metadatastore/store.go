package metadatastore

import (
	"errors"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// ErrNotFound is returned when a stored item does not exist
var ErrNotFound = errors.New("not found")

// RunStore is the interface for training run and schedule persistence.
// Datasets and model weights are not stored here.
type RunStore interface {
	// Training run operations
	SaveRun(run *models.TrainingRun) error
	GetRun(id string) (*models.TrainingRun, error)
	ListRuns() ([]*models.TrainingRun, error)
	DeleteRun(id string) error

	// Scheduled retrain operations
	SaveSchedule(schedule *models.ScheduledRetrain) error
	GetSchedule(id string) (*models.ScheduledRetrain, error)
	ListSchedules() ([]*models.ScheduledRetrain, error)
	DeleteSchedule(id string) error

	Close() error
}
