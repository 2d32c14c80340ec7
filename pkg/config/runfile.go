package config

import (
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/mimir-aip/mimir-lvq/pkg/dataset"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// RunFile is a YAML training run definition
type RunFile struct {
	Name     string                `yaml:"name"`
	Data     DataSection           `yaml:"data"`
	Training models.TrainingConfig `yaml:"training"`
	Schedule string                `yaml:"schedule,omitempty"` // Cron expression for periodic retraining
}

// DataSection describes the layout of the data file
type DataSection struct {
	Delimiter string   `yaml:"delimiter,omitempty"`
	Features  int      `yaml:"features,omitempty"`
	Labels    []string `yaml:"labels,omitempty"`
}

// DefaultRunFile returns the run used when no file is given: the iris layout and default hyperparameters
func DefaultRunFile() *RunFile {
	return &RunFile{
		Name:     "lvq",
		Data:     DataSection{Delimiter: ",", Labels: models.IrisLabels().Classes()},
		Training: models.DefaultTrainingConfig(),
	}
}

// LoadRunFile reads and validates a run definition
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}
	run, err := ParseRunFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return run, nil
}

// ParseRunFile decodes a run definition; keys that are absent keep their defaults
func ParseRunFile(data []byte) (*RunFile, error) {
	run := DefaultRunFile()
	if err := yaml.Unmarshal(data, run); err != nil {
		return nil, fmt.Errorf("failed to parse run YAML: %w", err)
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}
	return run, nil
}

// Validate checks the run definition
func (r *RunFile) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("run name is required")
	}
	if utf8.RuneCountInString(r.Data.Delimiter) != 1 {
		return fmt.Errorf("data delimiter must be a single character, got %q", r.Data.Delimiter)
	}
	if r.Data.Features < 0 {
		return fmt.Errorf("data feature count must not be negative")
	}
	if _, err := r.Mapping(); err != nil {
		return err
	}
	return r.Training.Validate()
}

// Mapping builds the label mapping from the configured classes
func (r *RunFile) Mapping() (*models.LabelMapping, error) {
	return models.NewLabelMapping(r.Data.Labels...)
}

// LoadOptions returns the dataset loader options for this run
func (r *RunFile) LoadOptions() (dataset.LoadOptions, error) {
	mapping, err := r.Mapping()
	if err != nil {
		return dataset.LoadOptions{}, err
	}
	delimiter, _ := utf8.DecodeRuneInString(r.Data.Delimiter)
	return dataset.LoadOptions{
		Delimiter: delimiter,
		Features:  r.Data.Features,
		Mapping:   mapping,
	}, nil
}
