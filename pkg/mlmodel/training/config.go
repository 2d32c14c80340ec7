package training

import (
	"fmt"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// Config is the validated, immutable input of one training run
type Config struct {
	params    models.TrainingConfig
	records   []models.DataRecord
	mapping   *models.LabelMapping
	observers []Observer
}

// NewConfig validates every invariant at once and returns the first violation
func NewConfig(records []models.DataRecord, mapping *models.LabelMapping, params models.TrainingConfig, observers ...Observer) (*Config, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, &models.ConfigurationError{Field: "labels", Reason: "a label mapping is required"}
	}
	if len(records) == 0 {
		return nil, &models.ConfigurationError{Field: "train_data", Reason: "dataset is empty"}
	}
	if params.TrainSamples > len(records) {
		return nil, &models.ConfigurationError{
			Field:  "train_samples",
			Reason: fmt.Sprintf("train sample count exceeds dataset size (%d > %d)", params.TrainSamples, len(records)),
		}
	}

	arity := records[0].Arity()
	if arity == 0 {
		return nil, &models.ConfigurationError{Field: "train_data", Reason: "records have no features"}
	}
	for i, r := range records {
		if r.Arity() != arity {
			return nil, &models.ConfigurationError{
				Field:  "train_data",
				Reason: fmt.Sprintf("record %d has %d features, expected %d", i, r.Arity(), arity),
			}
		}
		if _, err := mapping.LabelIDToText(r.LabelID); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	for i, obs := range observers {
		if obs == nil {
			return nil, &models.ConfigurationError{Field: "observers", Reason: fmt.Sprintf("observer %d is nil", i)}
		}
	}

	return &Config{
		params:    params,
		records:   append([]models.DataRecord(nil), records...),
		mapping:   mapping,
		observers: append([]Observer(nil), observers...),
	}, nil
}

// Params returns a copy of the hyperparameters
func (c *Config) Params() models.TrainingConfig {
	return c.params
}

// Records returns the full input record set
func (c *Config) Records() []models.DataRecord {
	return append([]models.DataRecord(nil), c.records...)
}

// Mapping returns the label mapping of the dataset
func (c *Config) Mapping() *models.LabelMapping {
	return c.mapping
}

// Arity returns the number of features per record
func (c *Config) Arity() int {
	return c.records[0].Arity()
}

// maxEvents bounds the number of lifecycle events a run can emit
func (c *Config) maxEvents() int {
	if c.params.ProgressReportPeriod == 0 {
		return 1
	}
	return c.params.MaxEpochs/c.params.ProgressReportPeriod + 1
}
