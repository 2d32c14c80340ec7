package models

import (
	"fmt"
	"time"
)

// NormalizationFunction selects how feature vectors are rescaled before training
type NormalizationFunction string

const (
	NormalizationNone   NormalizationFunction = "NONE"
	NormalizationMinMax NormalizationFunction = "MIN_MAX"
	NormalizationZScore NormalizationFunction = "Z_SCORE"
)

// WeightsInitializer selects how the training subset and initial codebook are drawn
type WeightsInitializer string

const (
	InitNFirst          WeightsInitializer = "N_FIRST"
	InitNRandom         WeightsInitializer = "N_RANDOM"
	InitNRandomUnique   WeightsInitializer = "N_RANDOM_UNIQUE"
	InitNRandomRational WeightsInitializer = "N_RANDOM_RATIONAL"
)

// DistanceMetric selects the distance used to find the winning prototype
type DistanceMetric string

const (
	DistanceEuclidean DistanceMetric = "EUCLIDEAN"
	DistanceManhattan DistanceMetric = "MANHATTAN"
	DistanceChebyshev DistanceMetric = "CHEBYSHEV"
)

// EvaluationScope selects which records are evaluated once training finishes
type EvaluationScope string

const (
	EvaluateAll     EvaluationScope = "ALL"      // Every input record, training subset included
	EvaluateHeldOut EvaluationScope = "HELD_OUT" // Only records never drawn for training
)

// TrainingConfig holds the hyperparameters of one LVQ training run
type TrainingConfig struct {
	TrainSamples         int                   `json:"train_samples" yaml:"train_samples"`
	Normalization        NormalizationFunction `json:"normalization" yaml:"normalization"`
	WeightsInitializer   WeightsInitializer    `json:"weights_initializer" yaml:"weights_initializer"`
	DistanceMetric       DistanceMetric        `json:"distance_metric" yaml:"distance_metric"`
	RandomSeed           int64                 `json:"random_seed" yaml:"random_seed"`
	ProgressReportPeriod int                   `json:"progress_report_period" yaml:"progress_report_period"` // Epochs between reports, 0 = final only
	LearnRate            float64               `json:"learn_rate" yaml:"learn_rate"`
	QuitLearnRate        float64               `json:"quit_learn_rate" yaml:"quit_learn_rate"`
	LearnRateDecay       float64               `json:"learn_rate_decay" yaml:"learn_rate_decay"`
	MaxEpochs            int                   `json:"max_epochs" yaml:"max_epochs"`
	PrototypesPerClass   int                   `json:"prototypes_per_class" yaml:"prototypes_per_class"`
	EvaluationScope      EvaluationScope       `json:"evaluation_scope" yaml:"evaluation_scope"`
}

// DefaultTrainingConfig returns the settings used for the iris example run
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		TrainSamples:         30,
		Normalization:        NormalizationMinMax,
		WeightsInitializer:   InitNRandomUnique,
		DistanceMetric:       DistanceEuclidean,
		RandomSeed:           321895892175192714,
		ProgressReportPeriod: 5,
		LearnRate:            0.3,
		QuitLearnRate:        0.001,
		LearnRateDecay:       0.97,
		MaxEpochs:            200,
		PrototypesPerClass:   1,
		EvaluationScope:      EvaluateAll,
	}
}

// Validate checks the dataset-independent invariants and reports the first violation
func (c *TrainingConfig) Validate() error {
	if c.TrainSamples <= 0 {
		return &ConfigurationError{Field: "train_samples", Reason: "train sample count must be positive"}
	}
	switch c.Normalization {
	case NormalizationNone, NormalizationMinMax, NormalizationZScore:
	default:
		return &ConfigurationError{Field: "normalization", Reason: fmt.Sprintf("unknown normalization function %q", c.Normalization)}
	}
	switch c.WeightsInitializer {
	case InitNFirst, InitNRandom, InitNRandomUnique, InitNRandomRational:
	default:
		return &ConfigurationError{Field: "weights_initializer", Reason: fmt.Sprintf("unknown weights initializer %q", c.WeightsInitializer)}
	}
	switch c.DistanceMetric {
	case DistanceEuclidean, DistanceManhattan, DistanceChebyshev:
	default:
		return &ConfigurationError{Field: "distance_metric", Reason: fmt.Sprintf("unknown distance metric %q", c.DistanceMetric)}
	}
	if c.ProgressReportPeriod < 0 {
		return &ConfigurationError{Field: "progress_report_period", Reason: "progress report period must not be negative"}
	}
	if c.QuitLearnRate <= 0 {
		return &ConfigurationError{Field: "quit_learn_rate", Reason: "quit-learn-rate must be positive"}
	}
	if c.LearnRate <= c.QuitLearnRate {
		return &ConfigurationError{Field: "learn_rate", Reason: "learn-rate must exceed quit-learn-rate"}
	}
	if c.LearnRateDecay <= 0 || c.LearnRateDecay > 1 {
		return &ConfigurationError{Field: "learn_rate_decay", Reason: "learn-rate decay must be in (0, 1]"}
	}
	if c.MaxEpochs <= 0 {
		return &ConfigurationError{Field: "max_epochs", Reason: "max epochs must be positive"}
	}
	if c.PrototypesPerClass <= 0 {
		return &ConfigurationError{Field: "prototypes_per_class", Reason: "prototypes per class must be positive"}
	}
	switch c.EvaluationScope {
	case EvaluateAll, EvaluateHeldOut:
	default:
		return &ConfigurationError{Field: "evaluation_scope", Reason: fmt.Sprintf("unknown evaluation scope %q", c.EvaluationScope)}
	}
	return nil
}

// RunStatus represents the lifecycle state of a training run
type RunStatus string

const (
	RunStatusConfigured    RunStatus = "configured"
	RunStatusPreprocessing RunStatus = "preprocessing"
	RunStatusTraining      RunStatus = "training"
	RunStatusTrained       RunStatus = "trained" // Terminal, entered exactly once
	RunStatusFailed        RunStatus = "failed"  // Terminal, observer or worker error
)

// Terminal reports whether no further transitions can happen
func (s RunStatus) Terminal() bool {
	return s == RunStatusTrained || s == RunStatusFailed
}

// ModelState represents the state of the LVQ model itself
type ModelState string

const (
	ModelStateUntrained ModelState = "untrained"
	ModelStateTraining  ModelState = "training"
	ModelStateTrained   ModelState = "trained"
	ModelStateHalted    ModelState = "halted"
)

// TrainingRun is the stored record of one training run
type TrainingRun struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	DataSource     string               `json:"data_source,omitempty"`
	Status         RunStatus            `json:"status"`
	ModelState     ModelState           `json:"model_state"`
	TrainingConfig TrainingConfig       `json:"training_config"`
	Classes        []string             `json:"classes,omitempty"`
	RecordCount    int                  `json:"record_count"`
	TrainCount     int                  `json:"train_count"`
	LearningCurve  []LearningCurvePoint `json:"learning_curve,omitempty"`
	Report         *EvaluationReport    `json:"report,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	TrainedAt      *time.Time           `json:"trained_at,omitempty"`
}

// LearningCurvePoint is one progress report of a run
type LearningCurvePoint struct {
	Epoch        int     `json:"epoch"`
	LearnRate    float64 `json:"learn_rate"`
	SquaredError float64 `json:"squared_error"`
}

// RunCreateRequest represents a request to create a training run
type RunCreateRequest struct {
	Name           string          `json:"name"`
	DataSource     string          `json:"data_source,omitempty"`
	TrainingConfig *TrainingConfig `json:"training_config,omitempty"`
}

// Validate checks if the RunCreateRequest is valid
func (r *RunCreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.TrainingConfig != nil {
		return r.TrainingConfig.Validate()
	}
	return nil
}

// DataAnalysis summarizes a dataset for configuration recommendations
type DataAnalysis struct {
	RecordCount    int            `json:"record_count"`
	FeatureCount   int            `json:"feature_count"`
	Size           string         `json:"size"` // small, medium, large
	ClassCounts    map[string]int `json:"class_counts"`
	ClassesPresent int            `json:"classes_present"`
	SmallestClass  int            `json:"smallest_class"`
	ImbalanceRatio float64        `json:"imbalance_ratio"` // Smallest class size / largest class size
	OutlierRatio   float64        `json:"outlier_ratio"`   // Share of values with |z| > 3
	RangeSpread    float64        `json:"range_spread"`    // Widest feature range / narrowest, 0 if one is constant
	LabelOrder     []int          `json:"-"`
}

// ClassesInPrefix counts the distinct labels among the first n records
func (a *DataAnalysis) ClassesInPrefix(n int) int {
	seen := make(map[int]struct{})
	for i := 0; i < n && i < len(a.LabelOrder); i++ {
		seen[a.LabelOrder[i]] = struct{}{}
	}
	return len(seen)
}

// ConfigRecommendation is the output of the configuration recommendation engine
type ConfigRecommendation struct {
	Recommended    WeightsInitializer         `json:"recommended"`
	Normalization  NormalizationFunction      `json:"normalization"`
	Score          int                        `json:"score"`
	Reasoning      string                     `json:"reasoning"`
	AllScores      map[WeightsInitializer]int `json:"all_scores"`
	DataAnalysis   *DataAnalysis              `json:"data_analysis"`
	TrainingConfig TrainingConfig             `json:"training_config"`
}
