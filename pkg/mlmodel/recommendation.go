package mlmodel

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/mimir-lvq/pkg/dataset"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// RecommendationEngine analyzes a dataset to recommend a sampling strategy and normalization
type RecommendationEngine struct{}

// NewRecommendationEngine creates a new recommendation engine
func NewRecommendationEngine() *RecommendationEngine {
	return &RecommendationEngine{}
}

// Recommend scores every weights initializer against the dataset and derives a
// training configuration starting from the defaults.
func (re *RecommendationEngine) Recommend(records []models.DataRecord, mapping *models.LabelMapping) (*models.ConfigRecommendation, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot recommend a configuration for an empty dataset")
	}
	if mapping == nil {
		return nil, fmt.Errorf("a label mapping is required")
	}

	analysis := re.analyzeData(records, mapping)
	base := models.DefaultTrainingConfig()
	trainSamples := base.TrainSamples
	if trainSamples > len(records) {
		trainSamples = len(records)
	}

	scores := map[models.WeightsInitializer]int{
		models.InitNFirst:          0,
		models.InitNRandom:         0,
		models.InitNRandomUnique:   0,
		models.InitNRandomRational: 0,
	}

	// Scoring based on class balance
	if analysis.ImbalanceRatio < 0.5 {
		scores[models.InitNRandomRational] += 3
	} else {
		scores[models.InitNRandomUnique] += 1
		scores[models.InitNRandomRational] += 1
	}

	// N_FIRST only sees every class when the file is interleaved
	if analysis.ClassesInPrefix(trainSamples) == analysis.ClassesPresent {
		scores[models.InitNFirst] += 1
	} else {
		scores[models.InitNFirst] -= 3
	}

	// Scoring based on data size
	switch analysis.Size {
	case "small":
		scores[models.InitNRandomUnique] += 2
	case "medium":
		scores[models.InitNRandomUnique] += 1
		scores[models.InitNRandomRational] += 1
	case "large":
		scores[models.InitNRandom] += 2
	}

	// A class smaller than its quota rules out stratified sampling
	if !rationalFits(records, trainSamples) {
		scores[models.InitNRandomRational] -= 5
	}

	// Highest score wins, ties go to the default strategy and then the simpler one
	order := []models.WeightsInitializer{
		models.InitNRandomUnique,
		models.InitNRandomRational,
		models.InitNFirst,
		models.InitNRandom,
	}
	recommended := order[0]
	for _, init := range order[1:] {
		if scores[init] > scores[recommended] {
			recommended = init
		}
	}

	normalization := models.NormalizationMinMax
	if analysis.OutlierRatio > 0.01 {
		normalization = models.NormalizationZScore
	}

	cfg := base
	cfg.TrainSamples = trainSamples
	cfg.WeightsInitializer = recommended
	cfg.Normalization = normalization

	return &models.ConfigRecommendation{
		Recommended:    recommended,
		Normalization:  normalization,
		Score:          scores[recommended],
		Reasoning:      re.generateReasoning(recommended, normalization, analysis, scores),
		AllScores:      scores,
		DataAnalysis:   analysis,
		TrainingConfig: cfg,
	}, nil
}

// rationalFits reports whether every class holds at least the records N_RANDOM_RATIONAL would draw from it
func rationalFits(records []models.DataRecord, n int) bool {
	groups := dataset.GroupByLabel(records)
	labels, quotas := dataset.RationalQuotas(groups, n)
	for i, id := range labels {
		if len(groups[id]) < quotas[i] {
			return false
		}
	}
	return true
}

// analyzeData summarizes class balance, ordering and feature spread
func (re *RecommendationEngine) analyzeData(records []models.DataRecord, mapping *models.LabelMapping) *models.DataAnalysis {
	groups := dataset.GroupByLabel(records)

	analysis := &models.DataAnalysis{
		RecordCount:    len(records),
		FeatureCount:   records[0].Arity(),
		ClassCounts:    make(map[string]int, len(groups)),
		ClassesPresent: len(groups),
		LabelOrder:     make([]int, len(records)),
	}
	for i, r := range records {
		analysis.LabelOrder[i] = r.LabelID
	}

	switch {
	case len(records) < 500:
		analysis.Size = "small"
	case len(records) < 10000:
		analysis.Size = "medium"
	default:
		analysis.Size = "large"
	}

	largest, smallest := 0, math.MaxInt
	for id, members := range groups {
		text, err := mapping.LabelIDToText(id)
		if err != nil {
			text = fmt.Sprintf("#%d", id)
		}
		analysis.ClassCounts[text] = len(members)
		largest = max(largest, len(members))
		smallest = min(smallest, len(members))
	}
	analysis.SmallestClass = smallest
	analysis.ImbalanceRatio = float64(smallest) / float64(largest)

	column := make([]float64, len(records))
	outliers := 0
	ranges := make([]float64, analysis.FeatureCount)
	for j := 0; j < analysis.FeatureCount; j++ {
		for i, r := range records {
			column[i] = r.Features[j]
		}
		ranges[j] = floats.Max(column) - floats.Min(column)

		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		for _, x := range column {
			if math.Abs(stat.StdScore(x, mean, std)) > 3 {
				outliers++
			}
		}
	}
	analysis.OutlierRatio = float64(outliers) / float64(len(records)*analysis.FeatureCount)
	if lo := floats.Min(ranges); lo > 0 {
		analysis.RangeSpread = floats.Max(ranges) / lo
	}

	return analysis
}

// generateReasoning creates a human-readable explanation for the recommendation
func (re *RecommendationEngine) generateReasoning(
	recommended models.WeightsInitializer,
	normalization models.NormalizationFunction,
	analysis *models.DataAnalysis,
	scores map[models.WeightsInitializer]int,
) string {
	var reasons []string

	reasons = append(reasons, fmt.Sprintf("%s recommended based on:", recommended))
	switch recommended {
	case models.InitNRandomRational:
		if analysis.ImbalanceRatio < 0.5 {
			reasons = append(reasons, fmt.Sprintf("- Imbalanced classes (smallest/largest = %.2f)", analysis.ImbalanceRatio))
		}
		reasons = append(reasons, "- Every class gets the same share of the training subset")
	case models.InitNRandomUnique:
		if analysis.Size == "small" {
			reasons = append(reasons, fmt.Sprintf("- Small dataset (%d records), no record should be drawn twice", analysis.RecordCount))
		}
		reasons = append(reasons, fmt.Sprintf("- Balanced classes (smallest/largest = %.2f)", analysis.ImbalanceRatio))
	case models.InitNFirst:
		reasons = append(reasons, "- Records are interleaved, the first rows cover every class")
	case models.InitNRandom:
		reasons = append(reasons, fmt.Sprintf("- Large dataset (%d records), duplicate draws are unlikely", analysis.RecordCount))
	}

	switch normalization {
	case models.NormalizationZScore:
		reasons = append(reasons, fmt.Sprintf("- %s: %.1f%% of feature values are more than 3 standard deviations out",
			normalization, analysis.OutlierRatio*100))
	default:
		if analysis.RangeSpread > 10 {
			reasons = append(reasons, fmt.Sprintf("- %s: feature ranges differ by a factor of %.1f", normalization, analysis.RangeSpread))
		} else {
			reasons = append(reasons, fmt.Sprintf("- %s: feature ranges are comparable", normalization))
		}
	}

	names := make([]string, 0, len(scores))
	for init := range scores {
		names = append(names, string(init))
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, scores[models.WeightsInitializer(name)])
	}
	reasons = append(reasons, fmt.Sprintf("\nScores: %s", strings.Join(parts, ", ")))

	return strings.Join(reasons, "\n")
}
