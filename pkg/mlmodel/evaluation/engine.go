// Package evaluation measures a trained classifier against labelled records.
package evaluation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	golearn "github.com/sjwhitworth/golearn/evaluation"

	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// Classifier is the part of a trained model the engine needs
type Classifier interface {
	Classify(features []float64) (int, error)
	LastWinnerDistance() float64
}

// Engine classifies records and aggregates overall and per-class accuracy
type Engine struct {
	logger *logging.Logger
}

// NewEngine creates an evaluation engine; a nil logger selects the global one
func NewEngine(logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Engine{logger: logger.With(logging.Component("evaluation"))}
}

// Evaluate classifies every record once. Classes of the mapping that have no
// records report an undefined accuracy instead of failing.
func (e *Engine) Evaluate(model Classifier, records []models.DataRecord, mapping *models.LabelMapping) (*models.EvaluationReport, error) {
	if model == nil {
		return nil, fmt.Errorf("no model to evaluate")
	}
	if mapping == nil {
		return nil, fmt.Errorf("a label mapping is required")
	}

	classes := mapping.Classes()
	totals := make([]int, len(classes))
	corrects := make([]int, len(classes))
	matrix := make(golearn.ConfusionMatrix, len(classes))
	for _, class := range classes {
		matrix[class] = make(map[string]int)
	}

	correct := 0
	for i, rec := range records {
		actualText, err := mapping.LabelIDToText(rec.LabelID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		predicted, err := model.Classify(rec.Features)
		if err != nil {
			return nil, fmt.Errorf("record %d: classification failed: %w", i, err)
		}
		predictedText, err := mapping.LabelIDToText(predicted)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		hit := predicted == rec.LabelID
		totals[rec.LabelID]++
		if hit {
			corrects[rec.LabelID]++
			correct++
		}
		matrix[actualText][predictedText]++

		if e.logger.Enabled(logging.DEBUG) {
			verdict := "correct"
			if !hit {
				verdict = "WRONG"
			}
			e.logger.Debug("Classified record",
				logging.Int("record", i),
				logging.Int("predicted_id", predicted),
				logging.String("predicted", predictedText),
				logging.Int("actual_id", rec.LabelID),
				logging.String("actual", actualText),
				logging.Float("distance", model.LastWinnerDistance()),
				logging.String("result", verdict))
		}
	}

	report := &models.EvaluationReport{
		Total:           len(records),
		Correct:         correct,
		OverallAccuracy: models.Percent(correct, len(records)),
		PerClass:        make([]models.ClassMetrics, len(classes)),
	}
	for id, class := range classes {
		report.PerClass[id] = classMetrics(matrix, id, class, totals[id], corrects[id])
	}
	if len(records) > 0 {
		report.Summary = summary(report)
	}
	return report, nil
}

// summary renders the per-class table in label id order; undefined rates print as no data
func summary(report *models.EvaluationReport) string {
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Class", "Total", "Correct", "Accuracy", "Precision", "Recall", "F1"})
	for _, c := range report.PerClass {
		table.Append([]string{
			c.LabelText,
			strconv.Itoa(c.Total),
			strconv.Itoa(c.Correct),
			c.Accuracy.String(),
			c.Precision.String(),
			c.Recall.String(),
			c.F1Score.String(),
		})
	}
	table.Append([]string{
		"overall",
		strconv.Itoa(report.Total),
		strconv.Itoa(report.Correct),
		report.OverallAccuracy.String(),
		"", "", "",
	})
	table.Render()
	return b.String()
}

// classMetrics derives the rates of one class, leaving each undefined when its denominator is zero
func classMetrics(matrix golearn.ConfusionMatrix, id int, class string, total, correct int) models.ClassMetrics {
	m := models.ClassMetrics{
		LabelID:   id,
		LabelText: class,
		Total:     total,
		Correct:   correct,
		Accuracy:  models.Percent(correct, total),
	}

	tp := golearn.GetTruePositives(class, matrix)
	fp := golearn.GetFalsePositives(class, matrix)
	if tp+fp > 0 {
		m.Precision = rate(golearn.GetPrecision(class, matrix))
	}
	if total > 0 {
		m.Recall = rate(golearn.GetRecall(class, matrix))
	}
	if tp > 0 {
		m.F1Score = rate(golearn.GetF1Score(class, matrix))
	}
	return m
}

func rate(v float64) models.Accuracy {
	return models.Accuracy{Value: v * 100.0, Defined: true}
}
