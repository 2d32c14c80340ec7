package models

import (
	"encoding/json"
	"fmt"
)

// NoData is how an undefined accuracy is rendered
const NoData = "no data"

// Accuracy is a percentage that may be undefined when there was nothing to measure
type Accuracy struct {
	Value   float64
	Defined bool
}

// Percent returns a defined accuracy of correct/total*100, or an undefined one if total is 0
func Percent(correct, total int) Accuracy {
	if total == 0 {
		return Accuracy{}
	}
	return Accuracy{Value: float64(correct) / float64(total) * 100.0, Defined: true}
}

func (a Accuracy) String() string {
	if !a.Defined {
		return NoData
	}
	return fmt.Sprintf("%.2f%%", a.Value)
}

// MarshalJSON encodes an undefined accuracy as null
func (a Accuracy) MarshalJSON() ([]byte, error) {
	if !a.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

// UnmarshalJSON decodes null as an undefined accuracy
func (a *Accuracy) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Accuracy{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Accuracy{Value: v, Defined: true}
	return nil
}

// ClassMetrics holds evaluation counters and rates for a single class
type ClassMetrics struct {
	LabelID   int      `json:"label_id"`
	LabelText string   `json:"label_text"`
	Total     int      `json:"total"`
	Correct   int      `json:"correct"`
	Accuracy  Accuracy `json:"accuracy"`
	Precision Accuracy `json:"precision"`
	Recall    Accuracy `json:"recall"`
	F1Score   Accuracy `json:"f1_score"`
}

// EvaluationReport is the result of evaluating a trained model over a record set
type EvaluationReport struct {
	Scope           EvaluationScope `json:"scope"`
	Total           int             `json:"total"`
	Correct         int             `json:"correct"`
	OverallAccuracy Accuracy        `json:"overall_accuracy"`
	PerClass        []ClassMetrics  `json:"per_class"`
	Summary         string          `json:"summary,omitempty"`
}

// Class returns the metrics for a label id
func (r *EvaluationReport) Class(labelID int) (ClassMetrics, bool) {
	for _, c := range r.PerClass {
		if c.LabelID == labelID {
			return c, true
		}
	}
	return ClassMetrics{}, false
}
