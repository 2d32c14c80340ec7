package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// Normalizer rescales features as (x - offset) / scale using statistics
// fitted on the training subset. A zero scale maps the feature to 0.
type Normalizer struct {
	fn     models.NormalizationFunction
	offset []float64
	scale  []float64
}

// FitNormalizer computes per-feature statistics from the training records only
func FitNormalizer(fn models.NormalizationFunction, training []models.DataRecord) (*Normalizer, error) {
	if len(training) == 0 {
		return nil, fmt.Errorf("cannot fit normalizer on an empty training set")
	}

	arity := training[0].Arity()
	n := &Normalizer{
		fn:     fn,
		offset: make([]float64, arity),
		scale:  make([]float64, arity),
	}
	if fn == models.NormalizationNone {
		return n, nil
	}

	column := make([]float64, len(training))
	for j := 0; j < arity; j++ {
		for i, r := range training {
			if r.Arity() != arity {
				return nil, fmt.Errorf("record %d has %d features, expected %d", i, r.Arity(), arity)
			}
			column[i] = r.Features[j]
		}

		switch fn {
		case models.NormalizationMinMax:
			lo, hi := floats.Min(column), floats.Max(column)
			n.offset[j] = lo
			n.scale[j] = hi - lo
		case models.NormalizationZScore:
			mean, std := stat.MeanStdDev(column, nil)
			if math.IsNaN(std) {
				std = 0
			}
			n.offset[j] = mean
			n.scale[j] = std
		default:
			return nil, fmt.Errorf("unknown normalization function %q", fn)
		}
	}

	return n, nil
}

// Function returns the normalization function this normalizer applies
func (n *Normalizer) Function() models.NormalizationFunction {
	return n.fn
}

// Transform returns a normalized copy of a feature vector
func (n *Normalizer) Transform(features []float64) []float64 {
	out := make([]float64, len(features))
	if n.fn == models.NormalizationNone {
		copy(out, features)
		return out
	}
	for j, x := range features {
		if j >= len(n.scale) || n.scale[j] == 0 {
			continue
		}
		out[j] = (x - n.offset[j]) / n.scale[j]
	}
	return out
}

// Apply returns normalized copies of the records
func (n *Normalizer) Apply(records []models.DataRecord) []models.DataRecord {
	out := make([]models.DataRecord, len(records))
	for i, r := range records {
		out[i] = r.WithFeatures(n.Transform(r.Features))
	}
	return out
}
