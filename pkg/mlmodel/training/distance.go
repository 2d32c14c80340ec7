package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// distanceFunc maps a metric to its Minkowski order for floats.Distance
func distanceFunc(metric models.DistanceMetric) (func(a, b []float64) float64, error) {
	var order float64
	switch metric {
	case models.DistanceEuclidean:
		order = 2
	case models.DistanceManhattan:
		order = 1
	case models.DistanceChebyshev:
		order = math.Inf(1)
	default:
		return nil, fmt.Errorf("unknown distance metric %q", metric)
	}

	return func(a, b []float64) float64 {
		return floats.Distance(a, b, order)
	}, nil
}
