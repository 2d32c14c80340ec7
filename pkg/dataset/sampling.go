package dataset

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// NewRand returns the deterministic generator used for sampling and shuffling
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Select draws n record indices according to the strategy
func Select(strategy models.WeightsInitializer, records []models.DataRecord, n int, rng *rand.Rand) ([]int, error) {
	total := len(records)
	if total == 0 {
		return nil, &models.InsufficientDataError{Strategy: strategy, Requested: n, Available: 0, LabelID: -1}
	}
	if n <= 0 {
		return nil, fmt.Errorf("%s: sample count must be positive, got %d", strategy, n)
	}

	switch strategy {
	case models.InitNFirst:
		return firstN(total, n), nil
	case models.InitNRandom:
		selected := make([]int, n)
		for i := range selected {
			selected[i] = rng.IntN(total)
		}
		return selected, nil
	case models.InitNRandomUnique:
		if n > total {
			return nil, &models.InsufficientDataError{Strategy: strategy, Requested: n, Available: total, LabelID: -1}
		}
		return rng.Perm(total)[:n], nil
	case models.InitNRandomRational:
		return stratified(records, n, rng)
	default:
		return nil, fmt.Errorf("unknown weights initializer %q", strategy)
	}
}

// firstN is a strict prefix, wrapping around only when n exceeds the record count
func firstN(total, n int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = i % total
	}
	return selected
}

// stratified draws n / classes records per class in label id order, the remainder
// going to the first classes, each class sampled without replacement.
func stratified(records []models.DataRecord, n int, rng *rand.Rand) ([]int, error) {
	groups := GroupByLabel(records)
	labels, quotas := RationalQuotas(groups, n)

	selected := make([]int, 0, n)
	for i, id := range labels {
		want := quotas[i]
		members := groups[id]
		if want > len(members) {
			return nil, &models.InsufficientDataError{
				Strategy:  models.InitNRandomRational,
				Requested: want,
				Available: len(members),
				LabelID:   id,
			}
		}
		for _, p := range rng.Perm(len(members))[:want] {
			selected = append(selected, members[p])
		}
	}

	return selected, nil
}

// RationalQuotas splits n evenly over the labels present, in label id order.
// The first n%len(labels) labels draw one extra record.
func RationalQuotas(groups map[int][]int, n int) (labels, quotas []int) {
	labels = make([]int, 0, len(groups))
	for id := range groups {
		labels = append(labels, id)
	}
	sort.Ints(labels)
	if len(labels) == 0 {
		return labels, nil
	}

	quota := n / len(labels)
	remainder := n % len(labels)
	quotas = make([]int, len(labels))
	for i := range labels {
		quotas[i] = quota
		if i < remainder {
			quotas[i]++
		}
	}
	return labels, quotas
}
