package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// Model is the contract of a trainable prototype classifier
type Model interface {
	// Classify returns the label id of the nearest prototype
	Classify(features []float64) (int, error)

	// LastWinnerDistance returns the distance to the winner of the last Classify call
	LastWinnerDistance() float64

	// Halt requests the training loop to stop at the next epoch boundary
	Halt()

	// State returns the current model state
	State() models.ModelState
}

// Prototype is one labelled codebook vector
type Prototype struct {
	LabelID int
	Weights []float64
}

// LVQ is a winner-takes-all learning vector quantization classifier
type LVQ struct {
	metric   models.DistanceMetric
	distance func(a, b []float64) float64

	// codebook is written only by the training worker
	codebook []Prototype

	mu         sync.RWMutex
	state      models.ModelState
	halt       atomic.Bool
	live       atomic.Bool // set from Start until the training loop returns
	lastWinner atomic.Uint64
}

// NewLVQ creates an untrained model using the given distance metric
func NewLVQ(metric models.DistanceMetric) (*LVQ, error) {
	distance, err := distanceFunc(metric)
	if err != nil {
		return nil, err
	}
	return &LVQ{
		metric:   metric,
		distance: distance,
		state:    models.ModelStateUntrained,
	}, nil
}

// State returns the current model state
func (m *LVQ) State() models.ModelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *LVQ) setState(s models.ModelState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// Halt stops a live run at the next epoch boundary. A run is live from the wrapper's
// Start, preprocessing included, until training returns; otherwise Halt does nothing.
func (m *LVQ) Halt() {
	if m.live.Load() {
		m.halt.Store(true)
	}
}

// begin marks the run live so Halt is honoured before the first epoch
func (m *LVQ) begin() {
	m.live.Store(true)
}

// end marks the run finished; later Halt calls are ignored
func (m *LVQ) end() {
	m.live.Store(false)
}

// requestHalt arms the halt flag regardless of state, used while the wrapper preprocesses
func (m *LVQ) requestHalt() {
	m.halt.Store(true)
}

// LastWinnerDistance returns the distance to the winner of the last Classify call
func (m *LVQ) LastWinnerDistance() float64 {
	return math.Float64frombits(m.lastWinner.Load())
}

// Codebook returns a copy of the prototypes
func (m *LVQ) Codebook() []Prototype {
	out := make([]Prototype, len(m.codebook))
	for i, p := range m.codebook {
		out[i] = Prototype{LabelID: p.LabelID, Weights: append([]float64(nil), p.Weights...)}
	}
	return out
}

// Classify returns the label id of the nearest prototype
func (m *LVQ) Classify(features []float64) (int, error) {
	if len(m.codebook) == 0 {
		return 0, fmt.Errorf("model has no codebook")
	}
	if len(features) != len(m.codebook[0].Weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.codebook[0].Weights), len(features))
	}

	winner, dist := m.winner(features)
	m.lastWinner.Store(math.Float64bits(dist))
	return m.codebook[winner].LabelID, nil
}

// winner returns the index of the nearest prototype, the first one on ties
func (m *LVQ) winner(features []float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for i, p := range m.codebook {
		if d := m.distance(features, p.Weights); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// initialize seeds the codebook with the first perClass records of every class
// present in the training subset, classes in label id order.
func (m *LVQ) initialize(training []models.DataRecord, perClass int) error {
	if len(training) == 0 {
		return fmt.Errorf("cannot initialize codebook from an empty training set")
	}

	byLabel := make(map[int][]models.DataRecord)
	for _, r := range training {
		if len(byLabel[r.LabelID]) < perClass {
			byLabel[r.LabelID] = append(byLabel[r.LabelID], r)
		}
	}
	labels := make([]int, 0, len(byLabel))
	for id := range byLabel {
		labels = append(labels, id)
	}
	sort.Ints(labels)

	m.codebook = m.codebook[:0]
	for _, id := range labels {
		for _, r := range byLabel[id] {
			m.codebook = append(m.codebook, Prototype{
				LabelID: id,
				Weights: append([]float64(nil), r.Features...),
			})
		}
	}
	return nil
}

// progress is called at every report point that is not the final epoch
type progress func(epoch int, learnRate, squaredError float64)

// outcome describes where the training loop stopped
type outcome struct {
	epochs       int
	learnRate    float64
	squaredError float64
	halted       bool
}

// train runs LVQ1 epochs until the learn rate decays below the quit rate, the epoch
// limit is reached or a halt is requested. Halt and ctx are checked at epoch boundaries.
func (m *LVQ) train(ctx context.Context, training []models.DataRecord, params models.TrainingConfig, rng *rand.Rand, report progress) outcome {
	m.begin()
	defer m.end()
	m.setState(models.ModelStateTraining)

	res := outcome{learnRate: params.LearnRate}
	lastReported := -1
	order := make([]int, len(training))
	for i := range order {
		order[i] = i
	}
	diff := make([]float64, len(training[0].Features))

	for {
		stop := m.halt.Load() || ctx.Err() != nil
		// The final event must carry a larger epoch than the last report, so a halt
		// that lands right after a report costs one more epoch.
		if stop && lastReported != res.epochs {
			res.halted = true
			break
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		sq := 0.0
		for _, idx := range order {
			x := training[idx]
			w, d := m.winner(x.Features)
			sq += d * d

			proto := m.codebook[w].Weights
			floats.SubTo(diff, x.Features, proto)
			if m.codebook[w].LabelID == x.LabelID {
				floats.AddScaled(proto, res.learnRate, diff)
			} else {
				floats.AddScaled(proto, -res.learnRate, diff)
			}
		}

		res.epochs++
		res.squaredError = sq
		res.learnRate *= params.LearnRateDecay

		if m.halt.Load() || ctx.Err() != nil {
			res.halted = true
			break
		}
		if res.epochs >= params.MaxEpochs || res.learnRate < params.QuitLearnRate {
			break
		}
		if params.ProgressReportPeriod > 0 && res.epochs%params.ProgressReportPeriod == 0 {
			report(res.epochs, res.learnRate, res.squaredError)
			lastReported = res.epochs
		}
	}

	if res.halted {
		m.setState(models.ModelStateHalted)
	} else {
		m.setState(models.ModelStateTrained)
	}
	return res
}
