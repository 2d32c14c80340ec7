package training

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

var centers = [][]float64{
	{1, 1, 1, 1},
	{5, 5, 5, 5},
	{9, 1, 9, 1},
}

// clusterRecords builds perClass noisy records around each center, classes interleaved
func clusterRecords(t *testing.T, perClass ...int) ([]models.DataRecord, *models.LabelMapping) {
	t.Helper()
	mapping, err := models.NewLabelMapping("alpha", "beta", "gamma")
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	var records []models.DataRecord
	for i := 0; ; i++ {
		added := false
		for class, n := range perClass {
			if i >= n {
				continue
			}
			features := make([]float64, len(centers[class]))
			for j, c := range centers[class] {
				features[j] = c + rng.Float64() - 0.5
			}
			text, err := mapping.LabelIDToText(class)
			require.NoError(t, err)
			rec, err := models.NewDataRecord(features, text, mapping)
			require.NoError(t, err)
			records = append(records, rec)
			added = true
		}
		if !added {
			return records, mapping
		}
	}
}

func quietLogger() *logging.Logger {
	l := logging.New()
	l.SetOutput(io.Discard)
	return l
}

func testParams() models.TrainingConfig {
	p := models.DefaultTrainingConfig()
	p.WeightsInitializer = models.InitNRandomRational
	p.MaxEpochs = 50
	p.ProgressReportPeriod = 5
	p.LearnRateDecay = 0.99
	return p
}

func newWrapper(t *testing.T, params models.TrainingConfig, observers ...Observer) *ModelWrapper {
	t.Helper()
	records, mapping := clusterRecords(t, 50, 50, 50)
	cfg, err := NewConfig(records, mapping, params, observers...)
	require.NoError(t, err)
	w, err := NewModelWrapper(cfg, WithLogger(quietLogger()), WithRunID("test-run"))
	require.NoError(t, err)
	return w
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestNewConfig_Validation(t *testing.T) {
	records, mapping := clusterRecords(t, 5, 5, 5)

	tests := []struct {
		name   string
		mutate func(*models.TrainingConfig)
		reason string
	}{
		{"sample count exceeds dataset", func(c *models.TrainingConfig) { c.TrainSamples = 16 }, "exceeds dataset size"},
		{"learn rate below quit rate", func(c *models.TrainingConfig) { c.LearnRate = 0.0005 }, "learn-rate must exceed quit-learn-rate"},
		{"learn rate equals quit rate", func(c *models.TrainingConfig) { c.LearnRate = c.QuitLearnRate }, "learn-rate must exceed quit-learn-rate"},
		{"non positive quit rate", func(c *models.TrainingConfig) { c.QuitLearnRate = 0 }, "quit-learn-rate must be positive"},
		{"zero decay", func(c *models.TrainingConfig) { c.LearnRateDecay = 0 }, "decay"},
		{"decay above one", func(c *models.TrainingConfig) { c.LearnRateDecay = 1.01 }, "decay"},
		{"zero epochs", func(c *models.TrainingConfig) { c.MaxEpochs = 0 }, "max epochs"},
		{"unknown initializer", func(c *models.TrainingConfig) { c.WeightsInitializer = "N_LAST" }, "unknown weights initializer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := models.DefaultTrainingConfig()
			params.TrainSamples = 9
			tt.mutate(&params)

			_, err := NewConfig(records, mapping, params)
			var cfgErr *models.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Error(), tt.reason)
		})
	}
}

func TestNewConfig_RejectsBadRecords(t *testing.T) {
	_, mapping := clusterRecords(t, 1)
	params := models.DefaultTrainingConfig()
	params.TrainSamples = 1

	_, err := NewConfig(nil, mapping, params)
	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	mixed := []models.DataRecord{
		{Features: []float64{1, 2}, LabelID: 0, LabelText: "alpha"},
		{Features: []float64{1}, LabelID: 0, LabelText: "alpha"},
	}
	_, err = NewConfig(mixed, mapping, params)
	assert.ErrorAs(t, err, &cfgErr)

	unknown := []models.DataRecord{{Features: []float64{1}, LabelID: 7}}
	_, err = NewConfig(unknown, mapping, params)
	var labelErr *models.UnknownLabelError
	assert.ErrorAs(t, err, &labelErr)
}

func TestModelWrapper_EventOrdering(t *testing.T) {
	w := newWrapper(t, testParams())

	events, err := w.Start(context.Background())
	require.NoError(t, err)
	got := collect(t, events)
	require.NoError(t, w.Wait())

	require.NotEmpty(t, got)
	finished := 0
	for i, ev := range got {
		if i > 0 {
			assert.Greater(t, ev.Epoch, got[i-1].Epoch, "epochs must strictly increase")
		}
		if ev.Finished {
			finished++
		}
		assert.Equal(t, "test-run", ev.RunID)
	}
	assert.Equal(t, 1, finished)
	last := got[len(got)-1]
	assert.True(t, last.Finished)
	assert.Equal(t, 50, last.Epoch)
	assert.False(t, last.Halted)
	assert.Len(t, got, 10) // reports at 5..45 plus the final epoch 50

	assert.Equal(t, models.RunStatusTrained, w.Status())
	assert.Equal(t, models.ModelStateTrained, w.Model().State())
	assert.Equal(t, 30, w.TrainCount())
	assert.Len(t, last.EvaluationSet, 150)
}

func TestModelWrapper_ZeroPeriodReportsOnlyCompletion(t *testing.T) {
	params := testParams()
	params.ProgressReportPeriod = 0
	w := newWrapper(t, params)

	events, err := w.Start(context.Background())
	require.NoError(t, err)
	got := collect(t, events)

	require.Len(t, got, 1)
	assert.True(t, got[0].Finished)
}

func TestModelWrapper_StopsOnQuitLearnRate(t *testing.T) {
	params := testParams()
	params.LearnRate = 0.3
	params.QuitLearnRate = 0.1
	params.LearnRateDecay = 0.5
	w := newWrapper(t, params)

	events, err := w.Start(context.Background())
	require.NoError(t, err)
	got := collect(t, events)

	last := got[len(got)-1]
	assert.True(t, last.Finished)
	assert.Equal(t, 2, last.Epoch) // 0.3 -> 0.15 -> 0.075
	assert.Less(t, last.LearnRate, params.QuitLearnRate)
}

func TestModelWrapper_Deterministic(t *testing.T) {
	run := func() ([]Prototype, Event) {
		w := newWrapper(t, testParams())
		events, err := w.Start(context.Background())
		require.NoError(t, err)
		got := collect(t, events)
		require.NoError(t, w.Wait())
		return w.Model().Codebook(), got[len(got)-1]
	}

	codebookA, finalA := run()
	codebookB, finalB := run()

	assert.Equal(t, codebookA, codebookB)
	assert.Equal(t, finalA.SquaredError, finalB.SquaredError)
	assert.Equal(t, finalA.LearnRate, finalB.LearnRate)
}

func TestModelWrapper_LearnsClusters(t *testing.T) {
	w := newWrapper(t, testParams())

	events, err := w.Start(context.Background())
	require.NoError(t, err)
	got := collect(t, events)
	require.NoError(t, w.Wait())
	final := got[len(got)-1]

	model := w.Model()
	codebook := model.Codebook()
	require.Len(t, codebook, 3)
	for i, proto := range codebook {
		assert.Equal(t, i, proto.LabelID)
	}

	correct := 0
	for _, rec := range final.EvaluationSet {
		label, err := model.Classify(rec.Features)
		require.NoError(t, err)
		if label == rec.LabelID {
			correct++
		}
	}
	assert.GreaterOrEqual(t, float64(correct)/float64(len(final.EvaluationSet)), 0.95)

	_, err = model.Classify([]float64{1, 2})
	assert.Error(t, err)
}

func TestModelWrapper_HaltBeforeStartAndAfterFinishAreNoOps(t *testing.T) {
	w := newWrapper(t, testParams())

	w.Halt()
	assert.Equal(t, models.RunStatusConfigured, w.Status())
	assert.ErrorIs(t, w.Wait(), ErrNotStarted)

	require.NoError(t, w.PreprocessInitializeAndTrain(context.Background()))
	assert.Equal(t, models.ModelStateTrained, w.Model().State())

	w.Halt()
	w.Model().Halt()
	assert.False(t, w.Model().halt.Load(), "halt after completion is ignored")
	assert.Equal(t, models.RunStatusTrained, w.Status())
	assert.Equal(t, models.ModelStateTrained, w.Model().State())
	assert.NoError(t, w.Wait())

	_, err := w.Start(context.Background())
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestModelWrapper_HaltDuringTraining(t *testing.T) {
	params := testParams()
	params.MaxEpochs = 100000
	params.LearnRateDecay = 1

	var w *ModelWrapper
	halter := ObserverFunc(func(ctx context.Context, ev Event) error {
		if ev.Epoch == 5 && !ev.Finished {
			w.Halt()
		}
		return nil
	})
	w = newWrapper(t, params, halter)

	events, err := w.Start(context.Background())
	require.NoError(t, err)
	got := collect(t, events)
	require.NoError(t, w.Wait())

	last := got[len(got)-1]
	assert.True(t, last.Finished)
	assert.True(t, last.Halted)
	assert.Greater(t, last.Epoch, 5)
	assert.LessOrEqual(t, last.Epoch, 11)
	assert.Equal(t, models.ModelStateHalted, w.Model().State())
	assert.Equal(t, models.RunStatusTrained, w.Status())
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Epoch, got[i-1].Epoch)
	}
}

func TestModelWrapper_ContextCancelHalts(t *testing.T) {
	params := testParams()
	params.MaxEpochs = 100000
	params.LearnRateDecay = 1

	ctx, cancel := context.WithCancel(context.Background())
	canceller := ObserverFunc(func(ctx context.Context, ev Event) error {
		if ev.Epoch == 10 {
			cancel()
		}
		return nil
	})
	w := newWrapper(t, params, canceller)

	events, err := w.Start(ctx)
	require.NoError(t, err)
	got := collect(t, events)

	assert.True(t, got[len(got)-1].Halted)
	assert.NoError(t, w.Wait())
}

func TestModelWrapper_ObserverFailureAbortsRun(t *testing.T) {
	params := testParams()
	params.MaxEpochs = 100000
	params.LearnRateDecay = 1

	boom := errors.New("report sink unavailable")
	var calls atomic.Int32
	failing := ObserverFunc(func(ctx context.Context, ev Event) error {
		calls.Add(1)
		if ev.Epoch == 10 {
			return boom
		}
		return nil
	})
	w := newWrapper(t, params, failing)

	events, err := w.Start(context.Background())
	require.NoError(t, err)
	got := collect(t, events)

	runErr := w.Wait()
	var failure *models.ObserverFailure
	require.ErrorAs(t, runErr, &failure)
	assert.ErrorIs(t, runErr, boom)
	assert.Equal(t, 10, failure.Epoch)
	assert.Equal(t, models.RunStatusFailed, w.Status())
	assert.Equal(t, int32(2), calls.Load(), "observers are not called after a failure")

	last := got[len(got)-1]
	assert.True(t, last.Finished)
	assert.ErrorAs(t, last.Err, &failure)
}

func TestModelWrapper_SecondStartWhileActive(t *testing.T) {
	release := make(chan struct{})
	blocker := ObserverFunc(func(ctx context.Context, ev Event) error {
		<-release
		return nil
	})
	w := newWrapper(t, testParams(), blocker)

	events, err := w.Start(context.Background())
	require.NoError(t, err)

	_, err = w.Start(context.Background())
	assert.ErrorIs(t, err, ErrRunActive)

	close(release)
	collect(t, events)
	assert.NoError(t, w.Wait())
}

func TestModelWrapper_SamplingErrorSurfacesFromStart(t *testing.T) {
	records, mapping := clusterRecords(t, 50, 50, 2)
	params := testParams()
	params.TrainSamples = 30

	cfg, err := NewConfig(records, mapping, params)
	require.NoError(t, err)
	w, err := NewModelWrapper(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = w.Start(context.Background())
	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.LabelID)
	assert.Equal(t, models.RunStatusConfigured, w.Status())
}

func TestModelWrapper_HeldOutEvaluationSet(t *testing.T) {
	params := testParams()
	params.EvaluationScope = models.EvaluateHeldOut
	w := newWrapper(t, params)

	events, err := w.Start(context.Background())
	require.NoError(t, err)
	got := collect(t, events)

	last := got[len(got)-1]
	assert.Len(t, last.EvaluationSet, 150-30)
}
