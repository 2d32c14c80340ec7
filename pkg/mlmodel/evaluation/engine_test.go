package evaluation

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/mimir-lvq/pkg/logging"
	"github.com/mimir-aip/mimir-lvq/pkg/mlmodel/training"
	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

// echo predicts the label stored in the first feature
type echo struct{ offset int }

func (e echo) Classify(features []float64) (int, error) {
	return int(features[0]) + e.offset, nil
}

func (echo) LastWinnerDistance() float64 { return 0 }

func (echo) Halt() {}

func (echo) State() models.ModelState { return models.ModelStateTrained }

// records returns counts[i] records labelled i whose first feature is the label
func records(counts ...int) []models.DataRecord {
	var out []models.DataRecord
	for label, n := range counts {
		for i := 0; i < n; i++ {
			out = append(out, models.DataRecord{Features: []float64{float64(label), float64(i)}, LabelID: label})
		}
	}
	return out
}

func bufferLogger(buf *bytes.Buffer) *logging.Logger {
	l := logging.New()
	l.SetOutput(buf)
	l.SetLevel(logging.DEBUG)
	return l
}

func TestEvaluate_PerfectClassifier(t *testing.T) {
	var buf bytes.Buffer
	engine := NewEngine(bufferLogger(&buf))

	report, err := engine.Evaluate(echo{}, records(50, 50, 50), models.IrisLabels())
	require.NoError(t, err)

	assert.Equal(t, 150, report.Total)
	assert.Equal(t, 150, report.Correct)
	assert.Equal(t, "100.00%", report.OverallAccuracy.String())
	require.Len(t, report.PerClass, 3)
	for _, c := range report.PerClass {
		assert.Equal(t, 50, c.Total)
		assert.Equal(t, "100.00%", c.Accuracy.String())
		assert.InDelta(t, 100, c.Precision.Value, 1e-9)
		assert.InDelta(t, 100, c.Recall.Value, 1e-9)
		assert.InDelta(t, 100, c.F1Score.Value, 1e-9)
	}
	assert.NotEmpty(t, report.Summary)
	assert.Contains(t, buf.String(), "Classified record")
	assert.Contains(t, buf.String(), "result=correct")
}

func TestEvaluate_ClassWithoutRecordsReportsNoData(t *testing.T) {
	engine := NewEngine(quiet())

	report, err := engine.Evaluate(echo{}, records(5, 5, 0), models.IrisLabels())
	require.NoError(t, err)

	virginica, ok := report.Class(2)
	require.True(t, ok)
	assert.Equal(t, 0, virginica.Total)
	assert.False(t, virginica.Accuracy.Defined)
	assert.Equal(t, models.NoData, virginica.Accuracy.String())
	assert.False(t, virginica.Precision.Defined)
	assert.False(t, virginica.Recall.Defined)
	assert.False(t, virginica.F1Score.Defined)
	assert.Equal(t, "100.00%", report.OverallAccuracy.String())

	assert.NotContains(t, report.Summary, "NaN")
	assert.Contains(t, report.Summary, models.NoData)
	setosa := strings.Index(report.Summary, "Iris-setosa")
	versicolor := strings.Index(report.Summary, "Iris-versicolor")
	last := strings.Index(report.Summary, "Iris-virginica")
	require.True(t, setosa >= 0 && versicolor >= 0 && last >= 0)
	assert.True(t, setosa < versicolor && versicolor < last, "summary rows follow label ids")

	again, err := engine.Evaluate(echo{}, records(5, 5, 0), models.IrisLabels())
	require.NoError(t, err)
	assert.Equal(t, report.Summary, again.Summary)
}

func TestEvaluate_MixedResults(t *testing.T) {
	mapping, err := models.NewLabelMapping("a", "b")
	require.NoError(t, err)

	// every "a" is predicted as "b", every "b" stays "b"
	shift := classifierFunc(func(features []float64) (int, error) { return 1, nil })
	report, err := NewEngine(quiet()).Evaluate(shift, records(2, 6), mapping)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Correct)
	assert.Equal(t, "75.00%", report.OverallAccuracy.String())

	a, _ := report.Class(0)
	assert.Equal(t, "0.00%", a.Accuracy.String())
	assert.False(t, a.Precision.Defined, "a was never predicted")
	assert.True(t, a.Recall.Defined)
	assert.False(t, a.F1Score.Defined)

	b, _ := report.Class(1)
	assert.InDelta(t, 75, b.Precision.Value, 1e-9)
	assert.InDelta(t, 100, b.Recall.Value, 1e-9)
}

func TestEvaluate_EmptyRecordSet(t *testing.T) {
	report, err := NewEngine(quiet()).Evaluate(echo{}, nil, models.IrisLabels())
	require.NoError(t, err)
	assert.Equal(t, models.NoData, report.OverallAccuracy.String())
	assert.Empty(t, report.Summary)
}

func TestEvaluate_UnknownPredictedLabel(t *testing.T) {
	_, err := NewEngine(quiet()).Evaluate(echo{offset: 3}, records(1), models.IrisLabels())

	var labelErr *models.UnknownLabelError
	require.ErrorAs(t, err, &labelErr)
	assert.Equal(t, 3, labelErr.ID)
}

func TestEvaluate_ClassifierError(t *testing.T) {
	broken := classifierFunc(func([]float64) (int, error) { return 0, errors.New("no codebook") })
	_, err := NewEngine(quiet()).Evaluate(broken, records(1), models.IrisLabels())
	assert.ErrorContains(t, err, "no codebook")
}

func TestObserver_EvaluatesFinalEventOnly(t *testing.T) {
	var delivered *models.EvaluationReport
	obs := NewObserver(NewEngine(quiet()), func(ctx context.Context, runID string, report *models.EvaluationReport) error {
		assert.Equal(t, "run-1", runID)
		delivered = report
		return nil
	})

	progress := training.Event{RunID: "run-1", Epoch: 5, Model: echo{}}
	require.NoError(t, obs.OnUpdate(context.Background(), progress))
	assert.Nil(t, obs.Report())

	failed := training.Event{RunID: "run-1", Finished: true, Err: errors.New("boom")}
	require.NoError(t, obs.OnUpdate(context.Background(), failed))
	assert.Nil(t, obs.Report())

	final := training.Event{
		RunID:         "run-1",
		Epoch:         10,
		Finished:      true,
		Model:         echo{},
		EvaluationSet: records(3, 3, 3),
		Scope:         models.EvaluateAll,
		Mapping:       models.IrisLabels(),
	}
	require.NoError(t, obs.OnUpdate(context.Background(), final))
	require.NotNil(t, obs.Report())
	assert.Same(t, obs.Report(), delivered)
	assert.Equal(t, models.EvaluateAll, delivered.Scope)
	assert.Equal(t, 9, delivered.Total)
}

func TestObserver_SinkFailureIsReturned(t *testing.T) {
	obs := NewObserver(NewEngine(quiet()), func(context.Context, string, *models.EvaluationReport) error {
		return errors.New("store offline")
	})

	err := obs.OnUpdate(context.Background(), training.Event{
		Finished:      true,
		Model:         echo{},
		EvaluationSet: records(1),
		Mapping:       models.IrisLabels(),
	})
	assert.ErrorContains(t, err, "store offline")
	assert.Equal(t, "evaluation", obs.Name())
}

func TestObserver_WithTrainingRun(t *testing.T) {
	mapping := models.IrisLabels()
	var data []models.DataRecord
	for i := 0; i < 60; i++ {
		label := i % 3
		data = append(data, models.DataRecord{
			Features: []float64{float64(label*10) + float64(i%5)*0.1, float64(label)},
			LabelID:  label,
		})
	}

	params := models.DefaultTrainingConfig()
	params.TrainSamples = 15
	params.MaxEpochs = 20

	obs := NewObserver(NewEngine(quiet()), nil)
	cfg, err := training.NewConfig(data, mapping, params, obs)
	require.NoError(t, err)
	w, err := training.NewModelWrapper(cfg, training.WithLogger(quiet()))
	require.NoError(t, err)

	require.NoError(t, w.PreprocessInitializeAndTrain(context.Background()))
	report := obs.Report()
	require.NotNil(t, report)
	assert.Equal(t, 60, report.Total)
	assert.True(t, report.OverallAccuracy.Defined)
}

type classifierFunc func([]float64) (int, error)

func (f classifierFunc) Classify(features []float64) (int, error) { return f(features) }

func (classifierFunc) LastWinnerDistance() float64 { return 0 }

func quiet() *logging.Logger {
	l := logging.New()
	l.SetOutput(&bytes.Buffer{})
	return l
}
