package metadatastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/mimir-lvq/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RunRoundTrip(t *testing.T) {
	store := newTestStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &models.TrainingRun{
		ID:             "run-1",
		Name:           "iris",
		DataSource:     "/data/iris data.csv",
		Status:         models.RunStatusTrained,
		ModelState:     models.ModelStateTrained,
		TrainingConfig: models.DefaultTrainingConfig(),
		Classes:        []string{"a", "b"},
		LearningCurve:  []models.LearningCurvePoint{{Epoch: 5, LearnRate: 0.25, SquaredError: 1.5}},
		Report: &models.EvaluationReport{
			Total:           10,
			Correct:         9,
			OverallAccuracy: models.Percent(9, 10),
			PerClass: []models.ClassMetrics{
				{LabelID: 0, LabelText: "a", Total: 10, Correct: 9, Accuracy: models.Percent(9, 10)},
				{LabelID: 1, LabelText: "b", Accuracy: models.Percent(0, 0)},
			},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, store.SaveRun(run))

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Name, got.Name)
	assert.Equal(t, run.TrainingConfig, got.TrainingConfig)
	assert.Equal(t, run.LearningCurve, got.LearningCurve)
	require.NotNil(t, got.Report)
	assert.Equal(t, "90.00%", got.Report.OverallAccuracy.String())
	b, ok := got.Report.Class(1)
	require.True(t, ok)
	assert.Equal(t, models.NoData, b.Accuracy.String())

	run.Status = models.RunStatusFailed
	run.FailureReason = "observer failed"
	require.NoError(t, store.SaveRun(run))
	got, err = store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "observer failed", got.FailureReason)
}

func TestSQLiteStore_ListAndDeleteRuns(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveRun(&models.TrainingRun{ID: id, Name: id, Status: models.RunStatusConfigured, CreatedAt: ts, UpdatedAt: ts}))
	}

	runs, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)

	require.NoError(t, store.DeleteRun("old"))
	assert.ErrorIs(t, store.DeleteRun("old"), ErrNotFound)

	_, err = store.GetRun("old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Schedules(t *testing.T) {
	store := newTestStore(t)

	next := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	schedule := &models.ScheduledRetrain{
		ID:           "sched-1",
		Name:         "nightly",
		CronSchedule: "0 3 * * *",
		DataSource:   "iris.data",
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
		NextRun:      &next,
	}
	require.NoError(t, store.SaveSchedule(schedule))

	got, err := store.GetSchedule("sched-1")
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", got.CronSchedule)
	require.NotNil(t, got.NextRun)
	assert.True(t, next.Equal(*got.NextRun))

	list, err := store.ListSchedules()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteSchedule("sched-1"))
	_, err = store.GetSchedule("sched-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
