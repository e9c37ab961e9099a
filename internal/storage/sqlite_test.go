package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/evaluation"
	"github.com/rohankatakam/defectset/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func saveRun(t *testing.T, s Store, id, project string, started time.Time) *Run {
	t.Helper()
	run := &Run{ID: id, Project: project, Status: RunMining, StartedAt: started}
	require.NoError(t, s.SaveRun(context.Background(), run))
	return run
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	run := saveRun(t, s, "run-1", "AVRO", start)
	finished := start.Add(time.Hour)
	run.Status = RunMined
	run.FinishedAt = &finished
	run.Releases, run.ValidReleases, run.Tickets, run.Rejected, run.Commits = 10, 5, 40, 3, 77
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunMined, got.Status)
	assert.Equal(t, 5, got.ValidReleases)
	assert.Equal(t, 77, got.Commits)
	assert.True(t, got.StartedAt.Equal(start))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	saveRun(t, s, "old", "AVRO", base)
	saveRun(t, s, "new", "AVRO", base.Add(24*time.Hour))
	saveRun(t, s, "other", "BOOKKEEPER", base.Add(48*time.Hour))

	got, err := s.LatestRun(ctx, "AVRO")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)

	_, err = s.LatestRun(ctx, "ZOOKEEPER")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleasesAndFileItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveRun(t, s, "run-1", "AVRO", time.Now().UTC())

	day := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	releases := []*models.Release{
		{Index: 1, ExternalID: "100", Name: "1.0", Date: day, Valid: true},
		{Index: 2, ExternalID: "101", Name: "1.1", Date: day.AddDate(0, 1, 0), Valid: true},
		{Index: 3, ExternalID: "102", Name: "2.0", Date: day.AddDate(0, 6, 0), Valid: false},
	}
	require.NoError(t, s.SaveReleases(ctx, "run-1", releases))

	a := &models.FileItem{Name: "src/a.go", NumAuthors: 2, TouchingCommits: 3, Age: 4, Size: 120,
		BugFixes: 1, AddedLOC: 30, ChangeSetSize: 9, MaxChangeSetSize: 5, AvgChangeSetSize: 3, Buggy: true}
	b := &models.FileItem{Name: "src/b.go", NumAuthors: 1, TouchingCommits: 1, Size: 10}
	c := &models.FileItem{Name: "src/c.go", Size: 1}
	require.NoError(t, s.SaveFileItems(ctx, "run-1", 1, []*models.FileItem{b, a}))
	require.NoError(t, s.SaveFileItems(ctx, "run-1", 2, []*models.FileItem{a}))
	require.NoError(t, s.SaveFileItems(ctx, "run-1", 3, []*models.FileItem{c}))

	got, err := s.GetReleases(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1.1", got[1].Name)
	assert.True(t, got[1].Date.Equal(releases[1].Date))
	assert.False(t, got[2].Valid)

	items, err := s.GetFileItems(ctx, "run-1", 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "src/b.go", items[0].Name, "insertion order is kept")
	assert.Equal(t, *a, *items[1])

	// saving a release again replaces its rows
	require.NoError(t, s.SaveFileItems(ctx, "run-1", 1, []*models.FileItem{a}))
	items, err = s.GetFileItems(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	table, err := LoadTable(ctx, s, "run-1")
	require.NoError(t, err)
	require.Len(t, table, 2, "invalid releases are left out")
	assert.Equal(t, 1, table[0].Release)
	assert.Equal(t, 2, table[1].Release)
	assert.Equal(t, "src/a.go", table[1].Item.Name)
}

func TestSaveTickets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveRun(t, s, "run-1", "AVRO", time.Now().UTC())

	r1 := &models.Release{Index: 1}
	r2 := &models.Release{Index: 2}
	r3 := &models.Release{Index: 3}
	tickets := []*models.Ticket{
		{
			Key: "AVRO-1", OpeningVersion: r2, FixedVersion: r3, InjectedVersion: r1,
			AffectedVersions: []*models.Release{r1, r2}, CommitHashes: []string{"abc", "def"},
			P: 0.5, HasP: true, Method: models.MethodAffectedVersions,
		},
		{Key: "AVRO-2", OpeningVersion: r1, FixedVersion: r2},
	}
	require.NoError(t, s.SaveTickets(ctx, "run-1", tickets))

	var row struct {
		Affected string   `db:"affected_versions"`
		Commits  string   `db:"commit_hashes"`
		Method   string   `db:"method"`
		P        *float64 `db:"proportion"`
		Injected *int     `db:"injected_version"`
	}
	require.NoError(t, s.db.Get(&row,
		`SELECT affected_versions, commit_hashes, method, proportion, injected_version
		 FROM tickets WHERE run_id = ? AND ticket_key = ?`, "run-1", "AVRO-1"))
	assert.Equal(t, "1,2", row.Affected)
	assert.Equal(t, "abc,def", row.Commits)
	assert.Equal(t, "affected-versions", row.Method)
	require.NotNil(t, row.P)
	assert.Equal(t, 0.5, *row.P)
	require.NotNil(t, row.Injected)
	assert.Equal(t, 1, *row.Injected)

	require.NoError(t, s.db.Get(&row,
		`SELECT affected_versions, commit_hashes, method, proportion, injected_version
		 FROM tickets WHERE run_id = ? AND ticket_key = ?`, "run-1", "AVRO-2"))
	assert.Nil(t, row.P)
	assert.Nil(t, row.Injected)
	assert.Equal(t, "none", row.Method)
}

func TestEvaluationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	saveRun(t, s, "run-1", "AVRO", time.Now().UTC())

	results := []evaluation.Result{
		{Dataset: "AVRO", TrainingReleases: 1, PctTraining: 0.25, Classifier: "ibk",
			Sampling: "none", Selection: "none", TP: 3, FP: 1, TN: 10, FN: 2,
			Precision: 0.75, Recall: 0.6, AUC: 0.8, Kappa: 0.5},
		{Dataset: "AVRO", TrainingReleases: 2, PctTraining: 0.5, Classifier: "ibk",
			Sampling: "none", Selection: "none", TN: 12, AUC: math.NaN()},
	}
	require.NoError(t, s.SaveEvaluations(ctx, "run-1", results))

	got, err := s.GetEvaluations(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, results[0], got[0])
	assert.True(t, math.IsNaN(got[1].AUC), "undefined AUC survives storage")
	assert.Equal(t, 12, got[1].TN)

	// re-evaluating replaces the report
	require.NoError(t, s.SaveEvaluations(ctx, "run-1", results[:1]))
	got, err = s.GetEvaluations(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(config.StorageConfig{Type: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewStore(config.StorageConfig{Type: "sqlite", LocalPath: filepath.Join(t.TempDir(), "r.db")}, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = NewStore(config.StorageConfig{Type: "mongo"}, nil)
	assert.Error(t, err)
}
