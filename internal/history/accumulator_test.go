package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
	"github.com/rohankatakam/defectset/internal/release"
)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

type fakeSizer struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func (s *fakeSizer) FileLines(_ context.Context, hash, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[hash+":"+path]++
	if s.fail[path] {
		return 0, fmt.Errorf("no such path %s", path)
	}
	return 10 * len(path), nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func fixture(t *testing.T) (*release.Resolver, *models.Ticket) {
	t.Helper()
	r, err := release.NewResolver([]models.RawRelease{
		{ID: "1", Name: "1.0", Date: ptr(at(2020, 1, 1))},
		{ID: "2", Name: "1.1", Date: ptr(at(2020, 2, 1))},
		{ID: "3", Name: "1.2", Date: ptr(at(2020, 4, 1))},
		{ID: "4", Name: "1.3", Date: ptr(at(2020, 6, 30))},
	})
	require.NoError(t, err)

	tk := &models.Ticket{
		Key:              "P-1",
		OpeningVersion:   r.ByIndex(2),
		FixedVersion:     r.ByIndex(3),
		InjectedVersion:  r.ByIndex(1),
		AffectedVersions: []*models.Release{r.ByIndex(1), r.ByIndex(2)},
	}
	return r, tk
}

func apply(acc *Accumulator) {
	acc.Apply(
		models.Commit{Hash: "c1", Author: "alice", Date: at(2019, 12, 15), TicketKey: "P-1"},
		[]string{"a.go", "b.go"},
		[]models.ChangedFile{{Path: "a.go", Added: 10}},
	)
	acc.Apply(
		models.Commit{Hash: "c2", Author: "bob", Date: at(2020, 1, 15), TicketKey: "P-1"},
		[]string{"a.go", "b.go", "c.go"},
		[]models.ChangedFile{{Path: "a.go", Added: 5}, {Path: "c.go", Added: 7}, {Path: "gone.go", Added: 1}},
	)
	acc.Apply(
		models.Commit{Hash: "c3", Author: "carol", Date: at(2020, 8, 1), TicketKey: "P-1"},
		[]string{"a.go"},
		[]models.ChangedFile{{Path: "a.go", Added: 100}},
	)
}

func TestAccumulatorMetrics(t *testing.T) {
	r, tk := fixture(t)
	acc := NewAccumulator(r, []*models.Ticket{tk}, quietLogger())
	apply(acc)

	r1 := r.ByIndex(1)
	a1 := r1.FileItem("a.go")
	require.NotNil(t, a1)
	assert.Equal(t, 1, a1.TouchingCommits)
	assert.Equal(t, 10, a1.AddedLOC)
	assert.Equal(t, 1, a1.ChangeSetSize)
	assert.Equal(t, 1, a1.BugFixes)
	assert.True(t, a1.Buggy)
	assert.False(t, r1.FileItem("b.go").Buggy)
	assert.Nil(t, r1.FileItem("c.go"))

	r2 := r.ByIndex(2)
	a2 := r2.FileItem("a.go")
	require.NotNil(t, a2)
	assert.Equal(t, 1, a2.TouchingCommits)
	assert.Equal(t, 2, a2.BugFixes, "lifetime fix count is copied")
	assert.Equal(t, 5, a2.AddedLOC)
	assert.Equal(t, 3, a2.ChangeSetSize, "change set counts every reported path")
	assert.Equal(t, 3, a2.MaxChangeSetSize)
	assert.Equal(t, 3, a2.AvgChangeSetSize)
	assert.Equal(t, 2, a2.NumAuthors)
	assert.Equal(t, 4, a2.Age)
	assert.True(t, a2.Buggy)
	assert.True(t, r2.FileItem("c.go").Buggy)
	assert.False(t, r2.FileItem("b.go").Buggy)

	stats := acc.Stats()
	assert.Equal(t, 3, stats.Commits)
	assert.Equal(t, 1, stats.OutOfTimeline)
	assert.Equal(t, 1, stats.Unresolved)

	files := acc.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "a.go", files[0].Name)
	assert.Equal(t, at(2019, 12, 15), acc.File("a.go").CreationDate)
}

func TestAccumulatorLogsUnresolvedFile(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r, tk := fixture(t)
	acc := NewAccumulator(r, []*models.Ticket{tk}, logrus.NewEntry(logger))
	apply(acc)

	var unresolved []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if err, ok := e.Data[logrus.ErrorKey].(error); ok && errors.GetType(err) == errors.ErrorTypeUnresolved {
			unresolved = append(unresolved, e)
		}
	}
	require.Len(t, unresolved, 1)
	assert.ErrorIs(t, unresolved[0].Data[logrus.ErrorKey].(error), errors.ErrUnresolvedFile)
	assert.Equal(t, "gone.go", unresolved[0].Data["file"])
	assert.Equal(t, "c2", unresolved[0].Data["commit"])
}

func TestAccumulatorFinalizeInheritsEmptyReleases(t *testing.T) {
	r, tk := fixture(t)
	acc := NewAccumulator(r, []*models.Ticket{tk}, quietLogger())
	apply(acc)

	require.NoError(t, acc.Finalize(context.Background(), nil, 1))

	r2, r3, r4 := r.ByIndex(2), r.ByIndex(3), r.ByIndex(4)
	require.Len(t, r3.FileItems(), len(r2.FileItems()))
	for i, item := range r2.FileItems() {
		assert.Same(t, item, r3.FileItems()[i])
		assert.Same(t, item, r4.FileItems()[i])
	}
	assert.Equal(t, []int{3, 4}, acc.Stats().Inherited)
}

func TestAccumulatorFinalizeMeasuresSize(t *testing.T) {
	r, tk := fixture(t)
	acc := NewAccumulator(r, []*models.Ticket{tk}, quietLogger())
	apply(acc)

	sizer := &fakeSizer{fail: map[string]bool{"b.go": true}}
	require.NoError(t, acc.Finalize(context.Background(), sizer, 4))

	assert.Equal(t, 40, r.ByIndex(2).FileItem("a.go").Size)
	assert.Equal(t, 0, r.ByIndex(2).FileItem("b.go").Size)
	assert.Equal(t, 1, sizer.calls["c2:a.go"])
	assert.Equal(t, 1, sizer.calls["c1:a.go"])
	assert.Equal(t, 2, acc.Stats().SizeFailures)
}

func TestAccumulatorFinalizeHonoursCancellation(t *testing.T) {
	r, tk := fixture(t)
	acc := NewAccumulator(r, []*models.Ticket{tk}, quietLogger())
	apply(acc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := acc.Finalize(ctx, &fakeSizer{fail: map[string]bool{"a.go": true, "b.go": true, "c.go": true}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
