package tickets

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
	"github.com/rohankatakam/defectset/internal/release"
)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func newResolver(t *testing.T) *release.Resolver {
	t.Helper()
	r, err := release.NewResolver([]models.RawRelease{
		{ID: "1", Name: "1.0", Date: ptr(at(2020, 1, 1))},
		{ID: "2", Name: "1.1", Date: ptr(at(2020, 2, 1))},
		{ID: "3", Name: "1.2", Date: ptr(at(2020, 4, 1))},
		{ID: "4", Name: "1.3", Date: ptr(at(2020, 6, 30))},
	})
	require.NoError(t, err)
	return r
}

func newAssigner(t *testing.T) *Assigner {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewAssigner(newResolver(t), logrus.NewEntry(logger))
}

func TestAssignFixVersionByName(t *testing.T) {
	a := newAssigner(t)

	tk, err := a.Assign(models.RawTicket{
		Key:         "P-1",
		Created:     at(2019, 12, 20),
		Resolved:    at(2020, 6, 1),
		FixVersions: []string{"1.3", "1.2", "9.9"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, tk.FixedVersion.Index, "earliest named fix version wins")
	assert.Equal(t, 1, tk.OpeningVersion.Index)
}

func TestAssignFixVersionFallsBackToResolutionDate(t *testing.T) {
	a := newAssigner(t)

	tk, err := a.Assign(models.RawTicket{
		Key:         "P-2",
		Created:     at(2020, 1, 10),
		Resolved:    at(2020, 3, 1),
		FixVersions: []string{"unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, tk.FixedVersion.Index)
	assert.Equal(t, 2, tk.OpeningVersion.Index)
}

func TestAssignRejections(t *testing.T) {
	a := newAssigner(t)

	tests := []struct {
		name   string
		raw    models.RawTicket
		reason string
	}{
		{
			name:   "resolved after last release",
			raw:    models.RawTicket{Key: "R-1", Created: at(2020, 1, 10), Resolved: at(2020, 8, 1)},
			reason: ReasonNoFixVersion,
		},
		{
			name:   "opened after last release",
			raw:    models.RawTicket{Key: "R-2", Created: at(2020, 7, 10), Resolved: at(2020, 8, 1), FixVersions: []string{"1.3"}},
			reason: ReasonNoOpeningVersion,
		},
		{
			name:   "fixed in its opening release",
			raw:    models.RawTicket{Key: "R-3", Created: at(2020, 2, 10), Resolved: at(2020, 3, 1)},
			reason: ReasonFixedBeforeOpened,
		},
		{
			name:   "fixed before opened",
			raw:    models.RawTicket{Key: "R-4", Created: at(2020, 4, 10), FixVersions: []string{"1.1"}},
			reason: ReasonFixedBeforeOpened,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk, err := a.Assign(tt.raw)
			assert.Nil(t, tk)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrRejectedTicket)
			assert.False(t, errors.IsFatal(err))
			assert.Equal(t, tt.reason, err.(*errors.Error).Context["reason"])
		})
	}
}

func TestAssignAffectedVersions(t *testing.T) {
	a := newAssigner(t)

	tk, err := a.Assign(models.RawTicket{
		Key:         "A-1",
		Created:     at(2020, 3, 1),
		Resolved:    at(2020, 5, 1),
		FixVersions: []string{"1.3"},
		Versions:    []string{"1.1", "nope", "1.0", "1.1"},
	})
	require.NoError(t, err)
	require.Len(t, tk.AffectedVersions, 2)
	assert.Equal(t, 1, tk.AffectedVersions[0].Index, "affected versions are date sorted")
	assert.Equal(t, 2, tk.AffectedVersions[1].Index)

	require.NotNil(t, tk.InjectedVersion)
	assert.Equal(t, 1, tk.InjectedVersion.Index)
	assert.True(t, tk.HasP)
	// (4-1)/(4-3)
	assert.InDelta(t, 3.0, tk.P, 1e-9)
}

func TestAssignDiscardsInconsistentAffectedVersions(t *testing.T) {
	a := newAssigner(t)

	tk, err := a.Assign(models.RawTicket{
		Key:         "A-2",
		Created:     at(2020, 1, 10),
		FixVersions: []string{"1.3"},
		Versions:    []string{"1.2"},
	})
	require.NoError(t, err)
	assert.Nil(t, tk.InjectedVersion)
	assert.Empty(t, tk.AffectedVersions)
}

func TestAssignAllSortsAndCounts(t *testing.T) {
	a := newAssigner(t)

	accepted, stats := a.AssignAll([]models.RawTicket{
		{Key: "K-3", Created: at(2020, 3, 1), FixVersions: []string{"1.3"}},
		{Key: "K-1", Created: at(2020, 1, 20), FixVersions: []string{"1.3"}},
		{Key: "K-9", Created: at(2020, 7, 20), FixVersions: []string{"1.3"}},
		{Key: "K-2", Created: at(2020, 1, 10), FixVersions: []string{"1.2"}},
		{Key: "K-4", Created: at(2020, 3, 1), FixVersions: []string{"1.3"}},
	})

	keys := make([]string, 0, len(accepted))
	for _, tk := range accepted {
		keys = append(keys, tk.Key)
		assert.Less(t, tk.OpeningVersion.Index, tk.FixedVersion.Index)
	}
	assert.Equal(t, []string{"K-2", "K-1", "K-3", "K-4"}, keys)
	assert.Equal(t, 4, stats.Accepted)
	assert.Equal(t, 1, stats.Rejected[ReasonNoOpeningVersion])
	assert.Equal(t, 5, stats.Total())
}
