package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReleaseAddFileItemIgnoresDuplicates(t *testing.T) {
	r := &Release{Index: 1, Name: "1.0"}

	first := r.AddFileItem(NewFileItem("a.go"))
	first.TouchingCommits = 3

	again := r.AddFileItem(NewFileItem("a.go"))
	assert.Same(t, first, again)
	assert.Len(t, r.FileItems(), 1)
	assert.Equal(t, 3, r.FileItem("a.go").TouchingCommits)
	assert.Nil(t, r.FileItem("b.go"))
}

func TestReleaseInheritFromSharesRecords(t *testing.T) {
	prev := &Release{Index: 1}
	prev.AddFileItem(NewFileItem("a.go"))
	prev.AddFileItem(NewFileItem("b.go"))

	next := &Release{Index: 2}
	next.InheritFrom(prev)

	require.Len(t, next.FileItems(), 2)
	assert.Same(t, prev.FileItem("a.go"), next.FileItem("a.go"))
	assert.Equal(t, "b.go", next.FileItems()[1].Name)
}

func TestFileItemTouch(t *testing.T) {
	fi := NewFileItem("a.go")
	fi.Touch(10, 4)
	fi.Touch(5, 2)
	fi.Touch(1, 3)

	assert.Equal(t, 3, fi.TouchingCommits)
	assert.Equal(t, 16, fi.AddedLOC)
	assert.Equal(t, 9, fi.ChangeSetSize)
	assert.Equal(t, 4, fi.MaxChangeSetSize, "largest single change set, not the running sum")
	assert.Equal(t, 3, fi.AvgChangeSetSize)
}

func TestFileItemRecomputeIsIdempotent(t *testing.T) {
	fi := NewFileItem("a.go")
	fi.Touch(0, 5)
	fi.Touch(0, 2)
	before := *fi

	fi.Recompute()
	fi.Recompute()
	assert.Equal(t, before, *fi)
	assert.Equal(t, 3, fi.AvgChangeSetSize)
}

func TestFileObserve(t *testing.T) {
	f := NewFile("a.go", day(2020, 1, 1))
	f.Observe(day(2020, 1, 20), "alice")
	assert.Equal(t, 2, f.Age)

	f.Observe(day(2020, 1, 5), "bob")
	assert.Equal(t, 2, f.Age, "age must not decrease")
	assert.Equal(t, []string{"alice", "bob"}, f.Authors())

	f.Observe(day(2020, 3, 1), "alice")
	assert.Equal(t, 8, f.Age)
	assert.Equal(t, 2, f.NumAuthors())

	fi := NewFileItem("a.go")
	fi.SyncFile(f)
	assert.Equal(t, 2, fi.NumAuthors)
	assert.Equal(t, 8, fi.Age)
}

func TestWeeksBetween(t *testing.T) {
	assert.Equal(t, 0, WeeksBetween(day(2020, 1, 1), day(2020, 1, 7)))
	assert.Equal(t, 1, WeeksBetween(day(2020, 1, 1), day(2020, 1, 8)))
	assert.Equal(t, 0, WeeksBetween(day(2020, 2, 1), day(2020, 1, 1)))

	// 23:00 on Jan 1 at UTC-5 to 00:30 on Jan 8 at UTC+1 is under 7 elapsed days
	// but 7 calendar days apart
	west := time.Date(2020, 1, 1, 23, 0, 0, 0, time.FixedZone("", -5*3600))
	east := time.Date(2020, 1, 8, 0, 30, 0, 0, time.FixedZone("", 3600))
	assert.Equal(t, 1, WeeksBetween(west, east))
}

func TestEstimationMethodString(t *testing.T) {
	assert.Equal(t, "proportion", MethodProportion.String())
	assert.Equal(t, "simple", MethodSimple.String())
	assert.Equal(t, "none", MethodNone.String())
}
