package models

import (
	"sort"
	"time"
)

// File is the lifetime record of one path across all mined commits
type File struct {
	Name         string    `json:"name" db:"name"`
	CreationDate time.Time `json:"creation_date" db:"creation_date"`
	BugFixes     int       `json:"bug_fixes" db:"bug_fixes"`
	Age          int       `json:"age" db:"age"`

	authors map[string]struct{}
}

// NewFile starts a file's history at its first sighting
func NewFile(name string, seen time.Time) *File {
	return &File{
		Name:         name,
		CreationDate: seen,
		authors:      make(map[string]struct{}),
	}
}

// Observe records a sighting at date by author. Age never decreases,
// so an out-of-order sighting leaves it untouched.
func (f *File) Observe(date time.Time, author string) {
	if age := WeeksBetween(f.CreationDate, date); age > f.Age {
		f.Age = age
	}
	if author != "" {
		f.authors[author] = struct{}{}
	}
}

// NumAuthors is the number of distinct authors seen so far
func (f *File) NumAuthors() int {
	return len(f.authors)
}

// Authors returns the distinct authors in sorted order
func (f *File) Authors() []string {
	out := make([]string, 0, len(f.authors))
	for a := range f.authors {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// WeeksBetween counts whole weeks between the calendar dates of start and end,
// zero when end precedes start
func WeeksBetween(start, end time.Time) int {
	days := int(calendarDate(end).Sub(calendarDate(start)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days / 7
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FileItem holds one file's metrics as observed within one release
type FileItem struct {
	Name             string `json:"name" db:"name"`
	NumAuthors       int    `json:"num_authors" db:"num_authors"`
	TouchingCommits  int    `json:"touching_commits" db:"touching_commits"`
	Age              int    `json:"age" db:"age"`
	Size             int    `json:"size" db:"size"`
	BugFixes         int    `json:"bug_fixes" db:"bug_fixes"`
	AddedLOC         int    `json:"added_loc" db:"added_loc"`
	ChangeSetSize    int    `json:"change_set_size" db:"change_set_size"`
	// MaxChangeSetSize is the largest change set of a single touching commit,
	// not the running sum
	MaxChangeSetSize int    `json:"max_change_set_size" db:"max_change_set_size"`
	AvgChangeSetSize int    `json:"avg_change_set_size" db:"avg_change_set_size"`
	Buggy            bool   `json:"buggy" db:"buggy"`

	// LastCommit is the latest commit of the release that observed this file
	LastCommit string `json:"-" db:"-"`
}

// NewFileItem creates an empty record for name
func NewFileItem(name string) *FileItem {
	return &FileItem{Name: name}
}

// Touch folds one change set of changeSetSize files that added added lines to this file
func (fi *FileItem) Touch(added, changeSetSize int) {
	fi.TouchingCommits++
	fi.AddedLOC += added
	fi.ChangeSetSize += changeSetSize
	if changeSetSize > fi.MaxChangeSetSize {
		fi.MaxChangeSetSize = changeSetSize
	}
	fi.Recompute()
}

// Recompute derives the average change-set size from the running sum.
// Calling it again without a new Touch changes nothing.
func (fi *FileItem) Recompute() {
	if fi.TouchingCommits == 0 {
		fi.AvgChangeSetSize = 0
		return
	}
	fi.AvgChangeSetSize = fi.ChangeSetSize / fi.TouchingCommits
}

// SyncFile copies the lifetime attributes of f onto the release record
func (fi *FileItem) SyncFile(f *File) {
	fi.NumAuthors = f.NumAuthors()
	fi.Age = f.Age
}
