// Package dataset turns accumulated release records into labeled feature tables.
package dataset

import (
	"github.com/rohankatakam/defectset/internal/models"
)

// Columns is the fixed column order of every dataset file
var Columns = []string{
	"Release", "File", "NAuth", "NR", "Age", "Size", "NFix",
	"LOC_Added", "ChgSetSize", "Max_ChgSetSize", "Avg_ChgSetSize", "Buggy",
}

// FeatureNames are the numeric predictor columns, in file order
var FeatureNames = Columns[2:11]

const (
	LabelYes = "Yes"
	LabelNo  = "No"
)

// Row is one FileItem as observed in one release
type Row struct {
	Release int
	Item    *models.FileItem
}

// Table is an ordered set of rows
type Table []Row

// FromRelease builds the table of a single release
func FromRelease(r *models.Release) Table {
	items := r.FileItems()
	t := make(Table, 0, len(items))
	for _, item := range items {
		t = append(t, Row{Release: r.Index, Item: item})
	}
	return t
}

// FromReleases concatenates the tables of releases in the given order
func FromReleases(releases []*models.Release) Table {
	var t Table
	for _, r := range releases {
		t = append(t, FromRelease(r)...)
	}
	return t
}

// Features returns the predictor values of the row in FeatureNames order
func (r Row) Features() []float64 {
	it := r.Item
	return []float64{
		float64(it.NumAuthors),
		float64(it.TouchingCommits),
		float64(it.Age),
		float64(it.Size),
		float64(it.BugFixes),
		float64(it.AddedLOC),
		float64(it.ChangeSetSize),
		float64(it.MaxChangeSetSize),
		float64(it.AvgChangeSetSize),
	}
}

// Label returns the class value of the row
func (r Row) Label() string {
	if r.Item.Buggy {
		return LabelYes
	}
	return LabelNo
}

// Buggy counts the rows labeled Yes
func (t Table) Buggy() int {
	n := 0
	for _, r := range t {
		if r.Item.Buggy {
			n++
		}
	}
	return n
}

// MaxRelease is the highest release index in the table, 0 when empty
func (t Table) MaxRelease() int {
	highest := 0
	for _, r := range t {
		if r.Release > highest {
			highest = r.Release
		}
	}
	return highest
}

// Matrix splits the table into feature rows and boolean labels
func (t Table) Matrix() ([][]float64, []bool) {
	x := make([][]float64, len(t))
	y := make([]bool, len(t))
	for i, r := range t {
		x[i] = r.Features()
		y[i] = r.Item.Buggy
	}
	return x, y
}
