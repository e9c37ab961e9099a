// Package walkforward splits valid releases into time-respecting train/test pairs.
package walkforward

import (
	"fmt"

	"github.com/rohankatakam/defectset/internal/dataset"
	"github.com/rohankatakam/defectset/internal/models"
)

// Step is one evaluation round: train on releases 1..TrainingReleases, test on the next one
type Step struct {
	TrainingReleases int
	Training         dataset.Table
	Testing          dataset.Table
}

// Builder walks the valid releases in index order
type Builder struct {
	releases []*models.Release
}

// New creates a builder over the valid releases, which must be in index order
// starting at 1.
func New(valid []*models.Release) (*Builder, error) {
	for i, r := range valid {
		if r.Index != i+1 {
			return nil, fmt.Errorf("valid release %d has index %d", i+1, r.Index)
		}
	}
	return &Builder{releases: valid}, nil
}

// FromTable regroups a dataset read back from disk or storage into releases
// 1..MaxRelease and builds the walk over them.
func FromTable(t dataset.Table) (*Builder, error) {
	releases := make([]*models.Release, t.MaxRelease())
	for i := range releases {
		releases[i] = &models.Release{Index: i + 1, Valid: true}
	}
	for _, row := range t {
		if row.Release < 1 {
			return nil, fmt.Errorf("row %s has release index %d", row.Item.Name, row.Release)
		}
		releases[row.Release-1].AddFileItem(row.Item)
	}
	return New(releases)
}

// Len is the number of steps the walk produces
func (b *Builder) Len() int {
	if len(b.releases) < 2 {
		return 0
	}
	return len(b.releases) - 1
}

// Walk calls fn for r = 1..numValid-1. The training table grows by one release
// per step and never holds rows from a release after r. Walk stops at the first
// error fn returns.
func (b *Builder) Walk(fn func(Step) error) error {
	var training dataset.Table
	for r := 1; r < len(b.releases); r++ {
		training = append(training, dataset.FromRelease(b.releases[r-1])...)

		step := Step{
			TrainingReleases: r,
			// capped: appends by fn must not alias the next step
			Training: training[:len(training):len(training)],
			Testing:  dataset.FromRelease(b.releases[r]),
		}
		if err := fn(step); err != nil {
			return err
		}
	}
	return nil
}

// Steps materialises every step of the walk
func (b *Builder) Steps() []Step {
	steps := make([]Step, 0, b.Len())
	_ = b.Walk(func(s Step) error {
		steps = append(steps, s)
		return nil
	})
	return steps
}

// Total is the number of rows across all valid releases
func (b *Builder) Total() int {
	n := 0
	for _, r := range b.releases {
		n += len(r.FileItems())
	}
	return n
}
