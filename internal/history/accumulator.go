// Package history folds mined commits into per-file and per-release metrics.
package history

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

// Timeline is the subset of the release resolver the accumulator needs
type Timeline interface {
	Next(date time.Time) *models.Release
	ByIndex(i int) *models.Release
	Releases() []*models.Release
}

// Sizer measures the line count of a file at a commit
type Sizer interface {
	FileLines(ctx context.Context, hash, path string) (int, error)
}

// Stats summarises an accumulation run
type Stats struct {
	Commits        int
	OutOfTimeline  int
	Unresolved     int
	UnknownTickets int
	Inherited      []int
	SizeFailures   int
}

// Accumulator applies commits in date order. It is not safe for concurrent use.
type Accumulator struct {
	timeline Timeline
	tickets  map[string]*models.Ticket
	files    map[string]*models.File
	logger   *logrus.Entry

	seeded   bool
	lastDate time.Time
	stats    Stats
}

// NewAccumulator creates an accumulator for the accepted tickets
func NewAccumulator(timeline Timeline, tickets []*models.Ticket, logger *logrus.Entry) *Accumulator {
	byKey := make(map[string]*models.Ticket, len(tickets))
	for _, t := range tickets {
		byKey[t.Key] = t
	}
	return &Accumulator{
		timeline: timeline,
		tickets:  byKey,
		files:    make(map[string]*models.File),
		logger:   logger,
	}
}

// Apply folds one commit given the files existing at it and the files it changed.
// The first commit's snapshot also seeds release 1. Commits after the last
// release are ignored.
func (a *Accumulator) Apply(commit models.Commit, existing []string, changed []models.ChangedFile) {
	if commit.Date.Before(a.lastDate) {
		a.logger.WithField("commit", commit.Hash).Warn("commit applied out of date order")
	}
	a.lastDate = commit.Date
	a.stats.Commits++

	if !a.seeded {
		a.seeded = true
		if first := a.timeline.ByIndex(1); first != nil {
			a.observe(first, commit, existing)
		}
	}

	rel := a.timeline.Next(commit.Date)
	if rel == nil {
		a.stats.OutOfTimeline++
		return
	}

	a.observe(rel, commit, existing)
	a.touch(rel, commit, changed)
}

// observe records the snapshot of files existing at commit into rel
func (a *Accumulator) observe(rel *models.Release, commit models.Commit, existing []string) {
	for _, name := range existing {
		f, ok := a.files[name]
		if !ok {
			f = models.NewFile(name, commit.Date)
			a.files[name] = f
		}
		f.Observe(commit.Date, commit.Author)

		item := rel.AddFileItem(models.NewFileItem(name))
		item.SyncFile(f)
		item.LastCommit = commit.Hash
	}
}

// touch folds the commit's change set into rel and labels affected releases
func (a *Accumulator) touch(rel *models.Release, commit models.Commit, changed []models.ChangedFile) {
	ticket, ok := a.tickets[commit.TicketKey]
	if !ok {
		a.stats.UnknownTickets++
	}

	for _, cf := range changed {
		f := a.files[cf.Path]
		item := rel.FileItem(cf.Path)
		if f == nil || item == nil {
			a.stats.Unresolved++
			a.logger.WithError(errors.ErrUnresolvedFile).WithFields(logrus.Fields{
				"commit": commit.Hash,
				"file":   cf.Path,
			}).Debug("skipping unresolved file reference")
			continue
		}

		f.BugFixes++
		item.BugFixes = f.BugFixes
		item.Touch(cf.Added, len(changed))

		if ticket == nil {
			continue
		}
		for _, av := range ticket.AffectedVersions {
			if target := av.FileItem(cf.Path); target != nil {
				target.Buggy = true
			}
		}
	}
}

// Finalize measures file sizes at each release's last observed commit, then
// lets every empty release inherit the records of the release before it.
// A nil sizer leaves sizes at zero.
func (a *Accumulator) Finalize(ctx context.Context, sizer Sizer, workers int) error {
	if sizer != nil {
		if err := a.measure(ctx, sizer, workers); err != nil {
			return err
		}
	}

	releases := a.timeline.Releases()
	for i := 1; i < len(releases); i++ {
		if len(releases[i].FileItems()) == 0 {
			releases[i].InheritFrom(releases[i-1])
			a.stats.Inherited = append(a.stats.Inherited, releases[i].Index)
		}
	}
	return nil
}

func (a *Accumulator) measure(ctx context.Context, sizer Sizer, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var failures atomic.Int64
	count := 0
	for _, rel := range a.timeline.Releases() {
		for _, item := range rel.FileItems() {
			if item.LastCommit == "" {
				continue
			}
			item := item
			g.Go(func() error {
				lines, err := sizer.FileLines(gctx, item.LastCommit, item.Name)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failures.Add(1)
					a.logger.WithError(err).WithField("file", item.Name).Debug("size unavailable")
					return nil
				}
				item.Size = lines
				return nil
			})
			count++
		}
	}
	err := g.Wait()
	a.stats.SizeFailures += int(failures.Load())
	a.logger.WithField("files", count).Debug("measured file sizes")
	return err
}

// Files returns every file seen, ordered by name
func (a *Accumulator) Files() []*models.File {
	out := make([]*models.File, 0, len(a.files))
	for _, f := range a.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// File returns the lifetime record for name, or nil
func (a *Accumulator) File(name string) *models.File {
	return a.files[name]
}

func (a *Accumulator) Stats() Stats {
	return a.stats
}
