package pipeline

import (
	"context"
	stderrors "errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/defectset/internal/dataset"
	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/git"
	"github.com/rohankatakam/defectset/internal/history"
	"github.com/rohankatakam/defectset/internal/models"
	"github.com/rohankatakam/defectset/internal/proportion"
	"github.com/rohankatakam/defectset/internal/release"
	"github.com/rohankatakam/defectset/internal/tickets"
)

// historyBatch is how many commits are mined ahead of the accumulator per worker
const historyBatch = 4

// ResolveReleases places the tracker's declared versions on the timeline
func (r *Run) ResolveReleases(ctx context.Context, p *Project) error {
	raw, err := r.Tracker.Releases(ctx)
	if err != nil {
		return errors.Unreachable(err, "issue tracker")
	}
	resolver, err := release.NewResolver(raw)
	if err != nil {
		return err
	}
	p.Resolver = resolver

	last := resolver.LastValid()
	fields := logrus.Fields{
		"declared": len(raw),
		"releases": len(resolver.Releases()),
		"valid":    len(resolver.Valid()),
	}
	if last != nil {
		fields["last_valid"] = last.Name
	}
	r.Logger.WithFields(fields).Info("releases resolved")
	return nil
}

// AssignTickets validates every fixed bug against the timeline
func (r *Run) AssignTickets(ctx context.Context, p *Project) error {
	raws, err := r.Tracker.Tickets(ctx)
	if err != nil {
		return errors.Unreachable(err, "issue tracker")
	}
	assigner := tickets.NewAssigner(p.Resolver, r.Logger.WithField("component", "tickets"))
	accepted, stats := assigner.AssignAll(raws)
	p.setTickets(accepted)
	p.TicketStats = stats

	r.Logger.WithFields(logrus.Fields{
		"fetched":  len(raws),
		"accepted": stats.Accepted,
		"rejected": stats.Rejected,
	}).Info("tickets assigned")
	return nil
}

// EstimateInjected fills in the injected version of tickets without evidence
func (r *Run) EstimateInjected(_ context.Context, p *Project) error {
	acc, err := proportion.Estimate(p.Tickets, p.Resolver)
	if err != nil {
		return err
	}
	p.Proportion = acc

	methods := make(map[string]int)
	for _, t := range p.Tickets {
		methods[t.Method.String()]++
	}
	r.Logger.WithFields(logrus.Fields{
		"evidence":   acc.Count,
		"proportion": acc.Mean,
		"methods":    methods,
	}).Info("injected versions estimated")
	return nil
}

// ExtractCommits fetches the fix commits of every ticket concurrently, then
// merges them into one list sorted by date and hash. A commit referencing
// several tickets belongs to the first of them in opening order.
func (r *Run) ExtractCommits(ctx context.Context, p *Project) error {
	until := p.Resolver.End()
	perTicket := make([][]models.Commit, len(p.Tickets))

	bar := r.Progress.Stage("commits", len(p.Tickets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, t := range p.Tickets {
		g.Go(func() error {
			commits, err := r.Miner.CommitsForTicket(gctx, t.Key, until)
			if err != nil {
				return errors.ExternalErrorf(err, "commits for %s", t.Key)
			}
			perTicket[i] = commits
			bar.Tick()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		bar.Fail(err)
		return err
	}
	bar.Done()

	// barrier: everything below is single-threaded and deterministic
	seen := make(map[string]bool)
	var merged []models.Commit
	for i, t := range p.Tickets {
		t.CommitHashes = t.CommitHashes[:0]
		for _, c := range perTicket[i] {
			if seen[c.Hash] {
				continue
			}
			seen[c.Hash] = true
			c.TicketKey = t.Key
			merged = append(merged, c)
			t.CommitHashes = append(t.CommitHashes, c.Hash)
		}
	}
	git.SortCommits(merged)
	p.Commits = merged

	r.Logger.WithField("commits", len(merged)).Info("fix commits extracted")
	return nil
}

type minedCommit struct {
	existing []string
	changed  []models.ChangedFile
}

// AccumulateHistory mines each commit's snapshot and change set and folds
// them in date order. Mining runs ahead in bounded batches; folding never
// starts on a batch until all of it is mined.
func (r *Run) AccumulateHistory(ctx context.Context, p *Project) error {
	acc := history.NewAccumulator(p.Resolver, p.Tickets, r.Logger.WithField("component", "history"))
	bar := r.Progress.Stage("history", len(p.Commits))

	batch := r.workers() * historyBatch
	for start := 0; start < len(p.Commits); start += batch {
		end := min(start+batch, len(p.Commits))
		mined, err := r.mineBatch(ctx, p.Commits[start:end])
		if err != nil {
			bar.Fail(err)
			return err
		}
		for i, m := range mined {
			acc.Apply(p.Commits[start+i], m.existing, m.changed)
			bar.Tick()
		}
	}
	bar.Done()

	var sizer history.Sizer
	if r.Config.Mining.MeasureSize {
		sizer = r.Miner
	}
	if err := acc.Finalize(ctx, sizer, r.workers()); err != nil {
		return errors.ExternalErrorf(err, "measure file sizes")
	}
	p.History = acc

	stats := acc.Stats()
	r.Logger.WithFields(logrus.Fields{
		"commits":         stats.Commits,
		"files":           len(acc.Files()),
		"out_of_timeline": stats.OutOfTimeline,
		"unresolved":      stats.Unresolved,
		"inherited":       stats.Inherited,
		"size_failures":   stats.SizeFailures,
	}).Info("history accumulated")
	return nil
}

func (r *Run) mineBatch(ctx context.Context, commits []models.Commit) ([]minedCommit, error) {
	out := make([]minedCommit, len(commits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, c := range commits {
		g.Go(func() error {
			existing, err := r.Miner.ListFiles(gctx, c.Hash)
			if err != nil {
				return errors.ExternalErrorf(err, "list files at %s", c.Hash)
			}
			changed, err := r.Miner.ChangedFiles(gctx, c.Hash)
			if err != nil {
				return errors.ExternalErrorf(err, "changed files of %s", c.Hash)
			}
			out[i] = minedCommit{existing: existing, changed: changed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteDatasets writes the release listing and the dataset files of the valid
// releases, then persists the run's entities when a store is configured.
// Any write failure ends the run.
func (r *Run) WriteDatasets(ctx context.Context, p *Project) error {
	sink := dataset.Sink{Dir: r.Config.Output.Dir, Project: p.Name}
	if err := sink.WriteReleases(p.Resolver.Releases()); err != nil {
		return err
	}
	paths, err := sink.WriteAll(p.Valid())
	if err != nil {
		return err
	}
	p.Paths = paths
	r.Logger.WithFields(logrus.Fields{
		"dataset":  paths.All,
		"releases": len(paths.PerRelease),
	}).Info("datasets written")

	return r.persist(ctx, p)
}

func (r *Run) persist(ctx context.Context, p *Project) error {
	if r.Store == nil {
		return nil
	}
	if err := r.Store.SaveReleases(ctx, r.ID, p.Resolver.Releases()); err != nil {
		return errors.DatabaseErrorf(err, "save releases")
	}
	if err := r.Store.SaveTickets(ctx, r.ID, p.Tickets); err != nil {
		return errors.DatabaseErrorf(err, "save tickets")
	}
	for _, rel := range p.Valid() {
		if err := r.Store.SaveFileItems(ctx, r.ID, rel.Index, rel.FileItems()); err != nil {
			return errors.DatabaseErrorf(err, "save release %d", rel.Index)
		}
	}
	return nil
}

// isCancel reports whether err only reflects the caller giving up
func isCancel(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
