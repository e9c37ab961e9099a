package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/dataset"
	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/evaluation"
	"github.com/rohankatakam/defectset/internal/report"
	"github.com/rohankatakam/defectset/internal/storage"
	"github.com/rohankatakam/defectset/internal/walkforward"
)

type stage struct {
	name string
	fn   func(context.Context, *Project) error
}

// Mine runs the mining stages in order. Each stage sees only the complete
// output of the stages before it.
func (r *Run) Mine(ctx context.Context) (*Project, error) {
	if r.Tracker == nil || r.Miner == nil {
		return nil, errors.ConfigErrorf("mining needs an issue tracker and a repository")
	}
	p := NewProject(r.projectName())
	if err := r.begin(ctx, p.Name, storage.RunMining); err != nil {
		return nil, err
	}

	stages := []stage{
		{"resolve releases", r.ResolveReleases},
		{"assign tickets", r.AssignTickets},
		{"estimate injected versions", r.EstimateInjected},
		{"extract commits", r.ExtractCommits},
		{"accumulate history", r.AccumulateHistory},
		{"write datasets", r.WriteDatasets},
	}
	for _, s := range stages {
		r.Logger.WithField("stage", s.name).Debug("stage started")
		if err := s.fn(ctx, p); err != nil {
			if !isCancel(err) {
				err = fmt.Errorf("%s: %w", s.name, err)
			}
			return p, r.fail(ctx, err)
		}
	}

	if r.record != nil {
		r.record.Releases = len(p.Resolver.Releases())
		r.record.ValidReleases = len(p.Valid())
		r.record.Tickets = len(p.Tickets)
		r.record.Rejected = p.TicketStats.Total() - p.TicketStats.Accepted
		r.record.Commits = len(p.Commits)
	}
	if err := r.finish(ctx, storage.RunMined); err != nil {
		return p, err
	}
	r.Logger.Info("mining complete")
	return p, nil
}

// EvaluateProject evaluates the valid releases of a project mined in this run
func (r *Run) EvaluateProject(ctx context.Context, p *Project) ([]evaluation.Result, error) {
	walk, err := walkforward.New(p.Valid())
	if err != nil {
		return nil, errors.InternalErrorf("walk-forward: %v", err)
	}
	return r.evaluate(ctx, p.Name, r.ID, walk)
}

// EvaluateDataset evaluates a dataset file written by an earlier run
func (r *Run) EvaluateDataset(ctx context.Context, path string) ([]evaluation.Result, error) {
	project := r.projectName()
	if path == "" {
		path = dataset.Sink{Dir: r.Config.Output.Dir, Project: project}.AllPath()
	}
	table, err := dataset.ReadTable(path)
	if err != nil {
		return nil, err
	}
	walk, err := walkforward.FromTable(table)
	if err != nil {
		return nil, errors.Malformedf("dataset %s: %v", path, err)
	}
	r.Logger.WithFields(logrus.Fields{"dataset": path, "rows": len(table)}).Info("dataset loaded")

	if err := r.begin(ctx, project, storage.RunMined); err != nil {
		return nil, err
	}
	return r.evaluate(ctx, project, r.ID, walk)
}

// EvaluateStored evaluates the dataset of a stored run. An empty runID picks
// the project's latest run.
func (r *Run) EvaluateStored(ctx context.Context, runID string) ([]evaluation.Result, error) {
	if r.Store == nil {
		return nil, errors.ConfigErrorf("evaluating a stored run needs storage configured")
	}
	project := r.projectName()

	var stored *storage.Run
	var err error
	if runID == "" {
		stored, err = r.Store.LatestRun(ctx, project)
	} else {
		stored, err = r.Store.GetRun(ctx, runID)
	}
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "find run for %s", project)
	}

	table, err := storage.LoadTable(ctx, r.Store, stored.ID)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "load dataset of run %s", stored.ID)
	}
	walk, err := walkforward.FromTable(table)
	if err != nil {
		return nil, errors.Malformedf("stored run %s: %v", stored.ID, err)
	}
	r.Logger.WithFields(logrus.Fields{"source_run": stored.ID, "rows": len(table)}).Info("stored dataset loaded")

	r.record = stored
	return r.evaluate(ctx, stored.Project, stored.ID, walk)
}

// evaluate runs the walk, writes the report and stores the results under runID
func (r *Run) evaluate(ctx context.Context, project, runID string, walk *walkforward.Builder) ([]evaluation.Result, error) {
	cfg := r.Config.Evaluation
	evaluator, err := evaluation.NewEvaluator(evaluation.Options{
		Dataset:     project,
		Classifiers: cfg.Classifiers,
		Samplings:   cfg.Samplings,
		Selections:  cfg.Selections,
		Seed:        cfg.Seed,
		Trees:       cfg.Trees,
		Workers:     cfg.Workers,
	}, r.Logger)
	if err != nil {
		return nil, errors.ConfigErrorf("evaluation: %v", err)
	}

	if walk.Len() == 0 {
		r.Logger.Warn("fewer than two valid releases, nothing to evaluate")
	}
	bar := r.Progress.Stage("evaluation", walk.Len())
	results, err := evaluator.Run(ctx, walk, walk.Total(), func(walkforward.Step) { bar.Tick() })
	if err != nil {
		bar.Fail(err)
		return nil, r.fail(ctx, err)
	}
	bar.Done()

	path, err := report.Sink{Dir: r.Config.Output.Dir, Project: project}.Write(results)
	if err != nil {
		return results, r.fail(ctx, errors.FileSystemErrorf(err, "write evaluation report"))
	}
	r.Logger.WithFields(logrus.Fields{"report": path, "rows": len(results)}).Info("evaluation written")

	if r.Store != nil {
		if err := r.Store.SaveEvaluations(ctx, runID, results); err != nil {
			return results, errors.DatabaseErrorf(err, "save evaluations")
		}
	}
	if err := r.finish(ctx, storage.RunEvaluated); err != nil {
		return results, err
	}
	return results, nil
}
