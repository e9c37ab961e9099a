// Package pipeline sequences the mining stages and the walk-forward evaluation
// of one project.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/git"
	"github.com/rohankatakam/defectset/internal/logging"
	"github.com/rohankatakam/defectset/internal/progress"
	"github.com/rohankatakam/defectset/internal/storage"
	"github.com/rohankatakam/defectset/internal/tracker"
)

// Options are the collaborators of a run. Tracker and Miner are only needed
// for mining; Store and Progress are optional.
type Options struct {
	Config   *config.Config
	Tracker  tracker.Tracker
	Miner    git.Miner
	Store    storage.Store
	Progress *progress.Reporter
	Logger   *logging.Logger
}

// Run carries everything scoped to one execution. Nothing here is shared
// between runs.
type Run struct {
	ID       string
	Config   *config.Config
	Logger   *logrus.Entry
	Tracker  tracker.Tracker
	Miner    git.Miner
	Store    storage.Store
	Progress *progress.Reporter

	record *storage.Run
	now    func() time.Time
}

// NewRun assigns a run ID and binds the logger to it
func NewRun(opts Options) *Run {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	id := uuid.NewString()

	var logger *logrus.Entry
	if opts.Logger != nil {
		logger = opts.Logger.ForRun(id, cfg.Project)
	} else {
		logger = logging.Discard().WithFields(logrus.Fields{"run_id": id, "project": cfg.Project})
	}

	reporter := opts.Progress
	if reporter == nil {
		reporter = progress.Disabled()
	}

	return &Run{
		ID:       id,
		Config:   cfg,
		Logger:   logger,
		Tracker:  opts.Tracker,
		Miner:    opts.Miner,
		Store:    opts.Store,
		Progress: reporter,
		now:      time.Now,
	}
}

// projectName prefers the configured name over the tracker's
func (r *Run) projectName() string {
	if r.Config.Project != "" {
		return r.Config.Project
	}
	if r.Tracker != nil {
		return r.Tracker.Name()
	}
	return "project"
}

func (r *Run) workers() int {
	if r.Config.Mining.Workers < 1 {
		return 1
	}
	return r.Config.Mining.Workers
}

// begin records the run as started
func (r *Run) begin(ctx context.Context, project, status string) error {
	r.record = &storage.Run{
		ID:        r.ID,
		Project:   project,
		Status:    status,
		StartedAt: r.now().UTC(),
	}
	return r.saveRecord(ctx)
}

// finish records the final status. A failed run keeps whatever it stored so far.
func (r *Run) finish(ctx context.Context, status string) error {
	if r.record == nil {
		return nil
	}
	done := r.now().UTC()
	r.record.Status = status
	r.record.FinishedAt = &done
	return r.saveRecord(ctx)
}

func (r *Run) saveRecord(ctx context.Context) error {
	if r.Store == nil {
		return nil
	}
	if err := r.Store.SaveRun(ctx, r.record); err != nil {
		return errors.DatabaseErrorf(err, "save run %s", r.ID)
	}
	return nil
}

// fail marks the run failed without masking the error that caused it
func (r *Run) fail(ctx context.Context, cause error) error {
	if err := r.finish(context.WithoutCancel(ctx), storage.RunFailed); err != nil {
		r.Logger.WithError(err).Warn("could not record failed run")
	}
	r.Logger.WithError(cause).WithFields(logrus.Fields{
		"error_type": errors.GetType(cause).String(),
		"severity":   errors.GetSeverity(cause).String(),
	}).Error("run failed")
	return cause
}
