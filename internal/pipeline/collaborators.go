package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/git"
	"github.com/rohankatakam/defectset/internal/logging"
	"github.com/rohankatakam/defectset/internal/tracker"
	"github.com/rohankatakam/defectset/internal/tracker/github"
	"github.com/rohankatakam/defectset/internal/tracker/jira"
)

// NewTracker builds the issue tracker the configuration names
func NewTracker(cfg config.TrackerConfig, logger *logrus.Entry) (tracker.Tracker, error) {
	logger = logging.OrDiscard(logger)
	switch cfg.Type {
	case "", "jira":
		return jira.NewClient(jira.Options{
			BaseURL:   cfg.BaseURL,
			Project:   cfg.ProjectKey,
			User:      cfg.User,
			Token:     cfg.Token,
			PageSize:  cfg.PageSize,
			RateLimit: cfg.RateLimit,
		}, logger), nil
	case "github":
		client, err := github.NewClient(github.Options{
			Owner:         cfg.Owner,
			Repo:          cfg.Repo,
			Token:         cfg.Token,
			BaseURL:       cfg.BaseURL,
			BugLabel:      cfg.BugLabel,
			AffectsPrefix: cfg.AffectsLabelPrefix,
			RateLimit:     cfg.RateLimit,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, errors.ConfigErrorf("unknown tracker type %q", cfg.Type)
	}
}

// OpenMiner validates the repository and builds the configured miner, wrapped
// in the on-disk cache when a cache path is set. The returned close function
// releases the cache.
func OpenMiner(ctx context.Context, repo config.RepositoryConfig, mining config.MiningConfig, logger *logrus.Entry) (git.Miner, func() error, error) {
	logger = logging.OrDiscard(logger)
	noop := func() error { return nil }

	var miner git.Miner
	switch repo.Miner {
	case "", "cli":
		if err := git.ValidateRepo(ctx, repo.Path); err != nil {
			return nil, noop, err
		}
		miner = git.NewCLIMiner(repo.Path)
	case "gogit":
		m, err := git.OpenGoGitMiner(repo.Path)
		if err != nil {
			return nil, noop, err
		}
		miner = m
	default:
		return nil, noop, errors.ConfigErrorf("unknown miner %q", repo.Miner)
	}

	if mining.CachePath == "" {
		return miner, noop, nil
	}
	cached, err := git.NewCachedMiner(miner, mining.CachePath)
	if err != nil {
		// mining still works without the cache, only slower
		logger.WithError(err).Warn("miner cache unavailable")
		return miner, noop, nil
	}
	logger.WithField("cache", mining.CachePath).Debug("miner cache enabled")
	return cached, cached.Close, nil
}
