package git

import (
	"context"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

type logEntry struct {
	hash    string
	author  string
	date    time.Time
	message string
}

// GoGitMiner reads the repository in-process with go-git. The first
// CommitsForTicket call loads the commit log once; later calls filter it.
type GoGitMiner struct {
	repo *gogit.Repository
	mu   sync.Mutex

	logOnce sync.Once
	log     []logEntry
	logErr  error
}

// OpenGoGitMiner opens the repository containing repoPath
func OpenGoGitMiner(repoPath string) (*GoGitMiner, error) {
	repo, err := gogit.PlainOpenWithOptions(repoPath, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, errors.ConfigErrorf("open repository %s: %v", repoPath, err)
	}
	return &GoGitMiner{repo: repo}, nil
}

func (m *GoGitMiner) commit(hash string) (*object.Commit, error) {
	c, err := m.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, errors.ExternalErrorf(err, "commit %s", hash)
	}
	return c, nil
}

func (m *GoGitMiner) ListFiles(ctx context.Context, hash string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.commit(hash)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, errors.ExternalErrorf(err, "tree of %s", hash)
	}

	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		files = append(files, f.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ChangedFiles diffs against the first parent, or the empty tree for a root commit
func (m *GoGitMiner) ChangedFiles(ctx context.Context, hash string) ([]models.ChangedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := m.commit(hash)
	if err != nil {
		return nil, err
	}
	stats, err := c.StatsContext(ctx)
	if err != nil {
		return nil, errors.ExternalErrorf(err, "stats of %s", hash)
	}

	changed := make([]models.ChangedFile, 0, len(stats))
	for _, s := range stats {
		changed = append(changed, models.ChangedFile{Path: s.Name, Added: s.Addition})
	}
	return changed, nil
}

func (m *GoGitMiner) CommitsForTicket(ctx context.Context, key string, until time.Time) ([]models.Commit, error) {
	entries, err := m.loadLog(ctx)
	if err != nil {
		return nil, err
	}

	match := KeyMatcher(key)
	var commits []models.Commit
	for _, e := range entries {
		if e.date.After(until) || !match.MatchString(e.message) {
			continue
		}
		commits = append(commits, models.Commit{
			Hash:      e.hash,
			Author:    e.author,
			Date:      e.date,
			TicketKey: key,
		})
	}
	SortCommits(commits)
	return commits, nil
}

func (m *GoGitMiner) loadLog(ctx context.Context) ([]logEntry, error) {
	m.logOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		iter, err := m.repo.Log(&gogit.LogOptions{})
		if err != nil {
			m.logErr = errors.ExternalErrorf(err, "git log")
			return
		}
		defer iter.Close()

		m.logErr = iter.ForEach(func(c *object.Commit) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.log = append(m.log, logEntry{
				hash:    c.Hash.String(),
				author:  c.Author.Name,
				date:    c.Committer.When,
				message: c.Message,
			})
			return nil
		})
	})
	return m.log, m.logErr
}

func (m *GoGitMiner) FileLines(ctx context.Context, hash, path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c, err := m.commit(hash)
	if err != nil {
		return 0, err
	}
	f, err := c.File(path)
	if err != nil {
		return 0, errors.ExternalErrorf(err, "%s at %s", path, hash)
	}
	contents, err := f.Contents()
	if err != nil {
		return 0, errors.ExternalErrorf(err, "read %s at %s", path, hash)
	}
	n := strings.Count(contents, "\n")
	if len(contents) > 0 && !strings.HasSuffix(contents, "\n") {
		n++
	}
	return n, nil
}
