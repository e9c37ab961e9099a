package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/evaluation"
	"github.com/rohankatakam/defectset/internal/logging"
	"github.com/rohankatakam/defectset/internal/models"
)

// SQLiteStore implements storage using SQLite (for local runs)
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

// NewSQLiteStore opens or creates the database at path
func NewSQLiteStore(path string, logger *logrus.Entry) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL lets a reader inspect a run while another is being written
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{
		db:     db,
		logger: logging.OrDiscard(logger).WithField("component", "storage"),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		releases INTEGER NOT NULL DEFAULT 0,
		valid_releases INTEGER NOT NULL DEFAULT 0,
		tickets INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		commits INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS releases (
		run_id TEXT NOT NULL,
		release_index INTEGER NOT NULL,
		external_id TEXT,
		name TEXT,
		release_date DATETIME,
		valid BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, release_index),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tickets (
		run_id TEXT NOT NULL,
		ticket_key TEXT NOT NULL,
		created DATETIME,
		resolved DATETIME,
		opening_version INTEGER,
		fixed_version INTEGER,
		injected_version INTEGER,
		affected_versions TEXT,
		commit_hashes TEXT,
		method TEXT,
		proportion REAL,
		PRIMARY KEY (run_id, ticket_key),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS file_items (
		run_id TEXT NOT NULL,
		release_index INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		num_authors INTEGER,
		touching_commits INTEGER,
		age INTEGER,
		size INTEGER,
		bug_fixes INTEGER,
		added_loc INTEGER,
		change_set_size INTEGER,
		max_change_set_size INTEGER,
		avg_change_set_size INTEGER,
		buggy BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, release_index, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		dataset TEXT,
		training_releases INTEGER,
		pct_training REAL,
		pct_train_defective REAL,
		pct_test_defective REAL,
		classifier TEXT,
		sampling TEXT,
		selection TEXT,
		tp INTEGER,
		fp INTEGER,
		tn INTEGER,
		fn INTEGER,
		precision_score REAL,
		recall_score REAL,
		auc REAL,
		kappa REAL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Run operations
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (:id, :project, :status, :started_at, :finished_at, :releases,
			:valid_releases, :tickets, :rejected, :commits)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			releases = excluded.releases,
			valid_releases = excluded.valid_releases,
			tickets = excluded.tickets,
			rejected = excluded.rejected,
			commits = excluded.commits
	`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"run_id": run.ID, "status": run.Status}).Debug("run saved")
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	if err := s.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context, project string) (*Run, error) {
	var run Run
	query := `SELECT ` + runColumns + ` FROM runs WHERE project = ? ORDER BY started_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &run, query, project); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &run, nil
}

// Release operations
func (s *SQLiteStore) SaveReleases(ctx context.Context, runID string, releases []*models.Release) error {
	if len(releases) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO releases
		(run_id, release_index, external_id, name, release_date, valid)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, r := range releases {
		_, err := tx.ExecContext(ctx, query, runID, r.Index, r.ExternalID, r.Name, r.Date, r.Valid)
		if err != nil {
			return fmt.Errorf("save release %d: %w", r.Index, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetReleases(ctx context.Context, runID string) ([]*models.Release, error) {
	var releases []*models.Release
	query := `SELECT ` + releaseColumns + ` FROM releases WHERE run_id = ? ORDER BY release_index`
	if err := s.db.SelectContext(ctx, &releases, query, runID); err != nil {
		return nil, fmt.Errorf("get releases: %w", err)
	}
	return releases, nil
}

// Ticket operations
func (s *SQLiteStore) SaveTickets(ctx context.Context, runID string, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO tickets
		(run_id, ticket_key, created, resolved, opening_version, fixed_version,
		 injected_version, affected_versions, commit_hashes, method, proportion)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, t := range tickets {
		row := newTicketRow(runID, t)
		_, err := tx.ExecContext(ctx, query,
			row.RunID, row.Key, row.Created, row.Resolved,
			row.OpeningVersion, row.FixedVersion, row.InjectedVersion,
			joinInts(row.Affected), strings.Join(row.Commits, ","),
			row.Method, row.Proportion)
		if err != nil {
			return fmt.Errorf("save ticket %s: %w", t.Key, err)
		}
	}
	return tx.Commit()
}

// Dataset operations
func (s *SQLiteStore) SaveFileItems(ctx context.Context, runID string, releaseIndex int, items []*models.FileItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_items WHERE run_id = ? AND release_index = ?`, runID, releaseIndex); err != nil {
		return fmt.Errorf("clear file items: %w", err)
	}

	query := `
		INSERT INTO file_items
		(run_id, release_index, seq, ` + fileItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for seq, it := range items {
		_, err := tx.ExecContext(ctx, query,
			runID, releaseIndex, seq, it.Name, it.NumAuthors, it.TouchingCommits,
			it.Age, it.Size, it.BugFixes, it.AddedLOC, it.ChangeSetSize,
			it.MaxChangeSetSize, it.AvgChangeSetSize, it.Buggy)
		if err != nil {
			return fmt.Errorf("save file item %s: %w", it.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetFileItems(ctx context.Context, runID string, releaseIndex int) ([]*models.FileItem, error) {
	var items []*models.FileItem
	query := `SELECT ` + fileItemColumns + ` FROM file_items
		WHERE run_id = ? AND release_index = ? ORDER BY seq`
	if err := s.db.SelectContext(ctx, &items, query, runID, releaseIndex); err != nil {
		return nil, fmt.Errorf("get file items: %w", err)
	}
	return items, nil
}

// Evaluation operations
func (s *SQLiteStore) SaveEvaluations(ctx context.Context, runID string, results []evaluation.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// a re-evaluation replaces the previous report
	if _, err := tx.ExecContext(ctx, `DELETE FROM evaluations WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear evaluations: %w", err)
	}

	query := `
		INSERT INTO evaluations (run_id, seq, ` + evaluationColumns + `)
		VALUES (:run_id, :seq, :dataset, :training_releases, :pct_training,
			:pct_train_defective, :pct_test_defective, :classifier, :sampling,
			:selection, :tp, :fp, :tn, :fn, :precision_score, :recall_score, :auc, :kappa)
	`
	for seq, r := range results {
		if _, err := tx.NamedExecContext(ctx, query, newEvaluationRow(runID, seq, r)); err != nil {
			return fmt.Errorf("save evaluation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetEvaluations(ctx context.Context, runID string) ([]evaluation.Result, error) {
	var rows []evaluationRow
	query := `SELECT run_id, seq, ` + evaluationColumns + ` FROM evaluations
		WHERE run_id = ? ORDER BY seq`
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("get evaluations: %w", err)
	}
	results := make([]evaluation.Result, len(rows))
	for i, row := range rows {
		results[i] = row.result()
	}
	return results, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
