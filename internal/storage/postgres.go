package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/evaluation"
	"github.com/rohankatakam/defectset/internal/logging"
	"github.com/rohankatakam/defectset/internal/models"
)

// PostgresStore implements storage using PostgreSQL, for result databases
// shared between machines
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

// NewPostgresStore connects and creates the schema when missing
func NewPostgresStore(dsn string, logger *logrus.Entry) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{
		db:     db,
		logger: logging.OrDiscard(logger).WithField("component", "storage"),
	}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		releases INTEGER NOT NULL DEFAULT 0,
		valid_releases INTEGER NOT NULL DEFAULT 0,
		tickets INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		commits INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS releases (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		release_index INTEGER NOT NULL,
		external_id TEXT,
		name TEXT,
		release_date TIMESTAMPTZ,
		valid BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, release_index)
	);

	CREATE TABLE IF NOT EXISTS tickets (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		ticket_key TEXT NOT NULL,
		created TIMESTAMPTZ,
		resolved TIMESTAMPTZ,
		opening_version INTEGER,
		fixed_version INTEGER,
		injected_version INTEGER,
		affected_versions INTEGER[],
		commit_hashes TEXT[],
		method TEXT,
		proportion DOUBLE PRECISION,
		PRIMARY KEY (run_id, ticket_key)
	);

	CREATE TABLE IF NOT EXISTS file_items (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
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
		PRIMARY KEY (run_id, release_index, name)
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		dataset TEXT,
		training_releases INTEGER,
		pct_training DOUBLE PRECISION,
		pct_train_defective DOUBLE PRECISION,
		pct_test_defective DOUBLE PRECISION,
		classifier TEXT,
		sampling TEXT,
		selection TEXT,
		tp INTEGER,
		fp INTEGER,
		tn INTEGER,
		fn INTEGER,
		precision_score DOUBLE PRECISION,
		recall_score DOUBLE PRECISION,
		auc DOUBLE PRECISION,
		kappa DOUBLE PRECISION,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Run operations

func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (:id, :project, :status, :started_at, :finished_at, :releases,
			:valid_releases, :tickets, :rejected, :commits)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			releases = EXCLUDED.releases,
			valid_releases = EXCLUDED.valid_releases,
			tickets = EXCLUDED.tickets,
			rejected = EXCLUDED.rejected,
			commits = EXCLUDED.commits
	`
	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"run_id": run.ID, "status": run.Status}).Debug("run saved")
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	if err := s.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

func (s *PostgresStore) LatestRun(ctx context.Context, project string) (*Run, error) {
	var run Run
	query := `SELECT ` + runColumns + ` FROM runs WHERE project = $1 ORDER BY started_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &run, query, project); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &run, nil
}

// Release operations

func (s *PostgresStore) SaveReleases(ctx context.Context, runID string, releases []*models.Release) error {
	if len(releases) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO releases (run_id, release_index, external_id, name, release_date, valid)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, release_index) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			name = EXCLUDED.name,
			release_date = EXCLUDED.release_date,
			valid = EXCLUDED.valid
	`
	for _, r := range releases {
		if _, err := tx.ExecContext(ctx, query, runID, r.Index, r.ExternalID, r.Name, r.Date, r.Valid); err != nil {
			return fmt.Errorf("save release %d: %w", r.Index, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetReleases(ctx context.Context, runID string) ([]*models.Release, error) {
	var releases []*models.Release
	query := `SELECT ` + releaseColumns + ` FROM releases WHERE run_id = $1 ORDER BY release_index`
	if err := s.db.SelectContext(ctx, &releases, query, runID); err != nil {
		return nil, fmt.Errorf("get releases: %w", err)
	}
	return releases, nil
}

// Ticket operations

func (s *PostgresStore) SaveTickets(ctx context.Context, runID string, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tickets (run_id, ticket_key, created, resolved, opening_version,
			fixed_version, injected_version, affected_versions, commit_hashes, method, proportion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, ticket_key) DO UPDATE SET
			injected_version = EXCLUDED.injected_version,
			affected_versions = EXCLUDED.affected_versions,
			commit_hashes = EXCLUDED.commit_hashes,
			method = EXCLUDED.method,
			proportion = EXCLUDED.proportion
	`
	for _, t := range tickets {
		row := newTicketRow(runID, t)
		affected := make([]int64, len(row.Affected))
		for i, v := range row.Affected {
			affected[i] = int64(v)
		}
		_, err := tx.ExecContext(ctx, query,
			row.RunID, row.Key, row.Created, row.Resolved,
			row.OpeningVersion, row.FixedVersion, row.InjectedVersion,
			pq.Array(affected), pq.Array(row.Commits), row.Method, row.Proportion)
		if err != nil {
			return fmt.Errorf("save ticket %s: %w", t.Key, err)
		}
	}
	return tx.Commit()
}

// Dataset operations

func (s *PostgresStore) SaveFileItems(ctx context.Context, runID string, releaseIndex int, items []*models.FileItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM file_items WHERE run_id = $1 AND release_index = $2`, runID, releaseIndex); err != nil {
		return fmt.Errorf("clear file items: %w", err)
	}

	query := `
		INSERT INTO file_items (run_id, release_index, seq, ` + fileItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
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

func (s *PostgresStore) GetFileItems(ctx context.Context, runID string, releaseIndex int) ([]*models.FileItem, error) {
	var items []*models.FileItem
	query := `SELECT ` + fileItemColumns + ` FROM file_items
		WHERE run_id = $1 AND release_index = $2 ORDER BY seq`
	if err := s.db.SelectContext(ctx, &items, query, runID, releaseIndex); err != nil {
		return nil, fmt.Errorf("get file items: %w", err)
	}
	return items, nil
}

// Evaluation operations

func (s *PostgresStore) SaveEvaluations(ctx context.Context, runID string, results []evaluation.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM evaluations WHERE run_id = $1`, runID); err != nil {
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

func (s *PostgresStore) GetEvaluations(ctx context.Context, runID string) ([]evaluation.Result, error) {
	var rows []evaluationRow
	query := `SELECT run_id, seq, ` + evaluationColumns + ` FROM evaluations
		WHERE run_id = $1 ORDER BY seq`
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("get evaluations: %w", err)
	}
	results := make([]evaluation.Result, len(rows))
	for i, row := range rows {
		results[i] = row.result()
	}
	return results, nil
}
