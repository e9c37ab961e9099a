package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/dataset"
	"github.com/rohankatakam/defectset/internal/evaluation"
	"github.com/rohankatakam/defectset/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Run statuses
const (
	RunMining    = "mining"
	RunMined     = "mined"
	RunEvaluated = "evaluated"
	RunFailed    = "failed"
)

// Run is the persisted summary of one pipeline execution
type Run struct {
	ID            string     `db:"id" json:"id"`
	Project       string     `db:"project" json:"project"`
	Status        string     `db:"status" json:"status"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	FinishedAt    *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Releases      int        `db:"releases" json:"releases"`
	ValidReleases int        `db:"valid_releases" json:"valid_releases"`
	Tickets       int        `db:"tickets" json:"tickets"`
	Rejected      int        `db:"rejected" json:"rejected"`
	Commits       int        `db:"commits" json:"commits"`
}

// Store persists runs so a mined dataset can be re-evaluated without re-mining
type Store interface {
	// Run operations
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	LatestRun(ctx context.Context, project string) (*Run, error)

	// Release operations
	SaveReleases(ctx context.Context, runID string, releases []*models.Release) error
	GetReleases(ctx context.Context, runID string) ([]*models.Release, error)

	// Ticket operations
	SaveTickets(ctx context.Context, runID string, tickets []*models.Ticket) error

	// Dataset operations
	SaveFileItems(ctx context.Context, runID string, releaseIndex int, items []*models.FileItem) error
	GetFileItems(ctx context.Context, runID string, releaseIndex int) ([]*models.FileItem, error)

	// Evaluation operations
	SaveEvaluations(ctx context.Context, runID string, results []evaluation.Result) error
	GetEvaluations(ctx context.Context, runID string) ([]evaluation.Result, error)

	// Close connection
	Close() error
}

// NewStore opens the store the configuration names. It returns nil for type "none".
func NewStore(cfg config.StorageConfig, logger *logrus.Entry) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		s, err := NewSQLiteStore(cfg.LocalPath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// LoadTable rebuilds the dataset of a stored run from its valid releases
func LoadTable(ctx context.Context, s Store, runID string) (dataset.Table, error) {
	releases, err := s.GetReleases(ctx, runID)
	if err != nil {
		return nil, err
	}
	var t dataset.Table
	for _, r := range releases {
		if !r.Valid {
			continue
		}
		items, err := s.GetFileItems(ctx, runID, r.Index)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			t = append(t, dataset.Row{Release: r.Index, Item: item})
		}
	}
	return t, nil
}

// ticketRow flattens a ticket's release references to indexes
type ticketRow struct {
	RunID           string    `db:"run_id"`
	Key             string    `db:"ticket_key"`
	Created         time.Time `db:"created"`
	Resolved        time.Time `db:"resolved"`
	OpeningVersion  int       `db:"opening_version"`
	FixedVersion    int       `db:"fixed_version"`
	InjectedVersion *int      `db:"injected_version"`
	Method          string    `db:"method"`
	Proportion      *float64  `db:"proportion"`
	Affected        []int     `db:"-"`
	Commits         []string  `db:"-"`
}

func newTicketRow(runID string, t *models.Ticket) ticketRow {
	row := ticketRow{
		RunID:    runID,
		Key:      t.Key,
		Created:  t.Created,
		Resolved: t.Resolved,
		Method:   t.Method.String(),
		Affected: t.AffectedIndexes(),
		Commits:  t.CommitHashes,
	}
	if t.OpeningVersion != nil {
		row.OpeningVersion = t.OpeningVersion.Index
	}
	if t.FixedVersion != nil {
		row.FixedVersion = t.FixedVersion.Index
	}
	if t.InjectedVersion != nil {
		iv := t.InjectedVersion.Index
		row.InjectedVersion = &iv
	}
	if t.HasP {
		p := t.P
		row.Proportion = &p
	}
	return row
}

const fileItemColumns = `name, num_authors, touching_commits, age, size, bug_fixes,
	added_loc, change_set_size, max_change_set_size, avg_change_set_size, buggy`

const releaseColumns = `release_index, external_id, name, release_date, valid`

const runColumns = `id, project, status, started_at, finished_at, releases,
	valid_releases, tickets, rejected, commits`

const evaluationColumns = `dataset, training_releases, pct_training, pct_train_defective,
	pct_test_defective, classifier, sampling, selection, tp, fp, tn, fn,
	precision_score, recall_score, auc, kappa`

// evaluationRow stores an undefined AUC as NULL
type evaluationRow struct {
	RunID             string   `db:"run_id"`
	Seq               int      `db:"seq"`
	Dataset           string   `db:"dataset"`
	TrainingReleases  int      `db:"training_releases"`
	PctTraining       float64  `db:"pct_training"`
	PctTrainDefective float64  `db:"pct_train_defective"`
	PctTestDefective  float64  `db:"pct_test_defective"`
	Classifier        string   `db:"classifier"`
	Sampling          string   `db:"sampling"`
	Selection         string   `db:"selection"`
	TP                int      `db:"tp"`
	FP                int      `db:"fp"`
	TN                int      `db:"tn"`
	FN                int      `db:"fn"`
	Precision         float64  `db:"precision_score"`
	Recall            float64  `db:"recall_score"`
	AUC               *float64 `db:"auc"`
	Kappa             float64  `db:"kappa"`
}

func newEvaluationRow(runID string, seq int, r evaluation.Result) evaluationRow {
	row := evaluationRow{
		RunID:             runID,
		Seq:               seq,
		Dataset:           r.Dataset,
		TrainingReleases:  r.TrainingReleases,
		PctTraining:       r.PctTraining,
		PctTrainDefective: r.PctTrainDefective,
		PctTestDefective:  r.PctTestDefective,
		Classifier:        r.Classifier,
		Sampling:          r.Sampling,
		Selection:         r.Selection,
		TP:                r.TP,
		FP:                r.FP,
		TN:                r.TN,
		FN:                r.FN,
		Precision:         r.Precision,
		Recall:            r.Recall,
		Kappa:             r.Kappa,
	}
	if !math.IsNaN(r.AUC) {
		auc := r.AUC
		row.AUC = &auc
	}
	return row
}

func (row evaluationRow) result() evaluation.Result {
	r := evaluation.Result{
		Dataset:           row.Dataset,
		TrainingReleases:  row.TrainingReleases,
		PctTraining:       row.PctTraining,
		PctTrainDefective: row.PctTrainDefective,
		PctTestDefective:  row.PctTestDefective,
		Classifier:        row.Classifier,
		Sampling:          row.Sampling,
		Selection:         row.Selection,
		TP:                row.TP,
		FP:                row.FP,
		TN:                row.TN,
		FN:                row.FN,
		Precision:         row.Precision,
		Recall:            row.Recall,
		AUC:               math.NaN(),
		Kappa:             row.Kappa,
	}
	if row.AUC != nil {
		r.AUC = *row.AUC
	}
	return r
}
