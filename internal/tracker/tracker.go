// Package tracker defines the issue-tracker boundary of the pipeline.
package tracker

import (
	"context"

	"github.com/rohankatakam/defectset/internal/models"
)

// Tracker returns a snapshot of a project's declared releases and its fixed
// bug tickets. Implementations exhaust pagination before returning.
type Tracker interface {
	Name() string
	Releases(ctx context.Context) ([]models.RawRelease, error)
	Tickets(ctx context.Context) ([]models.RawTicket, error)
}

// Static serves fixed data, for tests and offline replays
type Static struct {
	Project     string
	RawReleases []models.RawRelease
	RawTickets  []models.RawTicket
	Err         error
}

func (s *Static) Name() string { return s.Project }

func (s *Static) Releases(ctx context.Context) ([]models.RawRelease, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.RawReleases, ctx.Err()
}

func (s *Static) Tickets(ctx context.Context) ([]models.RawTicket, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.RawTickets, ctx.Err()
}
