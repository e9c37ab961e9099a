// Package tickets validates tracker records against the release timeline.
package tickets

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
	"github.com/rohankatakam/defectset/internal/proportion"
)

// Rejection reasons
const (
	ReasonNoFixVersion      = "no-fix-version"
	ReasonNoOpeningVersion  = "no-opening-version"
	ReasonFixedBeforeOpened = "fixed-before-opened"
)

// Timeline is the subset of the release resolver the assigner needs
type Timeline interface {
	Next(date time.Time) *models.Release
	ByName(name string) *models.Release
}

// Stats counts the outcome of AssignAll
type Stats struct {
	Accepted int
	Rejected map[string]int
}

// Total is the number of records seen
func (s Stats) Total() int {
	n := s.Accepted
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// Assigner maps raw tickets onto opening, fixed and affected versions
type Assigner struct {
	timeline Timeline
	logger   *logrus.Entry
}

// NewAssigner creates an assigner over a resolved timeline
func NewAssigner(timeline Timeline, logger *logrus.Entry) *Assigner {
	return &Assigner{timeline: timeline, logger: logger}
}

// Assign validates one record. A rejection wraps errors.ErrRejectedTicket and
// carries the reason under the "reason" context key.
func (a *Assigner) Assign(raw models.RawTicket) (*models.Ticket, error) {
	fixed := a.fixedVersion(raw)
	if fixed == nil {
		return nil, reject(raw.Key, ReasonNoFixVersion)
	}

	opening := a.timeline.Next(raw.Created)
	if opening == nil {
		return nil, reject(raw.Key, ReasonNoOpeningVersion)
	}

	if opening.Index >= fixed.Index {
		return nil, reject(raw.Key, ReasonFixedBeforeOpened)
	}

	t := &models.Ticket{
		Key:              raw.Key,
		Created:          raw.Created,
		Resolved:         raw.Resolved,
		OpeningVersion:   opening,
		FixedVersion:     fixed,
		AffectedVersions: a.affectedVersions(raw.Versions),
	}
	proportion.ApplyEvidence(t)
	return t, nil
}

// AssignAll validates every record and returns the accepted tickets in opening order
func (a *Assigner) AssignAll(raws []models.RawTicket) ([]*models.Ticket, Stats) {
	stats := Stats{Rejected: make(map[string]int)}
	accepted := make([]*models.Ticket, 0, len(raws))

	for _, raw := range raws {
		t, err := a.Assign(raw)
		if err != nil {
			reason := "unknown"
			if e, ok := err.(*errors.Error); ok {
				if r, ok := e.Context["reason"].(string); ok {
					reason = r
				}
			}
			stats.Rejected[reason]++
			if a.logger != nil {
				a.logger.WithField("ticket", raw.Key).WithField("reason", reason).Debug("ticket rejected")
			}
			continue
		}
		accepted = append(accepted, t)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return proportion.OpeningOrder(accepted[i], accepted[j])
	})
	stats.Accepted = len(accepted)
	return accepted, stats
}

// fixedVersion resolves declared fix versions by name, keeping the earliest,
// and falls back to the release following the resolution date.
func (a *Assigner) fixedVersion(raw models.RawTicket) *models.Release {
	var fixed *models.Release
	for _, name := range raw.FixVersions {
		r := a.timeline.ByName(name)
		if r == nil {
			continue
		}
		if fixed == nil || r.Index < fixed.Index {
			fixed = r
		}
	}
	if fixed != nil {
		return fixed
	}
	if raw.Resolved.IsZero() {
		return nil
	}
	return a.timeline.Next(raw.Resolved)
}

func (a *Assigner) affectedVersions(names []string) []*models.Release {
	seen := make(map[int]bool, len(names))
	var out []*models.Release
	for _, name := range names {
		r := a.timeline.ByName(name)
		if r == nil || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func reject(key, reason string) error {
	return errors.Rejectedf("ticket %s rejected: %s", key, reason).
		WithContext("ticket", key).
		WithContext("reason", reason)
}
