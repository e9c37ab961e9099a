// Package release places tracker versions on the project timeline.
package release

import (
	"sort"
	"time"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

// Resolver orders releases by date and answers timeline queries
type Resolver struct {
	releases  []*models.Release
	byName    map[string]*models.Release
	lastValid *models.Release
	start     time.Time
	end       time.Time
}

// Day keeps the calendar date t carries in its own location, stamped at
// midnight UTC so dates from different offsets compare by day
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewResolver builds the release timeline. Entries without a date are dropped.
// Releases dated before the midpoint of the first and last release dates are valid.
func NewResolver(raw []models.RawRelease) (*Resolver, error) {
	releases := make([]*models.Release, 0, len(raw))
	for _, rr := range raw {
		if rr.Date == nil {
			continue
		}
		releases = append(releases, &models.Release{
			ExternalID: rr.ID,
			Name:       rr.Name,
			Date:       Day(*rr.Date),
		})
	}
	if len(releases) == 0 {
		return nil, errors.ErrNoReleases
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Date.Before(releases[j].Date)
	})

	r := &Resolver{
		releases: releases,
		byName:   make(map[string]*models.Release, len(releases)),
		start:    releases[0].Date,
		end:      releases[len(releases)-1].Date,
	}

	spanDays := int(r.end.Sub(r.start).Hours() / 24)
	midpoint := r.start.AddDate(0, 0, spanDays/2)

	for i, rel := range releases {
		rel.Index = i + 1
		rel.Valid = rel.Date.Before(midpoint)
		if rel.Valid {
			r.lastValid = rel
		}
		// the earliest release wins a name clash
		if _, ok := r.byName[rel.Name]; !ok {
			r.byName[rel.Name] = rel
		}
	}
	return r, nil
}

// Next returns the first release dated strictly after date, or nil
func (r *Resolver) Next(date time.Time) *models.Release {
	d := Day(date)
	i := sort.Search(len(r.releases), func(i int) bool {
		return r.releases[i].Date.After(d)
	})
	if i == len(r.releases) {
		return nil
	}
	return r.releases[i]
}

// ByIndex returns the release at 1-based index i. Indexes below 1 clamp to 1.
func (r *Resolver) ByIndex(i int) *models.Release {
	if i < 1 {
		i = 1
	}
	if i > len(r.releases) {
		return nil
	}
	return r.releases[i-1]
}

// ByName returns the release named name, or nil
func (r *Resolver) ByName(name string) *models.Release {
	return r.byName[name]
}

// Releases returns every release in index order
func (r *Resolver) Releases() []*models.Release {
	return r.releases
}

// LastValid returns the last release in the first half of the project, or nil
func (r *Resolver) LastValid() *models.Release {
	return r.lastValid
}

// Valid returns releases 1..LastValid
func (r *Resolver) Valid() []*models.Release {
	if r.lastValid == nil {
		return nil
	}
	return r.releases[:r.lastValid.Index]
}

func (r *Resolver) Start() time.Time { return r.start }
func (r *Resolver) End() time.Time   { return r.end }
