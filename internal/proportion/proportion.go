// Package proportion estimates the release in which each defect was injected.
//
// Tickets that declare affected versions calibrate a running mean of the
// proportion coefficient P = (FV - IV) / (FV - OV). Tickets without that
// evidence get an injected version from the running mean, or from the
// release before their opening version while no evidence exists yet.
package proportion

import (
	"fmt"
	"math"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

// ErrUnsortedTickets is returned when Estimate receives tickets out of opening order
var ErrUnsortedTickets = errors.InternalErrorf("tickets are not in opening order")

// Timeline resolves releases by index, clamping indexes below 1
type Timeline interface {
	ByIndex(i int) *models.Release
}

// Running is the (count, mean) state of the incremental proportion fold
type Running struct {
	Count int
	Mean  float64
}

// Add folds one evidence-based P value into the running mean
func (r Running) Add(p float64) Running {
	n := float64(r.Count)
	return Running{
		Count: r.Count + 1,
		Mean:  (r.Mean*n + p) / (n + 1),
	}
}

// Coefficient computes P for the given indexes. ok is false when P is undefined.
func Coefficient(injected, opening, fixed int) (p float64, ok bool) {
	if injected == fixed || opening == fixed {
		return 0, false
	}
	return float64(fixed-injected) / float64(fixed-opening), true
}

// ApplyEvidence sets the injected version from the ticket's earliest affected
// version. A ticket claiming injection at or after its opening version loses
// its affected versions and is treated as carrying no evidence.
func ApplyEvidence(t *models.Ticket) {
	if len(t.AffectedVersions) == 0 || t.OpeningVersion.Index <= 1 {
		return
	}

	iv := t.AffectedVersions[0]
	if iv.Index >= t.OpeningVersion.Index {
		t.InjectedVersion = nil
		t.AffectedVersions = nil
		return
	}

	t.InjectedVersion = iv
	t.Method = models.MethodAffectedVersions
	t.P, t.HasP = Coefficient(iv.Index, t.OpeningVersion.Index, t.FixedVersion.Index)
}

// OpeningOrder reports whether a is processed before b: by opening version,
// then creation time, then key.
func OpeningOrder(a, b *models.Ticket) bool {
	if a.OpeningVersion.Index != b.OpeningVersion.Index {
		return a.OpeningVersion.Index < b.OpeningVersion.Index
	}
	if !a.Created.Equal(b.Created) {
		return a.Created.Before(b.Created)
	}
	return a.Key < b.Key
}

// Estimate walks tickets in opening order, folding evidence into the running
// mean and assigning an injected version plus synthesized affected versions to
// every ticket without evidence opened after release 1. It returns the final
// fold state.
func Estimate(tickets []*models.Ticket, timeline Timeline) (Running, error) {
	for i := 1; i < len(tickets); i++ {
		if OpeningOrder(tickets[i], tickets[i-1]) {
			return Running{}, fmt.Errorf("%w: %s precedes %s", ErrUnsortedTickets, tickets[i].Key, tickets[i-1].Key)
		}
	}

	var acc Running
	for _, t := range tickets {
		if t.OpeningVersion.Index == 1 {
			// nothing precedes release 1, so it is the injection point; only
			// declared affected versions label files
			t.InjectedVersion = timeline.ByIndex(1)
			t.Method = models.MethodFirstRelease
			continue
		}

		if t.HasEvidence() {
			if t.HasP {
				acc = acc.Add(t.P)
			}
			continue
		}

		Assign(t, acc, timeline)
	}
	return acc, nil
}

// Assign estimates the injected version of an evidence-free ticket from acc
func Assign(t *models.Ticket, acc Running, timeline Timeline) {
	fv := t.FixedVersion.Index
	ov := t.OpeningVersion.Index

	if acc.Count == 0 {
		t.InjectedVersion = timeline.ByIndex(ov - 1)
		t.Method = models.MethodSimple
	} else {
		estimated := fv - int(math.Round(float64(fv-ov)*acc.Mean))
		t.InjectedVersion = timeline.ByIndex(estimated)
		t.Method = models.MethodProportion
	}
	t.AffectedVersions = span(timeline, t.InjectedVersion.Index, fv)
}

// span returns releases from..to-1
func span(timeline Timeline, from, to int) []*models.Release {
	var out []*models.Release
	for i := from; i < to; i++ {
		if r := timeline.ByIndex(i); r != nil {
			out = append(out, r)
		}
	}
	return out
}
