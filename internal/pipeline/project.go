package pipeline

import (
	"github.com/rohankatakam/defectset/internal/dataset"
	"github.com/rohankatakam/defectset/internal/history"
	"github.com/rohankatakam/defectset/internal/models"
	"github.com/rohankatakam/defectset/internal/proportion"
	"github.com/rohankatakam/defectset/internal/release"
	"github.com/rohankatakam/defectset/internal/tickets"
)

// Project owns every entity mined for one project. Tickets and commits refer
// to each other by key; lookups go through the project.
type Project struct {
	Name string

	Resolver    *release.Resolver
	Tickets     []*models.Ticket
	TicketStats tickets.Stats
	Proportion  proportion.Running
	Commits     []models.Commit
	History     *history.Accumulator
	Paths       dataset.Paths

	ticketIndex map[string]*models.Ticket
}

// NewProject creates an empty aggregate
func NewProject(name string) *Project {
	return &Project{Name: name, ticketIndex: make(map[string]*models.Ticket)}
}

// Ticket looks up an accepted ticket by key
func (p *Project) Ticket(key string) *models.Ticket {
	return p.ticketIndex[key]
}

func (p *Project) setTickets(ts []*models.Ticket) {
	p.Tickets = ts
	p.ticketIndex = make(map[string]*models.Ticket, len(ts))
	for _, t := range ts {
		p.ticketIndex[t.Key] = t
	}
}

// Valid returns the releases that make up the dataset
func (p *Project) Valid() []*models.Release {
	if p.Resolver == nil {
		return nil
	}
	return p.Resolver.Valid()
}
