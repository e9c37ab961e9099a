package models

import (
	"time"
)

// Release is one declared project version placed on the timeline
type Release struct {
	Index      int       `json:"index" db:"release_index"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Name       string    `json:"name" db:"name"`
	Date       time.Time `json:"date" db:"release_date"`
	Valid      bool      `json:"valid" db:"valid"`

	items  []*FileItem
	byName map[string]*FileItem
}

// AddFileItem appends item unless the release already holds one with the same name.
// It returns the item stored under that name.
func (r *Release) AddFileItem(item *FileItem) *FileItem {
	if r.byName == nil {
		r.byName = make(map[string]*FileItem)
	}
	if existing, ok := r.byName[item.Name]; ok {
		return existing
	}
	r.byName[item.Name] = item
	r.items = append(r.items, item)
	return item
}

// FileItem returns the release's record for name, or nil
func (r *Release) FileItem(name string) *FileItem {
	return r.byName[name]
}

// FileItems returns the release's records in insertion order
func (r *Release) FileItems() []*FileItem {
	return r.items
}

// InheritFrom shares prev's records with r. Only meaningful while r is empty.
func (r *Release) InheritFrom(prev *Release) {
	for _, item := range prev.items {
		r.AddFileItem(item)
	}
}

// EstimationMethod records how a ticket's injected version was obtained
type EstimationMethod int

const (
	MethodNone EstimationMethod = iota
	// MethodAffectedVersions - earliest declared affected version
	MethodAffectedVersions
	// MethodFirstRelease - opened in release 1, nothing earlier to inject into
	MethodFirstRelease
	// MethodSimple - release preceding the opening version
	MethodSimple
	// MethodProportion - incremental proportion estimate
	MethodProportion
)

func (m EstimationMethod) String() string {
	switch m {
	case MethodAffectedVersions:
		return "affected-versions"
	case MethodFirstRelease:
		return "first-release"
	case MethodSimple:
		return "simple"
	case MethodProportion:
		return "proportion"
	default:
		return "none"
	}
}

// Ticket is an accepted bug report placed on the release timeline
type Ticket struct {
	Key      string    `json:"key" db:"key"`
	Created  time.Time `json:"created" db:"created"`
	Resolved time.Time `json:"resolved" db:"resolved"`

	OpeningVersion   *Release   `json:"-"`
	FixedVersion     *Release   `json:"-"`
	InjectedVersion  *Release   `json:"-"`
	AffectedVersions []*Release `json:"-"`

	CommitHashes []string `json:"commit_hashes"`

	// P is meaningful only when HasP is set
	P      float64          `json:"p" db:"proportion"`
	HasP   bool             `json:"has_p" db:"has_p"`
	Method EstimationMethod `json:"method" db:"method"`
}

// HasEvidence reports whether the ticket carries usable affected-version data
func (t *Ticket) HasEvidence() bool {
	return t.InjectedVersion != nil && len(t.AffectedVersions) > 0 && t.Method == MethodAffectedVersions
}

// AffectedIndexes returns the indexes of the affected versions in order
func (t *Ticket) AffectedIndexes() []int {
	out := make([]int, 0, len(t.AffectedVersions))
	for _, r := range t.AffectedVersions {
		out = append(out, r.Index)
	}
	return out
}

// Commit is a fix commit referencing exactly one accepted ticket
type Commit struct {
	Hash      string    `json:"hash" db:"hash"`
	Author    string    `json:"author" db:"author"`
	Date      time.Time `json:"date" db:"commit_date"`
	TicketKey string    `json:"ticket_key" db:"ticket_key"`
}

// ChangedFile is one entry of a commit's change set
type ChangedFile struct {
	Path  string `json:"path"`
	Added int    `json:"added"`
}

// RawRelease is a declared version as reported by the tracker. Date is nil when undeclared.
type RawRelease struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Date *time.Time `json:"date,omitempty"`
}

// RawTicket is a resolved bug record as reported by the tracker
type RawTicket struct {
	Key         string    `json:"key"`
	Created     time.Time `json:"created"`
	Resolved    time.Time `json:"resolved"`
	FixVersions []string  `json:"fix_versions"`
	Versions    []string  `json:"versions"`
}
