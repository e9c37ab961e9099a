package git

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/rohankatakam/defectset/internal/models"
)

// Miner answers the version-control questions the pipeline asks per commit
// and per ticket. Implementations must be safe for concurrent use.
type Miner interface {
	// ListFiles returns every path existing at hash
	ListFiles(ctx context.Context, hash string) ([]string, error)
	// ChangedFiles returns the paths hash changed with their added line counts
	ChangedFiles(ctx context.Context, hash string) ([]models.ChangedFile, error)
	// CommitsForTicket returns commits up to until whose message references key
	CommitsForTicket(ctx context.Context, key string, until time.Time) ([]models.Commit, error)
	// FileLines counts the lines of path at hash
	FileLines(ctx context.Context, hash, path string) (int, error)
}

// KeyPattern matches key in a commit message without matching longer keys
// that share its prefix (PROJ-12 must not match PROJ-123 or XPROJ-12).
func KeyPattern(key string) string {
	return `(^|[^A-Za-z0-9_-])` + regexp.QuoteMeta(key) + `([^0-9]|$)`
}

// KeyMatcher compiles KeyPattern for in-process filtering
func KeyMatcher(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)` + KeyPattern(key))
}

// SortCommits orders commits by date, then hash
func SortCommits(commits []models.Commit) {
	sort.SliceStable(commits, func(i, j int) bool {
		if !commits[i].Date.Equal(commits[j].Date) {
			return commits[i].Date.Before(commits[j].Date)
		}
		return commits[i].Hash < commits[j].Hash
	})
}
