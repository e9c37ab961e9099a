// Package github reads releases and fixed bugs from GitHub milestones and issues.
//
// Milestones with a due or close date are releases. Closed issues carrying the
// bug label are tickets; the issue's milestone is its fix version and labels
// with the affects prefix name its affected versions.
package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

const (
	DefaultBugLabel      = "bug"
	DefaultAffectsPrefix = "affects:"
)

// Options configures a Client
type Options struct {
	Owner         string
	Repo          string
	Token         string
	BaseURL       string
	BugLabel      string
	AffectsPrefix string
	RateLimit     float64
}

// Client wraps the GitHub API client with rate limiting
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	opts        Options
	logger      *logrus.Entry
}

// NewClient creates a GitHub tracker for owner/repo
func NewClient(opts Options, logger *logrus.Entry) (*Client, error) {
	client := github.NewClient(nil)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, errors.ConfigErrorf("invalid github base url %q: %v", opts.BaseURL, err)
		}
		client.BaseURL = u
	}
	if opts.BugLabel == "" {
		opts.BugLabel = DefaultBugLabel
	}
	if opts.AffectsPrefix == "" {
		opts.AffectsPrefix = DefaultAffectsPrefix
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(limit, 1),
		opts:        opts,
		logger:      logger.WithField("tracker", "github"),
	}, nil
}

func (c *Client) Name() string {
	return c.opts.Owner + "/" + c.opts.Repo
}

// Releases lists every milestone. The due date is the release date, falling
// back to the close date; open milestones without a due date have none.
func (c *Client) Releases(ctx context.Context) ([]models.RawRelease, error) {
	opts := &github.MilestoneListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []models.RawRelease
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		milestones, resp, err := c.client.Issues.ListMilestones(ctx, c.opts.Owner, c.opts.Repo, opts)
		if err != nil {
			return nil, errors.ExternalErrorf(err, "list milestones")
		}

		for _, m := range milestones {
			rr := models.RawRelease{
				ID:   fmt.Sprintf("%d", m.GetNumber()),
				Name: m.GetTitle(),
			}
			switch {
			case m.DueOn != nil:
				d := m.GetDueOn().Time
				rr.Date = &d
			case m.ClosedAt != nil:
				d := m.GetClosedAt().Time
				rr.Date = &d
			}
			out = append(out, rr)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// Tickets lists closed, completed issues labeled as bugs. Pull requests and
// issues closed as not planned are skipped.
func (c *Client) Tickets(ctx context.Context) ([]models.RawTicket, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "closed",
		Labels:      []string{c.opts.BugLabel},
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []models.RawTicket
	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		issues, resp, err := c.client.Issues.ListByRepo(ctx, c.opts.Owner, c.opts.Repo, opts)
		if err != nil {
			return nil, errors.ExternalErrorf(err, "list issues")
		}

		for _, issue := range issues {
			if issue.IsPullRequest() || issue.GetStateReason() == "not_planned" {
				continue
			}
			if issue.CreatedAt == nil {
				c.logger.WithError(errors.ErrMalformedRecord).WithField("issue", issue.GetNumber()).Warn("skipping issue without creation date")
				continue
			}
			out = append(out, c.ticket(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) ticket(issue *github.Issue) models.RawTicket {
	t := models.RawTicket{
		Key:     Key(issue.GetNumber()),
		Created: issue.GetCreatedAt().Time,
	}
	if issue.ClosedAt != nil {
		t.Resolved = issue.GetClosedAt().Time
	}
	if m := issue.GetMilestone(); m != nil && m.GetTitle() != "" {
		t.FixVersions = []string{m.GetTitle()}
	}
	for _, l := range issue.Labels {
		name := l.GetName()
		if strings.HasPrefix(name, c.opts.AffectsPrefix) {
			t.Versions = append(t.Versions, strings.TrimSpace(strings.TrimPrefix(name, c.opts.AffectsPrefix)))
		}
	}
	return t
}

// Key is how an issue is referenced from commit messages
func Key(number int) string {
	return fmt.Sprintf("#%d", number)
}
