// Package jira reads releases and fixed bugs from the Jira REST API v2.
package jira

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

const (
	DefaultBaseURL  = "https://issues.apache.org/jira"
	DefaultPageSize = 1000

	searchFields = "key,resolutiondate,versions,fixVersions,created"
	dateLayout   = "2006-01-02"
	stampLayout  = "2006-01-02T15:04:05.000-0700"
)

// Options configures a Client
type Options struct {
	BaseURL   string
	Project   string
	User      string
	Token     string
	PageSize  int
	RateLimit float64
	Timeout   time.Duration
}

// Client is a rate-limited Jira reader
type Client struct {
	opts        Options
	http        *http.Client
	rateLimiter *rate.Limiter
	logger      *logrus.Entry
	skipped     int
}

// NewClient creates a Jira client for one project
func NewClient(opts Options, logger *logrus.Entry) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &Client{
		opts:        opts,
		http:        &http.Client{Timeout: opts.Timeout},
		rateLimiter: rate.NewLimiter(limit, 1),
		logger:      logger.WithField("tracker", "jira"),
	}
}

func (c *Client) Name() string {
	return strings.ToUpper(c.opts.Project)
}

// Skipped is the number of malformed records dropped so far
func (c *Client) Skipped() int {
	return c.skipped
}

// Releases lists the project's versions. Versions without a release date are
// returned with a nil Date.
func (c *Client) Releases(ctx context.Context) ([]models.RawRelease, error) {
	body, err := c.get(ctx, "/rest/api/2/project/"+url.PathEscape(c.Name()), nil)
	if err != nil {
		return nil, err
	}

	var out []models.RawRelease
	gjson.GetBytes(body, "versions").ForEach(func(_, v gjson.Result) bool {
		rr := models.RawRelease{
			ID:   v.Get("id").String(),
			Name: v.Get("name").String(),
		}
		if rd := v.Get("releaseDate"); rd.Exists() {
			d, err := time.Parse(dateLayout, rd.String())
			if err != nil {
				c.malformed("version", rr.Name, err)
				return true
			}
			rr.Date = &d
		}
		out = append(out, rr)
		return true
	})
	return out, nil
}

// JQL is the search for fixed bugs of project
func JQL(project string) string {
	return fmt.Sprintf(`project = "%s" AND issueType = "Bug" AND (status = "closed" OR status = "resolved") AND resolution = "fixed"`, project)
}

// Tickets pages through every fixed bug. The total declared by the first page
// drives the remaining requests.
func (c *Client) Tickets(ctx context.Context) ([]models.RawTicket, error) {
	var (
		out   []models.RawTicket
		total = -1
	)

	for startAt := 0; total < 0 || startAt < total; startAt += c.opts.PageSize {
		q := url.Values{}
		q.Set("jql", JQL(c.Name()))
		q.Set("fields", searchFields)
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(c.opts.PageSize))

		body, err := c.get(ctx, "/rest/api/2/search", q)
		if err != nil {
			return nil, err
		}
		if total < 0 {
			total = int(gjson.GetBytes(body, "total").Int())
			c.logger.WithField("total", total).Debug("ticket search")
		}

		issues := gjson.GetBytes(body, "issues").Array()
		for _, issue := range issues {
			if t, ok := c.parseIssue(issue); ok {
				out = append(out, t)
			}
		}
		if len(issues) == 0 {
			break
		}
	}
	return out, nil
}

func (c *Client) parseIssue(issue gjson.Result) (models.RawTicket, bool) {
	key := issue.Get("key").String()
	if key == "" {
		c.malformed("issue", "", fmt.Errorf("missing key"))
		return models.RawTicket{}, false
	}

	fields := issue.Get("fields")
	created, err := parseStamp(fields.Get("created").String())
	if err != nil {
		c.malformed("issue", key, fmt.Errorf("created: %w", err))
		return models.RawTicket{}, false
	}

	t := models.RawTicket{Key: key, Created: created}
	if rd := fields.Get("resolutiondate"); rd.Exists() && rd.Type != gjson.Null {
		if t.Resolved, err = parseStamp(rd.String()); err != nil {
			c.malformed("issue", key, fmt.Errorf("resolutiondate: %w", err))
			return models.RawTicket{}, false
		}
	}
	for _, n := range fields.Get("fixVersions.#.name").Array() {
		t.FixVersions = append(t.FixVersions, n.String())
	}
	for _, n := range fields.Get("versions.#.name").Array() {
		t.Versions = append(t.Versions, n.String())
	}
	return t, true
}

// parseStamp accepts a full Jira timestamp or anything starting with a date
func parseStamp(s string) (time.Time, error) {
	if t, err := time.Parse(stampLayout, s); err == nil {
		return t, nil
	}
	if len(s) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return time.Parse(dateLayout, s[:len(dateLayout)])
}

func (c *Client) malformed(kind, key string, err error) {
	c.skipped++
	c.logger.WithError(errors.ErrMalformedRecord).WithFields(logrus.Fields{
		"kind":   kind,
		"key":    key,
		"reason": err.Error(),
	}).Warn("skipping malformed record")
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.opts.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.opts.User != "" && c.opts.Token != "":
		req.SetBasicAuth(c.opts.User, c.opts.Token)
	case c.opts.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.ExternalErrorf(err, "jira request %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ExternalErrorf(err, "read jira response %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.ExternalErrorf(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)), "jira request %s", path)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.ExternalErrorf(errors.ErrMalformedRecord, "jira response %s is not JSON", path)
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
