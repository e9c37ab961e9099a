package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectset/internal/errors"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{Owner: "acme", Repo: "widget", BaseURL: srv.URL}, quietLogger())
	require.NoError(t, err)
	return c
}

func TestReleasesFromMilestones(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/milestones", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number":3,"title":"v1.2"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/widget/milestones?page=2>; rel="next"`, r.Host))
		fmt.Fprint(w, `[
			{"number":1,"title":"v1.0","due_on":"2020-01-01T08:00:00Z"},
			{"number":2,"title":"v1.1","closed_at":"2020-02-01T08:00:00Z"}
		]`)
	})

	c := newTestClient(t, mux)
	releases, err := c.Releases(context.Background())
	require.NoError(t, err)

	require.Len(t, releases, 3)
	assert.Equal(t, "1", releases[0].ID)
	assert.Equal(t, "v1.0", releases[0].Name)
	require.NotNil(t, releases[0].Date)
	assert.Equal(t, time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC), releases[0].Date.UTC())
	require.NotNil(t, releases[1].Date)
	assert.Equal(t, 2, int(releases[1].Date.Month()))
	assert.Nil(t, releases[2].Date)
}

func TestTicketsFromIssues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "closed", q.Get("state"))
		assert.Equal(t, "bug", q.Get("labels"))
		fmt.Fprint(w, `[
			{"number":7,"created_at":"2020-01-05T00:00:00Z","closed_at":"2020-02-10T00:00:00Z",
			 "state_reason":"completed","milestone":{"title":"v1.2"},
			 "labels":[{"name":"bug"},{"name":"affects: v1.0"},{"name":"affects:v1.1"}]},
			{"number":8,"created_at":"2020-01-06T00:00:00Z","state_reason":"not_planned"},
			{"number":9,"created_at":"2020-01-07T00:00:00Z","pull_request":{"url":"x"}},
			{"number":10,"closed_at":"2020-02-10T00:00:00Z"}
		]`)
	})

	c := newTestClient(t, mux)
	tickets, err := c.Tickets(context.Background())
	require.NoError(t, err)

	require.Len(t, tickets, 1)
	tk := tickets[0]
	assert.Equal(t, "#7", tk.Key)
	assert.Equal(t, []string{"v1.2"}, tk.FixVersions)
	assert.Equal(t, []string{"v1.0", "v1.1"}, tk.Versions)
	assert.Equal(t, 10, tk.Resolved.Day())
}

func TestTrackerErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/milestones", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	c := newTestClient(t, mux)
	_, err := c.Releases(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeExternal, errors.GetType(err))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "#42", Key(42))
	c, err := NewClient(Options{Owner: "acme", Repo: "widget"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "acme/widget", c.Name())
}
