package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
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

const projectJSON = `{
  "key": "DEMO",
  "versions": [
    {"id": "10", "name": "1.0", "releaseDate": "2020-01-01"},
    {"id": "11", "name": "1.1"},
    {"id": "12", "name": "1.2", "releaseDate": "2020-03-01"},
    {"id": "13", "name": "broken", "releaseDate": "first of march"}
  ]
}`

func issue(key, created, resolved string, fix, affected []string) string {
	names := func(ns []string) string {
		out := "["
		for i, n := range ns {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprintf(`{"name":%q}`, n)
		}
		return out + "]"
	}
	res := "null"
	if resolved != "" {
		res = strconv.Quote(resolved)
	}
	return fmt.Sprintf(`{"key":%q,"fields":{"created":%q,"resolutiondate":%s,"fixVersions":%s,"versions":%s}}`,
		key, created, res, names(fix), names(affected))
}

func TestReleases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/project/DEMO", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, projectJSON)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Project: "demo", Token: "secret"}, quietLogger())
	releases, err := c.Releases(context.Background())
	require.NoError(t, err)

	require.Len(t, releases, 3)
	assert.Equal(t, "10", releases[0].ID)
	require.NotNil(t, releases[0].Date)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), *releases[0].Date)
	assert.Nil(t, releases[1].Date)
	assert.Equal(t, "1.2", releases[2].Name)
	assert.Equal(t, 1, c.Skipped())
}

func TestTicketsPagination(t *testing.T) {
	pages := [][]string{
		{
			issue("DEMO-1", "2020-01-05T10:00:00.000+0000", "2020-02-10T10:00:00.000+0000", []string{"1.2"}, []string{"1.0"}),
			issue("DEMO-2", "2020-01-06T10:00:00.000+0000", "", nil, nil),
		},
		{
			issue("", "2020-01-07T10:00:00.000+0000", "", nil, nil),
			issue("DEMO-4", "not a date", "", nil, nil),
		},
		{
			issue("DEMO-5", "2020-02-01", "2020-02-20T08:00:00.000+0100", nil, nil),
		},
	}

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Equal(t, JQL("DEMO"), q.Get("jql"))
		assert.Equal(t, searchFields, q.Get("fields"))
		assert.Equal(t, "2", q.Get("maxResults"))

		start, _ := strconv.Atoi(q.Get("startAt"))
		page := pages[start/2]
		body := `{"startAt":` + q.Get("startAt") + `,"total":5,"issues":[`
		for i, is := range page {
			if i > 0 {
				body += ","
			}
			body += is
		}
		fmt.Fprint(w, body+"]}")
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/", Project: "DEMO", PageSize: 2}, quietLogger())
	tickets, err := c.Tickets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, tickets, 3)
	assert.Equal(t, "DEMO-1", tickets[0].Key)
	assert.Equal(t, []string{"1.2"}, tickets[0].FixVersions)
	assert.Equal(t, []string{"1.0"}, tickets[0].Versions)
	assert.True(t, tickets[1].Resolved.IsZero())
	assert.Equal(t, "DEMO-5", tickets[2].Key)
	assert.Equal(t, 2020, tickets[2].Created.Year())
	assert.Equal(t, 2, c.Skipped())
}

func TestTicketsEmptyProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"startAt":0,"total":0,"issues":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Project: "DEMO"}, quietLogger())
	tickets, err := c.Tickets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestRequestFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/api/2/search" {
			fmt.Fprint(w, "<html>maintenance</html>")
			return
		}
		http.Error(w, "no such project", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Project: "NOPE"}, quietLogger())

	_, err := c.Releases(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeExternal, errors.GetType(err))
	assert.Contains(t, err.Error(), "404")

	_, err = c.Tickets(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedRecord)
}

func TestParseStamp(t *testing.T) {
	ts, err := parseStamp("2013-03-11T19:49:11.000+0000")
	require.NoError(t, err)
	assert.Equal(t, 19, ts.Hour())

	ts, err = parseStamp("2013-03-11T19:49:11Z")
	require.NoError(t, err)
	assert.Equal(t, 11, ts.Day())

	_, err = parseStamp("2013")
	assert.Error(t, err)
}
