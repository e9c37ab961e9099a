package git

import (
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		url   string
		owner string
		repo  string
	}{
		{"https://github.com/apache/avro.git", "apache", "avro"},
		{"https://github.com/apache/avro", "apache", "avro"},
		{"http://gitlab.example.org/team/tool/", "team", "tool"},
		{"git@github.com:apache/bookkeeper.git", "apache", "bookkeeper"},
		{"git://github.com/apache/avro.git", "apache", "avro"},
		{"ssh://git@github.com/apache/avro.git", "apache", "avro"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, err := ParseRepoURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}

	for _, bad := range []string{"", "not a url", "https://github.com/only-owner", "/local/path/repo"} {
		_, _, err := ParseRepoURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestOriginRepo(t *testing.T) {
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	_, _, err = OriginRepo(dir)
	assert.Error(t, err, "no origin yet")

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:apache/avro.git"},
	})
	require.NoError(t, err)

	owner, name, err := OriginRepo(dir)
	require.NoError(t, err)
	assert.Equal(t, "apache", owner)
	assert.Equal(t, "avro", name)

	_, _, err = OriginRepo(t.TempDir())
	assert.Error(t, err)
}
