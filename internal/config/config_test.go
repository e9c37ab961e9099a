package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets variables a developer machine or CI may carry
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"GITHUB_TOKEN", "GH_TOKEN", "JIRA_TOKEN", "JIRA_API_TOKEN", "POSTGRES_DSN", "MINING_WORKERS",
		"DEFECTSET_TRACKER_TOKEN", "DEFECTSET_TRACKER_TYPE", "DEFECTSET_MINING_WORKERS",
		"DEFECTSET_STORAGE_POSTGRES_DSN", "DEFECTSET_PROJECT", "DEFECTSET_MODE",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Tracker, cfg.Tracker)
	assert.Equal(t, def.Evaluation, cfg.Evaluation)
	assert.Equal(t, 8, cfg.Mining.Workers)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project: avro
tracker:
  type: jira
  project_key: AVRO
  page_size: 500
mining:
  workers: 2
evaluation:
  classifiers: [naive-bayes]
`), 0644))

	t.Setenv("DEFECTSET_MINING_WORKERS", "6")
	t.Setenv("JIRA_TOKEN", "from-jira-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "avro", cfg.Project)
	assert.Equal(t, "AVRO", cfg.Tracker.ProjectKey)
	assert.Equal(t, 500, cfg.Tracker.PageSize)
	assert.Equal(t, 6, cfg.Mining.Workers, "prefixed env beats file")
	assert.Equal(t, []string{"naive-bayes"}, cfg.Evaluation.Classifiers)
	assert.Equal(t, "from-jira-env", cfg.Tracker.Token)
	assert.Equal(t, Default().Tracker.BaseURL, cfg.Tracker.BaseURL, "unset keys keep defaults")
}

func TestPrefixedTokenBeatsToolEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("DEFECTSET_TRACKER_TYPE", "github")
	t.Setenv("DEFECTSET_TRACKER_TOKEN", "prefixed")
	t.Setenv("GITHUB_TOKEN", "tool")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "github", cfg.Tracker.Type)
	assert.Equal(t, "prefixed", cfg.Tracker.Token)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracker: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTripOmitsToken(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Project = "bookkeeper"
	cfg.Tracker.ProjectKey = "BOOKKEEPER"
	cfg.Tracker.Token = "secret"
	cfg.Evaluation.Samplings = []string{"smote"}
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bookkeeper", loaded.Project)
	assert.Equal(t, "BOOKKEEPER", loaded.Tracker.ProjectKey)
	assert.Equal(t, []string{"smote"}, loaded.Evaluation.Samplings)
	assert.Empty(t, loaded.Tracker.Token)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "runs.db"), expandPath("~/runs.db"))
	assert.Equal(t, "/abs", expandPath("/abs"))
	assert.Equal(t, "", expandPath(""))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("DS_TEST_INT", "12")
	t.Setenv("DS_TEST_BAD", "x")
	assert.Equal(t, 12, GetInt("DS_TEST_INT", 1))
	assert.Equal(t, 1, GetInt("DS_TEST_BAD", 1))
	assert.Equal(t, 7, GetInt("DS_TEST_MISSING", 7))
}

func TestDetectMode(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"CI", "CONTINUOUS_INTEGRATION", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE", "TF_BUILD"} {
		t.Setenv(name, "")
	}
	assert.Equal(t, ModeInteractive, DetectMode())

	t.Setenv("CI", "true")
	assert.Equal(t, ModeCI, DetectMode())

	t.Setenv("DEFECTSET_MODE", "interactive")
	assert.Equal(t, ModeInteractive, DetectMode(), "explicit mode wins")
}
