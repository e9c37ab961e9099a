package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/defectset/internal/errors"
)

// ValidationContext specifies what configuration a command requires
type ValidationContext string

const (
	// ValidationContextMine - defectset mine needs tracker, repository and output
	ValidationContextMine ValidationContext = "mine"
	// ValidationContextEvaluate - defectset evaluate needs output and evaluation settings
	ValidationContextEvaluate ValidationContext = "evaluate"
	// ValidationContextReleases - defectset releases needs the tracker only
	ValidationContextReleases ValidationContext = "releases"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

var (
	knownClassifiers = []string{"naive-bayes", "ibk", "random-forest"}
	knownSamplings   = []string{"none", "oversample", "undersample", "smote"}
	knownSelections  = []string{"none", "backward"}
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}
	return sb.String()
}

// Validate validates configuration for the given context with auto-detected mode
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	return c.ValidateWithMode(ctx, DetectMode())
}

// ValidateWithMode validates configuration for the given context and deployment mode
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextMine:
		c.validateProject(result)
		c.validateTracker(result)
		c.validateRepository(result)
		c.validateMining(result)
		c.validateOutput(result)
		c.validateStorage(result)
	case ValidationContextEvaluate:
		c.validateProject(result)
		c.validateOutput(result)
		c.validateEvaluation(result)
		c.validateStorage(result)
	case ValidationContextReleases:
		c.validateTracker(result)
	case ValidationContextAll:
		c.validateProject(result)
		c.validateTracker(result)
		c.validateRepository(result)
		c.validateMining(result)
		c.validateOutput(result)
		c.validateStorage(result)
		c.validateEvaluation(result)
		c.validateLogging(result)
	}

	if mode.RequiresStrictValidation() {
		for _, warn := range result.Warnings {
			result.AddError("%s (strict in %s mode)", warn, mode)
		}
		result.Warnings = nil
	}
	return result
}

// Require validates for ctx and returns a fatal configuration error if invalid
func (c *Config) Require(ctx ValidationContext) error {
	result := c.Validate(ctx)
	if result.HasErrors() {
		return errors.ConfigErrorf("%s", strings.TrimSpace(result.Error()))
	}
	return nil
}

func (c *Config) validateProject(result *ValidationResult) {
	if c.Project == "" {
		result.AddError("project is required (dataset files are named after it)")
	} else if strings.ContainsAny(c.Project, `/\`) {
		result.AddError("project %q must not contain path separators", c.Project)
	}
}

func (c *Config) validateTracker(result *ValidationResult) {
	t := c.Tracker
	switch t.Type {
	case "jira":
		if t.ProjectKey == "" {
			result.AddError("tracker.project_key is required for jira")
		}
		if t.PageSize <= 0 {
			result.AddWarning("tracker.page_size is invalid, will use default (1000)")
		}
	case "github":
		if t.Owner == "" || t.Repo == "" {
			result.AddError("tracker.owner and tracker.repo are required for github")
		}
		if t.Token == "" {
			result.AddWarning("tracker.token is not set; anonymous GitHub requests are heavily rate limited")
		}
	default:
		result.AddError("tracker.type must be jira or github, got %q", t.Type)
	}

	if t.BaseURL != "" {
		if u, err := url.Parse(t.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			result.AddError("tracker.base_url is invalid: %q", t.BaseURL)
		}
	}
	if t.RateLimit < 0 {
		result.AddError("tracker.rate_limit must not be negative")
	}
}

func (c *Config) validateRepository(result *ValidationResult) {
	if c.Repository.Path == "" {
		result.AddError("repository.path is required")
	}
	switch c.Repository.Miner {
	case "cli", "gogit":
	default:
		result.AddError("repository.miner must be cli or gogit, got %q", c.Repository.Miner)
	}
}

func (c *Config) validateMining(result *ValidationResult) {
	if c.Mining.Workers <= 0 {
		result.AddError("mining.workers must be positive, got %d", c.Mining.Workers)
	}
	if c.Mining.CachePath == "" {
		result.AddWarning("mining.cache_path is not set; every run re-mines the repository")
	}
}

func (c *Config) validateOutput(result *ValidationResult) {
	if c.Output.Dir == "" {
		result.AddError("output.dir is required")
	}
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "none":
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite")
		}
	case "postgres":
		dsn := c.Storage.PostgresDSN
		if dsn == "" {
			result.AddError("storage.postgres_dsn is required for postgres")
			return
		}
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			result.AddError("storage.postgres_dsn must start with postgres:// or postgresql://")
		}
		if strings.Contains(dsn, "sslmode=disable") {
			result.AddWarning("storage.postgres_dsn has sslmode=disable")
		}
	default:
		result.AddError("storage.type must be sqlite, postgres or none, got %q", c.Storage.Type)
	}
}

func (c *Config) validateEvaluation(result *ValidationResult) {
	e := c.Evaluation
	checkNames(result, "evaluation.classifiers", e.Classifiers, knownClassifiers)
	checkNames(result, "evaluation.samplings", e.Samplings, knownSamplings)
	checkNames(result, "evaluation.selections", e.Selections, knownSelections)
	if e.Trees <= 0 {
		result.AddError("evaluation.trees must be positive, got %d", e.Trees)
	}
	if e.Workers <= 0 {
		result.AddWarning("evaluation.workers is invalid, will use 1")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		result.AddError("logging.level %q is unknown", c.Logging.Level)
	}
}

func checkNames(result *ValidationResult, key string, names, known []string) {
	if len(names) == 0 {
		result.AddError("%s must name at least one of %s", key, strings.Join(known, ", "))
		return
	}
	for _, name := range names {
		if !contains(known, name) {
			result.AddError("%s: unknown %q (known: %s)", key, name, strings.Join(known, ", "))
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
