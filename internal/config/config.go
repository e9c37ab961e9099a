package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (DEFECTSET_TRACKER_TOKEN, ...)
const EnvPrefix = "DEFECTSET"

// Config holds all configuration settings
type Config struct {
	// Project name used for dataset file names
	Project string `yaml:"project" mapstructure:"project"`

	Tracker    TrackerConfig    `yaml:"tracker" mapstructure:"tracker"`
	Repository RepositoryConfig `yaml:"repository" mapstructure:"repository"`
	Mining     MiningConfig     `yaml:"mining" mapstructure:"mining"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Evaluation EvaluationConfig `yaml:"evaluation" mapstructure:"evaluation"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

type TrackerConfig struct {
	Type               string  `yaml:"type" mapstructure:"type"` // "jira", "github"
	BaseURL            string  `yaml:"base_url" mapstructure:"base_url"`
	ProjectKey         string  `yaml:"project_key" mapstructure:"project_key"`
	Owner              string  `yaml:"owner" mapstructure:"owner"`
	Repo               string  `yaml:"repo" mapstructure:"repo"`
	User               string  `yaml:"user" mapstructure:"user"`
	Token              string  `yaml:"token" mapstructure:"token"`
	RateLimit          float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
	PageSize           int     `yaml:"page_size" mapstructure:"page_size"`
	BugLabel           string  `yaml:"bug_label" mapstructure:"bug_label"`
	AffectsLabelPrefix string  `yaml:"affects_label_prefix" mapstructure:"affects_label_prefix"`
}

type RepositoryConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Miner string `yaml:"miner" mapstructure:"miner"` // "cli", "gogit"
}

type MiningConfig struct {
	Workers     int    `yaml:"workers" mapstructure:"workers"`
	MeasureSize bool   `yaml:"measure_size" mapstructure:"measure_size"`
	CachePath   string `yaml:"cache_path" mapstructure:"cache_path"` // empty disables the miner cache
}

type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "sqlite", "postgres", "none"
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

type EvaluationConfig struct {
	Classifiers []string `yaml:"classifiers" mapstructure:"classifiers"`
	Samplings   []string `yaml:"samplings" mapstructure:"samplings"`
	Selections  []string `yaml:"selections" mapstructure:"selections"`
	Seed        int64    `yaml:"seed" mapstructure:"seed"`
	Trees       int      `yaml:"trees" mapstructure:"trees"`
	Workers     int      `yaml:"workers" mapstructure:"workers"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	JSON       bool   `yaml:"json" mapstructure:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Tracker: TrackerConfig{
			Type:               "jira",
			BaseURL:            "https://issues.apache.org/jira",
			RateLimit:          5,
			PageSize:           1000,
			BugLabel:           "bug",
			AffectsLabelPrefix: "affects:",
		},
		Repository: RepositoryConfig{
			Path:  ".",
			Miner: "cli",
		},
		Mining: MiningConfig{
			Workers:     8,
			MeasureSize: true,
			CachePath:   filepath.Join(homeDir, ".defectset", "cache", "miner.db"),
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".defectset", "runs.db"),
		},
		Evaluation: EvaluationConfig{
			Classifiers: []string{"naive-bayes", "ibk", "random-forest"},
			Samplings:   []string{"none", "oversample", "undersample", "smote"},
			Selections:  []string{"none", "backward"},
			Seed:        1,
			Trees:       100,
			Workers:     4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// setDefaults registers every leaf key so environment overrides reach
// nested fields through Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("project", cfg.Project)

	v.SetDefault("tracker.type", cfg.Tracker.Type)
	v.SetDefault("tracker.base_url", cfg.Tracker.BaseURL)
	v.SetDefault("tracker.project_key", cfg.Tracker.ProjectKey)
	v.SetDefault("tracker.owner", cfg.Tracker.Owner)
	v.SetDefault("tracker.repo", cfg.Tracker.Repo)
	v.SetDefault("tracker.user", cfg.Tracker.User)
	v.SetDefault("tracker.token", cfg.Tracker.Token)
	v.SetDefault("tracker.rate_limit", cfg.Tracker.RateLimit)
	v.SetDefault("tracker.page_size", cfg.Tracker.PageSize)
	v.SetDefault("tracker.bug_label", cfg.Tracker.BugLabel)
	v.SetDefault("tracker.affects_label_prefix", cfg.Tracker.AffectsLabelPrefix)

	v.SetDefault("repository.path", cfg.Repository.Path)
	v.SetDefault("repository.miner", cfg.Repository.Miner)

	v.SetDefault("mining.workers", cfg.Mining.Workers)
	v.SetDefault("mining.measure_size", cfg.Mining.MeasureSize)
	v.SetDefault("mining.cache_path", cfg.Mining.CachePath)

	v.SetDefault("output.dir", cfg.Output.Dir)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)
	v.SetDefault("storage.postgres_dsn", cfg.Storage.PostgresDSN)

	v.SetDefault("evaluation.classifiers", cfg.Evaluation.Classifiers)
	v.SetDefault("evaluation.samplings", cfg.Evaluation.Samplings)
	v.SetDefault("evaluation.selections", cfg.Evaluation.Selections)
	v.SetDefault("evaluation.seed", cfg.Evaluation.Seed)
	v.SetDefault("evaluation.trees", cfg.Evaluation.Trees)
	v.SetDefault("evaluation.workers", cfg.Evaluation.Workers)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.json", cfg.Logging.JSON)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
}

// Load loads configuration from file. An empty path searches ./.defectset,
// the working directory and ~/.defectset for config.yaml; a missing file
// leaves the defaults in place.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".defectset")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".defectset"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Every key has a default, so decoding into a zero value loses nothing and
	// file lists replace default lists instead of merging into them.
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Repository.Path = expandPath(cfg.Repository.Path)
	cfg.Mining.CachePath = expandPath(cfg.Mining.CachePath)
	cfg.Output.Dir = expandPath(cfg.Output.Dir)
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	return cfg, nil
}

// applyEnvOverrides applies the conventional unprefixed variables. Prefixed
// DEFECTSET_* variables are already applied by viper and take precedence.
func applyEnvOverrides(cfg *Config) {
	if os.Getenv(EnvPrefix+"_TRACKER_TOKEN") == "" {
		if token := trackerTokenFromEnv(cfg.Tracker.Type); token != "" {
			cfg.Tracker.Token = token
		}
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" && os.Getenv(EnvPrefix+"_STORAGE_POSTGRES_DSN") == "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if workers := GetInt("MINING_WORKERS", 0); workers > 0 && os.Getenv(EnvPrefix+"_MINING_WORKERS") == "" {
		cfg.Mining.Workers = workers
	}
}

// trackerTokenFromEnv reads the token variable the tracker's own tooling uses
func trackerTokenFromEnv(trackerType string) string {
	var vars []string
	switch trackerType {
	case "github":
		vars = []string{"GITHUB_TOKEN", "GH_TOKEN"}
	case "jira":
		vars = []string{"JIRA_TOKEN", "JIRA_API_TOKEN"}
	}
	for _, name := range vars {
		if token := os.Getenv(name); token != "" {
			return token
		}
	}
	return ""
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. The tracker token is never written;
// it belongs in the keychain or the credentials file.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("project", c.Project)
	tracker := c.Tracker
	tracker.Token = ""
	v.Set("tracker", tracker)
	v.Set("repository", c.Repository)
	v.Set("mining", c.Mining)
	v.Set("output", c.Output)
	v.Set("storage", c.Storage)
	v.Set("evaluation", c.Evaluation)
	v.Set("logging", c.Logging)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
