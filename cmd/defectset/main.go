package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/git"
	"github.com/rohankatakam/defectset/internal/logging"
	"github.com/rohankatakam/defectset/internal/progress"
	"github.com/rohankatakam/defectset/internal/storage"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	quiet   bool
	logger  *logging.Logger
	cfg     *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if verbose {
			var e *errors.Error
			if stderrors.As(err, &e) {
				fmt.Fprint(os.Stderr, e.DetailedString())
			}
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "defectset",
	Short: "Defect datasets and walk-forward evaluation from issue trackers and git history",
	Long: `defectset estimates which release injected each fixed bug, labels every
file of every release as buggy or clean, and writes the result as a
per-release dataset. It can then train and score classifiers release by
release, never training on data newer than the release it tests.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return errors.ConfigErrorf("%v", err)
		}

		level := cfg.Logging.Level
		switch {
		case verbose:
			level = "debug"
		case quiet:
			level = "warn"
		}
		logger, err = logging.New(logging.Config{
			Level:      level,
			OutputFile: cfg.Logging.File,
			MaxSize:    int64(cfg.Logging.MaxSizeMB) * 1024 * 1024,
			MaxBackups: cfg.Logging.MaxBackups,
			JSONFormat: cfg.Logging.JSON,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .defectset/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only warnings and errors, no progress bars")

	rootCmd.SetVersionTemplate(`defectset {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(configureCmd)
}

// newReporter draws progress bars only for a person watching a terminal
func newReporter() *progress.Reporter {
	interactive := term.IsTerminal(int(os.Stderr.Fd())) && config.DetectMode().AllowsInteractivePrompts()
	return progress.NewReporter(os.Stderr, interactive && !quiet && !cfg.Logging.JSON)
}

// openStore opens the configured run store. A nil store with a nil error
// means storage is disabled.
func openStore() (storage.Store, error) {
	store, err := storage.NewStore(cfg.Storage, logger.WithField("component", "storage"))
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "open %s store", cfg.Storage.Type)
	}
	return store, nil
}

func colored() bool {
	return !color.NoColor
}

// defaultGitHubRepo points a GitHub tracker without owner/repo at the
// origin remote of the mined clone
func defaultGitHubRepo() {
	t := &cfg.Tracker
	if t.Type != "github" || (t.Owner != "" && t.Repo != "") {
		return
	}
	owner, repo, err := git.OriginRepo(cfg.Repository.Path)
	if err != nil {
		logger.WithError(err).Debug("no origin remote to default the github tracker from")
		return
	}
	if t.Owner == "" {
		t.Owner = owner
	}
	if t.Repo == "" {
		t.Repo = repo
	}
	logger.WithField("repo", t.Owner+"/"+t.Repo).Debug("github tracker defaulted from origin remote")
}
