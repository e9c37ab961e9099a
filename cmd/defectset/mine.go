package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/evaluation"
	"github.com/rohankatakam/defectset/internal/pipeline"
	"github.com/rohankatakam/defectset/internal/report"
	"github.com/rohankatakam/defectset/internal/tracker"
)

var (
	mineEvaluate bool
	mineFormat   string
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Build the per-release defect dataset of a project",
	Long: `Fetch releases and fixed bugs from the issue tracker, estimate the
release that injected each bug, mine the fix commits from the repository and
write one labeled dataset per valid release.

With --evaluate the walk-forward evaluation runs on the fresh dataset.`,
	RunE: runMine,
}

func init() {
	mineCmd.Flags().BoolVar(&mineEvaluate, "evaluate", false, "run the walk-forward evaluation after mining")
	mineCmd.Flags().StringVar(&mineFormat, "format", "text", "summary format: text, json, markdown")
}

// openTracker resolves the token and builds the configured tracker
func openTracker() (tracker.Tracker, error) {
	entry := logger.WithField("component", "tracker")
	token, err := config.NewCredentialManager(entry).TrackerToken(cfg.Tracker)
	if err != nil {
		return nil, err
	}
	trackerCfg := cfg.Tracker
	trackerCfg.Token = token
	return pipeline.NewTracker(trackerCfg, entry)
}

func runMine(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defaultGitHubRepo()
	if err := cfg.Require(config.ValidationContextMine); err != nil {
		return err
	}

	tr, err := openTracker()
	if err != nil {
		return err
	}
	miner, closeMiner, err := pipeline.OpenMiner(ctx, cfg.Repository, cfg.Mining, logger.WithField("component", "git"))
	if err != nil {
		return err
	}
	defer closeMiner()

	store, err := openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	run := pipeline.NewRun(pipeline.Options{
		Config:   cfg,
		Tracker:  tr,
		Miner:    miner,
		Store:    store,
		Progress: newReporter(),
		Logger:   logger,
	})

	p, err := run.Mine(ctx)
	if err != nil {
		return err
	}
	printMined(p, run.ID)

	if !mineEvaluate {
		return nil
	}
	results, err := run.EvaluateProject(ctx, p)
	if err != nil {
		return err
	}
	return printSummary(p.Name, results, mineFormat)
}

func printMined(p *pipeline.Project, runID string) {
	if quiet {
		return
	}
	green := color.New(color.FgGreen, color.Bold)
	green.Printf("✓ %s mined\n", p.Name)
	fmt.Printf("  Run:       %s\n", runID)
	fmt.Printf("  Releases:  %d (%d valid)\n", len(p.Resolver.Releases()), len(p.Valid()))
	fmt.Printf("  Tickets:   %d accepted, %d rejected\n", p.TicketStats.Accepted, p.TicketStats.Total()-p.TicketStats.Accepted)
	fmt.Printf("  Commits:   %d\n", len(p.Commits))
	fmt.Printf("  Dataset:   %s\n", p.Paths.All)
	fmt.Println()
}

func printSummary(project string, results []evaluation.Result, format string) error {
	title := fmt.Sprintf("%s walk-forward evaluation", project)
	return report.RenderSummary(os.Stdout, title, evaluation.Summarize(results), report.ParseFormat(format), colored())
}
