package main

import (
	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/evaluation"
	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/pipeline"
)

var (
	evalDataset   string
	evalFromStore bool
	evalRunID     string
	evalFormat    string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the walk-forward evaluation on a mined dataset",
	Long: `Train every configured classifier, sampling and feature selection
combination on releases 1..r and test it on release r+1, for every valid r.

The dataset is read from the CSV written by "defectset mine" (or --dataset),
or from a stored run with --from-store. The per-step report is written next
to the dataset and the mean of each configuration is printed.`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalDataset, "dataset", "", "dataset CSV (default: <output.dir>/<project>_Bugginess.csv)")
	evaluateCmd.Flags().BoolVar(&evalFromStore, "from-store", false, "read the dataset of a stored run")
	evaluateCmd.Flags().StringVar(&evalRunID, "run", "", "stored run ID (default: the project's latest run)")
	evaluateCmd.Flags().StringVar(&evalFormat, "format", "text", "summary format: text, json, markdown")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := cfg.Require(config.ValidationContextEvaluate); err != nil {
		return err
	}
	if evalRunID != "" {
		evalFromStore = true
	}
	if evalFromStore && evalDataset != "" {
		return errors.ConfigErrorf("--dataset and --from-store are exclusive")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	run := pipeline.NewRun(pipeline.Options{
		Config:   cfg,
		Store:    store,
		Progress: newReporter(),
		Logger:   logger,
	})

	var results []evaluation.Result
	if evalFromStore {
		results, err = run.EvaluateStored(ctx, evalRunID)
	} else {
		results, err = run.EvaluateDataset(ctx, evalDataset)
	}
	if err != nil {
		return err
	}
	return printSummary(cfg.Project, results, evalFormat)
}
