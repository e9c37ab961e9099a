package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/release"
)

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "Show the release timeline and which releases make up the dataset",
	Long: `Fetch the project's versions from the issue tracker and print them in
date order. Versions without a release date are dropped; releases in the
first half of the project's lifetime are valid and go into the dataset.`,
	RunE: runReleases,
}

func runReleases(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defaultGitHubRepo()
	if err := cfg.Require(config.ValidationContextReleases); err != nil {
		return err
	}

	tr, err := openTracker()
	if err != nil {
		return err
	}
	raw, err := tr.Releases(ctx)
	if err != nil {
		return errors.Unreachable(err, "issue tracker")
	}
	resolver, err := release.NewResolver(raw)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Index", "ID", "Name", "Date", "Valid"})
	for _, r := range resolver.Releases() {
		valid := ""
		if r.Valid {
			valid = color.GreenString("yes")
		}
		if err := table.Append([]string{
			strconv.Itoa(r.Index), r.ExternalID, r.Name, r.Date.Format("2006-01-02"), valid,
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	undated := len(raw) - len(resolver.Releases())
	fmt.Printf("\n%d releases, %d valid", len(resolver.Releases()), len(resolver.Valid()))
	if undated > 0 {
		fmt.Printf(", %d without a release date", undated)
	}
	fmt.Println()
	return nil
}
