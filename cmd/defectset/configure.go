package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/errors"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup of the project, tracker and repository",
	Long: `Walk through the settings defectset needs and write them to the config
file. The tracker token is stored in the OS keychain when one is available,
otherwise in ~/.config/defectset/credentials.yaml; it is never written to the
config file.`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if !config.DetectMode().AllowsInteractivePrompts() {
		return errors.ConfigErrorf("configure needs an interactive terminal; set DEFECTSET_* variables in CI")
	}

	path := cfgFile
	if path == "" {
		path = filepath.Join(".defectset", "config.yaml")
	}

	bold := color.New(color.Bold)
	bold.Println("defectset configuration")
	fmt.Println(strings.Repeat("-", 23))
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	ask := func(label, current string) string {
		if current != "" {
			fmt.Printf("%s [%s]: ", label, current)
		} else {
			fmt.Printf("%s: ", label)
		}
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		return current
	}

	cfg.Tracker.Type = strings.ToLower(ask("Tracker (jira, github)", cfg.Tracker.Type))
	switch cfg.Tracker.Type {
	case "jira":
		cfg.Tracker.BaseURL = ask("Jira URL", cfg.Tracker.BaseURL)
		cfg.Tracker.ProjectKey = strings.ToUpper(ask("Project key", cfg.Tracker.ProjectKey))
		cfg.Tracker.User = ask("User (empty for anonymous)", cfg.Tracker.User)
		if cfg.Project == "" {
			cfg.Project = cfg.Tracker.ProjectKey
		}
	case "github":
		cfg.Tracker.BaseURL = ""
		defaultGitHubRepo()
		cfg.Tracker.Owner = ask("Repository owner", cfg.Tracker.Owner)
		cfg.Tracker.Repo = ask("Repository name", cfg.Tracker.Repo)
		cfg.Tracker.BugLabel = ask("Bug label", cfg.Tracker.BugLabel)
		if cfg.Project == "" {
			cfg.Project = strings.ToUpper(cfg.Tracker.Repo)
		}
	default:
		return errors.ConfigErrorf("unknown tracker type %q", cfg.Tracker.Type)
	}
	cfg.Project = ask("Project name", cfg.Project)
	cfg.Repository.Path = ask("Local clone", cfg.Repository.Path)
	cfg.Output.Dir = ask("Output directory", cfg.Output.Dir)

	fmt.Printf("%s token (optional, input hidden, Enter to skip): ", cfg.Tracker.Type)
	token, err := readToken(reader)
	if err != nil {
		return errors.ConfigErrorf("read token: %v", err)
	}
	if token != "" {
		creds := config.NewCredentialManager(logger.WithField("component", "credentials"))
		if err := creds.SaveToken(cfg.Tracker.Type, token); err != nil {
			return err
		}
		color.Green("✓ token stored (%s)", config.MaskToken(token))
	}

	if result := cfg.Validate(config.ValidationContextMine); result.HasErrors() {
		color.Yellow("⚠ %v", result)
	}
	if err := cfg.Save(path); err != nil {
		return errors.FileSystemErrorf(err, "save config")
	}
	color.Green("✓ configuration saved to %s", path)
	return nil
}

func readToken(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line), nil
}
