package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

const logFormat = "%H|%cd|%an"

// CLIMiner shells out to the git binary in repoPath
type CLIMiner struct {
	repoPath string
}

// NewCLIMiner creates a miner for the work tree at repoPath
func NewCLIMiner(repoPath string) *CLIMiner {
	return &CLIMiner{repoPath: repoPath}
}

func (m *CLIMiner) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoPath

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, errors.ExternalErrorf(err, "git %s failed (stderr: %s)", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, errors.ExternalErrorf(err, "git %s failed", args[0])
	}
	return output, nil
}

func (m *CLIMiner) ListFiles(ctx context.Context, hash string) ([]string, error) {
	out, err := m.run(ctx, "ls-tree", "-r", "--name-only", hash)
	if err != nil {
		return nil, err
	}
	return parseLines(out), nil
}

func (m *CLIMiner) ChangedFiles(ctx context.Context, hash string) ([]models.ChangedFile, error) {
	out, err := m.run(ctx, "diff-tree", "--no-commit-id", "--numstat", "-r", "--root", hash)
	if err != nil {
		return nil, err
	}
	return parseNumstat(out)
}

func (m *CLIMiner) CommitsForTicket(ctx context.Context, key string, until time.Time) ([]models.Commit, error) {
	out, err := m.run(ctx, "log",
		"--date=iso-strict",
		"-E", "--grep="+KeyPattern(key),
		"--until="+until.Format(time.RFC3339),
		"--pretty=format:"+logFormat,
	)
	if err != nil {
		return nil, err
	}
	commits, err := parseLog(out)
	if err != nil {
		return nil, err
	}
	for i := range commits {
		commits[i].TicketKey = key
	}
	SortCommits(commits)
	return commits, nil
}

func (m *CLIMiner) FileLines(ctx context.Context, hash, path string) (int, error) {
	out, err := m.run(ctx, "cat-file", "-p", hash+":"+path)
	if err != nil {
		return 0, err
	}
	return countLines(out), nil
}

// ValidateRepo checks that repoPath is inside a git work tree
func ValidateRepo(ctx context.Context, repoPath string) error {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = repoPath
	if out, err := cmd.Output(); err != nil || strings.TrimSpace(string(out)) != "true" {
		return errors.ConfigErrorf("%s is not a git repository", repoPath)
	}
	return nil
}

func parseLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseNumstat reads "added<TAB>deleted<TAB>path" lines. Binary files report
// "-" and count as zero added lines.
func parseNumstat(out []byte) ([]models.ChangedFile, error) {
	var changed []models.ChangedFile
	for _, line := range parseLines(out) {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, errors.Malformedf("numstat line %q", line)
		}
		added := 0
		if parts[0] != "-" {
			n, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, errors.Malformedf("numstat added count %q", parts[0])
			}
			added = n
		}
		changed = append(changed, models.ChangedFile{Path: parts[2], Added: added})
	}
	return changed, nil
}

// parseLog reads lines in logFormat. Lines that do not parse are skipped.
func parseLog(out []byte) ([]models.Commit, error) {
	var commits []models.Commit
	for _, line := range parseLines(out) {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		date, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			if len(parts[1]) < 10 {
				continue
			}
			if date, err = time.Parse("2006-01-02", parts[1][:10]); err != nil {
				continue
			}
		}
		commits = append(commits, models.Commit{
			Hash:   parts[0],
			Date:   date,
			Author: parts[2],
		})
	}
	return commits, nil
}

// countLines counts newline-terminated lines, plus a final unterminated one
func countLines(b []byte) int {
	n := bytes.Count(b, []byte{'\n'})
	if len(b) > 0 && b[len(b)-1] != '\n' {
		n++
	}
	return n
}

func (m *CLIMiner) String() string {
	return fmt.Sprintf("git-cli(%s)", m.repoPath)
}
