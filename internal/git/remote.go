package git

import (
	"fmt"
	"regexp"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

var remotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)$`),
	regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+)$`),
	regexp.MustCompile(`^(?:git|ssh)://(?:[^@/]+@)?[^/]+/([^/]+)/([^/]+)$`),
}

// ParseRepoURL extracts owner and repository name from a remote URL.
// Supports https, scp-style ssh and git:// or ssh:// URLs.
func ParseRepoURL(remoteURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(remoteURL), "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	for _, re := range remotePatterns {
		if m := re.FindStringSubmatch(trimmed); len(m) == 3 {
			return m[1], m[2], nil
		}
	}
	return "", "", fmt.Errorf("unrecognized git URL format: %s", remoteURL)
}

// OriginRepo returns the owner and name of the repository's origin remote,
// used to default the GitHub tracker to the mined clone.
func OriginRepo(repoPath string) (owner, repo string, err error) {
	r, err := gogit.PlainOpenWithOptions(repoPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", fmt.Errorf("open %s: %w", repoPath, err)
	}
	remote, err := r.Remote("origin")
	if err != nil {
		return "", "", fmt.Errorf("origin remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", "", fmt.Errorf("origin remote has no URL")
	}
	return ParseRepoURL(urls[0])
}
