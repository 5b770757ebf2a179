package repoaccess

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v27/github"
	"github.com/tcbisect/tcbisect"
	"golang.org/x/oauth2"
)

// GitHub is an Accessor backed by the GitHub REST API, for bisecting
// without a local clone.
type GitHub struct {
	client     *github.Client
	owner, repo string
}

// NewGitHub builds a GitHub accessor for the "owner/repo"-shaped or full
// "https://github.com/owner/repo" repoURL. An empty token makes
// unauthenticated (rate-limited) requests.
func NewGitHub(ctx context.Context, repoURL, token string) (*GitHub, error) {
	owner, repo, err := splitOwnerRepo(repoURL)
	if err != nil {
		return nil, err
	}
	hc := newAuthClient(ctx, token)
	return &GitHub{client: github.NewClient(hc), owner: owner, repo: repo}, nil
}

// newAuthClient builds an oauth2-authenticated HTTP client, falling back
// to an unauthenticated client when token is empty.
func newAuthClient(ctx context.Context, token string) *http.Client {
	if token == "" {
		return http.DefaultClient
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, ts)
}

func splitOwnerRepo(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimPrefix(repoURL, "https://github.com/")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repoaccess: %q is not an owner/repo GitHub URL", repoURL)
	}
	return parts[0], parts[1], nil
}

func (g *GitHub) Commit(ctx context.Context, ref string) (tcbisect.Commit, error) {
	rc, _, err := g.client.Repositories.GetCommit(ctx, g.owner, g.repo, ref)
	if err != nil {
		return tcbisect.Commit{}, fmt.Errorf("fetching commit %s: %w", ref, err)
	}
	return toGitHubCommit(rc), nil
}

// Commits returns the first-parent-equivalent range [start, end]: the
// start commit itself followed by the compare API's commits, which GitHub
// computes against the merge-base; for a linear history (the common case
// for a compiler's main branch) this coincides with a first-parent walk.
func (g *GitHub) Commits(ctx context.Context, start, end string) ([]tcbisect.Commit, error) {
	cmp, _, err := g.client.Repositories.CompareCommits(ctx, g.owner, g.repo, start, end)
	if err != nil {
		return nil, fmt.Errorf("comparing %s..%s: %w", start, end, err)
	}
	out := make([]tcbisect.Commit, 0, len(cmp.Commits)+1)
	startCommit, err := g.Commit(ctx, start)
	if err != nil {
		return nil, err
	}
	out = append(out, startCommit)
	for _, rc := range cmp.Commits {
		out = append(out, toGitHubCommit(&rc))
	}
	return out, nil
}

func (g *GitHub) BoundToDate(ctx context.Context, ref string) (tcbisect.Date, error) {
	c, err := g.Commit(ctx, ref)
	if err != nil {
		return tcbisect.Date{}, err
	}
	return c.AuthoredDate, nil
}

func toGitHubCommit(rc *github.RepositoryCommit) tcbisect.Commit {
	var when tcbisect.Date
	summary := ""
	if rc.Commit != nil {
		if rc.Commit.Author != nil && rc.Commit.Author.Date != nil {
			t := rc.Commit.Author.Date.UTC()
			when = tcbisect.Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
		}
		if rc.Commit.Message != nil {
			summary = *rc.Commit.Message
		}
	}
	return tcbisect.Commit{Hash: rc.GetSHA(), AuthoredDate: when, Summary: summary}
}
