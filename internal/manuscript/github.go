package manuscript

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v77/github"
)

// GitHubConfig identifies the manuscript repository.
type GitHubConfig struct {
	Owner string `mapstructure:"owner"`
	Repo  string `mapstructure:"repo"`
	// Ref is a branch, tag or SHA; empty means the default branch.
	Ref   string `mapstructure:"ref"`
	Token string `mapstructure:"token"`
}

// GitHubStore reads the manuscript layout through the repository contents API.
type GitHubStore struct {
	layoutStore
	client *github.Client
	config GitHubConfig
}

// NewGitHubClient creates a GitHub API client, authenticated when token is set.
func NewGitHubClient(token string) *github.Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client
}

// NewGitHubStore builds a store for config using client.
func NewGitHubStore(client *github.Client, config GitHubConfig) (*GitHubStore, error) {
	if config.Owner == "" || config.Repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}
	s := &GitHubStore{client: client, config: config}
	s.layoutStore = layoutStore{src: s}
	return s, nil
}

func (s *GitHubStore) readFile(ctx context.Context, p string) (string, bool, error) {
	var opts *github.RepositoryContentGetOptions
	if s.config.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: s.config.Ref}
	}

	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.config.Owner, s.config.Repo, p, opts)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, handleAPIError(err, "failed to get "+p)
	}
	if file == nil {
		// p names a directory
		return "", false, nil
	}

	content, err := file.GetContent()
	if err != nil {
		return "", false, fmt.Errorf("failed to decode %s: %w", p, err)
	}
	return content, true, nil
}

// handleAPIError wraps API errors with context and detects rate limiting
func handleAPIError(err error, msg string) error {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%s: hit primary rate limit (used %d of %d, resets at %v): %w",
			msg, rateLimitErr.Rate.Used, rateLimitErr.Rate.Limit, rateLimitErr.Rate.Reset.Time, err)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: hit secondary rate limit (retry after %v): %w",
			msg, abuseErr.GetRetryAfter(), err)
	}

	return fmt.Errorf("%s: %w", msg, err)
}
