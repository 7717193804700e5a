// Package github reads release notes from GitHub Releases so they can be
// reused as addon changelogs.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
)

// Sentinel errors for GitHub operations.
var (
	ErrInvalidRepo     = errors.New("repository must be in format 'owner/repo'")
	ErrNilRelease      = errors.New("github release cannot be nil")
	ErrReleaseNotFound = errors.New("release not found")
	ErrEmptyNotes      = errors.New("release has no notes")
)

// Client wraps the GitHub API client for release lookups.
type Client struct {
	client *github.Client
	owner  string
	repo   string
}

// NewClient creates a GitHub API client for the specified repository.
// An empty token gives an unauthenticated client, which is enough for
// public repositories but subject to lower rate limits.
// Repository must be in the format "owner/repo".
func NewClient(token, repository string) (*Client, error) {
	owner, repo, err := parseRepository(repository)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{
		client: client,
		owner:  owner,
		repo:   repo,
	}, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// GetRelease retrieves a published release by tag name. An empty tag
// selects the latest release.
// Returns ErrReleaseNotFound if the release doesn't exist.
func (c *Client) GetRelease(ctx context.Context, tag string) (*github.RepositoryRelease, error) {
	if c.client == nil || c.owner == "" || c.repo == "" {
		return nil, fmt.Errorf("client not initialized: use NewClient to create instances")
	}

	var (
		release *github.RepositoryRelease
		resp    *github.Response
		err     error
	)
	if tag == "" {
		release, resp, err = c.client.Repositories.GetLatestRelease(ctx, c.owner, c.repo)
	} else {
		release, resp, err = c.client.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s@%s", ErrReleaseNotFound, c.Repository(), displayTag(tag))
		}
		return nil, fmt.Errorf("failed to get release %s: %w", displayTag(tag), err)
	}

	return release, nil
}

// ReleaseNotes returns the body of the release for tag, trimmed of
// surrounding whitespace.
func (c *Client) ReleaseNotes(ctx context.Context, tag string) (string, error) {
	release, err := c.GetRelease(ctx, tag)
	if err != nil {
		return "", err
	}
	return NotesFromRelease(release)
}

// NotesFromRelease extracts the notes from a release. Releases without a
// body yield ErrEmptyNotes.
func NotesFromRelease(release *github.RepositoryRelease) (string, error) {
	if release == nil {
		return "", ErrNilRelease
	}
	body := strings.TrimSpace(release.GetBody())
	if body == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyNotes, release.GetTagName())
	}
	return body, nil
}

func displayTag(tag string) string {
	if tag == "" {
		return "latest"
	}
	return tag
}

// parseRepository splits a repository string into owner and repo.
// Returns an error if the format is invalid.
func parseRepository(repository string) (owner, repo string, err error) {
	if repository == "" {
		return "", "", ErrInvalidRepo
	}

	parts := strings.Split(repository, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: got %s", ErrInvalidRepo, repository)
	}

	owner = strings.TrimSpace(parts[0])
	repo = strings.TrimSpace(parts[1])

	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: owner or repo is empty", ErrInvalidRepo)
	}

	return owner, repo, nil
}
