// Package git reads repository metadata from the local checkout.
package git

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"

	"github.com/joescharf/milesync/internal/models"
)

// DefaultRemoteName is the remote the sync target is detected from.
const DefaultRemoteName = "origin"

// Client defines the git operations milesync needs.
type Client interface {
	RemoteURL(path string) (string, error)
	OriginRepo(path string) (models.Repo, error)
}

// RealClient implements Client by reading the repository with go-git.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

// RemoteURL returns the first origin URL, or "" when there is none. path may
// be any directory inside the worktree.
func (c *RealClient) RemoteURL(path string) (string, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", path, err)
	}

	remote, err := repo.Remote(DefaultRemoteName)
	if errors.Is(err, gogit.ErrRemoteNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read remote %s: %w", DefaultRemoteName, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}

// OriginRepo returns the owner/name of the origin remote of the checkout
// at path.
func (c *RealClient) OriginRepo(path string) (models.Repo, error) {
	url, err := c.RemoteURL(path)
	if err != nil {
		return models.Repo{}, err
	}
	if url == "" {
		return models.Repo{}, fmt.Errorf("no origin remote in %s", path)
	}
	return models.ParseRepo(url)
}
