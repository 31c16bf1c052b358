package manuscript

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// GitStore reads the manuscript layout from the HEAD commit of a local
// repository. HEAD is resolved on every read so new commits are visible
// without reopening.
type GitStore struct {
	layoutStore
	repo *git.Repository
}

// OpenGitStore opens the repository at path.
func OpenGitStore(path string) (*GitStore, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manuscript repository %s: %w", path, err)
	}
	return NewGitStore(repo), nil
}

// NewGitStore wraps an already opened repository.
func NewGitStore(repo *git.Repository) *GitStore {
	s := &GitStore{repo: repo}
	s.layoutStore = layoutStore{src: s}
	return s
}

func (s *GitStore) headTree() (*object.Tree, error) {
	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

func (s *GitStore) readFile(ctx context.Context, p string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	tree, err := s.headTree()
	if err != nil {
		return "", false, err
	}

	file, err := tree.File(p)
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", p, err)
	}

	content, err := file.Contents()
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return content, true, nil
}
