package codehost

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"slackagent/pkg/logx"
)

// maxSearchFileSize skips large blobs during search.
const maxSearchFileSize = 512 * 1024

var (
	ErrNotGitRepo = errors.New("path is not a git repository")
	ErrNoHead     = errors.New("repository has no HEAD reference")
	ErrNoOrigin   = errors.New("repository has no origin remote")
)

// OriginURL returns the first URL of the origin remote of the clone at dir.
func OriginURL(dir string) (string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
		}
		return "", fmt.Errorf("failed to open %s: %w", dir, err)
	}
	remote, err := repo.Remote(gogit.DefaultRemoteName)
	if err != nil {
		if errors.Is(err, gogit.ErrRemoteNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNoOrigin, dir)
		}
		return "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoOrigin, dir)
	}
	return urls[0], nil
}

// GitOptions tunes GitHost.
type GitOptions struct {
	Name      string   // repository label used in matches, e.g. "acme/api"
	Include   []string // globs; empty means every file
	Exclude   []string
	CacheSize int
}

// GitHost searches the HEAD tree of a git repository. Contents are read from
// the object store, so uncommitted changes are not visible.
type GitHost struct {
	repo    *gogit.Repository
	name    string
	include []glob.Glob
	exclude []glob.Glob
	cache   *lru.Cache[string, string] // blob hash -> content
	logger  *logx.Logger
	mu      sync.Mutex
}

// OpenGitHost opens the repository at location. A URL is cloned shallowly
// into memory; anything else is opened as a local path.
func OpenGitHost(ctx context.Context, location string, opts GitOptions) (*GitHost, error) {
	var (
		repo *gogit.Repository
		err  error
	)
	if strings.Contains(location, "://") || strings.HasPrefix(location, "git@") {
		repo, err = gogit.CloneContext(ctx, memory.NewStorage(), nil, &gogit.CloneOptions{
			URL:          location,
			Depth:        1,
			SingleBranch: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clone %s: %w", location, err)
		}
	} else {
		repo, err = gogit.PlainOpen(location)
		if err != nil {
			if errors.Is(err, gogit.ErrRepositoryNotExists) {
				return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, location)
			}
			return nil, fmt.Errorf("failed to open %s: %w", location, err)
		}
	}
	if opts.Name == "" {
		opts.Name = path.Base(strings.TrimSuffix(location, ".git"))
	}
	return NewGitHost(repo, opts)
}

// NewGitHost wraps an open repository.
func NewGitHost(repo *gogit.Repository, opts GitOptions) (*GitHost, error) {
	include, err := compileGlobs(opts.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, err
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create content cache: %w", err)
	}
	return &GitHost{
		repo:    repo,
		name:    opts.Name,
		include: include,
		exclude: exclude,
		cache:   cache,
		logger:  logx.NewLogger("codehost"),
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func (h *GitHost) Name() string { return "git:" + h.name }

func (h *GitHost) allowed(p string) bool {
	for _, g := range h.exclude {
		if g.Match(p) {
			return false
		}
	}
	if len(h.include) == 0 {
		return true
	}
	for _, g := range h.include {
		if g.Match(p) {
			return true
		}
	}
	return false
}

func (h *GitHost) headTree() (*object.Tree, error) {
	ref, err := h.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, ErrNoHead
		}
		return nil, err
	}
	commit, err := h.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}
	return commit.Tree()
}

func (h *GitHost) contents(f *object.File) (string, error) {
	key := f.Hash.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.cache.Get(key); ok {
		return c, nil
	}
	c, err := f.Contents()
	if err != nil {
		return "", err
	}
	h.cache.Add(key, c)
	return c, nil
}

// SearchCode returns files whose content contains term, case-insensitively,
// in tree order.
func (h *GitHost) SearchCode(ctx context.Context, term string, limit int) ([]Match, error) {
	tree, err := h.headTree()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	needle := strings.ToLower(term)

	var matches []Match
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(matches) >= limit {
			return storer.ErrStop
		}
		if !h.allowed(f.Name) || f.Size > maxSearchFileSize {
			return nil
		}
		if binary, err := f.IsBinary(); err != nil || binary {
			return nil
		}
		content, err := h.contents(f)
		if err != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(f.Name), needle) || strings.Contains(strings.ToLower(content), needle) {
			matches = append(matches, Match{Repo: h.name, Path: f.Name})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger.Debug("🔍 %q matched %d files in %s", term, len(matches), h.name)
	return matches, nil
}

// FetchContent returns the HEAD content of p. repo must be empty or this
// host's name.
func (h *GitHost) FetchContent(_ context.Context, repo, p string) (string, error) {
	if repo != "" && repo != h.name {
		return "", fmt.Errorf("%w: repository %s", ErrNotFound, repo)
	}
	tree, err := h.headTree()
	if err != nil {
		return "", err
	}
	f, err := tree.File(strings.TrimPrefix(p, "/"))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", err
	}
	return h.contents(f)
}

// ListIssues is not available for plain repositories.
func (h *GitHost) ListIssues(context.Context, int) ([]Issue, error) {
	return nil, ErrUnsupported
}
