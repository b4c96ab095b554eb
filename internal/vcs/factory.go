package vcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"eni-go/internal/config"
	"eni-go/internal/eni"
	"eni-go/internal/fs"
)

// Remote is the upstream repository the working copy tracks.
type Remote struct {
	URL      string
	Username string
	Password string
}

func (r *Remote) auth() transport.AuthMethod {
	if r.Username == "" && r.Password == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: r.Username, Password: r.Password}
}

// Options tune a GitVCS. Zero values get defaults.
type Options struct {
	Remote       *Remote
	AuthorDomain string
	Ignore       *fs.IgnoreMatcher
	Clock        eni.Clock
	Logger       eni.Logger
}

func (o *Options) defaults() {
	if o.AuthorDomain == "" {
		o.AuthorDomain = "eni.local"
	}
	if o.Ignore == nil {
		o.Ignore = fs.NewIgnoreMatcher(nil)
	}
	if o.Clock == nil {
		o.Clock = eni.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = eni.NewNopLogger()
	}
}

// NewVCSFromConfig creates the VCS selected by the repository config type.
func NewVCSFromConfig(ctx context.Context, cfg config.RepositoryConfig, store eni.PropertyStore, logger eni.Logger) (*GitVCS, error) {
	opts := Options{AuthorDomain: cfg.AuthorDomain, Logger: logger}
	if cfg.Remote != "" {
		opts.Remote = &Remote{URL: cfg.Remote, Username: cfg.Username, Password: cfg.Password}
	}

	switch cfg.Type {
	case "memory":
		opts.Ignore = fs.NewIgnoreMatcher(cfg.Ignore)
		return NewMemoryGitVCS(store, opts)
	case "git", "":
		if cfg.WorkingCopy == "" {
			return nil, fmt.Errorf("git repository requires working_copy to be set")
		}
		patterns, err := fs.ParseIgnoreFile(filepath.Join(cfg.WorkingCopy, fs.IgnoreFileName))
		if err != nil {
			return nil, err
		}
		opts.Ignore = fs.NewIgnoreMatcher(append(append([]string{}, cfg.Ignore...), patterns...))
		return OpenGitVCS(ctx, cfg.WorkingCopy, store, opts)
	default:
		return nil, fmt.Errorf("unknown repository type: %s", cfg.Type)
	}
}

// OpenGitVCS opens the working copy at dir. A missing repository is cloned
// from the remote when one is configured, otherwise initialized empty.
func OpenGitVCS(ctx context.Context, dir string, store eni.PropertyStore, opts Options) (*GitVCS, error) {
	repo, err := git.PlainOpen(dir)
	switch {
	case err == nil:
		if opts.Remote != nil {
			if err := ensureRemote(repo, opts.Remote.URL); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		if repo, err = createRepository(ctx, dir, opts.Remote); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("opening working copy %s: %w", dir, err)
	}
	return NewGitVCS(repo, store, opts), nil
}

func createRepository(ctx context.Context, dir string, remote *Remote) (*git.Repository, error) {
	if remote != nil {
		repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:        remote.URL,
			Auth:       remote.auth(),
			RemoteName: remoteName,
		})
		if err == nil {
			return repo, nil
		}
		if !errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, fmt.Errorf("cloning %s: %w", remote.URL, err)
		}
	}

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("initializing working copy %s: %w", dir, err)
	}
	if remote != nil {
		if err := ensureRemote(repo, remote.URL); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func ensureRemote(repo *git.Repository, url string) error {
	_, err := repo.Remote(remoteName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("reading remote: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: remoteName, URLs: []string{url}}); err != nil {
		return fmt.Errorf("adding remote %s: %w", url, err)
	}
	return nil
}

// NewMemoryGitVCS creates a GitVCS over an in-memory repository and
// worktree. Useful for tests and throwaway gateways.
func NewMemoryGitVCS(store eni.PropertyStore, opts Options) (*GitVCS, error) {
	repo, err := git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		return nil, fmt.Errorf("initializing in-memory repository: %w", err)
	}
	// In-memory repositories have nowhere to push to.
	opts.Remote = nil
	return NewGitVCS(repo, store, opts), nil
}
