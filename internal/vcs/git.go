// Package vcs implements eni.VCS on a git working copy with go-git.
//
// Revisions are numbered by position on the first-parent chain from the root
// commit (1) to HEAD. Locks and properties live in an eni.PropertyStore,
// keyed by working-copy path and commit hash.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"eni-go/internal/eni"
	"eni-go/internal/fs"
)

const remoteName = "origin"

// GitVCS is the go-git backed eni.VCS.
type GitVCS struct {
	repo   *git.Repository
	store  eni.PropertyStore
	ignore *fs.IgnoreMatcher
	remote *Remote
	domain string
	clock  eni.Clock
	logger eni.Logger

	mu sync.Mutex
	// first-parent chain of cachedHead, reused until HEAD moves
	cachedHead  plumbing.Hash
	cachedChain []*object.Commit
}

var _ eni.VCS = (*GitVCS)(nil)

// NewGitVCS wraps an opened repository.
func NewGitVCS(repo *git.Repository, store eni.PropertyStore, opts Options) *GitVCS {
	opts.defaults()
	return &GitVCS{
		repo:   repo,
		store:  store,
		ignore: opts.Ignore,
		remote: opts.Remote,
		domain: opts.AuthorDomain,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// revision is one entry of a path's history.
type revision struct {
	number int64
	commit *object.Commit
}

// Sync pulls from the remote. It is a no-op without a remote.
func (g *GitVCS) Sync(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sync(ctx)
}

func (g *GitVCS) sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.remote == nil {
		return nil
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return &eni.VcsError{Op: "sync", Err: err}
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: remoteName, Auth: g.remote.auth()})
	switch {
	case err == nil:
		g.logger.Debug("working copy updated from remote")
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, plumbing.ErrReferenceNotFound):
		return nil
	default:
		return &eni.VcsError{Op: "sync", Err: err}
	}
}

func (g *GitVCS) push(ctx context.Context) error {
	if g.remote == nil {
		return nil
	}
	err := g.repo.PushContext(ctx, &git.PushOptions{RemoteName: remoteName, Auth: g.remote.auth()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &eni.VcsError{Op: "push", Err: err}
	}
	return nil
}

// chain returns the first-parent chain oldest first. An empty repository
// has an empty chain. Callers hold g.mu and must not modify the result.
func (g *GitVCS) chain() ([]*object.Commit, error) {
	ref, err := g.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &eni.VcsError{Op: "resolve head", Err: err}
	}
	if g.cachedChain != nil && ref.Hash() == g.cachedHead {
		return g.cachedChain, nil
	}

	c, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, &eni.VcsError{Op: "read commit", Err: err}
	}

	var out []*object.Commit
	for {
		out = append(out, c)
		if c.NumParents() == 0 {
			break
		}
		if c, err = c.Parent(0); err != nil {
			return nil, &eni.VcsError{Op: "read commit", Err: err}
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	g.cachedHead, g.cachedChain = ref.Hash(), out
	return out, nil
}

// entryAt returns the tree entry hash and mode of p in c. The root path ""
// is the commit tree itself.
func entryAt(c *object.Commit, p string) (plumbing.Hash, filemode.FileMode, bool, error) {
	tree, err := c.Tree()
	if err != nil {
		return plumbing.ZeroHash, 0, false, &eni.VcsError{Op: "read tree", Err: err}
	}
	if p == "" {
		return tree.Hash, filemode.Dir, true, nil
	}
	e, err := tree.FindEntry(p)
	if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return plumbing.ZeroHash, 0, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, 0, false, &eni.VcsError{Op: "read tree", Err: err}
	}
	return e.Hash, e.Mode, true, nil
}

// history returns the revisions that changed p, oldest first.
func (g *GitVCS) history(p string) ([]revision, error) {
	commits, err := g.chain()
	if err != nil {
		return nil, err
	}

	var (
		out     []revision
		prev    plumbing.Hash
		present bool
	)
	for i, c := range commits {
		h, _, ok, err := entryAt(c, p)
		if err != nil {
			return nil, err
		}
		if ok && (!present || h != prev) {
			out = append(out, revision{number: int64(i + 1), commit: c})
		}
		prev, present = h, ok
	}
	return out, nil
}

// commitAt returns the commit numbered rev, or HEAD for eni.Head.
func (g *GitVCS) commitAt(p string, rev int64) (*object.Commit, int64, error) {
	commits, err := g.chain()
	if err != nil {
		return nil, 0, err
	}
	if len(commits) == 0 {
		return nil, 0, &eni.NotFoundError{Path: p}
	}
	if rev == eni.Head {
		rev = int64(len(commits))
	}
	if rev < 1 || rev > int64(len(commits)) {
		return nil, 0, &eni.NotFoundError{Path: fmt.Sprintf("%s@%d", p, rev)}
	}
	return commits[rev-1], rev, nil
}

// List walks the HEAD tree below p.
func (g *GitVCS) List(ctx context.Context, p string, recursive, foldersOnly bool) ([]eni.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return nil, err
	}

	commits, err := g.chain()
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		if p == "" {
			return nil, nil
		}
		return nil, &eni.NotFoundError{Path: p}
	}

	root, err := commits[len(commits)-1].Tree()
	if err != nil {
		return nil, &eni.VcsError{Op: "read tree", Err: err}
	}
	if p != "" {
		_, mode, ok, err := entryAt(commits[len(commits)-1], p)
		if err != nil {
			return nil, err
		}
		if !ok || mode != filemode.Dir {
			return nil, &eni.NotFoundError{Path: p}
		}
		if root, err = root.Tree(p); err != nil {
			return nil, &eni.VcsError{Op: "read tree", Err: err}
		}
	}

	var out []eni.Entry
	if err := g.walk(root, p, recursive, foldersOnly, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GitVCS) walk(t *object.Tree, prefix string, recursive, foldersOnly bool, out *[]eni.Entry) error {
	for _, e := range t.Entries {
		full := path.Join(prefix, e.Name)
		if g.ignore.Match(full) {
			continue
		}
		switch e.Mode {
		case filemode.Dir:
			*out = append(*out, eni.Entry{Path: full, Kind: eni.EntryFolder})
			if !recursive {
				continue
			}
			sub, err := t.Tree(e.Name)
			if err != nil {
				return &eni.VcsError{Op: "read tree", Err: err}
			}
			if err := g.walk(sub, full, recursive, foldersOnly, out); err != nil {
				return err
			}
		case filemode.Regular, filemode.Executable, filemode.Deprecated:
			if !foldersOnly {
				*out = append(*out, eni.Entry{Path: full, Kind: eni.EntryFile})
			}
		}
	}
	return nil
}

// Read returns the blob at p in revision rev.
func (g *GitVCS) Read(ctx context.Context, p string, rev int64) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return nil, err
	}

	c, _, err := g.commitAt(p, rev)
	if err != nil {
		return nil, err
	}
	f, err := c.File(p)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, &eni.NotFoundError{Path: p}
	}
	if err != nil {
		return nil, &eni.VcsError{Op: "read", Err: err}
	}

	r, err := f.Reader()
	if err != nil {
		return nil, &eni.VcsError{Op: "read", Err: err}
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &eni.VcsError{Op: "read", Err: err}
	}
	return data, nil
}

// WriteAndCommit tags c.Path with its type, writes c.Data, commits it and
// releases the committer's lock. Unchanged content creates no commit; the
// lock is still released. A failed release after the commit is logged, not
// returned.
func (g *GitVCS) WriteAndCommit(ctx context.Context, c eni.Commit) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return 0, err
	}

	lock, err := g.store.FindLock(c.Path)
	if err != nil {
		return 0, fmt.Errorf("checking lock: %w", err)
	}
	if lock != nil && lock.Holder != c.User {
		return 0, &eni.LockConflictError{Path: c.Path, Holder: lock.Holder}
	}

	// The type tag goes first: a failed store write must not leave a
	// committed revision behind.
	if err := g.store.SetPathProperty(c.Path, eni.PropObjectType, c.TypeID); err != nil {
		return 0, fmt.Errorf("tagging object type: %w", err)
	}

	rev, err := g.write(ctx, c)
	if err != nil {
		return 0, err
	}

	// Once committed the write has happened; a stale lock is left for the
	// holder or an operator to clear.
	if err := g.store.ReleaseLock(c.Path, c.User); err != nil {
		g.logger.Error("lock not released after commit", "path", c.Path, "user", c.User, "revision", rev, "error", err)
	}
	return rev, nil
}

func (g *GitVCS) write(ctx context.Context, c eni.Commit) (int64, error) {
	commits, err := g.chain()
	if err != nil {
		return 0, err
	}
	if len(commits) > 0 {
		h, mode, ok, err := entryAt(commits[len(commits)-1], c.Path)
		if err != nil {
			return 0, err
		}
		if ok && mode == filemode.Dir {
			return 0, &eni.VcsError{Op: "write", Err: fmt.Errorf("%s is a folder", c.Path)}
		}
		if ok && h == plumbing.ComputeHash(plumbing.BlobObject, c.Data) {
			g.logger.Debug("content unchanged, no commit", "path", c.Path)
			return int64(len(commits)), nil
		}
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return 0, &eni.VcsError{Op: "open worktree", Err: err}
	}
	if dir := path.Dir(c.Path); dir != "." {
		if err := wt.Filesystem.MkdirAll(dir, 0755); err != nil {
			return 0, &eni.VcsError{Op: "write", Err: err}
		}
	}
	if err := util.WriteFile(wt.Filesystem, c.Path, c.Data, 0644); err != nil {
		return 0, &eni.VcsError{Op: "write", Err: err}
	}
	return g.commit(ctx, wt, c.Path, c.User, c.Message)
}

// commit stages p and commits it as user. Returns the head revision number,
// which is unchanged when there was nothing to commit.
func (g *GitVCS) commit(ctx context.Context, wt *git.Worktree, p, user, message string) (int64, error) {
	if _, err := wt.Add(p); err != nil {
		return 0, &eni.VcsError{Op: "add", Err: err}
	}

	sig := &object.Signature{Name: user, Email: user + "@" + g.domain, When: g.clock.Now()}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	switch {
	case errors.Is(err, git.ErrEmptyCommit):
		g.logger.Debug("content unchanged, no commit", "path", p)
	case err != nil:
		return 0, &eni.VcsError{Op: "commit", Err: err}
	default:
		g.logger.Debug("committed", "path", p, "commit", hash.String(), "user", user)
		if err := g.push(ctx); err != nil {
			return 0, err
		}
	}

	commits, err := g.chain()
	if err != nil {
		return 0, err
	}
	return int64(len(commits)), nil
}

// Lock checks out an existing object.
func (g *GitVCS) Lock(ctx context.Context, p, user, comment string) (*eni.Lock, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return nil, err
	}
	if err := g.requireFile(p); err != nil {
		return nil, err
	}

	lock, err := g.store.AcquireLock(p, user, comment, g.clock.Now())
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func (g *GitVCS) requireFile(p string) error {
	c, _, err := g.commitAt(p, eni.Head)
	if err != nil {
		return err
	}
	_, mode, ok, err := entryAt(c, p)
	if err != nil {
		return err
	}
	if !ok || mode == filemode.Dir {
		return &eni.NotFoundError{Path: p}
	}
	return nil
}

// Unlock releases user's lock on p.
func (g *GitVCS) Unlock(ctx context.Context, p, user string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, err := g.store.FindLock(p)
	if err != nil {
		return fmt.Errorf("checking lock: %w", err)
	}
	if lock == nil {
		return nil
	}
	if lock.Holder != user {
		return &eni.LockConflictError{Path: p, Holder: lock.Holder}
	}
	return g.store.ReleaseLock(p, user)
}

// BreakLock removes any lock on p regardless of holder.
func (g *GitVCS) BreakLock(p string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.ReleaseLock(p, "")
}

// MakeFolder materializes p with a marker file and commits it.
func (g *GitVCS) MakeFolder(ctx context.Context, p, user, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return err
	}
	if p == "" {
		return nil
	}

	commits, err := g.chain()
	if err != nil {
		return err
	}
	if len(commits) > 0 {
		_, mode, ok, err := entryAt(commits[len(commits)-1], p)
		if err != nil {
			return err
		}
		if ok && mode == filemode.Dir {
			return nil
		}
		if ok {
			return &eni.VcsError{Op: "make folder", Err: fmt.Errorf("%s exists and is not a folder", p)}
		}
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return &eni.VcsError{Op: "open worktree", Err: err}
	}
	if err := wt.Filesystem.MkdirAll(p, 0755); err != nil {
		return &eni.VcsError{Op: "make folder", Err: err}
	}
	marker := path.Join(p, fs.FolderMarker)
	if err := util.WriteFile(wt.Filesystem, marker, nil, 0644); err != nil {
		return &eni.VcsError{Op: "make folder", Err: err}
	}
	_, err = g.commit(ctx, wt, marker, user, message)
	return err
}

// Log returns p's revisions newest first, labels included.
func (g *GitVCS) Log(ctx context.Context, p string) ([]eni.Revision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return nil, err
	}

	hist, err := g.history(p)
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, &eni.NotFoundError{Path: p}
	}

	out := make([]eni.Revision, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		r := hist[i]
		props, err := g.store.FindRevisionProperties(r.commit.Hash.String())
		if err != nil {
			return nil, fmt.Errorf("reading revision properties: %w", err)
		}
		out = append(out, eni.Revision{
			Number:  r.number,
			Author:  r.commit.Author.Name,
			Date:    r.commit.Author.When,
			Message: r.commit.Message,
			Label:   props[eni.PropLabel],
		})
	}
	return out, nil
}

// Info reports the last change of p at or before rev, and its current lock.
func (g *GitVCS) Info(ctx context.Context, p string, rev int64) (*eni.Info, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return nil, err
	}

	commits, err := g.chain()
	if err != nil {
		return nil, err
	}
	last, err := lastChange(commits, p, rev)
	if err != nil {
		return nil, err
	}

	lock, err := g.store.FindLock(p)
	if err != nil {
		return nil, fmt.Errorf("checking lock: %w", err)
	}
	return &eni.Info{
		Revision:    last.number,
		Author:      last.commit.Author.Name,
		LastChanged: last.commit.Author.When,
		Lock:        lock,
	}, nil
}

// lastChange walks back from rev to the revision that last changed p. It
// stops at the first older commit where p differs, so recently changed
// paths cost a few tree lookups regardless of history length.
func lastChange(commits []*object.Commit, p string, rev int64) (revision, error) {
	if len(commits) == 0 {
		return revision{}, &eni.NotFoundError{Path: p}
	}
	if rev == eni.Head {
		rev = int64(len(commits))
	}
	if rev < 1 || rev > int64(len(commits)) {
		return revision{}, &eni.NotFoundError{Path: fmt.Sprintf("%s@%d", p, rev)}
	}

	want, _, ok, err := entryAt(commits[rev-1], p)
	if err != nil {
		return revision{}, err
	}
	if !ok {
		return revision{}, &eni.NotFoundError{Path: p}
	}

	i := rev - 1
	for ; i > 0; i-- {
		h, _, ok, err := entryAt(commits[i-1], p)
		if err != nil {
			return revision{}, err
		}
		if !ok || h != want {
			break
		}
	}
	return revision{number: i + 1, commit: commits[i]}, nil
}

// SetLabel labels the revision that last changed p.
func (g *GitVCS) SetLabel(ctx context.Context, p, label, comment string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return 0, err
	}

	hist, err := g.history(p)
	if err != nil {
		return 0, err
	}
	if len(hist) == 0 {
		return 0, &eni.NotFoundError{Path: p}
	}
	head := hist[len(hist)-1]
	id := head.commit.Hash.String()

	if err := g.store.SetRevisionProperty(id, eni.PropLabel, label); err != nil {
		return 0, fmt.Errorf("setting label: %w", err)
	}
	if err := g.store.SetRevisionProperty(id, eni.PropLabelComment, comment); err != nil {
		return 0, fmt.Errorf("setting label comment: %w", err)
	}
	return head.number, nil
}

// Locks lists all checked-out paths.
func (g *GitVCS) Locks(ctx context.Context) ([]eni.LockedPath, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.ListLocks()
}
