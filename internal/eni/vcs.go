package eni

import (
	"context"
	"time"
)

// Head selects the newest revision in Read and Info.
const Head int64 = 0

// EntryKind classifies a listing entry.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryFolder
)

func (k EntryKind) String() string {
	if k == EntryFolder {
		return "folder"
	}
	return "file"
}

// Entry is one element of a listing. Path is physical.
type Entry struct {
	Path string
	Kind EntryKind
}

// Revision is one committed state. Number is assigned by the VCS and grows
// monotonically.
type Revision struct {
	Number  int64
	Author  string
	Date    time.Time
	Message string
	Label   string
}

// Lock is the checkout token of an object.
type Lock struct {
	Holder  string
	Comment string
	Since   time.Time
}

// LockedPath pairs a lock with the physical path it guards.
type LockedPath struct {
	Path string
	Lock
}

// Info is the metadata of a path at one revision.
type Info struct {
	Revision    int64
	Author      string
	LastChanged time.Time
	Lock        *Lock
}

// Commit describes one write.
type Commit struct {
	Path    string
	Data    []byte
	TypeID  string
	User    string
	Message string
}

// VCS is the capability surface the gateway needs from the version-control
// engine. Paths are physical. Every operation that reads current state
// synchronizes with the backing repository first.
type VCS interface {
	// Sync brings the working copy up to the backing head.
	Sync(ctx context.Context) error

	// List returns the entries below path. Returns *NotFoundError if path
	// does not exist.
	List(ctx context.Context, path string, recursive, foldersOnly bool) ([]Entry, error)

	// Read returns the content of path at rev (Head for the newest).
	Read(ctx context.Context, path string, rev int64) ([]byte, error)

	// WriteAndCommit writes, registers and commits the content, tags the
	// path with its object type, and releases the committing user's lock.
	// Returns the revision that now holds the content.
	WriteAndCommit(ctx context.Context, c Commit) (int64, error)

	// Lock checks out path for user. Re-locking by the holder refreshes the
	// comment. Returns *LockConflictError if another user holds it.
	Lock(ctx context.Context, path, user, comment string) (*Lock, error)

	// Unlock releases user's lock. Unlocking an unlocked path is a no-op.
	Unlock(ctx context.Context, path, user string) error

	// MakeFolder creates path with intermediate folders and commits. No-op
	// when it exists.
	MakeFolder(ctx context.Context, path, user, message string) error

	// Log returns the revisions that changed path, newest first.
	Log(ctx context.Context, path string) ([]Revision, error)

	// Info returns the metadata of path at rev (Head for the newest).
	Info(ctx context.Context, path string, rev int64) (*Info, error)

	// SetLabel labels the revision that last changed path and returns it.
	SetLabel(ctx context.Context, path, label, comment string) (int64, error)

	// Locks lists every checked-out path.
	Locks(ctx context.Context) ([]LockedPath, error)
}
