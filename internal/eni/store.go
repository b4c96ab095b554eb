package eni

import "time"

// Property names kept in the PropertyStore.
const (
	PropObjectType   = "eni:object-type"
	PropLabel        = "eni:label"
	PropLabelComment = "eni:label-comment"
)

// PropertyStore keeps the state git has no native notion of: the lock table,
// per-path properties and per-revision properties. Lookups return (nil, nil)
// or ("", nil) when nothing is stored.
type PropertyStore interface {
	// FindLock returns the lock on path, or nil.
	FindLock(path string) (*Lock, error)

	// AcquireLock creates or refreshes the lock on path for holder.
	// Returns *LockConflictError if another holder owns it.
	AcquireLock(path, holder, comment string, at time.Time) (*Lock, error)

	// ReleaseLock removes holder's lock on path. An empty holder releases
	// any lock. Releasing a missing lock is not an error.
	ReleaseLock(path, holder string) error

	// ListLocks returns every lock ordered by path.
	ListLocks() ([]LockedPath, error)

	SetPathProperty(path, name, value string) error
	FindPathProperty(path, name string) (string, error)

	// SetRevisionProperty stores a property on a revision, identified by
	// the commit hash.
	SetRevisionProperty(revision, name, value string) error

	// FindRevisionProperties returns all properties stored on revision.
	FindRevisionProperties(revision string) (map[string]string, error)

	// BackupTo writes a consistent copy of the store to dest.
	BackupTo(dest string) error

	Close() error
}
