package vcs_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"

	"eni-go/internal/eni"
	"eni-go/internal/fs"
	"eni-go/internal/testutil"
	"eni-go/internal/vcs"
)

type fixture struct {
	vcs   *vcs.GitVCS
	clock *testutil.StubClock
	store eni.PropertyStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	store := testutil.NewTestDatabase(t)
	g, err := vcs.NewMemoryGitVCS(store, vcs.Options{Clock: clock, Logger: testutil.NewRecordingLogger()})
	if err != nil {
		t.Fatalf("NewMemoryGitVCS() error = %v", err)
	}
	return &fixture{vcs: g, clock: clock, store: store}
}

func (f *fixture) write(t *testing.T, p, user, msg, data string) int64 {
	t.Helper()
	rev, err := f.vcs.WriteAndCommit(context.Background(), eni.Commit{
		Path: p, Data: []byte(data), TypeID: "{AAAA}", User: user, Message: msg,
	})
	if err != nil {
		t.Fatalf("WriteAndCommit(%s) error = %v", p, err)
	}
	return rev
}

func TestGitVCS_WriteAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if rev := f.write(t, "plc/main.pou", "alice", "first", "v1"); rev != 1 {
		t.Errorf("first revision = %d, want 1", rev)
	}
	f.clock.Advance(time.Minute)
	if rev := f.write(t, "plc/main.pou", "alice", "second", "v2"); rev != 2 {
		t.Errorf("second revision = %d, want 2", rev)
	}

	tests := []struct {
		rev  int64
		want string
	}{
		{eni.Head, "v2"},
		{1, "v1"},
		{2, "v2"},
	}
	for _, tt := range tests {
		data, err := f.vcs.Read(ctx, "plc/main.pou", tt.rev)
		if err != nil {
			t.Fatalf("Read(rev %d) error = %v", tt.rev, err)
		}
		if string(data) != tt.want {
			t.Errorf("Read(rev %d) = %q, want %q", tt.rev, data, tt.want)
		}
	}

	typeID, err := f.store.FindPathProperty("plc/main.pou", eni.PropObjectType)
	if err != nil {
		t.Fatalf("FindPathProperty() error = %v", err)
	}
	if typeID != "{AAAA}" {
		t.Errorf("object type property = %q, want {AAAA}", typeID)
	}
}

func TestGitVCS_ReadMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var notFound *eni.NotFoundError
	if _, err := f.vcs.Read(ctx, "main.pou", eni.Head); !errors.As(err, &notFound) {
		t.Errorf("Read() on empty repository error = %v, want NotFoundError", err)
	}

	f.write(t, "main.pou", "alice", "", "x")
	if _, err := f.vcs.Read(ctx, "other.pou", eni.Head); !errors.As(err, &notFound) {
		t.Errorf("Read() missing file error = %v, want NotFoundError", err)
	}
	if _, err := f.vcs.Read(ctx, "main.pou", 7); !errors.As(err, &notFound) {
		t.Errorf("Read() beyond head error = %v, want NotFoundError", err)
	}
}

func TestGitVCS_UnchangedWrite(t *testing.T) {
	f := newFixture(t)

	f.write(t, "main.pou", "alice", "", "same")
	if rev := f.write(t, "main.pou", "alice", "again", "same"); rev != 1 {
		t.Errorf("unchanged write revision = %d, want 1", rev)
	}

	revs, err := f.vcs.Log(context.Background(), "main.pou")
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(revs) != 1 {
		t.Errorf("len(Log()) = %d, want 1", len(revs))
	}
}

// failingStore fails the selected writes and passes everything else through.
type failingStore struct {
	eni.PropertyStore
	failTag     bool
	failRelease bool
}

func (s *failingStore) SetPathProperty(path, name, value string) error {
	if s.failTag {
		return errors.New("disk full")
	}
	return s.PropertyStore.SetPathProperty(path, name, value)
}

func (s *failingStore) ReleaseLock(path, holder string) error {
	if s.failRelease {
		return errors.New("disk full")
	}
	return s.PropertyStore.ReleaseLock(path, holder)
}

func TestGitVCS_WriteAndCommitStoreFailures(t *testing.T) {
	ctx := context.Background()
	commit := eni.Commit{Path: "main.pou", Data: []byte("v1"), TypeID: "{AAAA}", User: "alice", Message: "first"}

	t.Run("type tag fails before anything is committed", func(t *testing.T) {
		store := &failingStore{PropertyStore: testutil.NewTestDatabase(t), failTag: true}
		g, err := vcs.NewMemoryGitVCS(store, vcs.Options{})
		if err != nil {
			t.Fatal(err)
		}

		if _, err := g.WriteAndCommit(ctx, commit); err == nil {
			t.Fatal("WriteAndCommit() succeeded although the type tag failed")
		}
		var notFound *eni.NotFoundError
		if _, err := g.Log(ctx, "main.pou"); !errors.As(err, &notFound) {
			t.Errorf("Log() error = %v, want no revision", err)
		}
	})

	t.Run("lock release failure after commit is logged", func(t *testing.T) {
		store := &failingStore{PropertyStore: testutil.NewTestDatabase(t), failRelease: true}
		logger := testutil.NewRecordingLogger()
		g, err := vcs.NewMemoryGitVCS(store, vcs.Options{Logger: logger})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.AcquireLock("main.pou", "alice", "", time.Now()); err != nil {
			t.Fatal(err)
		}

		rev, err := g.WriteAndCommit(ctx, commit)
		if err != nil {
			t.Fatalf("WriteAndCommit() error = %v, want the landed commit reported", err)
		}
		if rev != 1 {
			t.Errorf("revision = %d, want 1", rev)
		}
		if !logger.Has("ERROR", "lock not released") {
			t.Errorf("release failure not logged:\n%s", logger)
		}
		if lock, _ := store.FindLock("main.pou"); lock == nil {
			t.Error("lock vanished although the release failed")
		}
	})
}

func TestGitVCS_Locks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "main.pou", "alice", "", "v1")

	t.Run("lock requires an existing file", func(t *testing.T) {
		var notFound *eni.NotFoundError
		if _, err := f.vcs.Lock(ctx, "missing.pou", "alice", ""); !errors.As(err, &notFound) {
			t.Errorf("Lock() error = %v, want NotFoundError", err)
		}
	})

	t.Run("holder lock and conflict", func(t *testing.T) {
		lock, err := f.vcs.Lock(ctx, "main.pou", "alice", "editing")
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		if lock.Holder != "alice" || !lock.Since.Equal(f.clock.Now()) {
			t.Errorf("Lock() = %+v", lock)
		}

		var conflict *eni.LockConflictError
		if _, err := f.vcs.Lock(ctx, "main.pou", "bob", ""); !errors.As(err, &conflict) {
			t.Errorf("Lock() by bob error = %v, want LockConflictError", err)
		}
		_, err = f.vcs.WriteAndCommit(ctx, eni.Commit{Path: "main.pou", Data: []byte("bob"), User: "bob"})
		if !errors.As(err, &conflict) {
			t.Errorf("WriteAndCommit() by bob error = %v, want LockConflictError", err)
		}
		if err := f.vcs.Unlock(ctx, "main.pou", "bob"); !errors.As(err, &conflict) {
			t.Errorf("Unlock() by bob error = %v, want LockConflictError", err)
		}
	})

	t.Run("commit releases holder lock", func(t *testing.T) {
		f.write(t, "main.pou", "alice", "done", "v2")
		locks, err := f.vcs.Locks(ctx)
		if err != nil {
			t.Fatalf("Locks() error = %v", err)
		}
		if len(locks) != 0 {
			t.Errorf("Locks() = %+v, want none", locks)
		}
	})

	t.Run("break lock", func(t *testing.T) {
		if _, err := f.vcs.Lock(ctx, "main.pou", "alice", ""); err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		if err := f.vcs.BreakLock("main.pou"); err != nil {
			t.Fatalf("BreakLock() error = %v", err)
		}
		if _, err := f.vcs.Lock(ctx, "main.pou", "bob", ""); err != nil {
			t.Errorf("Lock() after break error = %v", err)
		}
	})

	t.Run("unlock of unlocked path is a no-op", func(t *testing.T) {
		if err := f.vcs.Unlock(ctx, "other.pou", "alice"); err != nil {
			t.Errorf("Unlock() error = %v", err)
		}
	})
}

func TestGitVCS_MakeFolderAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.vcs.MakeFolder(ctx, "plc/lib", "alice", "create lib"); err != nil {
		t.Fatalf("MakeFolder() error = %v", err)
	}
	if err := f.vcs.MakeFolder(ctx, "plc/lib", "alice", "again"); err != nil {
		t.Fatalf("MakeFolder() on existing folder error = %v", err)
	}
	f.write(t, "plc/main.pou", "alice", "", "x")

	revs, err := f.vcs.Log(ctx, "plc/lib")
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(revs) != 1 {
		t.Errorf("existing folder was committed again: %d revisions", len(revs))
	}

	tests := []struct {
		name        string
		path        string
		recursive   bool
		foldersOnly bool
		want        []eni.Entry
	}{
		{
			name: "top level",
			path: "",
			want: []eni.Entry{{Path: "plc", Kind: eni.EntryFolder}},
		},
		{
			name: "folder contents hide the marker",
			path: "plc",
			want: []eni.Entry{
				{Path: "plc/lib", Kind: eni.EntryFolder},
				{Path: "plc/main.pou", Kind: eni.EntryFile},
			},
		},
		{
			name:      "recursive",
			path:      "",
			recursive: true,
			want: []eni.Entry{
				{Path: "plc", Kind: eni.EntryFolder},
				{Path: "plc/lib", Kind: eni.EntryFolder},
				{Path: "plc/main.pou", Kind: eni.EntryFile},
			},
		},
		{
			name:        "folders only",
			path:        "",
			recursive:   true,
			foldersOnly: true,
			want: []eni.Entry{
				{Path: "plc", Kind: eni.EntryFolder},
				{Path: "plc/lib", Kind: eni.EntryFolder},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.vcs.List(ctx, tt.path, tt.recursive, tt.foldersOnly)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List() = %+v, want %+v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("List()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}

	t.Run("missing folder", func(t *testing.T) {
		var notFound *eni.NotFoundError
		if _, err := f.vcs.List(ctx, "nowhere", false, false); !errors.As(err, &notFound) {
			t.Errorf("List() error = %v, want NotFoundError", err)
		}
	})

	t.Run("file is not a folder", func(t *testing.T) {
		var notFound *eni.NotFoundError
		if _, err := f.vcs.List(ctx, "plc/main.pou", false, false); !errors.As(err, &notFound) {
			t.Errorf("List() error = %v, want NotFoundError", err)
		}
	})

	t.Run("folder over file", func(t *testing.T) {
		if err := f.vcs.MakeFolder(ctx, "plc/main.pou", "alice", ""); err == nil {
			t.Error("MakeFolder() over a file expected error")
		}
	})
}

func TestGitVCS_ListEmptyRepository(t *testing.T) {
	f := newFixture(t)

	entries, err := f.vcs.List(context.Background(), "", true, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List() = %+v, want empty", entries)
	}
}

func TestGitVCS_LogAndInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, "a.pou", "alice", "a1", "a1")
	f.clock.Advance(time.Hour)
	f.write(t, "b.pou", "bob", "b1", "b1")
	f.clock.Advance(time.Hour)
	f.write(t, "a.pou", "carol", "a2", "a2")

	revs, err := f.vcs.Log(ctx, "a.pou")
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("len(Log()) = %d, want 2", len(revs))
	}
	if revs[0].Number != 3 || revs[0].Author != "carol" || revs[0].Message != "a2" {
		t.Errorf("revs[0] = %+v, want revision 3 by carol", revs[0])
	}
	if revs[1].Number != 1 || revs[1].Author != "alice" {
		t.Errorf("revs[1] = %+v, want revision 1 by alice", revs[1])
	}

	rootRevs, err := f.vcs.Log(ctx, "")
	if err != nil {
		t.Fatalf("Log(root) error = %v", err)
	}
	if len(rootRevs) != 3 {
		t.Errorf("len(Log(root)) = %d, want 3", len(rootRevs))
	}

	info, err := f.vcs.Info(ctx, "a.pou", 2)
	if err != nil {
		t.Fatalf("Info(rev 2) error = %v", err)
	}
	if info.Revision != 1 || info.Author != "alice" {
		t.Errorf("Info(rev 2) = %+v, want last change at revision 1", info)
	}
	if want := testutil.FixedClock().Now(); !info.LastChanged.Equal(want) {
		t.Errorf("LastChanged = %v, want %v", info.LastChanged, want)
	}

	info, err = f.vcs.Info(ctx, "a.pou", eni.Head)
	if err != nil {
		t.Fatalf("Info(head) error = %v", err)
	}
	if info.Revision != 3 {
		t.Errorf("Info(head).Revision = %d, want 3", info.Revision)
	}

	var notFound *eni.NotFoundError
	if _, err := f.vcs.Info(ctx, "b.pou", 1); !errors.As(err, &notFound) {
		t.Errorf("Info() before creation error = %v, want NotFoundError", err)
	}
	if _, err := f.vcs.Log(ctx, "c.pou"); !errors.As(err, &notFound) {
		t.Errorf("Log() of unknown path error = %v, want NotFoundError", err)
	}
}

func TestGitVCS_SetLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, "plc/main.pou", "alice", "", "v1")
	f.write(t, "other.pou", "alice", "", "x")

	rev, err := f.vcs.SetLabel(ctx, "plc", "release-1", "first release")
	if err != nil {
		t.Fatalf("SetLabel() error = %v", err)
	}
	if rev != 1 {
		t.Errorf("SetLabel() revision = %d, want 1 (last change of plc)", rev)
	}

	revs, err := f.vcs.Log(ctx, "plc/main.pou")
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if revs[0].Label != "release-1" {
		t.Errorf("Label = %q, want release-1", revs[0].Label)
	}

	var notFound *eni.NotFoundError
	if _, err := f.vcs.SetLabel(ctx, "nowhere", "x", ""); !errors.As(err, &notFound) {
		t.Errorf("SetLabel() on missing path error = %v, want NotFoundError", err)
	}
}

func TestGitVCS_OnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "wc")
	store := testutil.NewTestDatabase(t)
	ctx := context.Background()

	g, err := vcs.OpenGitVCS(ctx, dir, store, vcs.Options{Clock: testutil.FixedClock()})
	if err != nil {
		t.Fatalf("OpenGitVCS() error = %v", err)
	}
	if _, err := g.WriteAndCommit(ctx, eni.Commit{Path: "main.pou", Data: []byte("PROGRAM"), User: "alice"}); err != nil {
		t.Fatalf("WriteAndCommit() error = %v", err)
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen() error = %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("CommitObject() error = %v", err)
	}
	if commit.Author.Email != "alice@eni.local" {
		t.Errorf("author email = %q, want alice@eni.local", commit.Author.Email)
	}

	reopened, err := vcs.OpenGitVCS(ctx, dir, store, vcs.Options{})
	if err != nil {
		t.Fatalf("reopening working copy: %v", err)
	}
	data, err := reopened.Read(ctx, "main.pou", eni.Head)
	if err != nil || string(data) != "PROGRAM" {
		t.Errorf("Read() after reopen = %q, %v", data, err)
	}
}

func TestGitVCS_Remote(t *testing.T) {
	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	if _, err := git.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("initializing bare remote: %v", err)
	}
	ctx := context.Background()
	remote := &vcs.Remote{URL: remoteDir}

	a, err := vcs.OpenGitVCS(ctx, filepath.Join(t.TempDir(), "a"), testutil.NewTestDatabase(t), vcs.Options{Remote: remote, Clock: testutil.FixedClock()})
	if err != nil {
		t.Fatalf("OpenGitVCS(a) error = %v", err)
	}
	if _, err := a.WriteAndCommit(ctx, eni.Commit{Path: "main.pou", Data: []byte("v1"), User: "alice"}); err != nil {
		t.Fatalf("WriteAndCommit(a) error = %v", err)
	}

	b, err := vcs.OpenGitVCS(ctx, filepath.Join(t.TempDir(), "b"), testutil.NewTestDatabase(t), vcs.Options{Remote: remote, Clock: testutil.FixedClock()})
	if err != nil {
		t.Fatalf("OpenGitVCS(b) error = %v", err)
	}
	data, err := b.Read(ctx, "main.pou", eni.Head)
	if err != nil || string(data) != "v1" {
		t.Fatalf("clone Read() = %q, %v, want v1", data, err)
	}

	if _, err := a.WriteAndCommit(ctx, eni.Commit{Path: "main.pou", Data: []byte("v2"), User: "alice"}); err != nil {
		t.Fatalf("second WriteAndCommit(a) error = %v", err)
	}
	data, err = b.Read(ctx, "main.pou", eni.Head)
	if err != nil || string(data) != "v2" {
		t.Errorf("Read() after remote change = %q, %v, want v2", data, err)
	}
}

func TestGitVCS_IgnoredEntries(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	g, err := vcs.NewMemoryGitVCS(store, vcs.Options{Ignore: fs.NewIgnoreMatcher([]string{"*.bak"})})
	if err != nil {
		t.Fatalf("NewMemoryGitVCS() error = %v", err)
	}
	ctx := context.Background()
	for _, p := range []string{"main.pou", "main.pou.bak"} {
		if _, err := g.WriteAndCommit(ctx, eni.Commit{Path: p, Data: []byte(p), User: "alice"}); err != nil {
			t.Fatalf("WriteAndCommit(%s) error = %v", p, err)
		}
	}

	entries, err := g.List(ctx, "", false, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "main.pou" {
		t.Errorf("List() = %+v, want only main.pou", entries)
	}
}
