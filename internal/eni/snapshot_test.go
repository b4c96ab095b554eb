package eni_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"eni-go/internal/database"
	"eni-go/internal/eni"
	"eni-go/internal/testutil"
)

func TestSnapshotter_SnapshotAndRestore(t *testing.T) {
	tests := []struct {
		name      string
		encryptor eni.Encryptor
	}{
		{name: "plaintext"},
		{name: "encrypted", encryptor: testutil.NewTestEncryptor()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewTestDatabase(t)
			v := testutil.NewTestVault()
			clock := testutil.FixedClock()
			s := eni.NewSnapshotter(store, v, tt.encryptor, "gw-1", clock, testutil.NewRecordingLogger())

			if _, err := store.AcquireLock("plc/main.pou", "alice", "timer", clock.Now()); err != nil {
				t.Fatalf("AcquireLock() error = %v", err)
			}
			if err := store.SetRevisionProperty("abc123", eni.PropLabel, "v1.0"); err != nil {
				t.Fatalf("SetRevisionProperty() error = %v", err)
			}

			version, err := s.Snapshot()
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			if version != clock.Now().Unix() {
				t.Errorf("Snapshot() version = %d, want %d", version, clock.Now().Unix())
			}

			if tt.encryptor != nil {
				var raw bytes.Buffer
				if err := v.GetMetadata("gw-1", eni.SnapshotName, &raw); err != nil {
					t.Fatalf("GetMetadata() error = %v", err)
				}
				if bytes.Contains(raw.Bytes(), []byte("SQLite format 3")) {
					t.Error("encrypted snapshot stored in plaintext")
				}
			}

			var dc eni.DecryptionContext
			if tt.encryptor != nil {
				if dc, err = tt.encryptor.Unlock("secret"); err != nil {
					t.Fatalf("Unlock() error = %v", err)
				}
			}

			dest := filepath.Join(t.TempDir(), "restored", "gw-1.db")
			restored, err := s.Restore(dest, dc)
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if restored != version {
				t.Errorf("Restore() version = %d, want %d", restored, version)
			}

			sqlDB, err := database.OpenConnection(dest)
			if err != nil {
				t.Fatalf("opening restored store: %v", err)
			}
			db := database.NewSQLiteDatabaseFromDB(sqlDB)
			defer db.Close()

			lock, err := db.FindLock("plc/main.pou")
			if err != nil {
				t.Fatalf("FindLock() error = %v", err)
			}
			if lock == nil || lock.Holder != "alice" || lock.Comment != "timer" {
				t.Errorf("restored lock = %+v, want alice/timer", lock)
			}
			props, err := db.FindRevisionProperties("abc123")
			if err != nil {
				t.Fatalf("FindRevisionProperties() error = %v", err)
			}
			if props[eni.PropLabel] != "v1.0" {
				t.Errorf("restored label = %q, want v1.0", props[eni.PropLabel])
			}
		})
	}
}

func TestSnapshotter_VersionsIncrease(t *testing.T) {
	store := testutil.NewTestDatabase(t)
	v := testutil.NewTestVault()
	clock := testutil.FixedClock()
	s := eni.NewSnapshotter(store, v, nil, "gw-1", clock, testutil.NewRecordingLogger())

	first, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	second, err := s.Snapshot()
	if err != nil {
		t.Fatalf("second Snapshot() error = %v", err)
	}
	if second != first+1 {
		t.Errorf("second version = %d, want %d", second, first+1)
	}

	clock.Advance(time.Hour)
	third, err := s.Snapshot()
	if err != nil {
		t.Fatalf("third Snapshot() error = %v", err)
	}
	if third != clock.Now().Unix() {
		t.Errorf("third version = %d, want clock time %d", third, clock.Now().Unix())
	}
}

func TestSnapshotter_RestoreErrors(t *testing.T) {
	t.Run("nothing stored", func(t *testing.T) {
		s := eni.NewSnapshotter(testutil.NewTestDatabase(t), testutil.NewTestVault(), nil, "gw-1", testutil.FixedClock(), testutil.NewRecordingLogger())
		if _, err := s.Restore(filepath.Join(t.TempDir(), "gw-1.db"), nil); err == nil {
			t.Error("Restore() expected error with empty vault")
		}
	})

	t.Run("encrypted without decryption context", func(t *testing.T) {
		s := eni.NewSnapshotter(testutil.NewTestDatabase(t), testutil.NewTestVault(), testutil.NewTestEncryptor(), "gw-1", testutil.FixedClock(), testutil.NewRecordingLogger())
		if _, err := s.Snapshot(); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if _, err := s.Restore(filepath.Join(t.TempDir(), "gw-1.db"), nil); err == nil {
			t.Error("Restore() expected error without decryption context")
		}
	})

	t.Run("other gateway", func(t *testing.T) {
		v := testutil.NewTestVault()
		clock := testutil.FixedClock()
		a := eni.NewSnapshotter(testutil.NewTestDatabase(t), v, nil, "gw-a", clock, testutil.NewRecordingLogger())
		b := eni.NewSnapshotter(testutil.NewTestDatabase(t), v, nil, "gw-b", clock, testutil.NewRecordingLogger())
		if _, err := a.Snapshot(); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if _, err := b.Restore(filepath.Join(t.TempDir(), "gw-b.db"), nil); err == nil {
			t.Error("Restore() found another gateway's snapshot")
		}
	})
}
