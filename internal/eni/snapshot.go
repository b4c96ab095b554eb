package eni

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SnapshotName is the vault item holding property-store snapshots.
const SnapshotName = "props"

// Snapshotter copies the property store to a vault. The lock table and
// labels are not part of git history, so they are preserved this way.
type Snapshotter struct {
	store     PropertyStore
	vault     Vault
	encryptor Encryptor
	gatewayID string
	clock     Clock
	logger    Logger
}

// NewSnapshotter creates a Snapshotter. A nil encryptor stores snapshots in
// plaintext.
func NewSnapshotter(store PropertyStore, vault Vault, encryptor Encryptor, gatewayID string, clock Clock, logger Logger) *Snapshotter {
	return &Snapshotter{
		store:     store,
		vault:     vault,
		encryptor: encryptor,
		gatewayID: gatewayID,
		clock:     clock,
		logger:    logger,
	}
}

// Encrypted reports whether snapshots are encrypted.
func (s *Snapshotter) Encrypted() bool {
	return s.encryptor != nil
}

// Snapshot uploads a consistent copy of the property store and returns the
// version it was stored under. Versions are unix seconds, bumped when
// needed so they always increase.
func (s *Snapshotter) Snapshot() (int64, error) {
	tmpDir, err := os.MkdirTemp("", "eni-snapshot-*")
	if err != nil {
		return 0, fmt.Errorf("creating snapshot directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "props.db")
	if err := s.store.BackupTo(dbPath); err != nil {
		return 0, fmt.Errorf("backing up property store: %w", err)
	}

	uploadPath := dbPath
	if s.encryptor != nil {
		uploadPath = dbPath + ".age"
		if err := s.encryptFile(dbPath, uploadPath); err != nil {
			return 0, err
		}
	}

	current, err := s.vault.GetMetadataVersion(s.gatewayID, SnapshotName)
	if err != nil {
		return 0, fmt.Errorf("checking snapshot version: %w", err)
	}
	version := s.clock.Now().Unix()
	if version <= current {
		version = current + 1
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return 0, fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}

	if err := s.vault.PutMetadata(s.gatewayID, SnapshotName, f, info.Size(), version); err != nil {
		return 0, fmt.Errorf("uploading snapshot to vault: %w", err)
	}

	s.logger.Info("property store snapshot uploaded", "version", version, "bytes", info.Size(), "encrypted", s.encryptor != nil)
	return version, nil
}

func (s *Snapshotter) encryptFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	if err := s.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting snapshot: %w", err)
	}
	return out.Close()
}

// Restore downloads the newest snapshot into dest, replacing it. dc is
// required when snapshots are encrypted. Returns the restored version.
func (s *Snapshotter) Restore(dest string, dc DecryptionContext) (int64, error) {
	version, err := s.vault.GetMetadataVersion(s.gatewayID, SnapshotName)
	if err != nil {
		return 0, fmt.Errorf("checking snapshot version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no snapshot stored for gateway %s", s.gatewayID)
	}
	if s.encryptor != nil && dc == nil {
		return 0, fmt.Errorf("snapshot is encrypted: decryption context required")
	}

	var buf bytes.Buffer
	if err := s.vault.GetMetadata(s.gatewayID, SnapshotName, &buf); err != nil {
		return 0, fmt.Errorf("downloading snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("creating destination directory: %w", err)
	}
	tmp := dest + ".restore"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating restore file: %w", err)
	}

	var src io.Reader = &buf
	if s.encryptor != nil {
		err = dc.Decrypt(src, out)
	} else {
		_, err = io.Copy(out, src)
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("writing restored snapshot: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("replacing property store: %w", err)
	}

	s.logger.Info("property store restored", "version", version, "path", dest)
	return version, nil
}
