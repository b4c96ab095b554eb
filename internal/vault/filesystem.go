package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"eni-go/internal/eni"
)

const (
	snapshotExt = ".snapshot"
	versionExt  = ".version"
)

// FileSystemVault keeps snapshots in a local directory, usually a mounted
// backup volume:
//
//	<root>/snapshots/<gatewayID>/<name>.snapshot
//	<root>/snapshots/<gatewayID>/<name>.version
//
// The version file is written after the snapshot, so a crash between the two
// leaves the previous version number next to a newer snapshot, never the
// reverse.
type FileSystemVault struct {
	name string
	root string
	dir  string
}

var _ eni.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates the snapshot directory below root if needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	dir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root, dir: dir}, nil
}

func (v *FileSystemVault) file(gatewayID, name, ext string) string {
	return filepath.Join(v.dir, gatewayID, name+ext)
}

// PutMetadata stores the snapshot read from r, then its version.
func (v *FileSystemVault) PutMetadata(gatewayID string, name string, r io.Reader, size int64, version int64) error {
	if err := os.MkdirAll(filepath.Join(v.dir, gatewayID), 0755); err != nil {
		return fmt.Errorf("creating gateway directory: %w", err)
	}

	err := replaceFile(v.file(gatewayID, name, snapshotExt), func(f *os.File) error {
		n, err := io.Copy(f, r)
		if err != nil {
			return err
		}
		if n != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing snapshot %s/%s: %w", gatewayID, name, err)
	}

	err = replaceFile(v.file(gatewayID, name, versionExt), func(f *os.File) error {
		_, err := f.WriteString(strconv.FormatInt(version, 10) + "\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("storing version of %s/%s: %w", gatewayID, name, err)
	}
	return nil
}

// GetMetadataVersion returns 0 when no version has been written.
func (v *FileSystemVault) GetMetadataVersion(gatewayID string, name string) (int64, error) {
	data, err := os.ReadFile(v.file(gatewayID, name, versionExt))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version of %s/%s: %w", gatewayID, name, err)
	}
	return version, nil
}

// GetMetadata copies the stored snapshot to w.
func (v *FileSystemVault) GetMetadata(gatewayID string, name string, w io.Writer) error {
	f, err := os.Open(v.file(gatewayID, name, snapshotExt))
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(gatewayID, name)
	}
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	return nil
}

// ValidateSetup checks that the snapshot directory exists and is writable.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.dir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.dir)
	}

	probe, err := os.CreateTemp(v.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault directory not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// replaceFile writes dest through a temp file in the same directory and
// renames it into place once fill succeeds.
func replaceFile(dest string, fill func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
