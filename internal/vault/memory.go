package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"eni-go/internal/eni"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It keeps every snapshot in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name     string
	metadata map[string][]byte // "gatewayID/name" -> snapshot
	versions map[string]int64  // "gatewayID/name" -> version
	mu       sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		metadata: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func metadataKey(gatewayID, name string) string {
	return gatewayID + "/" + name
}

// PutMetadata stores a named item for a specific gateway.
func (m *MemoryVault) PutMetadata(gatewayID string, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := metadataKey(gatewayID, name)
	m.metadata[key] = data
	m.versions[key] = version
	return nil
}

// GetMetadataVersion returns the version of a named item.
// Returns 0 if nothing has been stored for this gateway/name.
func (m *MemoryVault) GetMetadataVersion(gatewayID string, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[metadataKey(gatewayID, name)], nil
}

// GetMetadata retrieves a named item for a specific gateway.
func (m *MemoryVault) GetMetadata(gatewayID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.metadata[metadataKey(gatewayID, name)]
	if !ok {
		return notFound(gatewayID, name)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ eni.Vault = (*MemoryVault)(nil)
