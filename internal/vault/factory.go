package vault

import (
	"context"
	"errors"
	"fmt"

	"eni-go/internal/config"
	"eni-go/internal/eni"
)

// ErrSnapshotNotFound is returned by GetMetadata when nothing is stored under
// the requested gateway and name.
var ErrSnapshotNotFound = errors.New("snapshot not found")

func notFound(gatewayID, name string) error {
	return fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, gatewayID, name)
}

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (eni.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
