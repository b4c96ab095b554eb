package eni

import "io"

// Vault stores metadata snapshots of the property store outside the
// working copy. Items are addressed by gateway ID and name.
type Vault interface {
	// PutMetadata stores a named item for a gateway. size is the number of
	// bytes that will be read from r. version is stored alongside the item
	// so the newest snapshot can be identified.
	PutMetadata(gatewayID string, name string, r io.Reader, size int64, version int64) error

	// GetMetadata writes the named item of a gateway to w.
	GetMetadata(gatewayID string, name string, w io.Writer) error

	// GetMetadataVersion returns the stored version of an item, or 0 if
	// nothing has been stored.
	GetMetadataVersion(gatewayID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and configured.
	ValidateSetup() error
}
