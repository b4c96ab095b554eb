package testutil

import (
	"eni-go/internal/eni"
	"eni-go/internal/encryption"
)

// NewTestEncryptor creates a deterministic encryptor for snapshot tests.
func NewTestEncryptor() eni.Encryptor {
	return encryption.NewTestEncryptor()
}
