package eni

import "io"

// Encryptor protects property-store snapshots. Encryption needs only the
// public key; decryption requires unlocking the private key with a
// passphrase.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext and
	// the private key encrypted with passphrase. Called by `eni keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts r into w using the public key.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for one restore.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
