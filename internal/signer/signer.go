package signer

import "io"

// Signer produces detached signatures for escrow packages
type Signer interface {
	// SignDetached creates an armored detached signature over everything read from r
	SignDetached(r io.Reader) ([]byte, error)

	// GetPublicKey returns the public key
	GetPublicKey() ([]byte, error)
}
