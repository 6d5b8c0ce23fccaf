package signer

import (
	"bytes"
	"crypto"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// GPGSigner implements Signer interface using GPG
type GPGSigner struct {
	entity *openpgp.Entity
}

// NewGPGSigner creates a new GPG signer from a private key file
func NewGPGSigner(keyPath, passphrase string) (*GPGSigner, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("key path is empty")
	}

	keyFile, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	defer keyFile.Close()

	entityList, err := readKeyRing(keyFile)
	if err != nil {
		return nil, err
	}

	entity := entityList[0]
	if entity.PrivateKey == nil {
		return nil, fmt.Errorf("key file does not contain a private key")
	}

	// Decrypt private key if passphrase provided
	if passphrase != "" {
		if entity.PrivateKey.Encrypted {
			if err := entity.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return nil, fmt.Errorf("failed to decrypt private key: %w", err)
			}
		}

		// Decrypt subkeys as well
		for _, subkey := range entity.Subkeys {
			if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
				if err := subkey.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
					return nil, fmt.Errorf("failed to decrypt subkey: %w", err)
				}
			}
		}
	} else if entity.PrivateKey.Encrypted {
		return nil, fmt.Errorf("private key is encrypted but no passphrase provided")
	}

	return &GPGSigner{entity: entity}, nil
}

// NewGPGSignerFromEntity wraps an already decrypted entity
func NewGPGSignerFromEntity(entity *openpgp.Entity) *GPGSigner {
	return &GPGSigner{entity: entity}
}

// SignDetached creates an armored detached signature (<archive>.asc)
func (s *GPGSigner) SignDetached(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer

	err := openpgp.ArmoredDetachSign(&buf, s.entity, r, &packet.Config{
		DefaultHash: crypto.SHA512,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create detached signature: %w", err)
	}

	return buf.Bytes(), nil
}

// GetPublicKey returns the public key in armored format
func (s *GPGSigner) GetPublicKey() ([]byte, error) {
	var buf bytes.Buffer

	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}

	if err := s.entity.Serialize(w); err != nil {
		w.Close()
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// VerifyDetached checks an armored detached signature over signed against
// the keys in publicKeyPath and returns the signer's primary identity.
func VerifyDetached(publicKeyPath string, signed, signature io.Reader) (string, error) {
	keyFile, err := os.Open(publicKeyPath)
	if err != nil {
		return "", fmt.Errorf("failed to open public key: %w", err)
	}
	defer keyFile.Close()

	keyring, err := readKeyRing(keyFile)
	if err != nil {
		return "", err
	}

	entity, err := openpgp.CheckArmoredDetachedSignature(keyring, signed, signature, nil)
	if err != nil {
		return "", fmt.Errorf("signature check failed: %w", err)
	}

	if id := entity.PrimaryIdentity(); id != nil {
		return id.Name, nil
	}
	return fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint), nil
}

// readKeyRing accepts armored or binary key material
func readKeyRing(f *os.File) (openpgp.EntityList, error) {
	entityList, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		// Try as binary key
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
			return nil, seekErr
		}
		entityList, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, fmt.Errorf("no keys found in key file")
	}
	return entityList, nil
}
