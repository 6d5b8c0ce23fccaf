package utils

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
)

// Checksum contains the digests recorded for a file
type Checksum struct {
	SHA256 string
	SHA512 string
	Size   int64
}

// CalculateChecksums calculates all checksums for a file in a single pass
func CalculateChecksums(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ChecksumReader(f)
}

// ChecksumReader streams r through every hash and counts its bytes
func ChecksumReader(r io.Reader) (*Checksum, error) {
	sha256Hash := sha256.New()
	sha512Hash := sha512.New()

	// Use MultiWriter to calculate all hashes at once
	multiWriter := io.MultiWriter(sha256Hash, sha512Hash)

	n, err := io.Copy(multiWriter, r)
	if err != nil {
		return nil, err
	}

	return &Checksum{
		SHA256: hex.EncodeToString(sha256Hash.Sum(nil)),
		SHA512: hex.EncodeToString(sha512Hash.Sum(nil)),
		Size:   n,
	}, nil
}

// CalculateChecksum returns the hex SHA-256 of data
func CalculateChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
