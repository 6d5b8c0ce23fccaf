package escrow

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/utils"
)

// ReadManifest extracts the embedded manifest from an escrow package. The
// compression is detected from the archive's magic bytes.
func ReadManifest(path string) (*models.EscrowManifest, utils.Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	r, compression, err := utils.NewDecompressReader(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open compressed stream: %w", err)
	}
	defer r.Close()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, compression, fmt.Errorf("%s not found in %s", manifestName, path)
		}
		if err != nil {
			return nil, compression, fmt.Errorf("failed to read archive: %w", err)
		}
		if hdr.Name != manifestName {
			continue
		}

		var m models.EscrowManifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, compression, fmt.Errorf("failed to decode manifest: %w", err)
		}
		if m.Schema != ManifestSchema {
			return nil, compression, fmt.Errorf("unsupported manifest schema %d", m.Schema)
		}
		return &m, compression, nil
	}
}

// Checksums recomputes the digests of an archive on disk. SHA256 is the
// package fingerprint.
func Checksums(path string) (*utils.Checksum, error) {
	return utils.CalculateChecksums(path)
}
