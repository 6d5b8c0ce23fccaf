package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Magic bytes for artifact detection
var (
	// Jar and zip files are local file headers
	zipMagic = []byte{'P', 'K', 0x03, 0x04}

	// Debian packages start with "!<arch>\ndebian"
	debMagic = []byte("!<arch>\ndebian")

	// RPM packages start with 0xED 0xAB 0xEE 0xDB
	rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
)

// DetectArtifactType determines the artifact type based on magic bytes and file extension
func DetectArtifactType(path string) (ArtifactType, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	// Read first 512 bytes for magic byte detection
	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && n == 0 {
		// Empty files are still valid artifacts, just untyped
		return TypeUnknown, nil
	}
	header = header[:n]

	ext := strings.ToLower(filepath.Ext(path))
	basename := strings.ToLower(filepath.Base(path))

	switch {
	case bytes.HasPrefix(header, zipMagic):
		if ext == ".jar" || ext == ".war" || ext == ".ear" {
			return TypeJar, nil
		}
		return TypeZip, nil
	case bytes.HasPrefix(header, rpmMagic):
		return TypeRpm, nil
	case bytes.HasPrefix(header, debMagic):
		return TypeDeb, nil
	case bytes.HasPrefix(header, gzipMagic):
		return TypeTarGz, nil
	case bytes.HasPrefix(header, zstdMagic):
		return TypeTarZst, nil
	case bytes.HasPrefix(header, xzMagic):
		return TypeTarXz, nil
	}

	// Fall back to the extension when the content gives nothing away
	switch {
	case ext == ".jar":
		return TypeJar, nil
	case ext == ".rpm":
		return TypeRpm, nil
	case ext == ".deb":
		return TypeDeb, nil
	case ext == ".pom" || strings.HasSuffix(basename, "pom.xml"):
		return TypePom, nil
	}

	return TypeUnknown, nil
}
