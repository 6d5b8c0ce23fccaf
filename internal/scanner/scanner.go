package scanner

import (
	"context"
	"os"
)

// ArtifactType represents the kind of file a dependency artifact is
type ArtifactType int

const (
	TypeUnknown ArtifactType = iota
	TypeJar
	TypeZip
	TypeRpm
	TypeDeb
	TypeTarGz
	TypeTarZst
	TypeTarXz
	TypePom
)

// String returns the string representation of ArtifactType
func (at ArtifactType) String() string {
	switch at {
	case TypeJar:
		return "jar"
	case TypeZip:
		return "zip"
	case TypeRpm:
		return "rpm"
	case TypeDeb:
		return "deb"
	case TypeTarGz:
		return "tar.gz"
	case TypeTarZst:
		return "tar.zst"
	case TypeTarXz:
		return "tar.xz"
	case TypePom:
		return "pom"
	default:
		return "file"
	}
}

// SourceFile is a regular file found under a project source root
type SourceFile struct {
	// RelPath uses forward slashes and is relative to the scanned root
	RelPath string
	AbsPath string
	Size    int64
	Mode    os.FileMode
}

// Scanner lists the files that make up a project's source bundle
type Scanner interface {
	// Scan walks root and returns its regular files in lexical order
	Scan(ctx context.Context, root string) ([]SourceFile, error)

	// DetectType determines the artifact type of a file
	DetectType(path string) (ArtifactType, error)
}
