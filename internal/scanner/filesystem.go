package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileSystemScanner implements Scanner for a local source tree
type FileSystemScanner struct {
	exclude map[string]bool
}

// NewFileSystemScanner creates a scanner that skips any file or directory
// whose base name is in exclude
func NewFileSystemScanner(exclude []string) *FileSystemScanner {
	ex := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		if name != "" {
			ex[name] = true
		}
	}
	return &FileSystemScanner{exclude: ex}
}

// Scan recursively lists the regular files under root.
// filepath.WalkDir visits entries in lexical order, so the result is stable.
func (s *FileSystemScanner) Scan(ctx context.Context, root string) ([]SourceFile, error) {
	var files []SourceFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path != root && s.exclude[d.Name()] {
			logrus.Debugf("Excluding %s", path)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		// Symlinks, sockets and devices are not part of a source bundle
		if !d.Type().IsRegular() {
			logrus.Debugf("Skipping non-regular file %s", path)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, SourceFile{
			RelPath: filepath.ToSlash(rel),
			AbsPath: path,
			Size:    info.Size(),
			Mode:    info.Mode(),
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan source tree: %w", err)
	}

	logrus.Debugf("Found %d source files in %s", len(files), root)
	return files, nil
}

// DetectType determines the artifact type of a file
func (s *FileSystemScanner) DetectType(path string) (ArtifactType, error) {
	return DetectArtifactType(path)
}
