package escrow

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/utils"
)

// Every entry carries the same timestamp so archives only differ when their
// contents do
var archiveEpoch = time.Unix(0, 0).UTC()

type archiveContents struct {
	manifest    []byte
	attribution []byte
	files       []stagedFile
}

// writeArchive streams the tar into a temporary file next to outputPath and
// renames it into place once everything has been written. It returns the
// SHA-256 fingerprint and size of the final bytes.
func writeArchive(ctx context.Context, outputPath string, compression utils.Compression, c archiveContents) (string, int64, error) {
	out, err := utils.CreateAtomic(outputPath)
	if err != nil {
		return "", 0, models.NewError(models.ErrEscrowIO, outputPath, "failed to create archive: %w", err)
	}
	// No-op once committed
	defer out.Abort()

	hasher := sha256.New()
	counter := &countingWriter{}
	cw, err := utils.NewCompressWriter(io.MultiWriter(out, hasher, counter), compression)
	if err != nil {
		return "", 0, models.NewError(models.ErrEscrowIO, outputPath, "failed to create compressor: %w", err)
	}
	tw := tar.NewWriter(cw)

	if err := writeEntry(tw, manifestName, 0644, c.manifest); err != nil {
		return "", 0, models.NewError(models.ErrEscrowIO, outputPath, "failed to write manifest: %w", err)
	}
	if err := writeEntry(tw, attributionName, 0644, c.attribution); err != nil {
		return "", 0, models.NewError(models.ErrEscrowIO, outputPath, "failed to write attribution: %w", err)
	}

	for _, f := range c.files {
		if err := ctx.Err(); err != nil {
			return "", 0, cancelled(err)
		}
		if err := writeFileEntry(tw, f); err != nil {
			return "", 0, models.NewError(models.ErrEscrowIO, f.archivePath, "failed to archive file: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return "", 0, models.NewError(models.ErrEscrowIO, outputPath, "failed to finish tar stream: %w", err)
	}
	if err := cw.Close(); err != nil {
		return "", 0, models.NewError(models.ErrEscrowIO, outputPath, "failed to finish compression: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", 0, cancelled(err)
	}
	if err := out.Commit(); err != nil {
		return "", 0, models.NewError(models.ErrEscrowIO, outputPath, "failed to finalize archive: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), counter.n, nil
}

func entryHeader(name string, mode os.FileMode, size int64) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(mode.Perm()),
		Size:     size,
		ModTime:  archiveEpoch,
	}
}

func writeEntry(tw *tar.Writer, name string, mode os.FileMode, data []byte) error {
	if err := tw.WriteHeader(entryHeader(name, mode, int64(len(data)))); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func writeFileEntry(tw *tar.Writer, f stagedFile) error {
	src, err := os.Open(f.stagedPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	if err := tw.WriteHeader(entryHeader(f.archivePath, f.mode, info.Size())); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}

// cancelledSubject marks errors caused by the caller aborting the build
const cancelledSubject = "cancelled"

func cancelled(err error) error {
	return &models.PublishError{Type: models.ErrEscrowIO, Subject: cancelledSubject, Err: err}
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
