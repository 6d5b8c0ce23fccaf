package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression names a supported archive compression
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionXz   Compression = "xz"
)

// Magic bytes for compressed stream detection
var (
	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
)

// ParseCompression validates a compression name; empty means gzip
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionGzip:
		return CompressionGzip, nil
	case CompressionZstd, CompressionXz, CompressionNone:
		return Compression(s), nil
	default:
		return "", fmt.Errorf("unsupported compression %q (gzip, zstd, xz, none)", s)
	}
}

// Extension returns the file suffix for a tar compressed this way
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".tar.gz"
	case CompressionZstd:
		return ".tar.zst"
	case CompressionXz:
		return ".tar.xz"
	default:
		return ".tar"
	}
}

// NewCompressWriter wraps w so that everything written is compressed.
// The settings are fixed so equal input always yields equal output.
func NewCompressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		// No name or mtime in the header
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case CompressionZstd:
		return zstd.NewWriter(w,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	case CompressionXz:
		return xz.NewWriter(w)
	case CompressionNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}

// NewDecompressReader detects the compression of r from its magic bytes and
// returns a reader over the decompressed stream.
func NewDecompressReader(r io.Reader) (io.ReadCloser, Compression, error) {
	header := make([]byte, len(xzMagic))
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, "", err
	}
	header = header[:n]
	full := io.MultiReader(bytes.NewReader(header), r)

	switch {
	case bytes.HasPrefix(header, gzipMagic):
		gr, err := gzip.NewReader(full)
		if err != nil {
			return nil, "", err
		}
		return gr, CompressionGzip, nil
	case bytes.HasPrefix(header, zstdMagic):
		zr, err := zstd.NewReader(full)
		if err != nil {
			return nil, "", err
		}
		return zr.IOReadCloser(), CompressionZstd, nil
	case bytes.HasPrefix(header, xzMagic):
		xr, err := xz.NewReader(full)
		if err != nil {
			return nil, "", err
		}
		return io.NopCloser(xr), CompressionXz, nil
	default:
		return io.NopCloser(full), CompressionNone, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
