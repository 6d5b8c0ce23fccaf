package escrow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/scanner"
	"github.com/ralt/publishkit/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PackageBuilder assembles escrow packages
type PackageBuilder interface {
	// Build validates the dependencies and writes a package containing them
	// and the project source tree
	Build(ctx context.Context, sourceRoot string, deps []models.DependencyArtifact) (*models.EscrowPackage, error)
}

// Options configures a Builder
type Options struct {
	// OutputPath is where the finished archive is written
	OutputPath  string
	Compression utils.Compression

	// AllowUnlicensed lists coordinate keys (group:name:version) that may
	// carry no license identifier
	AllowUnlicensed []string

	// Exclude lists file or directory names skipped in the source tree
	Exclude []string

	// SkipFiles lists files the caller writes alongside the build (such as a
	// history database) that must not enter the source bundle even when they
	// live inside the source tree
	SkipFiles []string

	ProjectName    string
	ProjectVersion string

	// Concurrency bounds parallel file reads; zero means 4
	Concurrency int
}

// Builder implements PackageBuilder on the local filesystem
type Builder struct {
	opts      Options
	allowList map[string]bool
	scanner   scanner.Scanner
}

// NewBuilder creates a builder
func NewBuilder(opts Options) *Builder {
	if opts.Compression == "" {
		opts.Compression = utils.CompressionGzip
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	allow := make(map[string]bool, len(opts.AllowUnlicensed))
	for _, key := range opts.AllowUnlicensed {
		allow[strings.TrimSpace(key)] = true
	}

	return &Builder{
		opts:      opts,
		allowList: allow,
		scanner:   scanner.NewFileSystemScanner(opts.Exclude),
	}
}

// stagedFile is a snapshot copy waiting to be archived
type stagedFile struct {
	archivePath string
	stagedPath  string
	mode        os.FileMode
}

// Build runs the validation gates, snapshots every input into a private
// staging directory and only then writes the archive. On any failure no
// archive is left at OutputPath and the staging directory is removed.
func (b *Builder) Build(ctx context.Context, sourceRoot string, deps []models.DependencyArtifact) (*models.EscrowPackage, error) {
	pkg, err := b.build(ctx, sourceRoot, deps)
	if err != nil {
		return nil, categorize(err)
	}
	return pkg, nil
}

// categorize gives errors that escaped without a category (cancellation from
// the errgroups or the walk) the EscrowIO type
func categorize(err error) error {
	var pe *models.PublishError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelled(err)
	}
	return &models.PublishError{Type: models.ErrEscrowIO, Err: err}
}

func (b *Builder) build(ctx context.Context, sourceRoot string, deps []models.DependencyArtifact) (*models.EscrowPackage, error) {
	if b.opts.OutputPath == "" {
		return nil, models.NewError(models.ErrInvalidConfig, "output", "output path is required")
	}

	info, err := os.Stat(sourceRoot)
	if err != nil || !info.IsDir() {
		return nil, models.NewError(models.ErrInvalidConfig, sourceRoot, "source root is not a readable directory")
	}

	// Step 1: deduplicate and order
	normalized := NormalizeDependencies(deps)
	logrus.Infof("Building escrow package with %d dependencies (%d before deduplication)", len(normalized), len(deps))

	// Step 2: every artifact must be present
	if err := b.verifyArtifacts(ctx, normalized); err != nil {
		return nil, err
	}

	// Step 3: every artifact must be licensed
	if err := b.verifyLicenses(normalized); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	// Step 4: snapshot inputs and assemble
	stagingDir, err := os.MkdirTemp("", "publishkit-escrow-")
	if err != nil {
		return nil, models.NewError(models.ErrEscrowIO, "staging", "failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			logrus.Warnf("Failed to remove staging directory %s: %v", stagingDir, err)
		}
	}()

	entries, depFiles, err := b.snapshotDependencies(ctx, stagingDir, normalized)
	if err != nil {
		return nil, err
	}

	sourceInfo, sourceFiles, err := b.snapshotSource(ctx, stagingDir, sourceRoot)
	if err != nil {
		return nil, err
	}

	manifest := models.EscrowManifest{
		Schema: ManifestSchema,
		Project: models.ProjectInfo{
			Name:    b.opts.ProjectName,
			Version: b.opts.ProjectVersion,
		},
		Source:       sourceInfo,
		Dependencies: entries,
	}

	manifestData, err := renderManifest(manifest)
	if err != nil {
		return nil, models.NewError(models.ErrEscrowIO, manifestName, "%w", err)
	}

	contents := archiveContents{
		manifest:    manifestData,
		attribution: renderAttribution(manifest),
		files:       append(sourceFiles, depFiles...),
	}

	// Step 5: write and fingerprint
	fingerprint, size, err := writeArchive(ctx, b.opts.OutputPath, b.opts.Compression, contents)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"path":        b.opts.OutputPath,
		"fingerprint": fingerprint,
		"size":        size,
	}).Info("Escrow package written")

	return &models.EscrowPackage{
		Path:        b.opts.OutputPath,
		Fingerprint: fingerprint,
		Size:        size,
		Compression: string(b.opts.Compression),
		Manifest:    manifest,
	}, nil
}

// verifyArtifacts checks every file in parallel. The reported failure is the
// first one in sorted order regardless of which check finished first.
func (b *Builder) verifyArtifacts(ctx context.Context, deps []models.DependencyArtifact) error {
	failures := make([]error, len(deps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, dep := range deps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if dep.Path == "" {
				failures[i] = fmt.Errorf("no file recorded for artifact")
				return nil
			}
			if _, err := utils.CheckReadable(dep.Path); err != nil {
				failures[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, failure := range failures {
		if failure != nil {
			logrus.WithField("artifact", deps[i].Key()).Errorf("Artifact file missing: %v", failure)
			return &models.PublishError{
				Type:    models.ErrMissingArtifact,
				Subject: deps[i].Key(),
				Err:     fmt.Errorf("artifact file %q unavailable: %w", deps[i].Path, failure),
			}
		}
	}
	return nil
}

func (b *Builder) verifyLicenses(deps []models.DependencyArtifact) error {
	for _, dep := range deps {
		if len(dep.Licenses) > 0 {
			continue
		}
		if b.allowList[dep.Key()] {
			logrus.WithField("artifact", dep.Key()).Warn("Including unlicensed artifact from allow-list")
			continue
		}
		return models.NewError(models.ErrMissingLicense, dep.Key(),
			"no license identifier and not allow-listed")
	}
	return nil
}

// snapshotDependencies copies every artifact into the staging directory,
// hashing as it goes. Results are written by index so the manifest keeps
// the sorted order.
func (b *Builder) snapshotDependencies(ctx context.Context, stagingDir string, deps []models.DependencyArtifact) ([]models.ManifestEntry, []stagedFile, error) {
	entries := make([]models.ManifestEntry, len(deps))
	files := make([]stagedFile, len(deps))

	seen := make(map[string]string, len(deps))
	for i, dep := range deps {
		ap := archivePathFor(dep)
		if other, ok := seen[ap]; ok {
			return nil, nil, models.NewError(models.ErrInvalidConfig, dep.Key(),
				"archive path %s collides with %s", ap, other)
		}
		seen[ap] = dep.Key()
		files[i] = stagedFile{
			archivePath: ap,
			stagedPath:  filepath.Join(stagingDir, "deps", fmt.Sprintf("%06d", i)),
			mode:        0644,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, dep := range deps {
		g.Go(func() error {
			artifactType, err := b.scanner.DetectType(dep.Path)
			if err != nil {
				return models.NewError(models.ErrMissingArtifact, dep.Key(), "failed to read artifact: %w", err)
			}

			sum, size, err := utils.CopyFile(gctx, dep.Path, files[i].stagedPath)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return models.NewError(models.ErrEscrowIO, dep.Key(), "failed to snapshot artifact: %w", err)
			}

			licenses := dep.Licenses
			if licenses == nil {
				licenses = []string{}
			}
			entries[i] = models.ManifestEntry{
				Group:       dep.Group,
				Name:        dep.Name,
				Version:     dep.Version,
				Licenses:    licenses,
				Type:        artifactType.String(),
				ArchivePath: files[i].archivePath,
				Size:        size,
				SHA256:      sum,
			}
			logrus.Debugf("Snapshot %s (%s, %d bytes)", dep.Key(), artifactType, size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return entries, files, nil
}

// snapshotSource copies the project tree and computes a digest over the
// ordered (path, content hash) list.
func (b *Builder) snapshotSource(ctx context.Context, stagingDir, sourceRoot string) (models.SourceInfo, []stagedFile, error) {
	// Never package the output into itself
	scan, err := newOutputFilter(b.scanner, b.opts.OutputPath, b.opts.SkipFiles)
	if err != nil {
		return models.SourceInfo{}, nil, models.NewError(models.ErrInvalidConfig, b.opts.OutputPath, "%w", err)
	}

	sources, err := scan.Scan(ctx, sourceRoot)
	if err != nil {
		if ctx.Err() != nil {
			return models.SourceInfo{}, nil, cancelled(ctx.Err())
		}
		return models.SourceInfo{}, nil, models.NewError(models.ErrEscrowIO, sourceRoot, "%w", err)
	}

	files := make([]stagedFile, len(sources))
	sums := make([]string, len(sources))
	sizes := make([]int64, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, src := range sources {
		files[i] = stagedFile{
			archivePath: sourcePrefix + src.RelPath,
			stagedPath:  filepath.Join(stagingDir, "src", fmt.Sprintf("%06d", i)),
			mode:        normalizeMode(src.Mode),
		}
		g.Go(func() error {
			sum, n, err := utils.CopyFile(gctx, src.AbsPath, files[i].stagedPath)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return models.NewError(models.ErrEscrowIO, src.RelPath, "failed to snapshot source file: %w", err)
			}
			sums[i] = sum
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.SourceInfo{}, nil, err
	}

	var listing bytes.Buffer
	var total int64
	for i, src := range sources {
		fmt.Fprintf(&listing, "%s  %s\n", sums[i], src.RelPath)
		total += sizes[i]
	}

	return models.SourceInfo{
		Root:   sourcePrefix,
		Files:  len(sources),
		Size:   total,
		SHA256: utils.CalculateChecksum(listing.Bytes()),
	}, files, nil
}

// normalizeMode keeps only the executable bit of a source file
func normalizeMode(m os.FileMode) os.FileMode {
	if m&0111 != 0 {
		return 0755
	}
	return 0644
}

// sidecarSuffixes are the files written next to a package after it is built
var sidecarSuffixes = []string{".sha256", ".asc", ".pub.asc"}

// outputFilter drops the package being written, its sidecars, its in-flight
// temp files and any caller-owned files from a source scan. Matching is by
// exact path; everything else in the tree is kept.
type outputFilter struct {
	scanner.Scanner
	skip       map[string]bool
	tempDir    string
	tempPrefix string
}

func newOutputFilter(s scanner.Scanner, output string, extra []string) (*outputFilter, error) {
	abs, err := filepath.Abs(output)
	if err != nil {
		return nil, err
	}

	skip := map[string]bool{abs: true}
	for _, suffix := range sidecarSuffixes {
		skip[abs+suffix] = true
	}
	for _, p := range extra {
		if p == "" {
			continue
		}
		extraAbs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		skip[extraAbs] = true
	}

	return &outputFilter{
		Scanner:    s,
		skip:       skip,
		tempDir:    filepath.Dir(abs),
		tempPrefix: "." + filepath.Base(abs) + ".",
	}, nil
}

func (f *outputFilter) Scan(ctx context.Context, root string) ([]scanner.SourceFile, error) {
	files, err := f.Scanner.Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	kept := files[:0]
	for _, sf := range files {
		if abs, err := filepath.Abs(sf.AbsPath); err == nil && f.owned(abs) {
			logrus.Debugf("Leaving %s out of the source bundle", sf.RelPath)
			continue
		}
		kept = append(kept, sf)
	}
	return kept, nil
}

// owned reports whether path is one of the build's own files. Temp files
// follow utils.CreateAtomic's ".<base>.*.tmp" pattern.
func (f *outputFilter) owned(path string) bool {
	if f.skip[path] {
		return true
	}
	name := filepath.Base(path)
	return filepath.Dir(path) == f.tempDir &&
		strings.HasPrefix(name, f.tempPrefix) && strings.HasSuffix(name, ".tmp")
}
