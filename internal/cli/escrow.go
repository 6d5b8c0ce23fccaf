package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/ralt/publishkit/internal/config"
	"github.com/ralt/publishkit/internal/deps"
	"github.com/ralt/publishkit/internal/escrow"
	"github.com/ralt/publishkit/internal/history"
	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/signer"
	"github.com/ralt/publishkit/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// escrowOptions collects the escrow command flags
type escrowOptions struct {
	SourceDir          string
	DepsFile           string
	OutputPath         string
	ProjectName        string
	ProjectVersion     string
	Compression        string
	AllowUnlicensed    []string
	Exclude            []string
	Concurrency        int
	NoLicenseDiscovery bool
	GPGKeyPath         string
	HistoryDB          string
	NoHistory          bool
}

// NewEscrowCmd creates the escrow command
func NewEscrowCmd() *cobra.Command {
	var opts escrowOptions

	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Build an escrow package",
		Long: `Bundles the project source tree, every resolved dependency artifact and
a license manifest into one reproducible archive.

The build fails if any dependency file is missing or any dependency has no
license identifier (unless allow-listed). Identical inputs always produce a
byte-identical archive with the same fingerprint.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if err := applyEscrowFlags(cmd, cfg, &opts); err != nil {
				return err
			}

			return runEscrow(cmd, cfg, &opts)
		},
	}

	// Input/Output flags
	cmd.Flags().StringVarP(&opts.SourceDir, "source", "s", ".", "Project source root")
	cmd.Flags().StringVarP(&opts.DepsFile, "deps", "d", "", "Dependency list (YAML)")
	cmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Archive path (defaults to <escrow.output_dir>/<project>-<version>-escrow.tar.*)")

	// Project metadata flags
	cmd.Flags().StringVar(&opts.ProjectName, "project", "", "Project name recorded in the manifest (defaults to the source directory name)")
	cmd.Flags().StringVar(&opts.ProjectVersion, "project-version", "", "Project version recorded in the manifest")

	// Packaging flags
	cmd.Flags().StringVar(&opts.Compression, "compression", "", "Archive compression: gzip, zstd, xz or none")
	cmd.Flags().StringSliceVar(&opts.AllowUnlicensed, "allow-unlicensed", nil, "Coordinates (group:name:version) allowed without a license")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "File or directory names to leave out of the source bundle")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Parallel file reads")
	cmd.Flags().BoolVar(&opts.NoLicenseDiscovery, "no-license-discovery", false, "Do not read licenses from RPM headers or JAR manifests")

	// Signing and history flags
	cmd.Flags().StringVarP(&opts.GPGKeyPath, "gpg-key", "k", "", "Path to GPG private key used to sign the package")
	cmd.Flags().StringVar(&opts.HistoryDB, "history-db", "", "Path to the package history database")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not consult or update the package history")

	cmd.MarkFlagRequired("deps")

	return cmd
}

// applyEscrowFlags merges flags over the configuration file
func applyEscrowFlags(cmd *cobra.Command, cfg *config.Config, opts *escrowOptions) error {
	if opts.Compression != "" {
		cfg.Escrow.Compression = opts.Compression
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Escrow.Concurrency = opts.Concurrency
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Escrow.Exclude = opts.Exclude
	}
	cfg.Escrow.AllowUnlicensed = append(cfg.Escrow.AllowUnlicensed, opts.AllowUnlicensed...)
	if opts.GPGKeyPath != "" {
		cfg.Signing.GPGKey = opts.GPGKeyPath
	}
	if opts.HistoryDB != "" {
		cfg.History.DBPath = opts.HistoryDB
	}
	if opts.NoHistory {
		cfg.History.DBPath = ""
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.ProjectVersion != "" {
		if _, err := models.ParseVersion(opts.ProjectVersion); err != nil {
			return err
		}
	}
	if opts.ProjectName == "" {
		abs, err := filepath.Abs(opts.SourceDir)
		if err != nil {
			return err
		}
		opts.ProjectName = filepath.Base(abs)
	}
	return nil
}

func runEscrow(cmd *cobra.Command, cfg *config.Config, opts *escrowOptions) error {
	compression, err := utils.ParseCompression(cfg.Escrow.Compression)
	if err != nil {
		return models.NewError(models.ErrInvalidConfig, "compression", "%w", err)
	}

	output := opts.OutputPath
	if output == "" {
		name := opts.ProjectName
		if opts.ProjectVersion != "" {
			name += "-" + opts.ProjectVersion
		}
		output = filepath.Join(cfg.Escrow.OutputDir, name+"-escrow"+compression.Extension())
	}

	// Step 1: load dependencies
	logrus.Infof("Loading dependency list: %s", opts.DepsFile)
	artifacts, err := deps.Load(opts.DepsFile)
	if err != nil {
		return err
	}
	if !opts.NoLicenseDiscovery {
		artifacts = deps.DiscoverLicenses(artifacts)
	}

	// Step 2: build
	var skip []string
	if cfg.History.DBPath != "" {
		for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
			skip = append(skip, cfg.History.DBPath+suffix)
		}
	}

	var builder escrow.PackageBuilder = escrow.NewBuilder(escrow.Options{
		OutputPath:      output,
		Compression:     compression,
		AllowUnlicensed: cfg.Escrow.AllowUnlicensed,
		Exclude:         cfg.Escrow.Exclude,
		ProjectName:     opts.ProjectName,
		ProjectVersion:  opts.ProjectVersion,
		Concurrency:     cfg.Escrow.Concurrency,
		SkipFiles:       skip,
	})

	pkg, err := builder.Build(cmd.Context(), opts.SourceDir, artifacts)
	if err != nil {
		return err
	}

	// Step 3: sidecars
	checksumLine := fmt.Sprintf("%s  %s\n", pkg.Fingerprint, filepath.Base(pkg.Path))
	if err := utils.WriteFile(pkg.Path+".sha256", []byte(checksumLine), 0644); err != nil {
		return models.NewError(models.ErrEscrowIO, pkg.Path+".sha256", "failed to write checksum: %w", err)
	}

	if cfg.Signing.GPGKey != "" {
		if err := signPackage(pkg.Path, cfg.Signing); err != nil {
			return err
		}
	}

	// Step 4: history
	if cfg.History.DBPath != "" {
		if err := recordPackage(cfg.History.DBPath, opts, pkg); err != nil {
			return err
		}
	}

	logrus.Info("Escrow package created successfully!")
	fmt.Fprintf(cmd.OutOrStdout(), "Package:      %s\n", pkg.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Size:         %s\n", humanize.Bytes(uint64(pkg.Size)))
	fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint:  %s\n", pkg.Fingerprint)
	fmt.Fprintf(cmd.OutOrStdout(), "Dependencies: %d\n", len(pkg.Manifest.Dependencies))
	fmt.Fprintf(cmd.OutOrStdout(), "Source files: %d (%s)\n", pkg.Manifest.Source.Files, humanize.Bytes(uint64(pkg.Manifest.Source.Size)))

	return nil
}

func signPackage(path string, cfg config.SigningConfig) error {
	passphrase := ""
	if cfg.PassphraseEnv != "" {
		passphrase = os.Getenv(cfg.PassphraseEnv)
	}

	gpg, err := signer.NewGPGSigner(cfg.GPGKey, passphrase)
	if err != nil {
		return models.NewError(models.ErrInvalidConfig, cfg.GPGKey, "failed to initialize GPG signer: %w", err)
	}
	var s signer.Signer = gpg

	f, err := os.Open(path)
	if err != nil {
		return models.NewError(models.ErrEscrowIO, path, "%w", err)
	}
	defer f.Close()

	sig, err := s.SignDetached(f)
	if err != nil {
		return models.NewError(models.ErrEscrowIO, path, "%w", err)
	}

	if err := utils.WriteFile(path+".asc", sig, 0644); err != nil {
		return models.NewError(models.ErrEscrowIO, path+".asc", "failed to write signature: %w", err)
	}

	// Exported for verify --public-key
	pub, err := s.GetPublicKey()
	if err != nil {
		return models.NewError(models.ErrEscrowIO, cfg.GPGKey, "failed to export public key: %w", err)
	}
	if err := utils.WriteFile(path+".pub.asc", pub, 0644); err != nil {
		return models.NewError(models.ErrEscrowIO, path+".pub.asc", "failed to write public key: %w", err)
	}

	logrus.Info("Escrow package signed successfully")
	return nil
}

// recordPackage compares against the last package for the same project and
// version. An identical fingerprint means the rebuild was a no-op and is not
// recorded again.
func recordPackage(dbPath string, opts *escrowOptions, pkg *models.EscrowPackage) error {
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return models.NewError(models.ErrEscrowIO, dbPath, "%w", err)
	}

	store, err := history.Open(dbPath)
	if err != nil {
		return models.NewError(models.ErrEscrowIO, dbPath, "%w", err)
	}
	defer store.Close()

	last, err := store.Latest(opts.ProjectName, opts.ProjectVersion)
	if err != nil {
		return models.NewError(models.ErrEscrowIO, dbPath, "%w", err)
	}
	if last != nil && last.Fingerprint == pkg.Fingerprint {
		logrus.WithFields(logrus.Fields{
			"fingerprint": pkg.Fingerprint,
			"previous":    last.CreatedAt,
		}).Info("Escrow package unchanged since last build")
		return nil
	}

	rec := &history.Record{
		Project:         opts.ProjectName,
		Version:         opts.ProjectVersion,
		Fingerprint:     pkg.Fingerprint,
		Path:            pkg.Path,
		Size:            pkg.Size,
		Compression:     pkg.Compression,
		DependencyCount: len(pkg.Manifest.Dependencies),
	}
	if err := store.Add(rec); err != nil {
		return models.NewError(models.ErrEscrowIO, dbPath, "%w", err)
	}

	logrus.Debugf("Recorded escrow package #%d", rec.ID)
	return nil
}
