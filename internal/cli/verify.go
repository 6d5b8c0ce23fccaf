package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ralt/publishkit/internal/escrow"
	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/signer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var (
		publicKey   string
		listEntries bool
	)

	cmd := &cobra.Command{
		Use:   "verify <archive>",
		Short: "Verify an escrow package",
		Long: `Recomputes the package fingerprint and compares it with the .sha256 file
written next to the archive, then reads the embedded manifest.

With --public-key, the detached .asc signature is checked as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			sum, err := escrow.Checksums(path)
			if err != nil {
				return models.NewError(models.ErrEscrowIO, path, "%w", err)
			}

			if err := checkSidecar(path, sum.SHA256); err != nil {
				return err
			}

			manifest, compression, err := escrow.ReadManifest(path)
			if err != nil {
				return models.NewError(models.ErrEscrowIO, path, "%w", err)
			}

			if publicKey != "" {
				if err := checkSignature(path, publicKey); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Package:      %s\n", path)
			fmt.Fprintf(out, "Size:         %s (%s)\n", humanize.Bytes(uint64(sum.Size)), compression)
			fmt.Fprintf(out, "Fingerprint:  %s\n", sum.SHA256)
			fmt.Fprintf(out, "SHA-512:      %s\n", sum.SHA512)
			if manifest.Project.Name != "" {
				fmt.Fprintf(out, "Project:      %s %s\n", manifest.Project.Name, manifest.Project.Version)
			}
			fmt.Fprintf(out, "Source files: %d (%s)\n", manifest.Source.Files, humanize.Bytes(uint64(manifest.Source.Size)))
			fmt.Fprintf(out, "Dependencies: %d\n", len(manifest.Dependencies))

			if listEntries {
				for _, dep := range manifest.Dependencies {
					fmt.Fprintf(out, "  %s  %s  %s\n", dep.Coordinates(), licenseList(dep.Licenses), dep.ArchivePath)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&publicKey, "public-key", "k", "", "GPG public key used to check the .asc signature")
	cmd.Flags().BoolVarP(&listEntries, "list", "l", false, "List dependencies recorded in the manifest")

	return cmd
}

// checkSidecar compares against <archive>.sha256 when it exists
func checkSidecar(path, fingerprint string) error {
	data, err := os.ReadFile(path + ".sha256")
	if os.IsNotExist(err) {
		logrus.Warnf("No checksum file for %s, skipping comparison", path)
		return nil
	}
	if err != nil {
		return models.NewError(models.ErrEscrowIO, path+".sha256", "%w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return models.NewError(models.ErrEscrowIO, path+".sha256", "checksum file is empty")
	}
	if !strings.EqualFold(fields[0], fingerprint) {
		return models.NewError(models.ErrEscrowIO, path, "fingerprint mismatch: expected %s, got %s", fields[0], fingerprint)
	}

	logrus.Debugf("Fingerprint matches %s.sha256", path)
	return nil
}

func checkSignature(path, publicKey string) error {
	archive, err := os.Open(path)
	if err != nil {
		return models.NewError(models.ErrEscrowIO, path, "%w", err)
	}
	defer archive.Close()

	sig, err := os.Open(path + ".asc")
	if err != nil {
		return models.NewError(models.ErrEscrowIO, path+".asc", "%w", err)
	}
	defer sig.Close()

	identity, err := signer.VerifyDetached(publicKey, archive, sig)
	if err != nil {
		return models.NewError(models.ErrEscrowIO, path+".asc", "%w", err)
	}

	logrus.Infof("Good signature from %s", identity)
	return nil
}

func licenseList(licenses []string) string {
	if len(licenses) == 0 {
		return "UNLICENSED"
	}
	return strings.Join(licenses, ", ")
}
