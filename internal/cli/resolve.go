package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/resolver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewResolveCmd creates the resolve command
func NewResolveCmd() *cobra.Command {
	var (
		modeFlag string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "resolve <version>",
		Short: "Resolve the publish target for a version",
		Long: `Decides which repository a build publishes to and which credentials apply.

Snapshot versions (ending in -SNAPSHOT) always go to the snapshot repository.
Release versions go to the release repository in simple mode, or to the
staging repository with promotion required in full mode.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := models.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var r resolver.TargetResolver = resolver.New(cfg.ResolverConfig(os.LookupEnv))
			target, err := r.Resolve(args[0], mode)
			if err != nil {
				return err
			}

			logrus.Infof("Publishing %s to %s (%s)", target.Version, target.RepositoryID, target.Kind)
			return writeTarget(cmd.OutOrStdout(), target, format)
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "simple", "Publish mode: simple or full")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json or yaml")

	return cmd
}

func writeTarget(w io.Writer, target *models.PublishTarget, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(target)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(target); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		fmt.Fprintf(w, "Repository:  %s (%s)\n", target.RepositoryID, target.Kind)
		fmt.Fprintf(w, "URL:         %s\n", target.BaseURL)
		fmt.Fprintf(w, "Version:     %s (%s)\n", target.Version, target.Status)
		fmt.Fprintf(w, "Mode:        %s\n", target.Mode)
		fmt.Fprintf(w, "Credentials: %s\n", target.Credentials)
		fmt.Fprintf(w, "Promotion:   %v", target.PromotionRequired)
		if target.PromotionRequired {
			fmt.Fprintf(w, " (to %s)", target.PromotionRepositoryID)
		}
		fmt.Fprintln(w)
		return nil
	default:
		return models.NewError(models.ErrInvalidConfig, format, "output format must be text, json or yaml")
	}
}
