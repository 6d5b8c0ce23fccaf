package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ralt/publishkit/internal/history"
	"github.com/ralt/publishkit/internal/models"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	var (
		project string
		limit   int
		dbPath  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously built escrow packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				dbPath = cfg.History.DBPath
			}
			if dbPath == "" {
				return models.NewError(models.ErrInvalidConfig, "history.db_path", "no history database configured")
			}

			store, err := history.Open(dbPath)
			if err != nil {
				return models.NewError(models.ErrEscrowIO, dbPath, "%w", err)
			}
			defer store.Close()

			records, err := store.List(project, limit)
			if err != nil {
				return models.NewError(models.ErrEscrowIO, dbPath, "%w", err)
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No escrow packages recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROJECT\tVERSION\tSIZE\tDEPS\tFINGERPRINT\tBUILT")
			for _, rec := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
					rec.ID, rec.Project, rec.Version,
					humanize.Bytes(uint64(rec.Size)), rec.DependencyCount,
					shortFingerprint(rec.Fingerprint), humanize.Time(rec.CreatedAt))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Only list packages for this project")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of packages to list (0 for all)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the history database (defaults to history.db_path)")

	return cmd
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
