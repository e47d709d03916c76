package cli

import (
	"fmt"

	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/ingest"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Index course documents into the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Ingest needs no LLM credentials, so only its own section is checked.
			if err := cfg.Ingest.Validate(); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			store, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := ingest.New(store, cfg.Ingest).Run(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(
				cmd.OutOrStdout(),
				"scanned=%d ingested=%d unchanged=%d failed=%d chunks=%d\n",
				stats.Scanned, stats.Ingested, stats.Unchanged, stats.Failed, stats.Chunks,
			)
			return err
		},
	}
}
