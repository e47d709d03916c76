package cli

import (
	"fmt"
	"time"

	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/usage"
	"github.com/spf13/cobra"
)

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print LLM token usage totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tracker := usage.New(cfg.UsagePath())

			today, err := tracker.Totals(cmd.Context(), usage.StartOfToday())
			if err != nil {
				return err
			}
			allTime, err := tracker.Totals(cmd.Context(), time.Time{})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(
				cmd.OutOrStdout(),
				"today:    requests=%d input_tokens=%d output_tokens=%d total_tokens=%d\nall time: requests=%d input_tokens=%d output_tokens=%d total_tokens=%d\n",
				today.Requests, today.InputTokens, today.OutputTokens, today.TotalTokens,
				allTime.Requests, allTime.InputTokens, allTime.OutputTokens, allTime.TotalTokens,
			)
			return err
		},
	}
}
