package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/lectern-ai/lectern/internal/channels"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/logging"
	"github.com/lectern-ai/lectern/internal/runtime"
	"github.com/lectern-ai/lectern/internal/usage"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask a question (or start interactive chat without -p)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := config.ValidateStartup(cfg)
			if err != nil {
				return err
			}
			for _, warning := range report.Warnings {
				logging.Logger().Warn(warning)
			}

			trimmedPrompt := strings.TrimSpace(prompt)
			if strings.HasPrefix(trimmedPrompt, "/") {
				return fmt.Errorf("slash commands are not supported in one-shot -p mode")
			}

			store, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions := newSessionManager(cfg, filepath.Dir(cfg.CLISessionPath()))
			engine, err := newEngine(cfg, store, sessions, usage.New(cfg.UsagePath()))
			if err != nil {
				return err
			}
			handler := channels.NewQueryHandler(engine)

			if trimmedPrompt != "" {
				writer := &singleShotWriter{out: cmd.OutOrStdout()}
				msg := &runtime.Message{Text: trimmedPrompt, SessionKey: channels.CLISessionKey}
				return handler.HandleMessage(cmd.Context(), writer, msg)
			}

			listener := channels.NewCLI(cmd.InOrStdin(), cmd.OutOrStdout())
			return listener.Listen(cmd.Context(), handler)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt message")

	return cmd
}

type singleShotWriter struct {
	out io.Writer
}

// WriteMessage writes one response message for one-shot prompt mode.
func (w *singleShotWriter) WriteMessage(_ context.Context, text string) error {
	fmt.Fprintln(w.out, text)
	return nil
}
