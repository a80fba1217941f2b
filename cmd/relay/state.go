package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/state"
	"channel_relay/internal/relay/window"
)

func newStateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the dedup state store",
	}
	cmd.AddCommand(newStateShowCmd(configPath))
	return cmd
}

func newStateShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show how many relayed-message records the store holds (read-only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer closeApp(a)

			records, err := a.Store.Load(cmd.Context())
			if err != nil {
				return err
			}
			live := state.Prune(records, window.Cutoff(time.Now(), cfg.Window()))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:   %s\n", cfg.State.Backend)
			fmt.Fprintf(out, "records:   %d\n", len(records))
			fmt.Fprintf(out, "in window: %d (expired %d)\n", len(live), len(records)-len(live))
			if len(records) > 0 {
				oldest, newest := records.Span()
				fmt.Fprintf(out, "oldest:    %s\n", models.FormatRecordTime(oldest))
				fmt.Fprintf(out, "newest:    %s\n", models.FormatRecordTime(newest))
			}
			return nil
		},
	}
}
