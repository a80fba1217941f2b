package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newChannelsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Inspect the channel registry",
	}
	cmd.AddCommand(newChannelsListCmd(configPath))
	cmd.AddCommand(newChannelsCheckCmd(configPath))
	return cmd
}

func newChannelsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered source channels in relay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer closeApp(a)

			channels, err := a.Registry.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(channels) == 0 {
				fmt.Fprintln(out, "no channels registered")
				return nil
			}
			for i, ch := range channels {
				fmt.Fprintf(out, "%3d. %s\n", i+1, ch.DisplayName())
			}
			return nil
		},
	}
}

func newChannelsCheckCmd(configPath *string) *cobra.Command {
	var syncTitles bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve every registered channel with the user session",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer closeApp(a)

			checks, err := a.CheckChannels(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, c := range checks {
				if c.Err != nil {
					failed++
					fmt.Fprintf(out, "❌ %s: %v\n", c.Channel.Username, c.Err)
					continue
				}
				fmt.Fprintf(out, "✅ %s (id %d)\n", c.Channel.DisplayName(), c.Channel.PeerID)
			}
			fmt.Fprintf(out, "%d/%d channels resolvable\n", len(checks)-failed, len(checks))

			if syncTitles {
				updated, err := a.SyncTitles(cmd.Context(), checks)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d titles updated\n", updated)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&syncTitles, "sync-titles", false, "store resolved titles back into the MongoDB registry")
	return cmd
}
