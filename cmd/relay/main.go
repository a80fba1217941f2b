package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"channel_relay/internal/app"
	"channel_relay/internal/config"
	"channel_relay/internal/logger"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Relay recent posts from public channels into one aggregation channel",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file (environment variables override it)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newChannelsCmd(&configPath))
	cmd.AddCommand(newStateCmd(&configPath))
	cmd.AddCommand(newLoginCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// openApp 加载配置并初始化存储层，调用方负责 Close
func openApp(configPath string) (*config.Config, *app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		logger.L().Errorf("Failed to close services: %v", err)
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
