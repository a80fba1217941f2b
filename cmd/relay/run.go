package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"channel_relay/internal/app"
	"channel_relay/internal/logger"
	"channel_relay/internal/relay"
	"channel_relay/internal/telegram/mtproto"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newRunCmd(configPath *string) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay once, or on a cron schedule with --schedule",
		Long: "Reads every registered channel, forwards posts from the relay window that were not relayed before, " +
			"and persists the dedup state. With --schedule (or RELAY_SCHEDULE) the process stays up and runs on the " +
			"cron expression; a run that is still in progress causes the next tick to be skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule != "" {
				if _, err := cronParser.Parse(schedule); err != nil {
					return fmt.Errorf("invalid schedule %q: %w", schedule, err)
				}
			}

			cfg, a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if schedule == "" {
				schedule = cfg.Schedule
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if schedule == "" {
				summary, err := a.RunOnce(ctx)
				if summary != nil {
					printSummary(cmd.OutOrStdout(), summary)
				}
				return err
			}
			return runScheduled(ctx, a, schedule)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression, e.g. \"*/30 * * * *\" (default RELAY_SCHEDULE)")
	return cmd
}

// runScheduled 按 cron 表达式循环运行，直到收到退出信号。
// SkipIfStillRunning 保证任意时刻只有一次运行在读写去重状态。
func runScheduled(ctx context.Context, a *app.App, schedule string) error {
	cronLogger := cron.PrintfLogger(logger.L())
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	fatal := make(chan error, 1)
	_, err := c.AddFunc(schedule, func() {
		if _, err := a.RunOnce(ctx); err != nil {
			logger.L().Errorf("Scheduled relay run failed: %v", err)
			if ctx.Err() == nil && isFatal(err) {
				select {
				case fatal <- err:
				default:
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	logger.L().Infof("Relay scheduled: %s", schedule)
	c.Start()

	var runErr error
	select {
	case <-ctx.Done():
		logger.L().Info("Shutdown signal received, waiting for the current run")
	case runErr = <-fatal:
	}

	<-c.Stop().Done()
	return runErr
}

// isFatal 授权失效后后续的定时运行也不可能成功
func isFatal(err error) bool {
	return errors.Is(err, mtproto.ErrNotAuthorized)
}

func printSummary(w io.Writer, s *relay.Summary) {
	fmt.Fprintf(w, "run %s: %d units (%d messages) relayed, %d skipped, %d channels, %.2fs\n",
		s.RunID, s.Delivered(), s.Messages(), s.Skipped(), len(s.Channels), s.Duration.Seconds())
	for _, c := range s.Channels {
		status := "ok"
		switch {
		case c.Error != "":
			status = "error: " + c.Error
		case c.Result.Restricted:
			status = "restricted"
		}
		fmt.Fprintf(w, "  %-24s fetched=%-4d delivered=%-4d duplicates=%-4d skipped=%-4d %s\n",
			c.Channel, c.Fetched, c.Result.Delivered, c.Result.Duplicates, c.Result.Skipped+c.Result.Abandoned, status)
	}
}
