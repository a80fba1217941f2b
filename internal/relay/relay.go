// Package relay drives one relay run: registry -> window -> album -> forward -> state.
package relay

import (
	"context"
	"fmt"
	"time"

	"channel_relay/internal/logger"
	"channel_relay/internal/relay/album"
	"channel_relay/internal/relay/forward"
	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
	"channel_relay/internal/relay/registry"
	"channel_relay/internal/relay/state"
	"channel_relay/internal/relay/window"

	"github.com/google/uuid"
)

// Options 中继运行配置
type Options struct {
	Target        string
	Window        time.Duration
	Timeout       time.Duration
	DeliveryDelay time.Duration
	AlbumMaxScan  int
	FailClosed    bool
	Now           func() time.Time
	Sleep         forward.SleepFunc
}

// Service 中继编排器：依赖全部通过构造函数注入
type Service struct {
	registry  registry.Reader
	store     state.Store
	reader    platform.Reader
	selector  *window.Selector
	grouper   *album.Grouper
	forwarder *forward.Forwarder
	window    time.Duration
	now       func() time.Time
}

// NewService 创建中继服务
func NewService(
	reg registry.Reader,
	store state.Store,
	reader platform.Reader,
	transport platform.Transport,
	opts Options,
) *Service {
	if opts.Window <= 0 {
		opts.Window = 7 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		registry: reg,
		store:    store,
		reader:   reader,
		selector: window.NewSelector(reader),
		grouper:  album.NewGrouper(reader, opts.AlbumMaxScan),
		forwarder: forward.NewForwarder(transport, forward.Options{
			Target:        opts.Target,
			Timeout:       opts.Timeout,
			DeliveryDelay: opts.DeliveryDelay,
			FailClosed:    opts.FailClosed,
			Sleep:         opts.Sleep,
		}),
		window: opts.Window,
		now:    opts.Now,
	}
}

// Run 顺序处理全部频道并在结束时持久化一次去重状态。
// 只有初始化阶段的错误（注册表、状态存储）以及最终保存失败会返回 error。
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New().String(),
		StartedAt: s.now().UTC(),
	}
	cutoff := window.Cutoff(summary.StartedAt, s.window)

	channels, err := s.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	if len(channels) == 0 {
		logger.L().Warn("No channels registered, nothing to relay")
	}

	loaded, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load forward state: %w", err)
	}
	records := state.Prune(loaded, cutoff)
	summary.Pruned = len(loaded) - len(records)

	log := logger.WithRun(summary.RunID)
	log.Infof("Relay run started: channels=%d, records=%d, pruned=%d, cutoff=%s",
		len(channels), len(records), summary.Pruned, cutoff.Format(time.RFC3339))

	for _, channel := range channels {
		if ctx.Err() != nil {
			break
		}
		summary.Channels = append(summary.Channels, s.relayChannel(ctx, channel, cutoff, records))
	}

	summary.Records = len(records)
	summary.Duration = s.now().UTC().Sub(summary.StartedAt)

	if err := s.store.Save(context.WithoutCancel(ctx), records); err != nil {
		return summary, fmt.Errorf("failed to save forward state: %w", err)
	}

	log.Infof("Relay run completed: units=%d, messages=%d, skipped=%d, duration=%v",
		summary.Delivered(), summary.Messages(), summary.Skipped(), summary.Duration)
	return summary, nil
}

// relayChannel 处理单个频道，所有错误都在频道内消化
func (s *Service) relayChannel(ctx context.Context, channel models.Channel, cutoff time.Time, records state.Records) ChannelSummary {
	cs := ChannelSummary{Channel: channel.Username}

	resolved, err := s.reader.Resolve(ctx, channel)
	if err != nil {
		cs.Error = err.Error()
		logger.L().Errorf("Could not resolve channel %s: %v", channel.Username, err)
		return cs
	}
	if resolved.Title == "" {
		resolved.Title = channel.Title
	}

	msgs, err := s.selector.Collect(ctx, resolved, cutoff)
	if err != nil {
		// 使用已读取的部分继续
		cs.Error = err.Error()
		logger.L().Warnf("History read for %s ended early: %v", channel.Username, err)
	}
	cs.Fetched = len(msgs)
	if len(msgs) == 0 {
		logger.L().Debugf("No messages in window for %s", channel.Username)
		return cs
	}

	units := s.grouper.Group(ctx, resolved, window.Reverse(msgs))
	cs.Result = s.forwarder.Deliver(ctx, resolved, units, records)

	logger.L().Infof("Channel relayed: channel=%s, fetched=%d, units=%d, delivered=%d, duplicates=%d, skipped=%d, restricted=%v",
		resolved.DisplayName(), cs.Fetched, cs.Result.Units, cs.Result.Delivered, cs.Result.Duplicates, cs.Result.Skipped, cs.Result.Restricted)
	return cs
}
