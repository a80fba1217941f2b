package forward

import (
	"context"
	"errors"
	"time"

	"channel_relay/internal/logger"
	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
	"channel_relay/internal/relay/state"
)

const (
	// DefaultTimeout 单次转发调用的超时时间
	DefaultTimeout = 20 * time.Second
	// DefaultDeliveryDelay 每个单元成功投递后的间隔
	DefaultDeliveryDelay = 500 * time.Millisecond
	// defaultRateLimitWait 平台未给出等待时长时的兜底值
	defaultRateLimitWait = 5 * time.Second
)

// SleepFunc 可取消的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep 基于 timer 的默认实现
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Options 转发器配置
type Options struct {
	Target        string        // 目标频道
	Timeout       time.Duration // 单次调用超时
	DeliveryDelay time.Duration // 成功投递后的间隔
	FailClosed    bool          // 跳过回溯扫描不完整的相册
	Sleep         SleepFunc
}

// Forwarder 转发引擎：按单元顺序投递，并执行限流 / 超时 / 限制转发的处理策略
type Forwarder struct {
	transport platform.Transport
	opts      Options
}

// NewForwarder 创建转发器
func NewForwarder(transport platform.Transport, opts Options) *Forwarder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DeliveryDelay < 0 {
		opts.DeliveryDelay = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Forwarder{transport: transport, opts: opts}
}

// ChannelResult 单个频道的投递结果
type ChannelResult struct {
	Units      int  // 参与投递的单元数
	Delivered  int  // 成功投递的单元数
	Messages   int  // 成功投递的消息数
	Duplicates int  // 已转发过而跳过的单元数
	Skipped    int  // 失败跳过的单元数（下次运行仍可重试）
	Abandoned  int  // 因限制转发而未尝试的单元数
	Restricted bool // 频道禁止转发
}

// Deliver 按顺序投递单元，成功后把每个成员的去重键写入 records，时间戳取消息自身的时间
func (f *Forwarder) Deliver(ctx context.Context, channel models.Channel, units []models.Unit, records state.Records) ChannelResult {
	result := ChannelResult{Units: len(units)}

	for i, unit := range units {
		if ctx.Err() != nil {
			result.Skipped += len(units) - i
			return result
		}

		if key, ok := records.FirstPresent(unit.Keys()); ok {
			result.Duplicates++
			logger.L().Debugf("Unit already relayed: channel=%s, ids=%v, key=%s", channel.Username, unit.IDs(), key)
			continue
		}

		if unit.Truncated && f.opts.FailClosed {
			result.Skipped++
			logger.L().Warnf("Skipping incomplete album: channel=%s, group_id=%d, ids=%v", channel.Username, unit.GroupID, unit.IDs())
			continue
		}

		outcome := f.deliverUnit(ctx, channel, unit, records)
		switch outcome {
		case platform.Delivered:
			result.Delivered++
			result.Messages += len(unit.Messages)
			if err := f.opts.Sleep(ctx, f.opts.DeliveryDelay); err != nil {
				logger.L().Debugf("Delivery delay interrupted: %v", err)
			}
		case platform.Restricted:
			result.Restricted = true
			result.Abandoned = len(units) - i - 1
			result.Skipped++
			logger.L().Warnf("Forwarding restricted for channel %s, abandoning %d remaining units",
				channel.Username, result.Abandoned)
			return result
		default:
			result.Skipped++
		}
	}

	return result
}

// deliverUnit 投递单个单元；超过批量上限的单元拆成多次调用，每次调用成功后立即记录
func (f *Forwarder) deliverUnit(ctx context.Context, channel models.Channel, unit models.Unit, records state.Records) platform.Outcome {
	for start := 0; start < len(unit.Messages); start += platform.MaxForwardBatch {
		end := start + platform.MaxForwardBatch
		if end > len(unit.Messages) {
			end = len(unit.Messages)
		}
		batch := unit.Messages[start:end]

		res := f.forwardWithRetry(ctx, channel, idsOf(batch))
		if !res.OK() {
			logSkip(channel, unit, res)
			return res.Outcome
		}

		for _, msg := range batch {
			records.Add(msg.Key(), msg.Date)
		}
	}

	if unit.IsAlbum() {
		logger.L().Infof("Forwarded album (%d) from %s", len(unit.Messages), channel.Username)
	} else {
		logger.L().Debugf("Forwarded message %d from %s", unit.Messages[0].ID, channel.Username)
	}
	return platform.Delivered
}

// forwardWithRetry 发起转发调用；遇到限流时按平台要求等待后重试一次
func (f *Forwarder) forwardWithRetry(ctx context.Context, channel models.Channel, ids []int) platform.Result {
	res := f.forwardOnce(ctx, channel, ids)
	if res.Outcome != platform.RateLimited {
		return res
	}

	wait := res.Wait
	if wait <= 0 {
		wait = defaultRateLimitWait
	}
	logger.L().Warnf("Rate limited while forwarding from %s, waiting %s before retry", channel.Username, wait)

	if err := f.opts.Sleep(ctx, wait); err != nil {
		return platform.FailedResult(err)
	}
	return f.forwardOnce(ctx, channel, ids)
}

// forwardOnce 单次带超时的转发调用
func (f *Forwarder) forwardOnce(ctx context.Context, channel models.Channel, ids []int) platform.Result {
	callCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	res := f.transport.Forward(callCtx, channel, f.opts.Target, ids)
	if res.Outcome == platform.Failed && errors.Is(res.Err, context.DeadlineExceeded) && ctx.Err() == nil {
		return platform.TimeoutResult(res.Err)
	}
	return res
}

func logSkip(channel models.Channel, unit models.Unit, res platform.Result) {
	switch res.Outcome {
	case platform.Restricted:
		logger.L().Warnf("Forward restricted: channel=%s, ids=%v, err=%v", channel.Username, unit.IDs(), res.Err)
	case platform.RateLimited:
		logger.L().Warnf("Still rate limited after retry, skipping: channel=%s, ids=%v, wait=%s", channel.Username, unit.IDs(), res.Wait)
	case platform.Timeout:
		logger.L().Warnf("Forward timed out, skipping: channel=%s, ids=%v", channel.Username, unit.IDs())
	default:
		logger.L().Warnf("Forward failed, skipping: channel=%s, ids=%v, err=%v", channel.Username, unit.IDs(), res.Err)
	}
}

func idsOf(msgs []models.Message) []int {
	ids := make([]int, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	return ids
}
