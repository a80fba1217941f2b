// Package window selects the messages of a channel that fall inside the relay window.
package window

import (
	"context"
	"fmt"
	"time"

	"channel_relay/internal/logger"
	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
)

// Cutoff 计算本次运行的窗口起点
func Cutoff(now time.Time, window time.Duration) time.Time {
	return now.UTC().Add(-window)
}

// Selector 窗口选择器
type Selector struct {
	reader platform.Reader
}

// NewSelector 创建窗口选择器
func NewSelector(reader platform.Reader) *Selector {
	return &Selector{reader: reader}
}

// Collect 从最新消息开始向旧消息遍历，遇到第一条早于 cutoff 的消息即停止。
// 返回结果为从新到旧的顺序，不含既无文本也无媒体的消息。
func (s *Selector) Collect(ctx context.Context, channel models.Channel, cutoff time.Time) ([]models.Message, error) {
	it := s.reader.History(ctx, channel, 0)

	var (
		msgs    []models.Message
		scanned int
		empty   int
	)
	for it.Next(ctx) {
		msg := it.Value()
		scanned++

		if msg.Date.Before(cutoff) {
			break
		}
		if !msg.HasContent() {
			empty++
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := it.Err(); err != nil {
		return msgs, fmt.Errorf("failed to read history of %s: %w", channel.Username, err)
	}

	logger.L().Debugf("Window collected: channel=%s, scanned=%d, selected=%d, empty=%d, cutoff=%s",
		channel.Username, scanned, len(msgs), empty, cutoff.Format(time.RFC3339))
	return msgs, nil
}

// Reverse 原地反转，得到从旧到新的投递顺序
func Reverse(msgs []models.Message) []models.Message {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}
