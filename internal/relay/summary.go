package relay

import (
	"fmt"
	"strings"
	"time"

	"channel_relay/internal/relay/forward"
)

// ChannelSummary 单个频道的运行结果
type ChannelSummary struct {
	Channel string                `json:"channel"`
	Fetched int                   `json:"fetched"`
	Result  forward.ChannelResult `json:"result"`
	Error   string                `json:"error,omitempty"`
}

// Summary 一次运行的汇总
type Summary struct {
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Pruned    int              `json:"pruned"`
	Records   int              `json:"records"`
	Channels  []ChannelSummary `json:"channels"`
}

// Delivered 成功投递的单元总数
func (s *Summary) Delivered() int {
	total := 0
	for _, c := range s.Channels {
		total += c.Result.Delivered
	}
	return total
}

// Messages 成功投递的消息总数
func (s *Summary) Messages() int {
	total := 0
	for _, c := range s.Channels {
		total += c.Result.Messages
	}
	return total
}

// Skipped 失败跳过与放弃的单元总数
func (s *Summary) Skipped() int {
	total := 0
	for _, c := range s.Channels {
		total += c.Result.Skipped + c.Result.Abandoned
	}
	return total
}

// Restricted 禁止转发的频道
func (s *Summary) Restricted() []string {
	var out []string
	for _, c := range s.Channels {
		if c.Result.Restricted {
			out = append(out, c.Channel)
		}
	}
	return out
}

// Failed 解析或读取失败的频道
func (s *Summary) Failed() []string {
	var out []string
	for _, c := range s.Channels {
		if c.Error != "" {
			out = append(out, c.Channel)
		}
	}
	return out
}

// Report 生成发送给管理员的文本报告
func (s *Summary) Report(target string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 频道中继完成 → %s\n\n", target)
	fmt.Fprintf(&b, "✅ 转发: %d 个帖子（%d 条消息）\n", s.Delivered(), s.Messages())
	fmt.Fprintf(&b, "⏭️ 跳过: %d\n", s.Skipped())
	fmt.Fprintf(&b, "📡 频道: %d\n", len(s.Channels))
	if restricted := s.Restricted(); len(restricted) > 0 {
		fmt.Fprintf(&b, "🚫 禁止转发: %s\n", strings.Join(restricted, ", "))
	}
	if failed := s.Failed(); len(failed) > 0 {
		fmt.Fprintf(&b, "❌ 读取失败: %s\n", strings.Join(failed, ", "))
	}
	fmt.Fprintf(&b, "⏱️ 耗时: %.2f 秒", s.Duration.Seconds())
	return b.String()
}
