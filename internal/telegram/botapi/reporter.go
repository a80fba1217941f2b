package botapi

import (
	"context"

	"github.com/go-telegram/bot"

	"channel_relay/internal/logger"
)

// Reporter 向 Bot 管理员发送运行报告
type Reporter struct {
	sender   Sender
	ownerIDs []int64
}

// NewReporter 创建报告发送器
func NewReporter(sender Sender, ownerIDs []int64) *Reporter {
	return &Reporter{sender: sender, ownerIDs: ownerIDs}
}

// Send 发送给所有管理员，返回成功条数。发送失败只记录日志。
func (r *Reporter) Send(ctx context.Context, text string) int {
	if len(r.ownerIDs) == 0 {
		logger.L().Debug("No bot owners configured, skipping report")
		return 0
	}

	sent := 0
	for _, id := range r.ownerIDs {
		_, err := r.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: id,
			Text:   text,
		})
		if err != nil {
			logger.L().Errorf("Failed to send report to admin %d: %v", id, err)
			continue
		}
		sent++
		logger.L().Infof("Sent relay report to admin %d", id)
	}
	return sent
}
