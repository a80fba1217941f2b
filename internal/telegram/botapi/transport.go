// Package botapi 通过 Bot API（go-telegram/bot）转发消息并向管理员发送运行报告。
package botapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
)

// Sender 是 *bot.Bot 中本包用到的方法子集，便于测试替换
type Sender interface {
	ForwardMessages(ctx context.Context, params *bot.ForwardMessagesParams) ([]botModels.MessageID, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)
}

// restrictedMarkers 出现在 Bad Request 描述中时表示源频道禁止转发
var restrictedMarkers = []string{
	"can't be forwarded",
	"CHAT_FORWARDS_RESTRICTED",
	"message has protected content",
}

// Transport implements platform.Transport over the Bot API.
type Transport struct {
	sender   Sender
	throttle *Throttle
}

// NewTransport 创建 Bot API 转发通道；throttle 为 nil 时不限速
func NewTransport(sender Sender, throttle *Throttle) *Transport {
	return &Transport{sender: sender, throttle: throttle}
}

// Forward implements platform.Transport. 一次 forwardMessages 调用转发整个单元。
func (t *Transport) Forward(ctx context.Context, from models.Channel, target string, ids []int) platform.Result {
	if t.throttle != nil {
		if err := t.throttle.Take(ctx); err != nil {
			return classify(fmt.Errorf("waiting for send slot: %w", err))
		}
	}

	_, err := t.sender.ForwardMessages(ctx, &bot.ForwardMessagesParams{
		ChatID:     ChatID(target),
		FromChatID: ChatID(from.Handle()),
		MessageIDs: ids,
	})
	if err != nil {
		return classify(fmt.Errorf("forward %v from %s: %w", ids, from.Username, err))
	}
	return platform.DeliveredResult()
}

// ChatID 数字形式转为 int64，其余按 @username 原样传递
func ChatID(s string) any {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id
	}
	return s
}

// classify 将 go-telegram/bot 错误映射为转发结果
func classify(err error) platform.Result {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return platform.RateLimitedResult(time.Duration(tooMany.RetryAfter)*time.Second, err)
	}

	if errors.Is(err, bot.ErrorForbidden) {
		return platform.RestrictedResult(err)
	}
	if errors.Is(err, bot.ErrorBadRequest) {
		msg := err.Error()
		for _, marker := range restrictedMarkers {
			if strings.Contains(msg, marker) {
				return platform.RestrictedResult(err)
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return platform.TimeoutResult(err)
	}
	return platform.FailedResult(err)
}
