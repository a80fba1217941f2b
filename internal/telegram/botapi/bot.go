package botapi

import (
	"fmt"

	"github.com/go-telegram/bot"
)

// Config Telegram Bot 配置
type Config struct {
	Token string // Bot Token
	Debug bool   // 是否开启调试模式
}

// NewBot 创建 Bot 实例。bot.New 会调用 getMe，token 无效时直接返回错误。
// 中继只发起请求，不拉取更新，因此不会调用 Start。
func NewBot(cfg Config) (*bot.Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	opts := []bot.Option{}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return b, nil
}
