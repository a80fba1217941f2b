// Package mtproto 使用用户会话（gotd/td）读取公开频道历史。
// Bot API 无法读取频道历史，因此读取侧必须走 MTProto 用户会话。
package mtproto

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/peers"
)

// ErrNotAuthorized 会话文件不存在或已失效
var ErrNotAuthorized = errors.New("user session is not authorized, run `relay login` first")

// Config MTProto 客户端配置
type Config struct {
	AppID       int
	AppHash     string
	SessionPath string
}

// Client 包装 gotd 客户端
type Client struct {
	client *telegram.Client
}

// NewClient 创建客户端（不会立即连接）
func NewClient(cfg Config) (*Client, error) {
	if cfg.AppID == 0 || strings.TrimSpace(cfg.AppHash) == "" {
		return nil, errors.New("TELEGRAM_APP_ID and TELEGRAM_APP_HASH are required")
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = "user_session.json"
	}

	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		NoUpdates:      true,
	})
	return &Client{client: client}, nil
}

// Run 建立连接并校验授权，然后在连接存活期间执行 fn。
// 未授权属于致命错误，fn 不会被调用。
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "check auth status")
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}

		manager := peers.Options{}.Build(c.client.API())
		return fn(ctx, newSession(c.client.API(), manager))
	})
}

// Login 交互式登录（手机号 + 验证码，可选两步验证密码），结果写入会话文件
func (c *Client) Login(ctx context.Context, prompt auth.UserAuthenticator) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(prompt, auth.SendCodeOptions{})
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return errors.Wrap(err, "login")
		}
		return nil
	})
}
