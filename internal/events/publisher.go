// Package events 将每次中继运行的摘要发布到 NATS，供下游订阅
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"channel_relay/internal/relay"
)

// RunEvent 发布到 NATS 的运行摘要
type RunEvent struct {
	RunID       string                 `json:"run_id"`
	Target      string                 `json:"target"`
	StartedAt   time.Time              `json:"started_at"`
	DurationMS  int64                  `json:"duration_ms"`
	Delivered   int                    `json:"delivered"`
	Messages    int                    `json:"messages"`
	Skipped     int                    `json:"skipped"`
	Restricted  []string               `json:"restricted,omitempty"`
	Failed      []string               `json:"failed,omitempty"`
	Channels    []relay.ChannelSummary `json:"channels"`
	PublishedAt time.Time              `json:"published_at"`
}

// NewRunEvent 由运行摘要构造事件
func NewRunEvent(target string, s *relay.Summary) RunEvent {
	return RunEvent{
		RunID:       s.RunID,
		Target:      target,
		StartedAt:   s.StartedAt,
		DurationMS:  s.Duration.Milliseconds(),
		Delivered:   s.Delivered(),
		Messages:    s.Messages(),
		Skipped:     s.Skipped(),
		Restricted:  s.Restricted(),
		Failed:      s.Failed(),
		Channels:    s.Channels,
		PublishedAt: time.Now().UTC(),
	}
}

// Conn 是 *nats.Conn 中用到的方法子集
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// Publisher NATS 运行摘要发布器
type Publisher struct {
	conn    Conn
	subject string
}

// NewPublisher 创建发布器
func NewPublisher(conn Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Connect 连接 NATS 服务器
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, errors.New("nats url missing")
	}
	nc, err := nats.Connect(url,
		nats.Name("channel-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// Publish 发布运行摘要并等待服务器确认收到
func (p *Publisher) Publish(ctx context.Context, event RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode run event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set("Run-Id", event.RunID)
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush run event: %w", err)
	}
	return nil
}
