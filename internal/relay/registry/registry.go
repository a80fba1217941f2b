// Package registry reads the list of monitored source channels.
package registry

import (
	"context"
	"strings"

	"channel_relay/internal/relay/models"
)

// Reader 频道注册表（对中继核心只读）
type Reader interface {
	// List 按注册顺序返回全部源频道
	List(ctx context.Context) ([]models.Channel, error)
}

// Static 由配置给出的固定频道列表
type Static struct {
	channels []models.Channel
}

// NewStatic 从频道句柄列表创建注册表，忽略空值与重复项
func NewStatic(handles []string) *Static {
	seen := make(map[string]bool, len(handles))
	channels := make([]models.Channel, 0, len(handles))
	for _, h := range handles {
		h = NormalizeHandle(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		channels = append(channels, models.Channel{Username: h})
	}
	return &Static{channels: channels}
}

// List implements Reader.
func (s *Static) List(ctx context.Context) ([]models.Channel, error) {
	out := make([]models.Channel, len(s.channels))
	copy(out, s.channels)
	return out, nil
}

// NormalizeHandle 去除空白；t.me 链接转换为 @username，数字 ID 保持不变
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(h, prefix) {
			h = "@" + strings.Trim(strings.TrimPrefix(h, prefix), "/")
			break
		}
	}
	return h
}
