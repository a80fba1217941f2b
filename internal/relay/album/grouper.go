// Package album reassembles multi-message posts into relay units.
package album

import (
	"context"

	"channel_relay/internal/logger"
	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
)

// DefaultMaxScan 相册回溯扫描的默认上限
const DefaultMaxScan = 500

// Grouper 相册分组器
type Grouper struct {
	reader  platform.Reader
	maxScan int
}

// NewGrouper 创建相册分组器，maxScan <= 0 时使用默认值
func NewGrouper(reader platform.Reader, maxScan int) *Grouper {
	if maxScan <= 0 {
		maxScan = DefaultMaxScan
	}
	return &Grouper{reader: reader, maxScan: maxScan}
}

// Group 将从旧到新排列的窗口消息组装为转发单元。
// 每条消息恰好出现在一个单元中；相册单元出现在其窗口内最早成员的位置。
func (g *Grouper) Group(ctx context.Context, channel models.Channel, msgs []models.Message) []models.Unit {
	byGroup := make(map[int64][]models.Message)
	for _, msg := range msgs {
		if msg.Grouped() {
			byGroup[msg.GroupID] = append(byGroup[msg.GroupID], msg)
		}
	}

	processed := make(map[int64]bool)
	units := make([]models.Unit, 0, len(msgs))

	for _, msg := range msgs {
		if !msg.Grouped() {
			units = append(units, models.NewSingleUnit(msg))
			continue
		}
		if processed[msg.GroupID] {
			continue
		}
		processed[msg.GroupID] = true

		members := byGroup[msg.GroupID]
		older, truncated := g.scanBackward(ctx, channel, msg.GroupID, oldestID(members))
		if truncated {
			logger.L().Warnf("Album may be incomplete: channel=%s, group_id=%d, recovered=%d, max_scan=%d",
				channel.Username, msg.GroupID, len(members)+len(older), g.maxScan)
		}

		unit := models.NewAlbumUnit(msg.GroupID, append(older, members...), truncated)
		logger.L().Debugf("Album grouped: channel=%s, group_id=%d, ids=%v", channel.Username, unit.GroupID, unit.IDs())
		units = append(units, unit)
	}

	return units
}

// scanBackward 从 beforeID 之前逐条向旧消息回溯，收集同一相册的成员，
// 遇到第一条分组不匹配的消息即停止（相册在消息 ID 上是连续的）。
// 返回 truncated=true 表示已收集 maxScan 个成员仍未遇到边界，或读取失败。
func (g *Grouper) scanBackward(ctx context.Context, channel models.Channel, groupID int64, beforeID int) ([]models.Message, bool) {
	it := g.reader.History(ctx, channel, beforeID)

	var (
		found   []models.Message
		scanned int
	)
	for it.Next(ctx) {
		msg := it.Value()
		if msg.GroupID != groupID {
			return found, false
		}

		scanned++
		if scanned > g.maxScan {
			return found, true
		}
		found = append(found, msg)
	}

	if err := it.Err(); err != nil {
		logger.L().Warnf("Album backward scan failed: channel=%s, group_id=%d, err=%v", channel.Username, groupID, err)
		return found, true
	}

	// 已到达频道历史的起点
	return found, false
}

func oldestID(msgs []models.Message) int {
	oldest := msgs[0].ID
	for _, msg := range msgs[1:] {
		if msg.ID < oldest {
			oldest = msg.ID
		}
	}
	return oldest
}
