package models

import (
	"sort"
	"time"
)

// Message 源频道消息快照（每次运行拉取，只读）
type Message struct {
	Channel string    // 所属频道句柄
	ID      int       // 平台消息 ID
	Date    time.Time // 发送时间（UTC）
	Text    string    // 文本内容，空表示无
	Media   string    // 媒体类型引用，空表示无
	GroupID int64     // 相册分组 ID，0 表示不属于相册
}

// HasContent 是否包含文本或媒体
func (m Message) HasContent() bool {
	return m.Text != "" || m.Media != ""
}

// Grouped 是否属于相册
func (m Message) Grouped() bool {
	return m.GroupID != 0
}

// Key 返回该消息的去重键
func (m Message) Key() Key {
	return NewKey(m.Channel, m.ID)
}

// Unit 转发单元：单条消息或同一相册的全部消息
type Unit struct {
	GroupID   int64
	Messages  []Message
	Truncated bool // 相册回溯扫描达到上限，可能不完整
}

// NewSingleUnit 创建单条消息单元
func NewSingleUnit(msg Message) Unit {
	return Unit{Messages: []Message{msg}}
}

// NewAlbumUnit 创建相册单元，成员按消息 ID 升序排列
func NewAlbumUnit(groupID int64, messages []Message, truncated bool) Unit {
	members := make([]Message, len(messages))
	copy(members, messages)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return Unit{GroupID: groupID, Messages: members, Truncated: truncated}
}

// IsAlbum 是否为相册单元
func (u Unit) IsAlbum() bool {
	return u.GroupID != 0
}

// IDs 按投递顺序返回成员消息 ID
func (u Unit) IDs() []int {
	ids := make([]int, len(u.Messages))
	for i, msg := range u.Messages {
		ids[i] = msg.ID
	}
	return ids
}

// Keys 返回全部成员的去重键
func (u Unit) Keys() []Key {
	keys := make([]Key, len(u.Messages))
	for i, msg := range u.Messages {
		keys[i] = msg.Key()
	}
	return keys
}
