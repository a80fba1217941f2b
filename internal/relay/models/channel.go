package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel 源频道（由频道注册表提供，运行期间不可变）
type Channel struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Username string             `bson:"username"`        // 平台句柄，例如 "@example" 或数字 ID
	Title    string             `bson:"title,omitempty"` // 显示名称
	PeerID   int64              `bson:"-"`               // 解析后的平台实体 ID（运行期填充）
}

// Handle 返回用于去重键的频道标识
func (c Channel) Handle() string {
	return c.Username
}

// DisplayName 返回日志中使用的频道名称
func (c Channel) DisplayName() string {
	if c.Title != "" {
		return c.Title + " (" + c.Username + ")"
	}
	return c.Username
}
