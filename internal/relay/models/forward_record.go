package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecordTimeLayout 去重记录时间戳的持久化格式（UTC，可按字符串排序）
const RecordTimeLayout = "2006-01-02 15:04:05"

// Key 去重键，格式为 "channel:message_id"
type Key string

// NewKey 构造去重键
func NewKey(channel string, messageID int) Key {
	return Key(fmt.Sprintf("%s:%d", channel, messageID))
}

// Split 拆分去重键，频道句柄本身可能包含冒号，因此按最后一个冒号切分
func (k Key) Split() (string, int, error) {
	s := string(k)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return "", 0, fmt.Errorf("invalid record key %q", s)
	}
	id, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid message id in record key %q: %w", s, err)
	}
	return s[:idx], id, nil
}

// ForwardRecord 转发记录：某条源消息已被成功转发的持久化证明
type ForwardRecord struct {
	Key   Key    `bson:"key" gorm:"primaryKey;column:record_key"`
	Stamp string `bson:"at" gorm:"column:forwarded_at;not null"` // 消息内容时间（UTC，RecordTimeLayout），不是投递时间
}

// FormatRecordTime 按持久化格式输出 UTC 时间
func FormatRecordTime(t time.Time) string {
	return t.UTC().Format(RecordTimeLayout)
}

// ParseRecordTime 解析持久化时间戳（视为 UTC）
func ParseRecordTime(s string) (time.Time, error) {
	return time.ParseInLocation(RecordTimeLayout, s, time.UTC)
}

// TableName gorm 表名
func (ForwardRecord) TableName() string {
	return "forward_records"
}
