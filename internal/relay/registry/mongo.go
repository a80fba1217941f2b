package registry

import (
	"context"
	"fmt"
	"strings"

	"channel_relay/internal/relay/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRegistry 频道注册表（MongoDB 实现），文档格式 {username, title}
type MongoRegistry struct {
	collection *mongo.Collection
}

// NewMongoRegistry 创建频道注册表
func NewMongoRegistry(db *mongo.Database, collection string) *MongoRegistry {
	return &MongoRegistry{
		collection: db.Collection(collection),
	}
}

// List implements Reader. 按 _id 升序即插入顺序返回
func (r *MongoRegistry) List(ctx context.Context) ([]models.Channel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"username": bson.M{"$exists": true, "$ne": ""}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer cursor.Close(ctx)

	var channels []models.Channel
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}

	seen := make(map[string]bool, len(channels))
	out := channels[:0]
	for _, ch := range channels {
		ch.Username = NormalizeHandle(ch.Username)
		if ch.Username == "" || seen[ch.Username] {
			continue
		}
		seen[ch.Username] = true
		out = append(out, ch)
	}
	return out, nil
}

// UpdateTitle 更新频道显示名称。文档中的 username 可能是 @name、name 或 t.me 链接，均会匹配。
func (r *MongoRegistry) UpdateTitle(ctx context.Context, username, title string) error {
	name := strings.TrimPrefix(NormalizeHandle(username), "@")
	variants := []string{"@" + name, name, "https://t.me/" + name, "http://t.me/" + name, "t.me/" + name}

	_, err := r.collection.UpdateMany(ctx,
		bson.M{"username": bson.M{"$in": variants}},
		bson.M{"$set": bson.M{"title": title}},
	)
	if err != nil {
		return fmt.Errorf("failed to update channel title: %w", err)
	}
	return nil
}
