package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"channel_relay/internal/logger"
	"channel_relay/internal/relay/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const stateDocumentID = "forwarded_messages"

// maxStateDocumentSize MongoDB 单文档 BSON 上限
var maxStateDocumentSize = 16 * 1024 * 1024

// stateDocument 整个去重状态保存为单个文档，ReplaceOne 即为原子覆盖
type stateDocument struct {
	ID        string                 `bson:"_id"`
	Records   []models.ForwardRecord `bson:"records"`
	UpdatedAt time.Time              `bson:"updated_at"`
}

// MongoStore 基于 MongoDB 的去重状态存储
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore 创建 MongoDB 状态存储
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{collection: db.Collection(collection)}
}

// Load implements Store.
func (s *MongoStore) Load(ctx context.Context) (Records, error) {
	raw, err := s.collection.FindOne(ctx, bson.M{"_id": stateDocumentID}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		logger.L().Info("No forward state document, starting empty")
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load forward state: %w", err)
	}

	var doc stateDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		logger.L().Warnf("Forward state document is corrupt, starting empty: %v", err)
		return Records{}, nil
	}
	return fromForwardRecords(doc.Records), nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, records Records) error {
	doc := stateDocument{
		ID:        stateDocumentID,
		Records:   toForwardRecords(records),
		UpdatedAt: time.Now().UTC(),
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode forward state: %w", err)
	}
	if len(raw) > maxStateDocumentSize {
		return fmt.Errorf("forward state with %d records is %d bytes, over the MongoDB document limit of %d; use STATE_BACKEND=redis or sqlite",
			len(doc.Records), len(raw), maxStateDocumentSize)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": stateDocumentID}, bson.Raw(raw), opts); err != nil {
		return fmt.Errorf("failed to save forward state: %w", err)
	}
	return nil
}
