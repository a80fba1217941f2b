package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"channel_relay/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultTimeout = 10 * time.Second
	appName        = "channel_relay"
)

// Client 持有 MongoDB 连接以及注册表、状态存储共用的数据库句柄
type Client struct {
	conn *mongo.Client
	db   *mongo.Database
}

// Config MongoDB 连接参数
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration // 连接与服务器选择的超时，0 表示 10s
}

func (c Config) validate() error {
	var errs []error
	if c.URI == "" {
		errs = append(errs, errors.New("MONGO_URI is empty"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("MONGO_DB_NAME is empty"))
	}
	return errors.Join(errs...)
}

// Connect 建立连接并向 primary 发送 ping；ping 失败时断开连接
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid MongoDB config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetServerSelectionTimeout(timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := conn.Ping(ctx, readpref.Primary()); err != nil {
		_ = conn.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{conn: conn, db: conn.Database(cfg.Database)}, nil
}

// InitFromConfig 使用应用配置连接 MongoDB
func InitFromConfig(cfg *config.Config) (*Client, error) {
	return Connect(context.Background(), Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDBName,
	})
}

// Database 返回配置的数据库
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Close 断开连接
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Disconnect(ctx)
}
