package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 状态存储后端
const (
	BackendFile   = "file"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// 转发身份
const (
	ForwardViaUser = "user"
	ForwardViaBot  = "bot"
)

// Config 应用程序配置
type Config struct {
	TelegramToken string  `yaml:"telegram_token"` // Telegram Bot API Token
	AppID         int     `yaml:"app_id"`         // MTProto 应用 ID
	AppHash       string  `yaml:"app_hash"`       // MTProto 应用 Hash
	SessionPath   string  `yaml:"session_path"`   // 用户会话文件
	BotOwnerIDs   []int64 `yaml:"bot_owner_ids"`  // 接收运行报告的管理员
	TargetChannel string  `yaml:"target_channel"` // 聚合频道
	ForwardVia    string  `yaml:"forward_via"`    // user 或 bot

	RelayChannels      []string `yaml:"relay_channels"` // 静态频道列表，为空时读取 MongoDB
	MongoURI           string   `yaml:"mongo_uri"`
	MongoDBName        string   `yaml:"mongo_db_name"`
	RegistryCollection string   `yaml:"registry_collection"`

	Relay    RelayConfig `yaml:"relay"`
	State    StateConfig `yaml:"state"`
	NATS     NATSConfig  `yaml:"nats"`
	Schedule string      `yaml:"schedule"` // cron 表达式
}

// RelayConfig 中继调优参数
type RelayConfig struct {
	WindowHours           int  `yaml:"window_hours"`
	ForwardTimeoutSeconds int  `yaml:"forward_timeout_seconds"`
	DeliveryDelayMS       int  `yaml:"delivery_delay_ms"`
	AlbumMaxScan          int  `yaml:"album_max_scan"`
	AlbumFailClosed       bool `yaml:"album_fail_closed"`
	BotRatePerSecond      int  `yaml:"bot_rate_per_second"`
}

// StateConfig 去重状态存储配置
type StateConfig struct {
	Backend       string `yaml:"backend"`
	File          string `yaml:"file"`
	Collection    string `yaml:"collection"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// NATSConfig 运行摘要发布配置（URL 为空时不发布）
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Window 中继窗口
func (c *Config) Window() time.Duration {
	return time.Duration(c.Relay.WindowHours) * time.Hour
}

// ForwardTimeout 单次转发超时
func (c *Config) ForwardTimeout() time.Duration {
	return time.Duration(c.Relay.ForwardTimeoutSeconds) * time.Second
}

// DeliveryDelay 每个单元成功后的停顿
func (c *Config) DeliveryDelay() time.Duration {
	return time.Duration(c.Relay.DeliveryDelayMS) * time.Millisecond
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		SessionPath:        "user_session.json",
		ForwardVia:         ForwardViaUser,
		MongoDBName:        "yetal",
		RegistryCollection: "channels",
		Relay: RelayConfig{
			WindowHours:           168,
			ForwardTimeoutSeconds: 20,
			DeliveryDelayMS:       500,
			AlbumMaxScan:          500,
			BotRatePerSecond:      30,
		},
		State: StateConfig{
			Backend:    BackendFile,
			File:       "forwarded_messages.json",
			Collection: "relay_state",
			RedisAddr:  "localhost:6379",
			RedisKey:   "relay:forwarded",
			SQLitePath: "relay_state.db",
		},
		NATS: NATSConfig{Subject: "relay.runs"},
	}
}

// Load 加载配置：默认值 -> YAML 文件（path 非空时）-> 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString("TELEGRAM_TOKEN", &cfg.TelegramToken)
	envString("TELEGRAM_APP_HASH", &cfg.AppHash)
	envString("TELEGRAM_SESSION_PATH", &cfg.SessionPath)
	envString("TARGET_CHANNEL", &cfg.TargetChannel)
	envString("FORWARD_VIA", &cfg.ForwardVia)
	envString("MONGO_URI", &cfg.MongoURI)
	envString("MONGO_DB_NAME", &cfg.MongoDBName)
	envString("REGISTRY_COLLECTION", &cfg.RegistryCollection)
	envString("STATE_BACKEND", &cfg.State.Backend)
	envString("STATE_FILE", &cfg.State.File)
	envString("STATE_COLLECTION", &cfg.State.Collection)
	envString("REDIS_ADDR", &cfg.State.RedisAddr)
	envString("REDIS_PASSWORD", &cfg.State.RedisPassword)
	envString("REDIS_STATE_KEY", &cfg.State.RedisKey)
	envString("SQLITE_PATH", &cfg.State.SQLitePath)
	envString("NATS_URL", &cfg.NATS.URL)
	envString("NATS_SUBJECT", &cfg.NATS.Subject)
	envString("RELAY_SCHEDULE", &cfg.Schedule)

	if v := strings.TrimSpace(os.Getenv("RELAY_CHANNELS")); v != "" {
		cfg.RelayChannels = splitList(v)
	}

	// 解析BOT_OWNER_IDS
	if v := os.Getenv("BOT_OWNER_IDS"); v != "" {
		ids, err := parseOwnerIDs(v)
		if err != nil {
			return fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
		cfg.BotOwnerIDs = ids
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"TELEGRAM_APP_ID", &cfg.AppID},
		{"RELAY_WINDOW_HOURS", &cfg.Relay.WindowHours},
		{"FORWARD_TIMEOUT_SECONDS", &cfg.Relay.ForwardTimeoutSeconds},
		{"DELIVERY_DELAY_MS", &cfg.Relay.DeliveryDelayMS},
		{"ALBUM_MAX_SCAN", &cfg.Relay.AlbumMaxScan},
		{"BOT_RATE_PER_SECOND", &cfg.Relay.BotRatePerSecond},
		{"REDIS_DB", &cfg.State.RedisDB},
	}
	for _, item := range ints {
		if err := envInt(item.key, item.dst); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(os.Getenv("ALBUM_FAIL_CLOSED")); v != "" {
		value, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("failed to parse ALBUM_FAIL_CLOSED: %w", err)
		}
		cfg.Relay.AlbumFailClosed = value
	}
	return nil
}

func (c *Config) validate() error {
	positives := []struct {
		key   string
		value int
	}{
		{"RELAY_WINDOW_HOURS", c.Relay.WindowHours},
		{"FORWARD_TIMEOUT_SECONDS", c.Relay.ForwardTimeoutSeconds},
		{"ALBUM_MAX_SCAN", c.Relay.AlbumMaxScan},
		{"BOT_RATE_PER_SECOND", c.Relay.BotRatePerSecond},
	}
	for _, p := range positives {
		if p.value < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", p.key, p.value)
		}
	}
	if c.Relay.DeliveryDelayMS < 0 {
		return fmt.Errorf("DELIVERY_DELAY_MS must be >= 0, got %d", c.Relay.DeliveryDelayMS)
	}

	switch c.State.Backend {
	case BackendFile, BackendMongo, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("STATE_BACKEND must be one of file, mongo, redis, sqlite, got %q", c.State.Backend)
	}

	switch c.ForwardVia {
	case ForwardViaUser, ForwardViaBot:
	default:
		return fmt.Errorf("FORWARD_VIA must be user or bot, got %q", c.ForwardVia)
	}
	return nil
}

// ValidateRun 检查执行中继所需的凭据
func (c *Config) ValidateRun() error {
	if c.TargetChannel == "" {
		return fmt.Errorf("TARGET_CHANNEL is required")
	}
	if c.AppID == 0 || c.AppHash == "" {
		return fmt.Errorf("TELEGRAM_APP_ID and TELEGRAM_APP_HASH are required")
	}
	if c.ForwardVia == ForwardViaBot && c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required when FORWARD_VIA=bot")
	}
	if len(c.RelayChannels) == 0 && c.MongoURI == "" {
		return fmt.Errorf("either RELAY_CHANNELS or MONGO_URI must be set")
	}
	if c.State.Backend == BackendMongo && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required when STATE_BACKEND=mongo")
	}
	return nil
}

// NeedsMongo 注册表或状态存储是否使用 MongoDB
func (c *Config) NeedsMongo() bool {
	return len(c.RelayChannels) == 0 || c.State.Backend == BackendMongo
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
