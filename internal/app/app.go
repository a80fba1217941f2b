package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/gotd/td/telegram/auth"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"channel_relay/internal/config"
	"channel_relay/internal/events"
	"channel_relay/internal/logger"
	"channel_relay/internal/mongo"
	"channel_relay/internal/redis"
	"channel_relay/internal/relay"
	"channel_relay/internal/relay/models"
	"channel_relay/internal/relay/platform"
	"channel_relay/internal/relay/registry"
	"channel_relay/internal/relay/state"
	"channel_relay/internal/sqlite"
	"channel_relay/internal/telegram/botapi"
	"channel_relay/internal/telegram/mtproto"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	Config   *config.Config
	MongoDB  *mongo.Client
	Redis    *goredis.Client
	SQL      *gorm.DB
	NATS     *nats.Conn
	Registry registry.Reader
	Store    state.Store
	Events   *events.Publisher

	// Telegram 客户端按需初始化（state 等命令不需要）
	Bot      *bot.Bot
	MTProto  *mtproto.Client
	Reporter *botapi.Reporter
	throttle *botapi.Throttle
}

// New 初始化存储层：注册表、去重状态存储与可选的 NATS 发布器。
// 任何服务初始化失败都会清理已初始化的服务并返回错误。
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	if err := app.initStorage(); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}

	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			_ = app.Close(context.Background())
			return nil, fmt.Errorf("init NATS failed: %w", err)
		}
		app.NATS = nc
		app.Events = events.NewPublisher(nc, cfg.NATS.Subject)
		logger.L().Infof("NATS publisher initialized: subject=%s", cfg.NATS.Subject)
	}

	return app, nil
}

func (a *App) initStorage() error {
	cfg := a.Config

	if cfg.NeedsMongo() {
		mongoClient, err := mongo.InitFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("init MongoDB failed: %w", err)
		}
		a.MongoDB = mongoClient
		logger.L().Info("MongoDB initialized successfully")
	}

	if len(cfg.RelayChannels) > 0 {
		a.Registry = registry.NewStatic(cfg.RelayChannels)
	} else {
		a.Registry = registry.NewMongoRegistry(a.MongoDB.Database(), cfg.RegistryCollection)
	}

	switch cfg.State.Backend {
	case config.BackendFile:
		a.Store = state.NewFileStore(cfg.State.File)
	case config.BackendMongo:
		a.Store = state.NewMongoStore(a.MongoDB.Database(), cfg.State.Collection)
	case config.BackendRedis:
		rdb, err := redis.InitFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("init Redis failed: %w", err)
		}
		a.Redis = rdb
		a.Store = state.NewRedisStore(rdb, cfg.State.RedisKey)
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.State.SQLitePath)
		if err != nil {
			return fmt.Errorf("init SQLite failed: %w", err)
		}
		a.SQL = db
		store, err := state.NewSQLStore(db)
		if err != nil {
			return fmt.Errorf("init SQLite state store failed: %w", err)
		}
		a.Store = store
	default:
		return fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
	logger.L().Infof("State store initialized: backend=%s", cfg.State.Backend)
	return nil
}

// initTelegram 创建 MTProto 用户客户端，以及配置了 token 时的 Bot 客户端
func (a *App) initTelegram() error {
	if a.MTProto != nil {
		return nil
	}
	cfg := a.Config

	client, err := mtproto.NewClient(mtproto.Config{
		AppID:       cfg.AppID,
		AppHash:     cfg.AppHash,
		SessionPath: cfg.SessionPath,
	})
	if err != nil {
		return fmt.Errorf("init MTProto client failed: %w", err)
	}
	a.MTProto = client

	if cfg.TelegramToken != "" {
		b, err := botapi.NewBot(botapi.Config{Token: cfg.TelegramToken})
		if err != nil {
			return fmt.Errorf("init Telegram bot failed: %w", err)
		}
		a.Bot = b
		a.Reporter = botapi.NewReporter(b, cfg.BotOwnerIDs)
		a.throttle = botapi.NewThrottle(cfg.Relay.BotRatePerSecond)
		logger.L().Info("Telegram bot initialized successfully")
	}
	return nil
}

// RunOnce 执行一次完整的中继，并发送报告、发布事件
func (a *App) RunOnce(ctx context.Context) (*relay.Summary, error) {
	if err := a.Config.ValidateRun(); err != nil {
		return nil, err
	}
	if err := a.initTelegram(); err != nil {
		return nil, err
	}

	var summary *relay.Summary
	err := a.MTProto.Run(ctx, func(ctx context.Context, session *mtproto.Session) error {
		svc := relay.NewService(a.Registry, a.Store, session, a.transport(session), a.relayOptions())

		var err error
		summary, err = svc.Run(ctx)
		return err
	})
	if err != nil {
		return summary, err
	}

	a.announce(ctx, summary)
	return summary, nil
}

func (a *App) transport(session *mtproto.Session) platform.Transport {
	if a.Config.ForwardVia == config.ForwardViaBot && a.Bot != nil {
		return botapi.NewTransport(a.Bot, a.throttle)
	}
	return session
}

func (a *App) relayOptions() relay.Options {
	cfg := a.Config
	return relay.Options{
		Target:        cfg.TargetChannel,
		Window:        cfg.Window(),
		Timeout:       cfg.ForwardTimeout(),
		DeliveryDelay: cfg.DeliveryDelay(),
		AlbumMaxScan:  cfg.Relay.AlbumMaxScan,
		FailClosed:    cfg.Relay.AlbumFailClosed,
	}
}

// announce 报告与事件发布失败只记录日志，不影响本次运行结果
func (a *App) announce(ctx context.Context, summary *relay.Summary) {
	if a.Reporter != nil {
		a.Reporter.Send(ctx, summary.Report(a.Config.TargetChannel))
	}
	if a.Events != nil {
		if err := a.Events.Publish(ctx, events.NewRunEvent(a.Config.TargetChannel, summary)); err != nil {
			logger.L().Errorf("Failed to publish run event: %v", err)
		}
	}
}

// ChannelCheck 单个频道的解析结果
type ChannelCheck struct {
	Channel models.Channel
	Err     error
}

// CheckChannels 列出注册表并逐个解析（只读）
func (a *App) CheckChannels(ctx context.Context) ([]ChannelCheck, error) {
	if err := a.initTelegram(); err != nil {
		return nil, err
	}

	channels, err := a.Registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	checks := make([]ChannelCheck, 0, len(channels))
	err = a.MTProto.Run(ctx, func(ctx context.Context, session *mtproto.Session) error {
		for _, ch := range channels {
			resolved, err := session.Resolve(ctx, ch)
			if err != nil {
				checks = append(checks, ChannelCheck{Channel: ch, Err: err})
				continue
			}
			checks = append(checks, ChannelCheck{Channel: resolved})
		}
		return nil
	})
	return checks, err
}

// SyncTitles 将解析得到的频道名称写回 MongoDB 注册表；静态注册表不支持
func (a *App) SyncTitles(ctx context.Context, checks []ChannelCheck) (int, error) {
	reg, ok := a.Registry.(*registry.MongoRegistry)
	if !ok {
		return 0, fmt.Errorf("title sync requires the MongoDB registry (RELAY_CHANNELS is set)")
	}

	updated := 0
	for _, c := range checks {
		if c.Err != nil || c.Channel.Title == "" {
			continue
		}
		if err := reg.UpdateTitle(ctx, c.Channel.Username, c.Channel.Title); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// Login 交互式登录用户会话
func (a *App) Login(ctx context.Context, prompt auth.UserAuthenticator) error {
	if err := a.initTelegram(); err != nil {
		return err
	}
	return a.MTProto.Login(ctx, prompt)
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.NATS != nil {
		if err := a.NATS.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("close NATS failed: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Redis failed: %w", err))
		}
	}
	if a.SQL != nil {
		if err := sqlite.Close(a.SQL); err != nil {
			errs = append(errs, fmt.Errorf("close SQLite failed: %w", err))
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close MongoDB failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
