package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"arbwatch/internal/application/port"
	"arbwatch/internal/application/service"
	"arbwatch/internal/application/usecase/monitor"
	"arbwatch/internal/infrastructure/config"
	"arbwatch/internal/infrastructure/notify"
	"arbwatch/internal/infrastructure/pricefeed"
	"arbwatch/internal/infrastructure/storage/composite"
	pgrepo "arbwatch/internal/infrastructure/storage/postgres"
	redisrepo "arbwatch/internal/infrastructure/storage/redis"
	sqliterepo "arbwatch/internal/infrastructure/storage/sqlite"
	"arbwatch/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 价格源
	primary   port.BookFeed
	secondary port.BookFeed

	// 存储层
	redisRepo  *redisrepo.Repo
	sqliteRepo *sqliterepo.Repo
	pgRepo     *pgrepo.Repo
	repo       port.Repository

	// 输出端口
	Sink     port.Sink
	notifier *notify.Notifier
	Alerts   *service.AlertService

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 所有依赖初始化都在这里完成，失败时释放已创建的资源
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(cfg.App.ClearScreen),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化
func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeFeeds(); err != nil {
		return fmt.Errorf("%w: %w", ErrFeedInitFailed, err)
	}
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	if err := sc.initializeNotifier(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotifierInitFailed, err)
	}

	sc.Alerts = service.NewAlertService(sc.Config.Market.Pair, sc.notifier, sc.repo, service.AlertConfig{
		Cooldown:     sc.Config.Alert.Cooldown.Duration,
		Timeout:      sc.Config.Alert.Timeout.Duration,
		QueueSize:    sc.Config.Alert.QueueSize,
		DrainTimeout: sc.Config.Alert.DrainTimeout.Duration,
	})

	log.Info().
		Str("primary", sc.primary.Name()).
		Str("secondary", sc.secondary.Name()).
		Strs("senders", sc.notifier.Senders()).
		Msg("✓ All components initialized")
	return nil
}

// initializeFeeds 解析两个市场，未知市场直接失败
func (sc *ServiceContext) initializeFeeds() error {
	m := sc.Config.Market
	primary, err := pricefeed.Resolve(m.Primary, sc.Config.Exchange.WsURL(m.Primary))
	if err != nil {
		return err
	}
	secondary, err := pricefeed.Resolve(m.Secondary, sc.Config.Exchange.WsURL(m.Secondary))
	if err != nil {
		return err
	}
	sc.primary, sc.secondary = primary, secondary
	return nil
}

// initializeStorage 初始化存储层 (Redis, SQLite, Postgres)，全部可选
func (sc *ServiceContext) initializeStorage() error {
	var repos []port.Repository

	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		repos = append(repos, sc.redisRepo)
	}

	if sc.Config.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
		repos = append(repos, sc.sqliteRepo)
	}

	if sc.Config.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		repos = append(repos, sc.pgRepo)
	}

	if len(repos) == 0 {
		sc.repo = monitor.NewNoopRepo()
		return nil
	}
	repo := composite.New(repos...)
	log.Info().Int("repositories", repo.Len()).Msg("✓ Storage initialized")
	sc.repo = repo
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisRepo = redisrepo.New(rdb, sc.Config.Redis.Prefix, sc.Config.Redis.TTL.Duration)

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return sc.redisRepo.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Str("books", sc.redisRepo.BooksKey()).
		Str("channel", sc.redisRepo.OpportunityChannel()).
		Msg("✓ Redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.sqliteRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.SQLite.Path).
		Msg("✓ SQLite initialized")
	return nil
}

// initPostgres 初始化 Postgres 连接
func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.pgRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// initializeNotifier Telegram 必选，Discord 可选
func (sc *ServiceContext) initializeNotifier() error {
	n := sc.Config.Notify
	senders := []port.Sender{
		notify.NewTelegramSender(n.TelegramAPIURL, n.TelegramToken, n.TelegramChatID),
	}

	if n.DiscordWebhookURL != "" {
		discord, err := notify.NewDiscordSender(n.DiscordWebhookURL)
		if err != nil {
			return err
		}
		senders = append(senders, discord)
		sc.closerChain = append(sc.closerChain, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			discord.Close(ctx)
			return nil
		})
	}

	sc.notifier = notify.NewNotifier(senders...)
	return nil
}

// BuildMonitorServiceDeps 构建 Monitor Service 所需的所有依赖
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Primary:      sc.primary,
		Secondary:    sc.secondary,
		Pair:         sc.Config.Market.Pair,
		Threshold:    sc.Config.Arbitrage.SpreadThreshold,
		CycleTimeout: sc.Config.Monitor.CycleTimeout.Duration,
		WriteTimeout: sc.Config.Storage.WriteTimeout.Duration,
		Color:        sc.Config.App.Color,
		Alerts:       sc.Alerts,
		Sink:         sc.Sink,
		Repo:         sc.repo,
	}
}

// Close 按照相反的顺序关闭所有资源
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
