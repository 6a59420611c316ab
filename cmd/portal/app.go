package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/schoolportal/config"
	"github.com/alem-hub/schoolportal/internal/database"
	"github.com/alem-hub/schoolportal/internal/domain"
	"github.com/alem-hub/schoolportal/internal/elegant"
	"github.com/alem-hub/schoolportal/internal/infrastructure/external/portal"
	"github.com/alem-hub/schoolportal/internal/infrastructure/messaging"
	"github.com/alem-hub/schoolportal/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/schoolportal/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/schoolportal/pkg/logger"
	"github.com/alem-hub/schoolportal/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// Application содержит все собранные зависимости одного запуска CLI.
type Application struct {
	Config   *config.Config
	Log      *slog.Logger
	Manager  *elegant.Manager
	Client   *portal.Client
	Bus      *messaging.InMemoryEventBus
	DB       *postgres.Connection // nil без DATABASE_URL
	QueryLog *postgres.QueryLogRepository
	Cache    *redis.Cache // nil при REDIS_DISABLED

	closers []func()
}

// Close освобождает ресурсы в обратном порядке.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Connection возвращает соединение по умолчанию.
func (a *Application) Connection() (*database.Connection, error) {
	return a.Manager.Resolver().Connection(a.Config.Portal.Connection)
}

// setupLogger настраивает логгер на основе конфигурации.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = cfg.Observability.LogLevel
	opts.Format = logger.Format(cfg.Observability.LogFormat)
	if cfg.IsProduction() {
		opts.Format = logger.FormatJSON
	}
	opts.AddSource = cfg.App.Debug
	opts.Attrs = []slog.Attr{
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	}

	log := logger.New(opts)
	slog.SetDefault(log)
	return log
}

// bootstrap собирает приложение: конфиг, логгер, Redis, PostgreSQL,
// шину событий, HTTP-клиент портала и менеджер моделей.
func bootstrap(ctx context.Context, envFile string) (*Application, error) {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Debug("configuration loaded",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"connection", cfg.Portal.Connection,
	)

	app := &Application{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	// Повторы только при старте; запросы к порталу не повторяются.
	retrier := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed, retrying",
			"attempt", attempt,
			"delay", delay,
			logger.Err(err),
		)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var responseCache portal.ResponseCache
	var sessions portal.SessionStore

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.DialTimeout = cfg.Redis.DialTimeout

		var cache *redis.Cache
		err := retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			cache, err = redis.NewCache(ctx, redisCfg)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Cache = cache
		app.closers = append(app.closers, func() { _ = cache.Close() })

		if cfg.Portal.CacheTTL > 0 {
			responseCache = redis.NewResponseCache(cache)
		}
		if cfg.Redis.SessionSecret != "" {
			store, err := redis.NewSessionStore(cache, cfg.Redis.SessionSecret, redis.TTLSessionData)
			if err != nil {
				return nil, fmt.Errorf("failed to create session store: %w", err)
			}
			sessions = store
		}
		log.Debug("redis connection established", "addr", redisCfg.Addr())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. POSTGRESQL И МИГРАЦИИ (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.URL != "" {
		dbCfg := postgres.DefaultConfig()
		dbCfg.URL = cfg.Database.URL

		var db *postgres.Connection
		err := retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			db, err = postgres.NewConnection(ctx, dbCfg)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.DB = db
		app.closers = append(app.closers, db.Close)

		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		app.QueryLog = postgres.NewQueryLogRepository(db, log)
		log.Debug("database connection established")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	app.Bus = bus
	app.closers = append(app.closers, func() { _ = bus.Close() })

	if err := bus.SubscribeAll(messaging.QueryLogHandler(log)); err != nil {
		return nil, err
	}
	if cfg.Database.LogQueries && app.QueryLog != nil {
		if err := bus.SubscribeAll(app.QueryLog.Handler()); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. КЛИЕНТ ПОРТАЛА
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := portal.DefaultClientConfig(cfg.Portal.School, cfg.Portal.APIDomain)
	clientCfg.BaseURL = cfg.Portal.BaseURL
	clientCfg.Token = cfg.Portal.Token
	clientCfg.SessionCookieName = cfg.Portal.SessionCookieName
	clientCfg.SessionCookie = cfg.Portal.SessionCookie
	clientCfg.Timeout = cfg.Portal.RequestTimeout
	clientCfg.RateLimiterConfig.RequestsPerSecond = cfg.Portal.RateLimit
	clientCfg.RateLimiterConfig.BurstSize = cfg.Portal.RateLimitBurst
	clientCfg.BreakerThreshold = cfg.Portal.CircuitBreakerThreshold
	clientCfg.BreakerTimeout = cfg.Portal.CircuitBreakerTimeout
	clientCfg.Cache = responseCache
	clientCfg.CacheTTL = cfg.Portal.CacheTTL
	clientCfg.Sessions = sessions
	clientCfg.Logger = log
	clientCfg.Debug = cfg.Portal.Debug || cfg.App.Debug
	clientCfg.UserAgent = cfg.App.Name + "/" + cfg.App.Version

	client, err := portal.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal client: %w", err)
	}
	if err := client.RestoreSession(ctx); err != nil {
		log.Warn("failed to restore portal session", logger.Err(err))
	}
	app.Client = client

	// ─────────────────────────────────────────────────────────────────────────
	// 7. СОЕДИНЕНИЕ И МЕНЕДЖЕР МОДЕЛЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	conn := database.NewConnection(database.Config{
		Name:      cfg.Portal.Connection,
		Transport: client,
		Processor: database.EnvelopeProcessor{Key: "data"},
		Events:    bus,
		Logger:    log.With(logger.Component("database")),
	})
	resolver := database.NewResolver(cfg.Portal.Connection, conn)

	manager, err := elegant.NewManager(resolver, elegant.ManagerConfig{
		StorageFormat: cfg.Portal.StorageDateFormat,
		DisplayFormat: cfg.Portal.DisplayDateFormat,
		Location:      cfg.App.Location,
		Logger:        log.With(logger.Component("elegant")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model manager: %w", err)
	}
	if err := domain.RegisterModels(manager); err != nil {
		return nil, fmt.Errorf("failed to register models: %w", err)
	}
	app.Manager = manager

	ok = true
	return app, nil
}
