package app

import (
	"context"
	"fmt"

	"github.com/mselser95/execution-gateway/internal/audit"
	"github.com/mselser95/execution-gateway/internal/broker"
	"github.com/mselser95/execution-gateway/internal/broker/alpaca"
	"github.com/mselser95/execution-gateway/internal/broker/binance"
	"github.com/mselser95/execution-gateway/internal/broker/paper"
	"github.com/mselser95/execution-gateway/internal/circuitbreaker"
	"github.com/mselser95/execution-gateway/internal/feed"
	"github.com/mselser95/execution-gateway/internal/gate"
	"github.com/mselser95/execution-gateway/internal/gateway"
	"github.com/mselser95/execution-gateway/internal/queue"
	"github.com/mselser95/execution-gateway/internal/risk"
	"github.com/mselser95/execution-gateway/internal/storage"
	"github.com/mselser95/execution-gateway/pkg/cache"
	"github.com/mselser95/execution-gateway/pkg/config"
	"github.com/mselser95/execution-gateway/pkg/healthprobe"
	"github.com/mselser95/execution-gateway/pkg/httpserver"
	"github.com/mselser95/execution-gateway/pkg/types"
	"github.com/mselser95/execution-gateway/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		audit:         audit.NewAsync(audit.NewLogWriter(logger), cfg.AuditBufferSize),
		ctx:           ctx,
		cancel:        cancel,
	}

	err := a.setup(ctx, opts)
	if err != nil {
		a.closeStorage()
		_ = a.audit.Close()
		if a.tickCache != nil {
			a.tickCache.Close()
		}
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) setup(ctx context.Context, opts *Options) error {
	cfg, logger := a.cfg, a.logger

	var err error
	a.storage, err = setupStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}

	a.tickCache, err = cache.NewRistretto[types.Tick](&cache.RistrettoConfig{
		Name:        "ticks",
		NumCounters: cfg.CacheNumCounters,
		MaxCost:     cfg.CacheMaxCost,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("setup tick cache: %w", err)
	}

	a.feed, err = feed.New(&feed.Config{
		Cache:         a.tickCache,
		Audit:         a.audit,
		Logger:        logger,
		StaleAfter:    cfg.FeedStaleAfter,
		CheckInterval: cfg.FeedCheckInterval,
		TickTTL:       cfg.FeedTickTTL,
	})
	if err != nil {
		return fmt.Errorf("setup feed monitor: %w", err)
	}

	a.stream, err = websocket.New(&websocket.Config{
		URL:          cfg.FeedWSURL,
		DialTimeout:  cfg.WSDialTimeout,
		PongTimeout:  cfg.WSPongTimeout,
		PingInterval: cfg.WSPingInterval,
		Backoff: websocket.BackoffConfig{
			MaxDelay:    cfg.WSReconnectMaxWait,
			MaxFailures: cfg.WSMaxFailures,
			Cooldown:    cfg.WSCooldown,
		},
		Listener: a.feed,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("setup market stream: %w", err)
	}

	instruments := append(append([]string{}, cfg.FeedInstruments...), opts.Instruments...)
	err = a.stream.Subscribe(normalizeKeys(instruments)...)
	if err != nil {
		return fmt.Errorf("subscribe instruments: %w", err)
	}

	a.gateway, err = setupGateway(cfg, logger, a.audit)
	if err != nil {
		return fmt.Errorf("setup gateway: %w", err)
	}

	err = registerBrokers(cfg, logger, a.gateway, a.feed)
	if err != nil {
		return fmt.Errorf("register brokers: %w", err)
	}

	a.gate, err = setupGate(cfg, logger, a.audit, a.feed, a.gateway, a.storage)
	if err != nil {
		return fmt.Errorf("setup gate: %w", err)
	}

	a.queue, err = queue.New(&queue.Config{
		Dispatcher:    a.gate,
		Store:         a.storage,
		Audit:         a.audit,
		Logger:        logger,
		RegularLimit:  cfg.QueueRegularLimit,
		RegularWindow: cfg.QueueRegularWindow,
		SmartInterval: cfg.QueueSmartInterval,
	})
	if err != nil {
		return fmt.Errorf("setup queue: %w", err)
	}

	a.healthChecker.AddCheck("feed", func() (bool, string) {
		if a.feed.Ready() {
			return true, ""
		}
		return false, "market data feed is DOWN"
	})

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Queue:         &intake{queue: a.queue, stream: a.stream, logger: logger},
		Gateway:       a.gateway,
		Feed:          a.feed,
		Gate:          a.gate,
		BrokerTimeout: cfg.BrokerCallTimeout,
	})

	return nil
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StorageMode {
	case "postgres":
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	case "sqlite":
		sqliteStorage, err := storage.NewSQLiteStorage(ctx, &storage.SQLiteConfig{
			Path:   cfg.SQLitePath,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create sqlite storage: %w", err)
		}
		return sqliteStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupGateway(cfg *config.Config, logger *zap.Logger, sink audit.Sink) (*gateway.Gateway, error) {
	breakers, err := circuitbreaker.New(&circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create breaker registry: %w", err)
	}

	return gateway.New(&gateway.Config{
		Breakers:      breakers,
		Audit:         sink,
		Logger:        logger,
		CallTimeout:   cfg.BrokerCallTimeout,
		ProbeInterval: cfg.BrokerProbeInterval,
	})
}

// registerBrokers builds an adapter per registry entry. The paper venue
// fills at the streamed price.
func registerBrokers(cfg *config.Config, logger *zap.Logger, gw *gateway.Gateway, prices paper.PriceSource) error {
	for _, bc := range cfg.Brokers {
		adapter, err := newAdapter(bc, logger, prices)
		if err != nil {
			return fmt.Errorf("broker %s: %w", bc.ID, err)
		}

		err = gw.Register(types.BrokerID(bc.ID), adapter, bc.Priority)
		if err != nil {
			return fmt.Errorf("broker %s: %w", bc.ID, err)
		}

		logger.Info("broker-registered",
			zap.String("broker", bc.ID),
			zap.String("type", bc.Type),
			zap.Int("priority", bc.Priority))
	}
	return nil
}

func newAdapter(bc config.BrokerConfig, logger *zap.Logger, prices paper.PriceSource) (broker.Adapter, error) {
	id := types.BrokerID(bc.ID)
	named := logger.With(zap.String("broker", bc.ID))

	switch bc.Type {
	case config.BrokerTypePaper:
		return paper.New(id, prices), nil
	case config.BrokerTypeAlpaca:
		return alpaca.New(alpaca.Config{
			ID:        id,
			APIKey:    bc.APIKey,
			APISecret: bc.APISecret,
			BaseURL:   bc.BaseURL,
			DataURL:   bc.DataURL,
			Logger:    named,
		})
	case config.BrokerTypeBinance:
		return binance.New(binance.Config{
			ID:         id,
			APIKey:     bc.APIKey,
			SecretKey:  bc.APISecret,
			UseTestnet: bc.Testnet,
			BaseURL:    bc.BaseURL,
			Logger:     named,
		})
	default:
		return nil, fmt.Errorf("unknown broker type %q", bc.Type)
	}
}

func setupGate(
	cfg *config.Config,
	logger *zap.Logger,
	sink audit.Sink,
	monitor *feed.Monitor,
	gw *gateway.Gateway,
	store storage.Store,
) (*gate.Gate, error) {
	limits, err := risk.New(&risk.Config{
		MaxQuantity: cfg.RiskMaxQuantity,
		MaxNotional: cfg.RiskMaxNotional,
		Blocklist:   cfg.RiskBlocklist,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create risk limits: %w", err)
	}

	var guardrails []gate.Guardrail
	if cfg.GateMaxQuantity > 0 {
		guardrails = append(guardrails, gate.MaxQuantity{Limit: cfg.GateMaxQuantity})
	}
	if cfg.GateMaxNotional > 0 {
		guardrails = append(guardrails, gate.MaxNotional{Limit: cfg.GateMaxNotional})
	}

	return gate.New(&gate.Config{
		Feed:          monitor,
		Broker:        gw,
		Risk:          limits,
		Store:         store,
		Audit:         sink,
		Logger:        logger,
		Mode:          types.ExecutionMode(cfg.ExecutionMode),
		Enabled:       cfg.ExecutionEnabled,
		Freshness:     cfg.GateFreshness,
		DriftBps:      cfg.GateDriftBps,
		IndexDriftBps: cfg.GateIndexDriftBps,
		IndexSymbols:  cfg.GateIndexSymbols,
		FeedScope:     gate.FeedScope(cfg.GateFeedScope),
		Guardrails:    guardrails,
		CallTimeout:   cfg.BrokerCallTimeout,
	})
}
