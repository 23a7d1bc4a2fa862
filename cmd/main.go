package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lendingrisk/internal/adapters/clickhouse"
	"lendingrisk/internal/adapters/config"
	"lendingrisk/internal/adapters/errors/noop"
	"lendingrisk/internal/adapters/errors/sentry"
	"lendingrisk/internal/adapters/kafka"
	"lendingrisk/internal/adapters/postgres"
	"lendingrisk/internal/adapters/redis"
	"lendingrisk/internal/adapters/subgraph"
	"lendingrisk/internal/adapters/telegram"
	"lendingrisk/internal/api"
	"lendingrisk/internal/api/health"
	"lendingrisk/internal/api/rest"
	"lendingrisk/internal/consumers"
	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/events"
	"lendingrisk/internal/metrics"
	chrepo "lendingrisk/internal/repository/clickhouse"
	pgrepo "lendingrisk/internal/repository/postgres"
	redisrepo "lendingrisk/internal/repository/redis"
	eventservice "lendingrisk/internal/services/event"
	healthfactorservice "lendingrisk/internal/services/healthfactor"
	reserveservice "lendingrisk/internal/services/reserve"
	"lendingrisk/internal/workers"
	"lendingrisk/internal/workers/riskanalysis"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

var version = "dev"

// Database holds the storage clients. ClickHouse is nil when disabled.
type Database struct {
	Postgres   *postgres.Client
	ClickHouse *clickhouse.Client
	Redis      *redis.Client
}

func (d *Database) Close(log *logger.Logger) {
	if d.ClickHouse != nil {
		if err := d.ClickHouse.Close(); err != nil {
			log.Warnw("Failed to close ClickHouse", "error", err)
		}
	}
	if err := d.Redis.Close(); err != nil {
		log.Warnw("Failed to close Redis", "error", err)
	}
	if err := d.Postgres.Close(); err != nil {
		log.Warnw("Failed to close PostgreSQL", "error", err)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	log.Infof("Starting %s %s in %s mode", cfg.App.Name, version, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := initDatabases(ctx, cfg, log)
	defer db.Close(log)

	metrics.RegisterStorageCollector(metrics.NewStorageCollector(log, db.Postgres.DB()))

	// storage
	analysisRepo := pgrepo.NewAnalysisRepository(db.Postgres.DB())
	reserveRepo := pgrepo.NewReserveSnapshotRepository(db.Postgres.DB())
	eventRepo := pgrepo.NewProtocolEventRepository(db.Postgres.DB())
	cache := redisrepo.NewAnalysisCache(db.Redis.Client())

	var history healthfactor.HistoryRepository
	if db.ClickHouse != nil {
		history = chrepo.NewDistributionRepository(db.ClickHouse.Conn())
	} else {
		history = pgrepo.NewDistributionRepository(db.Postgres.DB())
	}

	// data source
	source := subgraph.NewSource(subgraph.NewClient(subgraph.ClientConfig{
		APIKey:    cfg.Subgraph.APIKey,
		Timeout:   cfg.Subgraph.Timeout,
		RateLimit: cfg.Subgraph.RateLimit,
	}), cfg.Subgraph.PageSize, cfg.Subgraph.MaxRecords)

	// services
	var (
		publisher healthfactorservice.EventPublisher
		requester rest.AnalysisRequester
		notifier  healthfactorservice.Notifier
	)
	producer := initProducer(cfg, log)
	if producer != nil {
		p := events.NewPublisher(producer)
		publisher, requester = p, p
	}
	if n := initNotifier(cfg, log); n != nil {
		notifier = n
	}

	analysisService := healthfactorservice.NewService(
		healthfactor.NewEngine(cfg.Analysis.ReferenceSymbols),
		source, analysisRepo, history, cache, publisher, notifier,
		healthfactorservice.Config{
			Timeout:  cfg.Analysis.Timeout,
			LockTTL:  cfg.Analysis.LockTTL,
			CacheTTL: cfg.Redis.CacheTTL,
		},
	)
	reserveService := reserveservice.NewService(subgraph.Catalog{}, source, reserveRepo)
	eventService := eventservice.NewService(source, eventRepo, cfg.Subgraph.EventLookback)

	// workers
	scheduler := workers.NewScheduler(cfg.HTTP.ShutdownTimeout + cfg.Analysis.Timeout)
	scheduler.RegisterWorker(riskanalysis.NewHealthFactorAnalyzer(
		analysisService, cfg.Analysis.Chains, cfg.Workers.HealthFactorInterval, cfg.Workers.HealthFactorEnabled,
	))
	scheduler.RegisterWorker(riskanalysis.NewReserveSnapshotCollector(
		reserveService, cfg.Analysis.Chains, cfg.Workers.ReserveSnapshotInterval, cfg.Workers.ReserveSnapshotEnabled,
	))
	scheduler.RegisterWorker(riskanalysis.NewProtocolEventCollector(
		eventService, cfg.Analysis.Chains, cfg.Workers.ProtocolEventInterval, cfg.Workers.ProtocolEventEnabled,
	))

	// HTTP
	checks := map[string]health.Checker{
		"postgres": db.Postgres,
		"redis":    db.Redis,
	}
	if db.ClickHouse != nil {
		checks["clickhouse"] = db.ClickHouse
	}
	router := api.NewRouter(
		api.ServerConfig{ServiceName: cfg.App.Name, Version: version, RequestTimeout: cfg.HTTP.RequestTimeout},
		health.New(checks, scheduler, cfg.App.Name, version),
		rest.NewHandler(analysisService, reserveService, eventService, requester, cfg.Analysis.Chains),
	)
	server := api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTP.Addr(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, router)

	log.Info("System initialized")

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	consumerDone := make(chan struct{})
	if producer == nil {
		close(consumerDone)
	} else {
		requests := consumers.NewAnalysisRequestConsumer(
			kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers: cfg.Kafka.Brokers,
				GroupID: cfg.Kafka.GroupID,
				Topic:   kafka.TopicAnalysisRequests,
			}),
			analysisService, cfg.Analysis.Timeout, 0,
		)
		go func() {
			defer close(consumerDone)
			if err := requests.Start(ctx); err != nil {
				log.Errorw("Analysis request consumer stopped", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	waitForShutdown(serverErr, log)

	shutdown(cfg, cancel, server, scheduler, consumerDone, producer, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initDatabases connects and migrates the stores. Failures here are fatal.
func initDatabases(ctx context.Context, cfg *config.Config, log *logger.Logger) *Database {
	pg, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate PostgreSQL: %v", err)
	}

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	db := &Database{Postgres: pg, Redis: rdb}

	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.NewClient(cfg.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		if err := ch.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate ClickHouse: %v", err)
		}
		db.ClickHouse = ch
		log.Info("Distribution history stored in ClickHouse")
	} else {
		log.Info("ClickHouse disabled, distribution history stored in PostgreSQL")
	}

	return db
}

// initProducer returns nil when Kafka is disabled
func initProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled {
		log.Info("Kafka disabled, refresh requests run inline")
		return nil
	}
	log.Infow("Kafka enabled", "brokers", cfg.Kafka.Brokers)
	return kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
}

func initNotifier(cfg *config.Config, log *logger.Logger) *telegram.Notifier {
	if !cfg.Telegram.Enabled {
		return nil
	}
	bot, err := telegram.NewBot(telegram.Config{Token: cfg.Telegram.BotToken}, log)
	if err != nil {
		log.Warnw("Telegram disabled: failed to create bot", "error", err)
		return nil
	}
	log.Infow("Telegram digests enabled", "chats", len(cfg.Telegram.ChatIDs), "threshold", cfg.Telegram.AlertThreshold)
	return telegram.NewNotifier(bot, cfg.Telegram.ChatIDs, cfg.Telegram.AlertThreshold)
}

// waitForShutdown blocks until a signal arrives or the HTTP server fails
func waitForShutdown(serverErr <-chan error, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			log.Errorw("HTTP server failed", "error", err)
		}
	}
}

// shutdown stops intake first, then background work, then flushes
func shutdown(
	cfg *config.Config,
	cancel context.CancelFunc,
	server *api.Server,
	scheduler *workers.Scheduler,
	consumerDone <-chan struct{},
	producer *kafka.Producer,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer done()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP shutdown incomplete", "error", err)
	}

	cancel()

	if err := scheduler.Stop(); err != nil {
		log.Warnw("Worker shutdown incomplete", "error", err)
	}

	select {
	case <-consumerDone:
	case <-time.After(cfg.Analysis.Timeout):
		log.Warn("Analysis request consumer did not stop in time")
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnw("Failed to close Kafka producer", "error", err)
		}
	}

	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Warnw("Failed to flush error tracker", "error", err)
	}

	log.Info("Shutdown complete")
}
