package di

import (
	"context"
	"fmt"
	"time"

	"GoldPull/internal/domain/repository"
	dservice "GoldPull/internal/domain/service"
	"GoldPull/internal/handler/api"
	"GoldPull/internal/handler/ws"
	mid "GoldPull/internal/middleware"
	internalrepo "GoldPull/internal/repository"
	icache "GoldPull/internal/service/cache"
	"GoldPull/internal/service/feed"
	"GoldPull/internal/service/pricing"
	"GoldPull/internal/service/push"
	"GoldPull/internal/service/ratelimit"
	"GoldPull/internal/service/telegram"
	"GoldPull/internal/usecase"
	"GoldPull/pkg/cache"
	pkgch "GoldPull/pkg/clickhouse"
	"GoldPull/pkg/config"
	xhttp "GoldPull/pkg/http"
	pkgkafka "GoldPull/pkg/kafka"
	"GoldPull/pkg/logger"
	"GoldPull/pkg/metrics"
	"GoldPull/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Catalog serves coefficients and derived definitions from one store.
type Catalog interface {
	repository.CoefficientRepository
	repository.DerivedRepository
}

const historyTable = "price_history"

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvidePostgres opens the catalog database. It returns a nil DB when
// postgres is disabled.
func ProvidePostgres(cfg *config.Config, l *logger.Logger) (*gorm.DB, func(), error) {
	if !cfg.Postgres.Enabled {
		l.Warn("postgres disabled, using in-memory catalog and alarms")
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := internalrepo.OpenPostgres(ctx, internalrepo.PostgresOptions{
		DSN:          cfg.Postgres.DSN,
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
		ConnMaxLife:  cfg.Postgres.ConnMaxLife,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.AutoMigrate {
		if err := internalrepo.Migrate(ctx, db); err != nil {
			_ = internalrepo.ClosePostgres(db)
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}

	cleanup := func() {
		if err := internalrepo.ClosePostgres(db); err != nil {
			l.Warn("postgres close error", logger.Error(err))
		}
	}
	return db, cleanup, nil
}

// ProvideCatalog picks the coefficient and derived definition store.
func ProvideCatalog(db *gorm.DB) Catalog {
	if db == nil {
		return internalrepo.NewMemoryCatalog()
	}
	return internalrepo.NewCatalogRepository(db)
}

// ProvideAlarmRepository picks the alarm store.
func ProvideAlarmRepository(db *gorm.DB) repository.AlarmRepository {
	if db == nil {
		return internalrepo.NewMemoryAlarms()
	}
	return internalrepo.NewAlarmRepository(db)
}

// ProvideProjectionStore keeps the cache projections in Redis behind a short
// in-process L1, or in memory when Redis is disabled.
func ProvideProjectionStore(cfg *config.Config, l *logger.Logger) (repository.ProjectionStore, func(), error) {
	if !cfg.Redis.Enabled {
		l.Warn("redis disabled, cache projections are process-local")
		mem := cache.NewMemoryCache(cache.WithMemoryMaxSize(64))
		return internalrepo.NewCacheProjectionStore(mem, nil, 0), func() { _ = mem.Close() }, nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	layered := cache.NewLayeredCache(rc, time.Second, cache.WithMemoryMaxSize(64))

	cleanup := func() {
		if err := layered.Close(); err != nil {
			l.Warn("redis close error", logger.Error(err))
		}
	}
	return internalrepo.NewCacheProjectionStore(rc, layered, 0), cleanup, nil
}

// ProvideClickHouseClient creates a ClickHouse client and the history table.
// It returns a nil client when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *logger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	schema := internalrepo.HistorySchema(cfg.ClickHouse.Database, historyTable, cfg.ClickHouse.HistoryTTLDays)
	if err := client.InitSchema(ctx, schema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideHistoryStore picks the price history store.
func ProvideHistoryStore(cfg *config.Config, ch *pkgch.Client) (repository.HistoryStore, error) {
	var store repository.HistoryStore
	if ch == nil {
		store = internalrepo.NewMemoryHistory(time.Duration(cfg.ClickHouse.HistoryTTLDays) * 24 * time.Hour)
	} else {
		store = internalrepo.NewClickHouseHistory(ch.DB(), cfg.ClickHouse.Database+"."+historyTable)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer and attaches the error log
// collector to it. It returns a nil producer when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	l.AddCollector(&logger.CollectionConfig{
		TimeInterval: 30 * time.Second,
		Topic:        cfg.Kafka.LogTopic,
		Publisher:    producer,
	})

	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideEventPublisher mirrors snapshots and alarms to Kafka when a producer
// exists.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEvents{}
	}
	return internalrepo.NewKafkaEvents(producer, cfg.Kafka.SnapshotTopic, cfg.Kafka.AlarmTopic)
}

// ProvideHub creates the websocket broadcaster.
func ProvideHub(m repository.Metrics, l *logger.Logger) *ws.Hub {
	return ws.NewHub(ws.DefaultOptions(), m, l)
}

func ProvideCoefficientResolver(catalog Catalog, m repository.Metrics, l *logger.Logger) *pricing.CoefficientResolver {
	return pricing.NewCoefficientResolver(catalog, m, l)
}

func ProvideDerivedCalculator(catalog Catalog, m repository.Metrics, l *logger.Logger) *pricing.DerivedCalculator {
	return pricing.NewDerivedCalculator(catalog, m, l)
}

// ProvidePriceEngine creates the pricing engine.
func ProvidePriceEngine(
	cfg *config.Config,
	coeffs *pricing.CoefficientResolver,
	derived *pricing.DerivedCalculator,
	hub *ws.Hub,
	projections repository.ProjectionStore,
	history repository.HistoryStore,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.PriceEngine {
	return usecase.NewPriceEngine(coeffs, derived, hub, projections, history, events, m, l,
		usecase.WithPersistQueue(cfg.Engine.PersistQueue),
		usecase.WithPersistTimeout(cfg.Engine.PersistTimeout),
	)
}

// ProvideFeedAdapter picks the provider framing.
func ProvideFeedAdapter(cfg *config.Config) feed.Adapter {
	return feed.NewAdapter(cfg.Feed.Protocol, cfg.Feed.Channels, cfg.Feed.InspectUnknownChannels)
}

// ProvideFeedClient creates the upstream websocket stream.
func ProvideFeedClient(cfg *config.Config, adapter feed.Adapter, l *logger.Logger) *feed.Client {
	backoff := feed.DefaultBackoff()
	backoff.Min = cfg.Feed.ReconnectMin
	backoff.Max = cfg.Feed.ReconnectMax

	return feed.NewClient(feed.Options{
		URL:               cfg.Feed.URL,
		Origin:            cfg.Feed.Origin,
		SubscribeMessages: cfg.Feed.SubscribeMessages,
		Backoff:           backoff,
		MaxRetries:        cfg.Feed.MaxRetries,
		PingInterval:      cfg.Feed.PingInterval,
		ReadTimeout:       cfg.Feed.ReadTimeout,
	}, adapter, l)
}

// ProvideTickPipeline builds the normalisation stage between the feed and the engine.
func ProvideTickPipeline(cfg *config.Config, adapter feed.Adapter, engine *usecase.PriceEngine, m repository.Metrics, l *logger.Logger) *mid.TickPipeline {
	return mid.NewTickPipeline(adapter, engine, m, l, mid.WithMinInterval(cfg.Feed.MinTickInterval))
}

func ProvideFeedCollector(stream *feed.Client, pipe *mid.TickPipeline, m repository.Metrics, l *logger.Logger) *usecase.FeedCollector {
	return usecase.NewFeedCollector(stream, pipe, m, l)
}

// ProvideAlarmNotifier combines device push with the optional Telegram ops channel.
func ProvideAlarmNotifier(cfg *config.Config, m repository.Metrics, l *logger.Logger) (dservice.AlarmNotifier, error) {
	var notifier dservice.Notifier = push.Nop{}
	if cfg.Push.Enabled {
		notifier = push.NewFCM(cfg.Push.CredentialsFile, cfg.Push.ProjectID, l)
	}

	if !cfg.Telegram.Enabled {
		return push.NewDispatcher(notifier, nil, m, l), nil
	}
	tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return push.NewDispatcher(notifier, tg, m, l), nil
}

func ProvideAlarmEvaluator(
	cfg *config.Config,
	alarms repository.AlarmRepository,
	engine *usecase.PriceEngine,
	notifier dservice.AlarmNotifier,
	hub *ws.Hub,
	events repository.EventPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.AlarmEvaluator {
	return usecase.NewAlarmEvaluator(alarms, engine, notifier, hub, events, m, l, cfg.Alarms.Interval)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML. It
// returns nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRefreshHandler handles refresh commands from the refresh topic.
func ProvideRefreshHandler(cfg *config.Config, engine *usecase.PriceEngine, m repository.Metrics, l *logger.Logger) pkgkafka.MessageHandler {
	return usecase.NewKafkaRefreshHandler(cfg.Kafka.RefreshTopic, engine, m, l)
}

func ProvidePricesHandler(
	cfg *config.Config,
	l *logger.Logger,
	engine *usecase.PriceEngine,
	collector *usecase.FeedCollector,
	projections repository.ProjectionStore,
	history repository.HistoryStore,
) *api.PricesHandler {
	limiter := ratelimit.New(cfg.Server.RefreshRPS, cfg.Server.RefreshBurst)
	return api.NewPricesHandler(l, engine, collector, projections, history, limiter, icache.NewTTLCache(1024))
}

// ProvideHTTPServer mounts the REST API and the websocket endpoint.
func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, prices *api.PricesHandler, hub *ws.Hub) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return xhttp.NewServer(l, []xhttp.Handler{prices, hub}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	engine *usecase.PriceEngine,
	collector *usecase.FeedCollector,
	alarms *usecase.AlarmEvaluator,
	hub *ws.Hub,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	refresh pkgkafka.MessageHandler,
) *server.App {
	if consumer == nil {
		refresh = nil
	}
	return server.New(cfg, l, engine, collector, alarms, hub, httpServer, consumer, refresh)
}
