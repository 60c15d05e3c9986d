//go:build wireinject
// +build wireinject

package di

import (
	"GoldPull/pkg/config"
	"GoldPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application with a
// cleanup that closes the infrastructure clients.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgres,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideCatalog,
		ProvideAlarmRepository,
		ProvideProjectionStore,
		ProvideHistoryStore,
		ProvideEventPublisher,

		// Services
		ProvideCoefficientResolver,
		ProvideDerivedCalculator,
		ProvideFeedAdapter,
		ProvideFeedClient,
		ProvideAlarmNotifier,

		// Use cases
		ProvidePriceEngine,
		ProvideTickPipeline,
		ProvideFeedCollector,
		ProvideAlarmEvaluator,
		ProvideRefreshHandler,

		// Transport
		ProvideHub,
		ProvidePricesHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
