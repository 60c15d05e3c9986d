package server

import (
	"context"
	"errors"

	"GoldPull/internal/handler/ws"
	"GoldPull/internal/usecase"
	"GoldPull/pkg/config"
	xhttp "GoldPull/pkg/http"
	pkgkafka "GoldPull/pkg/kafka"
	applogger "GoldPull/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	engine     *usecase.PriceEngine
	collector  *usecase.FeedCollector
	alarms     *usecase.AlarmEvaluator
	hub        *ws.Hub
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	refresh    pkgkafka.MessageHandler
}

// New creates a new App instance with all dependencies. consumer, refresh and
// alarms may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.PriceEngine,
	collector *usecase.FeedCollector,
	alarms *usecase.AlarmEvaluator,
	hub *ws.Hub,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	refresh pkgkafka.MessageHandler,
) *App {
	return &App{
		cfg:        cfg,
		logger:     l.With("app"),
		engine:     engine,
		collector:  collector,
		alarms:     alarms,
		hub:        hub,
		httpServer: httpServer,
		consumer:   consumer,
		refresh:    refresh,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of them
// fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Engine.WarmStart {
		if err := a.engine.WarmStart(gctx); err != nil {
			a.logger.Warn("warm start failed, starting cold", applogger.Error(err))
		}
	}
	a.engine.Start(gctx)

	if a.consumer != nil && a.refresh != nil {
		a.consumer.RegisterHandler(a.refresh)
		if err := a.consumer.Start(gctx); err != nil {
			a.logger.Error("kafka consumer start failed", applogger.Error(err))
		} else {
			a.logger.Info("kafka consumer started", applogger.String("topic", a.refresh.Topic()))
		}
	}

	g.Go(a.httpServer.Start)
	g.Go(func() error {
		err := a.collector.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if a.alarms != nil && a.cfg.Alarms.Enabled {
		g.Go(func() error { return a.alarms.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		return a.shutdown()
	})

	err := g.Wait()
	a.logger.Info("shutdown complete")
	return err
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.collector.Shutdown(ctx); err != nil {
		a.logger.Warn("feed close error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.hub.Close()

	// The persist worker drains its queue once the run context is done.
	select {
	case <-a.engine.Done():
	case <-ctx.Done():
		a.logger.Warn("persist queue not drained before timeout")
	}
	return errors.Join(errs...)
}
