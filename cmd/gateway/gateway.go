package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/controlhub/realtime-gateway/internal/automation"
	"github.com/controlhub/realtime-gateway/internal/config"
	"github.com/controlhub/realtime-gateway/internal/db"
	"github.com/controlhub/realtime-gateway/internal/hub"
	"github.com/controlhub/realtime-gateway/internal/mq"
	"github.com/controlhub/realtime-gateway/internal/store"
	"github.com/controlhub/realtime-gateway/internal/synthetic"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startGateway(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	server *hub.Server,
	engine *automation.Engine,
) {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Handler(),
	}

	engineCtx, engineCancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting websocket gateway",
				zap.Int("port", cfg.Server.Port),
				zap.String("path", cfg.Server.WSPath),
			)
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()

			if cfg.Automation.Enabled {
				logger.Info("starting automation engine",
					zap.Duration("poll_interval", cfg.Automation.PollInterval))
				go engine.Run(engineCtx)
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			engineCancel()
			server.Close()
			shutdownCtx, cancel := context.WithTimeout(stopCtx, 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down http server", zap.Error(err))
				return err
			}
			logger.Info("gateway stopped gracefully")
			return nil
		},
	})
}

// ProvideDBPool creates the database pool backing the event store when
// DATABASE_URL is set; without it the gateway runs on the in-memory
// store and nothing survives a restart.
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	if cfg.Database.URL == "" {
		logger.Info("DATABASE_URL not set, events will be kept in memory only")
		return nil, nil
	}
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideEventStore exposes the event store behind its interface
func ProvideEventStore(pool *db.Pool) store.EventStore {
	if pool == nil {
		return store.NewMemory()
	}
	return store.NewPostgres(pool)
}

// ProvideRegistry creates the connection registry owned by this process
func ProvideRegistry() *hub.Registry {
	return hub.NewRegistry()
}

// ProvideBroadcaster creates the fan-out broadcaster
func ProvideBroadcaster(registry *hub.Registry, logger *zap.Logger) *hub.Broadcaster {
	return hub.NewBroadcaster(registry, logger)
}

// ProvideTokenVerifier builds the auth verifier from the configured secret
func ProvideTokenVerifier(cfg *config.Config) hub.TokenVerifier {
	return hub.NewStaticVerifier(cfg.Server.AuthToken)
}

// ProvideGenerator creates the synthetic telemetry source
func ProvideGenerator(cfg *config.Config, events store.EventStore, broadcaster *hub.Broadcaster, logger *zap.Logger) *synthetic.Generator {
	return synthetic.NewGenerator(synthetic.Config{
		TelemetryInterval: cfg.Telemetry.Interval,
		AlertInterval:     cfg.Telemetry.AlertInterval,
		AlertProbability:  cfg.Telemetry.AlertProbability,
		Devices:           cfg.Telemetry.Devices,
	}, events, broadcaster, logger)
}

// ProvideHubServer wires the session machinery
func ProvideHubServer(
	cfg *config.Config,
	registry *hub.Registry,
	broadcaster *hub.Broadcaster,
	verifier hub.TokenVerifier,
	generator *synthetic.Generator,
	logger *zap.Logger,
) *hub.Server {
	return hub.NewServer(hub.Options{
		Path:        cfg.Server.WSPath,
		AuthTimeout: cfg.Server.AuthTimeout,
	}, registry, broadcaster, verifier, generator.Run, logger)
}

// ProvideAlertNotifier connects the notification bus when RABBITMQ_URL
// is set; without it the gateway runs with the side channel disabled.
func ProvideAlertNotifier(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (automation.Notifier, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("RABBITMQ_URL not set, alert notifications disabled")
		return nil, nil
	}

	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.NotifyExchange, cfg.RabbitMQ.NotifyKeyPrefix, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})

	return publisher, nil
}

// ProvideAutomationEngine creates the rule engine
func ProvideAutomationEngine(
	cfg *config.Config,
	events store.EventStore,
	broadcaster *hub.Broadcaster,
	notifier automation.Notifier,
	logger *zap.Logger,
) (*automation.Engine, error) {
	rules, err := automation.ParseRules(cfg.Automation.RulesJSON)
	if err != nil {
		return nil, err
	}

	return automation.NewEngine(automation.Config{
		PollInterval: cfg.Automation.PollInterval,
		Window:       cfg.Automation.Window,
		Cooldown:     cfg.Automation.Cooldown,
		Rules:        rules,
	}, events, broadcaster, notifier, logger), nil
}
