package main

import (
	"context"

	"github.com/controlhub/realtime-gateway/internal/config"
	"github.com/controlhub/realtime-gateway/internal/mq"
	"github.com/controlhub/realtime-gateway/internal/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startNotifier(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
) error {
	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}

	notifier := notify.NewNotifier(cfg.Notify.Recipient, logger)

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.NotifyQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.NotifyExchange,
		RoutingKey:       cfg.RabbitMQ.NotifyBindingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: notifier.ProcessMessage,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting notifier consumer",
				zap.String("queue", cfg.RabbitMQ.NotifyQueue),
				zap.String("binding", cfg.RabbitMQ.NotifyBindingKey),
			)
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("notifier stopped gracefully")
			return nil
		},
	})

	return nil
}
