package main

import (
	"github.com/controlhub/realtime-gateway/internal/config"
	"github.com/controlhub/realtime-gateway/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
