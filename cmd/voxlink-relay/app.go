package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"voxlink/pkg/config"
	"voxlink/pkg/observability"
	"voxlink/pkg/protocol/codec"
	"voxlink/pkg/relay"
	"voxlink/pkg/transport"
	"voxlink/pkg/transport/mem"
	"voxlink/pkg/transport/quic"
	"voxlink/pkg/transport/tcp"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("voxlink-relay started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	tr, err := transportByKind(cfg.Relay.Transport)
	if err != nil {
		zap.L().Error("transport init failed", zap.Error(err))
		return 1
	}
	wire := codec.NewRegistry().Get(cfg.Wire)
	if wire == nil {
		zap.L().Error("unknown wire codec", zap.String("wire", cfg.Wire))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := relay.New(cfg.Relay, tr, wire)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Error("relay failed", zap.Error(err))
		return 1
	}
	zap.L().Info("voxlink-relay stopped")
	return 0
}

func transportByKind(kind string) (transport.Transport, error) {
	switch kind {
	case "tcp":
		return tcp.New(), nil
	case "quic":
		return quic.New(), nil
	case "mem":
		return mem.Default, nil
	default:
		return nil, errors.New("unknown transport kind: " + kind)
	}
}
