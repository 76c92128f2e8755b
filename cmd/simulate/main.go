package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"airquality-server/internal/config"
	"airquality-server/internal/logging"
	"airquality-server/internal/mqtt"
	"airquality-server/internal/simulate"
)

var version = "dev"
var appName = "airquality-simulate"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	publisher, err := mqtt.NewPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Disconnect()

	if err := publisher.Connect(ctx); err != nil {
		return err
	}

	logger.Info("publishing simulated readings",
		"topic", cfg.MQTTTopic,
		"interval", cfg.SimulateInterval,
	)
	gen := simulate.NewGenerator(uint64(time.Now().UnixNano()), nil)
	return simulate.Run(ctx, gen, cfg.SimulateInterval, publisher.Publish, logger)
}
