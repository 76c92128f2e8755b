package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"airquality-server/internal/config"
	"airquality-server/internal/db"
	"airquality-server/internal/httpapi"
	"airquality-server/internal/modules/airquality"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/store/memstore"
	"airquality-server/internal/modules/airquality/store/pgstore"
	"airquality-server/internal/modules/airquality/store/sqlitestore"
	"airquality-server/internal/modules/airquality/views"
	"airquality-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"storeBackend", cfg.StoreBackend,
		"sqlitePath", cfg.SQLitePath,
		"maxOpenConns", cfg.MaxOpenConns,
		"maxIdleConns", cfg.MaxIdleConns,
		"connMaxLifetime", cfg.ConnMaxLifetime,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"displayTimezone", cfg.DisplayTimezone.String(),
		"historyLimit", cfg.HistoryLimit,
		"deleteBatchSize", cfg.DeleteBatchSize,
	)

	recordStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := views.LoadTemplates(); err != nil {
		return err
	}
	mux := httpapi.NewMux(recordStore, logger)
	airquality.RegisterFeature(mux, recordStore, cfg, logger)

	var mqttSubscriber *mqtt.Subscriber
	if cfg.MQTTEnabled {
		mqttSubscriber, err = mqtt.NewSubscriber(cfg, logger)
		if err != nil {
			return err
		}
		// The handler must be set before Connect: the broker may deliver
		// queued messages right after CONNACK.
		airquality.RegisterMQTTHandler(mqttSubscriber, recordStore, logger)

		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = mqttSubscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux, logger)
	// Requests inherit ctx so open event streams end on shutdown.
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if mqttSubscriber != nil {
		logger.Info("mqtt disconnecting")
		mqttSubscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// openStore builds the configured record store. The returned func releases
// everything the store holds.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.RecordStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		s := memstore.New(logger, memstore.WithMaxBatchSize(cfg.DeleteBatchSize))
		logger.Warn("using in-memory store; readings are lost on exit")
		return s, func() { _ = s.Close() }, nil

	case config.BackendPostgres:
		s, err := pgstore.Connect(ctx, cfg.PostgresDSN, logger, cfg.DeleteBatchSize)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("postgres connection successful")
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("postgres close", "error", err)
			}
		}, nil

	case config.BackendSQLite:
		dbConn, err := db.Open(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, dbConn, logger); err != nil {
			_ = db.Close(dbConn)
			return nil, nil, err
		}
		s := sqlitestore.New(dbConn, logger, cfg.DeleteBatchSize)
		if err := s.Ping(ctx); err != nil {
			_ = db.Close(dbConn)
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		logger.Info("database connection successful")
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("store close", "error", err)
			}
			if err := db.Close(dbConn); err != nil {
				logger.Error("db close", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
