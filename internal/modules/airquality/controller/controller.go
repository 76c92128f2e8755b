package controller

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"airquality-server/internal/modules/airquality/animate"
	"airquality-server/internal/modules/airquality/history"
	"airquality-server/internal/modules/airquality/store"
)

// Store is the record store capability the controller is built on.
type Store interface {
	store.Subscriber
	store.Querier
	store.Deleter
}

type Config struct {
	Location          *time.Location
	HistoryLimit      int
	ConfirmTTL        time.Duration
	// AnimationDuration is the gauge sweep length; zero disables it.
	AnimationDuration time.Duration
	AnimationStart    animate.StartPolicy
	// FrameInterval spaces gauge frames on the live stream.
	FrameInterval time.Duration
	// KeepAlive spaces comment lines that keep idle streams open.
	KeepAlive time.Duration
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = history.DefaultLimit
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = 50 * time.Millisecond
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 15 * time.Second
	}
	return c
}

type AirQualityController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type airQualityControllerImpl struct {
	store   Store
	history *history.Projection
	cfg     Config
	logger  *slog.Logger
	clock   animate.Clock
	refresh singleflight.Group
}

func NewAirQualityController(s Store, cfg Config, logger *slog.Logger) AirQualityController {
	return newController(s, cfg, logger, animate.RealClock{})
}

func newController(s Store, cfg Config, logger *slog.Logger, clock animate.Clock) *airQualityControllerImpl {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &airQualityControllerImpl{
		store: s,
		history: history.NewProjection(s,
			history.WithLogger(logger),
			history.WithLimit(cfg.HistoryLimit),
			history.WithConfirmTTL(cfg.ConfirmTTL),
		),
		cfg:    cfg,
		logger: logger,
		clock:  clock,
	}
}

func (c *airQualityControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", c.handleDashboard)
	mux.HandleFunc("GET /live/stream", c.handleLiveStream)

	mux.HandleFunc("GET /history", c.handleHistoryPage)
	mux.HandleFunc("POST /history/refresh", c.handleHistoryRefresh)
	mux.HandleFunc("POST /history/delete", c.handleHistoryDeleteRequest)
	mux.HandleFunc("POST /history/delete/confirm", c.handleHistoryDeleteConfirm)
	mux.HandleFunc("POST /history/delete/cancel", c.handleHistoryDeleteCancel)

	mux.HandleFunc("GET /api/v1/readings/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/readings", c.handleReadings)
	mux.HandleFunc("GET /api/v1/readings/export", c.handleExport)
	mux.HandleFunc("POST /api/v1/readings/delete-requests", c.handleCreateDeleteRequest)
	mux.HandleFunc("POST /api/v1/readings/delete-requests/{token}/confirm", c.handleConfirmDeleteRequest)
	mux.HandleFunc("DELETE /api/v1/readings/delete-requests/{token}", c.handleCancelDeleteRequest)
}
