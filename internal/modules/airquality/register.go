package airquality

import (
	"log/slog"
	"net/http"
	"time"

	"airquality-server/internal/config"
	"airquality-server/internal/modules/airquality/animate"
	"airquality-server/internal/modules/airquality/controller"
	"airquality-server/internal/modules/airquality/ingest"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/mqtt"
)

func RegisterFeature(mux *http.ServeMux, s store.RecordStore, cfg config.Config, logger *slog.Logger) {
	ctrl := controller.NewAirQualityController(s, ControllerConfig(cfg), logger)
	ctrl.RegisterRoutes(mux)
}

// ControllerConfig maps process configuration onto the HTTP controller.
func ControllerConfig(cfg config.Config) controller.Config {
	start := animate.FromZero
	if cfg.GaugeAnimationStart == config.AnimationStartCurrent {
		start = animate.FromCurrent
	}
	loc := cfg.DisplayTimezone
	if loc == nil {
		loc = time.UTC
	}
	return controller.Config{
		Location:          loc,
		HistoryLimit:      cfg.HistoryLimit,
		ConfirmTTL:        cfg.DeleteConfirmTTL,
		AnimationDuration: cfg.GaugeAnimationDuration,
		AnimationStart:    start,
	}
}

// RegisterMQTTHandler stores every document received by subscriber.
func RegisterMQTTHandler(subscriber mqtt.MQTTSubscriber, w store.Writer, logger *slog.Logger) {
	bridge := ingest.NewBridge(w, ingest.WithLogger(logger))
	subscriber.SetMessageHandler(bridge.Handle)
}
