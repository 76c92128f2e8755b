package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"airquality-server/internal/config"
)

// New returns the process logger writing to stdout. Development builds get
// colored tint output; release builds log JSON tagged with the version,
// environment and store backend so records from several instances can be
// told apart.
func New(cfg config.Config, version string, appName string) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, version, appName)
}

func NewWithWriter(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName, "store", cfg.StoreBackend)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	attrs := []any{
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"store", cfg.StoreBackend,
	}
	if cfg.MQTTEnabled {
		attrs = append(attrs, "mqtt_topic", cfg.MQTTTopic)
	}
	return slog.New(h).With(attrs...)
}
