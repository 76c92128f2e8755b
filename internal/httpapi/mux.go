package httpapi

import (
	"log/slog"
	"net/http"
)

func NewMux(store Pinger, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	registerHealthcheck(mux, store, logger)
	return mux
}
