package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"airquality-server/internal/utils"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	store  Pinger
	logger *slog.Logger
}

func NewHealthchecker(store Pinger, logger *slog.Logger) healthchecker {
	return &healthcheckerImpl{store: store, logger: logger}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("failed to check store connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check store connectivity")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, store Pinger, logger *slog.Logger) {
	healthchecker := NewHealthchecker(store, logger)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
