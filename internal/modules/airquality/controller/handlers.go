package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"airquality-server/internal/modules/airquality/export"
	"airquality-server/internal/modules/airquality/history"
	"airquality-server/internal/modules/airquality/types"
	"airquality-server/internal/modules/airquality/views"
	"airquality-server/internal/utils"
)

func (c *airQualityControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := &views.DashboardPage{
		Title:  "Live",
		Active: "live",
		Live:   views.NewLiveData(nil, true, nil, 0, c.cfg.Location),
	}
	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		c.logger.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *airQualityControllerImpl) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	readings, err := c.history.FetchRecent(r.Context(), c.cfg.HistoryLimit)
	data := views.NewHistoryData(readings, false, c.cfg.Location)
	if err != nil {
		data.Notice = "Unable to load readings."
		data.NoticeIsError = true
	}
	var buf bytes.Buffer
	page := &views.HistoryPage{Title: "History", Active: "history", History: data}
	if err := views.RenderHistory(&buf, page); err != nil {
		c.logger.Error("history template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

// refreshHistory collapses concurrent refreshes into one store read. The
// shared read is detached from any single caller's cancellation.
func (c *airQualityControllerImpl) refreshHistory(ctx context.Context) ([]types.HistoryReading, error) {
	v, err, shared := c.refresh.Do("history", func() (any, error) {
		return c.history.Refresh(context.WithoutCancel(ctx))
	})
	if shared {
		c.logger.Debug("history refresh shared")
	}
	readings, _ := v.([]types.HistoryReading)
	return readings, err
}

func (c *airQualityControllerImpl) handleHistoryRefresh(w http.ResponseWriter, r *http.Request) {
	readings, err := c.refreshHistory(r.Context())
	data := views.NewHistoryData(readings, false, c.cfg.Location)
	if err != nil {
		data.Notice = "Unable to refresh readings."
		data.NoticeIsError = true
	}
	c.writeHistoryPartial(w, data)
}

func (c *airQualityControllerImpl) handleHistoryDeleteRequest(w http.ResponseWriter, r *http.Request) {
	conf := c.history.RequestDeleteAll()
	var buf bytes.Buffer
	if err := views.RenderConfirmPartial(&buf, &views.ConfirmData{Token: conf.Token, ExpiresAt: conf.ExpiresAt}); err != nil {
		c.logger.Error("confirm partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *airQualityControllerImpl) handleHistoryDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	deleted, err := c.history.ConfirmDeleteAll(r.Context(), token)
	state := c.history.State()
	data := views.NewHistoryData(state.Readings, false, c.cfg.Location)
	switch {
	case err == nil:
		data.Notice = fmt.Sprintf("Deleted %d readings", deleted)
	case errors.Is(err, history.ErrConfirmationRequired):
		data.Notice = "Delete request expired. Please try again."
		data.NoticeIsError = true
	default:
		data.Notice = "Failed to delete readings"
		if deleted > 0 {
			data.Notice = fmt.Sprintf("Failed to delete readings (%d deleted)", deleted)
		}
		data.NoticeIsError = true
	}
	c.writeHistoryPartial(w, data)
}

func (c *airQualityControllerImpl) handleHistoryDeleteCancel(w http.ResponseWriter, r *http.Request) {
	c.history.CancelDeleteAll(r.FormValue("token"))
	state := c.history.State()
	c.writeHistoryPartial(w, views.NewHistoryData(state.Readings, false, c.cfg.Location))
}

func (c *airQualityControllerImpl) writeHistoryPartial(w http.ResponseWriter, data *views.HistoryData) {
	var buf bytes.Buffer
	if err := views.RenderHistoryPartial(&buf, data); err != nil {
		c.logger.Error("history partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *airQualityControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	readings, err := history.Load(r.Context(), c.store, 1, c.logger)
	if err != nil {
		c.logger.Error("latest reading: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load reading")
		return
	}
	if len(readings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.WriteJSON(w, http.StatusOK, readings[0])
}

func (c *airQualityControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimitQuery(r, c.cfg.HistoryLimit, maxPageLimit)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, err := history.Load(r.Context(), c.store, limit, c.logger)
	if err != nil {
		c.logger.Error("readings: query failed", "limit", limit, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, readings)
}

func (c *airQualityControllerImpl) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimitQuery(r, 0, maxExportLimit)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, err := history.Load(r.Context(), c.store, limit, c.logger)
	if err != nil {
		c.logger.Error("export: query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, readings, c.cfg.Location); err != nil {
		c.logger.Error("export: encode failed", "format", format, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to export readings")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(time.Now().In(c.cfg.Location))))
	if _, err := w.Write(buf.Bytes()); err != nil {
		c.logger.Error("export: write response failed", "error", err)
	}
}

func (c *airQualityControllerImpl) handleCreateDeleteRequest(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusCreated, c.history.RequestDeleteAll())
}

func (c *airQualityControllerImpl) handleConfirmDeleteRequest(w http.ResponseWriter, r *http.Request) {
	deleted, err := c.history.ConfirmDeleteAll(r.Context(), r.PathValue("token"))
	if errors.Is(err, history.ErrConfirmationRequired) {
		utils.WriteError(w, http.StatusNotFound, "unknown or expired delete request")
		return
	}
	if err != nil {
		utils.WriteErrorDetails(w, http.StatusInternalServerError, "failed to delete readings", map[string]any{"deleted": deleted})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (c *airQualityControllerImpl) handleCancelDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if !c.history.CancelDeleteAll(r.PathValue("token")) {
		utils.WriteError(w, http.StatusNotFound, "unknown delete request")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
