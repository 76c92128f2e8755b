package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"airquality-server/internal/modules/airquality/live"
	"airquality-server/internal/modules/airquality/types"
	"airquality-server/internal/modules/airquality/views"
	"airquality-server/internal/utils"
)

// stateEvent is the payload of the "state" stream event.
type stateEvent struct {
	Loading bool               `json:"loading"`
	Error   string             `json:"error,omitempty"`
	Reading *types.LiveReading `json:"reading,omitempty"`
	HTML    string             `json:"html"`
}

// gaugeEvent is one animation frame of the gauge.
type gaugeEvent struct {
	Percent int    `json:"percent"`
	HTML    string `json:"html"`
}

// handleLiveStream holds one live projection for the lifetime of the
// connection and streams its state and gauge frames as server-sent events.
func (c *airQualityControllerImpl) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ctx := r.Context()

	proj := live.NewProjection(c.store,
		live.WithLogger(c.logger),
		live.WithClock(c.clock),
		live.WithAnimationDuration(c.cfg.AnimationDuration),
		live.WithStartPolicy(c.cfg.AnimationStart),
	)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sess, err := proj.Activate(ctx)
	if err != nil {
		if werr := c.writeState(w, proj.State(), proj.GaugeValue()); werr != nil {
			c.logger.Debug("live stream: write failed", "error", werr)
		}
		flusher.Flush()
		return
	}
	defer sess.Release()

	c.logger.Debug("live stream opened", "remote", r.RemoteAddr)
	defer c.logger.Debug("live stream closed", "remote", r.RemoteAddr)

	if err := c.writeState(w, proj.State(), proj.GaugeValue()); err != nil {
		return
	}
	flusher.Flush()

	frames := time.NewTicker(c.cfg.FrameInterval)
	defer frames.Stop()
	keepAlive := time.NewTicker(c.cfg.KeepAlive)
	defer keepAlive.Stop()

	lastFrame := proj.GaugeValue()
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case st := <-proj.Updates():
			err = c.writeState(w, st, proj.GaugeValue())
		case <-frames.C:
			v := proj.GaugeValue()
			if !proj.Animating() && v == lastFrame {
				continue
			}
			lastFrame = v
			err = c.writeGauge(w, v)
		case <-keepAlive.C:
			_, err = io.WriteString(w, ": ping\n\n")
		}
		if err != nil {
			c.logger.Debug("live stream: write failed", "error", err)
			return
		}
		flusher.Flush()
	}
}

func (c *airQualityControllerImpl) writeState(w io.Writer, st live.State, gaugeValue int) error {
	var buf bytes.Buffer
	data := views.NewLiveData(st.Reading, st.Loading, st.Err, gaugeValue, c.cfg.Location)
	if err := views.RenderLivePartial(&buf, data); err != nil {
		return err
	}
	ev := stateEvent{Loading: st.Loading, Reading: st.Reading, HTML: buf.String()}
	if st.Err != nil {
		ev.Error = data.Error
	}
	return writeEvent(w, "state", ev)
}

func (c *airQualityControllerImpl) writeGauge(w io.Writer, percent int) error {
	var buf bytes.Buffer
	if err := views.RenderGaugePartial(&buf, views.NewGauge(percent)); err != nil {
		return err
	}
	return writeEvent(w, "gauge", gaugeEvent{Percent: percent, HTML: buf.String()})
}

func writeEvent(w io.Writer, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
