// Package httpapi exposes the channel menu, plots and ingest controls over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"waveplot/internal/ingest"
	"waveplot/internal/waveform"

	"github.com/go-chi/chi/v5"
)

const pngContentType = "image/png"

// Default plot size when the request gives none.
const (
	DefaultPlotWidth  = 800
	DefaultPlotHeight = 600
)

// Handler serves waveplot HTTP endpoints using go-chi.
type Handler struct {
	ctrl    *ingest.Controller
	mgr     *waveform.Manager
	renders *waveform.RenderCache
	queue   *ingest.QueueClient
	log     *slog.Logger

	width, height int
}

// Options configures optional Handler collaborators.
type Options struct {
	// Queue enables POST /packets. Nil when another transport feeds ingest.
	Queue *ingest.QueueClient
	// PlotWidth and PlotHeight are the default plot size; zero takes 800x600.
	PlotWidth  int
	PlotHeight int
}

// NewHandler returns a Handler over the given controller, buffers and renderer.
func NewHandler(ctrl *ingest.Controller, mgr *waveform.Manager, renders *waveform.RenderCache, log *slog.Logger, opts Options) *Handler {
	h := &Handler{
		ctrl:    ctrl,
		mgr:     mgr,
		renders: renders,
		queue:   opts.Queue,
		log:     log,
		width:   opts.PlotWidth,
		height:  opts.PlotHeight,
	}
	if h.width <= 0 {
		h.width = DefaultPlotWidth
	}
	if h.height <= 0 {
		h.height = DefaultPlotHeight
	}
	return h
}

// Register mounts the handler's routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/status", h.Status)
	r.Route("/ingest", func(r chi.Router) {
		r.Post("/start", h.StartIngest)
		r.Post("/stop", h.StopIngest)
	})
	r.Route("/channels", func(r chi.Router) {
		r.Get("/", h.ListChannels)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", h.GetChannel)
			r.Get("/plot.png", h.GetPlot)
		})
	})
	if h.queue != nil {
		r.Post("/packets", h.PushPacket)
	}
}

type channelEntry struct {
	Key string `json:"key"`
	waveform.ChannelKey
}

type channelSummary struct {
	channelEntry
	SampleRate float64   `json:"sample_rate"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Duration   float64   `json:"duration_seconds"`
	Samples    int       `json:"samples"`
	Gaps       int       `json:"gaps"`
}

type statusResponse struct {
	Running bool   `json:"running"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// ListChannels handles GET /channels.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	keys := h.ctrl.Menu()
	out := make([]channelEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, channelEntry{Key: k.String(), ChannelKey: k})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// GetChannel handles GET /channels/{key}.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	key, err := waveform.ParseChannelKey(chi.URLParam(r, "key"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	snap, ok := h.mgr.Snapshot(key)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, channelSummary{
		channelEntry: channelEntry{Key: key.String(), ChannelKey: key},
		SampleRate:   snap.SampleRate,
		Start:        snap.Start,
		End:          snap.End(),
		Duration:     snap.Duration().Seconds(),
		Samples:      len(snap.Samples),
		Gaps:         snap.Gaps(),
	})
}

// GetPlot handles GET /channels/{key}/plot.png?width=&height=.
func (h *Handler) GetPlot(w http.ResponseWriter, r *http.Request) {
	key, err := waveform.ParseChannelKey(chi.URLParam(r, "key"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	width, werr := queryInt(r, "width", h.width)
	height, herr := queryInt(r, "height", h.height)
	if werr != nil || herr != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	img, err := h.renders.Render(key, width, height)
	if err != nil {
		switch {
		case errors.Is(err, waveform.ErrUnknownChannel):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, waveform.ErrInvalidSize):
			h.log.Debug("plot size rejected", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", pngContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Running: h.ctrl.Status(), State: h.ctrl.State().String()}
	if err := h.ctrl.LastError(); err != nil {
		resp.Error = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// StartIngest handles POST /ingest/start.
func (h *Handler) StartIngest(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(); err != nil {
		if errors.Is(err, ingest.ErrAlreadyRunning) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		h.log.Error("start ingest failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.log.Info("ingest start requested")
	w.WriteHeader(http.StatusAccepted)
}

// StopIngest handles POST /ingest/stop. It returns before the loop exits.
func (h *Handler) StopIngest(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()
	h.log.Info("ingest stop requested")
	w.WriteHeader(http.StatusAccepted)
}

// PushPacket handles POST /packets.
// Body: {"station":"ANMO","channel":"BHZ","network":"IU","location":"00",
// "samprate":20,"startt":1772366400.0,"data":[...]}.
func (h *Handler) PushPacket(w http.ResponseWriter, r *http.Request) {
	var wave ingest.Wave
	if err := json.NewDecoder(r.Body).Decode(&wave); err != nil {
		h.log.Debug("invalid packet body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p := wave.Packet()
	if err := p.Validate(); err != nil {
		h.log.Debug("packet rejected", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.queue.Push(p); err != nil {
		switch {
		case errors.Is(err, ingest.ErrNotOpen), errors.Is(err, ingest.ErrQueueFull):
			h.log.Warn("packet not queued",
				slog.String("channel", p.Key().String()),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			h.log.Error("queue packet failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response failed", slog.String("error", err.Error()))
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}
