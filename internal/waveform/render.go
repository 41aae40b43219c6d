package waveform

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"waveplot/internal/platform/metrics"
)

// Plot size bounds accepted by Render.
const (
	MinPlotSize = 64
	MaxPlotSize = 4096
)

// Rasterizer draws a snapshot as an encoded image of the given pixel size.
type Rasterizer interface {
	Rasterize(w io.Writer, snap Snapshot, width, height int) error
}

// RenderCache renders channels on demand into each channel's reusable sink.
type RenderCache struct {
	mgr     *Manager
	raster  Rasterizer
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRenderCache returns a RenderCache reading from mgr. A nil raster selects
// ChartRasterizer; m may be nil to disable metric recording.
func NewRenderCache(mgr *Manager, raster Rasterizer, log *slog.Logger, m *metrics.Metrics) *RenderCache {
	if raster == nil {
		raster = ChartRasterizer{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RenderCache{
		mgr:     mgr,
		raster:  raster,
		log:     log.With("component", "render-cache"),
		metrics: m,
	}
}

// Render rasterizes the channel's full retained window. The buffer lock is
// held only while copying the snapshot and the frame lock only while storing
// the result, so neither ingest nor LastFrame waits on encoding. Rasterizer
// failures are logged and reported as ErrEncodingFailed; the buffer and the
// last good frame are left untouched.
func (c *RenderCache) Render(key ChannelKey, width, height int) ([]byte, error) {
	if width < MinPlotSize || width > MaxPlotSize || height < MinPlotSize || height > MaxPlotSize {
		return nil, fmt.Errorf("%w: %dx%d outside [%d, %d]", ErrInvalidSize, width, height, MinPlotSize, MaxPlotSize)
	}
	snap, st, ok := c.snapshot(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, key)
	}

	var out bytes.Buffer
	if err := c.raster.Rasterize(&out, snap, width, height); err != nil {
		c.log.Error("render failed",
			slog.String("channel", key.String()),
			slog.Int("width", width),
			slog.Int("height", height),
			slog.String("error", err.Error()))
		if c.metrics != nil {
			c.metrics.IncRenderFailures()
		}
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}

	st.frameMu.Lock()
	st.frame.Reset()
	st.frame.Write(out.Bytes())
	st.frameMu.Unlock()

	if c.metrics != nil {
		c.metrics.IncRenders()
	}
	return out.Bytes(), nil
}

// LastFrame returns the bytes of the most recent successful render, if any.
func (c *RenderCache) LastFrame(key ChannelKey) ([]byte, bool) {
	st, ok := c.mgr.channel(key)
	if !ok {
		return nil, false
	}
	st.frameMu.Lock()
	defer st.frameMu.Unlock()
	if st.frame.Len() == 0 {
		return nil, false
	}
	return bytes.Clone(st.frame.Bytes()), true
}

func (c *RenderCache) snapshot(key ChannelKey) (Snapshot, *ChannelState, bool) {
	st, ok := c.mgr.channel(key)
	if !ok {
		return Snapshot{}, nil, false
	}
	st.mu.Lock()
	snap := st.buf.Snapshot()
	st.mu.Unlock()
	return snap, st, true
}
