package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"waveplot/internal/platform/metrics"
	"waveplot/internal/waveform"
)

// ErrAlreadyRunning is returned by Start while a previous run has not exited.
var ErrAlreadyRunning = errors.New("ingest already running")

// Controller starts and stops ingest runs and answers status and menu queries.
type Controller struct {
	base    context.Context
	client  Client
	mgr     *waveform.Manager
	cfg     LoopConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	loop    *Loop
	done    chan struct{}
	lastErr error

	running atomic.Bool
}

// NewController returns a stopped controller. Runs live at most as long as
// base. m may be nil.
func NewController(base context.Context, client Client, mgr *waveform.Manager, cfg LoopConfig, log *slog.Logger, m *metrics.Metrics) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		base:    base,
		client:  client,
		mgr:     mgr,
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}

// Start launches an ingest run in its own goroutine.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		select {
		case <-c.done:
		default:
			return ErrAlreadyRunning
		}
	}

	loop := NewLoop(c.client, c.mgr, c.cfg, c.log, c.metrics)
	done := make(chan struct{})
	c.loop = loop
	c.done = done
	c.lastErr = nil
	c.setRunning(true)

	go func() {
		defer close(done)
		err := loop.Run(c.base)
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.setRunning(false)
	}()
	return nil
}

// Stop requests the current run to stop and returns without waiting.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop != nil {
		c.loop.RequestStop()
	}
	c.setRunning(false)
}

// Wait blocks until the current run has exited or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports whether ingest is running.
func (c *Controller) Status() bool {
	return c.running.Load()
}

// State returns the current run's lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return StateStopped
	}
	return c.loop.State()
}

// LastError returns the error that ended the previous run, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Menu returns the channels known to the buffer manager.
func (c *Controller) Menu() []waveform.ChannelKey {
	return c.mgr.Keys()
}

func (c *Controller) setRunning(v bool) {
	c.running.Store(v)
	if c.metrics != nil {
		c.metrics.SetIngestRunning(v)
	}
}
