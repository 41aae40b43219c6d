package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"waveplot/internal/platform/metrics"
	"waveplot/internal/waveform"
)

// Loop defaults.
const (
	DefaultPollInterval   = time.Millisecond
	DefaultMaxBatch       = 256
	DefaultGoodbyeTimeout = 5 * time.Second
)

// State is the ingest loop's lifecycle state.
type State int32

// Ingest loop states, in lifecycle order.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// LoopConfig tunes the ingest loop. Zero values take defaults.
type LoopConfig struct {
	// PollInterval is the pause between polling rounds.
	PollInterval time.Duration
	// MaxBatch bounds the packets drained per round so a busy transport
	// cannot delay the stop check.
	MaxBatch int
	// GoodbyeTimeout bounds the shutdown notice to the transport.
	GoodbyeTimeout time.Duration
	// FailFast stops the loop on the first rejected packet instead of
	// dropping it.
	FailFast bool
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.GoodbyeTimeout <= 0 {
		c.GoodbyeTimeout = DefaultGoodbyeTimeout
	}
	return c
}

// Loop polls a transport and feeds the buffer manager. A Loop runs once;
// Controller creates a new one per start.
type Loop struct {
	client  Client
	mgr     *waveform.Manager
	cfg     LoopConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	state atomic.Int32
	stop  atomic.Bool
}

// NewLoop returns a loop reading from client into mgr. m may be nil.
func NewLoop(client Client, mgr *waveform.Manager, cfg LoopConfig, log *slog.Logger, m *metrics.Metrics) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		client:  client,
		mgr:     mgr,
		cfg:     cfg.withDefaults(),
		log:     log.With("component", "ingest"),
		metrics: m,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// RequestStop asks the loop to stop at the next poll boundary.
func (l *Loop) RequestStop() {
	l.stop.Store(true)
}

// Run opens the transport and ingests until a stop is requested, ctx is
// done, or the transport fails. The transport always gets a goodbye once it
// was opened. A requested stop returns nil; a transport failure returns an
// error wrapping ErrTransportFailure.
func (l *Loop) Run(ctx context.Context) error {
	log := l.log.With("session", uuid.NewString())

	l.state.Store(int32(StateStarting))
	if err := l.client.Open(ctx); err != nil {
		l.state.Store(int32(StateStopped))
		return fmt.Errorf("open transport: %w", err)
	}
	l.state.Store(int32(StateRunning))
	log.Info("ingest running",
		slog.Duration("poll_interval", l.cfg.PollInterval),
		slog.Bool("fail_fast", l.cfg.FailFast))

	err := l.poll(ctx, log)

	l.state.Store(int32(StateStopping))
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.GoodbyeTimeout)
	if gerr := l.client.Goodbye(gctx); gerr != nil {
		log.Warn("transport goodbye failed", slog.String("error", gerr.Error()))
	}
	cancel()
	l.state.Store(int32(StateStopped))

	if err != nil {
		log.Error("ingest stopped", slog.String("error", err.Error()))
	} else {
		log.Info("ingest stopped")
	}
	return err
}

func (l *Loop) poll(ctx context.Context, log *slog.Logger) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if l.stop.Load() || ctx.Err() != nil {
			return nil
		}
		if !l.client.Alive() {
			l.transportFailed()
			return ErrTransportFailure
		}

		for i, n := 0, l.cfg.MaxBatch; i < n; i++ {
			p, ok, err := l.client.Poll(ctx)
			if err != nil {
				if errors.Is(err, ErrTransportClosed) {
					l.transportFailed()
					return fmt.Errorf("%w: %v", ErrTransportFailure, err)
				}
				log.Warn("transport poll failed", slog.String("error", err.Error()))
				break
			}
			if !ok {
				break
			}
			if err := l.ingest(log, p); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ingest appends p. Rejected packets are logged and dropped; with FailFast
// the rejection is returned and ends the run.
func (l *Loop) ingest(log *slog.Logger, p waveform.Packet) error {
	err := l.mgr.Append(p)
	if err == nil {
		if l.metrics != nil {
			l.metrics.ObservePacket(len(p.Samples))
		}
		return nil
	}

	reason := metrics.ReasonOther
	switch {
	case errors.Is(err, waveform.ErrMalformed):
		reason = metrics.ReasonMalformed
	case errors.Is(err, waveform.ErrIncompatible):
		reason = metrics.ReasonIncompatible
	}
	log.Warn("packet dropped",
		slog.String("channel", p.Key().String()),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	if l.metrics != nil {
		l.metrics.IncPacketsDropped(reason)
	}
	if l.cfg.FailFast {
		return fmt.Errorf("packet rejected: %w", err)
	}
	return nil
}

func (l *Loop) transportFailed() {
	if l.metrics != nil {
		l.metrics.IncTransportFailures()
	}
}
