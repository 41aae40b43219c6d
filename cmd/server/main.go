package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waveplot/internal/httpapi"
	"waveplot/internal/ingest"
	"waveplot/internal/platform/config"
	"waveplot/internal/platform/logger"
	"waveplot/internal/platform/metrics"
	"waveplot/internal/waveform"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	windowMinutes := config.GetEnvFloat("WINDOW_MINUTES", 1)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	logFile := config.GetEnv("LOG_FILE", "")
	transport := config.GetEnv("TRANSPORT", "queue")
	autostart := config.GetEnvBool("AUTOSTART", true)
	if config.GetEnvBool("DEBUG", false) {
		logLevel = "debug"
	}

	log := logger.New(logLevel, logFormat, logFile)

	window := time.Duration(windowMinutes * float64(time.Minute))
	if window <= 0 {
		log.Error("WINDOW_MINUTES must be positive", "window_minutes", windowMinutes)
		os.Exit(1)
	}

	met := metrics.New()
	mgr := waveform.NewManager(window, log)
	renders := waveform.NewRenderCache(mgr, nil, log, met)

	var (
		client ingest.Client
		queue  *ingest.QueueClient
	)
	switch transport {
	case "queue":
		queue = ingest.NewQueueClient(config.GetEnvInt("QUEUE_SIZE", ingest.DefaultQueueSize))
		client = queue
	case "websocket":
		url := config.GetEnv("TRANSPORT_URL", "")
		if url == "" {
			log.Error("TRANSPORT_URL is required for the websocket transport")
			os.Exit(1)
		}
		client = ingest.NewWebSocketClient(ingest.WebSocketConfig{
			URL:        url,
			RingID:     config.GetEnvInt("RING_ID", 1000),
			ModuleID:   config.GetEnvInt("MODULE_ID", 9),
			InstanceID: config.GetEnvInt("INSTANCE_ID", 141),
			Heartbeat:  time.Duration(config.GetEnvInt("HEARTBEAT_SECONDS", 30)) * time.Second,
		}, log, met)
	default:
		log.Error("unknown transport", "transport", transport)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	ctrl := ingest.NewController(ctx, client, mgr, ingest.LoopConfig{
		PollInterval: config.GetEnvDuration("POLL_INTERVAL", ingest.DefaultPollInterval),
		FailFast:     config.GetEnvBool("FAIL_FAST", false),
	}, log, met)

	h := httpapi.NewHandler(ctrl, mgr, renders, log, httpapi.Options{
		Queue:      queue,
		PlotWidth:  config.GetEnvInt("PLOT_WIDTH", httpapi.DefaultPlotWidth),
		PlotHeight: config.GetEnvInt("PLOT_HEIGHT", httpapi.DefaultPlotHeight),
	})

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetChannels(mgr.Len()) }).ServeHTTP(w, r)
	})
	h.Register(r)

	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received, stopping ingest and draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		ctrl.Stop()
		if err := ctrl.Wait(shutdownCtx); err != nil {
			log.Warn("ingest did not stop in time", slog.String("error", err.Error()))
		}
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("server starting",
		"port", port,
		"window", window.String(),
		"transport", transport,
		"log_level", logLevel,
	)

	if autostart {
		if err := ctrl.Start(); err != nil {
			log.Error("ingest start failed", "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
