package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"standwatch/internal/cache"
	"standwatch/internal/config"
	"standwatch/internal/feed"
	"standwatch/internal/handler"
	"standwatch/internal/hub"
	"standwatch/internal/ingestor"
	"standwatch/internal/metrics"
	"standwatch/internal/middleware"
	"standwatch/internal/store"
	"standwatch/pkg/sectorfile"
	"standwatch/pkg/vatsim"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename: cfg.LogFile,
			MaxSize:  64, // MB
			MaxAge:   14,
			Compress: true,
		}
		defer rotating.Close()
		out = io.MultiWriter(os.Stdout, rotating)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("standwatch exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting standwatch server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"layout_source", cfg.LayoutSource,
		"stop_at_end", cfg.LayoutStopAtEnd,
		"center", cfg.View.Center.String(),
		"redis_enabled", cfg.RedisEnabled,
	)

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		c, err := metrics.NewCollector(nil)
		if err != nil {
			return err
		}
		collector = c
	}

	standStore := store.New(cfg.Thresholds.OccupancyRadiusM)
	wsHub := hub.NewHub(logger)
	wsHub.SetSendCounter(handler.ServerStats)

	layout := ingestor.NewLayoutLoader(cfg.LayoutSource, cfg.FetchTimeout,
		sectorfile.Options{StopAtEnd: cfg.LayoutStopAtEnd}, logger)

	positions := feed.New(vatsim.New(cfg.VATSIMDataURL, cfg.FetchTimeout), feed.Options{
		Thresholds: cfg.Thresholds,
		View:       cfg.View,
		Delimiter:  cfg.CallsignDelimiter,
	}, logger)

	orch := ingestor.New(layout, positions, standStore, ingestor.Options{
		PollInterval:  cfg.PollInterval,
		TileZoomLevel: cfg.TileZoomLevel,
	}, logger)
	orch.SetBroadcaster(wsHub)

	if collector != nil {
		positions.SetRecorder(collector)
		orch.SetRecorder(collector)
	}

	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, snapshot publication disabled", "error", err)
		} else {
			defer redisCache.Close()
			pub := cache.NewPublisher(redisCache, layout.Name(), cfg.CacheTTL, logger)
			pub.OnResult(func(err error) {
				if err != nil {
					handler.ServerStats.IncSnapshotFailed()
					return
				}
				handler.ServerStats.IncSnapshotPublished()
			})
			orch.SetPublisher(pub)
		}
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	limiter.OnLimited(handler.ServerStats.IncRateLimited)
	if collector != nil {
		limiter.OnLimited(collector.IncRateLimited)
	}

	httpHandler := handler.NewHTTPHandler(standStore)
	wsHandler := handler.NewWSHandler(wsHub, standStore, cfg.TileZoomLevel, logger)
	healthHandler := handler.NewHealthHandler(orch, standStore)
	statsHandler := handler.NewStatsHandler(standStore, wsHub, layout.Name())

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/stands", httpHandler.ListStands)
	api.HandleFunc("GET /v1/stands/{name}", httpHandler.GetStand)
	api.HandleFunc("GET /v1/closest", httpHandler.ClosestStands)
	api.HandleFunc("GET /v1/positions", httpHandler.ListPositions)
	api.HandleFunc("GET /v1/stats", statsHandler.GetStats)

	mux := http.NewServeMux()
	mux.Handle("/v1/", limiter.Middleware(handler.GzipMiddleware(api)))
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	if collector != nil {
		mux.Handle("GET /metrics", collector.Handler())
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.CORSMiddleware(handler.RequestLogger(logger)(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		limiter.Run(ctx)
		return nil
	})
	g.Go(func() error {
		orch.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
