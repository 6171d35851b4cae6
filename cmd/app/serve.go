package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"idphoto/internal/config"
	"idphoto/internal/handler"
	"idphoto/internal/janitor"
	"idphoto/internal/logging"
	"idphoto/internal/metrics"
	"idphoto/internal/middleware"
	"idphoto/internal/preset"
	"idphoto/internal/session"
	"idphoto/web"
)

func runServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "config file (yaml, toml or json)")
	fs.String("addr", config.DefaultAddr, "listen address (loopback by default)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader, cfg, err := loadConfig(fs, map[string]string{
		"addr":      "server.addr",
		"log-level": "log.level",
	})
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer cleanup()

	catalog, err := preset.Load(cfg.Pipeline.PresetsFile)
	if err != nil {
		return err
	}
	settings, err := handler.SettingsFrom(cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	store := session.NewStore(cfg.Session.MaxSessions)
	defer store.CloseAll()

	h := handler.New(store, catalog, metrics.New(logger), web.EmbedFS, settings, logger)

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		LockoutDuration:   cfg.RateLimit.LockoutDuration,
		MaxViolations:     cfg.RateLimit.MaxViolations,
		TrustedProxies:    trusted,
		Deny:              h.RateLimited,
	})
	defer limiter.Close()

	csrf := middleware.NewCSRF(cfg.Server.CSRFSecret).OnFailure(h.CSRFFailed)

	router := h.Router(handler.RouteOptions{
		Logger:        logger,
		RateLimiter:   limiter,
		CSRF:          csrf,
		SessionMaxAge: cfg.Session.MaxIdle,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jan := janitor.New(janitor.Config{
		Sessions: store,
		Interval: cfg.Session.SweepInterval,
		MaxIdle:  cfg.Session.MaxIdle,
		Logger:   logger,
	})
	jan.Start(ctx)
	defer jan.Stop()

	loader.Watch(func(c *config.Config) {
		s, err := handler.SettingsFrom(c.Pipeline)
		if err != nil {
			logger.Warn("pipeline settings not applied", zap.Error(err))
			return
		}
		h.SetSettings(s)
		logger.Info("pipeline settings applied",
			zap.String("format", string(s.Format)),
			zap.Float64("quality", s.Quality),
			zap.String("filter", string(s.Filter)),
		)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.Int("presets", len(catalog.All())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
