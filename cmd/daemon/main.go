// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tubemux/tubemux/internal/api"
	"github.com/tubemux/tubemux/internal/cache"
	"github.com/tubemux/tubemux/internal/config"
	tmlog "github.com/tubemux/tubemux/internal/log"
	"github.com/tubemux/tubemux/internal/youtube"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded.
	tmlog.Configure(tmlog.Config{
		Level:   "info",
		Service: "tubemux",
		Version: version,
	})
	logger := tmlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with loaded configuration.
	tmlog.Configure(tmlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	if *configPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", *configPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	var metaCache cache.Cache
	if cfg.CacheTTL > 0 {
		mem := cache.NewMemory(cfg.CacheTTL)
		defer mem.Stop()
		metaCache = mem
	} else {
		metaCache = cache.NewNoop()
	}

	yt := youtube.NewInnertube(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	srv := api.New(cfg, yt, metaCache)

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting tubemux")
	logger.Info().Msgf("→ Public dir: %s", cfg.PublicDir)
	logger.Info().Msgf("→ Metadata cache TTL: %s", cfg.CacheTTL)
	logger.Info().Msgf("→ Max concurrent downloads: %d", cfg.MaxConcurrent)
	if cfg.RateLimitOff {
		logger.Warn().Msg("→ Rate limiting: DISABLED")
	} else {
		logger.Info().Msgf("→ Rate limit: %d req/min per IP", cfg.RateLimitRPM)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Str("event", "shutdown.signal").Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Str("event", "server.failed").Msg("http server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str("event", "shutdown.failed").Msg("graceful shutdown failed")
		os.Exit(1)
	}
	logger.Info().Str("event", "shutdown.complete").Msg("bye")
}
