// Package api provides the HTTP surface of tubemux: video resolution,
// variant listing and direct or merged downloads.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tubemux/tubemux/internal/cache"
	"github.com/tubemux/tubemux/internal/config"
	"github.com/tubemux/tubemux/internal/youtube"
)

// Server is the HTTP API server.
type Server struct {
	cfg   config.AppConfig
	yt    youtube.Client
	cache cache.Cache

	// downloadSem bounds concurrent download pipelines.
	downloadSem chan struct{}

	httpSrv   *http.Server
	startTime time.Time
}

// New builds a Server from its dependencies. A nil cache disables caching.
func New(cfg config.AppConfig, yt youtube.Client, c cache.Cache) *Server {
	if c == nil {
		c = cache.NewNoop()
	}
	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return &Server{
		cfg:         cfg,
		yt:          yt,
		cache:       c,
		downloadSem: sem,
		startTime:   time.Now(),
	}
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// No global write timeout: downloads legitimately run for minutes.
	}
	logger("api").Info().
		Str("event", "server.start").
		Str("addr", s.cfg.ListenAddr).
		Msg("http server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// acquireDownloadSlot reserves one concurrent download slot without
// blocking. A nil semaphore means unlimited concurrency.
func (s *Server) acquireDownloadSlot() bool {
	if s.downloadSem == nil {
		return true
	}
	select {
	case s.downloadSem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) releaseDownloadSlot() {
	if s.downloadSem != nil {
		<-s.downloadSem
	}
}
