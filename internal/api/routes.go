package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tubemux/tubemux/internal/api/middleware"
)

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:      true,
		AllowedOrigins:  s.cfg.AllowedOrigins,
		EnableMetrics:   true,
		EnableRateLimit: !s.cfg.RateLimitOff,
		RateLimitPerMin: s.cfg.RateLimitRPM,
		TrustedProxies:  s.cfg.TrustedProxies,
	})

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/info", s.handleInfo)
	r.Get("/api/download", s.handleDownload)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if s.cfg.PublicDir != "" {
		r.Handle("/*", s.staticFileServer())
	}
	return r
}
