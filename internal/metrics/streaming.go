package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemuxSessionsActive tracks the number of merge pipelines currently streaming.
	RemuxSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubemux_remux_sessions_active",
		Help: "Number of remux sessions currently in flight",
	})

	// RemuxSessionsTotal tracks finished merge pipelines by outcome.
	RemuxSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_remux_sessions_total",
		Help: "Total number of remux sessions by result and reason",
	}, []string{"result", "reason"})

	// RemuxSessionDuration tracks wall time per merge pipeline.
	RemuxSessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tubemux_remux_session_duration_seconds",
		Help:    "Wall time of a remux session from open to finalize",
		Buckets: []float64{1, 2, 5, 10, 20, 45, 90, 180, 300, 600},
	}, []string{"result"})

	// RemuxPacketsTotal counts media packets relayed through merge pipelines.
	RemuxPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_remux_packets_total",
		Help: "Total number of media packets relayed by track kind",
	}, []string{"track"})

	// DownloadBytesTotal counts payload bytes written to download responses.
	DownloadBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_download_bytes_total",
		Help: "Total bytes written to download responses by delivery mode",
	}, []string{"mode"})

	// DownloadsTotal tracks download requests by delivery mode and outcome.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubemux_downloads_total",
		Help: "Total download requests by delivery mode and result",
	}, []string{"mode", "result"})

	// UpstreamLookupDuration tracks metadata lookup latency against the platform.
	UpstreamLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tubemux_upstream_lookup_duration_seconds",
		Help:    "Latency of upstream variant listing lookups",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
	})
)

// ObserveRemuxSession records a finished remux session.
func ObserveRemuxSession(result, reason string, duration time.Duration) {
	RemuxSessionsTotal.WithLabelValues(result, reason).Inc()
	RemuxSessionDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// IncRemuxPackets counts relayed packets for one track kind.
func IncRemuxPackets(track string, n int) {
	RemuxPacketsTotal.WithLabelValues(track).Add(float64(n))
}

// IncDownload records a download request outcome.
func IncDownload(mode string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	DownloadsTotal.WithLabelValues(mode, result).Inc()
}

// AddDownloadBytes counts response payload bytes for one delivery mode.
func AddDownloadBytes(mode string, n int64) {
	if n > 0 {
		DownloadBytesTotal.WithLabelValues(mode).Add(float64(n))
	}
}

// ObserveUpstreamLookup records the latency of a variant listing lookup.
func ObserveUpstreamLookup(duration time.Duration) {
	UpstreamLookupDuration.Observe(duration.Seconds())
}
