package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ripple_connections_active",
		Help: "Number of live websocket connections.",
	})
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripple_messages_created_total",
		Help: "Messages persisted by the pipeline.",
	})
	MessagesDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripple_messages_deduplicated_total",
		Help: "Submissions resolved against an existing tempID.",
	})
	MessagesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripple_messages_suppressed_total",
		Help: "Messages silently dropped by the block filter.",
	})
	CallsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ripple_calls_terminal_total",
		Help: "Call legs reaching a terminal status.",
	}, []string{"status"})
	AssistantReplies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripple_assistant_replies_total",
		Help: "Assistant responses injected into the pipeline.",
	})
	AssistantFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ripple_assistant_fallbacks_total",
		Help: "Assistant invocations that returned the fallback text.",
	})
)

// NewServer returns the HTTP server exposing /metrics.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
