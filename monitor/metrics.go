package monitor

import (
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	relayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onechat_relay_requests_total",
		Help: "Relay requests by endpoint and outcome",
	}, []string{"endpoint", "model", "outcome"})

	streamEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onechat_stream_events_total",
		Help: "Stream events delivered to clients by kind",
	}, []string{"kind"})

	upstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "onechat_upstream_duration_seconds",
		Help:    "Upstream call duration until the last byte",
		Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"model", "outcome"})

	activeStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onechat_active_streams",
		Help: "Streams currently relaying deltas",
	})

	persistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onechat_persistence_failures_total",
		Help: "Conversation writes that failed after retries",
	})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onechat_rate_limited_total",
		Help: "Requests rejected by the admission ledger",
	})

	contextDropped = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "onechat_context_dropped_messages",
		Help:    "History messages dropped by the context window limiter per request",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "onechat_build_info",
		Help: "Build information",
	}, []string{"version", "go_version"})

	enabled atomic.Bool
)

// InitPrometheusMonitoring registers every collector on reg.
func InitPrometheusMonitoring(reg prometheus.Registerer, version, goVersion string) error {
	for _, c := range []prometheus.Collector{
		relayRequests, streamEvents, upstreamLatency, activeStreams,
		persistenceFailures, rateLimited, contextDropped, buildInfo,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return errors.Wrap(err, "register collector")
		}
	}
	buildInfo.WithLabelValues(version, goVersion).Set(1)
	enabled.Store(true)
	return nil
}

func Enabled() bool { return enabled.Load() }

func RecordRelayRequest(endpoint, model, outcome string) {
	relayRequests.WithLabelValues(endpoint, model, outcome).Inc()
}

func RecordStreamEvent(kind string) {
	streamEvents.WithLabelValues(kind).Inc()
}

func RecordUpstream(model, outcome string, elapsed time.Duration) {
	upstreamLatency.WithLabelValues(model, outcome).Observe(elapsed.Seconds())
}

// TrackStream increments the active stream gauge and returns its decrement.
func TrackStream() func() {
	activeStreams.Inc()
	return activeStreams.Dec
}

func RecordPersistenceFailure() { persistenceFailures.Inc() }

func RecordRateLimited() { rateLimited.Inc() }

func RecordContextDropped(n int) { contextDropped.Observe(float64(n)) }
