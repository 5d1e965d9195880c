// Package metrics exposes Prometheus instrumentation for the dispatcher,
// authentication handshake, and stream layer. A nil *Registry disables
// collection with zero overhead, the same pattern the rest of the module
// uses for optional instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric an hvrpc Connection reports. Construct one
// with New and pass it through; a nil *Registry is always safe to call
// methods on.
type Registry struct {
	callsInFlight   prometheus.Gauge
	callDuration    *prometheus.HistogramVec
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	reconnects      prometheus.Counter
	authFailures    *prometheus.CounterVec
	streamsOpen     prometheus.Gauge
	streamBufferLen prometheus.Histogram
	eventsQueued    prometheus.Counter
	eventsDropped   prometheus.Counter
}

// New registers hvrpc's metrics against reg and returns a Registry wrapper.
// Passing a fresh prometheus.NewRegistry() keeps hvrpc's metrics isolated
// from the default global registry; passing prometheus.DefaultRegisterer
// exposes them alongside everything else the process reports.
func New(reg prometheus.Registerer) *Registry {
	return &Registry{
		callsInFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hvrpc_calls_in_flight",
			Help: "Number of RPC calls currently awaiting a reply.",
		}),
		callDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hvrpc_call_duration_seconds",
			Help:    "Call round-trip latency by procedure.",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure"}),
		bytesSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hvrpc_bytes_sent_total",
			Help: "Total bytes written to the transport.",
		}),
		bytesReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hvrpc_bytes_received_total",
			Help: "Total bytes read from the transport.",
		}),
		reconnects: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hvrpc_reconnects_total",
			Help: "Number of times a Connection was re-established after a transport failure.",
		}),
		authFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "hvrpc_auth_failures_total",
			Help: "Authentication handshake failures by mechanism.",
		}, []string{"mechanism"}),
		streamsOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hvrpc_streams_open",
			Help: "Number of currently open data streams.",
		}),
		streamBufferLen: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "hvrpc_stream_buffer_bytes",
			Help:    "Size of a stream's incoming buffer when consumed.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		eventsQueued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hvrpc_events_queued_total",
			Help: "Server-pushed events enqueued for delivery.",
		}),
		eventsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hvrpc_events_dropped_total",
			Help: "Events dropped because no callback was registered.",
		}),
	}
}

func (r *Registry) CallStarted() {
	if r != nil {
		r.callsInFlight.Inc()
	}
}

func (r *Registry) CallFinished(procedure string, d time.Duration) {
	if r == nil {
		return
	}
	r.callsInFlight.Dec()
	r.callDuration.WithLabelValues(procedure).Observe(d.Seconds())
}

func (r *Registry) BytesSent(n int) {
	if r != nil {
		r.bytesSent.Add(float64(n))
	}
}

func (r *Registry) BytesReceived(n int) {
	if r != nil {
		r.bytesReceived.Add(float64(n))
	}
}

func (r *Registry) Reconnected() {
	if r != nil {
		r.reconnects.Inc()
	}
}

func (r *Registry) AuthFailed(mechanism string) {
	if r != nil {
		r.authFailures.WithLabelValues(mechanism).Inc()
	}
}

func (r *Registry) StreamOpened() {
	if r != nil {
		r.streamsOpen.Inc()
	}
}

func (r *Registry) StreamClosed(bufferedBytes int) {
	if r == nil {
		return
	}
	r.streamsOpen.Dec()
	r.streamBufferLen.Observe(float64(bufferedBytes))
}

func (r *Registry) EventQueued() {
	if r != nil {
		r.eventsQueued.Inc()
	}
}

func (r *Registry) EventDropped() {
	if r != nil {
		r.eventsDropped.Inc()
	}
}
