// Package metrics exposes Prometheus collectors for sessions, writes,
// sightings and availability.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blelink"

// Recorder owns one set of collectors. A nil *Recorder is valid and
// records nothing, so components can take it as an optional dependency.
type Recorder struct {
	writes        *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	connects      *prometheus.CounterVec
	disconnects   *prometheus.CounterVec
	sightings     *prometheus.CounterVec
	available     *prometheus.GaugeVec
	sessionLive   *prometheus.GaugeVec
	guardWait     *prometheus.HistogramVec
	recoveries    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep them isolated.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "writes_total",
				Help:      "Characteristic write calls by path and outcome.",
			},
			[]string{"address", "path", "outcome"},
		),
		writeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "write_duration_seconds",
				Help:      "Duration of write calls including connect.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"address", "path"},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "connects_total",
				Help:      "Session open attempts by outcome.",
			},
			[]string{"address", "outcome"},
		),
		disconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "disconnects_total",
				Help:      "Session teardowns by reason.",
			},
			[]string{"address", "reason"},
		),
		sessionLive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "connected",
				Help:      "1 while a session is held.",
			},
			[]string{"address"},
		),
		guardWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "guard_wait_seconds",
				Help:      "Time spent waiting for the write lock.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"address"},
		),
		sightings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "availability",
				Name:      "sightings_total",
				Help:      "Advertisements received by source.",
			},
			[]string{"address", "source"},
		),
		available: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "availability",
				Name:      "available",
				Help:      "1 while the device is considered available.",
			},
			[]string{"address"},
		),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "availability",
				Name:      "recoveries_total",
				Help:      "Forced-unavailable states cleared by a sighting.",
			},
			[]string{"address"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			r.writes, r.writeDuration, r.connects, r.disconnects, r.sessionLive,
			r.guardWait, r.sightings, r.available, r.recoveries,
			r.httpRequests, r.httpDuration,
		)
	}
	return r
}

// ObserveWrite records one write call.
func (r *Recorder) ObserveWrite(address, path, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.writes.WithLabelValues(address, path, outcome).Inc()
	r.writeDuration.WithLabelValues(address, path).Observe(d.Seconds())
}

// ObserveConnect records a session open attempt.
func (r *Recorder) ObserveConnect(address, outcome string) {
	if r == nil {
		return
	}
	r.connects.WithLabelValues(address, outcome).Inc()
}

// ObserveDisconnect records a teardown.
func (r *Recorder) ObserveDisconnect(address, reason string) {
	if r == nil {
		return
	}
	r.disconnects.WithLabelValues(address, reason).Inc()
}

// SetSessionLive sets the session gauge.
func (r *Recorder) SetSessionLive(address string, live bool) {
	if r == nil {
		return
	}
	r.sessionLive.WithLabelValues(address).Set(boolGauge(live))
}

// ObserveGuardWait records the write lock wait time.
func (r *Recorder) ObserveGuardWait(address string, d time.Duration) {
	if r == nil {
		return
	}
	r.guardWait.WithLabelValues(address).Observe(d.Seconds())
}

// ObserveSighting counts an advertisement.
func (r *Recorder) ObserveSighting(address, source string) {
	if r == nil {
		return
	}
	r.sightings.WithLabelValues(address, source).Inc()
}

// SetAvailable sets the availability gauge.
func (r *Recorder) SetAvailable(address string, available bool) {
	if r == nil {
		return
	}
	r.available.WithLabelValues(address).Set(boolGauge(available))
}

// ObserveRecovery counts a recovery from forced-unavailable.
func (r *Recorder) ObserveRecovery(address string) {
	if r == nil {
		return
	}
	r.recoveries.WithLabelValues(address).Inc()
}

// ObserveHTTPRequest records one API request.
func (r *Recorder) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	if r == nil {
		return
	}
	s := statusLabel(status)
	r.httpRequests.WithLabelValues(method, path, s).Inc()
	r.httpDuration.WithLabelValues(method, path, s).Observe(d.Seconds())
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
