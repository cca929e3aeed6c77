package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"supplygraph-a2a/sdk/go/a2a"
)

const namespace = "sgbridge"

// Metrics holds the bridge collectors.
type Metrics struct {
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	gatewayRetries  *prometheus.CounterVec
	unknownCodes    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpErrors      *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	relayMessages   *prometheus.CounterVec
	streamFrames    *prometheus.CounterVec

	unknownCodeSet *labelSet
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the collectors registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New registers the collectors with reg. Collectors already registered
// under the same name are reused.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		gatewayCalls: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Gateway calls by agent, mode and resulting code.",
		}, []string{"agent", "mode", "code"})),
		gatewayDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Gateway call duration including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"})),
		gatewayRetries: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Additional attempts made after retryable failures.",
		}, []string{"agent", "mode"})),
		unknownCodes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "unknown_codes_total",
			Help:      "Gateway codes outside the known vocabulary, mapped to in_progress.",
		}, []string{"code"})),
		httpRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"})),
		httpErrors: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"})),
		httpDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"})),
		cacheLookups: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manifest_cache",
			Name:      "lookups_total",
			Help:      "Manifest cache lookups by result.",
		}, []string{"result"})),
		relayMessages: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Frames published to relay sinks by outcome.",
		}, []string{"sink", "outcome"})),
		streamFrames: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Reasoning frames emitted by event name.",
		}, []string{"event"})),
		unknownCodeSet: newLabelSet(maxUnknownCodes),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

var _ a2a.Observer = (*Metrics)(nil)

// ObserveCall records a completed gateway call. Agents and codes outside
// the known vocabulary are counted as "other".
func (m *Metrics) ObserveCall(rec a2a.CallRecord) {
	if m == nil {
		return
	}
	var code string
	switch {
	case rec.Code != "":
		code = codeLabel(rec.Code)
	case rec.Err != nil:
		code = "error"
	default:
		code = "none"
	}
	agent := agentLabel(rec.AgentID)
	m.gatewayCalls.WithLabelValues(agent, rec.Mode, code).Inc()
	m.gatewayDuration.WithLabelValues(rec.Mode).Observe(rec.Duration.Seconds())
	if rec.Attempts > 1 {
		m.gatewayRetries.WithLabelValues(agent, rec.Mode).Add(float64(rec.Attempts - 1))
	}
}

// ObserveUnknownCode counts a gateway code outside the known vocabulary.
// Only the first maxUnknownCodes distinct codes get their own series.
func (m *Metrics) ObserveUnknownCode(code string) {
	if m == nil {
		return
	}
	m.unknownCodes.WithLabelValues(m.unknownCodeSet.label(code)).Inc()
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.httpErrors.WithLabelValues(handler, method).Inc()
	}
	m.httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveCacheLookup counts a manifest cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRelay counts one publish attempt to a relay sink.
func (m *Metrics) ObserveRelay(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.relayMessages.WithLabelValues(sink, outcome).Inc()
}

// ObserveFrame counts one emitted reasoning frame.
func (m *Metrics) ObserveFrame(event string) {
	if m == nil {
		return
	}
	m.streamFrames.WithLabelValues(event).Inc()
}

// ObserveHTTPRequest records an HTTP request on the default collectors.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	Default().ObserveHTTPRequest(handler, method, status, duration)
}
