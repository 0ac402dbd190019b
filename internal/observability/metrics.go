// Package observability holds the prometheus collector and tracing setup.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficSOS/internal/domain"
)

// Collector bundles the case, fan-out and HTTP metrics. It satisfies the
// lifecycle manager's recorder and the dispatcher's delivery recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	CasesCreated  prometheus.Counter
	CasesRejected *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	OutboxErrors  prometheus.Counter
	CasesSwept    prometheus.Counter
	Deliveries    *prometheus.CounterVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	created, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sos_cases_created_total",
		Help: "Cases accepted by the revalidator and stored.",
	}), "sos_cases_created_total")
	if err != nil {
		return nil, err
	}
	rejected, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_cases_rejected_total",
		Help: "SOS submissions rejected by the revalidator, labeled by failing stage.",
	}, []string{"stage"}), "sos_cases_rejected_total")
	if err != nil {
		return nil, err
	}
	transitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_case_transitions_total",
		Help: "Applied case status transitions.",
	}, []string{"from", "to"}), "sos_case_transitions_total")
	if err != nil {
		return nil, err
	}
	outbox, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sos_outbox_enqueue_failures_total",
		Help: "Case events that could not be handed to the outbox.",
	}), "sos_outbox_enqueue_failures_total")
	if err != nil {
		return nil, err
	}
	swept, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sos_cases_swept_total",
		Help: "Terminal cases removed by the retention sweep.",
	}), "sos_cases_swept_total")
	if err != nil {
		return nil, err
	}
	deliveries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_fanout_deliveries_total",
		Help: "Event deliveries per sink, labeled by result.",
	}, []string{"sink", "result"}), "sos_fanout_deliveries_total")
	if err != nil {
		return nil, err
	}
	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Handled HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		CasesCreated:  created,
		CasesRejected: rejected,
		Transitions:   transitions,
		OutboxErrors:  outbox,
		CasesSwept:    swept,
		Deliveries:    deliveries,
		HTTPRequests:  requests,
		HTTPDurations: durations,
	}, nil
}

func (c *Collector) CaseCreated() { c.CasesCreated.Inc() }

func (c *Collector) CaseRejected(stage int) {
	c.CasesRejected.WithLabelValues(strconv.Itoa(stage)).Inc()
}

func (c *Collector) Transition(from, to domain.CaseStatus) {
	c.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) OutboxFailed() { c.OutboxErrors.Inc() }

func (c *Collector) Swept(n int) { c.CasesSwept.Add(float64(n)) }

func (c *Collector) Delivered(sink string) {
	c.Deliveries.WithLabelValues(sink, "ok").Inc()
}

func (c *Collector) DeliveryFailed(sink string) {
	c.Deliveries.WithLabelValues(sink, "failed").Inc()
}

// Middleware records request counts and durations by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}

		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		c.HTTPDurations.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
