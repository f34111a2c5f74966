// Package metricsvc exposes prometheus metrics of the HTTP API, the workflow runner & the language models.
package metricsvc

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/darasa/core/generate"
	"github.com/trezcool/darasa/core/workflow"
)

const namespace = "darasa"

type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	runsStarted  *prometheus.CounterVec
	runsFinished *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec
	llmRequests  *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
}

var _ workflow.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_started_total",
			Help:      "Total number of workflow runs started or resumed.",
		}, []string{"kind"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_finished_total",
			Help:      "Total number of workflow runs finished, by status.",
		}, []string{"kind", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "run_duration_seconds",
			Help:      "Duration of workflow runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8m
		}, []string{"kind"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "step_duration_seconds",
			Help:      "Duration of workflow steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"kind", "step", "success"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of language model requests.",
		}, []string{"model", "task", "success"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of language model requests.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"model", "task"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.runsStarted,
		m.runsFinished,
		m.runDuration,
		m.stepDuration,
		m.llmRequests,
		m.llmDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records the HTTP metrics of every route but /metrics.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path() // route template, eg. /api/orgs/:org
			if path == "/metrics" {
				return next(c)
			}

			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()
			start := time.Now()

			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}
			if path == "" {
				path = "unmatched"
			}
			m.httpRequests.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// workflow.Observer

func (m *Metrics) RunStarted(r workflow.Run) {
	m.runsStarted.WithLabelValues(r.Kind).Inc()
}

func (m *Metrics) StepFinished(r workflow.Run, step string, took time.Duration, err error) {
	m.stepDuration.WithLabelValues(r.Kind, step, strconv.FormatBool(err == nil)).Observe(took.Seconds())
}

// RunFinished is also called for runs failed before they started (eg. stale runs).
func (m *Metrics) RunFinished(r workflow.Run, took time.Duration) {
	m.runsFinished.WithLabelValues(r.Kind, r.Status).Inc()
	m.runDuration.WithLabelValues(r.Kind).Observe(took.Seconds())
}

// InstrumentModel records the requests sent to `next`.
func (m *Metrics) InstrumentModel(next generate.Model) generate.Model {
	return &instrumentedModel{next: next, m: m}
}

type instrumentedModel struct {
	next generate.Model
	m    *Metrics
}

func (im *instrumentedModel) Name() string { return im.next.Name() }

func (im *instrumentedModel) Generate(ctx context.Context, req generate.Request) (string, error) {
	start := time.Now()
	out, err := im.next.Generate(ctx, req)
	name := im.next.Name()
	im.m.llmRequests.WithLabelValues(name, req.Task, strconv.FormatBool(err == nil)).Inc()
	im.m.llmDuration.WithLabelValues(name, req.Task).Observe(time.Since(start).Seconds())
	return out, err
}
