// Package metrics exposes Prometheus collectors for interview sessions,
// model turns and tool dispatch.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/chatreview/engine"
	"github.com/hupe1980/chatreview/tool"
)

// Metrics owns a private registry so several engines (and tests) never
// collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsCreated   prometheus.Counter
	SessionsCompleted prometheus.Counter
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      prometheus.Histogram
	ToolCallsTotal    *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	ScoresTotal       prometheus.Counter
	ScoreRatio        prometheus.Histogram
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "chatreview_sessions_created_total",
			Help: "Total number of interview sessions created",
		}),
		SessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "chatreview_sessions_completed_total",
			Help: "Total number of interview sessions completed",
		}),
		TurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatreview_turns_total",
			Help: "Total number of finished model turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatreview_turn_duration_seconds",
			Help:    "Duration of model turns including tool dispatch",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		}),
		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chatreview_tool_calls_total",
			Help: "Total number of tool dispatches by tool and status",
		}, []string{"tool", "status"}),
		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatreview_tool_duration_seconds",
			Help:    "Duration of tool dispatches",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		ScoresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "chatreview_scores_total",
			Help: "Total number of recorded task scores",
		}),
		ScoreRatio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatreview_score_ratio",
			Help:    "Awarded points relative to the task maximum",
			Buckets: []float64{0.2, 0.4, 0.5, 0.6, 0.8, 1},
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// TrackInFlight exposes the number of in-flight model turns reported by fn,
// typically (*engine.Engine).InFlight.
func (m *Metrics) TrackInFlight(fn func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chatreview_turns_active",
		Help: "Current number of model turns in flight",
	}, func() float64 { return float64(fn()) }))
}

// ObserveTool implements tool.Observer.
func (m *Metrics) ObserveTool(name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(name, status).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ToolObserver returns ObserveTool as a tool.Observer.
func (m *Metrics) ToolObserver() tool.Observer { return m.ObserveTool }

// Hooks returns engine hooks feeding the session, turn and score collectors.
func (m *Metrics) Hooks() []engine.Hook {
	return []engine.Hook{
		engine.NewFunctionHook(engine.HookOnSessionCreated, func(context.Context, *engine.HookContext) error {
			m.SessionsCreated.Inc()
			return nil
		}),
		engine.NewFunctionHook(engine.HookOnSessionCompleted, func(context.Context, *engine.HookContext) error {
			m.SessionsCompleted.Inc()
			return nil
		}),
		engine.NewFunctionHook(engine.HookAfterTurn, func(_ context.Context, hc *engine.HookContext) error {
			m.TurnsTotal.WithLabelValues(hc.Outcome).Inc()
			m.TurnDuration.Observe(hc.Duration.Seconds())
			return nil
		}),
		engine.NewFunctionHook(engine.HookOnScore, func(_ context.Context, hc *engine.HookContext) error {
			m.ScoresTotal.Inc()
			if hc.Score != nil && hc.Score.Max > 0 {
				m.ScoreRatio.Observe(hc.Score.Ratio())
			}
			return nil
		}),
	}
}
