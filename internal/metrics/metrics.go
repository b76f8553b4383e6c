// Package metrics exposes Prometheus instrumentation for the scanner loop.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ResaleScanner/internal/domain"
)

const namespace = "resale_scanner"

// Metrics holds all collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	CyclesTotal         prometheus.Counter
	CandidatesTotal     *prometheus.CounterVec
	OutcomesTotal       *prometheus.CounterVec
	RemoteCallsTotal    *prometheus.CounterVec
	RemoteCallSeconds   *prometheus.HistogramVec
	ThrottleWaitSeconds *prometheus.CounterVec
	RefreshesTotal      *prometheus.CounterVec
}

// New creates and registers the collectors on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Search cycles started",
		}),
		CandidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidates seen per filtering stage",
		}, []string{"stage"}),
		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_outcomes_total",
			Help:      "Terminal pipeline outcomes",
		}, []string{"outcome"}),
		RemoteCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote function invocations by result",
		}, []string{"function", "result"}),
		RemoteCallSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote function invocation latency",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"function"}),
		ThrottleWaitSeconds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_wait_seconds_total",
			Help:      "Time spent waiting at rate-limit gates",
		}, []string{"gate"}),
		RefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_refreshes_total",
			Help:      "Remedial refreshes issued after invocation failures",
		}, []string{"function"}),
	}
}

func (m *Metrics) ObserveCycle() {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
}

func (m *Metrics) ObserveCandidates(stage string, n int) {
	if m == nil {
		return
	}
	m.CandidatesTotal.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) ObserveOutcome(outcome domain.Outcome) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ObserveRemoteCall(function, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCallsTotal.WithLabelValues(function, result).Inc()
	m.RemoteCallSeconds.WithLabelValues(function).Observe(d.Seconds())
}

func (m *Metrics) ObserveThrottleWait(gate string, d time.Duration) {
	if m == nil {
		return
	}
	m.ThrottleWaitSeconds.WithLabelValues(gate).Add(d.Seconds())
}

func (m *Metrics) ObserveRefresh(function string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(function).Inc()
}

// Serve exposes /metrics on addr until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics listener started", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
