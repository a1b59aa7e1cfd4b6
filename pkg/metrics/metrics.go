// Package metrics exposes Prometheus instruments for the simulation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "apiary"

// Metrics holds the engine's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Ticks         prometheus.Counter
	TickFailures  prometheus.Counter
	TickDuration  prometheus.Histogram
	QueensAged    prometheus.Counter
	CombsProduced *prometheus.CounterVec
	QueenDeaths   prometheus.Counter
	DeathFailures prometheus.Counter
	Breeds        *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	Requests      *prometheus.CounterVec
}

// New registers every collector, plus Go runtime and process collectors, on
// a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Hive ticks completed.",
		}),
		TickFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tick_failures_total",
			Help: "Hive ticks that failed before completing.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time of one hive tick.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		QueensAged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queens_aged_total",
			Help: "Queen-ticks of aging applied.",
		}),
		CombsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "combs_produced_total",
			Help: "Combs deposited into hives, by item.",
		}, []string{"item"}),
		QueenDeaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queen_deaths_total",
			Help: "Queens that died and left a brood.",
		}),
		DeathFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queen_death_failures_total",
			Help: "Queen deaths that failed and will be retried next tick.",
		}),
		Breeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "breeds_total",
			Help: "Successful breedings, by resulting type.",
		}, []string{"type"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Player notifications, by outcome.",
		}, []string{"outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "API requests served, by route pattern and status code.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ticks, m.TickFailures, m.TickDuration, m.QueensAged,
		m.CombsProduced, m.QueenDeaths, m.DeathFailures, m.Breeds, m.Notifications, m.Requests,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTick records the outcome of one tick.
func (m *Metrics) ObserveTick(elapsed time.Duration, err error) {
	m.TickDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.TickFailures.Inc()
		return
	}
	m.Ticks.Inc()
}
