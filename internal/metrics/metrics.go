// Package metrics holds the prometheus collectors of the bot.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. The zero value is usable and records nothing
// until Register is called.
type Metrics struct {
	commands      *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	ingestedRows  *prometheus.CounterVec
	mismatches    prometheus.Gauge
	lastReconcile prometheus.Gauge

	registerOnce sync.Once
}

// New creates metrics registered with registry. A nil registry records nothing.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.Register(registry)
	return m
}

// Register registers the collectors with registry. It is idempotent.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.commands = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assobot_commands_total",
			Help: "Total number of chat commands handled",
		}, []string{"command", "result"})

		m.cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assobot_cache_lookups_total",
			Help: "Total number of result cache lookups",
		}, []string{"op", "result"})

		m.ingestedRows = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assobot_ingested_rows_total",
			Help: "Total number of rows written by spreadsheet ingestion",
		}, []string{"entity"})

		m.mismatches = factory.NewGauge(prometheus.GaugeOpts{
			Name: "assobot_role_mismatches",
			Help: "Number of role group mismatches found by the last reconciliation",
		})

		m.lastReconcile = factory.NewGauge(prometheus.GaugeOpts{
			Name: "assobot_role_reconcile_timestamp_seconds",
			Help: "Unix time of the last successful reconciliation",
		})
	})
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// ObserveCommand counts one handled command
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil || m.commands == nil {
		return
	}
	m.commands.WithLabelValues(command, result(err == nil, "ok", "error")).Inc()
}

// ObserveCache counts one cache lookup. Its signature matches cache.WithObserver.
func (m *Metrics) ObserveCache(op string, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	m.cacheLookups.WithLabelValues(op, result(hit, "hit", "miss")).Inc()
}

// AddIngested counts rows written for one entity type
func (m *Metrics) AddIngested(entity string, n int) {
	if m == nil || m.ingestedRows == nil || n <= 0 {
		return
	}
	m.ingestedRows.WithLabelValues(entity).Add(float64(n))
}

// SetMismatches records the outcome of a reconciliation finished at unix time ts
func (m *Metrics) SetMismatches(n int, ts int64) {
	if m == nil || m.mismatches == nil {
		return
	}
	m.mismatches.Set(float64(n))
	m.lastReconcile.Set(float64(ts))
}
