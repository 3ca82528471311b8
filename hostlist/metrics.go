package hostlist

import (
	"sync"
	"testing"

	"github.com/coredns/coredns/plugin"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "hostrep_list"

var (
	fetchTotal       *prometheus.CounterVec
	cacheLookupTotal *prometheus.CounterVec
	lookupTotal      *prometheus.CounterVec
	entriesGauge     prometheus.Gauge
	lastUpdateGauge  prometheus.Gauge
	metricsOnce      sync.Once
)

// InitMetrics initializes and registers block list metrics.
// Uses sync.Once so the plugin and tests can both call it.
func InitMetrics() {
	metricsOnce.Do(func() {
		var registry prometheus.Registerer = prometheus.DefaultRegisterer

		if testing.Testing() {
			// Use isolated registry in tests to avoid metric collisions
			registry = prometheus.NewRegistry()
		}

		fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "fetch_total",
			Help:      "Total number of block list downloads by result.",
		}, []string{"result"})

		cacheLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "cache_lookups_total",
			Help:      "Total number of block list cache lookups by result.",
		}, []string{"result"})

		lookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "lookups_total",
			Help:      "Total number of hostname checks by result.",
		}, []string{"result"})

		entriesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "entries",
			Help:      "Number of hostnames in the last parsed block list.",
		})

		lastUpdateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "last_update_timestamp",
			Help:      "Unix timestamp of last successful download.",
		})

		registry.MustRegister(fetchTotal, cacheLookupTotal, lookupTotal, entriesGauge, lastUpdateGauge)
	})
}

func incFetch(result string) {
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(result).Inc()
	}
}

func incCacheLookup(result string) {
	if cacheLookupTotal != nil {
		cacheLookupTotal.WithLabelValues(result).Inc()
	}
}

func incLookup(result string) {
	if lookupTotal != nil {
		lookupTotal.WithLabelValues(result).Inc()
	}
}

func updateEntries(count int) {
	if entriesGauge != nil {
		entriesGauge.Set(float64(count))
	}
}

func updateLastUpdate(unixTimestamp int64) {
	if lastUpdateGauge != nil {
		lastUpdateGauge.Set(float64(unixTimestamp))
	}
}
