package hostsblock

import (
	"sync"
	"testing"

	"github.com/coredns/coredns/plugin"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "hostrep"

var (
	dnsResponseCount *prometheus.CounterVec
	apiRequestCount  *prometheus.CounterVec
	scanEventCount   *prometheus.CounterVec
	metricsOnce      sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		var registry prometheus.Registerer = prometheus.DefaultRegisterer

		if testing.Testing() {
			// Use isolated registry in tests to avoid metric collisions
			registry = prometheus.NewRegistry()
		}

		dnsResponseCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "dns_responses_total",
			Help:      "Counter of DNS queries seen by the hosts block list filter.",
		}, []string{"type"})

		apiRequestCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "api_requests_total",
			Help:      "Counter of scan API requests by HTTP status code.",
		}, []string{"code"})

		scanEventCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: plugin.Namespace,
			Subsystem: subsystem,
			Name:      "scan_events_total",
			Help:      "Counter of scan events by direction and type.",
		}, []string{"direction", "type"})

		registry.MustRegister(dnsResponseCount, apiRequestCount, scanEventCount)
	})
}
