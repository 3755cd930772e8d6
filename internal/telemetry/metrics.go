// Package telemetry exposes the relay's Prometheus metrics.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	CommandsTotal   *prometheus.CounterVec
	MessagesTotal   prometheus.Counter
	ForwardsTotal   *prometheus.CounterVec
	RegistryEntries *prometheus.GaugeVec
	PublishDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "kwrelay_commands_total", Help: "Commands handled, by command and final state"}, []string{"command", "state"})
		MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "kwrelay_messages_total", Help: "Plain messages evaluated against the keyword set"})
		ForwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "kwrelay_forwards_total", Help: "Matched messages, by forwarding result"}, []string{"result"})
		RegistryEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "kwrelay_registry_entries", Help: "Current number of entries per registry resource"}, []string{"resource"})
		PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "kwrelay_publish_duration_seconds", Help: "Time spent handing a notification to the target", Buckets: prometheus.DefBuckets})
	})
}

// SetRegistrySize records the size of a registry resource.
func SetRegistrySize(resource string, n int) {
	if RegistryEntries != nil {
		RegistryEntries.WithLabelValues(resource).Set(float64(n))
	}
}
