// Package metrics exposes Prometheus instrumentation for the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "am_mutations_total",
		Help: "Mutations applied by the state hub, by mutation type and result",
	}, []string{"type", "result"})

	stateSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "am_state_subscribers",
		Help: "Currently registered state-snapshot subscribers",
	})

	reconcilerCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "am_reconciler_commands_total",
		Help: "Compositor commands issued per host and command type",
	}, []string{"host", "command"})

	hostConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "am_host_connected",
		Help: "Whether the compositor connection for a host is up",
	}, []string{"host"})

	mixerPeak = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "am_mixer_peak_dbfs",
		Help: "Most recent mixed-output peak level per host",
	}, []string{"host"})

	mixerRMS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "am_mixer_rms_dbfs",
		Help: "Most recent mixed-output RMS level per host",
	}, []string{"host"})
)

func init() {
	registry.MustRegister(
		mutationsTotal,
		stateSubscribers,
		reconcilerCommands,
		hostConnected,
		mixerPeak,
		mixerRMS,
	)
}

// MutationApplied records one hub mutation.
func MutationApplied(mutationType string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	mutationsTotal.WithLabelValues(mutationType, result).Inc()
}

// SetStateSubscribers records the snapshot fanout width.
func SetStateSubscribers(n int) {
	stateSubscribers.Set(float64(n))
}

// ReconcilerCommand records one compositor command.
func ReconcilerCommand(host, command string) {
	reconcilerCommands.WithLabelValues(host, command).Inc()
}

// SetHostConnected records a host's connection state.
func SetHostConnected(host string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	hostConnected.WithLabelValues(host).Set(v)
}

// ObserveMixerLevels records the latest mixed-output levels for a host.
func ObserveMixerLevels(host string, peakDB, rmsDB float64) {
	mixerPeak.WithLabelValues(host).Set(peakDB)
	mixerRMS.WithLabelValues(host).Set(rmsDB)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
