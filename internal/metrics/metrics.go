// internal/metrics/metrics.go
//
// Package metrics holds the service's Prometheus instruments on a private
// registry, exposed in text format by the /metrics handler.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// ContentType is the exposition content type for the text format below.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Registry collects every instrument below; the default registry is not
// used so stray library collectors never leak into the exposition.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		TurnsTotal, TurnDuration, TurnErrors,
		ToolCalls, LLMTokens,
		ActiveStreams, PersistFailures,
	)
}

// TurnsTotal counts completed turns by drive mode and outcome.
var TurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fathom_turns_total",
		Help: "Completed turns by mode and outcome.",
	},
	[]string{"mode", "outcome"}, // mode: local|remote|headless; outcome: ok|error
)

// TurnDuration observes wall time per turn.
var TurnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "fathom_turn_duration_seconds",
		Help:    "Turn duration in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"mode"},
)

// TurnErrors counts failed turns by error class.
var TurnErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fathom_turn_errors_total",
		Help: "Failed turns by error category.",
	},
	[]string{"category"},
)

// ToolCalls counts tool invocations by tool name and status.
var ToolCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fathom_tool_calls_total",
		Help: "Tool invocations by name and status.",
	},
	[]string{"tool", "status"}, // status: ok|error
)

// LLMTokens counts provider tokens by direction.
var LLMTokens = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fathom_llm_tokens_total",
		Help: "Provider tokens consumed by direction.",
	},
	[]string{"direction"}, // input | output
)

// ActiveStreams tracks currently open client streams.
var ActiveStreams = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "fathom_active_streams",
		Help: "Client streams currently open.",
	},
)

// PersistFailures counts history writes that failed after a finished turn.
var PersistFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fathom_persist_failures_total",
		Help: "History appends that failed after a finished turn.",
	},
)

// WritePrometheus writes the registry in Prometheus text format.
func WritePrometheus(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
