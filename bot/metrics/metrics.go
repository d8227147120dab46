// Package metrics exposes orchestration counters on prometheus and a
// read-only debug registry of last plans and prompts per session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the engine's prometheus metrics.
type Collector struct {
	EventsIn         prometheus.Counter
	EventsDropped    prometheus.Counter
	DebounceFlushes  prometheus.Counter
	PlansByMode      *prometheus.CounterVec
	RepliesSent      prometheus.Counter
	SegmentsSent     prometheus.Counter
	SendCancelled    prometheus.Counter
	SendFailures     prometheus.Counter
	LLMFailures      prometheus.Counter
	LLMLatency       prometheus.Histogram
	EnergyGauge      prometheus.Gauge
	GuardSkips       prometheus.Counter
	CommandsHandled  prometheus.Counter
	StaleBackfill    prometheus.Counter
	InterruptionsHit prometheus.Counter
}

// NewCollector registers the engine metrics on the given registerer
// (nil uses the default registry).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		EventsIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "events_in_total",
			Help: "Inbound chat events observed by the orchestrator.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "events_dropped_total",
			Help: "Malformed events dropped at preprocess.",
		}),
		DebounceFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "debounce_flushes_total",
			Help: "Debounced snapshots delivered to the orchestrator.",
		}),
		PlansByMode: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "plans_total",
			Help: "Planner decisions by resulting mode.",
		}, []string{"mode"}),
		RepliesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "replies_sent_total",
			Help: "Replies fully delivered (all segments).",
		}),
		SegmentsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "segments_sent_total",
			Help: "Individual message segments sent.",
		}),
		SendCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "sends_cancelled_total",
			Help: "Sends aborted by typing interruption.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "send_failures_total",
			Help: "Adapter send errors.",
		}),
		LLMFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "llm_failures_total",
			Help: "LLM chat call failures.",
		}),
		LLMLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "groupparrot", Name: "llm_latency_seconds",
			Help:    "LLM chat call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		EnergyGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "groupparrot", Name: "energy",
			Help: "Current bot energy in [0,1].",
		}),
		GuardSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "guard_skips_total",
			Help: "Flushes skipped by the turn-taking guard.",
		}),
		CommandsHandled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "commands_handled_total",
			Help: "Slash commands dispatched.",
		}),
		StaleBackfill: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "stale_backfill_total",
			Help: "Events stored as stale backfill without processing.",
		}),
		InterruptionsHit: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "groupparrot", Name: "typing_interruptions_total",
			Help: "Typing tokens cancelled by incoming traffic.",
		}),
	}
}
