// Package metrics exposes prometheus collectors for the memory subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesUpserted counts memory candidates written (insert or
	// reinforcement; the two are indistinguishable to the caller).
	CandidatesUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoria_memory_candidates_upserted_total",
		Help: "Number of memory candidates written to the store.",
	})

	// CandidatesRejected counts malformed candidates dropped at validation.
	CandidatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoria_memory_candidates_rejected_total",
		Help: "Number of memory candidates rejected by validation.",
	})

	// TopMemoryQueries counts ranking reads.
	TopMemoryQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoria_top_memory_queries_total",
		Help: "Number of top-memory ranking queries served.",
	})

	// RankingDuration observes end-to-end latency of a ranking read.
	RankingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memoria_top_memory_query_duration_seconds",
		Help:    "Latency of top-memory ranking queries.",
		Buckets: prometheus.DefBuckets,
	})

	// UserPurges counts right-to-erasure purges.
	UserPurges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoria_user_purges_total",
		Help: "Number of user memory purges executed.",
	})
)
