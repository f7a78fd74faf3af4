// Package metrics exposes Prometheus instrumentation for the governance
// engine and its collaborator clients.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CollectionsCreated counts collection creations by governance model.
	CollectionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Name:      "collections_created_total",
		Help:      "Collections created, labeled by governance model.",
	}, []string{"model"})

	// ProposalsCreated counts proposal creations by model and action kind.
	ProposalsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Name:      "proposals_created_total",
		Help:      "Proposals created, labeled by governance model and action.",
	}, []string{"model", "action"})

	// VotesCast counts recorded votes by model and choice.
	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Name:      "votes_cast_total",
		Help:      "Votes recorded, labeled by governance model and choice.",
	}, []string{"model", "choice"})

	// Executions counts execution attempts that reached commit, by outcome.
	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Name:      "proposal_executions_total",
		Help:      "Proposal executions committed, labeled by action and outcome.",
	}, []string{"action", "outcome"})

	// ProposalsExpired counts proposals lazily marked expired.
	ProposalsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agora",
		Name:      "proposals_expired_total",
		Help:      "Proposals marked expired.",
	})

	// DocumentsEmbedded counts documents successfully embedded.
	DocumentsEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agora",
		Name:      "documents_embedded_total",
		Help:      "Documents embedded through approved proposals.",
	})

	// CollaboratorLatency observes request/reply round trips to external
	// services, labeled by service and operation.
	CollaboratorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agora",
		Name:      "collaborator_request_seconds",
		Help:      "Latency of collaborator service calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "operation"})

	// DocumentsIngested counts documents accepted through ingestion flows.
	DocumentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Name:      "documents_ingested_total",
		Help:      "Documents ingested, labeled by source kind.",
	}, []string{"source"})
)
