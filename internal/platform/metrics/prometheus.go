package metrics

import (
	"net/http"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	"governor/contexts/treasury-governance/governance-engine/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Governance exports engine outcomes on its own registry.
type Governance struct {
	registry          *prometheus.Registry
	proposalsCreated  prometheus.Counter
	votesCast         *prometheus.CounterVec
	voteWeight        *prometheus.CounterVec
	executions        *prometheus.CounterVec
	rejectedOperation *prometheus.CounterVec
}

var _ ports.Metrics = (*Governance)(nil)

func NewGovernance() *Governance {
	registry := prometheus.NewRegistry()
	m := &Governance{
		registry: registry,
		proposalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "proposals_created_total",
			Help:      "Proposals created.",
		}),
		votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "votes_cast_total",
			Help:      "Votes accepted, by choice.",
		}, []string{"choice"}),
		voteWeight: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "vote_weight_total",
			Help:      "Weight added to tallies, by choice.",
		}, []string{"choice"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "executions_total",
			Help:      "Executions that reached the transfer, by payout outcome.",
		}, []string{"outcome"}),
		rejectedOperation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "operations_rejected_total",
			Help:      "Rejected engine operations, by operation and reason.",
		}, []string{"operation", "reason"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.proposalsCreated,
		m.votesCast,
		m.voteWeight,
		m.executions,
		m.rejectedOperation,
	)
	return m
}

func (m *Governance) ProposalCreated() {
	m.proposalsCreated.Inc()
}

func (m *Governance) VoteCast(choice entities.VoteChoice, weight uint64) {
	m.votesCast.WithLabelValues(string(choice)).Inc()
	m.voteWeight.WithLabelValues(string(choice)).Add(float64(weight))
}

func (m *Governance) ExecutionFinished(outcome string) {
	m.executions.WithLabelValues(outcome).Inc()
}

func (m *Governance) OperationRejected(operation string, reason string) {
	m.rejectedOperation.WithLabelValues(operation, reason).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Governance) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Governance) Registry() *prometheus.Registry {
	return m.registry
}
