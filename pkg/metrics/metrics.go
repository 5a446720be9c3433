package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TransactionsRecorded counts ledger rows created, by type and status.
var TransactionsRecorded = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "walletd_transactions_recorded_total",
		Help: "Total number of ledger transactions recorded",
	},
	[]string{"type", "status"},
)

// DuplicateEvents counts gateway events suppressed by the idempotency guard.
var DuplicateEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "walletd_duplicate_events_total",
		Help: "Total number of duplicate gateway events suppressed",
	},
	[]string{"gateway", "type"},
)

// WorkflowTransitions counts deposit/withdrawal state transitions.
var WorkflowTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "walletd_workflow_transitions_total",
		Help: "Total number of deposit and withdrawal status transitions",
	},
	[]string{"workflow", "to"},
)

// GatewayFailures counts failed or indeterminate gateway calls.
var GatewayFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "walletd_gateway_failures_total",
		Help: "Total number of failed external gateway calls",
	},
	[]string{"gateway", "op"},
)

// DBOpenConns tracks open connections in the DB pool.
var DBOpenConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "walletd_db_open_connections",
		Help: "Number of open connections in the DB pool",
	},
	[]string{"db"},
)

func init() {
	prometheus.MustRegister(TransactionsRecorded, DuplicateEvents, WorkflowTransitions, GatewayFailures, DBOpenConns)
}
