/*
Package metrics provides Prometheus metrics collection and exposition for
sentinel's lifecycle supervisor and discovery registry.

The package defines and registers sentinel's metrics using the Prometheus
client library: how many runs are in which lifecycle state, how many live
nodes this process currently holds, how many command messages have been
processed and with what outcome, and how many members each discovered
service currently has. Metrics are exposed via an HTTP endpoint for
scraping by a Prometheus server.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Lifecycle: current state per run           │          │
	│  │  Live nodes: held ephemeral presence markers│          │
	│  │  Messages: processed count by outcome       │          │
	│  │  Discovery: members per service, reg. count │          │
	│  │  Coordinator: op latency, session events    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Collection strategy

Lifecycle, message, and coordinator-operation metrics are updated inline
at the call site that observes the event (a state transition, a
processed message, a raft apply) rather than polled, so this package has
no dependency on pkg/coordinator, pkg/lifecycle, or pkg/discovery —
keeping it a leaf package those import freely. Discovery membership
rides the resolver's own refresh: every snapshot install sets
DiscoveryMembers for that service, so the gauge tracks the watch-driven
view rather than being polled separately.

# Alerting

No Endpoints For A Service:
  - Alert: sentinel_discovery_members{service="..."} == 0
  - Action: check whether the service's supervised runs have failed

Frequent Session Expiry:
  - Alert: rate(sentinel_coordinator_session_events_total{type="Expired"}[5m]) > 0
  - Action: check coordinator connectivity and session lease tuning

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
