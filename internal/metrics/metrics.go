// Package metrics defines all Prometheus metrics for athena-dhclient.
// All metrics use the "athena_dhclient_" prefix.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "athena_dhclient"

// --- DHCP Packet Metrics ---

var (
	// PacketsReceived counts replies accepted by the transaction engine, by message type.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Total DHCP replies accepted, by message type.",
	}, []string{"msg_type"})

	// PacketsSent counts DHCP packets sent by message type.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Total DHCP packets sent, by message type.",
	}, []string{"msg_type"})

	// PacketsDiscarded counts received datagrams that were ignored.
	PacketsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_discarded_total",
		Help:      "Total received datagrams discarded, by reason (decode, op, xid, type, no_server_id, server_id, truncated).",
	}, []string{"reason"})

	// PacketErrors counts local send/receive failures.
	PacketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packet_errors_total",
		Help:      "Total transport errors, by type.",
	}, []string{"type"})
)

// --- Exchange Metrics ---

var (
	// Exchanges counts finished acquisition runs by outcome.
	Exchanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exchanges_total",
		Help:      "Total DHCP exchanges, by outcome (bound, nak, offer_mismatch, timeout, error).",
	}, []string{"outcome"})

	// Attempts counts DISCOVER attempts, including retries.
	Attempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attempts_total",
		Help:      "Total DISCOVER attempts, including retries.",
	})

	// ExchangeDuration tracks time from first DISCOVER to the final outcome.
	ExchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "exchange_duration_seconds",
		Help:      "DHCP exchange duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 4, 8, 16, 32, 64, 128},
	}, []string{"outcome"})

	// OffersSeen counts offers observed during surveys, by server identifier.
	OffersSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "survey_offers_total",
		Help:      "Total DHCPOFFERs collected by surveys, by server identifier.",
	}, []string{"server_id"})
)

// --- Lease Metrics ---

var (
	// LeaseSeconds is the lease duration granted by the last DHCPACK.
	LeaseSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lease_seconds",
		Help:      "Lease duration granted by the last DHCPACK, 0 when unknown.",
	})

	// LeaseBoundTime is when the last lease was bound.
	LeaseBoundTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "lease_bound_time_seconds",
		Help:      "Unix timestamp of the last DHCPACK.",
	})
)

// --- Hook Metrics ---

var (
	// HookExecutions counts hook executions by type and result.
	HookExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_executions_total",
		Help:      "Total hook executions.",
	}, []string{"hook_type", "result"})

	// HookDuration tracks hook execution latency.
	HookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hook_execution_duration_seconds",
		Help:      "Hook execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
	}, []string{"hook_type"})
)

// --- Client Info ---

var (
	// ClientInfo exposes build information.
	ClientInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "info",
		Help:      "Client build information.",
	}, []string{"version"})
)

// WriteTextfile writes every registered metric to path in the text exposition
// format, for the node_exporter textfile collector. The write is atomic.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
