// Package metrics defines the Prometheus counters and gauges exposed by the
// process: segment/datagram accounting, retransmission and backlog
// behavior, and the single TCP slot's current state. None of this is named
// anywhere in spec.md -- the embedded target spec.md describes has no
// metrics surface of its own -- but every component below has a concrete
// producer in this module, so it is wired rather than left as a table of
// unused gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsIn counts TCP segments handed to the slot with at least a
	// full header, including ones it then drops for a bad data offset or
	// port, labeled by the state the slot was in when the segment arrived.
	SegmentsIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpofo_tcp_segments_in_total",
			Help: "TCP segments delivered to the connection slot, by slot state at arrival.",
		}, []string{"state"})

	// SegmentsOut counts TCP segments emitted by the slot, labeled by the
	// flags carried as tcpslot.Flags.String renders them (e.g. "[SYN,ACK]",
	// "[ACK]", "[FIN,ACK]").
	SegmentsOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpofo_tcp_segments_out_total",
			Help: "TCP segments emitted by the connection slot, by flag combination.",
		}, []string{"flags"})

	// RetransmitAttempts counts retransmissions of the single outstanding
	// cell, per spec.md §4.6's retransmission rule.
	RetransmitAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpofo_tcp_retransmit_attempts_total",
			Help: "Retransmissions of the outstanding unacknowledged segment.",
		})

	// RetransmitAbandoned counts sends abandoned after exhausting the
	// retry budget (spec.md §4.6, §8 scenario 4).
	RetransmitAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpofo_tcp_retransmit_abandoned_total",
			Help: "Sends abandoned after exhausting the maximum retransmit attempts.",
		})

	// BacklogDrops counts SYNs rejected because the fixed-size backlog
	// table was full (spec.md §3 "resource exhaustion").
	BacklogDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpofo_tcp_backlog_drops_total",
			Help: "SYNs dropped because the connection backlog was full.",
		})

	// BacklogExpired counts backlog entries discarded for aging out before
	// the slot became free to accept them.
	BacklogExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpofo_tcp_backlog_expired_total",
			Help: "Backlog entries discarded after exceeding the backlog expiry.",
		})

	// EchoRequests counts inbound ICMP echo requests answered (spec.md
	// §4.5).
	EchoRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "httpofo_icmp_echo_requests_total",
			Help: "ICMP echo requests answered with an echo reply.",
		})

	// DatagramsDropped counts inbound IPv4 datagrams rejected by
	// validation (bad checksum, wrong destination, truncated header;
	// spec.md §7's "silently dropped" rule, made observable).
	DatagramsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpofo_ipv4_datagrams_dropped_total",
			Help: "Inbound IPv4 datagrams rejected during validation, by reason.",
		}, []string{"reason"})

	// SlotState is a gauge of the single connection slot's current state,
	// encoded as the State's ordinal value so a single time series covers
	// the whole machine.
	SlotState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpofo_tcp_slot_state",
			Help: "Current state of the single TCP connection slot, as tcpslot.State's ordinal value.",
		})
)
