// Package metrics contains the prometheus metrics exported by the linkbench
// transmitter, receiver and acknowledged-send benchmark.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics shared by every benchmark mode.
var (
	PacketsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbench_packets_sent_total",
			Help: "Number of benchmark packets handed to the radio.",
		},
		[]string{"mode", "rate"},
	)
	SendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbench_send_errors_total",
			Help: "Number of send attempts that failed, by mode and error.",
		},
		[]string{"mode", "error"},
	)
	PacketsAcked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbench_packets_acked_total",
			Help: "Number of sends acknowledged by the peer.",
		},
		[]string{"mode"},
	)
	AckRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkbench_ack_retries_total",
			Help: "Number of unacknowledged sends that were retried.",
		},
	)
	RateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbench_rate_changes_total",
			Help: "Number of times the transmitter switched to a rate.",
		},
		[]string{"rate"},
	)
	PacketsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbench_packets_received_total",
			Help: "Number of benchmark packets received, by decoded rate tag.",
		},
		[]string{"rate"},
	)
	BytesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkbench_received_bytes_total",
			Help: "Number of payload bytes received, by decoded rate tag.",
		},
		[]string{"rate"},
	)
	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkbench_decode_errors_total",
			Help: "Number of received packets skipped because of an unrecognized rate tag.",
		},
	)
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "linkbench_throughput_bytes_per_second",
			Help: "Latest receive throughput, by decoded rate tag.",
		},
		[]string{"rate"},
	)
	SignalQuality = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "linkbench_signal_quality",
			Help: "Signal quality sampled at the first packet of each rate tag.",
		},
		[]string{"rate"},
	)
	ReceiverState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkbench_receiver_state",
			Help: "State of the receiver: 0 idle, 1 streaming, 2 reporting.",
		},
	)
	RadioDroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkbench_radio_dropped_frames_total",
			Help: "Number of frames dropped because the radio receive buffer was full.",
		},
	)
	AckSuccessRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkbench_ack_success_ratio",
			Help: "Latest sampled ratio of acknowledged send attempts.",
		},
	)
)
