// Package model contains the data structures produced by the benchmarks.
package model

import "time"

// PeerStats accumulates what a receiver observed for one rate tag.
type PeerStats struct {
	// Rate is the decoded rate tag this bucket is keyed by.
	Rate string `json:"rate"`

	// PacketCount is the number of packets received with this tag.
	PacketCount int64 `json:"packet_count"`

	// TotalBytes is the number of payload bytes received with this tag.
	TotalBytes int64 `json:"total_bytes"`

	// StartTime is when the first packet with this tag arrived.
	StartTime time.Time `json:"start_time"`

	// LastTime is when the latest packet with this tag arrived.
	LastTime time.Time `json:"last_time"`

	// Throughput is TotalBytes divided by the seconds elapsed since
	// StartTime, as of the latest packet.
	Throughput float64 `json:"throughput_bytes_per_second"`

	// SignalQuality is the transport's per-peer signal metric (e.g. RSSI in
	// dBm) sampled when the first packet with this tag arrived.
	SignalQuality int `json:"signal_quality"`
}

// NewPeerStats creates the bucket for the first packet with a tag.
func NewPeerStats(rate string, now time.Time, signalQuality int) *PeerStats {
	return &PeerStats{
		Rate:          rate,
		StartTime:     now,
		LastTime:      now,
		SignalQuality: signalQuality,
	}
}

// Add accounts for a packet of n bytes received at now. The throughput is
// only recomputed when some time has elapsed since StartTime.
func (ps *PeerStats) Add(n int, now time.Time) {
	ps.PacketCount++
	ps.TotalBytes += int64(n)
	ps.LastTime = now
	elapsed := now.Sub(ps.StartTime)
	if elapsed > 0 {
		ps.Throughput = float64(ps.TotalBytes) / elapsed.Seconds()
	}
}

// KBps returns the throughput in kilobytes per second.
func (ps *PeerStats) KBps() float64 {
	return ps.Throughput / 1000
}
