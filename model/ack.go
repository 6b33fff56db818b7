package model

import "time"

// AckCounters are the counters of one acknowledged-send benchmark run.
type AckCounters struct {
	// PacketsSent counts logical packets that completed delivery.
	PacketsSent int64 `json:"packets_sent"`

	// PacketsAcked counts acknowledged send attempts.
	PacketsAcked int64 `json:"packets_acked"`

	// Retries counts send attempts that were not acknowledged.
	Retries int64 `json:"retries"`
}

// Attempts returns the number of send attempts so far.
func (c AckCounters) Attempts() int64 {
	return c.PacketsAcked + c.Retries
}

// SuccessPercent returns the share of attempts that were acknowledged.
func (c AckCounters) SuccessPercent() float64 {
	if c.Attempts() == 0 {
		return 0
	}
	return float64(c.PacketsAcked) / float64(c.Attempts()) * 100
}

// AckSample is a periodic snapshot of an acknowledged-send benchmark.
type AckSample struct {
	// Counters is a copy of the run counters when the sample was taken.
	Counters AckCounters `json:"counters"`

	// SuccessPercent is PacketsAcked / (PacketsAcked + Retries) * 100.
	SuccessPercent float64 `json:"success_percent"`

	// DataBytes is the volume of acknowledged payload.
	DataBytes int64 `json:"data_bytes"`

	// Elapsed is the wall time since the run started.
	Elapsed time.Duration `json:"elapsed"`

	// Throughput is DataBytes per second of Elapsed.
	Throughput float64 `json:"throughput_bytes_per_second"`
}

// TxResult is the outcome of a rate sweep transmission.
type TxResult struct {
	// PacketsSent counts packets handed to the transport.
	PacketsSent int64 `json:"packets_sent"`

	// PacketsAcked counts acknowledged packets when sending synchronously.
	PacketsAcked int64 `json:"packets_acked"`

	// RatesSwept counts the rates the transmitter switched to.
	RatesSwept int `json:"rates_swept"`

	// Complete is true once every rate in the table was swept.
	Complete bool `json:"complete"`
}
