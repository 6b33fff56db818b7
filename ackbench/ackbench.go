// Package ackbench measures acknowledged throughput over a radio link.
//
// Every logical packet is sent with an acknowledgement request and resent,
// without backoff and without ever giving up, until it is acknowledged. The
// benchmark measures how often delivery succeeds and the effective data
// rate, not how a link behaves under congestion.
package ackbench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/m-lab/linkbench/config"
	"github.com/m-lab/linkbench/logging"
	"github.com/m-lab/linkbench/metrics"
	"github.com/m-lab/linkbench/model"
	"github.com/m-lab/linkbench/radio"
)

// payloadPrefix starts every payload.
const payloadPrefix = "msg:"

// padByte fills payloads to their configured size.
const padByte = '.'

// ErrPayloadTooSmall means the configured size cannot hold a payload.
var ErrPayloadTooSmall = errors.New("ackbench: payload too small")

// Payload returns the payload of logical packet seq, padded to size.
func Payload(seq int64, size int) ([]byte, error) {
	head := payloadPrefix + strconv.FormatInt(seq, 10)
	if len(head) > size {
		return nil, fmt.Errorf("%w: %q does not fit in %d bytes", ErrPayloadTooSmall, head, size)
	}
	buf := bytes.Repeat([]byte{padByte}, size)
	copy(buf, head)
	return buf, nil
}

// Benchmark drives acknowledged sends to Peer.
type Benchmark struct {
	Transport radio.Transport
	Peer      radio.PeerID
	Config    config.Ack

	// Diag, if set, is read passively after every acknowledged send.
	Diag radio.Transport

	// OnSample, if set, receives every periodic sample.
	OnSample func(model.AckSample)

	// Now returns the current time. It defaults to time.Now.
	Now func() time.Time

	counters model.AckCounters
	start    time.Time
}

func (b *Benchmark) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// Counters returns the counters of the current or last run.
func (b *Benchmark) Counters() model.AckCounters {
	return b.counters
}

// Sample computes a snapshot of the run so far.
func (b *Benchmark) Sample() model.AckSample {
	c := b.counters
	s := model.AckSample{
		Counters:       c,
		SuccessPercent: c.SuccessPercent(),
		DataBytes:      c.PacketsAcked * int64(b.Config.PacketSize),
		Elapsed:        b.now().Sub(b.start),
	}
	if s.Elapsed > 0 {
		s.Throughput = float64(s.DataBytes) / s.Elapsed.Seconds()
	}
	return s
}

func (b *Benchmark) sample() {
	s := b.Sample()
	metrics.AckSuccessRatio.Set(s.SuccessPercent / 100)
	logging.Logger.WithFields(log.Fields{
		"success_percent": s.SuccessPercent,
		"data_kB":         float64(s.DataBytes) / 1000,
		"elapsed_s":       s.Elapsed.Seconds(),
		"rate_kBps":       s.Throughput / 1000,
	}).Info("ackbench: sample")
	if b.OnSample != nil {
		b.OnSample(s)
	}
}

// attempt sends one copy of payload and reports whether it was acknowledged.
func (b *Benchmark) attempt(payload []byte) (bool, error) {
	acked, err := b.Transport.Send(b.Peer, payload, true)
	if errors.Is(err, radio.ErrNoAck) {
		return false, nil
	}
	if err != nil {
		metrics.SendErrors.WithLabelValues(config.ModeAck, "transport").Inc()
		return false, fmt.Errorf("ackbench: send: %w", err)
	}
	return acked, nil
}

// diagnose passively reads one frame from Diag. A failed read only
// suppresses the log line.
func (b *Benchmark) diagnose() {
	if b.Diag == nil {
		return
	}
	peer, data, err := b.Diag.Receive(b.Config.DiagTimeout)
	if err != nil {
		return
	}
	logging.Logger.WithFields(log.Fields{
		"peer":   peer,
		"packet": string(data),
	}).Debug("ackbench: received")
}

// Run sends logical packets until Config.Packets have been acknowledged or
// ctx is done. A logical packet is only counted as sent once acknowledged,
// so PacketsSent always equals PacketsAcked when Run returns.
func (b *Benchmark) Run(ctx context.Context) (model.AckCounters, error) {
	logging.Logger.Debug("ackbench: start")
	defer logging.Logger.Debug("ackbench: stop")
	b.counters = model.AckCounters{}
	b.start = b.now()
	if b.Config.SampleInterval <= 0 {
		return b.counters, fmt.Errorf("ackbench: sample interval must be positive")
	}
	if err := b.Transport.RegisterPeer(b.Peer); err != nil {
		return b.counters, fmt.Errorf("ackbench: register %s: %w", b.Peer, err)
	}
	for seq := int64(0); b.Config.Packets == 0 || seq < b.Config.Packets; seq++ {
		payload, err := Payload(seq, b.Config.PacketSize)
		if err != nil {
			return b.counters, err
		}
		for {
			if err := ctx.Err(); err != nil {
				return b.counters, err
			}
			acked, err := b.attempt(payload)
			if err != nil {
				return b.counters, err
			}
			if acked {
				b.counters.PacketsAcked++
				b.counters.PacketsSent++
				metrics.PacketsAcked.WithLabelValues(config.ModeAck).Inc()
				metrics.PacketsSent.WithLabelValues(config.ModeAck, "").Inc()
				b.diagnose()
			} else {
				b.counters.Retries++
				metrics.AckRetries.Inc()
			}
			if b.counters.Attempts()%b.Config.SampleInterval == 0 {
				b.sample()
			}
			if acked {
				break
			}
		}
	}
	b.sample()
	return b.counters, nil
}
