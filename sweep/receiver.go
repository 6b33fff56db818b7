package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/m-lab/linkbench/config"
	"github.com/m-lab/linkbench/logging"
	"github.com/m-lab/linkbench/metrics"
	"github.com/m-lab/linkbench/model"
	"github.com/m-lab/linkbench/packet"
	"github.com/m-lab/linkbench/radio"
	"github.com/m-lab/linkbench/rate"
)

// State is the state of a Receiver.
type State int

// Receiver states. A receiver starts Idle, becomes Streaming with the first
// decodable packet, and ends Reporting once the stream went silent.
const (
	Idle = State(iota)
	Streaming
	Reporting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Reporting:
		return "reporting"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Receiver classifies packets by rate tag and accumulates per-rate
// statistics until the stream goes silent.
//
// The receiver has no notion of how many rates or packets to expect. Once
// streaming, Config.SilenceTimeouts consecutive receive timeouts end the run.
// With the default of one, a single loss window as long as the receive
// timeout ends the stream early, so the timeout should be comfortably longer
// than the transmitter's settle delay.
type Receiver struct {
	Transport radio.Transport
	Rates     *rate.Table
	Config    config.Receive

	// Now returns the current time. It defaults to time.Now.
	Now func() time.Time

	state   State
	stats   map[string]*model.PeerStats
	skipped int64
}

func (r *Receiver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Receiver) setState(s State) {
	if r.state != s {
		logging.Logger.WithField("state", s.String()).Debug("receiver: state change")
	}
	r.state = s
	metrics.ReceiverState.Set(float64(s))
}

// State returns the current state.
func (r *Receiver) State() State {
	return r.state
}

// Skipped returns the number of packets that could not be classified.
func (r *Receiver) Skipped() int64 {
	return r.skipped
}

func (r *Receiver) signalQuality(peer radio.PeerID) int {
	q, err := r.Transport.SignalQuality(peer)
	if err != nil {
		logging.Logger.WithError(err).WithField("peer", peer).Warn("receiver: no signal quality")
		return 0
	}
	return q
}

func (r *Receiver) observe(peer radio.PeerID, data []byte) {
	rt, err := packet.Decode(data, r.Rates)
	if err != nil {
		r.skipped++
		metrics.DecodeErrors.Inc()
		logging.Logger.WithError(err).Debug("receiver: skipping packet")
		return
	}
	now := r.now()
	ps, found := r.stats[rt.Name]
	if !found {
		ps = model.NewPeerStats(rt.Name, now, r.signalQuality(peer))
		r.stats[rt.Name] = ps
		metrics.SignalQuality.WithLabelValues(rt.Name).Set(float64(ps.SignalQuality))
		logging.Logger.WithFields(log.Fields{
			"rate":           rt.Name,
			"peer":           peer,
			"signal_quality": ps.SignalQuality,
		}).Info("receiver: new rate stream")
	}
	if r.state == Idle {
		r.setState(Streaming)
	}
	ps.Add(len(data), now)
	metrics.PacketsReceived.WithLabelValues(rt.Name).Inc()
	metrics.BytesReceived.WithLabelValues(rt.Name).Add(float64(len(data)))
	metrics.Throughput.WithLabelValues(rt.Name).Set(ps.Throughput)
}

// Run receives until the stream goes silent and returns the statistics of
// every rate tag it saw. Timeouts before the first packet are ignored. If ctx
// is done or the transport fails, Run returns the error and no statistics.
func (r *Receiver) Run(ctx context.Context) (map[string]*model.PeerStats, error) {
	logging.Logger.Debug("receiver: start")
	defer logging.Logger.Debug("receiver: stop")
	r.stats = make(map[string]*model.PeerStats)
	r.skipped = 0
	r.setState(Idle)
	silent := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		peer, data, err := r.Transport.Receive(r.Config.Timeout)
		if errors.Is(err, radio.ErrTimeout) {
			if r.state == Idle {
				continue
			}
			silent++
			if silent < r.Config.SilenceTimeouts {
				logging.Logger.WithField("timeouts", silent).Debug("receiver: silence")
				continue
			}
			r.setState(Reporting)
			logging.Logger.WithFields(log.Fields{
				"rates":   len(r.stats),
				"skipped": r.skipped,
			}).Info("receiver: stream ended")
			return r.stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("receiver: %w", err)
		}
		silent = 0
		r.observe(peer, data)
	}
}
