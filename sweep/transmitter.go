package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/m-lab/linkbench/config"
	"github.com/m-lab/linkbench/logging"
	"github.com/m-lab/linkbench/metrics"
	"github.com/m-lab/linkbench/model"
	"github.com/m-lab/linkbench/packet"
	"github.com/m-lab/linkbench/radio"
	"github.com/m-lab/linkbench/rate"
)

// Transmitter sends tagged packets as fast as possible, switching to the
// next rate of the table every Config.SwitchInterval packets.
type Transmitter struct {
	Transport radio.Transport
	Peer      radio.PeerID
	Rates     *rate.Table
	Config    config.Transmit
}

func (tx *Transmitter) switchTo(ctx context.Context, r rate.Rate) error {
	logging.Logger.WithField("rate", r.Name).Info("transmitter: changing rate")
	err := tx.Transport.Configure(radio.Config{
		RxBuffer: tx.Config.RxBuffer,
		Timeout:  tx.Config.SendTimeout,
		Rate:     r.Code,
	})
	if err != nil {
		return fmt.Errorf("transmitter: configure %s: %w", r, err)
	}
	metrics.RateChanges.WithLabelValues(r.Name).Inc()
	// Give the radio time to settle on the new rate.
	return sleep(ctx, tx.Config.SettleDelay)
}

func successRate(res model.TxResult) float64 {
	if res.PacketsSent == 0 {
		return 0
	}
	return float64(res.PacketsAcked) * 100 / float64(res.PacketsSent)
}

// Run sweeps the rate table once. It returns with Complete set when every
// rate has been used for SwitchInterval packets. It returns early with an
// error when ctx is done or the transport fails. A missing acknowledgement
// is not a failure: the packet simply does not count as acknowledged.
func (tx *Transmitter) Run(ctx context.Context) (model.TxResult, error) {
	logging.Logger.Debug("transmitter: start")
	defer logging.Logger.Debug("transmitter: stop")
	var res model.TxResult
	enc, err := packet.NewEncoder(tx.Config.PacketSize)
	if err != nil {
		return res, err
	}
	if err := tx.Transport.RegisterPeer(tx.Peer); err != nil {
		return res, fmt.Errorf("transmitter: register %s: %w", tx.Peer, err)
	}
	sweep := tx.Rates.Sweep()
	var current rate.Rate
	for ctx.Err() == nil {
		if res.PacketsSent%tx.Config.SwitchInterval == 0 {
			next, ok := sweep.Next()
			if !ok {
				res.Complete = true
				logging.Logger.WithFields(log.Fields{
					"packets_sent": res.PacketsSent,
					"rates":        res.RatesSwept,
				}).Info("transmitter: sweep complete")
				return res, nil
			}
			current = next
			res.RatesSwept++
			if err := tx.switchTo(ctx, current); err != nil {
				return res, err
			}
		}
		buf, err := enc.Encode(res.PacketsSent, current.Name)
		if err != nil {
			return res, err
		}
		acked, err := tx.Transport.Send(tx.Peer, buf, tx.Config.Sync)
		if err != nil && !errors.Is(err, radio.ErrNoAck) {
			metrics.SendErrors.WithLabelValues(config.ModeTransmit, "transport").Inc()
			return res, fmt.Errorf("transmitter: send: %w", err)
		}
		if err != nil {
			metrics.SendErrors.WithLabelValues(config.ModeTransmit, "no-ack").Inc()
		}
		res.PacketsSent++
		metrics.PacketsSent.WithLabelValues(config.ModeTransmit, current.Name).Inc()
		if acked {
			res.PacketsAcked++
			metrics.PacketsAcked.WithLabelValues(config.ModeTransmit).Inc()
		}
		if res.PacketsSent%tx.Config.SwitchInterval == 0 {
			logging.Logger.WithFields(log.Fields{
				"rate":             current.Name,
				"packets_sent":     res.PacketsSent,
				"packets_received": res.PacketsAcked,
				"success_rate":     successRate(res),
			}).Info("transmitter: progress")
		}
		if tx.Config.PacketGap > 0 {
			if err := sleep(ctx, tx.Config.PacketGap); err != nil {
				return res, err
			}
		}
	}
	return res, ctx.Err()
}
