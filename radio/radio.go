// Package radio defines the transport capability the benchmarks drive.
//
// A Transport is a single radio: it can be switched on and off, configured
// with a receive buffer, a timeout and an outbound rate, and it sends and
// receives whole frames addressed by peer. Implementations live in
// subpackages.
package radio

import (
	"errors"
	"io"
	"time"

	"github.com/m-lab/linkbench/logging"
	"github.com/m-lab/linkbench/rate"
)

var (
	// ErrTimeout is returned by Receive when nothing arrived in time.
	ErrTimeout = errors.New("radio: receive timeout")

	// ErrNoAck is returned by Send when an acknowledgement was requested
	// and the transport gave up waiting for it.
	ErrNoAck = errors.New("radio: no acknowledgement")

	// ErrInactive is returned when the transport has not been activated.
	ErrInactive = errors.New("radio: inactive")

	// ErrUnknownPeer is returned for peers that were never registered or seen.
	ErrUnknownPeer = errors.New("radio: unknown peer")
)

// PeerID is a transport-specific peer address (a MAC, a host:port, ...).
type PeerID string

// Config is applied by Transport.Configure.
type Config struct {
	// RxBuffer is the size in bytes of the receive buffer.
	RxBuffer int

	// Timeout bounds blocking sends awaiting an acknowledgement.
	Timeout time.Duration

	// Rate is the outbound physical rate.
	Rate rate.Code
}

// Transport is the radio capability consumed by the benchmarks.
type Transport interface {
	// Activate switches the radio on or off.
	Activate(on bool) error

	// Configure applies cfg. It may be called again while active.
	Configure(cfg Config) error

	// RegisterPeer must be called before sending to peer.
	RegisterPeer(peer PeerID) error

	// Send transmits data to peer. When waitForAck is false the returned
	// boolean is always false. When it is true, Send blocks until the peer
	// acknowledges (true, nil) or the transport exhausts its own retry
	// budget (false, ErrNoAck). Any other error is a transport fault.
	Send(peer PeerID, data []byte, waitForAck bool) (bool, error)

	// Receive blocks for at most timeout and returns the next frame, or
	// ErrTimeout if none arrived.
	Receive(timeout time.Duration) (PeerID, []byte, error)

	// SignalQuality returns the transport's signal metric for peer. Higher
	// is better.
	SignalQuality(peer PeerID) (int, error)
}

type activation struct {
	t Transport
}

// Close deactivates the transport.
func (a *activation) Close() error {
	return a.t.Activate(false)
}

// Open activates t and returns a Closer that deactivates it. Callers should
// defer the Close immediately, so that every exit path switches the radio off.
func Open(t Transport) (io.Closer, error) {
	if err := t.Activate(true); err != nil {
		// A partially activated radio still needs to be switched off.
		if derr := t.Activate(false); derr != nil {
			logging.Logger.WithError(derr).Warn("radio: deactivate after failed activation")
		}
		return nil, err
	}
	return &activation{t: t}, nil
}
