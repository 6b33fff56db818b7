// Package radiotest provides in-memory transports for tests.
package radiotest

import (
	"sync"
	"time"

	"github.com/m-lab/linkbench/radio"
)

// Frame is a frame delivered to, or sent by, a Transport.
type Frame struct {
	Peer radio.PeerID
	Data []byte

	// Timeout makes Receive return radio.ErrTimeout instead of a frame.
	Timeout bool

	// Err makes Receive return this error instead of a frame.
	Err error
}

// Sent records one call to Send.
type Sent struct {
	Peer       radio.PeerID
	Data       []byte
	WaitForAck bool
	Rate       radio.Config
}

// Transport is a scripted radio. Receive pops frames from Inbox; once the
// inbox is empty it reports radio.ErrTimeout. Send records every frame and
// consults Acks (if set) to decide whether an acknowledgement arrived.
type Transport struct {
	mu sync.Mutex

	// Inbox is consumed by Receive.
	Inbox []Frame

	// Acks is consumed by Send when waitForAck is true. An exhausted or
	// nil Acks list acknowledges every send.
	Acks []bool

	// Quality maps peers to the value returned by SignalQuality.
	Quality map[radio.PeerID]int

	// SendErr, if set, is returned by every Send.
	SendErr error

	// ActivateErr, if set, is returned by Activate(true).
	ActivateErr error

	// OnReceive, if set, is called before every Receive returns.
	OnReceive func()

	sent        []Sent
	configs     []radio.Config
	peers       []radio.PeerID
	active      bool
	activations int
	receives    int
}

// New returns a transport that delivers frames in order.
func New(frames ...Frame) *Transport {
	return &Transport{
		Inbox:   frames,
		Quality: make(map[radio.PeerID]int),
	}
}

// Activate implements radio.Transport.
func (t *Transport) Activate(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on {
		t.activations++
		if t.ActivateErr != nil {
			return t.ActivateErr
		}
	}
	t.active = on
	return nil
}

// Configure implements radio.Transport.
func (t *Transport) Configure(cfg radio.Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.configs = append(t.configs, cfg)
	return nil
}

// RegisterPeer implements radio.Transport.
func (t *Transport) RegisterPeer(peer radio.PeerID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers = append(t.peers, peer)
	return nil
}

// Send implements radio.Transport.
func (t *Transport) Send(peer radio.PeerID, data []byte, waitForAck bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return false, t.SendErr
	}
	var cfg radio.Config
	if len(t.configs) > 0 {
		cfg = t.configs[len(t.configs)-1]
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	t.sent = append(t.sent, Sent{Peer: peer, Data: dataCopy, WaitForAck: waitForAck, Rate: cfg})
	if !waitForAck {
		return false, nil
	}
	if len(t.Acks) == 0 {
		return true, nil
	}
	ack := t.Acks[0]
	t.Acks = t.Acks[1:]
	if !ack {
		return false, radio.ErrNoAck
	}
	return true, nil
}

// Receive implements radio.Transport.
func (t *Transport) Receive(timeout time.Duration) (radio.PeerID, []byte, error) {
	t.mu.Lock()
	t.receives++
	var f Frame
	empty := len(t.Inbox) == 0
	if !empty {
		f = t.Inbox[0]
		t.Inbox = t.Inbox[1:]
	}
	hook := t.OnReceive
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
	switch {
	case empty, f.Timeout:
		return "", nil, radio.ErrTimeout
	case f.Err != nil:
		return "", nil, f.Err
	}
	dataCopy := make([]byte, len(f.Data))
	copy(dataCopy, f.Data)
	return f.Peer, dataCopy, nil
}

// SignalQuality implements radio.Transport.
func (t *Transport) SignalQuality(peer radio.PeerID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, found := t.Quality[peer]
	if !found {
		return 0, radio.ErrUnknownPeer
	}
	return q, nil
}

// Sent returns a copy of every recorded Send.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.sent))
	copy(out, t.sent)
	return out
}

// Configs returns every configuration applied so far.
func (t *Transport) Configs() []radio.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]radio.Config, len(t.configs))
	copy(out, t.configs)
	return out
}

// Peers returns the registered peers.
func (t *Transport) Peers() []radio.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]radio.PeerID, len(t.peers))
	copy(out, t.peers)
	return out
}

// Active reports whether the transport is switched on.
func (t *Transport) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Activations counts calls to Activate(true).
func (t *Transport) Activations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activations
}

// Receives counts calls to Receive.
func (t *Transport) Receives() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receives
}
