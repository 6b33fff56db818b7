// Package wsradio implements a radio.Transport over WebSocket connections.
//
// A listening radio accepts connections on URLPath and queues every binary
// message it receives, bounded by the configured receive buffer. It answers
// each binary message with a text message holding the message's index on
// that connection, which is the acknowledgement. A dialing radio sends
// packets as binary messages and, when asked to, waits for the matching
// acknowledgement until the configured timeout expires.
//
// Signal quality is the negated round trip time, in milliseconds, of a ping
// sent when a connection is accepted.
package wsradio

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/linkbench/logging"
	"github.com/m-lab/linkbench/metrics"
	"github.com/m-lab/linkbench/packet"
	"github.com/m-lab/linkbench/radio"
)

// URLPath is where a listening radio accepts connections.
const URLPath = "/linkbench/v1/radio"

// SecWebSocketProtocol is the WebSocket subprotocol spoken by radios.
const SecWebSocketProtocol = "net.measurementlab.linkbench.v1"

// MaxMessageSize bounds the size of a single frame.
const MaxMessageSize = 1 << 12

// rxFrameSize is the receive buffer space taken by one queued frame: a full
// payload plus the sender address, length and signal metadata.
const rxFrameSize = packet.MaxLength + 13

const (
	defaultRxBuffer   = 2 * rxFrameSize
	defaultAckTimeout = 100 * time.Millisecond
	ioTimeout         = 5 * time.Second
	ackBacklog        = 64
)

type frame struct {
	peer radio.PeerID
	data []byte
}

// outbound is a connection dialed by RegisterPeer.
type outbound struct {
	mu   sync.Mutex
	conn *websocket.Conn
	acks chan uint64
	sent uint64
}

// inbound is a connection accepted by a listening radio.
type inbound struct {
	conn *websocket.Conn
	rtt  time.Duration
}

// Radio is a WebSocket radio. The zero value is a radio that can only dial
// peers; set Listen to also accept connections.
type Radio struct {
	// Listen is the address to accept connections on, e.g. ":9797". Empty
	// means the radio does not listen.
	Listen string

	// Dialer is used by RegisterPeer.
	Dialer websocket.Dialer

	// Upgrader is used for accepted connections.
	Upgrader websocket.Upgrader

	mu       sync.Mutex
	wg       sync.WaitGroup
	cfg      radio.Config
	active   bool
	srv      *http.Server
	inbox    chan frame
	peers    map[radio.PeerID]*outbound
	accepted map[radio.PeerID]*inbound
}

// Addr returns the address the radio listens on, once active.
func (r *Radio) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srv == nil {
		return ""
	}
	return r.srv.Addr
}

// Activate implements radio.Transport.
func (r *Radio) Activate(on bool) error {
	if on {
		return r.activate()
	}
	return r.deactivate()
}

func (r *Radio) activate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return nil
	}
	size := r.cfg.RxBuffer
	if size <= 0 {
		size = defaultRxBuffer
	}
	capacity := size / rxFrameSize
	if capacity < 1 {
		capacity = 1
	}
	r.inbox = make(chan frame, capacity)
	r.peers = make(map[radio.PeerID]*outbound)
	r.accepted = make(map[radio.PeerID]*inbound)
	if r.Listen != "" {
		mux := http.NewServeMux()
		mux.HandleFunc(URLPath, r.serve)
		srv := &http.Server{
			Addr:              r.Listen,
			Handler:           logging.MakeAccessLogHandler(mux),
			ReadHeaderTimeout: ioTimeout,
		}
		if err := httpx.ListenAndServeAsync(srv); err != nil {
			return fmt.Errorf("wsradio: listen on %s: %w", r.Listen, err)
		}
		r.srv = srv
		logging.Logger.WithField("addr", srv.Addr).Info("wsradio: listening")
	}
	r.active = true
	return nil
}

func (r *Radio) deactivate() error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = false
	srv := r.srv
	r.srv = nil
	var conns []*websocket.Conn
	for _, o := range r.peers {
		conns = append(conns, o.conn)
	}
	for _, in := range r.accepted {
		conns = append(conns, in.conn)
	}
	r.peers = nil
	r.accepted = nil
	r.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Close()
	}
	for _, c := range conns {
		startClosing(c)
		c.Close()
	}
	r.wg.Wait()
	logging.Logger.Debug("wsradio: deactivated")
	return err
}

// Configure implements radio.Transport. The receive buffer size only takes
// effect at the next activation.
func (r *Radio) Configure(cfg radio.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	logging.Logger.WithFields(log.Fields{
		"rxbuf":   cfg.RxBuffer,
		"timeout": cfg.Timeout,
		"rate":    fmt.Sprintf("0x%02X", uint8(cfg.Rate)),
	}).Debug("wsradio: configured")
	return nil
}

func peerURL(peer radio.PeerID) string {
	s := string(peer)
	if strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://") {
		return s
	}
	u := url.URL{Scheme: "ws", Host: s, Path: URLPath}
	return u.String()
}

// RegisterPeer implements radio.Transport by dialing peer, which is either a
// host:port or a full ws:// or wss:// URL.
func (r *Radio) RegisterPeer(peer radio.PeerID) error {
	r.mu.Lock()
	active := r.active
	_, found := r.peers[peer]
	r.mu.Unlock()
	if !active {
		return radio.ErrInactive
	}
	if found {
		return nil
	}
	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", SecWebSocketProtocol)
	dialer := r.Dialer
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = ioTimeout
	}
	conn, _, err := dialer.Dial(peerURL(peer), headers)
	if err != nil {
		return fmt.Errorf("wsradio: dial %s: %w", peer, err)
	}
	conn.SetReadLimit(MaxMessageSize)
	o := &outbound{conn: conn, acks: make(chan uint64, ackBacklog)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		conn.Close()
		return radio.ErrInactive
	}
	r.peers[peer] = o
	r.wg.Add(1)
	go r.readAcks(o)
	return nil
}

// readAcks forwards acknowledgements from o's peer until the connection
// closes. Acknowledgements nobody waits for are dropped once the backlog
// is full.
func (r *Radio) readAcks(o *outbound) {
	defer r.wg.Done()
	defer close(o.acks)
	for {
		mtype, data, err := o.conn.ReadMessage()
		if err != nil {
			return
		}
		if mtype != websocket.TextMessage {
			continue
		}
		idx, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			logging.Logger.WithError(err).Warn("wsradio: bad acknowledgement")
			continue
		}
		select {
		case o.acks <- idx:
		default:
		}
	}
}

// Send implements radio.Transport.
func (r *Radio) Send(peer radio.PeerID, data []byte, waitForAck bool) (bool, error) {
	r.mu.Lock()
	active := r.active
	o := r.peers[peer]
	timeout := r.cfg.Timeout
	r.mu.Unlock()
	if !active {
		return false, radio.ErrInactive
	}
	if o == nil {
		return false, fmt.Errorf("%w: %s", radio.ErrUnknownPeer, peer)
	}
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if waitForAck {
		// Discard stale acknowledgements so that the backlog has room for ours.
		for drained := false; !drained; {
			select {
			case _, ok := <-o.acks:
				if !ok {
					return false, fmt.Errorf("wsradio: connection to %s closed", peer)
				}
			default:
				drained = true
			}
		}
	}
	o.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if err := o.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return false, fmt.Errorf("wsradio: send to %s: %w", peer, err)
	}
	o.sent++
	if !waitForAck {
		return false, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case idx, ok := <-o.acks:
			if !ok {
				return false, fmt.Errorf("wsradio: connection to %s closed", peer)
			}
			if idx >= o.sent {
				return true, nil
			}
		case <-timer.C:
			return false, radio.ErrNoAck
		}
	}
}

// Receive implements radio.Transport.
func (r *Radio) Receive(timeout time.Duration) (radio.PeerID, []byte, error) {
	r.mu.Lock()
	active := r.active
	inbox := r.inbox
	r.mu.Unlock()
	if !active {
		return "", nil, radio.ErrInactive
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-inbox:
		return f.peer, f.data, nil
	case <-timer.C:
		return "", nil, radio.ErrTimeout
	}
}

// SignalQuality implements radio.Transport for peers that connected to this
// radio. Peers whose ping has not come back yet report zero.
func (r *Radio) SignalQuality(peer radio.PeerID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, found := r.accepted[peer]
	if !found {
		return 0, fmt.Errorf("%w: %s", radio.ErrUnknownPeer, peer)
	}
	return -int(in.rtt / time.Millisecond), nil
}

func warnAndClose(writer http.ResponseWriter, message string) {
	logging.Logger.Warn(message)
	writer.Header().Set("Connection", "Close")
	writer.WriteHeader(http.StatusBadRequest)
}

// serve handles one accepted connection until it closes.
func (r *Radio) serve(writer http.ResponseWriter, request *http.Request) {
	if request.Header.Get("Sec-WebSocket-Protocol") != SecWebSocketProtocol {
		warnAndClose(writer, "wsradio: missing Sec-WebSocket-Protocol in request")
		return
	}
	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", SecWebSocketProtocol)
	conn, err := r.Upgrader.Upgrade(writer, request, headers)
	if err != nil {
		logging.Logger.WithError(err).Warn("wsradio: cannot upgrade to WebSocket")
		return
	}
	peer := radio.PeerID(conn.RemoteAddr().String())
	in := &inbound{conn: conn}

	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		warnonerror.Close(conn, "wsradio: ignoring conn.Close result")
		return
	}
	r.accepted[peer] = in
	inbox := r.inbox
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()
	defer conn.Close()

	logging.Logger.WithField("peer", peer).Info("wsradio: peer connected")
	conn.SetReadLimit(MaxMessageSize)
	start := time.Now()
	conn.SetPongHandler(func(s string) error {
		rtt, err := parseTicks(s, start)
		if err != nil {
			logging.Logger.WithError(err).Debug("wsradio: ignoring pong")
			return nil
		}
		r.mu.Lock()
		in.rtt = rtt
		r.mu.Unlock()
		return nil
	})
	if err := sendTicks(conn, start, time.Now().Add(ioTimeout)); err != nil {
		logging.Logger.WithError(err).Warn("wsradio: cannot send ping")
	}
	var index uint64
	for {
		mtype, data, err := conn.ReadMessage()
		if err != nil {
			logging.Logger.WithField("peer", peer).Debug("wsradio: peer disconnected")
			return
		}
		if mtype != websocket.BinaryMessage {
			continue
		}
		index++
		conn.SetWriteDeadline(time.Now().Add(ioTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(strconv.FormatUint(index, 10))); err != nil {
			logging.Logger.WithError(err).Warn("wsradio: cannot acknowledge")
			return
		}
		select {
		case inbox <- frame{peer: peer, data: data}:
		default:
			metrics.RadioDroppedFrames.Inc()
		}
	}
}
