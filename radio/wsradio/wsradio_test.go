package wsradio

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-lab/go/testingx"
	"go.uber.org/goleak"

	"github.com/m-lab/linkbench/radio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// setup returns an active listening radio and an active radio registered
// with it. The returned function deactivates both.
func setup(t *testing.T, cfg radio.Config) (*Radio, *Radio, radio.PeerID, func()) {
	rx := &Radio{Listen: "127.0.0.1:0"}
	testingx.Must(t, rx.Configure(cfg), "failed to configure rx")
	rxCloser, err := radio.Open(rx)
	testingx.Must(t, err, "failed to activate rx")
	tx := &Radio{}
	testingx.Must(t, tx.Configure(cfg), "failed to configure tx")
	txCloser, err := radio.Open(tx)
	testingx.Must(t, err, "failed to activate tx")
	peer := radio.PeerID(rx.Addr())
	testingx.Must(t, tx.RegisterPeer(peer), "failed to register peer")
	return rx, tx, peer, func() {
		txCloser.Close()
		rxCloser.Close()
	}
}

func TestSendAndReceive(t *testing.T) {
	rx, tx, peer, cleanup := setup(t, radio.Config{RxBuffer: 10 * rxFrameSize, Timeout: time.Second})
	defer cleanup()

	acked, err := tx.Send(peer, []byte("0,xxxx......A"), false)
	if acked || err != nil {
		t.Fatalf("Send() = %v, %v; want false, nil", acked, err)
	}
	acked, err = tx.Send(peer, []byte("1,xxxx......A"), true)
	if !acked || err != nil {
		t.Fatalf("Send(ack) = %v, %v; want true, nil", acked, err)
	}
	for _, want := range []string{"0,xxxx......A", "1,xxxx......A"} {
		from, data, err := rx.Receive(time.Second)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		if string(data) != want {
			t.Errorf("Receive() = %q, want %q", data, want)
		}
		q, err := rx.SignalQuality(from)
		if err != nil || q > 0 {
			t.Errorf("SignalQuality(%s) = %d, %v", from, q, err)
		}
	}
	if _, _, err := rx.Receive(10 * time.Millisecond); !errors.Is(err, radio.ErrTimeout) {
		t.Errorf("Receive() error = %v, want ErrTimeout", err)
	}
}

func TestManyAcknowledgedSends(t *testing.T) {
	rx, tx, peer, cleanup := setup(t, radio.Config{RxBuffer: 1000 * rxFrameSize, Timeout: time.Second})
	defer cleanup()
	// Interleave unacknowledged sends so that stale acknowledgements pile up.
	for i := 0; i < 300; i++ {
		if _, err := tx.Send(peer, []byte("x"), false); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if i%10 == 0 {
			acked, err := tx.Send(peer, []byte("y"), true)
			if !acked || err != nil {
				t.Fatalf("Send(ack) #%d = %v, %v", i, acked, err)
			}
		}
	}
	n := 0
	for {
		if _, _, err := rx.Receive(100 * time.Millisecond); err != nil {
			break
		}
		n++
	}
	if n != 330 {
		t.Errorf("received %d frames, want 330", n)
	}
}

func TestReceiveBufferDropsFrames(t *testing.T) {
	rx, tx, peer, cleanup := setup(t, radio.Config{RxBuffer: rxFrameSize, Timeout: time.Second})
	defer cleanup()
	for i := 0; i < 3; i++ {
		if ok, err := tx.Send(peer, []byte{byte('a' + i)}, true); !ok || err != nil {
			t.Fatalf("Send(ack) = %v, %v", ok, err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	_, data, err := rx.Receive(time.Second)
	if err != nil || string(data) != "a" {
		t.Fatalf("Receive() = %q, %v; want a", data, err)
	}
	if _, data, err := rx.Receive(20 * time.Millisecond); !errors.Is(err, radio.ErrTimeout) {
		t.Errorf("Receive() = %q, %v; want ErrTimeout", data, err)
	}
}

func TestNoAcknowledgement(t *testing.T) {
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Swallow everything and never acknowledge.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}))
	defer srv.Close()

	tx := &Radio{}
	testingx.Must(t, tx.Configure(radio.Config{Timeout: 20 * time.Millisecond}), "failed to configure")
	closer, err := radio.Open(tx)
	testingx.Must(t, err, "failed to activate")
	peer := radio.PeerID("ws" + strings.TrimPrefix(srv.URL, "http") + URLPath)
	testingx.Must(t, tx.RegisterPeer(peer), "failed to register peer")
	acked, err := tx.Send(peer, []byte("msg:0"), true)
	if acked || !errors.Is(err, radio.ErrNoAck) {
		t.Errorf("Send() = %v, %v; want false, ErrNoAck", acked, err)
	}
	closer.Close()
	<-done
}

func TestInactiveAndUnknownPeer(t *testing.T) {
	r := &Radio{}
	if _, err := r.Send("nowhere:1", nil, false); !errors.Is(err, radio.ErrInactive) {
		t.Errorf("Send() error = %v, want ErrInactive", err)
	}
	if _, _, err := r.Receive(time.Millisecond); !errors.Is(err, radio.ErrInactive) {
		t.Errorf("Receive() error = %v, want ErrInactive", err)
	}
	if err := r.RegisterPeer("nowhere:1"); !errors.Is(err, radio.ErrInactive) {
		t.Errorf("RegisterPeer() error = %v, want ErrInactive", err)
	}
	closer, err := radio.Open(r)
	testingx.Must(t, err, "failed to activate")
	defer closer.Close()
	if _, err := r.Send("nowhere:1", nil, false); !errors.Is(err, radio.ErrUnknownPeer) {
		t.Errorf("Send() error = %v, want ErrUnknownPeer", err)
	}
	if _, err := r.SignalQuality("nowhere:1"); !errors.Is(err, radio.ErrUnknownPeer) {
		t.Errorf("SignalQuality() error = %v, want ErrUnknownPeer", err)
	}
	if r.Addr() != "" {
		t.Errorf("Addr() = %q for a radio that does not listen", r.Addr())
	}
}

func TestRejectsWrongProtocol(t *testing.T) {
	rx := &Radio{Listen: "127.0.0.1:0"}
	closer, err := radio.Open(rx)
	testingx.Must(t, err, "failed to activate")
	defer closer.Close()
	resp, err := http.Get("http://" + rx.Addr() + URLPath)
	testingx.Must(t, err, "failed to GET")
	resp.Body.Close()
	http.DefaultClient.CloseIdleConnections()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestDeactivateTwice(t *testing.T) {
	_, tx, _, cleanup := setup(t, radio.Config{})
	cleanup()
	if err := tx.Activate(false); err != nil {
		t.Errorf("second Activate(false) error = %v", err)
	}
}

func TestParseTicks(t *testing.T) {
	start := time.Now().Add(-time.Second)
	if _, err := parseTicks("{", start); err == nil {
		t.Error("parseTicks() accepted invalid JSON")
	}
	if _, err := parseTicks(`{"LinkbenchTS": -1}`, start); err == nil {
		t.Error("parseTicks() accepted a negative timestamp")
	}
	if _, err := parseTicks(`{"LinkbenchTS": 1000000000000}`, start); err == nil {
		t.Error("parseTicks() accepted a timestamp from the future")
	}
	rtt, err := parseTicks(`{"LinkbenchTS": 500000000}`, start)
	if err != nil || rtt < 500*time.Millisecond {
		t.Errorf("parseTicks() = %v, %v", rtt, err)
	}
}
