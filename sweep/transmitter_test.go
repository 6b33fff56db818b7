package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-lab/linkbench/config"
	"github.com/m-lab/linkbench/packet"
	"github.com/m-lab/linkbench/radio"
	"github.com/m-lab/linkbench/radio/radiotest"
	"github.com/m-lab/linkbench/rate"
)

func twoRates(t *testing.T) *rate.Table {
	tbl, err := rate.NewTable(rate.Rate{Name: "A", Code: 0x01}, rate.Rate{Name: "B", Code: 0x02})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func txConfig() config.Transmit {
	return config.Transmit{
		PacketSize:     32,
		SwitchInterval: 5,
		SendTimeout:    time.Millisecond,
		RxBuffer:       1024,
	}
}

func TestTransmitterSweepsOnce(t *testing.T) {
	tr := radiotest.New()
	tx := &Transmitter{
		Transport: tr,
		Peer:      "peer",
		Rates:     twoRates(t),
		Config:    txConfig(),
	}
	res, err := tx.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Complete || res.PacketsSent != 10 || res.RatesSwept != 2 || res.PacketsAcked != 0 {
		t.Errorf("Run() = %+v", res)
	}
	if peers := tr.Peers(); len(peers) != 1 || peers[0] != "peer" {
		t.Errorf("registered peers = %v", peers)
	}
	configs := tr.Configs()
	if len(configs) != 2 {
		t.Fatalf("Configure() called %d times, want 2", len(configs))
	}
	if configs[0].Rate != 0x01 || configs[1].Rate != 0x02 || configs[0].RxBuffer != 1024 {
		t.Errorf("configs = %+v", configs)
	}
	sent := tr.Sent()
	if len(sent) != 10 {
		t.Fatalf("sent %d packets, want 10", len(sent))
	}
	tbl := twoRates(t)
	for i, s := range sent {
		if len(s.Data) != 32 {
			t.Errorf("packet %d has length %d", i, len(s.Data))
		}
		if s.WaitForAck {
			t.Errorf("packet %d was sent synchronously", i)
		}
		seq, err := packet.Sequence(s.Data)
		if err != nil || seq != int64(i) {
			t.Errorf("packet %d sequence = %d, %v", i, seq, err)
		}
		r, err := packet.Decode(s.Data, tbl)
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		want := "A"
		if i >= 5 {
			want = "B"
		}
		if r.Name != want || s.Rate.Rate != r.Code {
			t.Errorf("packet %d tagged %s sent at 0x%02X, want %s", i, r.Name, uint8(s.Rate.Rate), want)
		}
	}
}

func TestTransmitterSyncCountsAcks(t *testing.T) {
	tr := radiotest.New()
	tr.Acks = []bool{true, false, true, false, false, true}
	cfg := txConfig()
	cfg.Sync = true
	tx := &Transmitter{Transport: tr, Peer: "peer", Rates: twoRates(t), Config: cfg}
	res, err := tx.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Three of the first six are acknowledged, the last four are acknowledged
	// because the script is exhausted.
	if res.PacketsSent != 10 || res.PacketsAcked != 7 {
		t.Errorf("Run() = %+v, want 10 sent and 7 acked", res)
	}
}

func TestTransmitterTransportFailure(t *testing.T) {
	tr := radiotest.New()
	tr.SendErr = errors.New("radio unplugged")
	tx := &Transmitter{Transport: tr, Peer: "peer", Rates: twoRates(t), Config: txConfig()}
	res, err := tx.Run(context.Background())
	if err == nil || errors.Is(err, radio.ErrNoAck) {
		t.Fatalf("Run() error = %v, want transport failure", err)
	}
	if res.Complete || res.PacketsSent != 0 {
		t.Errorf("Run() = %+v", res)
	}
}

func TestTransmitterCanceledDuringSettle(t *testing.T) {
	tr := radiotest.New()
	cfg := txConfig()
	cfg.SettleDelay = time.Hour
	tx := &Transmitter{Transport: tr, Peer: "peer", Rates: twoRates(t), Config: cfg}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res, err := tx.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if res.Complete || res.PacketsSent != 0 {
		t.Errorf("Run() = %+v", res)
	}
}

func TestTransmitterPacketTooSmall(t *testing.T) {
	cfg := txConfig()
	cfg.PacketSize = packet.TagWidth
	tx := &Transmitter{Transport: radiotest.New(), Peer: "peer", Rates: twoRates(t), Config: cfg}
	if _, err := tx.Run(context.Background()); !errors.Is(err, packet.ErrPacketTooSmall) {
		t.Errorf("Run() error = %v, want ErrPacketTooSmall", err)
	}
}
