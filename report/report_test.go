package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/linkbench/metadata"
	"github.com/m-lab/linkbench/model"
)

func stats() map[string]*model.PeerStats {
	t0 := time.Date(2025, 7, 2, 12, 0, 0, 0, time.UTC)
	return map[string]*model.PeerStats{
		"MCS7_SGI": {Rate: "MCS7_SGI", PacketCount: 256, TotalBytes: 64000, StartTime: t0, Throughput: 90000, SignalQuality: -61},
		"1M_L":     {Rate: "1M_L", PacketCount: 256, TotalBytes: 64000, StartTime: t0, Throughput: 12000, SignalQuality: -40},
		"54M":      {Rate: "54M", PacketCount: 200, TotalBytes: 50000, StartTime: t0, Throughput: 70000, SignalQuality: -55},
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize("run", stats())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	var names []string
	for _, r := range s.Rows {
		names = append(names, r.Rate)
	}
	if strings.Join(names, " ") != "1M_L 54M MCS7_SGI" {
		t.Errorf("rows = %v", names)
	}
	if s.BestThroughput != "MCS7_SGI" || s.BestSignalQuality != "1M_L" || s.RunID != "run" {
		t.Errorf("Summarize() = %+v", s)
	}
}

func TestSummarizeTies(t *testing.T) {
	in := map[string]*model.PeerStats{
		"B": {Rate: "B", Throughput: 10, SignalQuality: -50},
		"C": {Rate: "C", Throughput: 10, SignalQuality: -50},
		"A": {Rate: "A", Throughput: 10, SignalQuality: -50},
	}
	for i := 0; i < 20; i++ {
		s, err := Summarize("", in)
		if err != nil {
			t.Fatal(err)
		}
		if s.BestThroughput != "A" || s.BestSignalQuality != "A" {
			t.Fatalf("ties resolved to %s/%s, want A/A", s.BestThroughput, s.BestSignalQuality)
		}
	}
}

func TestSummarizeNoData(t *testing.T) {
	if _, err := Summarize("", nil); !errors.Is(err, ErrNoData) {
		t.Errorf("Summarize(nil) error = %v, want ErrNoData", err)
	}
	if err := WriteText(&bytes.Buffer{}, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("WriteText(nil) error = %v, want ErrNoData", err)
	}
	if err := WriteJSON(&bytes.Buffer{}, &model.Summary{}); !errors.Is(err, ErrNoData) {
		t.Errorf("WriteJSON(empty) error = %v, want ErrNoData", err)
	}
}

func TestWriteText(t *testing.T) {
	s, err := Summarize("run", stats())
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	if err := WriteText(buf, s); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("WriteText() wrote %d lines:\n%s", len(lines), buf.String())
	}
	if lines[1] != "1M_L ....... packets=256 bytes=64000 rate=12.00kB/s signal=-40" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[3] != "MCS7_SGI ... packets=256 bytes=64000 rate=90.00kB/s signal=-61" {
		t.Errorf("line 3 = %q", lines[3])
	}
	if lines[4] != "best data rate: MCS7_SGI 90.00 kB/s" {
		t.Errorf("line 4 = %q", lines[4])
	}
	if lines[5] != "best signal quality: 1M_L -40" {
		t.Errorf("line 5 = %q", lines[5])
	}
}

func TestWriteTextMetadata(t *testing.T) {
	s, err := Summarize("run", stats())
	if err != nil {
		t.Fatal(err)
	}
	s.Metadata = []metadata.NameValue{{Name: "site", Value: "roof"}, {Name: "distance", Value: "30m"}}
	buf := &bytes.Buffer{}
	if err := WriteText(buf, s); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 9 || lines[1] != "site: roof" || lines[2] != "distance: 30m" {
		t.Errorf("WriteText() wrote:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	s, err := Summarize("run", stats())
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	if err := WriteJSON(buf, s); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var got model.Summary
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("WriteJSON() wrote invalid JSON: %v", err)
	}
	if got.BestThroughput != "MCS7_SGI" || len(got.Rows) != 3 || got.Rows[0].PacketCount != 256 {
		t.Errorf("WriteJSON() = %+v", got)
	}
}
