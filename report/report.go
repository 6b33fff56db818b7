// Package report turns the per-rate statistics of a sweep into a ranked
// summary and renders it.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/m-lab/linkbench/model"
)

// ErrNoData is returned when there are no statistics to report. Callers
// should treat it as nothing to do rather than as a failure.
var ErrNoData = errors.New("report: no data")

// ruleWidth is the width of the horizontal rules around a text report.
const ruleWidth = 100

// Summarize ranks stats. Rows are sorted by rate name. The best throughput
// and best signal quality are the maxima; ties go to the smallest rate name.
func Summarize(runID string, stats map[string]*model.PeerStats) (*model.Summary, error) {
	if len(stats) == 0 {
		return nil, ErrNoData
	}
	names := maps.Keys(stats)
	slices.Sort(names)
	s := &model.Summary{
		RunID:   runID,
		EndTime: time.Now().UTC(),
		Rows:    make([]model.PeerStats, 0, len(names)),
	}
	var bestTput, bestSignal *model.PeerStats
	for _, name := range names {
		ps := stats[name]
		s.Rows = append(s.Rows, *ps)
		// Strict comparisons keep the first, i.e. smallest, name on ties.
		if bestTput == nil || ps.Throughput > bestTput.Throughput {
			bestTput = ps
		}
		if bestSignal == nil || ps.SignalQuality > bestSignal.SignalQuality {
			bestSignal = ps
		}
	}
	s.BestThroughput = bestTput.Rate
	s.BestSignalQuality = bestSignal.Rate
	return s, nil
}

// WriteText renders the metadata of s, then its rows as dot-leader aligned
// lines, then the best throughput and best signal quality.
func WriteText(w io.Writer, s *model.Summary) error {
	if s == nil || len(s.Rows) == 0 {
		return ErrNoData
	}
	width := 0
	for _, r := range s.Rows {
		if len(r.Rate) > width {
			width = len(r.Rate)
		}
	}
	var b strings.Builder
	rule := strings.Repeat("#", ruleWidth)
	fmt.Fprintln(&b, rule)
	for _, m := range s.Metadata {
		fmt.Fprintf(&b, "%s: %s\n", m.Name, m.Value)
	}
	for _, r := range s.Rows {
		fmt.Fprintf(&b, "%s %s packets=%d bytes=%d rate=%.2fkB/s signal=%d\n",
			r.Rate, strings.Repeat(".", width-len(r.Rate)+3),
			r.PacketCount, r.TotalBytes, r.KBps(), r.SignalQuality)
	}
	best, _ := s.Row(s.BestThroughput)
	fmt.Fprintf(&b, "best data rate: %s %.2f kB/s\n", best.Rate, best.KBps())
	best, _ = s.Row(s.BestSignalQuality)
	fmt.Fprintf(&b, "best signal quality: %s %d\n", best.Rate, best.SignalQuality)
	fmt.Fprintln(&b, rule)
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON renders s as an indented JSON document.
func WriteJSON(w io.Writer, s *model.Summary) error {
	if s == nil || len(s.Rows) == 0 {
		return ErrNoData
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
