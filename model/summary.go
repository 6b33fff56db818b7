package model

import (
	"time"

	"github.com/m-lab/linkbench/metadata"
)

// Summary is the ranked report of a rate sweep.
type Summary struct {
	// RunID identifies the receiver run that produced the summary.
	RunID string `json:"run_id"`

	// EndTime is when the summary was built.
	EndTime time.Time `json:"end_time"`

	// Rows holds one entry per rate tag, sorted by rate name.
	Rows []PeerStats `json:"rows"`

	// BestThroughput is the rate with the highest throughput.
	BestThroughput string `json:"best_throughput"`

	// BestSignalQuality is the rate with the highest signal quality.
	BestSignalQuality string `json:"best_signal_quality"`

	// Metadata describes the run, as given on the command line.
	Metadata []metadata.NameValue `json:"metadata,omitempty"`
}

// Row returns the row for the given rate.
func (s *Summary) Row(rate string) (PeerStats, bool) {
	for _, r := range s.Rows {
		if r.Rate == rate {
			return r, true
		}
	}
	return PeerStats{}, false
}
