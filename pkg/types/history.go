package types

import "time"

// Resolution selects which historical series a source should return.
type Resolution int

const (
	// ResolutionStatistics is fine-grained pre-aggregated samples, where
	// Timestamp is the start of the aggregation interval.
	ResolutionStatistics Resolution = iota
	// ResolutionStates is raw discrete state changes, where Timestamp is
	// when the value changed.
	ResolutionStates
)

func (r Resolution) String() string {
	switch r {
	case ResolutionStatistics:
		return "statistics"
	case ResolutionStates:
		return "states"
	}
	return "unknown"
}

// HistoryPoint is one normalized historical power reading. Both historical
// formats are converted to this at the ingestion boundary so the core never
// branches on the source format.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	// PowerW is instantaneous power in watts. For grid readings, positive
	// is delivery to the home and negative is export.
	PowerW float64 `json:"powerW"`
}
