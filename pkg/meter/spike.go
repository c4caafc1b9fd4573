package meter

import (
	"context"
	"log/slog"
	"math"

	"github.com/gridtally/gridtally/pkg/log"
)

// historyCapacity bounds the per-source sample history used by the
// statistical and ratio tests.
const historyCapacity = 10

// zScoreLimit is how many standard deviations from the history mean a value
// may stray before it is considered a spike.
const zScoreLimit = 3.0

// SpikeFilter guards the accumulator against anomalous power readings in
// historical data. It keeps a bounded history of accepted raw values per
// source and flags values that fail an absolute ceiling, a z-score test, or
// a sudden-change ratio test. It never rejects outright: a flagged value is
// substituted with the last accepted one (or zero if none exists yet).
type SpikeFilter struct {
	thresholdW float64
	maxRatio   float64
	minValidW  float64
	history    map[string][]float64
}

// NewSpikeFilter returns a filter with the given tuning. A zero thresholdW
// or maxRatio disables the corresponding test.
func NewSpikeFilter(thresholdW, maxRatio, minValidW float64) *SpikeFilter {
	return &SpikeFilter{
		thresholdW: thresholdW,
		maxRatio:   maxRatio,
		minValidW:  minValidW,
		history:    make(map[string][]float64),
	}
}

// Sanitize returns the value to use for the reading and whether the raw
// value was flagged as a spike. Accepted values are appended to the source's
// history; flagged values leave the history untouched.
func (f *SpikeFilter) Sanitize(ctx context.Context, source string, value float64) (float64, bool) {
	h := f.history[source]

	if f.isSpike(h, value) {
		substitute := 0.0
		if len(h) > 0 {
			substitute = h[len(h)-1]
		}
		log.Ctx(ctx).DebugContext(ctx, "rejected spike reading",
			slog.String("source", source),
			slog.Float64("value", value),
			slog.Float64("substitute", substitute),
		)
		return substitute, true
	}

	h = append(h, value)
	if len(h) > historyCapacity {
		h = h[len(h)-historyCapacity:]
	}
	f.history[source] = h
	return value, false
}

func (f *SpikeFilter) isSpike(history []float64, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return true
	}

	// absolute ceiling, independent of history
	if f.thresholdW > 0 && math.Abs(value) > f.thresholdW {
		return true
	}

	// statistical test once we have enough history
	if len(history) >= 3 {
		mean, stddev := meanStddev(history)
		if stddev > 0 && math.Abs(value-mean) > zScoreLimit*stddev {
			return true
		}
	}

	// sudden-change ratio against the last accepted value, only when that
	// value is large enough for a ratio to mean anything
	if f.maxRatio > 0 && len(history) > 0 {
		last := history[len(history)-1]
		if math.Abs(last) > f.minValidW {
			ratio := math.Abs(value / last)
			if ratio > f.maxRatio || ratio < 1/f.maxRatio {
				return true
			}
		}
	}

	return false
}

func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
