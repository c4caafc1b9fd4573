package meter

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/types"
)

// finalSampleDuration is the integration window assumed for the last merged
// timestamp, which has no successor to measure against. It matches the live
// tick interval.
const finalSampleDuration = time.Minute

// Series holds the normalized historical readings for one site, already
// bounded to the current billing cycle. Grid is mandatory for any
// integration to happen; a nil solar or load series simply omits that flow.
type Series struct {
	Grid  []types.HistoryPoint
	Solar []types.HistoryPoint
	Load  []types.HistoryPoint
}

// seriesCursor walks a time-ascending series answering "what was the value
// at ts", treating the series as a step function that holds each value until
// the next point.
type seriesCursor struct {
	points []types.HistoryPoint
	idx    int
}

func (c *seriesCursor) valueAt(ts time.Time) (float64, bool) {
	for c.idx < len(c.points) && !c.points[c.idx].Timestamp.After(ts) {
		c.idx++
	}
	if c.idx == 0 {
		return 0, false
	}
	return c.points[c.idx-1].PowerW, true
}

// Replay rebuilds accumulator state from historical series by pushing every
// merged timestamp through the same classify-price-integrate pipeline live
// ticks use, weighting each sample by the time until the next one.
//
// The accumulator must have just been reset; replaying twice against the
// same ledger would double-count, so callers guarantee at-most-once per
// reset. Returns the number of integrated intervals.
func Replay(ctx context.Context, acc *Accumulator, filter *SpikeFilter, set Series) int {
	if len(set.Grid) == 0 {
		log.Ctx(ctx).InfoContext(ctx, "no grid history, skipping backfill")
		return 0
	}

	timestamps := mergeTimestamps(set)

	grid := &seriesCursor{points: sortedByTime(set.Grid)}
	solar := &seriesCursor{points: sortedByTime(set.Solar)}
	load := &seriesCursor{points: sortedByTime(set.Load)}

	integrated := 0
	for i, ts := range timestamps {
		dur := finalSampleDuration
		if i+1 < len(timestamps) {
			dur = timestamps[i+1].Sub(ts)
		}

		gridW, ok := grid.valueAt(ts)
		if !ok {
			// no grid reading yet at this instant; never integrate
			// a partial sample
			continue
		}
		gridW, _ = filter.Sanitize(ctx, "grid", gridW)

		sample := PowerSample{GridW: gridW}
		if v, ok := solar.valueAt(ts); ok {
			v, _ = filter.Sanitize(ctx, "solar", v)
			sample.SolarW = &v
		}
		if v, ok := load.valueAt(ts); ok {
			v, _ = filter.Sanitize(ctx, "load", v)
			sample.LoadW = &v
		}

		if err := acc.Integrate(ctx, ts, dur, sample); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to integrate historical sample",
				slog.Time("ts", ts), slog.Any("error", err))
			continue
		}
		integrated++
	}

	log.Ctx(ctx).InfoContext(ctx, "backfill complete",
		slog.Int("timestamps", len(timestamps)),
		slog.Int("integrated", integrated),
		slog.Float64("totalNetKWH", acc.Ledger().TotalNet()),
	)
	return integrated
}

// mergeTimestamps collects the timestamps of every provided series into one
// deduplicated ascending sequence.
func mergeTimestamps(set Series) []time.Time {
	seen := make(map[int64]struct{})
	var merged []time.Time
	for _, series := range [][]types.HistoryPoint{set.Grid, set.Solar, set.Load} {
		for _, p := range series {
			key := p.Timestamp.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, p.Timestamp)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })
	return merged
}

func sortedByTime(points []types.HistoryPoint) []types.HistoryPoint {
	if sort.SliceIsSorted(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	}) {
		return points
	}
	out := make([]types.HistoryPoint, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
