package meter

import (
	"context"
	"testing"
	"time"

	"github.com/gridtally/gridtally/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(start time.Time, step time.Duration, values ...float64) []types.HistoryPoint {
	out := make([]types.HistoryPoint, len(values))
	for i, v := range values {
		out[i] = types.HistoryPoint{Timestamp: start.Add(time.Duration(i) * step), PowerW: v}
	}
	return out
}

func TestReplayMatchesLiveIntegration(t *testing.T) {
	ctx := context.Background()
	start := lt(2024, time.July, 9, 10) // Tuesday 10:00 PT

	gridValues := []float64{2000, 3500, -1500, 4200, 800, 6000}
	grid := points(start, 5*time.Minute, gridValues...)

	replayed := NewAccumulator(touConfig())
	n := Replay(ctx, replayed, NewSpikeFilter(1e6, 0, 50), Series{Grid: grid})
	require.Equal(t, len(grid), n)

	live := NewAccumulator(touConfig())
	for i, p := range grid {
		dur := finalSampleDuration
		if i+1 < len(grid) {
			dur = grid[i+1].Timestamp.Sub(p.Timestamp)
		}
		require.NoError(t, live.Integrate(ctx, p.Timestamp, dur, PowerSample{GridW: p.PowerW}))
	}

	rl, ll := replayed.Ledger(), live.Ledger()
	for _, p := range types.Periods() {
		for f := types.Flow(0); f < types.NumFlows; f++ {
			assert.InDelta(t, ll.Energy[p][f], rl.Energy[p][f], 1e-9, "%s/%s", p, f)
		}
		assert.InDelta(t, ll.Cost[p], rl.Cost[p], 1e-9, "%s cost", p)
	}
}

func TestReplayMergesSolarTimestamps(t *testing.T) {
	ctx := context.Background()
	start := lt(2024, time.July, 9, 10)

	// solar changes between grid samples; the merged sequence interleaves
	// both and holds each series' last value across the other's timestamps
	grid := points(start, 10*time.Minute, 2000, 2000, 2000)
	solar := points(start.Add(5*time.Minute), 10*time.Minute, 1000, 3000)

	acc := NewAccumulator(touConfig())
	n := Replay(ctx, acc, NewSpikeFilter(1e6, 0, 50), Series{Grid: grid, Solar: solar})
	require.Equal(t, 5, n)

	l := acc.Ledger()
	// grid: 2000 W held over 21 minutes of merged intervals
	// (10 + 10 + 1 final fallback minute, the solar-only timestamps
	// subdividing them)
	assert.InDelta(t, 2.0*21.0/60.0, l.Total(types.FlowDelivered), 1e-9)
	// solar: 1000 W from minute 5 to 15, 3000 W from 15 to 21
	assert.InDelta(t, (1.0*10.0+3.0*6.0)/60.0, l.Total(types.FlowGenerated), 1e-9)
}

func TestReplaySkipsTimestampsBeforeGridHistory(t *testing.T) {
	ctx := context.Background()
	start := lt(2024, time.July, 9, 10)

	// solar history starts before grid history; those timestamps have no
	// concurrent grid value and must be skipped entirely
	solar := points(start, 5*time.Minute, 1000, 1000)
	grid := points(start.Add(10*time.Minute), 5*time.Minute, 2000, 2000)

	acc := NewAccumulator(touConfig())
	n := Replay(ctx, acc, NewSpikeFilter(1e6, 0, 50), Series{Grid: grid, Solar: solar})
	assert.Equal(t, 2, n)

	l := acc.Ledger()
	// only the two grid timestamps integrate: 5 minutes + the final
	// fallback minute
	assert.InDelta(t, 2.0*6.0/60.0, l.Total(types.FlowDelivered), 1e-9)
	// no solar accumulates on the skipped leading timestamps
	assert.InDelta(t, 1.0*6.0/60.0, l.Total(types.FlowGenerated), 1e-9)
}

func TestReplayNoGridHistory(t *testing.T) {
	ctx := context.Background()
	acc := NewAccumulator(touConfig())

	n := Replay(ctx, acc, NewSpikeFilter(1e6, 0, 50), Series{
		Solar: points(lt(2024, time.July, 9, 10), time.Minute, 1000, 2000),
	})
	assert.Zero(t, n)
	assert.Equal(t, types.Ledger{}, acc.Ledger())
}

func TestReplaySubstitutesSpikes(t *testing.T) {
	ctx := context.Background()
	start := lt(2024, time.July, 9, 10)

	// the 90 kW reading is over the absolute ceiling and is replaced with
	// the last accepted value
	grid := points(start, time.Minute, 2000, 90000, 2000)

	acc := NewAccumulator(touConfig())
	n := Replay(ctx, acc, NewSpikeFilter(10000, 0, 50), Series{Grid: grid})
	require.Equal(t, 3, n)

	l := acc.Ledger()
	assert.InDelta(t, 2.0*3.0/60.0, l.Total(types.FlowDelivered), 1e-9)
}

func TestReplayUnsortedInputIsSorted(t *testing.T) {
	ctx := context.Background()
	start := lt(2024, time.July, 9, 10)

	grid := []types.HistoryPoint{
		{Timestamp: start.Add(10 * time.Minute), PowerW: 4000},
		{Timestamp: start, PowerW: 2000},
		{Timestamp: start.Add(5 * time.Minute), PowerW: 3000},
	}

	acc := NewAccumulator(touConfig())
	n := Replay(ctx, acc, NewSpikeFilter(1e6, 0, 50), Series{Grid: grid})
	require.Equal(t, 3, n)

	l := acc.Ledger()
	// 2 kW and 3 kW for 5 minutes each, then 4 kW for the final minute
	assert.InDelta(t, (2.0*5.0+3.0*5.0+4.0)/60.0, l.Total(types.FlowDelivered), 1e-9)
}
