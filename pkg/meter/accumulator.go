package meter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/tariff"
	"github.com/gridtally/gridtally/pkg/types"
)

// PowerSample is one instantaneous set of power readings in watts. Grid is
// required; solar and load are optional and nil when the site has no such
// entity (or the reading was unavailable).
type PowerSample struct {
	GridW  float64
	SolarW *float64
	LoadW  *float64
}

// Accumulator owns the billing-cycle EnergyLedger and is its only mutator.
// All mutation must be sequential; the accumulator does no locking of its
// own.
type Accumulator struct {
	cfg       types.TariffConfig
	ledger    types.Ledger
	lastReset time.Time
}

// NewAccumulator returns a zeroed accumulator for the given tariff. The
// config must already be validated; unknown keys surface later as panics.
func NewAccumulator(cfg types.TariffConfig) *Accumulator {
	return &Accumulator{cfg: cfg}
}

// Ledger returns a copy of the current ledger. The copy is only taken
// between integration steps, so it is always fully consistent.
func (a *Accumulator) Ledger() types.Ledger {
	return a.ledger
}

// LastReset returns the start of the billing cycle the ledger covers.
func (a *Accumulator) LastReset() time.Time {
	return a.lastReset
}

// Config returns the tariff configuration the accumulator prices with.
func (a *Accumulator) Config() types.TariffConfig {
	return a.cfg
}

// Reset discards the ledger wholesale and records the new cycle start.
func (a *Accumulator) Reset(cycleStart time.Time) {
	a.ledger = types.Ledger{}
	a.lastReset = cycleStart
}

// rateAt prices one kWh in the given period at ts, using the current
// (pre-sample) ledger totals for tier resolution on the standard plan.
func (a *Accumulator) rateAt(ts time.Time, p types.Period) float64 {
	switch a.cfg.Plan {
	case types.PlanTimeOfUse:
		return tariff.TOURate(ts, p)
	case types.PlanStandard:
		tier := tariff.TierFor(a.ledger.TotalNet(), a.cfg.Zone, a.cfg.BillingPeriod)
		return tariff.StandardRate(ts, tier)
	default:
		panic(fmt.Sprintf("unknown rate plan: %q", a.cfg.Plan))
	}
}

// Integrate converts the sample's instantaneous power over the given
// duration into energy, attributes it to the sample's time-of-use period,
// and reprices every period's net consumption. The update is atomic: on any
// error the ledger is left untouched.
//
// Rates are resolved against the ledger state before this sample is added,
// so on the standard plan the sample that crosses a tier threshold is priced
// entirely at the outgoing tier.
func (a *Accumulator) Integrate(ctx context.Context, ts time.Time, dur time.Duration, sample PowerSample) error {
	if dur < 0 {
		return fmt.Errorf("negative duration: %s", dur)
	}
	if dur == 0 {
		return nil
	}
	if math.IsNaN(sample.GridW) || math.IsInf(sample.GridW, 0) {
		return fmt.Errorf("invalid grid power: %f", sample.GridW)
	}

	ts = ts.In(tariff.Location())
	period := tariff.PeriodFor(ts)

	// Resolve every period's rate before mutating so tier resolution sees
	// pre-sample totals.
	var rates [types.NumPeriods]float64
	for _, p := range types.Periods() {
		rates[p] = a.rateAt(ts, p)
	}

	// Work on a copy and commit at the end so callers never observe (or
	// keep, after an error) a half-applied step.
	l := a.ledger

	hours := dur.Hours()
	gridKWH := sample.GridW * hours / 1000

	if gridKWH > 0 {
		l.Energy[period][types.FlowDelivered] += gridKWH
	} else {
		l.Energy[period][types.FlowReceived] += -gridKWH
	}

	for _, p := range types.Periods() {
		net := l.Net(p)
		if net > 0 {
			l.Cost[p] = net * rates[p]
		} else {
			// net export is credited at the fixed net metering rate
			l.Cost[p] = net * tariff.NetMeteringCreditRate
		}
	}

	// invalid solar or load readings drop just that flow, the grid step
	// above still commits
	if sample.SolarW != nil {
		if v := *sample.SolarW; !validFlowPower(v) {
			log.Ctx(ctx).WarnContext(ctx, "dropping invalid solar power", slog.Float64("solarW", v))
		} else {
			solarKWH := v * hours / 1000
			l.Energy[period][types.FlowGenerated] += solarKWH
			l.SolarCostSavings += solarKWH * rates[period]
		}
	}

	if sample.LoadW != nil {
		if v := *sample.LoadW; !validFlowPower(v) {
			log.Ctx(ctx).WarnContext(ctx, "dropping invalid load power", slog.Float64("loadW", v))
		} else {
			loadKWH := v * hours / 1000
			l.Energy[period][types.FlowConsumed] += loadKWH
			l.LoadCost += loadKWH * rates[period]
		}
	}

	a.ledger = l

	log.Ctx(ctx).DebugContext(ctx, "integrated sample",
		slog.Time("ts", ts),
		slog.Duration("duration", dur),
		slog.String("period", period.String()),
		slog.Float64("gridKWH", gridKWH),
		slog.Float64("rate", rates[period]),
		slog.Float64("totalNetKWH", l.TotalNet()),
	)
	return nil
}

func validFlowPower(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
