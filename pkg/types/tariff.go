package types

import (
	"fmt"
)

// Plan identifies the LADWP residential rate plan.
type Plan string

const (
	// PlanStandard is the tiered R-1A plan: the unit price depends on
	// cumulative net consumption within the billing cycle.
	PlanStandard Plan = "standard"
	// PlanTimeOfUse is the R-1B plan: the unit price depends on the
	// time-of-use period, not on cumulative usage.
	PlanTimeOfUse Plan = "time_of_use"
)

// Zone identifies the LADWP climate zone, which determines tier limits for
// the standard plan.
type Zone string

const (
	Zone1 Zone = "zone_1"
	Zone2 Zone = "zone_2"
)

// BillingPeriodLength is how often LADWP bills the account. Bimonthly
// accounts get doubled tier limits.
type BillingPeriodLength string

const (
	BillingMonthly   BillingPeriodLength = "monthly"
	BillingBimonthly BillingPeriodLength = "bimonthly"
)

// Period is a time-of-use bucket. Every instant falls into exactly one.
type Period int

const (
	PeriodHighPeak Period = iota
	PeriodLowPeak
	PeriodBase

	NumPeriods = 3
)

var periodNames = [NumPeriods]string{"high_peak", "low_peak", "base"}

func (p Period) String() string {
	if p < 0 || p >= NumPeriods {
		panic(fmt.Sprintf("invalid period: %d", int(p)))
	}
	return periodNames[p]
}

// Periods lists every period in display order.
func Periods() [NumPeriods]Period {
	return [NumPeriods]Period{PeriodHighPeak, PeriodLowPeak, PeriodBase}
}

// Flow is a direction of energy being accounted.
type Flow int

const (
	// FlowDelivered is energy delivered from the grid to the home.
	FlowDelivered Flow = iota
	// FlowReceived is energy received by the grid from the home (net export).
	FlowReceived
	// FlowGenerated is solar production.
	FlowGenerated
	// FlowConsumed is load consumption.
	FlowConsumed

	NumFlows = 4
)

var flowNames = [NumFlows]string{"delivered", "received", "generated", "consumed"}

func (f Flow) String() string {
	if f < 0 || f >= NumFlows {
		panic(fmt.Sprintf("invalid flow: %d", int(f)))
	}
	return flowNames[f]
}

// Tier is a consumption tier of the standard plan.
type Tier int

const (
	Tier1 Tier = iota
	Tier2
	Tier3

	NumTiers = 3
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	}
	panic(fmt.Sprintf("invalid tier: %d", int(t)))
}

// TariffConfig is the immutable tariff selection for a site. Changing any of
// these requires a full reconfiguration and ledger reset.
type TariffConfig struct {
	Plan          Plan                `json:"ratePlan"`
	Zone          Zone                `json:"zone"`
	BillingPeriod BillingPeriodLength `json:"billingPeriod"`
	// BillingDay is the day of the month the billing cycle starts on,
	// 1..31. Days past the end of a month are clipped to the month's last
	// day.
	BillingDay int `json:"billingDay"`
}

// Validate checks the tariff config for values the rate tables know about.
func (c TariffConfig) Validate() error {
	switch c.Plan {
	case PlanStandard, PlanTimeOfUse:
	default:
		return fmt.Errorf("unknown rate plan: %q", c.Plan)
	}
	switch c.Zone {
	case Zone1, Zone2:
	default:
		return fmt.Errorf("unknown zone: %q", c.Zone)
	}
	switch c.BillingPeriod {
	case BillingMonthly, BillingBimonthly:
	default:
		return fmt.Errorf("unknown billing period: %q", c.BillingPeriod)
	}
	if c.BillingDay < 1 || c.BillingDay > 31 {
		return fmt.Errorf("billing day must be 1..31, got %d", c.BillingDay)
	}
	return nil
}
