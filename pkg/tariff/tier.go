package tariff

import (
	"fmt"

	"github.com/gridtally/gridtally/pkg/types"
)

type tierLimits struct {
	tier1 float64 // kWh, inclusive upper bound of tier 1
	tier2 float64 // kWh, inclusive upper bound of tier 2
}

// Tier limits by zone and billing period length. Bimonthly limits are double
// the monthly ones.
var tierLimitTable = map[types.Zone]map[types.BillingPeriodLength]tierLimits{
	types.Zone1: {
		types.BillingMonthly:   {tier1: 350, tier2: 1050},
		types.BillingBimonthly: {tier1: 700, tier2: 2100},
	},
	types.Zone2: {
		types.BillingMonthly:   {tier1: 500, tier2: 1500},
		types.BillingBimonthly: {tier1: 1000, tier2: 3000},
	},
}

// TierFor maps cumulative net consumption within the billing cycle to a
// consumption tier. Limits are inclusive to the lower tier: exactly 350 kWh
// in zone 1 monthly is still tier 1.
//
// The caller resolves the tier from the ledger totals before adding the
// sample being priced, so the sample that crosses a threshold is priced
// entirely at the tier active when it started. A pro-rata split at the
// boundary is a known, accepted approximation.
//
// Unknown zone or billing period keys are invariant violations and panic.
func TierFor(netConsumptionKWH float64, zone types.Zone, bp types.BillingPeriodLength) types.Tier {
	byPeriod, ok := tierLimitTable[zone]
	if !ok {
		panic(fmt.Sprintf("unknown zone: %q", zone))
	}
	limits, ok := byPeriod[bp]
	if !ok {
		panic(fmt.Sprintf("unknown billing period: %q", bp))
	}

	switch {
	case netConsumptionKWH <= limits.tier1:
		return types.Tier1
	case netConsumptionKWH <= limits.tier2:
		return types.Tier2
	default:
		return types.Tier3
	}
}
