package tariff

import (
	"fmt"
	"time"

	"github.com/gridtally/gridtally/pkg/types"
)

// NetMeteringCreditRate is the fixed credit in $/kWh applied to net-exported
// energy. It is not tiered and does not vary by period.
const NetMeteringCreditRate = 0.1974

// Rates below are the published LADWP residential schedules with all
// adjustment factors included, one row per month. Add a new map entry when
// LADWP publishes a new year; years beyond the latest entry deliberately
// reuse the latest entry's months (tariffs are treated as frozen at the last
// known schedule until updated here).

type monthlyTOURates map[time.Month][types.NumPeriods]float64

// [high_peak, low_peak, base]
var touRatesByYear = map[int]monthlyTOURates{
	2024: {
		time.January:   {0.22918, 0.22918, 0.20564},
		time.February:  {0.22918, 0.22918, 0.20564},
		time.March:     {0.22918, 0.22918, 0.20564},
		time.April:     {0.22521, 0.22521, 0.20167},
		time.May:       {0.22521, 0.22521, 0.20167},
		time.June:      {0.28361, 0.22521, 0.19777},
		time.July:      {0.29885, 0.24045, 0.21301},
		time.August:    {0.29885, 0.24045, 0.21301},
		time.September: {0.29885, 0.24045, 0.21301},
		time.October:   {0.24284, 0.24284, 0.21930},
		time.November:  {0.24284, 0.24284, 0.21930},
		time.December:  {0.24284, 0.24284, 0.21930},
	},
	2025: {
		time.January:   {0.25172, 0.25172, 0.22818},
		time.February:  {0.25172, 0.25172, 0.22818},
		time.March:     {0.25172, 0.25172, 0.22818},
		time.April:     {0.25641, 0.25641, 0.23287},
		time.May:       {0.25641, 0.25641, 0.23287},
		time.June:      {0.31481, 0.25641, 0.22897},
		// July-September use June's schedule until LADWP publishes them
		time.July:      {0.31481, 0.25641, 0.22897},
		time.August:    {0.31481, 0.25641, 0.22897},
		time.September: {0.31481, 0.25641, 0.22897},
		// Q4 carries the prior year's schedule until published
		time.October:  {0.24284, 0.24284, 0.21930},
		time.November: {0.24284, 0.24284, 0.21930},
		time.December: {0.24284, 0.24284, 0.21930},
	},
}

type monthlyStandardRates map[time.Month][types.NumTiers]float64

// [tier1, tier2, tier3]
var standardRatesByYear = map[int]monthlyStandardRates{
	2024: {
		time.January:   {0.20042, 0.25901, 0.25901},
		time.February:  {0.20042, 0.25901, 0.25901},
		time.March:     {0.20042, 0.25901, 0.25901},
		time.April:     {0.19645, 0.25504, 0.25504},
		time.May:       {0.19645, 0.25504, 0.25504},
		time.June:      {0.19645, 0.25504, 0.34205},
		time.July:      {0.21169, 0.27028, 0.35729},
		time.August:    {0.21169, 0.27028, 0.35729},
		time.September: {0.21169, 0.27028, 0.35729},
		time.October:   {0.21408, 0.27267, 0.27267},
		time.November:  {0.21408, 0.27267, 0.27267},
		time.December:  {0.21408, 0.27267, 0.27267},
	},
	2025: {
		time.January:   {0.22296, 0.28155, 0.28155},
		time.February:  {0.22296, 0.28155, 0.28155},
		time.March:     {0.22296, 0.28155, 0.28155},
		time.April:     {0.22765, 0.28624, 0.28624},
		time.May:       {0.22765, 0.28624, 0.28624},
		time.June:      {0.22765, 0.28624, 0.37325},
		time.July:      {0.22765, 0.28624, 0.37325},
		time.August:    {0.22765, 0.28624, 0.37325},
		time.September: {0.22765, 0.28624, 0.37325},
		time.October:   {0.21408, 0.27267, 0.27267},
		time.November:  {0.21408, 0.27267, 0.27267},
		time.December:  {0.21408, 0.27267, 0.27267},
	},
}

// Legacy coarse two-season tables, used for years before the earliest
// per-month schedule.
var (
	legacyTOURates = map[bool][types.NumPeriods]float64{
		true:  {0.29885, 0.24045, 0.21301}, // summer
		false: {0.22918, 0.22918, 0.20564}, // winter
	}
	legacyStandardRates = map[bool][types.NumTiers]float64{
		true:  {0.21169, 0.27028, 0.35729},
		false: {0.20042, 0.25901, 0.25901},
	}
)

func earliestKnownYear() int {
	year := 0
	for y := range touRatesByYear {
		if year == 0 || y < year {
			year = y
		}
	}
	return year
}

func latestKnownYear() int {
	year := 0
	for y := range touRatesByYear {
		if y > year {
			year = y
		}
	}
	return year
}

// rateYear maps an arbitrary year onto the table year to use, or 0 when the
// legacy seasonal table applies.
func rateYear(year int) int {
	earliest, latest := earliestKnownYear(), latestKnownYear()
	switch {
	case year >= earliest && year <= latest:
		return year
	case year > latest:
		return latest
	default:
		return 0
	}
}

// TOURate returns the $/kWh price of the period at t under the R-1B
// time-of-use plan. An unknown period is an invariant violation and panics.
func TOURate(t time.Time, p types.Period) float64 {
	if p < 0 || p >= types.NumPeriods {
		panic(fmt.Sprintf("invalid period: %d", int(p)))
	}
	if y := rateYear(t.Year()); y != 0 {
		months, ok := touRatesByYear[y]
		if !ok {
			panic(fmt.Sprintf("missing tou rates for year %d", y))
		}
		rates, ok := months[t.Month()]
		if !ok {
			panic(fmt.Sprintf("missing tou rates for %d-%02d", y, t.Month()))
		}
		return rates[p]
	}
	return legacyTOURates[IsSummer(t)][p]
}

// StandardRate returns the $/kWh price of the tier at t under the R-1A
// standard plan. An unknown tier is an invariant violation and panics.
func StandardRate(t time.Time, tier types.Tier) float64 {
	if tier < 0 || tier >= types.NumTiers {
		panic(fmt.Sprintf("invalid tier: %d", int(tier)))
	}
	if y := rateYear(t.Year()); y != 0 {
		months, ok := standardRatesByYear[y]
		if !ok {
			panic(fmt.Sprintf("missing standard rates for year %d", y))
		}
		rates, ok := months[t.Month()]
		if !ok {
			panic(fmt.Sprintf("missing standard rates for %d-%02d", y, t.Month()))
		}
		return rates[tier]
	}
	return legacyStandardRates[IsSummer(t)][tier]
}
