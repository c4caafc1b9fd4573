package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// CurrentSnapshotVersion is the current version of persisted snapshots.
const CurrentSnapshotVersion = 1

// Ledger holds the cumulative energy and cost totals for one billing cycle.
// Energy is indexed by (period, flow) and is always non-negative; net values
// are derived and may be negative (net export).
//
// The ledger is a plain value type so callers can copy it for atomic
// commit-or-discard updates.
type Ledger struct {
	// Energy is cumulative kWh by period and flow.
	Energy [NumPeriods][NumFlows]float64
	// Cost is the cost in dollars attributed to each period's net
	// consumption (negative when the period is a net producer, priced at
	// the net metering credit rate).
	Cost [NumPeriods]float64
	// SolarCostSavings is the cumulative dollar value of solar generation
	// priced at the rate active when it was generated.
	SolarCostSavings float64
	// LoadCost is the cumulative dollar value of load consumption priced
	// at the rate active when it was consumed.
	LoadCost float64
}

// Net returns delivered minus received for the period.
func (l Ledger) Net(p Period) float64 {
	return l.Energy[p][FlowDelivered] - l.Energy[p][FlowReceived]
}

// Total returns the flow summed over all periods.
func (l Ledger) Total(f Flow) float64 {
	var sum float64
	for _, p := range Periods() {
		sum += l.Energy[p][f]
	}
	return sum
}

// TotalNet returns total delivered minus total received. For the standard
// plan this is the cumulative consumption that tier resolution operates on.
func (l Ledger) TotalNet() float64 {
	return l.Total(FlowDelivered) - l.Total(FlowReceived)
}

// TotalCost returns the sum of the per-period costs.
func (l Ledger) TotalCost() float64 {
	var sum float64
	for _, p := range Periods() {
		sum += l.Cost[p]
	}
	return sum
}

// ledger serializes with the flat attribute names the exported sensor has
// always used (high_peak_kwh_delivered, net_base_kwh, ...) rather than the
// internal array layout.

func (l Ledger) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumPeriods*(NumFlows+2)+7)
	for _, p := range Periods() {
		for f := Flow(0); f < NumFlows; f++ {
			m[fmt.Sprintf("%s_kwh_%s", p, f)] = l.Energy[p][f]
		}
		m[fmt.Sprintf("net_%s_kwh", p)] = l.Net(p)
		m[fmt.Sprintf("%s_cost", p)] = l.Cost[p]
	}
	for f := Flow(0); f < NumFlows; f++ {
		m[fmt.Sprintf("total_kwh_%s", f)] = l.Total(f)
	}
	m["total_kwh_net"] = l.TotalNet()
	m["solar_cost_savings"] = l.SolarCostSavings
	m["load_cost"] = l.LoadCost
	return json.Marshal(m)
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var parsed Ledger
	for _, p := range Periods() {
		for f := Flow(0); f < NumFlows; f++ {
			parsed.Energy[p][f] = m[fmt.Sprintf("%s_kwh_%s", p, f)]
		}
		parsed.Cost[p] = m[fmt.Sprintf("%s_cost", p)]
	}
	parsed.SolarCostSavings = m["solar_cost_savings"]
	parsed.LoadCost = m["load_cost"]
	*l = parsed
	return nil
}

// Snapshot is the externally visible state of the accounting engine. It is
// replaced wholesale after every tick or reset; consumers never observe a
// partially updated ledger.
type Snapshot struct {
	Version   int          `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	LastReset time.Time    `json:"lastReset"`
	Config    TariffConfig `json:"config"`
	Ledger    Ledger       `json:"ledger"`
	// TotalCost is the sum of the per-period costs, duplicated at the top
	// level for consumers that only want the single number.
	TotalCost float64 `json:"totalCost"`
}

// MetricKind describes how a metric should be presented.
type MetricKind int

const (
	MetricEnergy MetricKind = iota
	MetricMonetary
)

// MetricDef describes one exported ledger field. The full set of sensors is
// this one table rather than a type per metric.
type MetricDef struct {
	Key   string
	Label string
	Unit  string
	Kind  MetricKind
	Value func(*Ledger) float64
}

// MetricDefs returns the presentation table for every exported ledger field.
func MetricDefs() []MetricDef {
	labels := [NumPeriods]string{"High Peak", "Low Peak", "Base"}
	flowLabels := [NumFlows]string{"Delivered", "Received", "Generated", "Consumed"}

	var defs []MetricDef
	for _, p := range Periods() {
		p := p
		for f := Flow(0); f < NumFlows; f++ {
			f := f
			defs = append(defs, MetricDef{
				Key:   fmt.Sprintf("%s_kwh_%s", p, f),
				Label: fmt.Sprintf("%s %s", labels[p], flowLabels[f]),
				Unit:  "kWh",
				Kind:  MetricEnergy,
				Value: func(l *Ledger) float64 { return l.Energy[p][f] },
			})
		}
		defs = append(defs,
			MetricDef{
				Key:   fmt.Sprintf("net_%s_kwh", p),
				Label: fmt.Sprintf("%s Net", labels[p]),
				Unit:  "kWh",
				Kind:  MetricEnergy,
				Value: func(l *Ledger) float64 { return l.Net(p) },
			},
			MetricDef{
				Key:   fmt.Sprintf("%s_cost", p),
				Label: fmt.Sprintf("%s Cost", labels[p]),
				Unit:  "USD",
				Kind:  MetricMonetary,
				Value: func(l *Ledger) float64 { return l.Cost[p] },
			},
		)
	}
	for f := Flow(0); f < NumFlows; f++ {
		f := f
		defs = append(defs, MetricDef{
			Key:   fmt.Sprintf("total_kwh_%s", f),
			Label: fmt.Sprintf("Total %s", flowLabels[f]),
			Unit:  "kWh",
			Kind:  MetricEnergy,
			Value: func(l *Ledger) float64 { return l.Total(f) },
		})
	}
	defs = append(defs,
		MetricDef{
			Key:   "total_kwh_net",
			Label: "Total Net",
			Unit:  "kWh",
			Kind:  MetricEnergy,
			Value: func(l *Ledger) float64 { return l.TotalNet() },
		},
		MetricDef{
			Key:   "solar_cost_savings",
			Label: "Solar Cost Savings",
			Unit:  "USD",
			Kind:  MetricMonetary,
			Value: func(l *Ledger) float64 { return l.SolarCostSavings },
		},
		MetricDef{
			Key:   "load_cost",
			Label: "Load Cost",
			Unit:  "USD",
			Kind:  MetricMonetary,
			Value: func(l *Ledger) float64 { return l.LoadCost },
		},
	)
	return defs
}
