package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/meter"
	"github.com/gridtally/gridtally/pkg/storage"
	"github.com/gridtally/gridtally/pkg/tariff"
	"github.com/gridtally/gridtally/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// seed populates the Firestore emulator with settings for a demo site plus a
// day of synthetic snapshots so the dashboard has something to show.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()
	const siteID = "default"

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	settings := types.Settings{
		Name:             "Demo Home",
		GridPowerEntity:  "sensor.grid_power",
		SolarPowerEntity: "sensor.solar_power",
		LoadPowerEntity:  "sensor.load_power",
		Tariff: types.TariffConfig{
			Plan:          types.PlanTimeOfUse,
			Zone:          types.Zone1,
			BillingPeriod: types.BillingMonthly,
			BillingDay:    1,
		},
		SpikeThresholdW: 100000,
		MaxChangeRatio:  10,
		MinValidPowerW:  50,
	}
	if err := s.SetSettings(ctx, siteID, settings, types.CurrentSettingsVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed settings", "error", err)
		os.Exit(1)
	}

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const (
		solarPeakW = 8000.0
		loadAvgW   = 1500.0
	)

	now := time.Now().In(tariff.Location())
	start := meter.CycleStart(settings.Tariff.BillingDay, now)
	if dayAgo := now.Add(-24 * time.Hour); dayAgo.After(start) {
		start = dayAgo
	}

	acc := meter.NewAccumulator(settings.Tariff)
	acc.Reset(meter.CycleStart(settings.Tariff.BillingDay, now))

	// integrate an hour at a time through the real accumulator so the
	// seeded snapshots are internally consistent
	for t := start; t.Before(now); t = t.Add(time.Hour) {
		hour := t.Hour()

		// solar bell curve around 13:00
		solarW := 0.0
		if hour > 6 && hour < 19 {
			dist := math.Abs(float64(hour) - 13.0)
			solarW = solarPeakW * math.Exp(-(dist*dist)/12.0)
		}

		loadW := loadAvgW + rng.Float64()*1000
		if hour >= 7 && hour < 9 {
			loadW += 2000 // breakfast
		} else if hour >= 18 && hour < 22 {
			loadW += 4000 // evening activities
		}

		gridW := loadW - solarW

		err := acc.Integrate(ctx, t, time.Hour, meter.PowerSample{
			GridW:  gridW,
			SolarW: &solarW,
			LoadW:  &loadW,
		})
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to integrate seed sample", "error", err)
			os.Exit(1)
		}

		ledger := acc.Ledger()
		snap := types.Snapshot{
			Version:   types.CurrentSnapshotVersion,
			Timestamp: t.Add(time.Hour),
			LastReset: acc.LastReset(),
			Config:    settings.Tariff,
			Ledger:    ledger,
			TotalCost: ledger.TotalCost(),
		}
		if err := s.UpsertSnapshot(ctx, siteID, snap); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed snapshot", "error", err)
			os.Exit(1)
		}

		fmt.Printf("Seeded snapshot at %s: grid %.0fW solar %.0fW (total cost: $%.2f)\n",
			t.Format(time.Kitchen), gridW, solarW, snap.TotalCost)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data successfully")
}
