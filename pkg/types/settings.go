package types

import (
	"fmt"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// Settings represents the per-site configuration stored in the database.
// These can be changed without redeploying, but tariff changes only take
// effect after the coordinator reinitializes (which resets the ledger and
// rebuilds it from history).
type Settings struct {
	Name string `json:"name"`

	// Source entity selection. Grid is required; solar and load are
	// optional and their ledger flows stay at zero when absent.
	GridPowerEntity  string `json:"gridPowerEntity"`
	SolarPowerEntity string `json:"solarPowerEntity,omitempty"`
	LoadPowerEntity  string `json:"loadPowerEntity,omitempty"`

	Tariff TariffConfig `json:"tariff"`

	// Spike filter tuning for historical backfill.
	// Readings with an absolute value above SpikeThresholdW are always
	// rejected.
	SpikeThresholdW float64 `json:"spikeThresholdW"`
	// MaxChangeRatio rejects a reading whose ratio to the previous
	// accepted reading exceeds this (or falls below its inverse).
	MaxChangeRatio float64 `json:"maxChangeRatio"`
	// MinValidPowerW is the floor below which the previous reading is too
	// small for the change-ratio test to be meaningful.
	MinValidPowerW float64 `json:"minValidPowerW"`
}

// Validate checks that the settings describe a runnable site.
func (s Settings) Validate() error {
	if s.GridPowerEntity == "" {
		return fmt.Errorf("grid power entity is required")
	}
	if err := s.Tariff.Validate(); err != nil {
		return err
	}
	if s.SpikeThresholdW < 0 || s.MaxChangeRatio < 0 || s.MinValidPowerW < 0 {
		return fmt.Errorf("spike filter settings must be non-negative")
	}
	return nil
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were
// made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial tariff defaults
			if s.Tariff.Plan == "" {
				s.Tariff.Plan = PlanTimeOfUse
				migrated = true
			}
			if s.Tariff.BillingDay == 0 {
				s.Tariff.BillingDay = 1
				migrated = true
			}
		case 2:
			// version 2: zone and billing period became configurable
			if s.Tariff.Zone == "" {
				s.Tariff.Zone = Zone1
				migrated = true
			}
			if s.Tariff.BillingPeriod == "" {
				s.Tariff.BillingPeriod = BillingMonthly
				migrated = true
			}
		case 3:
			// version 3: spike filter tuning
			if s.SpikeThresholdW == 0 {
				s.SpikeThresholdW = 100000
				migrated = true
			}
			if s.MaxChangeRatio == 0 {
				s.MaxChangeRatio = 10
				migrated = true
			}
			if s.MinValidPowerW == 0 {
				s.MinValidPowerW = 50
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
