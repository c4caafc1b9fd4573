package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("from zero", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, PlanTimeOfUse, s.Tariff.Plan)
		assert.Equal(t, 1, s.Tariff.BillingDay)
		assert.Equal(t, Zone1, s.Tariff.Zone)
		assert.Equal(t, BillingMonthly, s.Tariff.BillingPeriod)
		assert.Equal(t, 100000.0, s.SpikeThresholdW)
		assert.Equal(t, 10.0, s.MaxChangeRatio)
		assert.Equal(t, 50.0, s.MinValidPowerW)
	})

	t.Run("already current", func(t *testing.T) {
		orig := Settings{
			Tariff: TariffConfig{
				Plan:          PlanStandard,
				Zone:          Zone2,
				BillingPeriod: BillingBimonthly,
				BillingDay:    15,
			},
		}
		s, changed, err := MigrateSettings(orig, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, orig, s)
	})

	t.Run("partial migration keeps explicit values", func(t *testing.T) {
		orig := Settings{
			Tariff: TariffConfig{
				Plan:       PlanStandard,
				BillingDay: 20,
			},
		}
		s, changed, err := MigrateSettings(orig, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, PlanStandard, s.Tariff.Plan)
		assert.Equal(t, 20, s.Tariff.BillingDay)
		assert.Equal(t, Zone1, s.Tariff.Zone)
	})
}

func TestSettingsValidate(t *testing.T) {
	valid := Settings{
		GridPowerEntity: "sensor.grid_power",
		Tariff: TariffConfig{
			Plan:          PlanTimeOfUse,
			Zone:          Zone1,
			BillingPeriod: BillingMonthly,
			BillingDay:    1,
		},
	}
	require.NoError(t, valid.Validate())

	t.Run("missing grid entity", func(t *testing.T) {
		s := valid
		s.GridPowerEntity = ""
		assert.Error(t, s.Validate())
	})

	t.Run("bad billing day", func(t *testing.T) {
		for _, day := range []int{0, -1, 32} {
			s := valid
			s.Tariff.BillingDay = day
			assert.Error(t, s.Validate(), "billing day %d", day)
		}
	})

	t.Run("unknown plan", func(t *testing.T) {
		s := valid
		s.Tariff.Plan = "flat"
		assert.Error(t, s.Validate())
	})

	t.Run("unknown zone", func(t *testing.T) {
		s := valid
		s.Tariff.Zone = "zone_3"
		assert.Error(t, s.Validate())
	})

	t.Run("unknown billing period", func(t *testing.T) {
		s := valid
		s.Tariff.BillingPeriod = "weekly"
		assert.Error(t, s.Validate())
	})
}
