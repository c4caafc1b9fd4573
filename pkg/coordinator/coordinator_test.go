package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/gridtally/gridtally/pkg/meter"
	"github.com/gridtally/gridtally/pkg/source"
	"github.com/gridtally/gridtally/pkg/source/sourcemock"
	"github.com/gridtally/gridtally/pkg/storage"
	"github.com/gridtally/gridtally/pkg/storage/storagemock"
	"github.com/gridtally/gridtally/pkg/tariff"
	"github.com/gridtally/gridtally/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testSettings() types.Settings {
	return types.Settings{
		Name:             "Home",
		GridPowerEntity:  "sensor.grid_power",
		SolarPowerEntity: "sensor.solar_power",
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
}

func testCoordinator(src *sourcemock.MockProvider, db *storagemock.MockDatabase) *Coordinator {
	return &Coordinator{
		source:   src,
		db:       db,
		siteID:   "test-site",
		interval: time.Minute,
	}
}

func TestCoordinatorInit(t *testing.T) {
	ctx := context.Background()
	src := &sourcemock.MockProvider{}
	db := &storagemock.MockDatabase{}
	c := testCoordinator(src, db)

	db.On("GetSettings", mock.Anything, "test-site").
		Return(testSettings(), types.CurrentSettingsVersion, nil)
	db.On("GetLatestSnapshot", mock.Anything, "test-site").
		Return(types.Snapshot{}, storage.ErrSnapshotNotFound)
	db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)

	now := time.Now().In(tariff.Location())
	gridHistory := []types.HistoryPoint{
		{Timestamp: now.Add(-2 * time.Hour), PowerW: 3000},
		{Timestamp: now.Add(-1 * time.Hour), PowerW: 3000},
	}

	// aggregated statistics are not available, the coordinator falls back
	// to raw states
	src.On("History", mock.Anything, "sensor.grid_power", mock.Anything, mock.Anything, types.ResolutionStatistics).
		Return(nil, source.ErrResolutionUnsupported)
	src.On("History", mock.Anything, "sensor.grid_power", mock.Anything, mock.Anything, types.ResolutionStates).
		Return(gridHistory, nil)
	src.On("History", mock.Anything, "sensor.solar_power", mock.Anything, mock.Anything, types.ResolutionStatistics).
		Return(nil, source.ErrResolutionUnsupported)
	src.On("History", mock.Anything, "sensor.solar_power", mock.Anything, mock.Anything, types.ResolutionStates).
		Return(nil, nil)

	require.NoError(t, c.Init(ctx))

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.Greater(t, snap.Ledger.Total(types.FlowDelivered), 0.0)
	assert.Greater(t, snap.TotalCost, 0.0)
	assert.True(t, snap.LastReset.Equal(meter.CycleStart(1, now)))

	db.AssertExpectations(t)
	src.AssertExpectations(t)
}

func TestCoordinatorInitMigratesSettings(t *testing.T) {
	ctx := context.Background()
	src := &sourcemock.MockProvider{}
	db := &storagemock.MockDatabase{}
	c := testCoordinator(src, db)

	// a version-1 site is missing zone, billing period, and filter tuning;
	// init fills them in and persists the result
	stored := types.Settings{
		GridPowerEntity: "sensor.grid_power",
		Tariff: types.TariffConfig{
			Plan:       types.PlanTimeOfUse,
			BillingDay: 1,
		},
	}
	db.On("GetSettings", mock.Anything, "test-site").Return(stored, 1, nil)
	db.On("SetSettings", mock.Anything, "test-site", mock.MatchedBy(func(s types.Settings) bool {
		return s.Tariff.Zone == types.Zone1 &&
			s.Tariff.BillingPeriod == types.BillingMonthly &&
			s.SpikeThresholdW == 100000
	}), types.CurrentSettingsVersion).Return(nil)
	db.On("GetLatestSnapshot", mock.Anything, "test-site").
		Return(types.Snapshot{}, storage.ErrSnapshotNotFound)
	db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)
	src.On("History", mock.Anything, "sensor.grid_power", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	require.NoError(t, c.Init(ctx))
	assert.Equal(t, types.Zone1, c.Settings().Tariff.Zone)
	db.AssertExpectations(t)
}

func TestCoordinatorInitInvalidSettings(t *testing.T) {
	ctx := context.Background()
	src := &sourcemock.MockProvider{}
	db := &storagemock.MockDatabase{}
	c := testCoordinator(src, db)

	// no grid entity even after migration
	db.On("GetSettings", mock.Anything, "test-site").
		Return(types.Settings{}, 0, nil)
	db.On("SetSettings", mock.Anything, "test-site", mock.Anything, types.CurrentSettingsVersion).
		Return(nil)

	err := c.Init(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid power entity")
}

func TestCoordinatorInitComparesLastSnapshot(t *testing.T) {
	ctx := context.Background()
	src := &sourcemock.MockProvider{}
	db := &storagemock.MockDatabase{}
	c := testCoordinator(src, db)

	// a persisted snapshot from the same cycle with totals the replay
	// cannot reproduce is reported but never fatal
	var prev types.Snapshot
	prev.LastReset = meter.CycleStart(1, time.Now().In(tariff.Location()))
	prev.Ledger.Energy[types.PeriodBase][types.FlowDelivered] = 500

	db.On("GetSettings", mock.Anything, "test-site").
		Return(testSettings(), types.CurrentSettingsVersion, nil)
	db.On("GetLatestSnapshot", mock.Anything, "test-site").Return(prev, nil)
	db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)
	src.On("History", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	require.NoError(t, c.Init(ctx))
	db.AssertCalled(t, "GetLatestSnapshot", mock.Anything, "test-site")
}

func TestCoordinatorTick(t *testing.T) {
	ctx := context.Background()
	// Tuesday 14:00 PT, summer high peak
	now := time.Date(2024, time.July, 9, 14, 0, 0, 0, tariff.Location())

	t.Run("IntegratesReadings", func(t *testing.T) {
		src := &sourcemock.MockProvider{}
		db := &storagemock.MockDatabase{}
		c := testCoordinator(src, db)
		c.settings = testSettings()
		c.acc = meter.NewAccumulator(c.settings.Tariff)
		c.acc.Reset(meter.CycleStart(1, now))
		c.nextReset = meter.NextReset(1, now)

		src.On("CurrentPower", mock.Anything, "sensor.grid_power").Return(6000.0, nil)
		src.On("CurrentPower", mock.Anything, "sensor.solar_power").Return(1500.0, nil)
		db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)

		require.NoError(t, c.tick(ctx, now))

		l := c.acc.Ledger()
		assert.InDelta(t, 0.1, l.Energy[types.PeriodHighPeak][types.FlowDelivered], 1e-9)
		assert.InDelta(t, 0.025, l.Energy[types.PeriodHighPeak][types.FlowGenerated], 1e-9)
		db.AssertExpectations(t)
	})

	t.Run("SkipsTickWithoutGrid", func(t *testing.T) {
		src := &sourcemock.MockProvider{}
		db := &storagemock.MockDatabase{}
		c := testCoordinator(src, db)
		c.settings = testSettings()
		c.acc = meter.NewAccumulator(c.settings.Tariff)
		c.acc.Reset(meter.CycleStart(1, now))
		c.nextReset = meter.NextReset(1, now)

		src.On("CurrentPower", mock.Anything, "sensor.grid_power").
			Return(0.0, source.ErrUnavailable)

		err := c.tick(ctx, now)
		require.Error(t, err)
		assert.Equal(t, types.Ledger{}, c.acc.Ledger())
		db.AssertNotCalled(t, "UpsertSnapshot", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SolarUnavailableStillIntegrates", func(t *testing.T) {
		src := &sourcemock.MockProvider{}
		db := &storagemock.MockDatabase{}
		c := testCoordinator(src, db)
		c.settings = testSettings()
		c.acc = meter.NewAccumulator(c.settings.Tariff)
		c.acc.Reset(meter.CycleStart(1, now))
		c.nextReset = meter.NextReset(1, now)

		src.On("CurrentPower", mock.Anything, "sensor.grid_power").Return(6000.0, nil)
		src.On("CurrentPower", mock.Anything, "sensor.solar_power").
			Return(0.0, source.ErrUnavailable)
		db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)

		require.NoError(t, c.tick(ctx, now))

		l := c.acc.Ledger()
		assert.InDelta(t, 0.1, l.Energy[types.PeriodHighPeak][types.FlowDelivered], 1e-9)
		assert.Zero(t, l.Energy[types.PeriodHighPeak][types.FlowGenerated])
	})

	t.Run("BillingCycleRollover", func(t *testing.T) {
		src := &sourcemock.MockProvider{}
		db := &storagemock.MockDatabase{}
		c := testCoordinator(src, db)
		c.settings = testSettings()
		c.settings.SolarPowerEntity = ""
		c.acc = meter.NewAccumulator(c.settings.Tariff)

		// accumulator still holds the previous cycle
		prevCycle := time.Date(2024, time.June, 1, 0, 0, 0, 0, tariff.Location())
		c.acc.Reset(prevCycle)
		require.NoError(t, c.acc.Integrate(ctx, now.AddDate(0, -1, 0), time.Hour, meter.PowerSample{GridW: 4000}))
		c.nextReset = time.Date(2024, time.July, 1, 0, 0, 0, 0, tariff.Location())

		src.On("CurrentPower", mock.Anything, "sensor.grid_power").Return(6000.0, nil)
		db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)

		require.NoError(t, c.tick(ctx, now))

		// the old cycle's energy is gone, only this tick remains
		l := c.acc.Ledger()
		assert.InDelta(t, 0.1, l.TotalNet(), 1e-9)
		assert.True(t, c.acc.LastReset().Equal(meter.CycleStart(1, now)))
		assert.True(t, c.nextReset.After(now))
	})

	t.Run("RolloverUsesTariffTimezone", func(t *testing.T) {
		src := &sourcemock.MockProvider{}
		db := &storagemock.MockDatabase{}
		c := testCoordinator(src, db)
		c.settings = testSettings()
		c.settings.SolarPowerEntity = ""
		c.acc = meter.NewAccumulator(c.settings.Tariff)

		prevCycle := time.Date(2024, time.June, 1, 0, 0, 0, 0, tariff.Location())
		c.acc.Reset(prevCycle)
		require.NoError(t, c.acc.Integrate(ctx, time.Date(2024, time.June, 15, 12, 0, 0, 0, tariff.Location()), time.Hour, meter.PowerSample{GridW: 4000}))
		c.nextReset = time.Date(2024, time.July, 1, 0, 0, 0, 0, tariff.Location())

		src.On("CurrentPower", mock.Anything, "sensor.grid_power").Return(6000.0, nil)
		db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)

		// July 1 04:00 UTC is still the evening of June 30 in Los
		// Angeles, so the cycle must not reset yet
		require.NoError(t, c.tick(ctx, time.Date(2024, time.July, 1, 4, 0, 0, 0, time.UTC)))
		assert.True(t, c.acc.LastReset().Equal(prevCycle))
		assert.InDelta(t, 4.1, c.acc.Ledger().TotalNet(), 1e-9)

		// an hour past local midnight it does
		require.NoError(t, c.tick(ctx, time.Date(2024, time.July, 1, 8, 0, 0, 0, time.UTC)))
		assert.True(t, c.acc.LastReset().Equal(time.Date(2024, time.July, 1, 0, 0, 0, 0, tariff.Location())))
		assert.InDelta(t, 0.1, c.acc.Ledger().TotalNet(), 1e-9)
	})

	t.Run("NotInitialized", func(t *testing.T) {
		c := testCoordinator(&sourcemock.MockProvider{}, &storagemock.MockDatabase{})
		assert.Error(t, c.tick(ctx, now))
	})
}

func TestCoordinatorUpdateSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("Invalid", func(t *testing.T) {
		src := &sourcemock.MockProvider{}
		db := &storagemock.MockDatabase{}
		c := testCoordinator(src, db)

		err := c.UpdateSettings(ctx, types.Settings{})
		require.Error(t, err)
		db.AssertNotCalled(t, "SetSettings", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("PersistsAndReinitializes", func(t *testing.T) {
		src := &sourcemock.MockProvider{}
		db := &storagemock.MockDatabase{}
		c := testCoordinator(src, db)

		updated := testSettings()
		updated.Tariff.Plan = types.PlanStandard

		db.On("SetSettings", mock.Anything, "test-site", updated, types.CurrentSettingsVersion).Return(nil)
		db.On("GetSettings", mock.Anything, "test-site").
			Return(updated, types.CurrentSettingsVersion, nil)
		db.On("GetLatestSnapshot", mock.Anything, "test-site").
			Return(types.Snapshot{}, storage.ErrSnapshotNotFound)
		db.On("UpsertSnapshot", mock.Anything, "test-site", mock.Anything).Return(nil)
		src.On("History", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, nil)

		require.NoError(t, c.UpdateSettings(ctx, updated))
		assert.Equal(t, types.PlanStandard, c.Settings().Tariff.Plan)

		snap, err := c.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, types.PlanStandard, snap.Config.Plan)
		db.AssertExpectations(t)
	})
}
