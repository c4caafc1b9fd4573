package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/meter"
	"github.com/gridtally/gridtally/pkg/source"
	"github.com/gridtally/gridtally/pkg/storage"
	"github.com/gridtally/gridtally/pkg/tariff"
	"github.com/gridtally/gridtally/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Coordinator owns the accumulator for a site. It loads settings, rebuilds
// the current billing cycle from history on startup, integrates live power
// readings on a fixed interval, and persists snapshots after every change.
//
// All state behind mu; Tick, Snapshot, and UpdateSettings are safe to call
// concurrently.
type Coordinator struct {
	source source.Provider
	db     storage.Database

	siteID   string
	interval time.Duration

	mu        sync.Mutex
	settings  types.Settings
	acc       *meter.Accumulator
	filter    *meter.SpikeFilter
	nextReset time.Time
}

// New creates a Coordinator with explicit configuration. This is primarily
// used for testing; production wiring goes through Configured.
func New(src source.Provider, db storage.Database, siteID string, interval time.Duration) *Coordinator {
	return &Coordinator{
		source:   src,
		db:       db,
		siteID:   siteID,
		interval: interval,
	}
}

// Configured initializes the Coordinator with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(src source.Provider, db storage.Database) *Coordinator {
	c := &Coordinator{
		source: src,
		db:     db,
	}

	siteID := lflag.String("site-id", "default", "Site ID to track")
	interval := lflag.Duration("update-interval", time.Minute, "How often to poll power readings")

	lflag.Do(func() {
		c.siteID = *siteID
		c.interval = *interval
	})

	return c
}

// Init loads settings and rebuilds the accumulator for the current billing
// cycle by replaying history. It must be called before Run.
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked(ctx)
}

func (c *Coordinator) initLocked(ctx context.Context) error {
	settings, version, err := c.db.GetSettings(ctx, c.siteID)
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	settings, migrated, err := types.MigrateSettings(settings, version)
	if err != nil {
		return fmt.Errorf("failed to migrate settings: %w", err)
	}
	if migrated {
		log.Ctx(ctx).InfoContext(ctx, "migrated settings",
			slog.Int("fromVersion", version),
			slog.Int("toVersion", types.CurrentSettingsVersion),
		)
		if err := c.db.SetSettings(ctx, c.siteID, settings, types.CurrentSettingsVersion); err != nil {
			// we'll just migrate again next startup
			log.Ctx(ctx).WarnContext(ctx, "failed to persist migrated settings", slog.Any("error", err))
		}
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	c.settings = settings

	// cycle boundaries are local midnight in the tariff's timezone, not
	// wherever the process happens to run
	now := time.Now().In(tariff.Location())
	cycleStart := meter.CycleStart(settings.Tariff.BillingDay, now)
	c.nextReset = meter.NextReset(settings.Tariff.BillingDay, now)

	c.acc = meter.NewAccumulator(settings.Tariff)
	c.acc.Reset(cycleStart)
	c.filter = meter.NewSpikeFilter(settings.SpikeThresholdW, settings.MaxChangeRatio, settings.MinValidPowerW)

	log.Ctx(ctx).InfoContext(ctx, "rebuilding billing cycle from history",
		slog.String("siteID", c.siteID),
		slog.Time("cycleStart", cycleStart),
		slog.Time("nextReset", c.nextReset),
	)

	set := meter.Series{
		Grid:  c.fetchHistory(ctx, settings.GridPowerEntity, cycleStart, now),
		Solar: c.fetchHistory(ctx, settings.SolarPowerEntity, cycleStart, now),
		Load:  c.fetchHistory(ctx, settings.LoadPowerEntity, cycleStart, now),
	}
	meter.Replay(ctx, c.acc, c.filter, set)

	// compare against the last snapshot persisted for this cycle so a bad
	// history source shows up in the logs instead of silently shifting
	// the totals
	if prev, err := c.db.GetLatestSnapshot(ctx, c.siteID); err != nil {
		if !errors.Is(err, storage.ErrSnapshotNotFound) {
			log.Ctx(ctx).WarnContext(ctx, "failed to fetch last snapshot", slog.Any("error", err))
		}
	} else if prev.LastReset.Equal(cycleStart) {
		rebuilt := c.acc.Ledger().TotalNet()
		if diff := math.Abs(rebuilt - prev.Ledger.TotalNet()); diff > 1 {
			log.Ctx(ctx).WarnContext(ctx, "rebuilt cycle diverges from last persisted snapshot",
				slog.Float64("rebuiltNetKWH", rebuilt),
				slog.Float64("persistedNetKWH", prev.Ledger.TotalNet()),
				slog.Float64("diffKWH", diff),
			)
		}
	}

	c.publishLocked(ctx, now)
	return nil
}

// fetchHistory fetches the entity's history, preferring aggregated
// statistics and falling back to raw states if the provider cannot serve
// them. A fetch failure degrades to an empty series rather than failing
// startup.
func (c *Coordinator) fetchHistory(ctx context.Context, entityID string, start, end time.Time) []types.HistoryPoint {
	if entityID == "" {
		return nil
	}
	points, err := c.source.History(ctx, entityID, start, end, types.ResolutionStatistics)
	if errors.Is(err, source.ErrResolutionUnsupported) {
		points, err = c.source.History(ctx, entityID, start, end, types.ResolutionStates)
	}
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to fetch history",
			slog.String("entityID", entityID), slog.Any("error", err))
		return nil
	}
	return points
}

// Run polls power readings on the configured interval until the context is
// canceled. Individual tick failures are logged and do not stop the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Ctx(ctx).InfoContext(ctx, "coordinator running",
		slog.String("siteID", c.siteID),
		slog.Duration("interval", c.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "tick failed", slog.Any("error", err))
			}
		}
	}
}

// Tick reads the current power of every configured entity and integrates
// one interval into the ledger.
func (c *Coordinator) Tick(ctx context.Context) error {
	return c.tick(ctx, time.Now())
}

func (c *Coordinator) tick(ctx context.Context, now time.Time) error {
	now = now.In(tariff.Location())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acc == nil {
		return fmt.Errorf("coordinator not initialized")
	}

	// billing cycle rollover
	if !now.Before(c.nextReset) {
		cycleStart := meter.CycleStart(c.settings.Tariff.BillingDay, now)
		log.Ctx(ctx).InfoContext(ctx, "billing cycle rolled over",
			slog.Time("cycleStart", cycleStart),
			slog.Float64("previousTotalCost", c.acc.Ledger().TotalCost()),
		)
		c.acc.Reset(cycleStart)
		c.nextReset = meter.NextReset(c.settings.Tariff.BillingDay, now)
	}

	// without a grid reading this interval cannot be attributed, so skip
	// it entirely rather than integrating a partial sample
	gridW, err := c.source.CurrentPower(ctx, c.settings.GridPowerEntity)
	if err != nil {
		return fmt.Errorf("failed to read grid power: %w", err)
	}

	sample := meter.PowerSample{GridW: gridW}
	if c.settings.SolarPowerEntity != "" {
		if v, err := c.source.CurrentPower(ctx, c.settings.SolarPowerEntity); err != nil {
			log.Ctx(ctx).DebugContext(ctx, "solar power unavailable", slog.Any("error", err))
		} else {
			sample.SolarW = &v
		}
	}
	if c.settings.LoadPowerEntity != "" {
		if v, err := c.source.CurrentPower(ctx, c.settings.LoadPowerEntity); err != nil {
			log.Ctx(ctx).DebugContext(ctx, "load power unavailable", slog.Any("error", err))
		} else {
			sample.LoadW = &v
		}
	}

	if err := c.acc.Integrate(ctx, now, c.interval, sample); err != nil {
		return fmt.Errorf("failed to integrate sample: %w", err)
	}

	c.publishLocked(ctx, now)
	return nil
}

// publishLocked persists the current snapshot. Persistence is best-effort:
// the in-memory ledger is authoritative and a failed write only loses one
// history point.
func (c *Coordinator) publishLocked(ctx context.Context, now time.Time) {
	snap := c.snapshotLocked(now)
	if err := c.db.UpsertSnapshot(ctx, c.siteID, snap); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to persist snapshot", slog.Any("error", err))
	}
}

func (c *Coordinator) snapshotLocked(now time.Time) types.Snapshot {
	ledger := c.acc.Ledger()
	return types.Snapshot{
		Version:   types.CurrentSnapshotVersion,
		Timestamp: now,
		LastReset: c.acc.LastReset(),
		Config:    c.acc.Config(),
		Ledger:    ledger,
		TotalCost: ledger.TotalCost(),
	}
}

// Snapshot returns the current accumulator state.
func (c *Coordinator) Snapshot() (types.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acc == nil {
		return types.Snapshot{}, fmt.Errorf("coordinator not initialized")
	}
	return c.snapshotLocked(time.Now()), nil
}

// Settings returns the active settings.
func (c *Coordinator) Settings() types.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SiteID returns the site this coordinator tracks.
func (c *Coordinator) SiteID() string {
	return c.siteID
}

// EntityStatus reports whether a configured power entity currently has a
// usable reading.
type EntityStatus struct {
	Role      string `json:"role"`
	Available bool   `json:"available"`
}

// EntityStatuses probes each configured entity for a live reading.
func (c *Coordinator) EntityStatuses(ctx context.Context) []EntityStatus {
	c.mu.Lock()
	settings := c.settings
	c.mu.Unlock()

	entities := []struct {
		role string
		id   string
	}{
		{"grid", settings.GridPowerEntity},
		{"solar", settings.SolarPowerEntity},
		{"load", settings.LoadPowerEntity},
	}

	var statuses []EntityStatus
	for _, e := range entities {
		if e.id == "" {
			continue
		}
		_, err := c.source.CurrentPower(ctx, e.id)
		statuses = append(statuses, EntityStatus{
			Role:      e.role,
			Available: err == nil,
		})
	}
	return statuses
}

// UpdateSettings validates and persists new settings, then reinitializes
// the accumulator so tariff changes apply to the whole current cycle.
func (c *Coordinator) UpdateSettings(ctx context.Context, settings types.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.SetSettings(ctx, c.siteID, settings, types.CurrentSettingsVersion); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return c.initLocked(ctx)
}
