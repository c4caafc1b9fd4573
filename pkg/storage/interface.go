package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gridtally/gridtally/pkg/types"
)

// ErrSnapshotNotFound is returned when a site has no stored snapshots yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Database defines the interface for persisting settings and accumulator
// snapshots.
type Database interface {
	// Settings
	GetSettings(ctx context.Context, siteID string) (types.Settings, int, error)
	SetSettings(ctx context.Context, siteID string, settings types.Settings, version int) error

	// Snapshots
	// UpsertSnapshot adds or updates the snapshot keyed by its timestamp.
	UpsertSnapshot(ctx context.Context, siteID string, snap types.Snapshot) error
	GetLatestSnapshot(ctx context.Context, siteID string) (types.Snapshot, error)
	GetSnapshotHistory(ctx context.Context, siteID string, start, end time.Time) ([]types.Snapshot, error)

	// Lifecycle
	Close() error
}
