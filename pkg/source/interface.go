package source

import (
	"context"
	"errors"
	"time"

	"github.com/gridtally/gridtally/pkg/types"
)

// ErrUnavailable is returned when an entity exists but currently has no
// usable reading, e.g. the upstream integration is offline.
var ErrUnavailable = errors.New("entity is unavailable")

// ErrResolutionUnsupported is returned by History when the provider cannot
// serve the requested resolution. Callers are expected to retry with
// ResolutionStates.
var ErrResolutionUnsupported = errors.New("history resolution unsupported")

// Provider defines the interface for reading live and historical power from
// a home automation system.
type Provider interface {
	// CurrentPower returns the instantaneous power reading of the entity
	// in watts.
	CurrentPower(ctx context.Context, entityID string) (float64, error)

	// History returns the entity's power readings in watts between start
	// and end, ascending by timestamp.
	History(ctx context.Context, entityID string, start, end time.Time, res types.Resolution) ([]types.HistoryPoint, error)
}
