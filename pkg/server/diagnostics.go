package server

import (
	"log/slog"
	"net/http"

	"github.com/gridtally/gridtally/pkg/common"
	"github.com/gridtally/gridtally/pkg/coordinator"
	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/types"
)

const redacted = "**redacted**"

// DiagnosticsRes is the response type for GET /api/diagnostics. Entity IDs
// identify devices inside the user's home and are redacted so the payload
// can be shared in bug reports.
type DiagnosticsRes struct {
	Version  string                     `json:"version"`
	SiteID   string                     `json:"siteID"`
	Settings types.Settings             `json:"settings"`
	Entities []coordinator.EntityStatus `json:"entities"`
	Snapshot types.Snapshot             `json:"snapshot"`
	Metrics  []MetricRes                `json:"metrics"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := s.coord.Snapshot()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get snapshot", slog.Any("error", err))
		writeJSONError(w, "failed to get snapshot", http.StatusServiceUnavailable)
		return
	}

	settings := s.coord.Settings()
	if settings.GridPowerEntity != "" {
		settings.GridPowerEntity = redacted
	}
	if settings.SolarPowerEntity != "" {
		settings.SolarPowerEntity = redacted
	}
	if settings.LoadPowerEntity != "" {
		settings.LoadPowerEntity = redacted
	}

	writeJSON(w, DiagnosticsRes{
		Version:  common.Version(),
		SiteID:   s.coord.SiteID(),
		Settings: settings,
		Entities: s.coord.EntityStatuses(ctx),
		Snapshot: snap,
		Metrics:  metricsFor(&snap),
	})
}
