package server

import (
	"log/slog"
	"net/http"

	"github.com/gridtally/gridtally/pkg/log"
)

// handleUpdate forces an immediate poll-and-integrate outside the regular
// interval, e.g. from a scheduler or after fixing a sensor.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.coord.Tick(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "forced update failed", slog.Any("error", err))
		writeJSONError(w, "update failed", http.StatusInternalServerError)
		return
	}

	snap, err := s.coord.Snapshot()
	if err != nil {
		writeJSONError(w, "failed to get snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, SnapshotRes{
		Snapshot:  snap,
		TotalCost: roundCents(snap.TotalCost),
	})
}
