package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/types"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.coord.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode settings", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// reinitializes the accumulator so the new tariff covers the whole
	// current cycle
	if err := s.coord.UpdateSettings(ctx, req); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to update settings", slog.Any("error", err))
		writeJSONError(w, "failed to update settings", http.StatusInternalServerError)
		return
	}

	log.Ctx(ctx).InfoContext(ctx, "settings updated")
	w.WriteHeader(http.StatusOK)
}
