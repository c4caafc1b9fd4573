package server

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/types"
)

// SnapshotRes is the response type for GET /api/snapshot.
type SnapshotRes struct {
	types.Snapshot
	// TotalCost shadows the embedded field, rounded to cents for display.
	TotalCost float64 `json:"totalCost"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.coord.Snapshot()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get snapshot", slog.Any("error", err))
		writeJSONError(w, "failed to get snapshot", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, SnapshotRes{
		Snapshot:  snap,
		TotalCost: roundCents(snap.TotalCost),
	})
}

// MetricRes is one row of the GET /api/metrics response.
type MetricRes struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.coord.Snapshot()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get snapshot", slog.Any("error", err))
		writeJSONError(w, "failed to get snapshot", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, metricsFor(&snap))
}

func metricsFor(snap *types.Snapshot) []MetricRes {
	defs := types.MetricDefs()
	metrics := make([]MetricRes, 0, len(defs))
	for _, def := range defs {
		v := def.Value(&snap.Ledger)
		if def.Kind == types.MetricMonetary {
			v = roundCents(v)
		}
		metrics = append(metrics, MetricRes{
			Key:   def.Key,
			Label: def.Label,
			Unit:  def.Unit,
			Value: v,
		})
	}
	return metrics
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSONError(w, "invalid start time", http.StatusBadRequest)
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSONError(w, "invalid end time", http.StatusBadRequest)
			return
		}
		end = t
	}
	if !start.Before(end) {
		writeJSONError(w, "start must be before end", http.StatusBadRequest)
		return
	}

	snaps, err := s.storage.GetSnapshotHistory(ctx, s.coord.SiteID(), start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get snapshot history", slog.Any("error", err))
		writeJSONError(w, "failed to get snapshot history", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []types.Snapshot{}
	}

	writeJSON(w, snaps)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
