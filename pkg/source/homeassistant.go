package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gridtally/gridtally/pkg/common"
	"github.com/gridtally/gridtally/pkg/log"
	"github.com/gridtally/gridtally/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// HomeAssistant implements the Provider interface against the Home Assistant
// REST API. It reads live power from /api/states and historical power from
// /api/history/period.
type HomeAssistant struct {
	apiURL string
	token  string
	client *http.Client
}

// configuredHomeAssistant sets up flags for Home Assistant and returns the
// instance.
func configuredHomeAssistant() *HomeAssistant {
	h := &HomeAssistant{
		client: common.HTTPClient(30 * time.Second),
	}
	apiURL := lflag.String("ha-api-url", "http://homeassistant.local:8123/api", "URL for the Home Assistant REST API")
	token := lflag.String("ha-api-token", "", "Long-lived access token for the Home Assistant REST API")

	lflag.Do(func() {
		h.apiURL = strings.TrimSuffix(*apiURL, "/")
		h.token = *token
	})

	return h
}

// Validate ensures the configuration is valid.
func (h *HomeAssistant) Validate() error {
	if h.apiURL == "" {
		return fmt.Errorf("ha-api-url is required")
	}
	if _, err := url.Parse(h.apiURL); err != nil {
		return fmt.Errorf("failed to parse ha url (%s): %w", h.apiURL, err)
	}
	if h.token == "" {
		return fmt.Errorf("ha-api-token is required")
	}
	return nil
}

// haState represents a single state object from the Home Assistant API.
type haState struct {
	EntityID    string `json:"entity_id"`
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
	Attributes  struct {
		UnitOfMeasurement string `json:"unit_of_measurement"`
	} `json:"attributes"`
}

// powerW converts the state into watts, scaling by the reported unit.
func (s haState) powerW() (float64, error) {
	switch s.State {
	case "unavailable", "unknown", "":
		return 0, ErrUnavailable
	}
	v, err := strconv.ParseFloat(s.State, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse state %q: %w", s.State, err)
	}
	switch s.Attributes.UnitOfMeasurement {
	case "kW":
		return v * 1000, nil
	case "W", "":
		return v, nil
	default:
		return 0, fmt.Errorf("unsupported power unit %q", s.Attributes.UnitOfMeasurement)
	}
}

func (h *HomeAssistant) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", h.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call home assistant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("home assistant returned status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CurrentPower returns the entity's instantaneous power in watts.
func (h *HomeAssistant) CurrentPower(ctx context.Context, entityID string) (float64, error) {
	var state haState
	if err := h.get(ctx, "/states/"+url.PathEscape(entityID), &state); err != nil {
		return 0, err
	}

	w, err := state.powerW()
	if err != nil {
		return 0, fmt.Errorf("entity %s: %w", entityID, err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"got current power",
		slog.String("entityID", entityID),
		slog.Float64("watts", w),
	)
	return w, nil
}

// History returns the entity's power readings between start and end. The
// REST API only exposes raw state history, so any request for aggregated
// statistics reports ErrResolutionUnsupported and the caller falls back.
func (h *HomeAssistant) History(ctx context.Context, entityID string, start, end time.Time, res types.Resolution) ([]types.HistoryPoint, error) {
	switch res {
	case types.ResolutionStates:
	case types.ResolutionStatistics:
		return nil, ErrResolutionUnsupported
	default:
		return nil, fmt.Errorf("unknown resolution %q: %w", res, ErrResolutionUnsupported)
	}

	params := url.Values{}
	params.Set("filter_entity_id", entityID)
	params.Set("end_time", end.UTC().Format(time.RFC3339))
	path := "/history/period/" + url.PathEscape(start.UTC().Format(time.RFC3339)) + "?" + params.Encode()

	// the API returns one array of states per requested entity
	var data [][]haState
	if err := h.get(ctx, path, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	points := make([]types.HistoryPoint, 0, len(data[0]))
	for _, s := range data[0] {
		w, err := s.powerW()
		if err != nil {
			// gaps where the sensor was unavailable are expected in
			// history, skip them
			continue
		}
		ts, err := time.Parse(time.RFC3339, s.LastChanged)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to parse history timestamp",
				slog.String("value", s.LastChanged), slog.Any("error", err))
			continue
		}
		points = append(points, types.HistoryPoint{Timestamp: ts, PowerW: w})
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched history",
		slog.String("entityID", entityID),
		slog.Int("count", len(points)),
		slog.Time("start", start),
		slog.Time("end", end),
	)
	return points, nil
}
