package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mschirtzinger/planner/internal/schema"
)

// DefaultMatrixURL is the distance-matrix endpoint used when none is configured.
const DefaultMatrixURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

// HTTPDoer is the part of *http.Client the matrix estimator needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MatrixConfig configures a Matrix estimator.
type MatrixConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single lookup (default 5s)
	Timeout time.Duration
	Client  HTTPDoer
	// Fallback answers when the service cannot (default Heuristic)
	Fallback Estimator
	Logger   *slog.Logger
}

// Matrix asks a distance-matrix service for route durations.
type Matrix struct {
	cfg MatrixConfig
}

// NewMatrix creates a Matrix estimator. An empty APIKey makes every lookup
// go straight to the fallback.
func NewMatrix(cfg MatrixConfig) *Matrix {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMatrixURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Fallback == nil {
		cfg.Fallback = Heuristic{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Matrix{cfg: cfg}
}

type matrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

// Estimate implements Estimator.
func (m *Matrix) Estimate(ctx context.Context, from, to *schema.Location, mode schema.TransportMode) Estimate {
	if strings.TrimSpace(m.cfg.APIKey) == "" {
		return m.cfg.Fallback.Estimate(ctx, from, to, mode)
	}
	origin, dest := formatLocation(from), formatLocation(to)
	if origin == "" || dest == "" {
		return m.cfg.Fallback.Estimate(ctx, from, to, mode)
	}

	est, err := m.lookup(ctx, origin, dest, mode)
	if err != nil {
		m.cfg.Logger.Warn("distance matrix lookup failed, using fallback",
			"origin", origin, "destination", dest, "mode", mode, "error", err)
		return m.cfg.Fallback.Estimate(ctx, from, to, mode)
	}
	return est
}

func (m *Matrix) lookup(ctx context.Context, origin, dest string, mode schema.TransportMode) (Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("origins", origin)
	q.Set("destinations", dest)
	q.Set("mode", apiMode(mode))
	q.Set("key", m.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Estimate{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := m.cfg.Client.Do(req)
	if err != nil {
		return Estimate{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Estimate{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Estimate{}, fmt.Errorf("decode response: %w", err)
	}
	if body.Status != "OK" {
		return Estimate{}, fmt.Errorf("service status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Rows) == 0 || len(body.Rows[0].Elements) == 0 {
		return Estimate{}, fmt.Errorf("empty result")
	}
	el := body.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Estimate{}, fmt.Errorf("route status %s", el.Status)
	}
	if el.Duration.Value <= 0 {
		return Estimate{}, fmt.Errorf("invalid duration %d", el.Duration.Value)
	}

	est := Estimate{
		Minutes: int(math.Ceil(float64(el.Duration.Value) / 60)),
		Source:  "matrix",
	}
	if el.Distance.Value > 0 {
		km := float64(el.Distance.Value) / 1000
		est.DistanceKm = &km
	}
	return est, nil
}

func formatLocation(l *schema.Location) string {
	if l.HasCoordinates() {
		return strconv.FormatFloat(*l.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(*l.Longitude, 'f', -1, 64)
	}
	if l == nil {
		return ""
	}
	return strings.Join(strings.Fields(l.Address), " ")
}

func apiMode(mode schema.TransportMode) string {
	if mode == schema.ModeCycling {
		return "bicycling"
	}
	if mode == "" {
		return string(schema.ModeDriving)
	}
	return string(mode)
}
