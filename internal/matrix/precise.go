package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"routeflow/internal/model"
)

// PreciseProvider queries a routing-engine matrix endpoint (ORS/OSRM style)
// for real driving times. Requests are rate limited to stay within API
// quotas. On any failure the caller is expected to fall back to the default
// metric; see FallbackProvider.
type PreciseProvider struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

func NewPreciseProvider(baseURL, apiKey string, rps float64) *PreciseProvider {
	if rps <= 0 {
		rps = 2
	}
	return &PreciseProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type matrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func (p *PreciseProvider) Compute(ctx context.Context, stops []model.Stop, depot *model.GeoPoint) (*Matrix, error) {
	locs := locations(stops, depot)
	if len(locs) == 0 {
		return newEmpty(0), nil
	}
	if err := p.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("matrix backend: rate wait: %w", err)
	}

	coords := make([][]float64, len(locs))
	for i, l := range locs {
		coords[i] = []float64{l.Lng, l.Lat} // routing engines take lng,lat order
	}
	payload, err := json.Marshal(matrixRequest{Locations: coords, Metrics: []string{"distance", "duration"}})
	if err != nil {
		return nil, fmt.Errorf("matrix backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v2/matrix/driving-car", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("matrix backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", p.APIKey)
	}

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("matrix backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("matrix backend: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("matrix backend: decode response: %w", err)
	}
	if len(mr.Distances) != len(locs) || len(mr.Durations) != len(locs) {
		return nil, fmt.Errorf("matrix backend: expected %d rows, got distances=%d durations=%d",
			len(locs), len(mr.Distances), len(mr.Durations))
	}

	m := newEmpty(len(locs))
	if depot != nil {
		m.Depot = len(locs) - 1
	}
	for i := range locs {
		if len(mr.Distances[i]) != len(locs) || len(mr.Durations[i]) != len(locs) {
			return nil, fmt.Errorf("matrix backend: ragged row %d", i)
		}
		for j := range locs {
			dm, ds := mr.Distances[i][j], mr.Durations[i][j]
			if dm == nil || ds == nil {
				return nil, fmt.Errorf("matrix backend: unreachable pair (%d,%d)", i, j)
			}
			m.Miles[i][j] = *dm / metersPerMile
			m.Minutes[i][j] = *ds / 60
		}
	}
	return m, nil
}

// FallbackProvider tries a primary provider and degrades to the default
// metric when it fails. A degraded matrix is flagged so the run can report
// reduced quality instead of aborting.
type FallbackProvider struct {
	Primary    Provider
	Fallback   Provider
	OnFallback func(err error)
}

func (p *FallbackProvider) Compute(ctx context.Context, stops []model.Stop, depot *model.GeoPoint) (*Matrix, error) {
	m, err := p.Primary.Compute(ctx, stops, depot)
	if err == nil {
		return m, nil
	}
	if p.OnFallback != nil {
		p.OnFallback(err)
	}
	m, ferr := p.Fallback.Compute(ctx, stops, depot)
	if ferr != nil {
		return nil, fmt.Errorf("fallback metric: %w", ferr)
	}
	m.Degraded = true
	return m, nil
}
