// Package location binds a geographic context to the crawl session before
// any catalog traversal, so responses reflect address-scoped availability
// and pricing.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// Config points the setter at the geocoding and binding endpoints.
type Config struct {
	GeocodeURL string
	BindURL    string
	// Central-city reference point used when geocoding fails.
	DefaultLat float64
	DefaultLon float64
}

// Setter performs the one-shot session binding. Best effort: every failure
// is logged and swallowed, the pipeline proceeds with whatever session
// state resulted.
type Setter struct {
	cfg     Config
	fetcher catalog.Fetcher
	logger  *zap.Logger
}

// New builds a Setter.
func New(cfg Config, fetcher catalog.Fetcher, logger *zap.Logger) *Setter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Setter{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Bind resolves addressOrCoords to a coordinate and issues one request to
// the origin's location-binding endpoint. It never fails the pipeline.
func (s *Setter) Bind(ctx context.Context, addressOrCoords string) {
	if s.cfg.BindURL == "" {
		s.logger.Debug("location binding disabled, no bind endpoint configured")
		return
	}

	lat, lon, ok := parseCoordinates(addressOrCoords)
	if !ok {
		lat, lon = s.geocode(ctx, addressOrCoords)
	}

	payload, err := json.Marshal(map[string]any{
		"latitude":  lat,
		"longitude": lon,
		"address":   addressOrCoords,
	})
	if err != nil {
		s.logger.Warn("marshal location payload", zap.Error(err))
		return
	}

	resp, err := s.fetcher.Fetch(ctx, http.MethodPost, s.cfg.BindURL, catalog.FetchOptions{
		Body:        payload,
		ContentType: "application/json",
	})
	if err != nil {
		s.logger.Warn("location bind request failed", zap.Error(err))
		return
	}
	if !resp.OK() {
		s.logger.Warn("location bind rejected", zap.Int("status", resp.StatusCode))
		return
	}
	s.logger.Info("location bound to session",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
	)
}

// geocode looks the address up on the external endpoint and falls back to
// the configured city-center coordinate on any failure or unexpected shape.
func (s *Setter) geocode(ctx context.Context, address string) (float64, float64) {
	if s.cfg.GeocodeURL == "" || strings.TrimSpace(address) == "" {
		return s.cfg.DefaultLat, s.cfg.DefaultLon
	}

	lookup := fmt.Sprintf("%s?format=json&limit=1&q=%s", s.cfg.GeocodeURL, url.QueryEscape(address))
	resp, err := s.fetcher.Fetch(ctx, http.MethodGet, lookup, catalog.FetchOptions{})
	if err != nil || !resp.OK() {
		s.logger.Warn("geocode lookup failed, using default coordinate", zap.Error(err))
		return s.cfg.DefaultLat, s.cfg.DefaultLon
	}

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(resp.Body, &hits); err != nil || len(hits) == 0 {
		s.logger.Warn("geocode response had unexpected shape, using default coordinate")
		return s.cfg.DefaultLat, s.cfg.DefaultLon
	}

	lat, latErr := strconv.ParseFloat(hits[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(hits[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return s.cfg.DefaultLat, s.cfg.DefaultLon
	}
	return lat, lon
}

// parseCoordinates accepts the "lat,lon" form directly.
func parseCoordinates(input string) (float64, float64, bool) {
	parts := strings.Split(strings.TrimSpace(input), ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
