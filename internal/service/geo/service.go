// Package geo ranks locations by distance from a UK postcode.
package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"

	"github.com/jwalitptl/drivermed-api/internal/model"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

const earthRadiusKm = 6371.0

var ErrPostcodeNotFound = errors.New("postcode not found")

type LocationLister interface {
	ActiveLocations(ctx context.Context) ([]*model.Location, error)
}

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Point struct {
	Latitude  float64
	Longitude float64
}

type Service struct {
	baseURL   string
	client    *http.Client
	cache     *cache.Cache
	locations LocationLister
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(cfg Config, locations LocationLister, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Service{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		cache:     cache.New(cfg.CacheTTL, time.Hour),
		locations: locations,
		logger:    logger,
		metrics:   metrics,
	}
}

// Nearest returns active locations with known coordinates, closest first.
func (s *Service) Nearest(ctx context.Context, postcode string) ([]model.LocationDistance, error) {
	origin, err := s.Lookup(ctx, postcode)
	if err != nil {
		return nil, err
	}

	locations, err := s.locations.ActiveLocations(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]model.LocationDistance, 0, len(locations))
	for _, l := range locations {
		if l.Latitude == 0 && l.Longitude == 0 {
			continue
		}
		d := Haversine(origin, Point{Latitude: l.Latitude, Longitude: l.Longitude})
		ranked = append(ranked, model.LocationDistance{Location: *l, DistanceKm: math.Round(d*10) / 10})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].DistanceKm < ranked[j].DistanceKm })
	return ranked, nil
}

// Lookup resolves a postcode to coordinates, caching successful answers.
func (s *Service) Lookup(ctx context.Context, postcode string) (Point, error) {
	key := normalizePostcode(postcode)
	if key == "" {
		return Point{}, apperrors.NewValidation("postcode is required", nil)
	}
	if cached, found := s.cache.Get(key); found {
		return cached.(Point), nil
	}

	p, err := s.fetch(ctx, key)
	if err != nil {
		if errors.Is(err, ErrPostcodeNotFound) {
			return Point{}, apperrors.NewValidation("postcode not recognised", err)
		}
		s.logger.Warn("postcode lookup failed", "postcode", key, "error", err.Error())
		return Point{}, apperrors.NewUpstreamTimeout("postcode service", err)
	}
	s.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

func (s *Service) fetch(ctx context.Context, postcode string) (Point, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.UpstreamLatency.WithLabelValues("postcodes", "lookup").Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/postcodes/"+url.PathEscape(postcode), nil)
	if err != nil {
		return Point{}, fmt.Errorf("failed to build postcode request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("failed to call postcode service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Point{}, fmt.Errorf("failed to read postcode response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Point{}, ErrPostcodeNotFound
	case resp.StatusCode != http.StatusOK:
		return Point{}, fmt.Errorf("postcode service returned %d", resp.StatusCode)
	case !gjson.ValidBytes(body):
		return Point{}, errors.New("postcode service returned invalid json")
	}

	lat := gjson.GetBytes(body, "result.latitude")
	lng := gjson.GetBytes(body, "result.longitude")
	if lat.Type != gjson.Number || lng.Type != gjson.Number {
		// Some valid postcodes (e.g. PO boxes) have no coordinates.
		return Point{}, ErrPostcodeNotFound
	}
	return Point{Latitude: lat.Float(), Longitude: lng.Float()}, nil
}

// Haversine is the great-circle distance between a and b in kilometres.
func Haversine(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func normalizePostcode(postcode string) string {
	return strings.ToUpper(strings.Join(strings.Fields(postcode), " "))
}
