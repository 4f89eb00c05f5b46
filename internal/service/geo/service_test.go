package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	apperrors "github.com/jwalitptl/drivermed-api/pkg/errors"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

type staticLocations []*model.Location

func (s staticLocations) ActiveLocations(context.Context) ([]*model.Location, error) {
	return s, nil
}

func newPostcodeServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/postcodes/MK40 1UH":
			_, _ = w.Write([]byte(`{"status":200,"result":{"postcode":"MK40 1UH","latitude":52.1364,"longitude":-0.4675}}`))
		case "/postcodes/BT1 1AA":
			_, _ = w.Write([]byte(`{"status":200,"result":{"postcode":"BT1 1AA","latitude":null,"longitude":null}}`))
		case "/postcodes/ZZ1 1ZZ":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":404,"error":"Postcode not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNearest_SortsByDistance(t *testing.T) {
	var hits int32
	srv := newPostcodeServer(t, &hits)
	locations := staticLocations{
		{ID: uuid.New(), Name: "Leeds", Latitude: 53.7997, Longitude: -1.5492},
		{ID: uuid.New(), Name: "Bedford", Latitude: 52.1360, Longitude: -0.4670},
		{ID: uuid.New(), Name: "No coordinates"},
		{ID: uuid.New(), Name: "Milton Keynes", Latitude: 52.0406, Longitude: -0.7594},
	}
	svc := NewService(Config{BaseURL: srv.URL + "/"}, locations, logger.Nop(), metrics.New("test"))

	got, err := svc.Nearest(context.Background(), " mk40   1uh ")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Bedford", got[0].Name)
	assert.Equal(t, "Milton Keynes", got[1].Name)
	assert.Equal(t, "Leeds", got[2].Name)
	assert.Less(t, got[0].DistanceKm, 1.0)

	_, err = svc.Nearest(context.Background(), "MK40 1UH")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLookup_Failures(t *testing.T) {
	var hits int32
	srv := newPostcodeServer(t, &hits)
	svc := NewService(Config{BaseURL: srv.URL}, staticLocations{}, logger.Nop(), nil)

	_, err := svc.Lookup(context.Background(), "ZZ1 1ZZ")
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)

	_, err = svc.Lookup(context.Background(), "BT1 1AA")
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)

	_, err = svc.Lookup(context.Background(), "SW1A 1AA")
	assert.ErrorIs(t, err, apperrors.ErrKindUpstreamTimeout)

	_, err = svc.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, apperrors.ErrKindValidation)
}

func TestHaversine(t *testing.T) {
	london := Point{Latitude: 51.5074, Longitude: -0.1278}
	paris := Point{Latitude: 48.8566, Longitude: 2.3522}

	assert.InDelta(t, 343.5, Haversine(london, paris), 1.0)
	assert.InDelta(t, 0, Haversine(london, london), 1e-9)
	assert.InDelta(t, Haversine(london, paris), Haversine(paris, london), 1e-9)
}
