package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/railsched/core/engine"
	"github.com/kilianp07/railsched/core/model"
	"github.com/kilianp07/railsched/core/network"
)

var ten = time.Date(2025, 9, 26, 10, 0, 0, 0, time.UTC)

func serve(t *testing.T, h http.Handler, method, url string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, url, nil))
	return rr
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.Optimizer.Enabled = false
	e, err := engine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestHandlersWithoutSchedule(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux, newEngine(t))
	assert.Equal(t, http.StatusNotFound, serve(t, mux, http.MethodGet, "/api/schedule").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, mux, http.MethodGet, "/api/kpis").Code)
	rr := serve(t, mux, http.MethodGet, "/api/disruptions")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, mux, http.MethodPost, "/api/schedule").Code)
}

func TestHandlersServeState(t *testing.T) {
	e := newEngine(t)
	net, err := network.New(
		[]model.Station{{Code: "A", Platforms: 2}, {Code: "B", Platforms: 2}},
		[]model.Track{{ID: "A-B-UP", From: "A", To: "B", DistanceKm: 20, MaxSpeedKmh: 120}},
	)
	require.NoError(t, err)
	trains := []model.Train{{ID: "T1", Priority: 1, Route: []string{"A", "B"}, SpeedKmh: 120,
		ScheduledDeparture: ten, ScheduledArrival: ten.Add(10 * time.Minute)}}
	_, err = e.GenerateSchedule(context.Background(), trains, net)
	require.NoError(t, err)

	mux := http.NewServeMux()
	Register(mux, e)

	rr := serve(t, mux, http.MethodGet, "/api/schedule?source=baseline")
	require.Equal(t, http.StatusOK, rr.Code)
	var s model.Schedule
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&s))
	assert.Contains(t, s.Trains, "T1")

	rr = serve(t, mux, http.MethodGet, "/api/kpis")
	require.Equal(t, http.StatusOK, rr.Code)
	var v kpiView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	assert.Equal(t, 1, v.Current.TotalTrains)
	assert.Equal(t, 100.0, v.Current.PunctualityRate)

	assert.Equal(t, http.StatusBadRequest, serve(t, mux, http.MethodGet, "/api/schedule?source=tomorrow").Code)
}
