package jsoncargo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/Dekks/internal/integrations"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchTracking_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/containers/MEDU9091004", r.URL.Path)
		require.Equal(t, "MSC", r.URL.Query().Get("shipping_line"))
		require.Equal(t, "42", r.URL.Query().Get("shipping_line_id"))
		require.Equal(t, "k", r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "data": {
    "container_status": "In Transit",
    "last_location": "Singapore",
    "last_location_terminal": "  ",
    "next_location": null,
    "current_vessel_name": "MSC OSCAR",
    "imo": 9525338,
    "eta_final_destination": "2025-01-02 10:00:00",
    "last_movement_timestamp": "not a date"
  }
}`))
	}))
	defer srv.Close()

	lineID := "42"
	c := New(srv.URL, "k", time.Second)
	snap, err := c.FetchTracking(context.Background(), "MEDU9091004", "MSC", &lineID)
	require.NoError(t, err)
	require.Equal(t, "In Transit", *snap.Status)
	require.Equal(t, "Singapore", *snap.LastLocation)
	require.Nil(t, snap.LastLocationTerminal)
	require.Nil(t, snap.NextLocation)
	require.Nil(t, snap.ShippedFrom)
	require.Equal(t, "9525338", *snap.VesselIMO)
	require.NotNil(t, snap.EtaFinalDestination)
	require.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), *snap.EtaFinalDestination)
	require.Nil(t, snap.LastMovementAt)
}

func TestClient_FetchTracking_MissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"title":"Container not found"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", time.Second).FetchTracking(context.Background(), "X", "MSC", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, integrations.ErrMalformedPayload))
	require.False(t, integrations.IsRetryable(err))
}

func TestClient_FetchTracking_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", time.Second).FetchTracking(context.Background(), "X", "MSC", nil)
	require.ErrorIs(t, err, integrations.ErrMalformedPayload)
}

func TestClient_FetchTracking_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.Query().Get("shipping_line_id"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", time.Second).FetchTracking(context.Background(), "X", "MSC", nil)
	require.ErrorIs(t, err, integrations.ErrUpstreamUnavailable)
	require.True(t, integrations.IsRetryable(err))

	var he *integrations.HTTPError
	require.True(t, errors.As(err, &he))
	require.Equal(t, http.StatusServiceUnavailable, he.StatusCode)
}

func TestClient_FetchTracking_NotFoundIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", time.Second).FetchTracking(context.Background(), "X", "MSC", nil)
	require.ErrorIs(t, err, integrations.ErrUpstreamUnavailable)
	require.False(t, integrations.IsRetryable(err))
}

func TestClient_FetchTracking_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", 20*time.Millisecond).FetchTracking(context.Background(), "X", "MSC", nil)
	require.ErrorIs(t, err, integrations.ErrUpstreamUnavailable)
	require.True(t, integrations.IsRetryable(err))
}
