package provisioning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stagecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClient_CreateBroadcastObjects(t *testing.T) {
	var got createRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/broadcasts", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key", zaptest.NewLogger(t).Sugar())
	err := c.CreateBroadcastObjects(context.Background(), "session-1", []domain.Destination{
		{ID: "d1", Platform: domain.PlatformYouTube, Method: domain.MethodWHIP},
		{ID: "d2", Platform: domain.PlatformFacebook, Method: domain.MethodRTMPRelay},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer api-key", gotAuth)
	assert.Equal(t, "session-1", got.SessionID)
	require.Len(t, got.Destinations, 2)
	assert.Equal(t, "youtube", got.Destinations[0].Platform)
	assert.Equal(t, "whip", got.Destinations[0].Method)
}

func TestClient_ListDestinations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/broadcasts/session-1/destinations", r.URL.Path)
		json.NewEncoder(w).Encode(listResponse{DestinationIDs: []string{"d1", "d2"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zaptest.NewLogger(t).Sugar())
	ids, err := c.ListDestinations(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.DestinationID{"d1", "d2"}, ids)
}

func TestClient_TransitionToLiveAndEnd(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zaptest.NewLogger(t).Sugar())
	require.NoError(t, c.TransitionToLive(context.Background(), "d1"))
	require.NoError(t, c.EndBroadcast(context.Background(), "session-1"))

	assert.Equal(t, []string{
		"POST /v1/destinations/d1/live",
		"POST /v1/broadcasts/session-1/end",
	}, paths)
}

func TestClient_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zaptest.NewLogger(t).Sugar())
	err := c.TransitionToLive(context.Background(), "d1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", zaptest.NewLogger(t).Sugar()).(*Client)
	for i := 0; i < 20; i++ {
		_ = c.TransitionToLive(context.Background(), "d1")
	}
	// Once open, calls fail without reaching the server.
	err := c.TransitionToLive(context.Background(), "d1")
	assert.Error(t, err)
}
