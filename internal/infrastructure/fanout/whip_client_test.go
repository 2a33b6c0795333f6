package fanout

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"stagecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWHIP_PostOfferExchange(t *testing.T) {
	var gotAuth, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Location", "/session/abc123")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "v=0\r\nanswer-sdp")
	}))
	defer srv.Close()

	tr := NewWHIPTransport(zaptest.NewLogger(t).Sugar())
	answer, resource, err := tr.postOffer(context.Background(), srv.URL+"/whip", "secret-token", "v=0\r\noffer-sdp")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/sdp", gotContentType)
	assert.Equal(t, "v=0\r\noffer-sdp", gotBody)
	assert.Equal(t, "v=0\r\nanswer-sdp", answer)
	assert.Equal(t, srv.URL+"/session/abc123", resource)
}

func TestWHIP_PostOfferRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad stream key", http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewWHIPTransport(zaptest.NewLogger(t).Sugar())
	_, _, err := tr.postOffer(context.Background(), srv.URL, "tok", "v=0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "bad stream key")
}

func TestWHIP_DeleteResource(t *testing.T) {
	deleted := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted <- r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewWHIPTransport(zaptest.NewLogger(t).Sugar())
	tr.deleteResource(context.Background(), srv.URL+"/session/abc123", "secret-token")

	select {
	case auth := <-deleted:
		assert.Equal(t, "Bearer secret-token", auth)
	default:
		t.Fatal("expected a DELETE against the session resource")
	}
}

func TestWHIP_MethodSelection(t *testing.T) {
	tr := NewWHIPTransport(zaptest.NewLogger(t).Sugar())
	assert.Equal(t, domain.MethodWHIP, tr.Method())
}
