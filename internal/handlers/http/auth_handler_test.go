package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stagecast/internal/core/services"
	"stagecast/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := services.NewAuthService("jwt-secret", time.Hour)
	handler := NewAuthHandler(auth, "studio-key")

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	handler.SetupRoutes(router)
	return router
}

func postToken(t *testing.T, router *gin.Engine, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(http.MethodPost, "/api/v1/auth/token", &buf)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIssueTokenWithValidStudioKey(t *testing.T) {
	router := newAuthRouter(t)

	w := postToken(t, router, gin.H{"operator_id": "op-1", "studio_key": "studio-key"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
}

func TestIssueTokenRejectsWrongKey(t *testing.T) {
	router := newAuthRouter(t)

	w := postToken(t, router, gin.H{"operator_id": "op-1", "studio_key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueTokenValidatesOperatorID(t *testing.T) {
	router := newAuthRouter(t)

	w := postToken(t, router, gin.H{"operator_id": "op 1!", "studio_key": "studio-key"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
