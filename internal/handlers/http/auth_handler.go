package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"stagecast/internal/core/ports"
	"stagecast/pkg/errors"
	"stagecast/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AuthHandler exchanges the shared studio key for an operator token. The
// studio is single-tenant; there is no user database.
type AuthHandler struct {
	authService ports.AuthService
	studioKey   string
}

func NewAuthHandler(authService ports.AuthService, studioKey string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		studioKey:   studioKey,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type tokenRequest struct {
	OperatorID string `json:"operator_id" binding:"required,max=64"`
	StudioKey  string `json:"studio_key" binding:"required,max=256"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.OperatorID = strings.TrimSpace(req.OperatorID)
	if err := validation.ValidateParticipantID(req.OperatorID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.StudioKey), []byte(h.studioKey)) != 1 {
		c.Error(errors.NewUnauthorizedError("invalid studio key"))
		return
	}

	token, err := h.authService.IssueToken(req.OperatorID)
	if err != nil {
		c.Error(errors.NewInternalError("failed to issue token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
	})
}
