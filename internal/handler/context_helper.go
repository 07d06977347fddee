package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-print-api/internal/middleware"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	"github.com/noah-isme/sma-print-api/pkg/response"
)

// claimsFromContext returns the principal stored by the JWT middleware, or nil.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil || claims.UserID == "" {
		return nil
	}
	return claims
}

// requireClaims writes a 401 and reports false when the request carries no principal.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
