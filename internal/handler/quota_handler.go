package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/middleware"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	"github.com/noah-isme/sma-print-api/pkg/response"
)

type quotaService interface {
	Snapshot(ctx context.Context, userID string) (*models.QuotaSnapshot, bool, error)
	Rules(ctx context.Context) (*models.QuotaRules, error)
	UpdateRules(ctx context.Context, rules models.QuotaRules) (*models.QuotaRules, error)
	Recalculate(ctx context.Context, month string) (*dto.RecalculateQuotaResult, error)
}

// QuotaHandler exposes quota views and administration.
type QuotaHandler struct {
	service quotaService
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(service quotaService) *QuotaHandler {
	return &QuotaHandler{service: service}
}

// Me godoc
// @Summary Current month quota of the caller
// @Tags Quotas
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /quotas/me [get]
func (h *QuotaHandler) Me(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	snapshot, cacheHit, err := h.service.Snapshot(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, snapshot, nil, middleware.ExtractMeta(c))
}

// Rules godoc
// @Summary Quota rule set
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/quotas/rules [get]
func (h *QuotaHandler) Rules(c *gin.Context) {
	rules, err := h.service.Rules(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// UpdateRules godoc
// @Summary Replace the quota rule set
// @Description Existing monthly limits change only when a recalculation runs.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.QuotaRules true "Rule set"
// @Success 200 {object} response.Envelope
// @Router /admin/quotas/rules [put]
func (h *QuotaHandler) UpdateRules(c *gin.Context) {
	var rules models.QuotaRules
	if err := c.ShouldBindJSON(&rules); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid quota rules payload"))
		return
	}
	updated, err := h.service.UpdateRules(c.Request.Context(), rules)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Recalculate godoc
// @Summary Recalculate teacher limits for a month
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RecalculateQuotaRequest false "Month, defaults to the current one"
// @Success 200 {object} response.Envelope
// @Router /admin/quotas/recalculate [post]
func (h *QuotaHandler) Recalculate(c *gin.Context) {
	var req dto.RecalculateQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid recalculation payload"))
		return
	}
	result, err := h.service.Recalculate(c.Request.Context(), req.Month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
