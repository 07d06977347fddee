package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	"github.com/noah-isme/sma-print-api/pkg/response"
)

type reservationService interface {
	Create(ctx context.Context, userID string, req dto.CreateReservationRequest) (*models.Reservation, error)
	Cancel(ctx context.Context, id string, principal *models.JWTClaims) (*models.Reservation, error)
	List(ctx context.Context, query dto.ReservationQuery, principal *models.JWTClaims) ([]models.ReservationDetail, error)
	Options(ctx context.Context) (*dto.ReservationOptions, error)
	ActiveResources(ctx context.Context) ([]models.Resource, error)
}

// ReservationHandler exposes equipment booking endpoints.
type ReservationHandler struct {
	service reservationService
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(service reservationService) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// Resources godoc
// @Summary Bookable resources
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reservations/resources [get]
func (h *ReservationHandler) Resources(c *gin.Context) {
	resources, err := h.service.ActiveResources(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, nil)
}

// Options godoc
// @Summary Shift catalog and bookable resources
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reservations/options [get]
func (h *ReservationHandler) Options(c *gin.Context) {
	options, err := h.service.Options(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}

// List godoc
// @Summary List reservations
// @Description Ordered by date, shift, slot and resource name.
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param date query string false "Exact date (YYYY-MM-DD)"
// @Param from query string false "Start date"
// @Param to query string false "End date"
// @Param resourceId query string false "Resource filter"
// @Param status query string false "ACTIVE or CANCELLED"
// @Param mine query bool false "Only the caller's reservations"
// @Success 200 {object} response.Envelope
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	var query dto.ReservationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Reserve a resource for a lesson slot
// @Tags Reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateReservationRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations [post]
func (h *ReservationHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reservation payload"))
		return
	}
	reservation, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reservation)
}

// Cancel godoc
// @Summary Cancel an active reservation
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	reservation, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}
