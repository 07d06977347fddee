package dto

import "github.com/noah-isme/sma-print-api/internal/models"

// CreateReservationRequest books a resource slot.
type CreateReservationRequest struct {
	ResourceID string `json:"resourceId" validate:"required"`
	Date       string `json:"date" validate:"required"`
	Shift      string `json:"shift" validate:"required"`
	Slot       int    `json:"slot" validate:"required"`
	ClassName  string `json:"className" validate:"required,max=80"`
	Note       string `json:"note" validate:"max=500"`
}

// ReservationQuery filters reservation listings.
type ReservationQuery struct {
	Date       string `form:"date"`
	DateFrom   string `form:"from"`
	DateTo     string `form:"to"`
	ResourceID string `form:"resourceId"`
	Status     string `form:"status"`
	Mine       bool   `form:"mine"`
}

// ReservationOptions lists what a booking form needs.
type ReservationOptions struct {
	Shifts    []models.Shift    `json:"shifts"`
	Resources []models.Resource `json:"resources"`
}
