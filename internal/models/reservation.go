package models

import "time"

// ReservationStatus captures whether a reservation still holds its slot.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// DateLayout is the calendar date layout used by reservations.
const DateLayout = "2006-01-02"

// Reservation books a resource for one lesson slot of a shift on a date.
type Reservation struct {
	ID          string            `db:"id" json:"id"`
	ResourceID  string            `db:"resource_id" json:"resource_id"`
	UserID      string            `db:"user_id" json:"user_id"`
	Date        string            `db:"date" json:"date"`
	Shift       string            `db:"shift" json:"shift"`
	Slot        int               `db:"slot" json:"slot"`
	ClassName   string            `db:"class_name" json:"class_name"`
	Note        string            `db:"note" json:"note"`
	Status      ReservationStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	CancelledAt *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// ReservationDetail is a reservation joined with resource and owner names for listings.
type ReservationDetail struct {
	Reservation
	ResourceName string `db:"resource_name" json:"resource_name"`
	UserName     string `db:"user_name" json:"user_name"`
}

// SlotKey identifies the (resource, date, shift, slot) tuple a reservation occupies.
type SlotKey struct {
	ResourceID string
	Date       string
	Shift      string
	Slot       int
}

// Key returns the slot occupied by r.
func (r Reservation) Key() SlotKey {
	return SlotKey{ResourceID: r.ResourceID, Date: r.Date, Shift: r.Shift, Slot: r.Slot}
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	DateFrom   string
	DateTo     string
	ResourceID string
	UserID     string
	Status     ReservationStatus
}
