package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-print-api/internal/models"
)

const reservationColumns = `id, resource_id, user_id, date, shift, slot, class_name, note, status, created_at, cancelled_at`

// ErrSlotTaken reports that an ACTIVE reservation already holds the requested slot.
var ErrSlotTaken = errors.New("reservation slot already taken")

// ReservationRepository persists reservations.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs a ReservationRepository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// CreateIfFree inserts an ACTIVE reservation unless its slot is held. The lookup and the insert
// share one transaction; the partial unique index on active slots catches a concurrent insert
// that slips between them.
func (r *ReservationRepository) CreateIfFree(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	reservation.Status = models.ReservationActive
	reservation.CreatedAt = time.Now().UTC()
	reservation.CancelledAt = nil

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reservation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := r.findActive(ctx, tx, reservation.Key()); err == nil {
		return ErrSlotTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	insert := r.db.Rebind(`INSERT INTO reservations (` + reservationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		reservation.ID, reservation.ResourceID, reservation.UserID, reservation.Date, reservation.Shift, reservation.Slot,
		reservation.ClassName, reservation.Note, reservation.Status, reservation.CreatedAt, nil,
	); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

// FindActive returns the ACTIVE reservation holding key.
func (r *ReservationRepository) FindActive(ctx context.Context, key models.SlotKey) (*models.Reservation, error) {
	return r.findActive(ctx, r.db, key)
}

func (r *ReservationRepository) findActive(ctx context.Context, q sqlx.QueryerContext, key models.SlotKey) (*models.Reservation, error) {
	query := r.db.Rebind(`SELECT ` + reservationColumns + ` FROM reservations
		WHERE resource_id = ? AND date = ? AND shift = ? AND slot = ? AND status = ? LIMIT 1`)
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, q, &reservation, query, key.ResourceID, key.Date, key.Shift, key.Slot, models.ReservationActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find active reservation: %w", err)
	}
	return &reservation, nil
}

// GetByID returns a reservation by id.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	query := r.db.Rebind(`SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`)
	var reservation models.Reservation
	if err := r.db.GetContext(ctx, &reservation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &reservation, nil
}

// Cancel moves an ACTIVE reservation to CANCELLED and stamps the cancellation time.
func (r *ReservationRepository) Cancel(ctx context.Context, id string) error {
	query := r.db.Rebind(`UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, query, models.ReservationCancelled, time.Now().UTC(), id, models.ReservationActive)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel reservation rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns reservations with resource and owner names. Shift order is a catalog concern,
// so callers apply the display order.
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT r.id, r.resource_id, r.user_id, r.date, r.shift, r.slot, r.class_name, r.note, r.status,
		r.created_at, r.cancelled_at, res.name AS resource_name, u.full_name AS user_name
		FROM reservations r
		JOIN resources res ON res.id = r.resource_id
		JOIN users u ON u.id = r.user_id
		WHERE 1=1`)
	var args []interface{}
	if filter.DateFrom != "" {
		sb.WriteString(" AND r.date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		sb.WriteString(" AND r.date <= ?")
		args = append(args, filter.DateTo)
	}
	if filter.ResourceID != "" {
		sb.WriteString(" AND r.resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.UserID != "" {
		sb.WriteString(" AND r.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		sb.WriteString(" AND r.status = ?")
		args = append(args, filter.Status)
	}
	sb.WriteString(" ORDER BY r.date ASC, r.slot ASC, res.name ASC")

	var items []models.ReservationDetail
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(sb.String()), args...); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return items, nil
}
