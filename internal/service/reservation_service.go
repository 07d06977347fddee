package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/internal/repository"
	"github.com/noah-isme/sma-print-api/pkg/database"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	applog "github.com/noah-isme/sma-print-api/pkg/logger"
)

type reservationRepository interface {
	CreateIfFree(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ReservationFilter) ([]models.ReservationDetail, error)
}

type resourceReader interface {
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	List(ctx context.Context, activeOnly bool) ([]models.Resource, error)
}

// ReservationService books shared equipment into lesson slots and rejects double bookings.
type ReservationService struct {
	repo      reservationRepository
	resources resourceReader
	shifts    *models.ShiftCatalog
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReservationService constructs a ReservationService.
func NewReservationService(repo reservationRepository, resources resourceReader, shifts *models.ShiftCatalog, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReservationService {
	if shifts == nil {
		shifts = models.NewShiftCatalog(models.DefaultShifts())
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{
		repo:      repo,
		resources: resources,
		shifts:    shifts,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Create validates and books a slot. An ACTIVE reservation on the same resource, date,
// shift and slot fails with a conflict; the caller must pick another slot.
func (s *ReservationService) Create(ctx context.Context, userID string, req dto.CreateReservationRequest) (*models.Reservation, error) {
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.ClassName = strings.TrimSpace(req.ClassName)
	req.Note = strings.TrimSpace(req.Note)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reservation payload")
	}

	date, err := normaliseDate(req.Date)
	if err != nil {
		return nil, err
	}
	shift, ok := s.shifts.Lookup(req.Shift)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown shift %q", req.Shift))
	}
	if req.Slot < 1 || req.Slot > shift.Slots {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot must be between 1 and %d for shift %s", shift.Slots, shift.Code))
	}

	resource, err := s.resources.GetByID(ctx, req.ResourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	if !resource.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource is inactive")
	}

	reservation := &models.Reservation{
		ResourceID: resource.ID,
		UserID:     userID,
		Date:       date,
		Shift:      shift.Code,
		Slot:       req.Slot,
		ClassName:  req.ClassName,
		Note:       req.Note,
	}
	if err := s.repo.CreateIfFree(ctx, reservation); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) || database.IsUniqueViolation(err) {
			s.metrics.RecordReservationConflict()
			return nil, appErrors.Clone(appErrors.ErrConflict, "resource already reserved for this slot")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reservation")
	}

	applog.WithRequest(ctx, s.logger).Info("reservation created",
		zap.String("reservation_id", reservation.ID),
		zap.String("resource_id", reservation.ResourceID),
		zap.String("date", reservation.Date),
		zap.String("shift", reservation.Shift),
		zap.Int("slot", reservation.Slot))
	return reservation, nil
}

// Cancel releases an ACTIVE reservation. Only its creator or an admin may cancel it, and a
// cancelled reservation cannot be cancelled again.
func (s *ReservationService) Cancel(ctx context.Context, id string, principal *models.JWTClaims) (*models.Reservation, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	reservation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reservation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reservation")
	}
	if reservation.UserID != principal.UserID && !principal.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator or an admin can cancel this reservation")
	}
	if reservation.Status != models.ReservationActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reservation is already cancelled")
	}

	if err := s.repo.Cancel(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "reservation is already cancelled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel reservation")
	}

	now := time.Now().UTC()
	reservation.Status = models.ReservationCancelled
	reservation.CancelledAt = &now
	applog.WithRequest(ctx, s.logger).Info("reservation cancelled", zap.String("reservation_id", id), zap.String("by", principal.UserID))
	return reservation, nil
}

// List returns reservations in display order: date, shift order, slot, resource name.
func (s *ReservationService) List(ctx context.Context, query dto.ReservationQuery, principal *models.JWTClaims) ([]models.ReservationDetail, error) {
	filter := models.ReservationFilter{ResourceID: strings.TrimSpace(query.ResourceID)}
	if query.Date != "" {
		date, err := normaliseDate(query.Date)
		if err != nil {
			return nil, err
		}
		filter.DateFrom, filter.DateTo = date, date
	} else {
		if query.DateFrom != "" {
			from, err := normaliseDate(query.DateFrom)
			if err != nil {
				return nil, err
			}
			filter.DateFrom = from
		}
		if query.DateTo != "" {
			to, err := normaliseDate(query.DateTo)
			if err != nil {
				return nil, err
			}
			filter.DateTo = to
		}
	}
	if query.Status != "" {
		status := models.ReservationStatus(strings.ToUpper(strings.TrimSpace(query.Status)))
		if status != models.ReservationActive && status != models.ReservationCancelled {
			return nil, appErrors.Clone(appErrors.ErrValidation, "status must be ACTIVE or CANCELLED")
		}
		filter.Status = status
	}
	if query.Mine && principal != nil {
		filter.UserID = principal.UserID
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reservations")
	}
	s.SortForDisplay(items)
	return items, nil
}

// SortForDisplay orders reservations by date, shift rank, slot and resource name. Unknown shifts
// sort after every configured one.
func (s *ReservationService) SortForDisplay(items []models.ReservationDetail) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if ra, rb := s.shifts.Rank(a.Shift), s.shifts.Rank(b.Shift); ra != rb {
			return ra < rb
		}
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		return a.ResourceName < b.ResourceName
	})
}

// Options returns the shift catalog and the active resources for booking forms.
func (s *ReservationService) Options(ctx context.Context) (*dto.ReservationOptions, error) {
	resources, err := s.resources.List(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	return &dto.ReservationOptions{Shifts: s.shifts.All(), Resources: resources}, nil
}

// ActiveResources lists resources that can be booked.
func (s *ReservationService) ActiveResources(ctx context.Context) ([]models.Resource, error) {
	resources, err := s.resources.List(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	return resources, nil
}

func normaliseDate(raw string) (string, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	return t.Format(models.DateLayout), nil
}
