package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	applog "github.com/noah-isme/sma-print-api/pkg/logger"
)

type quotaRepository interface {
	GetRules(ctx context.Context) (*models.QuotaRules, error)
	SaveRules(ctx context.Context, rules *models.QuotaRules) error
	Get(ctx context.Context, userID, month string) (*models.Quota, error)
	Ensure(ctx context.Context, userID, month string, limit int) error
	TryConsume(ctx context.Context, userID, month string, pages int) (bool, error)
	SetLimit(ctx context.Context, userID, month string, limit int) error
	ListForMonth(ctx context.Context, month string) ([]models.Quota, error)
}

type workloadReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListTeacherWorkloads(ctx context.Context) ([]models.TeacherWorkload, error)
}

// QuotaExceededError rejects a submission that needs more pages than remain this month.
// It unwraps to appErrors.ErrQuotaExceeded.
type QuotaExceededError struct {
	Requested int
	Remaining int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("insufficient print quota: requested %d, remaining %d", e.Requested, e.Remaining)
}

// Unwrap exposes the HTTP-aware error.
func (e *QuotaExceededError) Unwrap() error {
	return appErrors.ErrQuotaExceeded
}

// QuotaServiceConfig tunes the quota service.
type QuotaServiceConfig struct {
	CacheTTL      time.Duration
	FallbackLimit int
}

// QuotaService gates print submissions on the monthly page budget.
type QuotaService struct {
	repo      quotaRepository
	users     workloadReader
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       QuotaServiceConfig
	now       func() time.Time
}

// NewQuotaService constructs a QuotaService.
func NewQuotaService(repo quotaRepository, users workloadReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg QuotaServiceConfig) *QuotaService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaService{
		repo:      repo,
		users:     users,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CurrentMonth returns the quota month of the current instant.
func (s *QuotaService) CurrentMonth() string {
	return s.now().Format(models.MonthLayout)
}

// CheckAndConsume debits pages from the user's quota of the current month. When the remaining
// budget is insufficient nothing is mutated and a *QuotaExceededError is returned together with
// the remaining pages.
func (s *QuotaService) CheckAndConsume(ctx context.Context, userID string, pages int) (bool, int, error) {
	if pages <= 0 {
		return false, 0, appErrors.Clone(appErrors.ErrValidation, "pages requested must be positive")
	}
	month := s.CurrentMonth()
	if _, err := s.ensure(ctx, userID, month); err != nil {
		s.metrics.RecordQuotaCheck("error")
		return false, 0, err
	}

	ok, err := s.repo.TryConsume(ctx, userID, month, pages)
	if err != nil {
		s.metrics.RecordQuotaCheck("error")
		return false, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume quota")
	}
	s.cache.Delete(ctx, quotaCacheKey(userID, month))

	quota, err := s.repo.Get(ctx, userID, month)
	if err != nil {
		s.metrics.RecordQuotaCheck("error")
		return false, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quota")
	}
	remaining := quota.Remaining()

	if !ok {
		s.metrics.RecordQuotaCheck("rejected")
		applog.WithRequest(ctx, s.logger).Info("quota rejected",
			zap.String("user_id", userID), zap.String("month", month),
			zap.Int("requested", pages), zap.Int("remaining", remaining))
		return false, remaining, &QuotaExceededError{Requested: pages, Remaining: remaining}
	}
	s.metrics.RecordQuotaCheck("authorized")
	return true, remaining, nil
}

// Snapshot returns the user's quota for the current month, creating the row on first access.
func (s *QuotaService) Snapshot(ctx context.Context, userID string) (*models.QuotaSnapshot, bool, error) {
	month := s.CurrentMonth()
	key := quotaCacheKey(userID, month)

	var cached models.QuotaSnapshot
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	quota, err := s.ensure(ctx, userID, month)
	if err != nil {
		return nil, false, err
	}
	snapshot := quota.Snapshot()
	s.cache.Set(ctx, key, snapshot, s.cfg.CacheTTL)
	return &snapshot, false, nil
}

// MonthSnapshots returns the existing quotas of a month keyed by user id. Missing rows are
// not created.
func (s *QuotaService) MonthSnapshots(ctx context.Context, month string) (map[string]models.QuotaSnapshot, error) {
	quotas, err := s.repo.ListForMonth(ctx, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quotas")
	}
	out := make(map[string]models.QuotaSnapshot, len(quotas))
	for _, q := range quotas {
		out[q.UserID] = q.Snapshot()
	}
	return out, nil
}

// Rules returns the current rule set.
func (s *QuotaService) Rules(ctx context.Context) (*models.QuotaRules, error) {
	rules, err := s.repo.GetRules(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quota rules not configured")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quota rules")
	}
	return rules, nil
}

// UpdateRules replaces the rule set. Existing quota rows keep their limits until recalculated.
func (s *QuotaService) UpdateRules(ctx context.Context, rules models.QuotaRules) (*models.QuotaRules, error) {
	if err := s.validator.Struct(rules); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "quota rules must be non-negative")
	}
	if err := s.repo.SaveRules(ctx, &rules); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save quota rules")
	}
	applog.WithRequest(ctx, s.logger).Info("quota rules updated",
		zap.Int("base_pages", rules.BasePages),
		zap.Int("pages_per_lesson", rules.PagesPerLesson),
		zap.Int("pages_per_class", rules.PagesPerClass),
		zap.Int("school_monthly_total", rules.SchoolMonthlyTotal))
	return &rules, nil
}

// Recalculate re-derives every teacher's limit for month from the current workload and rules.
// Rows are created when missing; a limit never drops below the pages already used. Running it
// twice with unchanged inputs writes the same limits.
func (s *QuotaService) Recalculate(ctx context.Context, month string) (*dto.RecalculateQuotaResult, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		month = s.CurrentMonth()
	}
	if _, err := time.Parse(models.MonthLayout, month); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be formatted as YYYY-MM")
	}

	rules, err := s.Rules(ctx)
	if err != nil {
		return nil, err
	}
	workloads, err := s.users.ListTeacherWorkloads(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher workloads")
	}

	limits := AllocateQuotas(*rules, AllocationInputs(workloads))
	for _, w := range workloads {
		if err := s.repo.SetLimit(ctx, w.UserID, month, limits[w.UserID]); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update quota limit")
		}
	}
	s.cache.Invalidate(ctx, "quota:*:"+month)
	applog.WithRequest(ctx, s.logger).Info("quotas recalculated", zap.String("month", month), zap.Int("teachers", len(workloads)))

	return &dto.RecalculateQuotaResult{Month: month, Limits: limits}, nil
}

// ProjectedLimit is the limit a new quota row for user would be seeded with right now.
func (s *QuotaService) ProjectedLimit(ctx context.Context, user *models.User) (int, error) {
	rules, err := s.repo.GetRules(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.cfg.FallbackLimit, nil
		}
		return 0, err
	}
	if user.Role != models.RoleTeacher {
		return rules.BasePages, nil
	}

	workloads, err := s.users.ListTeacherWorkloads(ctx)
	if err != nil {
		return 0, err
	}
	limits := AllocateQuotas(*rules, AllocationInputs(workloads))
	if limit, ok := limits[user.ID]; ok {
		return limit, nil
	}
	// Inactive teachers are outside the allocation.
	return rules.BasePages, nil
}

func (s *QuotaService) ensure(ctx context.Context, userID, month string) (*models.Quota, error) {
	quota, err := s.repo.Get(ctx, userID, month)
	if err == nil {
		return quota, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quota")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	limit, err := s.ProjectedLimit(ctx, user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to project quota")
	}
	if err := s.repo.Ensure(ctx, userID, month, limit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quota")
	}
	// A concurrent first access may have won the insert; read whatever row exists.
	quota, err = s.repo.Get(ctx, userID, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quota")
	}
	s.logger.Info("quota created", zap.String("user_id", userID), zap.String("month", month), zap.Int("limit", quota.LimitPages))
	return quota, nil
}

func quotaCacheKey(userID, month string) string {
	return "quota:" + userID + ":" + month
}
