package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/pkg/database"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
)

type teacherRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User, load *models.TeacherLoad) error
	UpsertTeacherLoad(ctx context.Context, load *models.TeacherLoad) error
	ListTeacherWorkloads(ctx context.Context) ([]models.TeacherWorkload, error)
}

type monthQuotaReader interface {
	CurrentMonth() string
	MonthSnapshots(ctx context.Context, month string) (map[string]models.QuotaSnapshot, error)
}

// TeacherService manages teacher accounts and the workload feeding the quota formula.
type TeacherService struct {
	repo      teacherRepository
	quotas    monthQuotaReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, quotas monthQuotaReader, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, quotas: quotas, validator: validate, logger: logger}
}

// List returns every active teacher with their load and, when it exists, this month's quota.
func (s *TeacherService) List(ctx context.Context) ([]dto.TeacherSummary, error) {
	workloads, err := s.repo.ListTeacherWorkloads(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	quotas, err := s.quotas.MonthSnapshots(ctx, s.quotas.CurrentMonth())
	if err != nil {
		return nil, err
	}
	items := make([]dto.TeacherSummary, 0, len(workloads))
	for _, w := range workloads {
		var quota *models.QuotaSnapshot
		if snapshot, ok := quotas[w.UserID]; ok {
			quota = &snapshot
		}
		items = append(items, dto.TeacherSummary{
			ID:            w.UserID,
			FullName:      w.FullName,
			Email:         w.Email,
			WeeklyLessons: w.WeeklyLessons,
			Classes:       w.Classes,
			Subjects:      w.Subjects,
			Quota:         quota,
		})
	}
	return items, nil
}

// Create registers a teacher account together with its load.
func (s *TeacherService) Create(ctx context.Context, req dto.CreateTeacherRequest) (*dto.TeacherSummary, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload")
	}

	var birthDate *string
	if raw := strings.TrimSpace(req.BirthDate); raw != "" {
		if _, err := time.Parse(models.DateLayout, raw); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "birthDate must be formatted as YYYY-MM-DD")
		}
		birthDate = &raw
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         models.RoleTeacher,
		BirthDate:    birthDate,
		Active:       true,
	}
	load := &models.TeacherLoad{
		WeeklyLessons: req.WeeklyLessons,
		Classes:       cleanList(req.Classes),
		Subjects:      cleanList(req.Subjects),
	}
	if err := s.repo.Create(ctx, user, load); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.logger.Info("teacher created", zap.String("user_id", user.ID))
	return &dto.TeacherSummary{
		ID:            user.ID,
		FullName:      user.FullName,
		Email:         user.Email,
		WeeklyLessons: load.WeeklyLessons,
		Classes:       load.Classes,
		Subjects:      load.Subjects,
	}, nil
}

// UpdateLoad replaces a teacher's workload. Quota limits change only on recalculation.
func (s *TeacherService) UpdateLoad(ctx context.Context, id string, req dto.UpdateTeacherLoadRequest) (*models.TeacherLoad, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid load payload")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if user.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a teacher")
	}

	load := &models.TeacherLoad{
		UserID:        user.ID,
		WeeklyLessons: req.WeeklyLessons,
		Classes:       cleanList(req.Classes),
		Subjects:      cleanList(req.Subjects),
	}
	if err := s.repo.UpsertTeacherLoad(ctx, load); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher load")
	}
	s.logger.Info("teacher load updated",
		zap.String("user_id", user.ID),
		zap.Int("weekly_lessons", load.WeeklyLessons),
		zap.Int("classes", load.ClassCount()))
	return load, nil
}

// cleanList trims entries and drops blanks and duplicates, keeping first occurrence order.
func cleanList(items []string) models.StringList {
	out := make(models.StringList, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
