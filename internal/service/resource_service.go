package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/pkg/database"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
)

type resourceRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Resource, error)
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	Create(ctx context.Context, resource *models.Resource) error
	SetActive(ctx context.Context, id string, active bool) error
}

// ResourceService manages reservable equipment.
type ResourceService struct {
	repo      resourceRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResourceService constructs a ResourceService.
func NewResourceService(repo resourceRepository, validate *validator.Validate, logger *zap.Logger) *ResourceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceService{repo: repo, validator: validate, logger: logger}
}

// List returns every resource including deactivated ones.
func (s *ResourceService) List(ctx context.Context) ([]models.Resource, error) {
	resources, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resources")
	}
	return resources, nil
}

// Create registers an active resource. Names are unique.
func (s *ResourceService) Create(ctx context.Context, req dto.CreateResourceRequest) (*models.Resource, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.TrimSpace(req.Type)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resource payload")
	}
	resource := &models.Resource{
		Name:        req.Name,
		Type:        req.Type,
		Description: strings.TrimSpace(req.Description),
		Active:      true,
	}
	if err := s.repo.Create(ctx, resource); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a resource with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resource")
	}
	s.logger.Info("resource created", zap.String("resource_id", resource.ID), zap.String("name", resource.Name))
	return resource, nil
}

// SetActive activates or deactivates a resource. Existing reservations are untouched.
func (s *ResourceService) SetActive(ctx context.Context, id string, active bool) (*models.Resource, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update resource")
	}
	resource, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	s.logger.Info("resource status changed", zap.String("resource_id", id), zap.Bool("active", active))
	return resource, nil
}
