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

const resourceColumns = `id, name, type, description, active, created_at`

// ResourceRepository persists reservable resources.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs a ResourceRepository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// List returns resources ordered by name. activeOnly hides deactivated ones.
func (r *ResourceRepository) List(ctx context.Context, activeOnly bool) ([]models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	var args []interface{}
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY name ASC`

	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// GetByID returns a resource by id.
func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	query := r.db.Rebind(`SELECT ` + resourceColumns + ` FROM resources WHERE id = ?`)
	var resource models.Resource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &resource, nil
}

// Create inserts a resource. A duplicate name surfaces as a unique violation.
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	resource.Name = strings.TrimSpace(resource.Name)
	resource.CreatedAt = time.Now().UTC()

	query := r.db.Rebind(`INSERT INTO resources (` + resourceColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query,
		resource.ID, resource.Name, resource.Type, resource.Description, resource.Active, resource.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

// SetActive toggles the soft-delete flag.
func (r *ResourceRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := r.db.Rebind(`UPDATE resources SET active = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("update resource status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update resource status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
