package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-print-api/internal/models"
)

const quotaColumns = `id, user_id, month, limit_pages, used_pages, created_at, updated_at`

// QuotaRepository manages monthly quota rows and the global rule set.
type QuotaRepository struct {
	db *sqlx.DB
}

// NewQuotaRepository constructs a QuotaRepository.
func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// GetRules loads the singleton rule set.
func (r *QuotaRepository) GetRules(ctx context.Context) (*models.QuotaRules, error) {
	const query = `SELECT base_pages, pages_per_lesson, pages_per_class, school_monthly_total, updated_at FROM quota_rules WHERE id = 1`
	var rules models.QuotaRules
	if err := r.db.GetContext(ctx, &rules, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get quota rules: %w", err)
	}
	return &rules, nil
}

// SaveRules replaces the singleton rule set.
func (r *QuotaRepository) SaveRules(ctx context.Context, rules *models.QuotaRules) error {
	rules.UpdatedAt = time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO quota_rules (id, base_pages, pages_per_lesson, pages_per_class, school_monthly_total, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			base_pages = excluded.base_pages,
			pages_per_lesson = excluded.pages_per_lesson,
			pages_per_class = excluded.pages_per_class,
			school_monthly_total = excluded.school_monthly_total,
			updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, rules.BasePages, rules.PagesPerLesson, rules.PagesPerClass, rules.SchoolMonthlyTotal, rules.UpdatedAt); err != nil {
		return fmt.Errorf("save quota rules: %w", err)
	}
	return nil
}

// Get returns the quota row for a user and month.
func (r *QuotaRepository) Get(ctx context.Context, userID, month string) (*models.Quota, error) {
	query := r.db.Rebind(`SELECT ` + quotaColumns + ` FROM quotas WHERE user_id = ? AND month = ?`)
	var quota models.Quota
	if err := r.db.GetContext(ctx, &quota, query, userID, month); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return &quota, nil
}

// Ensure creates the row with the given limit unless one already exists. An existing
// row keeps its limit.
func (r *QuotaRepository) Ensure(ctx context.Context, userID, month string, limit int) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO quotas (` + quotaColumns + `) VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id, month) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), userID, month, limit, now, now); err != nil {
		return fmt.Errorf("ensure quota: %w", err)
	}
	return nil
}

// TryConsume increments used pages only if the remaining budget covers pages. The check and
// the increment are one statement so concurrent calls cannot both pass.
func (r *QuotaRepository) TryConsume(ctx context.Context, userID, month string, pages int) (bool, error) {
	query := r.db.Rebind(`UPDATE quotas SET used_pages = used_pages + ?, updated_at = ?
		WHERE user_id = ? AND month = ? AND limit_pages - used_pages >= ?`)
	res, err := r.db.ExecContext(ctx, query, pages, time.Now().UTC(), userID, month, pages)
	if err != nil {
		return false, fmt.Errorf("consume quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume quota rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetLimit writes a new limit, creating the row if needed. The stored limit never drops
// below the pages already used.
func (r *QuotaRepository) SetLimit(ctx context.Context, userID, month string, limit int) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`INSERT INTO quotas (` + quotaColumns + `) VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET
			limit_pages = CASE WHEN excluded.limit_pages < quotas.used_pages THEN quotas.used_pages ELSE excluded.limit_pages END,
			updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), userID, month, limit, now, now); err != nil {
		return fmt.Errorf("set quota limit: %w", err)
	}
	return nil
}

// ListForMonth returns all quota rows of a month.
func (r *QuotaRepository) ListForMonth(ctx context.Context, month string) ([]models.Quota, error) {
	query := r.db.Rebind(`SELECT ` + quotaColumns + ` FROM quotas WHERE month = ? ORDER BY user_id ASC`)
	var quotas []models.Quota
	if err := r.db.SelectContext(ctx, &quotas, query, month); err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	return quotas, nil
}
