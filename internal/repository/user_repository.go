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

const userColumns = `id, email, password_hash, full_name, role, birth_date, active, created_at, updated_at`

// UserRepository provides database access for accounts and teacher workloads.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a user, optionally with a teacher load, in one transaction.
func (r *UserRepository) Create(ctx context.Context, user *models.User, load *models.TeacherLoad) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	insert := r.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		user.ID, user.Email, user.PasswordHash, user.FullName, user.Role, user.BirthDate, user.Active, user.CreatedAt, user.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	if load != nil {
		load.UserID = user.ID
		if err := r.upsertLoad(ctx, tx, load); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// UpsertTeacherLoad replaces the load of an existing teacher.
func (r *UserRepository) UpsertTeacherLoad(ctx context.Context, load *models.TeacherLoad) error {
	return r.upsertLoad(ctx, r.db, load)
}

func (r *UserRepository) upsertLoad(ctx context.Context, exec sqlx.ExecerContext, load *models.TeacherLoad) error {
	load.UpdatedAt = time.Now().UTC()
	if load.Classes == nil {
		load.Classes = models.StringList{}
	}
	if load.Subjects == nil {
		load.Subjects = models.StringList{}
	}
	query := r.db.Rebind(`INSERT INTO teacher_loads (user_id, weekly_lessons, classes, subjects, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			weekly_lessons = excluded.weekly_lessons,
			classes = excluded.classes,
			subjects = excluded.subjects,
			updated_at = excluded.updated_at`)
	if _, err := exec.ExecContext(ctx, query, load.UserID, load.WeeklyLessons, load.Classes, load.Subjects, load.UpdatedAt); err != nil {
		return fmt.Errorf("upsert teacher load: %w", err)
	}
	return nil
}

// ListTeacherWorkloads returns every active teacher with their load, ordered by id so
// allocation tie-breaks are stable.
func (r *UserRepository) ListTeacherWorkloads(ctx context.Context) ([]models.TeacherWorkload, error) {
	query := r.db.Rebind(`SELECT u.id AS user_id, u.full_name, u.email,
			COALESCE(l.weekly_lessons, 0) AS weekly_lessons,
			COALESCE(l.classes, '[]') AS classes,
			COALESCE(l.subjects, '[]') AS subjects
		FROM users u
		LEFT JOIN teacher_loads l ON l.user_id = u.id
		WHERE u.role = ? AND u.active = ?
		ORDER BY u.id ASC`)
	var items []models.TeacherWorkload
	if err := r.db.SelectContext(ctx, &items, query, models.RoleTeacher, true); err != nil {
		return nil, fmt.Errorf("list teacher workloads: %w", err)
	}
	return items, nil
}
