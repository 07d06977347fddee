package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/pkg/database"
)

func TestListActiveResources(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type, description, active, created_at FROM resources WHERE active = ? ORDER BY name ASC")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "description", "active", "created_at"}).
			AddRow("r1", "Projetor", "projetor", "", true, now))

	items, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Projetor", items[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetActiveMissingResource(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResourceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE resources SET active = ? WHERE id = ?")).
		WithArgs(false, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.True(t, errors.Is(repo.SetActive(context.Background(), "missing", false), sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceNamesAreUniqueSQLite(t *testing.T) {
	db := newSQLite(t)
	repo := NewResourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Resource{Name: " Lab ", Type: "sala", Active: true}))
	err := repo.Create(ctx, &models.Resource{Name: "Lab", Type: "sala", Active: true})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))

	items, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Lab", items[0].Name)

	require.NoError(t, repo.SetActive(ctx, items[0].ID, false))
	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}
