package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryConsumeRequiresRemainingBudget(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewQuotaRepository(db)

	consume := regexp.QuoteMeta("UPDATE quotas SET used_pages = used_pages + ?")
	mock.ExpectExec(consume).
		WithArgs(4, sqlmock.AnyArg(), "u1", "2024-05", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(consume).
		WithArgs(400, sqlmock.AnyArg(), "u1", "2024-05", 400).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.TryConsume(context.Background(), "u1", "2024-05", 4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryConsume(context.Background(), "u1", "2024-05", 400)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDoesNothingOnConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewQuotaRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, month) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "u1", "2024-05", 300, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Ensure(context.Background(), "u1", "2024-05", 300))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRulesMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewQuotaRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM quota_rules WHERE id = 1")).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRules(context.Background())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuotaRowLifecycleSQLite(t *testing.T) {
	db := newSQLite(t)
	seedUser(t, db, "u1")
	repo := NewQuotaRepository(db)
	ctx := context.Background()

	rules, err := repo.GetRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4000, rules.SchoolMonthlyTotal)

	require.NoError(t, repo.Ensure(ctx, "u1", "2024-05", 100))
	require.NoError(t, repo.Ensure(ctx, "u1", "2024-05", 999))

	quota, err := repo.Get(ctx, "u1", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 100, quota.LimitPages)
	assert.Equal(t, 0, quota.UsedPages)

	ok, err := repo.TryConsume(ctx, "u1", "2024-05", 60)
	require.NoError(t, err)
	assert.True(t, ok)

	// A lower limit is clamped to what has already been used.
	require.NoError(t, repo.SetLimit(ctx, "u1", "2024-05", 10))
	quota, err = repo.Get(ctx, "u1", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 60, quota.LimitPages)

	ok, err = repo.TryConsume(ctx, "u1", "2024-05", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetLimit(ctx, "u1", "2024-06", 250))
	list, err := repo.ListForMonth(ctx, "2024-06")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 250, list[0].LimitPages)
}

func TestTryConsumeNeverOverspendsSQLite(t *testing.T) {
	db := newSQLite(t)
	seedUser(t, db, "u1")
	repo := NewQuotaRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Ensure(ctx, "u1", "2024-05", 50))

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		authorized int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TryConsume(ctx, "u1", "2024-05", 7)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				authorized++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, authorized)
	quota, err := repo.Get(ctx, "u1", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 49, quota.UsedPages)
}
