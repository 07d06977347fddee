package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/pkg/database"
)

var reservationRowColumns = []string{"id", "resource_id", "user_id", "date", "shift", "slot", "class_name", "note", "status", "created_at", "cancelled_at"}

func TestCreateIfFreeRejectsHeldSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE resource_id = ? AND date = ? AND shift = ? AND slot = ? AND status = ? LIMIT 1")).
		WithArgs("r1", "2024-05-02", "MATUTINO", 1, "ACTIVE").
		WillReturnRows(sqlmock.NewRows(reservationRowColumns).
			AddRow("existing", "r1", "u2", "2024-05-02", "MATUTINO", 1, "2B", "", "ACTIVE", time.Now(), nil))
	mock.ExpectRollback()

	err := repo.CreateIfFree(context.Background(), &models.Reservation{ResourceID: "r1", UserID: "u1", Date: "2024-05-02", Shift: "MATUTINO", Slot: 1, ClassName: "1A"})
	assert.True(t, errors.Is(err, ErrSlotTaken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIfFreeInsertsWhenFree(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations")).WillReturnRows(sqlmock.NewRows(reservationRowColumns))
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(sqlmock.AnyArg(), "r1", "u1", "2024-05-02", "MATUTINO", 2, "1A", "prova", "ACTIVE", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reservation := &models.Reservation{ResourceID: "r1", UserID: "u1", Date: "2024-05-02", Shift: "MATUTINO", Slot: 2, ClassName: "1A", Note: "prova"}
	require.NoError(t, repo.CreateIfFree(context.Background(), reservation))
	assert.NotEmpty(t, reservation.ID)
	assert.Equal(t, models.ReservationActive, reservation.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelReservationRequiresActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReservationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?")).
		WithArgs("CANCELLED", sqlmock.AnyArg(), "res-1", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.True(t, errors.Is(repo.Cancel(context.Background(), "res-1"), sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newReservationRepoSQLite(t *testing.T) (*ReservationRepository, *sqlx.DB) {
	t.Helper()
	db := newSQLite(t)
	seedUser(t, db, "u1")
	seedUser(t, db, "u2")
	require.NoError(t, NewResourceRepository(db).Create(context.Background(), &models.Resource{ID: "r1", Name: "Projetor", Type: "projetor", Active: true}))
	require.NoError(t, NewResourceRepository(db).Create(context.Background(), &models.Resource{ID: "r2", Name: "Lab", Type: "sala", Active: true}))
	return NewReservationRepository(db), db
}

func slot(resource, user string, n int) *models.Reservation {
	return &models.Reservation{ResourceID: resource, UserID: user, Date: "2024-05-02", Shift: "MATUTINO", Slot: n, ClassName: "1A"}
}

func TestReservationExclusivitySQLite(t *testing.T) {
	repo, _ := newReservationRepoSQLite(t)
	ctx := context.Background()

	first := slot("r1", "u1", 1)
	require.NoError(t, repo.CreateIfFree(ctx, first))
	assert.True(t, errors.Is(repo.CreateIfFree(ctx, slot("r1", "u2", 1)), ErrSlotTaken))

	// Same slot on another resource, or another slot on the same resource, is free.
	require.NoError(t, repo.CreateIfFree(ctx, slot("r2", "u2", 1)))
	require.NoError(t, repo.CreateIfFree(ctx, slot("r1", "u2", 2)))

	held, err := repo.FindActive(ctx, first.Key())
	require.NoError(t, err)
	assert.Equal(t, first.ID, held.ID)

	require.NoError(t, repo.Cancel(ctx, first.ID))
	cancelled, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = repo.FindActive(ctx, first.Key())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, repo.CreateIfFree(ctx, slot("r1", "u2", 1)))
}

func TestReservationConcurrentBookingSQLite(t *testing.T) {
	repo, _ := newReservationRepoSQLite(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := "u1"
			if i%2 == 1 {
				user = "u2"
			}
			err := repo.CreateIfFree(ctx, slot("r1", user, 3))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrSlotTaken) || database.IsUniqueViolation(err):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 9, losers)
}

func TestListReservationsSQLite(t *testing.T) {
	repo, _ := newReservationRepoSQLite(t)
	ctx := context.Background()

	late := slot("r2", "u2", 4)
	late.Date = "2024-05-03"
	require.NoError(t, repo.CreateIfFree(ctx, late))
	require.NoError(t, repo.CreateIfFree(ctx, slot("r1", "u1", 2)))
	cancelled := slot("r1", "u1", 1)
	require.NoError(t, repo.CreateIfFree(ctx, cancelled))
	require.NoError(t, repo.Cancel(ctx, cancelled.ID))

	all, err := repo.List(ctx, models.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].Slot)
	assert.Equal(t, "Projetor", all[0].ResourceName)
	assert.Equal(t, "User u1", all[0].UserName)
	assert.Equal(t, "2024-05-03", all[2].Date)

	active, err := repo.List(ctx, models.ReservationFilter{Status: models.ReservationActive, DateFrom: "2024-05-02", DateTo: "2024-05-02"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Slot)

	mine, err := repo.List(ctx, models.ReservationFilter{UserID: "u2", ResourceID: "r2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, late.ID, mine[0].ID)
}
