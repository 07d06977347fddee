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

const printJobColumns = `id, user_id, file_name, stored_path, copies, sheets_per_side, duplex, orientation, page_range,
	total_pages, priority, status, options, printer_name, external_job_id, error_message, created_at, started_at, completed_at`

// queueOrder is the selection order of eligible jobs: priority band first, FIFO inside a band.
const queueOrder = `priority DESC, created_at ASC, id ASC`

// claimAttempts bounds how often ClaimNext retries after losing a candidate to a concurrent transition.
const claimAttempts = 5

// PrintJobRepository persists print jobs. Every state transition is a conditional update on
// the expected prior status.
type PrintJobRepository struct {
	db *sqlx.DB
}

// NewPrintJobRepository constructs a PrintJobRepository.
func NewPrintJobRepository(db *sqlx.DB) *PrintJobRepository {
	return &PrintJobRepository{db: db}
}

// Create inserts a PENDING job.
func (r *PrintJobRepository) Create(ctx context.Context, job *models.PrintJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = models.PrintJobPending

	query := r.db.Rebind(`INSERT INTO print_jobs (id, user_id, file_name, stored_path, copies, sheets_per_side, duplex,
		orientation, page_range, total_pages, priority, status, options, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.FileName, job.StoredPath, job.Copies, job.SheetsPerSide, job.Duplex,
		job.Orientation, job.PageRange, job.TotalPages, job.Priority, job.Status, job.RawOptions, job.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert print job: %w", err)
	}
	return nil
}

// GetByID returns a job by id.
func (r *PrintJobRepository) GetByID(ctx context.Context, id string) (*models.PrintJob, error) {
	query := r.db.Rebind(`SELECT ` + printJobColumns + ` FROM print_jobs WHERE id = ?`)
	var job models.PrintJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get print job: %w", err)
	}
	return &job, nil
}

// ClaimNext moves the next eligible PENDING job to PRINTING and returns it. It returns
// sql.ErrNoRows when the queue is empty or another job is still PRINTING.
func (r *PrintJobRepository) ClaimNext(ctx context.Context) (*models.PrintJob, error) {
	const idle = ` AND NOT EXISTS (SELECT 1 FROM print_jobs WHERE status = ?)`
	selectQuery := r.db.Rebind(`SELECT id FROM print_jobs WHERE status = ?` + idle + ` ORDER BY ` + queueOrder + ` LIMIT 1`)
	claimQuery := r.db.Rebind(`UPDATE print_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?` + idle)

	for attempt := 0; attempt < claimAttempts; attempt++ {
		var id string
		if err := r.db.GetContext(ctx, &id, selectQuery, models.PrintJobPending, models.PrintJobPrinting); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("select next print job: %w", err)
		}

		res, err := r.db.ExecContext(ctx, claimQuery, models.PrintJobPrinting, time.Now().UTC(), id, models.PrintJobPending, models.PrintJobPrinting)
		if err != nil {
			return nil, fmt.Errorf("claim print job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim print job rows affected: %w", err)
		}
		if affected == 1 {
			return r.GetByID(ctx, id)
		}
	}
	return nil, sql.ErrNoRows
}

// MarkCompleted finishes a PRINTING job and clears any previous error.
func (r *PrintJobRepository) MarkCompleted(ctx context.Context, id, printer, externalID string) error {
	query := r.db.Rebind(`UPDATE print_jobs SET status = ?, printer_name = ?, external_job_id = ?, error_message = NULL, completed_at = ?
		WHERE id = ? AND status = ?`)
	return r.transition(ctx, "complete print job", query,
		models.PrintJobCompleted, nullable(printer), nullable(externalID), time.Now().UTC(), id, models.PrintJobPrinting)
}

// MarkError fails a PRINTING job with a bounded error message.
func (r *PrintJobRepository) MarkError(ctx context.Context, id, printer, message string) error {
	query := r.db.Rebind(`UPDATE print_jobs SET status = ?, printer_name = COALESCE(?, printer_name), error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`)
	return r.transition(ctx, "fail print job", query,
		models.PrintJobError, nullable(printer), models.TruncateError(message), time.Now().UTC(), id, models.PrintJobPrinting)
}

// Cancel moves a PENDING job to CANCELLED.
func (r *PrintJobRepository) Cancel(ctx context.Context, id string) error {
	query := r.db.Rebind(`UPDATE print_jobs SET status = ?, completed_at = ? WHERE id = ? AND status = ?`)
	return r.transition(ctx, "cancel print job", query,
		models.PrintJobCancelled, time.Now().UTC(), id, models.PrintJobPending)
}

// SetPriority changes the priority of a PENDING job.
func (r *PrintJobRepository) SetPriority(ctx context.Context, id string, priority int) error {
	query := r.db.Rebind(`UPDATE print_jobs SET priority = ? WHERE id = ? AND status = ?`)
	return r.transition(ctx, "set print job priority", query, priority, id, models.PrintJobPending)
}

// FailInterrupted moves every PRINTING job to ERROR. It runs before the worker starts, when no
// job can legitimately be printing.
func (r *PrintJobRepository) FailInterrupted(ctx context.Context, message string) ([]models.PrintJob, error) {
	selectQuery := r.db.Rebind(`SELECT ` + printJobColumns + ` FROM print_jobs WHERE status = ?`)
	var jobs []models.PrintJob
	if err := r.db.SelectContext(ctx, &jobs, selectQuery, models.PrintJobPrinting); err != nil {
		return nil, fmt.Errorf("list interrupted print jobs: %w", err)
	}
	update := r.db.Rebind(`UPDATE print_jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ? AND status = ?`)
	failed := make([]models.PrintJob, 0, len(jobs))
	for _, job := range jobs {
		err := r.transition(ctx, "fail interrupted print job", update,
			models.PrintJobError, models.TruncateError(message), time.Now().UTC(), job.ID, models.PrintJobPrinting)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return failed, err
		}
		failed = append(failed, job)
	}
	return failed, nil
}

// ListQueue returns the jobs still owned by the queue: the PRINTING job first, then PENDING
// jobs in selection order.
func (r *PrintJobRepository) ListQueue(ctx context.Context) ([]models.PrintJob, error) {
	query := r.db.Rebind(`SELECT ` + printJobColumns + ` FROM print_jobs WHERE status IN (?, ?)
		ORDER BY CASE WHEN status = ? THEN 0 ELSE 1 END, ` + queueOrder)
	var jobs []models.PrintJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.PrintJobPrinting, models.PrintJobPending, models.PrintJobPrinting); err != nil {
		return nil, fmt.Errorf("list print queue: %w", err)
	}
	return jobs, nil
}

// List returns jobs matching the filter, newest first, with the total count.
func (r *PrintJobRepository) List(ctx context.Context, filter models.PrintJobFilter) ([]models.PrintJob, int, error) {
	var conditions []string
	var args []interface{}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN (?)")
		args = append(args, filter.Statuses)
	}
	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	listQuery, listArgs, err := sqlx.In(`SELECT `+printJobColumns+` FROM print_jobs WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, size, (page-1)*size), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build print job list: %w", err)
	}
	var jobs []models.PrintJob
	if err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(listQuery), listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list print jobs: %w", err)
	}

	countQuery, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM print_jobs WHERE `+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("build print job count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count print jobs: %w", err)
	}
	return jobs, total, nil
}

func (r *PrintJobRepository) transition(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
