package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	"github.com/noah-isme/sma-print-api/pkg/storage"
)

// memJobRepo mirrors the conditional-update contract of the SQL repository.
type memJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*models.PrintJob
	seq       int
	createErr error
	clock     time.Time
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*models.PrintJob{}, clock: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)}
}

func (m *memJobRepo) Create(ctx context.Context, job *models.PrintJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%02d", m.seq)
	}
	job.Status = models.PrintJobPending
	job.CreatedAt = m.clock.Add(time.Duration(m.seq) * time.Second)
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memJobRepo) GetByID(ctx context.Context, id string) (*models.PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *memJobRepo) transition(id string, from models.PrintJobStatus, apply func(job *models.PrintJob)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != from {
		return sql.ErrNoRows
	}
	apply(job)
	return nil
}

func (m *memJobRepo) Cancel(ctx context.Context, id string) error {
	return m.transition(id, models.PrintJobPending, func(job *models.PrintJob) {
		job.Status = models.PrintJobCancelled
	})
}

func (m *memJobRepo) SetPriority(ctx context.Context, id string, priority int) error {
	return m.transition(id, models.PrintJobPending, func(job *models.PrintJob) {
		job.Priority = priority
	})
}

func (m *memJobRepo) ordered(status models.PrintJobStatus) []*models.PrintJob {
	var out []*models.PrintJob
	for _, job := range m.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memJobRepo) ListQueue(ctx context.Context) ([]models.PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PrintJob
	for _, job := range m.ordered(models.PrintJobPrinting) {
		out = append(out, *job)
	}
	for _, job := range m.ordered(models.PrintJobPending) {
		out = append(out, *job)
	}
	return out, nil
}

func (m *memJobRepo) List(ctx context.Context, filter models.PrintJobFilter) ([]models.PrintJob, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PrintJob
	for _, job := range m.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				match = match || job.Status == s
			}
			if !match {
				continue
			}
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *memJobRepo) ClaimNext(ctx context.Context) (*models.PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.ordered(models.PrintJobPending)
	if len(pending) == 0 || len(m.ordered(models.PrintJobPrinting)) > 0 {
		return nil, sql.ErrNoRows
	}
	job := pending[0]
	now := time.Now().UTC()
	job.Status = models.PrintJobPrinting
	job.StartedAt = &now
	copied := *job
	return &copied, nil
}

func (m *memJobRepo) MarkCompleted(ctx context.Context, id, printer, externalID string) error {
	return m.transition(id, models.PrintJobPrinting, func(job *models.PrintJob) {
		now := time.Now().UTC()
		job.Status = models.PrintJobCompleted
		job.PrinterName = &printer
		job.ExternalJobID = &externalID
		job.CompletedAt = &now
	})
}

func (m *memJobRepo) MarkError(ctx context.Context, id, printer, message string) error {
	return m.transition(id, models.PrintJobPrinting, func(job *models.PrintJob) {
		now := time.Now().UTC()
		msg := models.TruncateError(message)
		job.Status = models.PrintJobError
		job.ErrorMessage = &msg
		job.CompletedAt = &now
	})
}

func (m *memJobRepo) FailInterrupted(ctx context.Context, message string) ([]models.PrintJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []models.PrintJob
	for _, job := range m.jobs {
		if job.Status != models.PrintJobPrinting {
			continue
		}
		msg := message
		job.Status = models.PrintJobError
		job.ErrorMessage = &msg
		failed = append(failed, *job)
	}
	return failed, nil
}

type stubQuota struct {
	remaining int
	consumed  []int
	err       error
}

func (s *stubQuota) CheckAndConsume(ctx context.Context, userID string, pages int) (bool, int, error) {
	if s.err != nil {
		return false, s.remaining, s.err
	}
	if pages > s.remaining {
		return false, s.remaining, &QuotaExceededError{Requested: pages, Remaining: s.remaining}
	}
	s.remaining -= pages
	s.consumed = append(s.consumed, pages)
	return true, s.remaining, nil
}

type countingNotifier struct{ calls int }

func (n *countingNotifier) Notify() { n.calls++ }

func fixedPages(n int) PageCounter {
	return func([]byte) (int, error) { return n, nil }
}

var fakePDF = []byte("%PDF-1.4\n%fake\n")

type jobServiceFixture struct {
	svc      *PrintJobService
	repo     *memJobRepo
	quota    *stubQuota
	spool    *storage.Spool
	notifier *countingNotifier
}

func newJobServiceFixture(t *testing.T, pages, remaining int) *jobServiceFixture {
	t.Helper()
	spool, err := storage.NewSpool(t.TempDir())
	require.NoError(t, err)
	f := &jobServiceFixture{
		repo:     newMemJobRepo(),
		quota:    &stubQuota{remaining: remaining},
		spool:    spool,
		notifier: &countingNotifier{},
	}
	f.svc = NewPrintJobService(f.repo, f.quota, spool, fixedPages(pages), f.notifier, nil, nil, nil, PrintJobServiceConfig{MaxUploadBytes: 1 << 20})
	return f
}

func submitRequest() dto.SubmitPrintJobRequest {
	return dto.SubmitPrintJobRequest{
		UserID:        "t1",
		FileName:      "prova.pdf",
		Content:       fakePDF,
		Copies:        2,
		SheetsPerSide: 2,
		Duplex:        true,
		Orientation:   "landscape",
		PageRange:     "1-5,9",
	}
}

func minimalRequest() dto.SubmitPrintJobRequest {
	return dto.SubmitPrintJobRequest{UserID: "t1", FileName: "a.pdf", Content: fakePDF, Copies: 1}
}

func TestPrintJobServiceSubmit(t *testing.T) {
	f := newJobServiceFixture(t, 10, 100)

	result, err := f.svc.Submit(context.Background(), submitRequest(), false)
	require.NoError(t, err)

	// 6 selected pages, 2 per side -> 3 sheets, duplex -> 2, two copies -> 4.
	assert.Equal(t, 10, result.DocumentPages)
	assert.Equal(t, 6, result.SelectedPages)
	assert.Equal(t, 4, result.ConsumedPages)
	assert.Equal(t, 96, result.RemainingPages)
	assert.Equal(t, []int{4}, f.quota.consumed)
	assert.Equal(t, 1, f.notifier.calls)

	job, err := f.repo.GetByID(context.Background(), result.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintJobPending, job.Status)
	assert.Equal(t, 4, job.TotalPages)
	assert.Equal(t, models.PriorityNormal, job.Priority)
	assert.True(t, f.spool.Exists(job.StoredPath))

	opts := job.Options()
	require.Equal(t, models.OptionSourceStructured, opts.Source)
	assert.Equal(t, models.CUPSOptions{
		NumberUp:             2,
		Sides:                models.SidesTwoSidedShortEdge,
		OrientationRequested: 4,
		PageRanges:           "1-5,9",
	}, *opts.Structured)
}

func TestPrintJobServiceSubmitUrgent(t *testing.T) {
	f := newJobServiceFixture(t, 1, 100)

	result, err := f.svc.Submit(context.Background(), minimalRequest(), true)
	require.NoError(t, err)

	job, err := f.repo.GetByID(context.Background(), result.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, job.Priority)
}

func TestPrintJobServiceSubmitQuotaExceededRemovesFile(t *testing.T) {
	f := newJobServiceFixture(t, 10, 3)

	_, err := f.svc.Submit(context.Background(), submitRequest(), false)
	require.Error(t, err)

	var exceeded *QuotaExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 4, exceeded.Requested)
	assert.Equal(t, 3, exceeded.Remaining)

	jobs, _, _ := f.repo.List(context.Background(), models.PrintJobFilter{})
	assert.Empty(t, jobs)
	assertSpoolEmpty(t, f.spool)
	assert.Equal(t, 0, f.notifier.calls)
}

func TestPrintJobServiceSubmitStoreFailureRemovesFile(t *testing.T) {
	f := newJobServiceFixture(t, 1, 10)
	f.repo.createErr = errors.New("disk full")

	_, err := f.svc.Submit(context.Background(), minimalRequest(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assertSpoolEmpty(t, f.spool)
}

func TestPrintJobServiceSubmitValidation(t *testing.T) {
	cases := map[string]func(r *dto.SubmitPrintJobRequest){
		"zero copies":     func(r *dto.SubmitPrintJobRequest) { r.Copies = 0 },
		"sheets per side": func(r *dto.SubmitPrintJobRequest) { r.SheetsPerSide = 3 },
		"orientation":     func(r *dto.SubmitPrintJobRequest) { r.Orientation = "diagonal" },
		"empty file":      func(r *dto.SubmitPrintJobRequest) { r.Content = nil },
		"not a pdf": func(r *dto.SubmitPrintJobRequest) {
			r.FileName = "notes.docx"
			r.Content = []byte("PK\x03\x04")
		},
		"range beyond document": func(r *dto.SubmitPrintJobRequest) { r.PageRange = "11" },
		"malformed range":       func(r *dto.SubmitPrintJobRequest) { r.PageRange = "3-" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newJobServiceFixture(t, 10, 100)
			req := submitRequest()
			mutate(&req)

			_, err := f.svc.Submit(context.Background(), req, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation), err.Error())
			assert.Empty(t, f.quota.consumed)
			assertSpoolEmpty(t, f.spool)
		})
	}
}

func TestPrintJobServiceSubmitTooLarge(t *testing.T) {
	f := newJobServiceFixture(t, 1, 10)
	req := minimalRequest()
	req.Content = append([]byte("%PDF-"), make([]byte, 2<<20)...)

	_, err := f.svc.Submit(context.Background(), req, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPayloadTooLarge))
}

func TestPrintJobServiceCancel(t *testing.T) {
	f := newJobServiceFixture(t, 1, 10)
	ctx := context.Background()
	result, err := f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)

	job, err := f.svc.Cancel(ctx, result.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintJobCancelled, job.Status)
	assertSpoolEmpty(t, f.spool)

	_, err = f.svc.Cancel(ctx, result.JobID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Contains(t, err.Error(), "cannot cancel a cancelled job")

	_, err = f.svc.Cancel(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestPrintJobServiceRejectsChangesOncePrinting(t *testing.T) {
	f := newJobServiceFixture(t, 1, 10)
	ctx := context.Background()
	result, err := f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)

	_, err = f.repo.ClaimNext(ctx)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, result.JobID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = f.svc.SetPriority(ctx, result.JobID, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
}

func TestPrintJobServiceSetPriorityReordersQueue(t *testing.T) {
	f := newJobServiceFixture(t, 1, 10)
	ctx := context.Background()
	first, err := f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)

	job, err := f.svc.SetPriority(ctx, second.JobID, true)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, job.Priority)

	queue, err := f.svc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, second.JobID, queue[0].ID)
	assert.Equal(t, first.JobID, queue[1].ID)
}

func TestPrintJobServiceHistory(t *testing.T) {
	f := newJobServiceFixture(t, 1, 10)
	ctx := context.Background()
	first, err := f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, first.JobID)
	require.NoError(t, err)

	list, err := f.svc.History(ctx, dto.PrintJobQuery{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, first.JobID, list.Items[0].ID)
	assert.Equal(t, models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, list.Pagination)

	all, err := f.svc.History(ctx, dto.PrintJobQuery{Status: "PENDING, CANCELLED", PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)
	assert.Equal(t, 100, all.Pagination.PageSize)

	_, err = f.svc.History(ctx, dto.PrintJobQuery{Status: "LOST"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestPrintJobServiceListMineNewestFirst(t *testing.T) {
	f := newJobServiceFixture(t, 1, 10)
	ctx := context.Background()
	first, err := f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, minimalRequest(), false)
	require.NoError(t, err)

	list, err := f.svc.ListMine(ctx, "t1", 0, 0)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, second.JobID, list.Items[0].ID)
	assert.Equal(t, first.JobID, list.Items[1].ID)

	other, err := f.svc.ListMine(ctx, "t2", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}

func assertSpoolEmpty(t *testing.T, spool *storage.Spool) {
	t.Helper()
	entries, err := os.ReadDir(spool.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
