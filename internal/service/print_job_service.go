package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	applog "github.com/noah-isme/sma-print-api/pkg/logger"
	"github.com/noah-isme/sma-print-api/pkg/pdfpages"
)

type printJobRepository interface {
	Create(ctx context.Context, job *models.PrintJob) error
	GetByID(ctx context.Context, id string) (*models.PrintJob, error)
	Cancel(ctx context.Context, id string) error
	SetPriority(ctx context.Context, id string, priority int) error
	ListQueue(ctx context.Context) ([]models.PrintJob, error)
	List(ctx context.Context, filter models.PrintJobFilter) ([]models.PrintJob, int, error)
}

type quotaConsumer interface {
	CheckAndConsume(ctx context.Context, userID string, pages int) (bool, int, error)
}

type spoolStore interface {
	Save(originalName string, data []byte) (string, error)
	Delete(path string) error
}

// QueueNotifier wakes the print worker after an enqueue.
type QueueNotifier interface {
	Notify()
}

// PageCounter returns the number of pages of a document.
type PageCounter func(data []byte) (int, error)

// PrintJobServiceConfig tunes submissions.
type PrintJobServiceConfig struct {
	MaxUploadBytes int64
	KeepSpoolFiles bool
}

// PrintJobService accepts uploads, debits quota and manages queued jobs.
type PrintJobService struct {
	repo      printJobRepository
	quota     quotaConsumer
	spool     spoolStore
	countPage PageCounter
	notifier  QueueNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PrintJobServiceConfig
}

// NewPrintJobService constructs a PrintJobService. A nil counter uses the PDF page counter.
func NewPrintJobService(repo printJobRepository, quota quotaConsumer, spool spoolStore, counter PageCounter, notifier QueueNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PrintJobServiceConfig) *PrintJobService {
	if counter == nil {
		counter = pdfpages.Count
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrintJobService{
		repo:      repo,
		quota:     quota,
		spool:     spool,
		countPage: counter,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// SetNotifier attaches the worker wake-up after construction.
func (s *PrintJobService) SetNotifier(n QueueNotifier) {
	s.notifier = n
}

// Submit validates an upload, computes its consumed pages, debits the quota and enqueues a
// PENDING job. The spooled file is removed on any failure after it was stored.
func (s *PrintJobService) Submit(ctx context.Context, req dto.SubmitPrintJobRequest, urgent bool) (*dto.SubmitPrintJobResult, error) {
	req.FileName = strings.TrimSpace(req.FileName)
	req.PageRange = strings.TrimSpace(req.PageRange)
	if req.SheetsPerSide == 0 {
		req.SheetsPerSide = 1
	}
	if req.Orientation == "" {
		req.Orientation = string(models.OrientationPortrait)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid print job payload")
	}
	if len(req.Content) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(req.Content)) > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("uploaded file exceeds %d bytes", s.cfg.MaxUploadBytes))
	}
	if !isPDF(req.FileName, req.Content) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only PDF documents can be printed")
	}

	documentPages, err := s.countPage(req.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not read the PDF document")
	}
	selected, err := pdfpages.SelectedPages(req.PageRange, documentPages)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error())
	}
	consumed := pdfpages.ConsumedPages(selected, req.SheetsPerSide, req.Duplex, req.Copies)

	storedPath, err := s.spool.Save(req.FileName, req.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded file")
	}

	_, remaining, err := s.quota.CheckAndConsume(ctx, req.UserID, consumed)
	if err != nil {
		s.discard(storedPath)
		return nil, err
	}

	orientation := models.Orientation(req.Orientation)
	job := &models.PrintJob{
		UserID:        req.UserID,
		FileName:      req.FileName,
		StoredPath:    storedPath,
		Copies:        req.Copies,
		SheetsPerSide: req.SheetsPerSide,
		Duplex:        req.Duplex,
		Orientation:   orientation,
		PageRange:     req.PageRange,
		TotalPages:    consumed,
		Priority:      models.PriorityNormal,
	}
	if urgent {
		job.Priority = models.PriorityUrgent
	}
	if err := job.EncodeOptions(models.BuildCUPSOptions(req.SheetsPerSide, req.Duplex, orientation, req.PageRange)); err != nil {
		s.discard(storedPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode print options")
	}
	if err := s.repo.Create(ctx, job); err != nil {
		s.discard(storedPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue print job")
	}

	if s.notifier != nil {
		s.notifier.Notify()
	}
	applog.WithRequest(ctx, s.logger).Info("print job enqueued",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.Int("consumed_pages", consumed),
		zap.Int("priority", job.Priority))

	return &dto.SubmitPrintJobResult{
		JobID:          job.ID,
		DocumentPages:  documentPages,
		SelectedPages:  selected,
		Copies:         req.Copies,
		ConsumedPages:  consumed,
		RemainingPages: remaining,
	}, nil
}

// Get returns a job by id.
func (s *PrintJobService) Get(ctx context.Context, id string) (*models.PrintJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "print job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load print job")
	}
	return job, nil
}

// Cancel moves a PENDING job to CANCELLED. Jobs already dispatched or finished are rejected.
func (s *PrintJobService) Cancel(ctx context.Context, id string) (*models.PrintJob, error) {
	if err := s.repo.Cancel(ctx, id); err != nil {
		return nil, s.transitionError(ctx, id, err, "cancel")
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.cfg.KeepSpoolFiles {
		s.discard(job.StoredPath)
	}
	applog.WithRequest(ctx, s.logger).Info("print job cancelled", zap.String("job_id", id))
	return job, nil
}

// SetPriority marks a PENDING job urgent or normal.
func (s *PrintJobService) SetPriority(ctx context.Context, id string, urgent bool) (*models.PrintJob, error) {
	priority := models.PriorityNormal
	if urgent {
		priority = models.PriorityUrgent
	}
	if err := s.repo.SetPriority(ctx, id, priority); err != nil {
		return nil, s.transitionError(ctx, id, err, "change the priority of")
	}
	applog.WithRequest(ctx, s.logger).Info("print job priority changed", zap.String("job_id", id), zap.Int("priority", priority))
	return s.Get(ctx, id)
}

// Queue returns the jobs still waiting for or being printed, in dispatch order.
func (s *PrintJobService) Queue(ctx context.Context) ([]models.PrintJob, error) {
	jobs, err := s.repo.ListQueue(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list print queue")
	}
	pending := 0
	for _, job := range jobs {
		if job.Status == models.PrintJobPending {
			pending++
		}
	}
	s.metrics.SetQueueDepth(pending)
	return jobs, nil
}

// ListMine returns the caller's jobs, newest first.
func (s *PrintJobService) ListMine(ctx context.Context, userID string, page, pageSize int) (*dto.PrintJobList, error) {
	return s.list(ctx, models.PrintJobFilter{UserID: userID, Page: page, PageSize: pageSize})
}

// History returns jobs for admins, optionally filtered by a comma-separated status list.
func (s *PrintJobService) History(ctx context.Context, query dto.PrintJobQuery) (*dto.PrintJobList, error) {
	filter := models.PrintJobFilter{UserID: strings.TrimSpace(query.UserID), Page: query.Page, PageSize: query.PageSize}
	for _, raw := range strings.Split(query.Status, ",") {
		raw = strings.ToUpper(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		status := models.PrintJobStatus(raw)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return s.list(ctx, filter)
}

func (s *PrintJobService) list(ctx context.Context, filter models.PrintJobFilter) (*dto.PrintJobList, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	jobs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list print jobs")
	}
	return &dto.PrintJobList{
		Items:      jobs,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}, nil
}

// transitionError explains why a conditional update matched no row.
func (s *PrintJobService) transitionError(ctx context.Context, id string, err error, action string) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s print job", action))
	}
	job, getErr := s.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot %s a %s job", action, strings.ToLower(string(job.Status))))
}

func (s *PrintJobService) discard(path string) {
	if path == "" {
		return
	}
	if err := s.spool.Delete(path); err != nil {
		s.logger.Warn("failed to remove spooled file", zap.String("path", path), zap.Error(err))
	}
}

func isPDF(name string, content []byte) bool {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return true
	}
	return bytes.HasPrefix(content, []byte("%PDF-"))
}
