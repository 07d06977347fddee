package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/pkg/jobs"
	"github.com/noah-isme/sma-print-api/pkg/printing"
)

// InterruptedMessage is recorded on jobs found PRINTING when the worker starts.
const InterruptedMessage = "worker interrupted"

// MissingSpoolMessage prefixes the error of a job whose spooled file is gone.
const MissingSpoolMessage = "spooled file missing"

type workerRepository interface {
	ClaimNext(ctx context.Context) (*models.PrintJob, error)
	MarkCompleted(ctx context.Context, id, printer, externalID string) error
	MarkError(ctx context.Context, id, printer, message string) error
	FailInterrupted(ctx context.Context, message string) ([]models.PrintJob, error)
}

// Submitter hands a document to the print system.
type Submitter interface {
	Submit(ctx context.Context, req printing.Request) (*printing.Result, error)
}

type spoolFiles interface {
	Exists(path string) bool
	Delete(path string) error
}

// PrintWorkerConfig tunes the worker loop. SettleAttempts and SettleBackoff bound the retries
// of the terminal status write after a job was handed to the print system.
type PrintWorkerConfig struct {
	PollInterval   time.Duration
	KeepSpoolFiles bool
	SettleAttempts int
	SettleBackoff  time.Duration
}

const (
	defaultSettleAttempts = 5
	defaultSettleBackoff  = 100 * time.Millisecond
	maxSettleBackoff      = 5 * time.Second
)

// outcome is the terminal state a dispatched job still has to reach.
type outcome struct {
	job     *models.PrintJob
	result  *printing.Result
	err     error
	options models.OptionSource
}

// PrintWorker is the single consumer of the print queue. It claims one job at a time, submits
// it and records the outcome; a failing job never stops the loop. A job whose outcome could not
// be written stays PRINTING and is settled before anything else is claimed.
type PrintWorker struct {
	repo      workerRepository
	submitter Submitter
	spool     spoolFiles
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       PrintWorkerConfig
	poller    *jobs.Poller

	unsettled *outcome
}

// NewPrintWorker constructs a worker.
func NewPrintWorker(repo workerRepository, submitter Submitter, spool spoolFiles, metrics *MetricsService, logger *zap.Logger, cfg PrintWorkerConfig) *PrintWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SettleAttempts <= 0 {
		cfg.SettleAttempts = defaultSettleAttempts
	}
	if cfg.SettleBackoff <= 0 {
		cfg.SettleBackoff = defaultSettleBackoff
	}
	w := &PrintWorker{
		repo:      repo,
		submitter: submitter,
		spool:     spool,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
	w.poller = jobs.NewPoller("print-worker", w.Step, jobs.PollerConfig{Interval: cfg.PollInterval, Logger: logger})
	return w
}

// Start fails jobs left PRINTING by a previous process, then begins polling.
func (w *PrintWorker) Start(ctx context.Context) error {
	if err := w.Recover(ctx); err != nil {
		return err
	}
	w.poller.Start(ctx)
	return nil
}

// Stop waits for the in-flight job, if any, and stops polling.
func (w *PrintWorker) Stop() {
	w.poller.Stop()
}

// Notify wakes the worker when a job was enqueued.
func (w *PrintWorker) Notify() {
	w.poller.Notify()
}

// Recover moves interrupted PRINTING jobs to ERROR. Their spooled files are kept.
func (w *PrintWorker) Recover(ctx context.Context) error {
	failed, err := w.repo.FailInterrupted(ctx, InterruptedMessage)
	if err != nil {
		return err
	}
	for _, job := range failed {
		w.metrics.RecordJobProcessed(string(models.PrintJobError))
		w.logger.Warn("print job interrupted",
			zap.String("job_id", job.ID),
			zap.String("status", string(models.PrintJobError)),
			zap.String("error", InterruptedMessage))
	}
	return nil
}

// Step dispatches at most one job. It reports whether a job was claimed. Step is driven by a
// single goroutine.
func (w *PrintWorker) Step(ctx context.Context) (bool, error) {
	if w.unsettled != nil {
		if err := w.settle(context.WithoutCancel(ctx), w.unsettled); err != nil {
			return false, err
		}
		w.unsettled = nil
	}

	job, err := w.repo.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	w.logger.Info("print job dispatched",
		zap.String("job_id", job.ID),
		zap.String("status", string(models.PrintJobPrinting)))

	// A claimed job runs to completion or timeout even when shutdown begins.
	return true, w.dispatch(context.WithoutCancel(ctx), job)
}

func (w *PrintWorker) dispatch(ctx context.Context, job *models.PrintJob) error {
	options := job.Options()
	req := printing.Request{
		FilePath: job.StoredPath,
		Copies:   job.Copies,
		Title:    job.FileName,
		Options:  options.Resolve().Map(),
	}

	var (
		result *printing.Result
		err    error
	)
	if w.spool != nil && !w.spool.Exists(job.StoredPath) {
		err = fmt.Errorf("%s: %s", MissingSpoolMessage, job.StoredPath)
	} else {
		start := time.Now()
		result, err = w.submitter.Submit(ctx, req)
		w.metrics.ObserveSubmit(time.Since(start))
	}

	o := &outcome{job: job, result: result, err: err, options: options.Source}
	if err := w.settle(ctx, o); err != nil {
		w.unsettled = o
		return err
	}
	return nil
}

// settle writes the terminal status of a dispatched job, retrying with exponential backoff.
func (w *PrintWorker) settle(ctx context.Context, o *outcome) error {
	delay := w.cfg.SettleBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = w.writeOutcome(ctx, o)
		if err == nil || errors.Is(err, sql.ErrNoRows) || attempt >= w.cfg.SettleAttempts {
			break
		}
		w.logger.Warn("retrying print job outcome",
			zap.String("job_id", o.job.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		time.Sleep(delay)
		if delay *= 2; delay > maxSettleBackoff {
			delay = maxSettleBackoff
		}
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Someone else already moved the job out of PRINTING.
		w.logger.Warn("print job left PRINTING before its outcome was recorded", zap.String("job_id", o.job.ID))
		return nil
	case err != nil:
		w.logger.Error("failed to record print job outcome", zap.String("job_id", o.job.ID), zap.Error(err))
		return err
	}

	if o.err != nil {
		w.metrics.RecordJobProcessed(string(models.PrintJobError))
		w.logger.Warn("print job failed",
			zap.String("job_id", o.job.ID),
			zap.String("status", string(models.PrintJobError)),
			zap.String("options_source", string(o.options)),
			zap.Error(o.err))
		return nil
	}

	w.metrics.RecordJobProcessed(string(models.PrintJobCompleted))
	w.logger.Info("print job completed",
		zap.String("job_id", o.job.ID),
		zap.String("status", string(models.PrintJobCompleted)),
		zap.String("printer", o.result.Printer),
		zap.String("external_job_id", o.result.ExternalJobID))

	if !w.cfg.KeepSpoolFiles && w.spool != nil {
		if err := w.spool.Delete(o.job.StoredPath); err != nil {
			w.logger.Warn("failed to remove spooled file", zap.String("job_id", o.job.ID), zap.Error(err))
		}
	}
	return nil
}

func (w *PrintWorker) writeOutcome(ctx context.Context, o *outcome) error {
	if o.err != nil {
		return w.repo.MarkError(ctx, o.job.ID, "", o.err.Error())
	}
	return w.repo.MarkCompleted(ctx, o.job.ID, o.result.Printer, o.result.ExternalJobID)
}
