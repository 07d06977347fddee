package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-print-api/internal/repository"
	"github.com/noah-isme/sma-print-api/internal/service"
	"github.com/noah-isme/sma-print-api/pkg/config"
	"github.com/noah-isme/sma-print-api/pkg/database"
	"github.com/noah-isme/sma-print-api/pkg/logger"
	"github.com/noah-isme/sma-print-api/pkg/printing"
	"github.com/noah-isme/sma-print-api/pkg/storage"
)

// The standalone worker runs on the print host against the shared database. The API process
// must then run with PRINT_WORKER_ENABLED=false so the queue keeps a single consumer.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("worker failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	spool, err := storage.NewSpool(cfg.Printing.SpoolDir)
	if err != nil {
		return err
	}

	submitter := printing.NewLPSubmitter(printing.LPConfig{
		Command: cfg.Printing.LPCommand,
		Printer: cfg.Printing.Printer,
		Timeout: cfg.Printing.LPTimeout,
	})
	worker := service.NewPrintWorker(repository.NewPrintJobRepository(db), submitter, spool, service.NewMetricsService(), logr, service.PrintWorkerConfig{
		PollInterval:   cfg.Printing.PollInterval,
		KeepSpoolFiles: cfg.Printing.KeepSpoolFiles,
	})
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("start print worker: %w", err)
	}
	logr.Sugar().Infow("print worker running", "printer", submitter.DefaultPrinter(), "spool", spool.Dir())

	<-ctx.Done()
	worker.Stop()
	return nil
}
