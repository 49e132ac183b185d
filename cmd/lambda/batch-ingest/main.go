// Batch Ingest Lambda entry point: ingests CSV payloads dropped into the
// upload bucket and processes the resulting job inline.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"payroll-batch-engine/internal/config"
	"payroll-batch-engine/internal/handlers"
	"payroll-batch-engine/internal/services/database"
	"payroll-batch-engine/internal/services/engine"
	"payroll-batch-engine/internal/services/notifier"
	"payroll-batch-engine/internal/services/payments"
	"payroll-batch-engine/internal/services/worker"
	"payroll-batch-engine/internal/utils"
)

func main() {
	// Initialize logger
	_ = utils.InitLogger("info")
	defer utils.Sync()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Lambda deployments hand over a single connection string.
	var db *database.DB
	if url := os.Getenv("DATABASE_URL"); url != "" {
		db, err = database.NewFromURL(url)
	} else {
		db, err = database.New(cfg)
	}
	if err != nil {
		panic("Failed to connect to database: " + err.Error())
	}

	jobRepo := database.NewJobRepository(db)
	rowRepo := database.NewRowRepository(db)

	adapter := payments.NewFakeAdapter(
		cfg.ProviderSeed,
		cfg.ProviderSuccessRate,
		time.Duration(cfg.ProviderLatencyMs)*time.Millisecond,
	)

	var jobNotifier worker.Notifier
	if cfg.SESSenderEmail != "" {
		svc, err := notifier.NewService(context.Background(), cfg.SESSenderEmail, notifier.UploaderEmailResolver)
		if err == nil {
			jobNotifier = svc
		}
	}

	processor := worker.NewProcessor(jobRepo, rowRepo, adapter, jobNotifier,
		cfg.BatchSize, time.Duration(cfg.BackoffBaseMs)*time.Millisecond)

	dispatch := worker.NewSyncDispatcher(func(ctx context.Context, item worker.WorkItem) error {
		return processor.Process(ctx, item.JobID)
	})

	eng := engine.New(cfg.MaxBatchRows, nil)
	ingestor := handlers.NewIngestor(eng, jobRepo, rowRepo, dispatch, cfg.MaxRetries)

	handler, err := handlers.NewBatchIngestHandler(context.Background(), ingestor)
	if err != nil {
		panic("Failed to create handler: " + err.Error())
	}

	// Start Lambda
	lambda.Start(handler.Handle)
}
