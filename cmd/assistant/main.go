package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nmorozov/kopilka/internal/category"
	"github.com/nmorozov/kopilka/internal/config"
	"github.com/nmorozov/kopilka/internal/extract"
	"github.com/nmorozov/kopilka/internal/jobs"
	"github.com/nmorozov/kopilka/internal/jobs/inmemory"
	"github.com/nmorozov/kopilka/internal/llm"
	"github.com/nmorozov/kopilka/internal/logger"
	storebq "github.com/nmorozov/kopilka/internal/store/bigquery"
	"github.com/nmorozov/kopilka/internal/store/gcs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level)
	log.Info().Msg("Starting assistant worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llmClient, err := llm.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LLM client")
	}

	store, err := storebq.NewStore(ctx, cfg.BigQuery, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer store.Close()

	archive, err := gcs.NewArchive(ctx, cfg.Storage.ReceiptBucket, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt archive")
	}
	defer archive.Close()

	dir, err := category.NewDirectory()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build category directory")
	}

	opts := extract.Options{
		TextMaxAgeDays:    cfg.Extract.TextMaxAgeDays,
		ReceiptMaxAgeDays: cfg.Extract.ReceiptMaxAgeDays,
		MaxFileBytes:      int64(cfg.Extract.MaxFileSizeMB) << 20,
	}
	extractor := extract.New(llmClient, dir, opts, log)

	// In production this would be replaced with Cloud Tasks or Pub/Sub.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)

	handler := func(ctx context.Context, job jobs.Job) error {
		receiptJob, ok := job.(*jobs.ExtractReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", receiptJob.JobID).
			Str("user_id", receiptJob.UserID).
			Str("gcs_uri", receiptJob.GCSURI).
			Msg("Processing receipt job")

		data, err := archive.Fetch(ctx, receiptJob.GCSURI)
		if err != nil {
			return fmt.Errorf("fetch receipt: %w", err)
		}

		var tx *extract.Transaction
		if receiptJob.MimeType == "application/pdf" {
			tx, err = extractor.FromReceiptPDF(ctx, data)
		} else {
			tx, err = extractor.FromReceiptImage(ctx, data, receiptJob.MimeType)
		}
		if err != nil {
			return fmt.Errorf("extract receipt: %w", err)
		}
		if tx == nil {
			// Unreadable receipts are final; retrying the same file cannot help.
			log.Warn().
				Str("job_id", receiptJob.JobID).
				Str("gcs_uri", receiptJob.GCSURI).
				Msg("Receipt produced no transaction")
			return nil
		}

		row := storebq.NewTransactionRow(receiptJob.UserID, tx, storebq.SourceReceipt, receiptJob.GCSURI)
		if err := store.InsertTransactions(ctx, []*storebq.TransactionRow{row}); err != nil {
			return fmt.Errorf("persist transaction: %w", err)
		}

		log.Info().
			Str("job_id", receiptJob.JobID).
			Str("transaction_id", row.TransactionID).
			Str("category", tx.CategoryName).
			Msg("Receipt job completed")

		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().
		Str("bucket", cfg.Storage.ReceiptBucket).
		Str("dataset", cfg.BigQuery.DatasetID).
		Msg("Assistant worker started, waiting for jobs")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down assistant worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Assistant worker exited")
}
