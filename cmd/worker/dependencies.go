package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement"
	"github.com/FACorreiaa/statement-ingest/internal/ingest/extract"
	"github.com/FACorreiaa/statement-ingest/internal/ingest/parse"
	"github.com/FACorreiaa/statement-ingest/internal/ingest/validate"
	"github.com/FACorreiaa/statement-ingest/internal/orchestrator"
	"github.com/FACorreiaa/statement-ingest/internal/queue"
	"github.com/FACorreiaa/statement-ingest/pkg/config"
	"github.com/FACorreiaa/statement-ingest/pkg/cron"
	"github.com/FACorreiaa/statement-ingest/pkg/db"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// Dependencies holds all worker dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Persistence
	StatementRepo statement.Repository
	DocumentStore storage.DocumentStore

	// Pipeline
	Classifier   *extract.Classifier
	Extractor    *extract.PDFExtractor
	Parser       *parse.Parser
	Validator    *validate.Validator
	Orchestrator *orchestrator.Orchestrator

	// Background machinery
	Queue      *queue.Queue
	WorkerPool *queue.WorkerPool
	Service    *statement.Service
	Scheduler  *cron.Scheduler
}

// InitDependencies initializes all worker dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	if err := deps.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	deps.initPipeline()
	deps.initWorkers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initStorage initializes the document store
func (d *Dependencies) initStorage() error {
	store, err := storage.NewLocalStore(d.Config.Storage.LocalPath)
	if err != nil {
		return err
	}
	d.DocumentStore = store
	return nil
}

// initPipeline wires the extraction, parsing and validation stages
func (d *Dependencies) initPipeline() {
	pipe := d.Config.Pipeline

	d.StatementRepo = statement.NewPostgresRepository(d.DB.Pool)

	d.Classifier = extract.NewClassifier(extract.ClassifierConfig{
		SamplePages:     pipe.ClassifierSamplePages,
		MinCharsPerPage: pipe.MinNativeCharsPerPage,
	}, d.Logger)

	primary := &extract.TesseractEngine{PSM: 6}
	secondary := &extract.TesseractEngine{PSM: 4}
	ocr := extract.NewOCRExtractor(primary, secondary, pipe.OCRFallbackThreshold, d.Logger)

	d.Extractor = extract.NewPDFExtractor(extract.ExtractorConfig{
		PageParallelism: pipe.PageParallelism,
		MinCharsPerPage: pipe.MinNativeCharsPerPage,
	}, ocr, d.Logger)

	d.Parser = parse.NewParser(d.Logger)

	d.Validator = validate.NewValidator(validate.Config{
		Epoch:          pipe.DateEpoch,
		SkewTolerance:  pipe.DateSkewTolerance,
		MaxAmount:      decimal.NewFromInt(pipe.MaxAmount),
		NearSimilarity: pipe.NearDuplicateSimilarity,
	}, d.Logger)

	d.Orchestrator = orchestrator.New(
		d.StatementRepo, d.DocumentStore,
		d.Classifier, d.Extractor, d.Parser, d.Validator,
		orchestrator.Config{
			ProcessingTimeout: pipe.ProcessingTimeout,
			MaxAttempts:       pipe.MaxAttempts,
		},
		d.Logger,
	)
}

// initWorkers wires the queue, worker pool, query service and sweeper
func (d *Dependencies) initWorkers() {
	pipe := d.Config.Pipeline

	d.Queue = queue.New(d.DB.Pool)
	d.WorkerPool = queue.NewWorkerPool(d.Queue, d.Orchestrator, d.Config.Worker.Count, d.Config.Worker.PollInterval, d.Logger)
	d.Service = statement.NewService(d.StatementRepo, d.DocumentStore, d.Queue, pipe.MaxAttempts, d.Logger)
	d.Scheduler = cron.NewScheduler(d.Queue, d.StatementRepo, d.DB.Pool, d.Config.Worker.SweepEvery, pipe.ClaimTTL, pipe.ProcessingTimeout, d.Logger)
}
