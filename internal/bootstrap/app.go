// Package bootstrap wires configuration, storage, the processing pipeline,
// and HTTP handlers into a runnable application. Both the API binary and the
// worker binary build from here so they agree on every dependency.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	googleauth "confirmation-backend/internal/auth"
	"confirmation-backend/internal/confirmation"
	"confirmation-backend/internal/documents"
	"confirmation-backend/internal/judge"
	"confirmation-backend/internal/ocr"
	"confirmation-backend/internal/pipeline"
	"confirmation-backend/internal/queue"
	"confirmation-backend/internal/refdata"
	"confirmation-backend/internal/review"
	"confirmation-backend/internal/scoring"
	"confirmation-backend/internal/shared/config"
	"confirmation-backend/internal/shared/server"
	"confirmation-backend/internal/shared/storage/db"
	"confirmation-backend/internal/shared/storage/object"
	localstore "confirmation-backend/internal/shared/storage/object/local"
	s3store "confirmation-backend/internal/shared/storage/object/s3"
	"confirmation-backend/internal/workerproc"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	ReviewRepo review.Repo
	RefData    refdata.Provider

	ReviewService    *review.Service
	DocumentsService *documents.Service
	Pipeline         *pipeline.Pipeline
	Processor        *workerproc.Processor

	DocumentsHandler *documents.Handler
	ReviewHandler    *review.Handler
	GoogleAuth       *googleauth.GoogleService
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		ReviewHandler:   app.ReviewHandler,
		GoogleAuth:      app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	cfg := app.Config

	var reviewRepo review.Repo
	var refs refdata.Provider
	if app.DB != nil {
		reviewRepo = review.NewPGRepo(app.DB)
		refs = &refdata.PGProvider{DB: app.DB}
	} else {
		reviewRepo = review.NewMemoryRepo()
		refs = refdata.NewMemoryProvider()
	}

	engine, healer, err := buildGemini(cfg)
	if err != nil {
		return err
	}

	pl := pipeline.New(engine, healer, scoring.NewEngine(scoring.DefaultWeights()), refs)
	pl.Schema = confirmation.ResponseSchema()
	pl.Thresholds = pipeline.Thresholds{
		AutoValid:      cfg.AutoValidThreshold,
		DoneUnreviewed: cfg.DoneThreshold,
		RepairBelow:    cfg.RepairThreshold,
	}

	processor := workerproc.NewProcessor(reviewRepo, app.Store, pl, cfg.RetryWait)

	var trigger documents.Trigger
	if app.Queue != nil {
		trigger = &workerproc.QueueTrigger{Queue: app.Queue}
	} else {
		trigger = &workerproc.InlineTrigger{Processor: processor}
	}

	reviewSvc := &review.Service{Repo: reviewRepo}
	docSvc := &documents.Service{
		Store:   app.Store,
		Review:  reviewSvc,
		Trigger: trigger,
	}

	docHandler := documents.NewHandler(docSvc)
	if cfg.MaxUploadSizeMB > 0 {
		docHandler.MaxUploadBytes = int64(cfg.MaxUploadSizeMB) << 20
	}

	app.ReviewRepo = reviewRepo
	app.RefData = refs
	app.Pipeline = pl
	app.Processor = processor
	app.ReviewService = reviewSvc
	app.DocumentsService = docSvc
	app.DocumentsHandler = docHandler
	app.ReviewHandler = review.NewHandler(reviewSvc)
	app.GoogleAuth = googleauth.NewGoogleService(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		cfg.UIRedirectURL,
	)

	return nil
}

// buildGemini constructs the OCR engine and the repair judge. Without an API
// key both stay nil: the pipeline then runs in degraded mode (no extraction,
// no repairs), which keeps local development of the HTTP surface possible.
func buildGemini(cfg config.Config) (ocr.Engine, judge.Healer, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		log.Printf("bootstrap: GEMINI_API_KEY empty; OCR and repair disabled")
		return nil, nil, nil
	}

	endpoint := strings.TrimSpace(cfg.GeminiEndpoint)
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}

	engine, err := ocr.NewGeminiEngine(endpoint, cfg.GeminiAPIKey, cfg.GeminiModel, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("build ocr engine: %w", err)
	}

	healer, err := judge.NewGeminiClient(endpoint, cfg.GeminiAPIKey, cfg.JudgeModel, confirmation.ResponseSchema(), 5*time.Minute)
	if err != nil {
		return nil, nil, fmt.Errorf("build judge client: %w", err)
	}
	return engine, healer, nil
}
