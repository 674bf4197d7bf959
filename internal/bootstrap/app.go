package bootstrap

import (
	"context"
	"database/sql"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron"

	"auditdocs-backend/internal/chat"
	"auditdocs-backend/internal/documents"
	"auditdocs-backend/internal/searchindex"
	"auditdocs-backend/internal/searchindex/hosted"
	"auditdocs-backend/internal/shared/config"
	"auditdocs-backend/internal/shared/server"
	"auditdocs-backend/internal/shared/storage/db"
	"auditdocs-backend/internal/shared/storage/object"
	localstore "auditdocs-backend/internal/shared/storage/object/local"
	s3store "auditdocs-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Index  searchindex.Client

	DocumentsRepo    documents.Repo
	DocumentsService *documents.Service
	Reconciler       *documents.Reconciler
	DocumentsHandler *documents.Handler
	ChatService      *chat.Service
	ChatHandler      *chat.Handler

	sweeper *cron.Cron
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

	index, err := buildIndexClient(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Index:  index,
	}

	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		ChatHandler:     app.ChatHandler,
	})

	return app, nil
}

// StartSweeper schedules the periodic readiness sweep when configured.
func (a *App) StartSweeper() {
	schedule := strings.TrimSpace(a.Config.SweepSchedule)
	if schedule == "" {
		return
	}

	job := &documents.SweepJob{
		Repo:       a.DocumentsRepo,
		Reconciler: a.Reconciler,
		Grace:      a.Config.SweepGrace,
	}

	c := cron.New()
	if err := c.AddFunc(schedule, job.Run); err != nil {
		log.Printf("bootstrap: invalid SWEEP_SCHEDULE %q: %v", schedule, err)
		return
	}
	c.Start()
	a.sweeper = c
}

// StopSweeper stops the periodic sweep if it is running.
func (a *App) StopSweeper() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
}

// Close releases shared resources.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory registry")
			return nil, nil
		}
		return nil, errDatabaseRequired
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory registry: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
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

func buildIndexClient(cfg config.Config) (searchindex.Client, error) {
	if strings.TrimSpace(cfg.IndexAPIURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: INDEX_API_URL empty; using placeholder index client")
			return searchindex.PlaceholderClient{}, nil
		}
		return nil, errIndexRequired
	}
	return hosted.New(cfg.IndexAPIURL, cfg.IndexAPIKey, cfg.IndexTimeout)
}

func buildServices(app *App) {
	var repo documents.Repo
	if app.DB != nil {
		repo = &documents.PGRepo{DB: app.DB}
	} else {
		repo = documents.NewMemoryRepo()
	}

	reconciler := documents.NewReconciler(repo, app.Index, app.Config.IndexPartitionID, documents.ReconcileConfig{
		MaxAttempts: app.Config.ReconcileMaxAttempts,
		BaseDelay:   app.Config.ReconcileBaseDelay,
		MaxDelay:    app.Config.ReconcileMaxDelay,
	})

	docSvc := &documents.Service{
		Repo:        repo,
		Store:       app.Store,
		Index:       app.Index,
		PartitionID: app.Config.IndexPartitionID,
		Reconciler:  reconciler,
	}

	chatSvc := &chat.Service{
		Index:       app.Index,
		PartitionID: app.Config.IndexPartitionID,
		MaxHistory:  app.Config.ChatMaxHistory,
		MaxPassages: app.Config.ChatMaxPassages,
	}

	app.DocumentsRepo = repo
	app.DocumentsService = docSvc
	app.Reconciler = reconciler
	app.DocumentsHandler = documents.NewHandler(docSvc, reconciler)
	app.ChatService = chatSvc
	app.ChatHandler = chat.NewHandler(chatSvc)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
