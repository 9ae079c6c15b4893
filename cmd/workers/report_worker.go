package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/backend"
	"admissions-portal/portal-backend/internal/config"
	"admissions-portal/portal-backend/internal/datasource"
	"admissions-portal/portal-backend/internal/notifications"
	"admissions-portal/portal-backend/internal/reports"
	"admissions-portal/portal-backend/internal/reports/builder"
	"admissions-portal/portal-backend/internal/reports/scheduler"
	"admissions-portal/portal-backend/internal/retry"
	"admissions-portal/portal-backend/internal/session"
	"admissions-portal/portal-backend/pkg/storage"
)

// ReportWorker runs scheduled reports until its context ends
type ReportWorker struct {
	manager *scheduler.ScheduleManager
	logger  *zap.Logger
}

// NewReportWorker creates a new report worker
func NewReportWorker(manager *scheduler.ScheduleManager, logger *zap.Logger) *ReportWorker {
	return &ReportWorker{manager: manager, logger: logger}
}

// Start loads the active schedules and blocks until ctx is cancelled
func (w *ReportWorker) Start(ctx context.Context) error {
	if err := w.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start schedule manager: %w", err)
	}
	w.logger.Info("Report worker started", zap.Int("active_jobs", len(w.manager.GetActiveJobs())))

	<-ctx.Done()
	w.logger.Info("Report worker shutting down")
	w.manager.Stop()
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to database")

	// Session for backend reads
	store := session.NewStore()
	client := backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.URL,
		AnonKey:   cfg.Backend.AnonKey,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		RateBurst: cfg.Backend.RateBurst,
	}, store, logger.Named("backend"))
	backendAuth := backend.NewAuth(client, store)
	if cfg.Backend.ServiceEmail != "" {
		if _, err := backendAuth.SignInWithPassword(ctx, cfg.Backend.ServiceEmail, cfg.Backend.ServicePassword); err != nil {
			logger.Fatal("Failed to sign in service account", zap.Error(err))
		}
	}
	coordinator := session.NewCoordinator(backendAuth, cfg.Session.SettleDelay, logger.Named("session"))
	executor := retry.NewExecutor(coordinator, logger.Named("retry"))

	var source datasource.Source = backend.NewRESTSource(client)
	if cfg.Reports.DataSource == "postgres" {
		source = datasource.NewPostgresSource(db)
	}
	reportsService := reports.NewService(reports.NewPostgresRepository(db), source, builder.NewCatalog(),
		executor, cfg.Retry, logger.Named("reports"))

	// Storage and delivery
	s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UsePathStyle:    cfg.Storage.UsePathStyle,
	})
	if err != nil {
		logger.Fatal("Failed to create S3 client", zap.Error(err))
	}

	var email scheduler.EmailSender
	if cfg.Email.FromAddress != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.Region))
		if err != nil {
			logger.Fatal("Failed to load AWS config", zap.Error(err))
		}
		email = sesv2.NewFromConfig(awsCfg)
	}

	// No websocket hub in this process: notification deliveries are kept in
	// the worker's own history and logged.
	publisher := notifications.NewService(nil, notifications.DefaultHistorySize, logger.Named("notifications"))

	delivery := scheduler.NewDeliveryManager(email,
		scheduler.EmailConfig{FromAddress: cfg.Email.FromAddress, FromName: cfg.Email.FromName},
		scheduler.DefaultWebhookConfig(), publisher, logger.Named("delivery"))

	runner := scheduler.NewExecutor(reportsService, s3Client, delivery, logger.Named("executor"), scheduler.ExecutorConfig{
		KeyPrefix:         cfg.Reports.KeyPrefix,
		Timeout:           cfg.Reports.ExecutionTimeout,
		DownloadURLExpiry: cfg.Reports.DownloadURLExpiry,
		MaxFileSizeBytes:  scheduler.DefaultExecutorConfig().MaxFileSizeBytes,
	})
	manager := scheduler.NewScheduleManager(runner, reportsService, logger.Named("scheduler"),
		scheduler.ScheduleManagerConfig{ReloadInterval: cfg.Reports.ScheduleReload})

	worker := NewReportWorker(manager, logger)
	if err := worker.Start(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}
	logger.Info("Report worker stopped")
}
