package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	v1 "admissions-portal/portal-backend/api/v1"
	"admissions-portal/portal-backend/internal/auth"
	"admissions-portal/portal-backend/internal/backend"
	"admissions-portal/portal-backend/internal/campaigns"
	"admissions-portal/portal-backend/internal/config"
	"admissions-portal/portal-backend/internal/datasource"
	"admissions-portal/portal-backend/internal/notifications"
	"admissions-portal/portal-backend/internal/notifications/websocket"
	"admissions-portal/portal-backend/internal/practicum"
	"admissions-portal/portal-backend/internal/reports"
	"admissions-portal/portal-backend/internal/reports/builder"
	"admissions-portal/portal-backend/internal/reports/dashboard"
	"admissions-portal/portal-backend/internal/reports/scheduler"
	"admissions-portal/portal-backend/internal/retry"
	"admissions-portal/portal-backend/internal/session"
	"admissions-portal/portal-backend/internal/settings"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// no logger yet
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	logger.Info("Connecting to database",
		zap.String("host", cfg.Database.Host),
		zap.String("db_name", cfg.Database.DBName))
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	// gorm shares the pool
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal("Failed to open gorm", zap.Error(err))
	}

	// =====================================================
	// Session and retry
	// =====================================================

	store := session.NewStore()
	client := backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.URL,
		AnonKey:   cfg.Backend.AnonKey,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		RateBurst: cfg.Backend.RateBurst,
	}, store, logger.Named("backend"))
	backendAuth := backend.NewAuth(client, store)
	coordinator := session.NewCoordinator(backendAuth, cfg.Session.SettleDelay, logger.Named("session"))
	executor := retry.NewExecutor(coordinator, logger.Named("retry"))

	if cfg.Backend.ServiceEmail != "" {
		if _, err := backendAuth.SignInWithPassword(ctx, cfg.Backend.ServiceEmail, cfg.Backend.ServicePassword); err != nil {
			logger.Fatal("Failed to sign in service account", zap.Error(err))
		}
		logger.Info("Service account signed in", zap.String("email", cfg.Backend.ServiceEmail))
	}

	ws := websocket.NewManager(cfg.Server.AllowedOrigins, logger.Named("websocket"))
	defer ws.Close()
	notificationService := notifications.NewService(ws, notifications.DefaultHistorySize, logger.Named("notifications"))

	refreshCron := cron.New(cron.WithLogger(scheduler.NewCronLogger(logger)))
	if _, err := refreshCron.AddFunc(cfg.Session.RefreshSchedule,
		refreshSessionJob(ctx, store, coordinator, notificationService, cfg.Session.RefreshMargin, logger)); err != nil {
		logger.Fatal("Invalid session refresh schedule", zap.Error(err))
	}
	refreshCron.Start()
	defer refreshCron.Stop()

	// =====================================================
	// Modules
	// =====================================================

	var source datasource.Source
	switch cfg.Reports.DataSource {
	case "postgres":
		source = datasource.NewPostgresSource(db)
	default:
		source = backend.NewRESTSource(client)
	}

	reportsRepo := reports.NewPostgresRepository(db)
	reportsService := reports.NewService(reportsRepo, source, builder.NewCatalog(), executor, cfg.Retry, logger.Named("reports"))
	aggregator := dashboard.NewAggregator(reportsService, logger.Named("dashboard"), dashboard.AggregatorConfig{
		CacheTTL:      cfg.Reports.CacheTTL,
		Concurrency:   cfg.Reports.Concurrency,
		WidgetTimeout: cfg.Reports.WidgetTimeout,
	})
	defer aggregator.Stop()

	campaignService := campaigns.NewService(campaigns.NewRepository(gormDB), backend.NewFunctions(client),
		notificationService, executor, cfg.Retry, logger.Named("campaigns"))
	practicumService := practicum.NewService(practicum.NewRepository(gormDB),
		notificationService, executor, cfg.Retry, logger.Named("practicum"))
	settingsService := settings.NewService(settings.NewRepository(source), executor, cfg.Retry, logger.Named("settings"))

	gin.SetMode(gin.ReleaseMode)
	if cfg.Logging.Development {
		gin.SetMode(gin.DebugMode)
	}
	router := v1.NewRouter(cfg.Server.AllowedOrigins,
		func() gin.H {
			return gin.H{
				"session_valid":  store.Valid(),
				"session":        coordinator.Stats(),
				"ws_connections": ws.ConnectionCount(),
			}
		},
		auth.NewHandler(store, coordinator, logger.Named("auth")),
		reports.NewHandler(reportsService, logger.Named("reports")),
		dashboard.NewHandler(aggregator, logger.Named("dashboard")),
		notifications.NewHandler(notificationService),
		campaigns.NewHandler(campaignService, logger.Named("campaigns")),
		practicum.NewHandler(practicumService, logger.Named("practicum")),
		settings.NewHandler(settingsService, logger.Named("settings")),
	)
	router.GET("/ws", ws.Handle)

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("data_source", cfg.Reports.DataSource))

	// Graceful Shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
