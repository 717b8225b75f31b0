package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/robertspest/reorderdesk/api/swagger" // swagger docs
	"github.com/robertspest/reorderdesk/internal/config"
	"github.com/robertspest/reorderdesk/internal/database"
	"github.com/robertspest/reorderdesk/internal/handler"
	"github.com/robertspest/reorderdesk/internal/middleware"
	"github.com/robertspest/reorderdesk/internal/model"
	"github.com/robertspest/reorderdesk/internal/notify"
	"github.com/robertspest/reorderdesk/internal/repository"
	"github.com/robertspest/reorderdesk/internal/service"
	"github.com/robertspest/reorderdesk/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// @title           Reorder Desk API
// @version         1.0
// @description     Low-stock detection, reorder approval and purchase order dispatch.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("configs")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	log.Info().Str("appName", cfg.AppName).Str("backend", cfg.Backend).Msg("Application starting")

	// Relational connection: active backend and/or import target
	var db *gorm.DB
	if cfg.NeedsDatabase() {
		db, err = openDatabase(cfg)
		if err != nil {
			if cfg.Backend == repository.BackendRelational {
				log.Fatal().Err(err).Msg("Database connection failed")
			}
			log.Warn().Err(err).Msg("Database unavailable, workbook import disabled")
		}
	}

	if cfg.WorkbookPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.WorkbookPath), 0o755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create workbook directory")
		}
	}

	store, err := repository.Open(repository.Options{
		Backend:      cfg.Backend,
		WorkbookPath: cfg.WorkbookPath,
		LockTimeout:  cfg.LockTimeout,
		DB:           db,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open inventory store")
	}
	defer store.Close()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	defer wsHub.Stop()

	dispatcher := notify.NewDispatcher(
		notify.NewPDFRenderer(),
		notify.NewSMTPTransport(notify.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPass,
			From:        cfg.FromEmail,
			ImplicitTLS: cfg.SMTPTLS,
		}),
		notify.Settings{
			Branding: notify.Branding{
				CompanyName:    cfg.CompanyName,
				CompanyAddress: cfg.CompanyAddress,
				CompanyPhone:   cfg.CompanyPhone,
				LogoPath:       cfg.CompanyLogoPath,
			},
			SubjectPrefix: cfg.EmailSubjectPrefix,
			DefaultCC:     model.SplitEmails(cfg.DefaultEmailCC),
			EmailFooter:   cfg.EmailFooter,
			PickupFooter:  cfg.POFooterPickup,
			ShipFooter:    cfg.POFooterShip,

			StockUseRecipients: model.SplitEmails(cfg.StockUseEmails),
		},
	)
	if cfg.SMTPHost == "" {
		log.Warn().Msg("SMTP_HOST is not set, approved requests will be recorded as FAILED")
	}

	// Set up dependencies (Repository -> Service -> Handler)
	reorderService := service.NewReorderService(store, dispatcher, wsHub)
	inventoryService := service.NewInventoryService(store, wsHub, dispatcher)
	analyticsService := service.NewAnalyticsService(store)

	var source *repository.WorkbookStore
	var target *repository.RelationalStore
	if cfg.WorkbookPath != "" {
		source = repository.NewWorkbookStore(cfg.WorkbookPath, cfg.LockTimeout)
	}
	if db != nil && cfg.ImportEnabled {
		target = repository.NewRelationalStore(db)
	}
	exporter := service.NewExporter(source, target, store)

	// Initialize Handlers
	auth := middleware.NewAuth(cfg.Secret())
	reorderHandler := handler.NewReorderHandler(reorderService, auth)
	inventoryHandler := handler.NewInventoryHandler(inventoryService, auth)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, auth)
	adminHandler := handler.NewAdminHandler(exporter, auth)

	// Set up Gin Router
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Origins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", "Retry-After"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "backend": store.Backend()})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth)
	})

	// API Routing
	reorderHandler.RegisterRoutes(router.Group(""))
	inventoryHandler.RegisterRoutes(router.Group(""))
	analyticsHandler.RegisterRoutes(router.Group(""))
	adminHandler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// --- Wait for shutdown signal ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Application shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	dbCfg := database.Config{Driver: cfg.DBDriver, LogLevel: cfg.DBLogLevel}
	if cfg.DBDriver == database.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, err
		}
		dbCfg.Path = cfg.DBPath
	} else {
		dbCfg.DSN = cfg.PostgresDSN()
	}
	db, err := database.NewConnection(dbCfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("Connected to database")
	return db, nil
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// requestLogger replaces gin's default text logger with structured lines.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
