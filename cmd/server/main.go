package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vibrowatch/control-plane/internal/config"
	"github.com/vibrowatch/control-plane/internal/gatewayworker"
	"github.com/vibrowatch/control-plane/internal/handler"
	"github.com/vibrowatch/control-plane/internal/middleware"
	"github.com/vibrowatch/control-plane/internal/model"
	"github.com/vibrowatch/control-plane/internal/pkg/crypto"
)

// shutdownGrace bounds how long serve() waits for in-flight HTTP requests to
// drain once an interrupt or terminate signal arrives. Gateway workers are
// disconnected afterwards, outside this bound.
const shutdownGrace = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "control-plane",
		Short: "vibrowatch gateway control plane",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var logger *zap.Logger
	if cfg.IsProduction() {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}
	if !cfg.IsProduction() {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}

// newMigrateCmd runs the schema migration only, for use in deploy init
// containers or local setup — no server started.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "run schema auto-migration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg)
			defer logger.Sync()

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(model.AllModels()...); err != nil {
				return fmt.Errorf("auto-migrate: %w", err)
			}
			logger.Info("migration complete")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the REST API and gateway worker registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logger.Info("database migrated successfully")

	enforcer, err := casbin.NewEnforcer("configs/rbac_model.conf", "configs/rbac_policy.csv")
	if err != nil {
		return fmt.Errorf("initialize casbin: %w", err)
	}
	logger.Info("casbin rbac initialized")

	enc, err := crypto.NewEncryptor(cfg.Crypto.EncryptionKey)
	if err != nil {
		return fmt.Errorf("initialize encryptor: %w", err)
	}

	jwtService, err := middleware.NewJWTService(&cfg.JWT)
	if err != nil {
		return fmt.Errorf("initialize jwt service: %w", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	public := v1.Group("")
	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(&cfg.JWT))
	protected.Use(middleware.AuditLog(db))

	authHandler := handler.NewAuthHandler(db, jwtService)
	authHandler.RegisterRoutes(public, protected)

	orgHandler := handler.NewOrganizationHandler(db)
	orgHandler.RegisterRoutes(protected, enforcer)

	factoryHandler := handler.NewFactoryHandler(db)
	factoryHandler.RegisterRoutes(protected, enforcer)

	// ── Gateway worker registry ────────────────────────
	workerDefaults := gatewayworker.WorkerConfig{
		ConnectTimeout:     cfg.Worker.ConnectTimeout,
		CommandTimeout:     cfg.Worker.CommandTimeout,
		AcquisitionTimeout: cfg.Worker.AcquisitionTimeout,
		HeartbeatInterval:  cfg.Worker.HeartbeatInterval,
	}
	sink := gatewayworker.NewStdoutSink(os.Stdout)
	registry := gatewayworker.NewRegistry(workerDefaults, sink, logger)

	gatewayHandler := handler.NewGatewayHandler(db, enc, registry)
	gatewayHandler.RegisterRoutes(protected, enforcer)

	// Connect every enabled gateway in the background so a slow or
	// unreachable sensor doesn't delay server startup.
	go func() {
		initCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		var gateways []model.Gateway
		if err := db.Where("enabled = ?", true).Find(&gateways).Error; err != nil {
			logger.Error("failed to load gateways for initial connect", zap.Error(err))
			return
		}

		records := make([]gatewayworker.GatewayRecord, 0, len(gateways))
		for _, gw := range gateways {
			plaintext, err := enc.Decrypt(gw.EncryptedCredential)
			if err != nil {
				logger.Warn("failed to decrypt gateway credential, skipping",
					zap.String("gatewayId", gw.ID), zap.Error(err))
				continue
			}
			preferred := ""
			if gw.PreferredSerial != nil {
				preferred = *gw.PreferredSerial
			}
			records = append(records, gatewayworker.GatewayRecord{
				GatewayID:       gw.ID,
				URL:             gw.URL,
				LoginEmail:      gw.Email,
				LoginPassword:   plaintext,
				PreferredSerial: preferred,
			})
		}

		registry.Initialize(initCtx, records)
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: r}

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("starting control plane API server", zap.String("addr", addr), zap.String("environment", cfg.Server.Environment))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
			return
		}
		serverErrs <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrs:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutdown signal received, draining", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)

	connected := registry.ConnectedIDs()
	registry.DisconnectAll()
	if len(connected) == 0 {
		logger.Info("shutdown complete, no gateway workers were connected")
	} else {
		logger.Info("shutdown complete, gateway workers disconnected", zap.Int("gatewayCount", len(connected)))
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown: %w", shutdownErr)
	}
	return nil
}
