package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stroycrm/internal/api"
	"stroycrm/internal/api/handlers"
	"stroycrm/internal/app"
	"stroycrm/internal/repository"
	"stroycrm/internal/service"
	"stroycrm/pkg/auth"
	"stroycrm/pkg/config"
	"stroycrm/pkg/logger"
	"stroycrm/pkg/postgres"

	"go.uber.org/zap"
)

// @title StroyCRM Invoice Intake API
// @version 1.0
// @description Распознавание счетов на оплату для строительной CRM
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@stroycrm.ru

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting StroyCRM invoice intake service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, appLogger)
	invoiceRepo := repository.NewInvoiceRepository(db, appLogger)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)
	invoiceService := service.NewInvoiceService(invoiceRepo, appLogger)

	pipeline, err := app.NewPipeline(ctx, cfg, invoiceService, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize recognition pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	if !pipeline.Recognition.OCRReady() {
		appLogger.Warn("OCR is not configured, images and PDFs will be rejected",
			zap.String("provider", cfg.OCR.Provider),
		)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, appLogger)
	invoiceHandler := handlers.NewInvoiceHandler(pipeline.Recognition, invoiceService, appLogger)

	// Setup router
	server := api.SetupRouter(authHandler, invoiceHandler, pipeline.Recognition, jwtManager, cfg.Server, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := server.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
