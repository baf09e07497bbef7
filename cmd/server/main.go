package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/skillmarket/marketplace-backend/internal/config"
	"github.com/skillmarket/marketplace-backend/internal/db"
	"github.com/skillmarket/marketplace-backend/internal/gateway"
	"github.com/skillmarket/marketplace-backend/internal/goroutine"
	httpHandlers "github.com/skillmarket/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/skillmarket/marketplace-backend/internal/http/router"
	"github.com/skillmarket/marketplace-backend/internal/logger"
	"github.com/skillmarket/marketplace-backend/internal/repository"
	"github.com/skillmarket/marketplace-backend/internal/service"
	"github.com/skillmarket/marketplace-backend/internal/storage"
	"github.com/skillmarket/marketplace-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательная инфраструктура.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	fileStorage, err := storage.NewFileStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB, cfg.MediaSignSecret, cfg.MediaLinkTTL)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	gw := gateway.NewStripeGateway(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayWebhookSecret)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	serviceRepo := repository.NewServiceRepository(dbConn)
	settingsRepo := repository.NewSettingsRepository(dbConn)
	ledgerRepo := repository.NewLedgerRepository(dbConn)
	orderRepo := repository.NewOrderRepository(dbConn, ledgerRepo)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	webhookRepo := repository.NewWebhookRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn, ledgerRepo)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	mediaRepo := repository.NewMediaRepository(dbConn)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	notificationService := service.NewNotificationService(notificationRepo)
	catalogService := service.NewCatalogService(serviceRepo, settingsRepo)
	catalogService.SetCache(service.NewCacheService())
	paymentService := service.NewPaymentService(paymentRepo, orderRepo, gw, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	orderService := service.NewOrderService(orderRepo, serviceRepo, settingsRepo, userRepo, paymentService)
	disputeService := service.NewDisputeService(disputeRepo, orderRepo, userRepo, paymentService)
	withdrawalService := service.NewWithdrawalService(withdrawalRepo, ledgerRepo, userRepo, gw)
	webhookService := service.NewWebhookService(webhookRepo, gw, paymentService)

	// Вебсокеты и уведомления.
	hub := ws.NewHub()
	goroutine.SafeGo(hub.Run)
	notificationService.SetHub(hub)

	paymentService.SetNotifier(notificationService)
	orderService.SetNotifier(notificationService)
	disputeService.SetNotifier(notificationService)
	withdrawalService.SetNotifier(notificationService)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	profileHandler := httpHandlers.NewProfileHandler(authService)
	serviceHandler := httpHandlers.NewServiceHandler(catalogService)
	orderHandler := httpHandlers.NewOrderHandler(orderService)
	paymentHandler := httpHandlers.NewPaymentHandler(paymentService, orderService)
	webhookHandler := httpHandlers.NewWebhookHandler(webhookService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	withdrawalHandler := httpHandlers.NewWithdrawalHandler(withdrawalService)
	settingsHandler := httpHandlers.NewSettingsHandler(catalogService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	mediaHandler := httpHandlers.NewMediaHandler(mediaRepo, fileStorage)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		profileHandler,
		serviceHandler,
		orderHandler,
		paymentHandler,
		webhookHandler,
		disputeHandler,
		withdrawalHandler,
		settingsHandler,
		notificationHandler,
		mediaHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
