package router

import (
	"github.com/gin-gonic/gin"

	"github.com/skillmarket/marketplace-backend/internal/config"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers"
	"github.com/skillmarket/marketplace-backend/internal/http/middleware"
	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	serviceHandler *handlers.ServiceHandler,
	orderHandler *handlers.OrderHandler,
	paymentHandler *handlers.PaymentHandler,
	webhookHandler *handlers.WebhookHandler,
	disputeHandler *handlers.DisputeHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	settingsHandler *handlers.SettingsHandler,
	notificationHandler *handlers.NotificationHandler,
	mediaHandler *handlers.MediaHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Вебхуки шлюза: без авторизации, подпись проверяется внутри
	api.POST("/webhooks/gateway", webhookHandler.Handle)

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/services", serviceHandler.ListServices)
	api.GET("/media/:id/download", middleware.UUIDValidator("id"), mediaHandler.Download)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/profile", profileHandler.GetMe)
		protected.PUT("/profile", profileHandler.UpdateMe)

		// Каталог услуг
		protected.POST("/services", serviceHandler.CreateService)
		protected.GET("/services/my", serviceHandler.ListMyServices)
		protected.GET("/services/:id", middleware.UUIDValidator("id"), serviceHandler.GetService)
		protected.PUT("/services/:id", middleware.UUIDValidator("id"), serviceHandler.UpdateService)
		protected.POST("/services/:id/pause", middleware.UUIDValidator("id"), serviceHandler.PauseService)
		protected.POST("/services/:id/activate", middleware.UUIDValidator("id"), serviceHandler.ActivateService)

		// Заказы
		protected.POST("/orders", orderHandler.CreateOrder)
		protected.GET("/orders", orderHandler.ListMyOrders)
		protected.GET("/orders/:id", middleware.UUIDValidator("id"), orderHandler.GetOrder)
		protected.POST("/orders/:id/deliver", middleware.UUIDValidator("id"), orderHandler.DeliverOrder)
		protected.POST("/orders/:id/revision", middleware.UUIDValidator("id"), orderHandler.RequestRevision)
		protected.POST("/orders/:id/complete", middleware.UUIDValidator("id"), orderHandler.CompleteOrder)
		protected.POST("/orders/:id/cancel", middleware.UUIDValidator("id"), orderHandler.CancelOrder)

		// Платежи
		protected.POST("/payments/finalize", paymentHandler.FinalizeCheckout)
		protected.GET("/orders/:id/payment", middleware.UUIDValidator("id"), paymentHandler.GetOrderPayment)

		// Споры
		protected.POST("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.CreateDispute)
		protected.GET("/orders/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.GetOrderDispute)
		protected.GET("/disputes", disputeHandler.ListMyDisputes)

		// Баланс и вывод средств
		protected.GET("/balance", withdrawalHandler.GetBalance)
		protected.GET("/balance/entries", withdrawalHandler.ListLedgerEntries)
		protected.POST("/withdrawals", withdrawalHandler.CreateWithdrawal)
		protected.GET("/withdrawals", withdrawalHandler.ListWithdrawals)

		// Уведомления
		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)

		// Файлы
		protected.POST("/media", mediaHandler.Upload)
		protected.GET("/media/:id/link", middleware.UUIDValidator("id"), mediaHandler.SignedLink)
		protected.DELETE("/media/:id", middleware.UUIDValidator("id"), mediaHandler.Delete)
	}

	// Административные маршруты
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/settings", settingsHandler.GetSettings)
		admin.PUT("/settings", settingsHandler.UpdateSettings)

		admin.GET("/disputes", disputeHandler.ListOpenDisputes)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.ResolveDispute)

		admin.POST("/orders/:id/refund", middleware.UUIDValidator("id"), paymentHandler.RefundOrder)

		admin.GET("/withdrawals", withdrawalHandler.ListPendingWithdrawals)
		admin.POST("/withdrawals/:id/approve", middleware.UUIDValidator("id"), withdrawalHandler.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", middleware.UUIDValidator("id"), withdrawalHandler.RejectWithdrawal)
	}

	return r
}
