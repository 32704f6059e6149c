// internal/app/router.go
package app

import (
	creditHandler "tuma-service/internal/handlers/credit"
	entitlementHandler "tuma-service/internal/handlers/entitlement"
	messageHandler "tuma-service/internal/handlers/message"
	planHandler "tuma-service/internal/handlers/plan"
	purchaseHandler "tuma-service/internal/handlers/purchase"
	"tuma-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	EntitlementHandler *entitlementHandler.EntitlementHandler
	CreditHandler      *creditHandler.CreditHandler
	PurchaseHandler    *purchaseHandler.PurchaseHandler
	MessageHandler     *messageHandler.MessageHandler
	PlanHandler        *planHandler.PlanHandler
	AuthMiddleware     *middleware.AuthMiddleware
	WebhookMiddleware  *middleware.WebhookMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Webhooks (no tenant auth) ====================
	// External collaborators call back here; payloads are authenticated by
	// an HMAC body signature and both handlers absorb retries.
	webhooks := api.Group("/webhooks")
	webhooks.Use(h.WebhookMiddleware.Verify())
	{
		webhooks.POST("/payments", h.PurchaseHandler.GatewayWebhook)
		webhooks.POST("/delivery", h.MessageHandler.DeliveryWebhook)
	}

	// ==================== Entitlements ====================
	entitlements := api.Group("/entitlements")
	entitlements.Use(h.AuthMiddleware.Auth())
	{
		entitlements.GET("/features", h.EntitlementHandler.GetFeatures)
		entitlements.GET("/limits/:key", h.EntitlementHandler.GetLimit)
	}

	// ==================== Credits ====================
	credits := api.Group("/credits")
	credits.Use(h.AuthMiddleware.Auth())
	{
		credits.GET("", h.CreditHandler.GetBalance)
		credits.GET("/transactions", h.CreditHandler.ListTransactions)
	}

	// ==================== Purchases ====================
	purchases := api.Group("/purchases")
	purchases.Use(h.AuthMiddleware.Auth())
	{
		purchases.GET("/packages", h.PurchaseHandler.ListPackages)
		purchases.GET("/wallet", h.PurchaseHandler.GetWallet)
		purchases.POST("", h.PurchaseHandler.Initiate)
		purchases.GET("", h.PurchaseHandler.List)
		purchases.POST("/:id/confirm-wallet", h.PurchaseHandler.ConfirmWallet)
		purchases.POST("/:id/cancel", h.PurchaseHandler.Cancel)
		purchases.GET("/verify/:reference", h.PurchaseHandler.Verify)
	}

	// ==================== Messages ====================
	messages := api.Group("/messages")
	messages.Use(h.AuthMiddleware.Auth())
	{
		messages.POST("/send", h.MessageHandler.Send)
		messages.GET("/logs/:id", h.MessageHandler.GetLogDetail)

		scheduled := messages.Group("/scheduled")
		{
			scheduled.POST("", h.MessageHandler.CreateScheduled)
			scheduled.GET("", h.MessageHandler.ListScheduled)
			scheduled.GET("/stats", h.MessageHandler.Stats)
			scheduled.GET("/:id", h.MessageHandler.GetScheduled)
			scheduled.PUT("/:id/cancel", h.MessageHandler.CancelScheduled)
		}
	}

	// ==================== Plans ====================
	plans := api.Group("/plans")
	plans.Use(h.AuthMiddleware.Auth())
	{
		plans.GET("", h.PlanHandler.ListPlans)
		plans.GET("/default", h.PlanHandler.GetDefaultPlan)
		plans.GET("/:id", h.PlanHandler.GetPlan)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth())
	{
		admin.POST("/plans", h.PlanHandler.PublishPlan)
		admin.PUT("/plans/:id/retire", h.PlanHandler.RetirePlan)
		admin.POST("/plans/assign", h.PlanHandler.AssignPlan)
		admin.POST("/credits/grant", h.PlanHandler.GrantPeriodCredits)
	}
}
