// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"tuma-service/internal/carrier"
	"tuma-service/internal/config"
	"tuma-service/internal/db"
	"tuma-service/internal/gateway"
	creditHandler "tuma-service/internal/handlers/credit"
	entitlementHandler "tuma-service/internal/handlers/entitlement"
	messageHandler "tuma-service/internal/handlers/message"
	planHandler "tuma-service/internal/handlers/plan"
	purchaseHandler "tuma-service/internal/handlers/purchase"
	"tuma-service/internal/middleware"
	"tuma-service/internal/repository/postgres"
	creditUsecase "tuma-service/internal/service/credit"
	deliveryUsecase "tuma-service/internal/service/delivery"
	dispatchUsecase "tuma-service/internal/service/dispatch"
	entitlementUsecase "tuma-service/internal/service/entitlement"
	planUsecase "tuma-service/internal/service/plan"
	purchaseUsecase "tuma-service/internal/service/purchase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	cancelDispatcher context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] connected successfully")

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- Repositories -----
	planRepo := postgres.NewPlanRepository(pool)
	tenantRepo := postgres.NewTenantRepository(pool)
	creditRepo := postgres.NewCreditRepository(pool)
	packageRepo := postgres.NewPackageRepository(pool)
	purchaseRepo := postgres.NewPurchaseRepository(pool)
	walletRepo := postgres.NewWalletRepository(pool)
	scheduledRepo := postgres.NewScheduledMessageRepository(pool)
	logRepo := postgres.NewMessageLogRepository(pool)
	contactRepo := postgres.NewContactRepository(pool)

	// ----- External collaborators -----
	paymentClient := gateway.NewHTTPPaymentClient(s.cfg.GatewayBaseURL, s.cfg.GatewayAPIKey, s.cfg.GatewayTimeout)
	smsSender := carrier.NewHTTPSender(s.cfg.CarrierBaseURL, s.cfg.CarrierAPIKey, s.cfg.CarrierTimeout)

	// ----- Services -----
	snapshotCache := entitlementUsecase.NewRedisSnapshotCache(redisClient, s.cfg.PlanCacheTTL, logger)
	entitlementService := entitlementUsecase.NewService(tenantRepo, planRepo, snapshotCache, logger)
	ledger := creditUsecase.NewLedger(creditRepo, logger)
	purchaseService := purchaseUsecase.NewOrchestrator(purchaseRepo, packageRepo, walletRepo, ledger, paymentClient, logger)
	dispatchService := dispatchUsecase.NewService(
		scheduledRepo,
		logRepo,
		ledger,
		entitlementService,
		contactRepo,
		smsSender,
		s.cfg.CreditsPerMessage,
		logger,
	)
	tracker := deliveryUsecase.NewTracker(logRepo, logger)
	planService := planUsecase.NewService(planRepo, tenantRepo, ledger, entitlementService, logger)

	// ----- Dispatcher loop -----
	dispatcher := dispatchUsecase.NewDispatcher(dispatchService, s.cfg.DispatchInterval, s.cfg.DispatchBatchSize, logger)
	dispatchCtx, cancel := context.WithCancel(context.Background())
	s.cancelDispatcher = cancel
	go dispatcher.Run(dispatchCtx)

	// ----- Handlers -----
	entitlementHandlerInst := entitlementHandler.NewEntitlementHandler(entitlementService)
	creditHandlerInst := creditHandler.NewCreditHandler(ledger)
	purchaseHandlerInst := purchaseHandler.NewPurchaseHandler(purchaseService)
	messageHandlerInst := messageHandler.NewMessageHandler(dispatchService, tracker)
	planHandlerInst := planHandler.NewPlanHandler(planService)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(s.cfg.JWTSecret)
	webhookMiddleware := middleware.NewWebhookMiddleware(s.cfg.WebhookSecret)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		EntitlementHandler: entitlementHandlerInst,
		CreditHandler:      creditHandlerInst,
		PurchaseHandler:    purchaseHandlerInst,
		MessageHandler:     messageHandlerInst,
		PlanHandler:        planHandlerInst,
		AuthMiddleware:     authMiddleware,
		WebhookMiddleware:  webhookMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Stop halts the background dispatcher loop.
func (s *Server) Stop() {
	if s.cancelDispatcher != nil {
		s.cancelDispatcher()
	}
}
