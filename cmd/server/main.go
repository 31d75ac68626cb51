package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listing-service/config"
	"listing-service/internal/api"
	"listing-service/internal/broker"
	"listing-service/internal/gateway"
	"listing-service/internal/models"
	"listing-service/internal/redisclient"
	"listing-service/internal/service"
	"listing-service/internal/store"
	"listing-service/internal/util"
	"listing-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(util.LoggerOptions{
		Service: cfg.Observ.ServiceName,
		Env:     cfg.Server.Env,
		Level:   cfg.Observ.LogLevel,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting listing service")

	tp, err := util.InitTracer(util.TracerOptions{
		ServiceName: cfg.Observ.ServiceName,
		Env:         cfg.Server.Env,
		Endpoint:    cfg.Observ.JaegerEndpoint,
		SampleRatio: cfg.Observ.TraceRatio,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	if err := store.MigrateUp(cfg.Database.URL); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicListingEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	clock := util.SystemClock()

	gateways := gateway.NewRegistry(
		gateway.NewVNPayClient(cfg.Gateway.VNPay, clock),
		gateway.NewPayOSClient(cfg.Gateway.PayOS, cfg.Gateway.Timeout),
	)

	catalog := service.NewCatalog(db, redisClient, cfg.Business.CatalogCacheTTL)
	ledger := service.NewPaymentLedger(clock)
	lifecycle := service.NewListingLifecycle(db, catalog, eventPublisher, clock, service.LifecycleConfig{
		ActiveDays:   cfg.Business.ListingActiveDays,
		StandardCode: cfg.Pricing.StandardCode,
	})
	paymentService := service.NewPaymentService(db, catalog, ledger, lifecycle, gateways, eventPublisher, clock, service.PaymentConfig{
		Currency:       cfg.Pricing.Currency,
		StandardCode:   cfg.Pricing.StandardCode,
		FreeCode:       cfg.Pricing.FreeCode,
		DefaultGateway: models.Gateway(cfg.Pricing.DefaultGateway),
		GatewayTimeout: cfg.Gateway.Timeout,
	})
	callbackRouter := service.NewCallbackRouter(db, ledger, lifecycle, gateways, redisClient, eventPublisher, clock, cfg.Business.CallbackDedupeTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	processor := worker.NewEventProcessor(db, lifecycle)

	moderationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicModeration, cfg.Kafka.ConsumerGroup)
	moderationWorker := worker.NewModerationWorker(moderationConsumer, processor)
	go func() {
		if err := moderationWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Moderation worker error", zap.Error(err))
		}
	}()

	contractConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicContracts, cfg.Kafka.ConsumerGroup)
	contractWorker := worker.NewContractWorker(contractConsumer, processor)
	go func() {
		if err := contractWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Contract worker error", zap.Error(err))
		}
	}()

	sweeper := worker.NewReconciliationSweeper(db, gateways, callbackRouter, clock, worker.SweeperConfig{
		BatchSize:    cfg.Business.SweepBatchSize,
		Expiry:       cfg.Business.PaymentExpiry,
		QueryTimeout: cfg.Gateway.Timeout,
	})
	scheduler := worker.NewScheduler(redisClient, 2*time.Minute)
	if err := worker.RegisterJobs(scheduler, sweeper, lifecycle, worker.Schedules{
		Reconcile:   cfg.Business.ReconcileSchedule,
		Expire:      cfg.Business.ExpireSchedule,
		RenewalBump: cfg.Business.RenewalBumpSchedule,
		BatchSize:   cfg.Business.SweepBatchSize,
	}); err != nil {
		logger.Fatal("Failed to schedule jobs", zap.Error(err))
	}
	scheduler.Start()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(paymentService, lifecycle, callbackRouter, catalog,
		map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
		api.HandlerConfig{
			FrontendResultURL: cfg.Business.FrontendResultURL,
			CallbackRateLimit: cfg.Server.CallbackRateLimit,
			CallbackBurst:     cfg.Server.CallbackBurst,
		})
	defer handler.Close()
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("Scheduled jobs still running at shutdown")
	}

	workerCancel()
	if err := moderationWorker.Stop(); err != nil {
		logger.Warn("Failed to stop moderation worker", zap.Error(err))
	}
	if err := contractWorker.Stop(); err != nil {
		logger.Warn("Failed to stop contract worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
