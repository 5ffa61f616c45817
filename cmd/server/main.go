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

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/cache"
	"checkout-service/internal/pricing"
	"checkout-service/internal/provider"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service")

	tp, err := util.InitTracer("checkout-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Business.OrderDataKey)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	paypalClient := provider.NewPayPalClient(cfg.PayPal.BaseURL, cfg.PayPal.Token)
	paddleClient := provider.NewPaddleClient(cfg.Paddle.BaseURL, cfg.Paddle.Token, cfg.Paddle.WebhookSecret)
	providers := map[string]provider.Client{
		paypalClient.Name(): paypalClient,
		paddleClient.Name(): paddleClient,
	}

	pricingEngine := pricing.NewEngine(db, db)
	productCache := cache.New(time.Duration(cfg.Business.ProductCacheTTLSeconds)*time.Second, nil)

	checkoutService := service.NewCheckoutService(db, pricingEngine, providers, eventPublisher, productCache,
		service.CheckoutConfig{
			SessionTTL: map[string]time.Duration{
				paypalClient.Name(): time.Duration(cfg.PayPal.CheckoutTTLSeconds) * time.Second,
				paddleClient.Name(): time.Duration(cfg.Paddle.CheckoutTTLSeconds) * time.Second,
			},
			FallbackDeliveryMinutes: cfg.Business.FallbackDeliveryMinutes,
			SweepBatchLimit:         cfg.Business.SweepBatchLimit,
		})

	reconcileService := service.NewReconcileService(db, providers, eventPublisher, redisClient,
		service.ReconcileConfig{
			DedupWindow:             time.Duration(cfg.Business.DedupWindowMinutes) * time.Minute,
			FallbackDeliveryMinutes: cfg.Business.FallbackDeliveryMinutes,
		})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sweepWorker := worker.NewSweepWorker(checkoutService,
		time.Duration(cfg.Business.SweepIntervalSeconds)*time.Second)
	go func() {
		if err := sweepWorker.Start(workerCtx); err != nil {
			log.Printf("Sweep worker error: %v", err)
		}
	}()

	notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	notifyWorker := worker.NewNotifyWorker(notifyConsumer)
	go func() {
		if err := notifyWorker.Start(workerCtx); err != nil {
			log.Printf("Notify worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(checkoutService, reconcileService, paypalClient, paddleClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notifyWorker.Stop()

	log.Println("Server exited")
}
