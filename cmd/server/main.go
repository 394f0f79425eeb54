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

	"pledge-service/config"
	"pledge-service/internal/api"
	"pledge-service/internal/broker"
	"pledge-service/internal/redisclient"
	"pledge-service/internal/service"
	"pledge-service/internal/store"
	"pledge-service/internal/util"
	"pledge-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting pledge service")

	tp, err := util.InitTracer("pledge-service", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
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

	pledgeProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPledges)
	defer pledgeProducer.Close()
	notifyProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notifyProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(pledgeProducer, notifyProducer)

	ledger := service.NewContributionLedger(db, eventPublisher)
	materializer := service.NewOrderMaterializer(
		db,
		redisClient,
		eventPublisher,
		service.OrderTotalPolicy(cfg.Business.OrderTotalPolicy),
		time.Duration(cfg.Business.LockTTLSeconds)*time.Second,
	)
	reconciler := service.NewGoalReconciler(db, redisClient, materializer)
	goals := service.NewGoalService(db)
	payments := service.NewPaymentService(
		ledger,
		cfg.Business.PaymentSuccessRate,
		time.Duration(cfg.Business.PaymentDelayMillis)*time.Millisecond,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPledges, cfg.Kafka.PaymentGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, payments, db)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil {
			log.Printf("Payment worker error: %v", err)
		}
	}()

	settlementConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPledges, cfg.Kafka.SettlementGroup)
	settlementWorker := worker.NewSettlementWorker(settlementConsumer, reconciler, db)
	go func() {
		if err := settlementWorker.Start(workerCtx); err != nil {
			log.Printf("Settlement worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(goals, ledger, reconciler, db)
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
	paymentWorker.Stop()
	settlementWorker.Stop()

	log.Println("Server exited")
}
