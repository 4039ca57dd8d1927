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

	"kaspi-sync/config"
	"kaspi-sync/internal/api"
	"kaspi-sync/internal/broker"
	"kaspi-sync/internal/kaspi"
	"kaspi-sync/internal/redisclient"
	"kaspi-sync/internal/service"
	"kaspi-sync/internal/store"
	"kaspi-sync/internal/util"
	"kaspi-sync/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting kaspi sync service")

	tp, err := util.InitTracer("kaspi-sync", cfg.Observ.JaegerEndpoint)
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

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	kaspiClient := kaspi.NewClient(cfg.Kaspi.APIToken,
		kaspi.WithBaseURL(cfg.Kaspi.BaseURL),
		kaspi.WithPace(time.Duration(cfg.Kaspi.PaceMs)*time.Millisecond))

	cascade := service.NewCascade(db, db, eventPublisher, redisClient)
	importer := service.NewImporter(db, cascade)
	enricher := service.NewEnricher(kaspiClient, db, cascade)
	syncService := service.NewSyncService(kaspiClient, importer, enricher, db, eventPublisher, cfg.Sync.Integration)
	forecastService := service.NewForecastService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.Sync.RunArchive {
		go worker.RunArchiveBackfill(workerCtx, syncService, cfg.Sync.ArchiveDays)
	}

	newWorker := worker.NewSyncWorker(syncService, service.TierNew, cfg.Sync.NewInterval)
	go newWorker.Start(workerCtx)

	activeWorker := worker.NewSyncWorker(syncService, service.TierActive, cfg.Sync.ActiveInterval)
	go activeWorker.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(db, syncService, forecastService, redisClient)
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

	log.Println("Server exited")
}
