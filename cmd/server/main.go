package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/acme/importflow/internal/config"
	"github.com/acme/importflow/internal/db"
	"github.com/acme/importflow/internal/importer"
	"github.com/acme/importflow/internal/middleware"
	"github.com/acme/importflow/internal/notifier"
	"github.com/acme/importflow/internal/products"
	"github.com/acme/importflow/internal/progress"
	"github.com/acme/importflow/internal/repository"
	"github.com/acme/importflow/internal/task"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database.URL(), "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	productRepo := repository.NewProductRepository(conn)
	jobRepo := repository.NewImportJobRepository(conn.Pool)
	webhookRepo := repository.NewWebhookRepository(conn.Pool)

	// Core components
	tracker := progress.NewMemoryTracker(cfg.Stream.SnapshotTTL)
	queue := task.NewQueue(cfg.Import.Workers, 256)

	engine := notifier.NewEngine(webhookRepo,
		cfg.Webhook.DeliverTimeout, cfg.Webhook.TestTimeout,
		cfg.Webhook.MaxRetries, cfg.Webhook.BackoffBase)
	dispatcher := notifier.NewDispatcher(engine, queue)

	importService := importer.NewService(jobRepo, productRepo, tracker, dispatcher,
		cfg.Import.BatchSize, cfg.Import.MaxAttempts, cfg.Import.RetryDelay)

	productService := products.NewService(productRepo)
	bulkDeleter := products.NewBulkDeleter(productRepo, jobRepo, tracker)

	// HTTP handlers
	uploadHandler := importer.NewHTTPHandler(importService, jobRepo, queue, cfg.Import.UploadDir)
	streamHandler := progress.NewStreamHandler(tracker, jobRepo, cfg.Stream.Timeout, cfg.Stream.PollInterval)
	webhookHandler := notifier.NewHTTPHandler(webhookRepo, engine, queue)
	productHandler := products.NewHTTPHandler(productService, bulkDeleter, jobRepo, queue)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/products/upload", uploadHandler.Upload)
	mux.HandleFunc("GET /api/uploads/recent", uploadHandler.Recent)
	mux.HandleFunc("GET /api/jobs/{id}", streamHandler.Job)
	mux.HandleFunc("GET /api/jobs/{id}/events", streamHandler.Events)
	mux.HandleFunc("GET /api/products", productHandler.List)
	mux.HandleFunc("POST /api/products", productHandler.Create)
	mux.HandleFunc("DELETE /api/products", productHandler.DeleteAll)
	mux.HandleFunc("GET /api/products/{id}", productHandler.Get)
	mux.HandleFunc("PUT /api/products/{id}", productHandler.Update)
	mux.HandleFunc("DELETE /api/products/{id}", productHandler.Delete)
	mux.HandleFunc("GET /api/webhooks", webhookHandler.List)
	mux.HandleFunc("POST /api/webhooks", webhookHandler.Create)
	mux.HandleFunc("GET /api/webhooks/{id}", webhookHandler.Get)
	mux.HandleFunc("PUT /api/webhooks/{id}", webhookHandler.Update)
	mux.HandleFunc("DELETE /api/webhooks/{id}", webhookHandler.Delete)
	mux.HandleFunc("POST /api/webhooks/{id}/test", webhookHandler.Test)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     corsHandler.Handler(middleware.LoggingMiddleware(mux)),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	queue.Shutdown(shutdownCtx)

	log.Println("Server exited")
}
