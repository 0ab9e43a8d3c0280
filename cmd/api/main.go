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

	"github.com/kurihiro0119/repo-report-hub/internal/api"
	"github.com/kurihiro0119/repo-report-hub/internal/catalog"
	"github.com/kurihiro0119/repo-report-hub/internal/config"
	"github.com/kurihiro0119/repo-report-hub/internal/generator"
	"github.com/kurihiro0119/repo-report-hub/internal/queue"
	"github.com/kurihiro0119/repo-report-hub/internal/storage"
	"github.com/kurihiro0119/repo-report-hub/internal/storage/postgres"
	"github.com/kurihiro0119/repo-report-hub/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL storage: %v", err)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite storage: %v", err)
		}
	}
	defer store.Close()

	// Initialize catalog (scans the reports directory on first run)
	cat, err := catalog.New(context.Background(), store, cfg.ReportsDir)
	if err != nil {
		log.Fatalf("Failed to initialize catalog: %v", err)
	}

	// Initialize generator and update queue
	gen := generator.NewCommandGenerator(cfg.GeneratorCommand, cfg.GeneratorWorkdir)
	q := queue.New(gen, cat)

	// Initialize handler
	handler := api.NewHandler(cat, q)

	// Setup routes
	router := api.SetupRoutes(handler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	fmt.Printf("Starting API server on %s\n", addr)
	fmt.Printf("Storage type: %s\n", cfg.StorageType)
	fmt.Printf("Reports directory: %s\n", cfg.ReportsDir)

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop accepting requests, then let the running
	// update job finish before exiting.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := q.Shutdown(ctx); err != nil {
		log.Printf("Queue shutdown: %v", err)
	}
}
