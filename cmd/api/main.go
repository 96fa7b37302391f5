package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/voxlab/speechforge/internal/api"
	"github.com/voxlab/speechforge/internal/cache"
	"github.com/voxlab/speechforge/internal/config"
	"github.com/voxlab/speechforge/internal/db"
	"github.com/voxlab/speechforge/internal/pipeline"
	"github.com/voxlab/speechforge/internal/queue"
	"github.com/voxlab/speechforge/internal/storage"
	"github.com/voxlab/speechforge/internal/synth"
	"github.com/voxlab/speechforge/internal/tempfiles"
)

func main() {
	log.Println("Starting SpeechForge API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Fingerprint cache shares the Redis instance with the queue
	fpCache, err := cache.NewFingerprint(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect to fingerprint cache: %v", err)
	}
	defer fpCache.Close()

	// Temp resource manager + leak sweep
	temps, err := tempfiles.NewManager(cfg.TempDir, cfg.TempRetention, cfg.TempSweepInterval)
	if err != nil {
		log.Fatalf("Failed to init temp dir: %v", err)
	}

	// Blob storage
	stor, err := storage.New(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		PublicBaseURL: cfg.S3PublicBaseURL,
		DiskThreshold: cfg.UploadDiskThreshold,
		StagingDir:    filepath.Join(cfg.TempDir, "staging"),
	})
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.TempDir, "staging"), 0o755); err != nil {
		log.Fatalf("Failed to create staging dir: %v", err)
	}
	log.Println("Initialized blob storage")

	// Synthesis backend client
	synthClient := synth.NewClient(cfg.SynthAPIURL, cfg.SynthRefAPIURL)
	log.Printf("Synthesis backend: %s (reference: %s)", cfg.SynthAPIURL, cfg.SynthRefAPIURL)

	// The pipeline ties store, cache, queue, backend, uploader and temp
	// manager together; no globals.
	p := pipeline.New(pipeline.Config{
		Store:             database,
		Cache:             fpCache,
		Queue:             q,
		Synth:             synthClient,
		Uploader:          stor,
		Temps:             temps,
		MaxTextLength:     cfg.MaxTextLength,
		ShortTextTimeout:  cfg.ShortTextTimeout,
		LongTextThreshold: cfg.LongTextThreshold,
		WatchdogTimeout:   cfg.WatchdogTimeout,
	})

	// Create API handler
	handler := api.NewHandler(database, p, stor, temps)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start the serialized worker and the temp sweep in the background
	workerCtx, workerCancel := context.WithCancel(context.Background())
	go p.Run(workerCtx)
	go temps.Run(workerCtx)

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop the worker and sweeper
	workerCancel()

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
