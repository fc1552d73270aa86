package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"secure-transfer/internal/db"
	"secure-transfer/internal/server"
)

func main() {
	addr := getenvDefault("ST_ADDR", ":8080")

	build := server.BuildInfo{
		Version: getenvDefault("ST_VERSION", "dev"),
		Commit:  getenvDefault("ST_COMMIT", "unknown"),
	}

	tokenSecret := getenvDefault("ST_TOKEN_SECRET", "")
	// Safety: refuse to start without a signing secret.
	if tokenSecret == "" {
		log.Printf("service=backend msg=%q", "missing ST_TOKEN_SECRET")
		os.Exit(1)
	}

	// Database
	dsn := getenvDefault("DATABASE_URL", "")
	dbConn, err := server.OpenDB(dsn)
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "db_connect_failed", err)
		os.Exit(1)
	}
	defer func() { _ = dbConn.Close() }()

	log.Printf("service=backend msg=%q", "running_migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		log.Printf("service=backend msg=%q err=%v", "migration_failed", err)
		os.Exit(1)
	}
	log.Printf("service=backend msg=%q", "migrations_complete")

	if getenvDefault("ST_SEED_DEMO_USERS", "") == "true" {
		if err := server.SeedDemoUsers(context.Background(), dbConn); err != nil {
			log.Printf("service=backend msg=%q err=%v", "seed_users_failed", err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q", "demo_users_seeded")
	}

	// Blob storage
	minioClient, bucket, err := server.NewMinioClient()
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "minio_connect_failed", err)
		os.Exit(1)
	}
	blobs := server.NewMinioBlobStore(minioClient, bucket)

	store := server.NewTransferStore(dbConn)
	users := server.NewUserDirectory(dbConn)

	// Blob storage sits behind a circuit breaker so a MinIO outage sheds
	// load quickly instead of tying up workers in timeouts.
	breaker := server.NewCircuitBreaker(5, 30*time.Second)

	engine := server.NewEngine(store, blobs, users, breaker, server.EngineConfig{
		Workers:        getenvInt("ST_WORKERS", 4),
		QueueSize:      getenvInt("ST_QUEUE_SIZE", 128),
		ProcessTimeout: getenvDuration("ST_PROCESS_TIMEOUT", 2*time.Minute),
	})

	// Background lifecycle: workers plus the stuck-transfer watchdog.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	engine.Start(bgCtx)
	go server.StartWatchdog(bgCtx, server.WatchdogConfig{
		Interval: getenvDuration("ST_WATCHDOG_INTERVAL", 30*time.Second),
		MaxAge:   getenvDuration("ST_PROCESSING_MAX_AGE", 5*time.Minute),
		Store:    store,
	})

	srv := server.New(server.Config{
		Addr:  addr,
		Build: build,
		Auth: server.AuthConfig{
			TokenSecret: tokenSecret,
			TokenTTL:    getenvDuration("ST_TOKEN_TTL", 12*time.Hour),
			Users:       users,
		},
		Engine: engine,
		DB:     dbConn,
		Blob:   blobs,
	})

	// Start the HTTP server in a background goroutine.
	// This allows us to listen for OS signals while the server runs.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=backend msg=%q addr=%s version=%s commit=%s",
			"starting", addr, build.Version, build.Commit)
		errCh <- srv.Start()
	}()

	// Graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (container stop).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("service=backend msg=%q signal=%s", "shutting_down", sig.String())
		// Give the server 5 seconds to finish in-flight requests.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=backend msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		// Stop workers and wait for in-flight pipelines to settle.
		bgCancel()
		engine.Wait()
		log.Printf("service=backend msg=%q", "shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "server_error", err)
			os.Exit(1)
		}
	}
}

// getenvDefault reads an environment variable and returns a default value if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("service=backend msg=%q key=%s value=%q", "invalid_int_env", key, v)
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("service=backend msg=%q key=%s value=%q", "invalid_duration_env", key, v)
		return def
	}
	return d
}
