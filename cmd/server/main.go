/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Capital Works Portal server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize SQLite store
  3. Wire the works service, authenticator and backup manager
  4. Start the backup scheduler (if enabled)
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file (optional; CWP_* environment variables always apply)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the backup scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with defaults (./data/works.db, port 8080)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Run with in-memory database on a different port
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
  - cmd/create-admin: Bootstrap the first admin account
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rkv/capital-works/api"
	"github.com/rkv/capital-works/auth"
	"github.com/rkv/capital-works/backup"
	"github.com/rkv/capital-works/config"
	"github.com/rkv/capital-works/store/sqlite"
	"github.com/rkv/capital-works/works"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire dependencies
	tokens := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL())
	limiter := auth.NewRateLimiter(cfg.RateLimit.UsernameLimit, cfg.RateLimit.IPLimit, cfg.RateLimit.Window)
	authn := auth.NewAuthenticator(store, tokens, limiter)

	handler := api.NewHandler(works.NewService(store), store, store, authn)
	handler.Pinger = store
	handler.Portal = cfg.Portal
	handler.BcryptCost = cfg.Security.BcryptCost

	backups := backup.NewManager(store, cfg.Backup.Dir, cfg.Backup.Retention)
	handler.Backups = backups

	scheduler := backup.NewScheduler(backups, cfg.Backup.Interval)
	scheduler.Enabled = cfg.Backup.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	proxies, err := cfg.Server.Proxies()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins, proxies)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on %s", server.Addr)
		log.Printf("📊 Database: %s, backups: %s", cfg.Database.Path, cfg.Backup.Dir)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
