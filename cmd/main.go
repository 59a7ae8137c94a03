// Package main provides the entry point for the telefile bot service.
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

	"github.com/telefile/telefile/internal/api/handlers"
	"github.com/telefile/telefile/internal/api/router"
	"github.com/telefile/telefile/internal/config"
	"github.com/telefile/telefile/internal/database"
	"github.com/telefile/telefile/internal/services/bot"
	"github.com/telefile/telefile/internal/services/extractor"
	"github.com/telefile/telefile/internal/services/publisher"
	"github.com/telefile/telefile/internal/services/resolver"
	"github.com/telefile/telefile/internal/services/transfer"
	"github.com/telefile/telefile/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting telefile service")

	// Initialize database
	db, err := database.NewMongoDB(&cfg.MongoDB)
	if err != nil {
		logger.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	// Initialize the transfer pipeline
	httpClient := &http.Client{}
	extractorClient := extractor.NewYtDlpClient(cfg.Download.YtDlpBinary, cfg.Download.ExtractTimeout)
	publishClient := publisher.NewClient(httpClient, &cfg.GoFile)
	sourceResolver := resolver.NewResolver(extractorClient, httpClient, &cfg.Download)
	operation := transfer.NewOperation(httpClient, publishClient, &cfg.Download)
	orchestrator := transfer.NewOrchestrator(sourceResolver, operation, &cfg.Download)

	// Initialize the Telegram bot
	fileBot, err := bot.New(cfg, db, orchestrator, publishClient)
	if err != nil {
		logger.Fatalf("Failed to initialize Telegram bot: %v", err)
	}

	// Initialize handlers and router
	healthHandler := handlers.NewHealthHandler(db)
	statsHandler := handlers.NewStatsHandler(db)
	r := router.NewRouter(cfg, healthHandler, statsHandler)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	// Start the ops HTTP server
	srv := r.Server()
	go func() {
		logger.Infof("Starting server on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Start the bot
	go func() {
		if err := fileBot.Run(runCtx); err != nil && err != context.Canceled {
			logger.Errorf("Bot stopped: %v", err)
		}
	}()

	// Sweep abandoned staging files
	go sweepStaging(runCtx, &cfg.Download)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancelRun()

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Failed to stop HTTP server: %v", err)
	}

	// Close database connection
	if err := db.Close(ctx); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	}

	logger.Info("Shutdown complete")
}

// sweepStaging periodically deletes staging files older than the configured
// age. Transfers clean up after themselves; the sweeper only catches files
// orphaned by crashes.
func sweepStaging(ctx context.Context, cfg *config.DownloadConfig) {
	ticker := time.NewTicker(cfg.StagingMaxAge / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := os.ReadDir(cfg.TempDir)
			if err != nil {
				utils.LogWarn(ctx, "Failed to read staging dir", utils.Fields{"error": err.Error()})
				continue
			}
			cutoff := time.Now().Add(-cfg.StagingMaxAge)
			removed := 0
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				info, err := entry.Info()
				if err != nil || info.ModTime().After(cutoff) {
					continue
				}
				if err := os.Remove(filepath.Join(cfg.TempDir, entry.Name())); err == nil {
					removed++
				}
			}
			if removed > 0 {
				utils.LogInfo(ctx, "Swept staging files", utils.Fields{"removed": removed})
			}
		}
	}
}
