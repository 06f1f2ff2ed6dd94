package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/romangod6/site-mapper/config"
	"github.com/romangod6/site-mapper/internal/api"
	"github.com/romangod6/site-mapper/internal/generator"
	"github.com/romangod6/site-mapper/internal/storage"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage and its tables
	store, err := storage.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Each run opens its own run logger.
	gen := generator.New(cfg, store, nil)

	server := api.NewServer(cfg.Server.Port, store, gen)

	// Setup periodic regeneration
	ticker := time.NewTicker(cfg.GetCrawlDuration())
	defer ticker.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			select {
			case <-ticker.C:
				log.Println("Starting periodic sitemap generation...")
				regenerate(ctx, gen)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Start the API server
	go func() {
		log.Printf("Starting API server on port %d", cfg.Server.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	// Wait for shutdown
	waitForShutdown(cancel, server)
}

func regenerate(ctx context.Context, gen *generator.Generator) {
	run, err := gen.Run(ctx, generator.Request{})
	if err != nil {
		log.Printf("Periodic generation failed: %v", err)
		return
	}
	log.Printf("Periodic generation completed: %d urls written to %s (run %s)", run.FileCount, run.Output, run.ID)
}

func waitForShutdown(cancel context.CancelFunc, server *api.Server) {
	// Handle system signals for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down...")
	cancel()

	// Graceful server shutdown
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
	log.Println("Server shut down gracefully")
}
