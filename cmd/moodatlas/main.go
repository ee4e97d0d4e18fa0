package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moodatlas/internal/config"
	"moodatlas/internal/pipeline"
	"moodatlas/internal/service"
	_ "moodatlas/internal/storage/sqlite"
)

var (
	configPath = flag.String("config", "config.toml", "Path to configuration file")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal: %v\n", sig)
		fmt.Println("Shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(ctx context.Context) error {
	fmt.Printf("Loading configuration from: %s\n", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		fmt.Println("Config file not found, using defaults")
		cfg = config.Default()
	}

	var fetcher pipeline.Fetcher
	if cfg.Source.URL != "" {
		fetcher = newHTTPFetcher(cfg.Source.URL, config.MustDuration(cfg.Source.Timeout))
	} else {
		fmt.Println("No source URL configured, running without ingestion")
	}

	svc, err := service.Build(cfg, service.Collaborators{
		Fetcher:    fetcher,
		Extractor:  &passthroughExtractor{},
		Classifier: newLexiconClassifier(),
	})
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}

	fmt.Printf("Starting service: %s\n", svc.Name())
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	<-ctx.Done()
	fmt.Println("\nInitiating shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := svc.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	fmt.Println("Service stopped successfully")
	return nil
}
