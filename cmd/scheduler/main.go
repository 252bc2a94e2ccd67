package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feedsift/internal/agent/classify"
	"github.com/feedsift/internal/agent/ingest"
	"github.com/feedsift/internal/ai"
	"github.com/feedsift/internal/classifier"
	"github.com/feedsift/internal/config"
	"github.com/feedsift/internal/scheduler"
	"github.com/feedsift/internal/source"
	"github.com/feedsift/internal/source/rss"
	"github.com/feedsift/internal/storage/sqlite"
	"github.com/feedsift/pkg/logger"
	"github.com/feedsift/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedsift-scheduler",
		Short: "Background daemon for the feedsift triage pipeline",
		Long: `Runs the scheduled feed sync and classification jobs.
This daemon should be run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting feedsift scheduler")

	// Initialize storage
	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Health check server
	go startHealthServer(cfg.Scheduler.HealthPort)

	// Initialize rate limiter
	limiter := ratelimit.NewDefaultLimiter()

	// Initialize AI client and classifier
	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)
	cls := classifier.NewAnthropic(aiClient, log)

	// Initialize feed sources
	sourceManager := source.NewManager()
	for _, src := range rss.NewMultiple(cfg.Feeds, limiter, log) {
		sourceManager.Register(src)
	}

	// Create agents
	ingestAgent := ingest.NewAgent(sourceManager, repo, log)
	classifyAgent := classify.NewAgent(repo, cls, cfg.Pipeline.BatchSize, log)

	// Create and start the scheduler
	sched := scheduler.New(ingestAgent, classifyAgent, repo, cfg.Scheduler.ClassifyCron, log)
	if err := sched.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler")
	sched.Stop()

	return nil
}

// startHealthServer starts a simple HTTP server for health checks
func startHealthServer(port string) {
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
