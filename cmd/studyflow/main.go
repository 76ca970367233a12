// Package main provides the studyflow CLI for ingesting documents and studying them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/studyflow/internal/app"
	"github.com/bull/studyflow/internal/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "studyflow",
	Short: "Turn documents into flashcards, quizzes and study sessions",
	Long: `CLI tool for ingesting study documents and reviewing them with spaced repetition.

Environment variables:
  OPENAI_API_KEY               OpenAI API key (optional, offline models are used without it)
  GITHUB_TOKEN                 GitHub token for higher rate limits (optional)
  STUDYFLOW_DATA_DIR           Where documents and metadata are stored
  STUDYFLOW_INDEX_BACKEND      memory or qdrant
  QDRANT_HOST, QDRANT_PORT     Qdrant connection when the qdrant backend is selected`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "studyflow.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openApp loads configuration and builds the application. Callers close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger()
	slog.SetDefault(logger)

	a, err := app.New(cmd.Context(), cfg, app.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}
