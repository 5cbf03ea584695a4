package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/halvard/minne/api"
	"github.com/halvard/minne/db"
	"github.com/halvard/minne/internal/chat"
	"github.com/halvard/minne/internal/chunk"
	"github.com/halvard/minne/internal/config"
	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/note"
	"github.com/halvard/minne/internal/ollama"
	"github.com/halvard/minne/internal/retrieval"
	"github.com/halvard/minne/internal/user"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe loads configuration, runs migrations, wires the application, and
// serves HTTP until interrupted.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: logLevel(), JSON: true})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	client := ollama.NewClient(cfg.OllamaHost,
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.OllamaTimeout}),
		ollama.WithRetry(ollama.RetryConfig{
			MaxAttempts: cfg.EmbedRetries,
			BaseDelay:   cfg.EmbedRetryBase,
			MaxDelay:    ollama.DefaultRetryConfig().MaxDelay,
		}),
		ollama.WithRateLimit(cfg.EmbedRateLimit),
		ollama.WithLogger(logger.With("component", "ollama")),
	)

	users, err := user.NewStore(pool)
	if err != nil {
		return fmt.Errorf("creating user store: %w", err)
	}
	notes, err := note.NewStore(pool, logger.With("component", "notes"))
	if err != nil {
		return fmt.Errorf("creating note store: %w", err)
	}
	searches, err := retrieval.NewStore(pool)
	if err != nil {
		return fmt.Errorf("creating retrieval store: %w", err)
	}

	splitter := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	pipeline := note.NewPipeline(notes, users, client, splitter, cfg.EmbedConcurrency, cfg.EmbedDimension, logger.With("component", "pipeline"))
	retriever := retrieval.NewRetriever(searches, client, cfg.MaxDistance, cfg.RetrievalLimit, logger.With("component", "retrieval"))
	chatSvc := chat.NewService(users, retriever, client, logger.With("component", "chat"))

	server := api.NewServer(pool, users, notes, pipeline, chatSvc, logger.With("component", "api"))
	return server.Run(ctx, addr)
}

// logLevel reads MINNE_LOG_LEVEL from the environment; info when unset.
func logLevel() slog.Level {
	switch os.Getenv("MINNE_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
