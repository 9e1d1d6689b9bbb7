package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/api"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/assistant"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/config"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/conversation"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/corpus"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/database"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/embed"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/llm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the assistant together and serves it until SIGINT/SIGTERM.
func runServe() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	embedder := embed.NewOllama(embed.Config{
		BaseURL:    cfg.OllamaHost,
		Model:      cfg.EmbedderModel,
		Dimensions: config.VectorDimension,
	})
	chatClient := llm.NewOllama(llm.OllamaConfig{
		BaseURL: cfg.OllamaHost,
		Model:   cfg.ChatModel,
		Timeout: cfg.RequestTimeout,
		Logger:  logger.With("component", "llm"),
	})

	asker := assistant.New(assistant.Config{
		Embedder:      embedder,
		Retriever:     corpus.New(pool, config.VectorDimension, logger.With("component", "corpus")),
		Conversations: conversation.New(pool, logger.With("component", "conversation")),
		Chat:          chatClient,
		TopK:          cfg.TopK,
		Logger:        logger.With("component", "assistant"),
	})

	server := api.NewServer(asker, pool, logger.With("component", "api"))
	logger.Info("assistant ready",
		"listen_addr", cfg.ListenAddr,
		"chat_model", cfg.ChatModel,
		"embedder_model", cfg.EmbedderModel,
		"top_k", cfg.TopK,
	)
	return server.Run(ctx, cfg.ListenAddr)
}
