package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/config"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/corpus"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/crawler"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/database"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/embed"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/extract"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/ingest"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/textsplit"
)

var ingestSite string

var ingestCmd = &cobra.Command{
	Use:   "ingest [url...]",
	Short: "Build the retrieval corpus from web pages",
	Long: `ingest extracts the readable text of pages, chunks and embeds it, and
stores the result in the corpus.

Pages are either listed explicitly as arguments, or discovered from a site's
sitemap with --site. Site discovery honors robots.txt; disallowed pages are
skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestSite == "" && len(args) == 0 {
			return errors.New("nothing to ingest: pass page URLs or --site")
		}
		if ingestSite != "" && len(args) > 0 {
			return errors.New("--site and explicit URLs are mutually exclusive")
		}
		return runIngest(ingestSite, args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSite, "site", "", "discover pages from this site's sitemap")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(site string, urls []string) error {
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

	splitter, err := textsplit.NewWithConfig(cfg.ChunkSize, cfg.ChunkOverlap, nil)
	if err != nil {
		return fmt.Errorf("configuring splitter: %w", err)
	}

	pipeline := ingest.New(ingest.Config{
		Fetcher:    extract.NewFetcher(cfg.RequestTimeout, cfg.UserAgent),
		Discoverer: crawler.New(cfg.RequestTimeout, cfg.UserAgent, logger.With("component", "crawler")),
		Splitter:   splitter,
		Embedder: embed.NewOllama(embed.Config{
			BaseURL:    cfg.OllamaHost,
			Model:      cfg.EmbedderModel,
			Dimensions: config.VectorDimension,
		}),
		Writer:            corpus.New(pool, config.VectorDimension, logger.With("component", "corpus")),
		RequestsPerSecond: cfg.CrawlRate,
		Logger:            logger.With("component", "ingest"),
	})

	var report ingest.Report
	if site != "" {
		report, err = pipeline.IngestSite(ctx, site)
		if err != nil {
			return err
		}
	} else {
		report, err = pipeline.IngestURLs(ctx, urls)
		if err != nil {
			return err
		}
	}

	fmt.Printf("discovered %d pages: %d ingested, %d skipped, %d failed, %d chunks stored\n",
		report.Discovered, report.Ingested, report.Skipped, len(report.Failed), report.Chunks)

	if len(report.Failed) > 0 {
		failed := make([]string, 0, len(report.Failed))
		for url := range report.Failed {
			failed = append(failed, url)
		}
		sort.Strings(failed)
		for _, url := range failed {
			fmt.Printf("failed: %s: %v\n", url, report.Failed[url])
		}
		return fmt.Errorf("%d of %d pages failed", len(report.Failed), report.Discovered)
	}
	return nil
}
