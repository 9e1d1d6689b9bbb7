// Package ingest drives the offline corpus build: fetch a page, extract its
// readable text, split it into overlapping chunks, embed each chunk and
// store the batch.
package ingest

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/corpus"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/extract"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

// Fetcher retrieves the raw HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Discoverer lists the page URLs of a site.
type Discoverer interface {
	Discover(ctx context.Context, baseURL string) ([]string, error)
}

// Splitter cuts text into overlapping chunks.
type Splitter interface {
	Split(text string) []string
}

// Embedder encodes texts into fixed-dimension vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter persists one page's chunks atomically.
type ChunkWriter interface {
	PutChunks(ctx context.Context, chunks []corpus.Chunk) error
}

// Report summarizes one site ingestion run. A URL appears in Failed when
// any stage of its pipeline errored; its chunks are then absent entirely.
type Report struct {
	Discovered int
	Ingested   int
	Skipped    int
	Chunks     int
	Failed     map[string]error
}

// Pipeline ingests pages into the corpus. A single failing page never
// aborts a site run; failures are collected per URL instead.
type Pipeline struct {
	fetcher    Fetcher
	discoverer Discoverer
	splitter   Splitter
	embedder   Embedder
	writer     ChunkWriter
	limiter    *rate.Limiter
	logger     log.Logger
}

// Config assembles a Pipeline.
type Config struct {
	Fetcher    Fetcher
	Discoverer Discoverer
	Splitter   Splitter
	Embedder   Embedder
	Writer     ChunkWriter

	// RequestsPerSecond throttles page fetches across the whole run.
	// Zero or negative disables throttling.
	RequestsPerSecond float64

	Logger log.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{
		fetcher:    cfg.Fetcher,
		discoverer: cfg.Discoverer,
		splitter:   cfg.Splitter,
		embedder:   cfg.Embedder,
		writer:     cfg.Writer,
		limiter:    limiter,
		logger:     logger,
	}
}

// IngestURL runs the full pipeline for one page and returns how many chunks
// were stored. A page with no extractable text is skipped: zero chunks,
// no error. Chunk indexes are assigned contiguously from 0 in document
// order, and the page's chunks become visible all at once or not at all.
func (p *Pipeline) IngestURL(ctx context.Context, url string) (int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	html, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}

	text := extract.Text(html, url)
	if text == "" {
		p.logger.Debug("no readable text, skipping", "url", url)
		return 0, nil
	}

	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, nil
	}

	vectors, err := p.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embed %s: %w", url, err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("embed %s: got %d vectors for %d chunks", url, len(vectors), len(pieces))
	}

	chunks := make([]corpus.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = corpus.Chunk{
			SourceURL:  url,
			ChunkIndex: i,
			Text:       piece,
			Embedding:  vectors[i],
		}
	}

	if err := p.writer.PutChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store %s: %w", url, err)
	}

	p.logger.Info("ingested page", "url", url, "chunks", len(chunks))
	return len(chunks), nil
}

// IngestURLs ingests an explicit list of pages. A failing page is recorded
// in the report and the run continues with the next page; only context
// cancellation aborts the run.
func (p *Pipeline) IngestURLs(ctx context.Context, urls []string) (Report, error) {
	report := Report{
		Discovered: len(urls),
		Failed:     make(map[string]error),
	}

	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := p.IngestURL(ctx, url)
		if err != nil {
			p.logger.Warn("page ingestion failed", "url", url, "error", err)
			report.Failed[url] = err
			continue
		}
		if n == 0 {
			report.Skipped++
			continue
		}
		report.Ingested++
		report.Chunks += n
	}
	return report, nil
}

// IngestSite discovers a site's pages and ingests each one. Only discovery
// failure aborts the run.
func (p *Pipeline) IngestSite(ctx context.Context, baseURL string) (Report, error) {
	urls, err := p.discoverer.Discover(ctx, baseURL)
	if err != nil {
		return Report{Failed: map[string]error{}}, fmt.Errorf("discover %s: %w", baseURL, err)
	}

	report, err := p.IngestURLs(ctx, urls)
	if err != nil {
		return report, err
	}

	p.logger.Info("site ingestion finished",
		"base_url", baseURL,
		"discovered", report.Discovered,
		"ingested", report.Ingested,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"chunks", report.Chunks,
	)
	return report, nil
}

var _ Fetcher = (*extract.Fetcher)(nil)
