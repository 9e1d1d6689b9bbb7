package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3"
	DefaultTimeout = 120 * time.Second

	// maxLineSize bounds a single streamed response line.
	maxLineSize = 1 << 20
)

// OllamaConfig holds configuration for the Ollama chat client.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model to use (default: llama3).
	Model string

	// Timeout covers the whole streamed exchange (default: 120s).
	Timeout time.Duration

	// Logger receives dropped-line diagnostics. Optional.
	Logger log.Logger
}

// Ollama generates answers through the Ollama /api/chat endpoint. Responses
// are requested as a stream of newline-delimited JSON fragments and
// assembled into one complete answer before returning.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
	logger  log.Logger
}

var _ Client = (*Ollama)(nil)

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// NewOllama creates an Ollama chat client.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return &Ollama{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		logger:  cfg.Logger,
	}
}

// ModelName returns the configured chat model.
func (o *Ollama) ModelName() string {
	return o.model
}

// Chat sends the messages and assembles the streamed reply. Fragments are
// concatenated in arrival order; lines that are not valid JSON are dropped
// without aborting the stream. The stream ends at the fragment marked done,
// or at EOF.
func (o *Ollama) Chat(ctx context.Context, messages []Message) (string, error) {
	jsonBody, err := json.Marshal(chatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var answer bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var fragment chatResponse
		if err := json.Unmarshal(line, &fragment); err != nil {
			o.logger.Debug("dropping malformed stream line", "error", err)
			continue
		}

		answer.WriteString(fragment.Message.Content)
		if fragment.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	return answer.String(), nil
}

// Ping checks connectivity against /api/tags without running inference.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		o.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}
