// Package assistant orchestrates one question/answer turn: resolve the
// chat, embed the question, retrieve supporting chunks, build the prompt,
// generate the answer and persist both sides of the exchange.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/conversation"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/corpus"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/llm"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

// DefaultTopK is how many chunks are retrieved per question when the
// configuration does not say otherwise.
const DefaultTopK = 3

// systemPromptFormat frames the retrieved chunks for the chat backend. The
// model is told to admit when the retrieved context does not answer the
// question rather than improvise.
const systemPromptFormat = `You are a helpful assistant answering questions about Metropolia University of Applied Sciences. Answer using only the context below. If the context does not contain the answer, say that you do not have enough information.

Context:

%s`

// Embedder encodes a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the k stored chunks nearest to a query vector.
type Retriever interface {
	TopK(ctx context.Context, query []float32, k int) ([]corpus.Chunk, error)
}

// Conversations is the transcript store the assistant reads and appends to.
type Conversations interface {
	GetOrCreateChat(ctx context.Context, chatID string) (uuid.UUID, error)
	AppendMessage(ctx context.Context, chatID uuid.UUID, sender, content string) (conversation.Message, error)
	History(ctx context.Context, chatID uuid.UUID) ([]conversation.Message, error)
}

// Answer is one completed turn.
type Answer struct {
	ChatID    uuid.UUID
	Text      string
	Retrieved []corpus.Chunk
}

// Assistant answers questions grounded in the ingested corpus.
type Assistant struct {
	embedder      Embedder
	retriever     Retriever
	conversations Conversations
	chat          llm.Client
	topK          int
	logger        log.Logger
}

// Config assembles an Assistant.
type Config struct {
	Embedder      Embedder
	Retriever     Retriever
	Conversations Conversations
	Chat          llm.Client

	// TopK is how many chunks to retrieve per question. Zero means
	// DefaultTopK.
	TopK int

	Logger log.Logger
}

// New creates an Assistant.
func New(cfg Config) *Assistant {
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assistant{
		embedder:      cfg.Embedder,
		retriever:     cfg.Retriever,
		conversations: cfg.Conversations,
		chat:          cfg.Chat,
		topK:          cfg.TopK,
		logger:        logger,
	}
}

// Ask runs one turn. The user message is persisted before generation, so a
// failed turn still leaves the question in the transcript. If the answer is
// generated but cannot be persisted, the answer is returned anyway; losing
// one assistant message from the transcript is preferable to discarding a
// computed answer.
func (a *Assistant) Ask(ctx context.Context, chatID, message string) (Answer, error) {
	id, err := a.conversations.GetOrCreateChat(ctx, chatID)
	if err != nil {
		return Answer{}, fmt.Errorf("resolve chat: %w", err)
	}

	if _, err := a.conversations.AppendMessage(ctx, id, conversation.SenderUser, message); err != nil {
		return Answer{}, fmt.Errorf("persist question: %w", err)
	}

	queryVec, err := a.embedder.Embed(ctx, message)
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}

	retrieved, err := a.retriever.TopK(ctx, queryVec, a.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	history, err := a.conversations.History(ctx, id)
	if err != nil {
		return Answer{}, fmt.Errorf("load history: %w", err)
	}

	text, err := a.chat.Chat(ctx, buildMessages(retrieved, history))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	if _, err := a.conversations.AppendMessage(ctx, id, conversation.SenderAssistant, text); err != nil {
		a.logger.Warn("answer generated but not persisted", "chat_id", id, "error", err)
	}

	return Answer{ChatID: id, Text: text, Retrieved: retrieved}, nil
}

// buildMessages assembles the prompt: one system message carrying the
// retrieved chunks, then the full transcript in order. The question being
// answered is the transcript's last entry, persisted just before.
func buildMessages(retrieved []corpus.Chunk, history []conversation.Message) []llm.Message {
	texts := make([]string, len(retrieved))
	for i, c := range retrieved {
		texts[i] = c.Text
	}
	contextBlock := strings.Join(texts, "\n\n")

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPromptFormat, contextBlock),
	})
	for _, m := range history {
		role := llm.RoleUser
		if m.Sender == conversation.SenderAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return messages
}
