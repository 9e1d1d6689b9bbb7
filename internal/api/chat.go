package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/assistant"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

// maxRequestBody bounds the chat request body.
const maxRequestBody = 1 << 20

// Asker answers one chat turn.
type Asker interface {
	Ask(ctx context.Context, chatID, message string) (assistant.Answer, error)
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	asker  Asker
	logger log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(asker Asker, logger log.Logger) *ChatHandler {
	return &ChatHandler{asker: asker, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// ChatRequest is the chat endpoint's request body. ChatID is optional; when
// absent or unknown the response carries a freshly created id.
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
}

// ChatResponse is the chat endpoint's response body. RetrievedChunks holds
// the verbatim text of each chunk that grounded the answer, nearest first.
type ChatResponse struct {
	ChatID          string   `json:"chat_id"`
	Answer          string   `json:"answer"`
	RetrievedChunks []string `json:"retrieved_chunks"`
}

// handleChat runs one question/answer turn.
//
// Request body: {"message": "...", "chat_id": "..."}
// Response: {"chat_id": "...", "answer": "...", "retrieved_chunks": [...]}
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds 1 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}

	answer, err := h.asker.Ask(r.Context(), req.ChatID, req.Message)
	if err != nil {
		h.logger.Error("chat turn failed",
			"error", err,
			"request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "chat_failed", "failed to answer the question")
		return
	}

	// Non-nil so an empty retrieval serializes as [], not null.
	chunks := make([]string, 0, len(answer.Retrieved))
	for _, c := range answer.Retrieved {
		chunks = append(chunks, c.Text)
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ChatID:          answer.ChatID.String(),
		Answer:          answer.Text,
		RetrievedChunks: chunks,
	})
}
