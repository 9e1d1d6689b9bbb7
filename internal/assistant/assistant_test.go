package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/conversation"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/corpus"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/llm"
	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 2}, nil
}

type fakeRetriever struct {
	chunks []corpus.Chunk
	err    error
	gotK   int
}

func (f *fakeRetriever) TopK(ctx context.Context, query []float32, k int) ([]corpus.Chunk, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

// memConversations is an in-memory transcript store.
type memConversations struct {
	chats     map[uuid.UUID][]conversation.Message
	appendErr map[string]error // keyed by sender
	clock     time.Time
}

func newMemConversations() *memConversations {
	return &memConversations{
		chats:     make(map[uuid.UUID][]conversation.Message),
		appendErr: make(map[string]error),
		clock:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memConversations) GetOrCreateChat(ctx context.Context, chatID string) (uuid.UUID, error) {
	if chatID != "" {
		if id, err := uuid.Parse(chatID); err == nil {
			if _, ok := m.chats[id]; ok {
				return id, nil
			}
		}
	}
	id := uuid.New()
	m.chats[id] = nil
	return id, nil
}

func (m *memConversations) AppendMessage(ctx context.Context, chatID uuid.UUID, sender, content string) (conversation.Message, error) {
	if err := m.appendErr[sender]; err != nil {
		return conversation.Message{}, err
	}
	if _, ok := m.chats[chatID]; !ok {
		return conversation.Message{}, conversation.ErrChatNotFound
	}
	m.clock = m.clock.Add(time.Millisecond)
	msg := conversation.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Sender:    sender,
		Content:   content,
		CreatedAt: m.clock,
	}
	m.chats[chatID] = append(m.chats[chatID], msg)
	return msg, nil
}

func (m *memConversations) History(ctx context.Context, chatID uuid.UUID) ([]conversation.Message, error) {
	return m.chats[chatID], nil
}

type fakeChat struct {
	answer string
	err    error
	got    []llm.Message
}

func (f *fakeChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	f.got = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func testChunks() []corpus.Chunk {
	return []corpus.Chunk{
		{ID: 1, SourceURL: "https://example.fi/admissions", ChunkIndex: 0, Text: "Applications open in January."},
		{ID: 2, SourceURL: "https://example.fi/admissions", ChunkIndex: 1, Text: "The deadline is in March."},
	}
}

func newTestAssistant(conv Conversations, retriever *fakeRetriever, chat *fakeChat) *Assistant {
	return New(Config{
		Embedder:      &fakeEmbedder{},
		Retriever:     retriever,
		Conversations: conv,
		Chat:          chat,
		Logger:        log.NewNop(),
	})
}

func TestAskNewChatPersistsBothTurns(t *testing.T) {
	conv := newMemConversations()
	chat := &fakeChat{answer: "Applications open in January."}
	retriever := &fakeRetriever{chunks: testChunks()}
	a := newTestAssistant(conv, retriever, chat)

	answer, err := a.Ask(context.Background(), "", "when do applications open?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if answer.ChatID == uuid.Nil {
		t.Fatal("answer has no chat id")
	}
	if answer.Text != chat.answer {
		t.Errorf("answer text = %q, want %q", answer.Text, chat.answer)
	}
	if len(answer.Retrieved) != 2 {
		t.Errorf("answer carries %d chunks, want 2", len(answer.Retrieved))
	}

	transcript := conv.chats[answer.ChatID]
	if len(transcript) != 2 {
		t.Fatalf("transcript has %d messages, want 2", len(transcript))
	}
	if transcript[0].Sender != conversation.SenderUser {
		t.Errorf("first message sender = %q, want user", transcript[0].Sender)
	}
	if transcript[1].Sender != conversation.SenderAssistant {
		t.Errorf("second message sender = %q, want assistant", transcript[1].Sender)
	}
	if transcript[1].Content != chat.answer {
		t.Errorf("persisted answer = %q, want %q", transcript[1].Content, chat.answer)
	}
}

func TestAskPromptCarriesChunksAndHistory(t *testing.T) {
	conv := newMemConversations()
	chatID, _ := conv.GetOrCreateChat(context.Background(), "")
	conv.AppendMessage(context.Background(), chatID, conversation.SenderUser, "what is metropolia?")
	conv.AppendMessage(context.Background(), chatID, conversation.SenderAssistant, "a university of applied sciences.")

	chat := &fakeChat{answer: "In March."}
	retriever := &fakeRetriever{chunks: testChunks()}
	a := newTestAssistant(conv, retriever, chat)

	if _, err := a.Ask(context.Background(), chatID.String(), "and the deadline?"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if len(chat.got) != 4 {
		t.Fatalf("prompt has %d messages, want 4 (system + 3 turns)", len(chat.got))
	}
	system := chat.got[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message role = %q, want system", system.Role)
	}
	for _, c := range testChunks() {
		if !strings.Contains(system.Content, c.Text) {
			t.Errorf("system prompt is missing chunk %q", c.Text)
		}
	}
	if !strings.Contains(system.Content, "Applications open in January.\n\nThe deadline is in March.") {
		t.Error("chunks are not joined by blank lines in order")
	}

	last := chat.got[len(chat.got)-1]
	if last.Role != llm.RoleUser || last.Content != "and the deadline?" {
		t.Errorf("last prompt message = {%s, %q}, want the current question", last.Role, last.Content)
	}
	if chat.got[2].Role != llm.RoleAssistant {
		t.Errorf("history assistant turn mapped to role %q", chat.got[2].Role)
	}
}

func TestAskUnknownChatIDGetsFreshChat(t *testing.T) {
	conv := newMemConversations()
	chat := &fakeChat{answer: "ok"}
	a := newTestAssistant(conv, &fakeRetriever{}, chat)

	unknown := uuid.New()
	answer, err := a.Ask(context.Background(), unknown.String(), "hello")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.ChatID == unknown {
		t.Error("unknown chat id was adopted as-is")
	}
}

func TestAskUsesConfiguredTopK(t *testing.T) {
	conv := newMemConversations()
	retriever := &fakeRetriever{}
	a := New(Config{
		Embedder:      &fakeEmbedder{},
		Retriever:     retriever,
		Conversations: conv,
		Chat:          &fakeChat{answer: "ok"},
		TopK:          7,
		Logger:        log.NewNop(),
	})

	if _, err := a.Ask(context.Background(), "", "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if retriever.gotK != 7 {
		t.Errorf("retriever asked for k=%d, want 7", retriever.gotK)
	}
}

func TestAskDefaultTopK(t *testing.T) {
	conv := newMemConversations()
	retriever := &fakeRetriever{}
	a := newTestAssistant(conv, retriever, &fakeChat{answer: "ok"})

	if _, err := a.Ask(context.Background(), "", "q"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if retriever.gotK != DefaultTopK {
		t.Errorf("retriever asked for k=%d, want %d", retriever.gotK, DefaultTopK)
	}
}

func TestAskAnswerSurvivesPersistFailure(t *testing.T) {
	conv := newMemConversations()
	conv.appendErr[conversation.SenderAssistant] = errors.New("database gone")
	chat := &fakeChat{answer: "still here"}
	a := newTestAssistant(conv, &fakeRetriever{chunks: testChunks()}, chat)

	answer, err := a.Ask(context.Background(), "", "q")
	if err != nil {
		t.Fatalf("Ask = %v, want answer despite persist failure", err)
	}
	if answer.Text != "still here" {
		t.Errorf("answer text = %q, want %q", answer.Text, "still here")
	}
}

func TestAskFailsWhenQuestionCannotBePersisted(t *testing.T) {
	conv := newMemConversations()
	conv.appendErr[conversation.SenderUser] = errors.New("database gone")
	a := newTestAssistant(conv, &fakeRetriever{}, &fakeChat{answer: "x"})

	if _, err := a.Ask(context.Background(), "", "q"); err == nil {
		t.Fatal("Ask succeeded despite failing to persist the question")
	}
}

func TestAskGenerationFailure(t *testing.T) {
	conv := newMemConversations()
	chat := &fakeChat{err: errors.New("backend down")}
	a := newTestAssistant(conv, &fakeRetriever{chunks: testChunks()}, chat)

	if _, err := a.Ask(context.Background(), "", "q"); err == nil {
		t.Fatal("Ask succeeded despite generation failure")
	}
}

func TestAskRetrievalFailure(t *testing.T) {
	conv := newMemConversations()
	retriever := &fakeRetriever{err: errors.New("index gone")}
	a := newTestAssistant(conv, retriever, &fakeChat{answer: "x"})

	if _, err := a.Ask(context.Background(), "", "q"); err == nil {
		t.Fatal("Ask succeeded despite retrieval failure")
	}
}
