// Package conversation provides the durable chat and message store.
//
// A chat is an ordered transcript of user and assistant messages. Each
// message is written under a lock on its chat row and carries a monotonic
// sequence number, so the transcript has one unconditional total order even
// when concurrent appends land in the same clock_timestamp() microsecond.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/GrigoriiTishchuk/AI-for-Metropolia/internal/log"
)

// ErrChatNotFound indicates a message write against a chat id that has no
// chat row.
var ErrChatNotFound = errors.New("chat not found")

// Senders of a message. Stored verbatim; History maps them onto chat-backend
// roles one-to-one.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one transcript entry. Seq is assigned by the database and
// strictly increases in append order.
type Message struct {
	ID        uuid.UUID
	Seq       int64
	ChatID    uuid.UUID
	Sender    string
	Content   string
	CreatedAt time.Time
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages chats and their messages.
type Store struct {
	db     DB
	logger log.Logger
}

// New creates a Store.
func New(db DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// GetOrCreateChat resolves a client-supplied chat id to an existing chat, or
// creates a fresh one. An empty, malformed, or unknown id always yields a
// newly minted chat; the caller learns the effective id from the return
// value. Unknown ids are never adopted as-is, so clients cannot choose their
// own identifiers.
func (s *Store) GetOrCreateChat(ctx context.Context, chatID string) (uuid.UUID, error) {
	if chatID != "" {
		id, err := uuid.Parse(chatID)
		if err == nil {
			var exists bool
			err := s.db.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM chats WHERE chat_id = $1)`, id,
			).Scan(&exists)
			if err != nil {
				return uuid.Nil, fmt.Errorf("look up chat: %w", err)
			}
			if exists {
				return id, nil
			}
		}
	}

	id := uuid.New()
	if _, err := s.db.Exec(ctx,
		`INSERT INTO chats (chat_id) VALUES ($1)`, id,
	); err != nil {
		return uuid.Nil, fmt.Errorf("create chat: %w", err)
	}
	s.logger.Debug("created chat", "chat_id", id)
	return id, nil
}

// AppendMessage durably appends one message to a chat and returns it. The
// chat row is locked for the duration of the write, serializing appends to
// the same chat.
func (s *Store) AppendMessage(ctx context.Context, chatID uuid.UUID, sender, content string) (Message, error) {
	if sender != SenderUser && sender != SenderAssistant {
		return Message{}, fmt.Errorf("invalid sender %q", sender)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT chat_id FROM chats WHERE chat_id = $1 FOR UPDATE`, chatID,
	).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	if err != nil {
		return Message{}, fmt.Errorf("lock chat: %w", err)
	}

	msg := Message{
		ID:     uuid.New(),
		ChatID: chatID,
		Sender: sender,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (message_id, chat_id, sender, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING seq, content, created_at`,
		msg.ID, msg.ChatID, msg.Sender, content,
	).Scan(&msg.Seq, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// History returns every message of a chat in insertion order, oldest first.
// A chat with no messages yields an empty history; an unknown chat id does
// too, since history and chat existence are checked at append time, not
// read time.
func (s *Store) History(ctx context.Context, chatID uuid.UUID) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT message_id, seq, chat_id, sender, content, created_at
		 FROM messages
		 WHERE chat_id = $1
		 ORDER BY seq`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Seq, &m.ChatID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return history, nil
}
