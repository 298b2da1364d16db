package contract

import (
	"context"
	"errors"
	"time"

	"chat-state-be/internal/entity"
)

// ErrBackendUnavailable wraps every connectivity or timeout failure of a state backend.
var ErrBackendUnavailable = errors.New("state backend unavailable")

// IStateRepository is the capability shared by the remote and the local state backends.
// Reads return nil (or false) for absent records rather than an error.
type IStateRepository interface {
	// Name identifies the backend in health reports ("redis", "memory").
	Name() string
	// Ping performs a write, read and delete of a throwaway key.
	Ping(ctx context.Context) error

	FindSession(ctx context.Context, sessionId string) (*entity.Session, error)
	// CreateSession stores the session and increments total_sessions in one batch.
	CreateSession(ctx context.Context, session *entity.Session, ttl time.Duration) error
	FindSessionConversationIds(ctx context.Context, sessionId string) ([]string, error)
	FindAllSessions(ctx context.Context) ([]*entity.Session, error)
	// DeleteSession removes the session, its conversation list and its linked
	// conversations, decrements the counters and returns what was removed.
	DeleteSession(ctx context.Context, sessionId string) (entity.StatsDelta, error)
	// ExtendSessionTTL adds to the remaining lifetime of the session and everything
	// linked to it. Returns false when the session does not exist.
	ExtendSessionTTL(ctx context.Context, sessionId string, additional time.Duration) (bool, error)

	FindConversation(ctx context.Context, conversationId string) (*entity.Conversation, error)
	// CreateConversation stores the conversation and, when its session exists, links it
	// into the session. Returns whether the link happened.
	CreateConversation(ctx context.Context, conversation *entity.Conversation, ttl time.Duration) (bool, error)
	// AppendMessages appends to the conversation and bumps the message counters of the
	// conversation, the session (when found) and the global stats.
	// Returns false without writing when the conversation does not exist.
	AppendMessages(ctx context.Context, conversationId, sessionId string, messages []entity.Message) (bool, error)

	GetStats(ctx context.Context) (entity.GlobalStats, error)
}
