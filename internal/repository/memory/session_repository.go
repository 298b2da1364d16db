package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chat-state-be/internal/entity"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const backendName = "memory"

// StateRepository is the in-process fallback for the remote state backend.
// Entries never expire on their own; they live until DeleteSession or a restart.
// Records are kept in their encoded form so callers never share memory with the store.
type StateRepository struct {
	// mu serialises multi-key mutations; go-cache guards each map internally.
	mu            sync.RWMutex
	sessions      *cache.Cache
	conversations *cache.Cache
	scratch       *cache.Cache
	stats         statsCounter
}

type statsCounter struct {
	sessions      atomic.Int64
	conversations atomic.Int64
	messages      atomic.Int64
}

func (c *statsCounter) apply(d entity.StatsDelta) {
	c.sessions.Add(d.Sessions)
	c.conversations.Add(d.Conversations)
	c.messages.Add(d.Messages)
}

func (c *statsCounter) snapshot() entity.GlobalStats {
	return entity.GlobalStats{
		TotalSessions:      c.sessions.Load(),
		TotalConversations: c.conversations.Load(),
		TotalMessages:      c.messages.Load(),
	}
}

func NewStateRepository() *StateRepository {
	return &StateRepository{
		sessions:      cache.New(cache.NoExpiration, 0),
		conversations: cache.New(cache.NoExpiration, 0),
		scratch:       cache.New(cache.NoExpiration, 0),
	}
}

func (r *StateRepository) Name() string {
	return backendName
}

func (r *StateRepository) Ping(ctx context.Context) error {
	key := "probe:" + uuid.NewString()
	r.scratch.Set(key, []byte("ok"), cache.DefaultExpiration)
	defer r.scratch.Delete(key)
	if _, found := r.scratch.Get(key); !found {
		return fmt.Errorf("memory probe key %s not readable", key)
	}
	return nil
}

func (r *StateRepository) FindSession(ctx context.Context, sessionId string) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session(sessionId)
}

func (r *StateRepository) CreateSession(ctx context.Context, session *entity.Session, ttl time.Duration) error {
	data, err := entity.EncodeSession(session)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Set(session.Id, data, cache.NoExpiration)
	r.stats.apply(entity.StatsDelta{Sessions: 1})
	return nil
}

func (r *StateRepository) FindSessionConversationIds(ctx context.Context, sessionId string) ([]string, error) {
	s, err := r.FindSession(ctx, sessionId)
	if err != nil || s == nil {
		return []string{}, err
	}
	return s.ConversationIds, nil
}

func (r *StateRepository) FindAllSessions(ctx context.Context) ([]*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.sessions.Items()
	out := make([]*entity.Session, 0, len(items))
	for _, item := range items {
		s, err := entity.DecodeSession(item.Object.([]byte))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *StateRepository) DeleteSession(ctx context.Context, sessionId string) (entity.StatsDelta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed entity.StatsDelta
	s, err := r.session(sessionId)
	if err != nil || s == nil {
		return removed, err
	}

	for _, id := range s.ConversationIds {
		c, err := r.conversation(id)
		if err != nil {
			return entity.StatsDelta{}, err
		}
		if c == nil {
			continue
		}
		removed.Conversations++
		removed.Messages += c.MessageCount
	}
	for _, id := range s.ConversationIds {
		r.conversations.Delete(id)
	}
	r.sessions.Delete(sessionId)
	removed.Sessions = 1

	r.stats.apply(removed.Negate())
	return removed, nil
}

// ExtendSessionTTL only reports presence: local entries carry no expiry.
func (r *StateRepository) ExtendSessionTTL(ctx context.Context, sessionId string, additional time.Duration) (bool, error) {
	s, err := r.FindSession(ctx, sessionId)
	if err != nil {
		return false, err
	}
	return s != nil, nil
}

func (r *StateRepository) FindConversation(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conversation(conversationId)
}

func (r *StateRepository) CreateConversation(ctx context.Context, conversation *entity.Conversation, ttl time.Duration) (bool, error) {
	data, err := entity.EncodeConversation(conversation)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.session(conversation.SessionId)
	if err != nil {
		return false, err
	}

	var sessionData []byte
	if s != nil {
		s.LinkConversation(conversation.Id)
		if sessionData, err = entity.EncodeSession(s); err != nil {
			return false, err
		}
	}

	r.conversations.Set(conversation.Id, data, cache.NoExpiration)
	if sessionData != nil {
		r.sessions.Set(s.Id, sessionData, cache.NoExpiration)
	}
	r.stats.apply(entity.StatsDelta{Conversations: 1, Messages: conversation.MessageCount})
	return s != nil, nil
}

func (r *StateRepository) AppendMessages(ctx context.Context, conversationId, sessionId string, messages []entity.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.conversation(conversationId)
	if err != nil || c == nil {
		return false, err
	}
	c.Append(messages...)
	convData, err := entity.EncodeConversation(c)
	if err != nil {
		return false, err
	}

	s, err := r.session(sessionId)
	if err != nil {
		return false, err
	}
	var sessionData []byte
	if s != nil {
		s.MessageCount += int64(len(messages))
		if sessionData, err = entity.EncodeSession(s); err != nil {
			return false, err
		}
	}

	r.conversations.Set(conversationId, convData, cache.NoExpiration)
	if sessionData != nil {
		r.sessions.Set(sessionId, sessionData, cache.NoExpiration)
	}
	r.stats.apply(entity.StatsDelta{Messages: int64(len(messages))})
	return true, nil
}

func (r *StateRepository) GetStats(ctx context.Context) (entity.GlobalStats, error) {
	return r.stats.snapshot(), nil
}

// session and conversation expect r.mu to be held.
func (r *StateRepository) session(id string) (*entity.Session, error) {
	x, found := r.sessions.Get(id)
	if !found {
		return nil, nil
	}
	return entity.DecodeSession(x.([]byte))
}

func (r *StateRepository) conversation(id string) (*entity.Conversation, error) {
	x, found := r.conversations.Get(id)
	if !found {
		return nil, nil
	}
	return entity.DecodeConversation(x.([]byte))
}
