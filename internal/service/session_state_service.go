// FILE: internal/service/session_state_service.go
// Session, conversation and message state with remote-to-local failover
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-state-be/internal/constant"
	"chat-state-be/internal/dto"
	"chat-state-be/internal/entity"
	"chat-state-be/internal/pkg/logger"
	"chat-state-be/internal/repository/contract"
	"chat-state-be/pkg/events"
)

const stateModule = "SessionState"

var ErrInvalidArgument = errors.New("invalid argument")

type SessionStateService interface {
	InitializeSession(ctx context.Context, sessionId, startTime string, ttl time.Duration) (*entity.Session, error)
	InitializeConversation(ctx context.Context, conversationId, startTime, sessionId, systemPrompt string, ttl time.Duration) (*entity.Conversation, error)
	// AddMessageToConversation returns false, without writing, when the conversation does not exist.
	AddMessageToConversation(ctx context.Context, conversationId, userText, assistantText, sessionId string) (bool, error)

	GetSession(ctx context.Context, sessionId string) (*entity.Session, error)
	GetConversation(ctx context.Context, conversationId string) (*entity.Conversation, error)
	GetConversationMessages(ctx context.Context, conversationId string, limit int) ([]entity.Message, error)
	GetSessionConversations(ctx context.Context, sessionId string) ([]string, error)
	GetSessionStats(ctx context.Context) (entity.GlobalStats, error)

	CleanupOldSessions(ctx context.Context, maxAgeHours int) (int, error)
	ExtendSessionTtl(ctx context.Context, sessionId string, additionalSeconds int) (bool, error)

	HealthCheck(ctx context.Context) *dto.HealthCheckResponse
	ProbeRemote(ctx context.Context) *dto.ProbeResponse
}

type SessionStateConfig struct {
	SessionTTL      time.Duration
	ConversationTTL time.Duration
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

type sessionStateService struct {
	remote contract.IStateRepository
	local  contract.IStateRepository
	health IHealthMonitor
	events EventPublisher
	logger logger.ILogger
	cfg    SessionStateConfig
}

func NewSessionStateService(
	remote contract.IStateRepository,
	local contract.IStateRepository,
	health IHealthMonitor,
	eventPublisher EventPublisher,
	log logger.ILogger,
	cfg SessionStateConfig,
) SessionStateService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.ConversationTTL <= 0 {
		cfg.ConversationTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &sessionStateService{
		remote: remote,
		local:  local,
		health: health,
		events: eventPublisher,
		logger: log,
		cfg:    cfg,
	}
}

// withBackend runs fn on the backend selected for this call. A remote failure marks
// the remote down and the same fn is replayed on the local store; the remote is
// only used again after a successful probe.
func withBackend[T any](ctx context.Context, s *sessionStateService, op string, fn func(store contract.IStateRepository) (T, error)) (T, error) {
	if s.health.IsRemoteAvailable() {
		v, err := fn(s.remote)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, ctxErr
		}
		s.health.MarkUnavailable(err)
		s.logger.Warn(stateModule, "Remote state backend failed, retrying on local fallback", map[string]interface{}{
			"operation": op,
			"error":     err.Error(),
		})
	}
	return fn(s.local)
}

// InitializeSession returns the stored session unchanged when it exists.
func (s *sessionStateService) InitializeSession(ctx context.Context, sessionId, startTime string, ttl time.Duration) (*entity.Session, error) {
	if sessionId == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}
	if ttl <= 0 {
		ttl = s.cfg.SessionTTL
	}

	return withBackend(ctx, s, "initialize_session", func(store contract.IStateRepository) (*entity.Session, error) {
		existing, err := store.FindSession(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		session := entity.NewSession(sessionId, startTime, s.cfg.Now())
		if err := store.CreateSession(ctx, session, ttl); err != nil {
			return nil, err
		}
		s.logger.Info(stateModule, "Initialized new session", map[string]interface{}{
			"session_id": sessionId,
			"backend":    store.Name(),
		})
		return session, nil
	})
}

func (s *sessionStateService) InitializeConversation(ctx context.Context, conversationId, startTime, sessionId, systemPrompt string, ttl time.Duration) (*entity.Conversation, error) {
	if conversationId == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}
	if ttl <= 0 {
		ttl = s.cfg.ConversationTTL
	}

	return withBackend(ctx, s, "initialize_conversation", func(store contract.IStateRepository) (*entity.Conversation, error) {
		existing, err := store.FindConversation(ctx, conversationId)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		conversation := entity.NewConversation(conversationId, sessionId, startTime, systemPrompt, s.cfg.Now())
		linked, err := store.CreateConversation(ctx, conversation, ttl)
		if err != nil {
			return nil, err
		}

		details := map[string]interface{}{
			"conversation_id": conversationId,
			"session_id":      sessionId,
			"backend":         store.Name(),
		}
		if linked {
			s.logger.Info(stateModule, "Initialized new conversation", details)
		} else {
			s.logger.Warn(stateModule, "Initialized conversation without an existing session", details)
		}
		return conversation, nil
	})
}

func (s *sessionStateService) AddMessageToConversation(ctx context.Context, conversationId, userText, assistantText, sessionId string) (bool, error) {
	if conversationId == "" {
		return false, fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}
	exchange := entity.NewExchange(userText, assistantText, s.cfg.Now())

	return withBackend(ctx, s, "add_message", func(store contract.IStateRepository) (bool, error) {
		appended, err := store.AppendMessages(ctx, conversationId, sessionId, exchange)
		if err != nil {
			return false, err
		}
		if !appended {
			s.logger.Warn(stateModule, "Conversation not found, message pair dropped", map[string]interface{}{
				"conversation_id": conversationId,
				"session_id":      sessionId,
				"backend":         store.Name(),
			})
		}
		return appended, nil
	})
}

func (s *sessionStateService) GetSession(ctx context.Context, sessionId string) (*entity.Session, error) {
	return withBackend(ctx, s, "get_session", func(store contract.IStateRepository) (*entity.Session, error) {
		return store.FindSession(ctx, sessionId)
	})
}

func (s *sessionStateService) GetConversation(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	return withBackend(ctx, s, "get_conversation", func(store contract.IStateRepository) (*entity.Conversation, error) {
		return store.FindConversation(ctx, conversationId)
	})
}

// GetConversationMessages returns the last limit messages in order; limit <= 0 returns all.
func (s *sessionStateService) GetConversationMessages(ctx context.Context, conversationId string, limit int) ([]entity.Message, error) {
	conversation, err := s.GetConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return []entity.Message{}, nil
	}
	return entity.TailMessages(conversation.Messages, limit), nil
}

func (s *sessionStateService) GetSessionConversations(ctx context.Context, sessionId string) ([]string, error) {
	return withBackend(ctx, s, "get_session_conversations", func(store contract.IStateRepository) ([]string, error) {
		return store.FindSessionConversationIds(ctx, sessionId)
	})
}

func (s *sessionStateService) GetSessionStats(ctx context.Context) (entity.GlobalStats, error) {
	return withBackend(ctx, s, "get_stats", func(store contract.IStateRepository) (entity.GlobalStats, error) {
		return store.GetStats(ctx)
	})
}

// CleanupOldSessions deletes sessions created more than maxAgeHours ago together with
// their linked conversations. It is independent of TTL expiry on the remote backend.
func (s *sessionStateService) CleanupOldSessions(ctx context.Context, maxAgeHours int) (int, error) {
	if maxAgeHours < 0 {
		return 0, fmt.Errorf("%w: max age must not be negative", ErrInvalidArgument)
	}
	cutoff := s.cfg.Now().Add(-time.Duration(maxAgeHours) * time.Hour)

	return withBackend(ctx, s, "cleanup_sessions", func(store contract.IStateRepository) (int, error) {
		sessions, err := store.FindAllSessions(ctx)
		if err != nil {
			return 0, err
		}

		var total entity.StatsDelta
		for _, session := range sessions {
			if !session.CreatedBefore(cutoff) {
				continue
			}
			removed, err := store.DeleteSession(ctx, session.Id)
			if err != nil {
				return 0, err
			}
			total.Sessions += removed.Sessions
			total.Conversations += removed.Conversations
			total.Messages += removed.Messages
		}

		if total.Sessions > 0 {
			s.logger.Info(stateModule, "Cleaned up old sessions", map[string]interface{}{
				"sessions":      total.Sessions,
				"conversations": total.Conversations,
				"messages":      total.Messages,
				"max_age_hours": maxAgeHours,
				"backend":       store.Name(),
			})
			s.publish(ctx, events.NewEvent(events.TypeSessionsCleaned, map[string]interface{}{
				"sessions":      total.Sessions,
				"conversations": total.Conversations,
				"messages":      total.Messages,
				"backend":       store.Name(),
			}))
		}
		return int(total.Sessions), nil
	})
}

func (s *sessionStateService) ExtendSessionTtl(ctx context.Context, sessionId string, additionalSeconds int) (bool, error) {
	if additionalSeconds < 0 {
		return false, fmt.Errorf("%w: additional seconds must not be negative", ErrInvalidArgument)
	}
	additional := time.Duration(additionalSeconds) * time.Second

	return withBackend(ctx, s, "extend_session_ttl", func(store contract.IStateRepository) (bool, error) {
		return store.ExtendSessionTTL(ctx, sessionId, additional)
	})
}

// HealthCheck pings whichever backend is active and reports its counters.
func (s *sessionStateService) HealthCheck(ctx context.Context) *dto.HealthCheckResponse {
	resp := &dto.HealthCheckResponse{CheckedAt: s.cfg.Now()}

	backend, err := withBackend(ctx, s, "health_check", func(store contract.IStateRepository) (string, error) {
		return store.Name(), store.Ping(ctx)
	})
	resp.Backend = backend

	monitor := s.health.Status()
	resp.RemoteAvailable = monitor.RemoteAvailable
	resp.LastProbeAt = monitor.LastProbeAt
	resp.FailoverCount = monitor.FailoverCount

	switch {
	case err != nil:
		resp.Status = constant.HealthStatusUnhealthy
		resp.Error = err.Error()
		return resp
	case monitor.RemoteAvailable:
		resp.Status = constant.HealthStatusHealthy
	default:
		resp.Status = constant.HealthStatusDegraded
	}

	stats, err := s.GetSessionStats(ctx)
	if err != nil {
		resp.Status = constant.HealthStatusUnhealthy
		resp.Error = err.Error()
		return resp
	}
	resp.Stats = stats
	return resp
}

func (s *sessionStateService) ProbeRemote(ctx context.Context) *dto.ProbeResponse {
	ok := s.health.Probe(ctx)
	resp := &dto.ProbeResponse{RemoteAvailable: ok}
	if !ok {
		resp.LastError = s.health.Status().LastError
	}
	return resp
}

func (s *sessionStateService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn(stateModule, "Failed to publish state event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}
