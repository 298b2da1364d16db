package implementation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chat-state-be/internal/entity"
	"chat-state-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisBackendName = "redis"
	probeTTL         = 10 * time.Second
	scanBatchSize    = 100
)

// StateRepositoryImpl keeps chat state in Redis. Every logical update runs as a single
// MULTI/EXEC batch. Record updates are read-modify-write without WATCH, so concurrent
// writers to the same record are last-writer-wins; the stats hash uses HINCRBY and
// never loses increments.
type StateRepositoryImpl struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

func NewRedisStateRepository(client *redis.Client, keyPrefix string, opTimeout time.Duration) *StateRepositoryImpl {
	return &StateRepositoryImpl{
		client:    client,
		prefix:    keyPrefix,
		opTimeout: opTimeout,
	}
}

func (r *StateRepositoryImpl) Name() string {
	return redisBackendName
}

func (r *StateRepositoryImpl) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	key := r.prefix + "probe:" + uuid.NewString()
	if err := r.client.Set(ctx, key, "ok", probeTTL).Err(); err != nil {
		return unavailable("probe write", err)
	}
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return unavailable("probe read", err)
	}
	if val != "ok" {
		return unavailable("probe read", fmt.Errorf("unexpected value %q", val))
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return unavailable("probe delete", err)
	}
	return nil
}

func (r *StateRepositoryImpl) FindSession(ctx context.Context, sessionId string) (*entity.Session, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	pipe := r.client.TxPipeline()
	getCmd := pipe.Get(ctx, r.sessionKey(sessionId))
	listCmd := pipe.LRange(ctx, r.sessionConversationsKey(sessionId), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("find session", err)
	}
	return decodeSession(getCmd, listCmd)
}

func (r *StateRepositoryImpl) CreateSession(ctx context.Context, session *entity.Session, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	data, err := entity.EncodeSession(session)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.Id), data, ttl)
		r.incrStats(ctx, pipe, entity.StatsDelta{Sessions: 1})
		return nil
	})
	return unavailable("create session", err)
}

func (r *StateRepositoryImpl) FindSessionConversationIds(ctx context.Context, sessionId string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ids, err := r.client.LRange(ctx, r.sessionConversationsKey(sessionId), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list session conversations", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (r *StateRepositoryImpl) FindAllSessions(ctx context.Context) ([]*entity.Session, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	keyPrefix := r.sessionKey("")
	var sessions []*entity.Session
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, escapeGlob(keyPrefix)+"*", scanBatchSize).Result()
		if err != nil {
			return nil, unavailable("scan sessions", err)
		}

		if len(keys) > 0 {
			pipe := r.client.TxPipeline()
			getCmds := make([]*redis.StringCmd, len(keys))
			listCmds := make([]*redis.StringSliceCmd, len(keys))
			for i, key := range keys {
				id := strings.TrimPrefix(key, keyPrefix)
				getCmds[i] = pipe.Get(ctx, key)
				listCmds[i] = pipe.LRange(ctx, r.sessionConversationsKey(id), 0, -1)
			}
			if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
				return nil, unavailable("load sessions", err)
			}
			for i := range keys {
				s, err := decodeSession(getCmds[i], listCmds[i])
				if err != nil {
					return nil, err
				}
				// expired between SCAN and GET
				if s != nil {
					sessions = append(sessions, s)
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return sessions, nil
}

func (r *StateRepositoryImpl) DeleteSession(ctx context.Context, sessionId string) (entity.StatsDelta, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var removed entity.StatsDelta
	ids, err := r.client.LRange(ctx, r.sessionConversationsKey(sessionId), 0, -1).Result()
	if err != nil {
		return removed, unavailable("delete session", err)
	}

	pipe := r.client.TxPipeline()
	existsCmd := pipe.Exists(ctx, r.sessionKey(sessionId))
	convCmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		convCmds[i] = pipe.Get(ctx, r.conversationKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return removed, unavailable("delete session", err)
	}
	if existsCmd.Val() == 0 {
		return removed, nil
	}

	removed.Sessions = 1
	for _, cmd := range convCmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		c, err := entity.DecodeConversation(data)
		if err != nil {
			return entity.StatsDelta{}, unavailable("decode conversation", err)
		}
		removed.Conversations++
		removed.Messages += c.MessageCount
	}

	keys := []string{r.sessionKey(sessionId), r.sessionConversationsKey(sessionId)}
	for _, id := range ids {
		keys = append(keys, r.conversationKey(id))
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		r.incrStats(ctx, pipe, removed.Negate())
		return nil
	})
	if err != nil {
		return entity.StatsDelta{}, unavailable("delete session", err)
	}
	return removed, nil
}

func (r *StateRepositoryImpl) ExtendSessionTTL(ctx context.Context, sessionId string, additional time.Duration) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ids, err := r.client.LRange(ctx, r.sessionConversationsKey(sessionId), 0, -1).Result()
	if err != nil {
		return false, unavailable("extend ttl", err)
	}

	keys := []string{r.sessionKey(sessionId), r.sessionConversationsKey(sessionId)}
	for _, id := range ids {
		keys = append(keys, r.conversationKey(id))
	}

	pipe := r.client.TxPipeline()
	ttlCmds := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		ttlCmds[i] = pipe.PTTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, unavailable("extend ttl", err)
	}

	// -2 means the key is gone; the session itself decides the result.
	if ttlCmds[0].Val() == -2 {
		return false, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			// keys without an expiry (-1) or already gone (-2) are left untouched
			if remaining := ttlCmds[i].Val(); remaining > 0 {
				pipe.PExpire(ctx, key, remaining+additional)
			}
		}
		return nil
	})
	if err != nil {
		return false, unavailable("extend ttl", err)
	}
	return true, nil
}

func (r *StateRepositoryImpl) FindConversation(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, r.conversationKey(conversationId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find conversation", err)
	}
	c, err := entity.DecodeConversation(data)
	if err != nil {
		return nil, unavailable("decode conversation", err)
	}
	return c, nil
}

func (r *StateRepositoryImpl) CreateConversation(ctx context.Context, conversation *entity.Conversation, ttl time.Duration) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	convData, err := entity.EncodeConversation(conversation)
	if err != nil {
		return false, err
	}

	sessionKey := r.sessionKey(conversation.SessionId)
	pipe := r.client.TxPipeline()
	getCmd := pipe.Get(ctx, sessionKey)
	listCmd := pipe.LRange(ctx, r.sessionConversationsKey(conversation.SessionId), 0, -1)
	ttlCmd := pipe.PTTL(ctx, sessionKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, unavailable("create conversation", err)
	}
	session, err := decodeSession(getCmd, listCmd)
	if err != nil {
		return false, err
	}

	var sessionData []byte
	if session != nil {
		session.LinkConversation(conversation.Id)
		if sessionData, err = entity.EncodeSession(session); err != nil {
			return false, err
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.conversationKey(conversation.Id), convData, ttl)
		if sessionData != nil {
			listKey := r.sessionConversationsKey(session.Id)
			pipe.Set(ctx, sessionKey, sessionData, redis.KeepTTL)
			pipe.RPush(ctx, listKey, conversation.Id)
			if sessionTTL := ttlCmd.Val(); sessionTTL > 0 {
				pipe.PExpire(ctx, listKey, sessionTTL)
			}
		}
		r.incrStats(ctx, pipe, entity.StatsDelta{Conversations: 1, Messages: conversation.MessageCount})
		return nil
	})
	if err != nil {
		return false, unavailable("create conversation", err)
	}
	return session != nil, nil
}

func (r *StateRepositoryImpl) AppendMessages(ctx context.Context, conversationId, sessionId string, messages []entity.Message) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	convKey := r.conversationKey(conversationId)
	sessionKey := r.sessionKey(sessionId)

	pipe := r.client.TxPipeline()
	convCmd := pipe.Get(ctx, convKey)
	sessionCmd := pipe.Get(ctx, sessionKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, unavailable("append messages", err)
	}

	convData, err := convCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("append messages", err)
	}
	conversation, err := entity.DecodeConversation(convData)
	if err != nil {
		return false, unavailable("decode conversation", err)
	}
	conversation.Append(messages...)
	if convData, err = entity.EncodeConversation(conversation); err != nil {
		return false, err
	}

	var sessionData []byte
	raw, err := sessionCmd.Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, unavailable("append messages", err)
	}
	if err == nil {
		session, err := entity.DecodeSession(raw)
		if err != nil {
			return false, unavailable("decode session", err)
		}
		session.MessageCount += int64(len(messages))
		if sessionData, err = entity.EncodeSession(session); err != nil {
			return false, err
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, convKey, convData, redis.KeepTTL)
		if sessionData != nil {
			pipe.Set(ctx, sessionKey, sessionData, redis.KeepTTL)
		}
		r.incrStats(ctx, pipe, entity.StatsDelta{Messages: int64(len(messages))})
		return nil
	})
	if err != nil {
		return false, unavailable("append messages", err)
	}
	return true, nil
}

func (r *StateRepositoryImpl) GetStats(ctx context.Context) (entity.GlobalStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var stats entity.GlobalStats
	fields, err := r.client.HGetAll(ctx, r.statsKey()).Result()
	if err != nil {
		return stats, unavailable("get stats", err)
	}
	for name, target := range map[string]*int64{
		entity.StatsFieldSessions:      &stats.TotalSessions,
		entity.StatsFieldConversations: &stats.TotalConversations,
		entity.StatsFieldMessages:      &stats.TotalMessages,
	} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return entity.GlobalStats{}, unavailable("parse stats", err)
		}
		*target = v
	}
	return stats, nil
}

func (r *StateRepositoryImpl) incrStats(ctx context.Context, pipe redis.Pipeliner, delta entity.StatsDelta) {
	for field, v := range delta.Fields() {
		pipe.HIncrBy(ctx, r.statsKey(), field, v)
	}
}

func (r *StateRepositoryImpl) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *StateRepositoryImpl) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

func (r *StateRepositoryImpl) sessionConversationsKey(id string) string {
	return r.prefix + "session_conversations:" + id
}

func (r *StateRepositoryImpl) conversationKey(id string) string {
	return r.prefix + "conversation:" + id
}

func (r *StateRepositoryImpl) statsKey() string {
	return r.prefix + "stats"
}

// decodeSession hydrates the conversation ids from the list key, which is the
// authoritative order of linked conversations.
func decodeSession(getCmd *redis.StringCmd, listCmd *redis.StringSliceCmd) (*entity.Session, error) {
	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find session", err)
	}
	s, err := entity.DecodeSession(data)
	if err != nil {
		return nil, unavailable("decode session", err)
	}
	if ids := listCmd.Val(); ids != nil {
		s.ConversationIds = ids
	} else {
		s.ConversationIds = []string{}
	}
	return s, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// escapeGlob quotes SCAN MATCH metacharacters so a prefix only matches itself.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: redis %s: %v", contract.ErrBackendUnavailable, op, err)
}
