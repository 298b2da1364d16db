package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat-state-be/internal/constant"
	"chat-state-be/internal/entity"
	"chat-state-be/internal/pkg/logger"
	"chat-state-be/internal/repository/implementation"
	"chat-state-be/internal/repository/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type SessionStateServiceSuite struct {
	suite.Suite

	mr      *miniredis.Miniredis
	client  *redis.Client
	remote  *implementation.StateRepositoryImpl
	local   *memory.StateRepository
	health  *HealthMonitor
	clock   *fakeClock
	service SessionStateService
}

func (s *SessionStateServiceSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{
		Addr:        s.mr.Addr(),
		DialTimeout: 500 * time.Millisecond,
		MaxRetries:  -1,
	})
	s.remote = implementation.NewRedisStateRepository(s.client, "chat:", time.Second)
	s.local = memory.NewStateRepository()
	s.clock = &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	log := logger.NewNopLogger()
	s.health = NewHealthMonitor(context.Background(), s.remote, time.Second, log)
	s.service = NewSessionStateService(s.remote, s.local, s.health, nil, log, SessionStateConfig{
		SessionTTL:      time.Hour,
		ConversationTTL: time.Hour,
		Now:             s.clock.Now,
	})
}

func (s *SessionStateServiceSuite) TearDownTest() {
	_ = s.client.Close()
}

func TestSessionStateServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionStateServiceSuite))
}

func (s *SessionStateServiceSuite) TestInitializeSessionIsIdempotent() {
	ctx := context.Background()

	first, err := s.service.InitializeSession(ctx, "s1", "2025-06-01T12:00:00Z", 0)
	s.Require().NoError(err)

	s.clock.Advance(time.Minute)
	second, err := s.service.InitializeSession(ctx, "s1", "ignored", 0)
	s.Require().NoError(err)

	s.Equal("2025-06-01T12:00:00Z", second.StartTime)
	s.True(first.CreatedAt.Equal(second.CreatedAt))
	s.Equal(time.Hour, s.mr.TTL("chat:session:s1"))

	stats, err := s.service.GetSessionStats(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.TotalSessions)
}

func (s *SessionStateServiceSuite) TestInitializeSessionHonoursExplicitTTL() {
	_, err := s.service.InitializeSession(context.Background(), "s1", "", 5*time.Minute)
	s.Require().NoError(err)
	s.Equal(5*time.Minute, s.mr.TTL("chat:session:s1"))
}

func (s *SessionStateServiceSuite) TestConversationFlowCountsEveryMessage() {
	ctx := context.Background()
	const exchanges = 4

	_, err := s.service.InitializeSession(ctx, "s1", "", 0)
	s.Require().NoError(err)
	conv, err := s.service.InitializeConversation(ctx, "c1", "", "s1", "You are helpful.", 0)
	s.Require().NoError(err)
	s.Require().Len(conv.Messages, 1)

	for i := 0; i < exchanges; i++ {
		ok, err := s.service.AddMessageToConversation(ctx, "c1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), "s1")
		s.Require().NoError(err)
		s.True(ok)
	}

	stored, err := s.service.GetConversation(ctx, "c1")
	s.Require().NoError(err)
	s.Equal(int64(1+2*exchanges), stored.MessageCount)
	s.Len(stored.Messages, 1+2*exchanges)

	session, err := s.service.GetSession(ctx, "s1")
	s.Require().NoError(err)
	s.Equal(int64(2*exchanges), session.MessageCount)
	s.Equal([]string{"c1"}, session.ConversationIds)

	ids, err := s.service.GetSessionConversations(ctx, "s1")
	s.Require().NoError(err)
	s.Equal([]string{"c1"}, ids)

	tail, err := s.service.GetConversationMessages(ctx, "c1", 3)
	s.Require().NoError(err)
	s.Require().Len(tail, 3)
	s.Equal("a2", tail[0].Content)
	s.Equal("q3", tail[1].Content)
	s.Equal(entity.RoleAssistant, tail[2].Role)

	all, err := s.service.GetConversationMessages(ctx, "c1", 0)
	s.Require().NoError(err)
	s.Len(all, 1+2*exchanges)
	s.Equal(entity.RoleSystem, all[0].Role)

	stats, err := s.service.GetSessionStats(ctx)
	s.Require().NoError(err)
	s.Equal(entity.GlobalStats{TotalSessions: 1, TotalConversations: 1, TotalMessages: 1 + 2*exchanges}, stats)
}

func (s *SessionStateServiceSuite) TestMessagesOfUnknownConversationAreEmpty() {
	msgs, err := s.service.GetConversationMessages(context.Background(), "nope", constant.DefaultConversationMessageLimit)
	s.Require().NoError(err)
	s.NotNil(msgs)
	s.Empty(msgs)
}

func (s *SessionStateServiceSuite) TestOrphanConversationIsStoredButNotLinked() {
	ctx := context.Background()

	conv, err := s.service.InitializeConversation(ctx, "c1", "", "ghost", "", 0)
	s.Require().NoError(err)
	s.Empty(conv.Messages)

	session, err := s.service.GetSession(ctx, "ghost")
	s.Require().NoError(err)
	s.Nil(session)

	ids, err := s.service.GetSessionConversations(ctx, "ghost")
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *SessionStateServiceSuite) TestAddMessageToMissingConversation() {
	ok, err := s.service.AddMessageToConversation(context.Background(), "missing", "q", "a", "s1")
	s.Require().NoError(err)
	s.False(ok)

	stats, err := s.service.GetSessionStats(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(0), stats.TotalMessages)
}

func (s *SessionStateServiceSuite) TestInvalidArguments() {
	ctx := context.Background()

	_, err := s.service.InitializeSession(ctx, "", "", 0)
	s.ErrorIs(err, ErrInvalidArgument)

	_, err = s.service.InitializeConversation(ctx, "", "", "s1", "", 0)
	s.ErrorIs(err, ErrInvalidArgument)

	_, err = s.service.AddMessageToConversation(ctx, "", "q", "a", "")
	s.ErrorIs(err, ErrInvalidArgument)

	_, err = s.service.CleanupOldSessions(ctx, -1)
	s.ErrorIs(err, ErrInvalidArgument)

	_, err = s.service.ExtendSessionTtl(ctx, "s1", -5)
	s.ErrorIs(err, ErrInvalidArgument)
}

func (s *SessionStateServiceSuite) TestCleanupRemovesOnlyOldSessions() {
	ctx := context.Background()

	_, err := s.service.InitializeSession(ctx, "old", "", 0)
	s.Require().NoError(err)
	_, err = s.service.InitializeConversation(ctx, "old-c", "", "old", "sys", 0)
	s.Require().NoError(err)
	_, err = s.service.AddMessageToConversation(ctx, "old-c", "q", "a", "old")
	s.Require().NoError(err)

	s.clock.Advance(29 * time.Hour)
	_, err = s.service.InitializeSession(ctx, "fresh", "", 0)
	s.Require().NoError(err)
	s.clock.Advance(time.Hour)

	cleaned, err := s.service.CleanupOldSessions(ctx, 24)
	s.Require().NoError(err)
	s.Equal(1, cleaned)

	old, err := s.service.GetSession(ctx, "old")
	s.Require().NoError(err)
	s.Nil(old)
	conv, err := s.service.GetConversation(ctx, "old-c")
	s.Require().NoError(err)
	s.Nil(conv)

	fresh, err := s.service.GetSession(ctx, "fresh")
	s.Require().NoError(err)
	s.NotNil(fresh)

	stats, err := s.service.GetSessionStats(ctx)
	s.Require().NoError(err)
	s.Equal(entity.GlobalStats{TotalSessions: 1}, stats)

	cleaned, err = s.service.CleanupOldSessions(ctx, 24)
	s.Require().NoError(err)
	s.Equal(0, cleaned)
}

func (s *SessionStateServiceSuite) TestExtendSessionTtl() {
	ctx := context.Background()
	_, err := s.service.InitializeSession(ctx, "s1", "", 0)
	s.Require().NoError(err)

	ok, err := s.service.ExtendSessionTtl(ctx, "s1", 1800)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(90*time.Minute, s.mr.TTL("chat:session:s1"))

	ok, err = s.service.ExtendSessionTtl(ctx, "absent", 60)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *SessionStateServiceSuite) TestFailoverMidSequenceServesFromLocal() {
	ctx := context.Background()

	_, err := s.service.InitializeSession(ctx, "s1", "", 0)
	s.Require().NoError(err)
	s.mr.Close()

	// the failed remote call is replayed locally within the same operation
	session, err := s.service.InitializeSession(ctx, "s2", "", 0)
	s.Require().NoError(err)
	s.Equal("s2", session.Id)
	s.False(s.health.IsRemoteAvailable())
	s.Equal(int64(1), s.health.Status().FailoverCount)

	// state written before the failure is not visible locally
	before, err := s.service.GetSession(ctx, "s1")
	s.Require().NoError(err)
	s.Nil(before)

	_, err = s.service.InitializeConversation(ctx, "c1", "", "s2", "", 0)
	s.Require().NoError(err)
	ok, err := s.service.AddMessageToConversation(ctx, "c1", "q", "a", "s2")
	s.Require().NoError(err)
	s.True(ok)

	stats, err := s.service.GetSessionStats(ctx)
	s.Require().NoError(err)
	s.Equal(entity.GlobalStats{TotalSessions: 1, TotalConversations: 1, TotalMessages: 2}, stats)

	report := s.service.HealthCheck(ctx)
	s.Equal(constant.HealthStatusDegraded, report.Status)
	s.Equal("memory", report.Backend)
	s.False(report.RemoteAvailable)
}

func (s *SessionStateServiceSuite) TestNoAutomaticRecoveryUntilProbe() {
	ctx := context.Background()
	s.health.MarkUnavailable(errors.New("simulated outage"))

	_, err := s.service.InitializeSession(ctx, "local-only", "", 0)
	s.Require().NoError(err)
	s.False(s.mr.Exists("chat:session:local-only"))

	// remote has been reachable all along; still unused
	_, err = s.service.InitializeSession(ctx, "still-local", "", 0)
	s.Require().NoError(err)
	s.False(s.mr.Exists("chat:session:still-local"))

	probe := s.service.ProbeRemote(ctx)
	s.True(probe.RemoteAvailable)
	s.Empty(probe.LastError)

	_, err = s.service.InitializeSession(ctx, "remote", "", 0)
	s.Require().NoError(err)
	s.True(s.mr.Exists("chat:session:remote"))

	report := s.service.HealthCheck(ctx)
	s.Equal(constant.HealthStatusHealthy, report.Status)
	s.Equal("redis", report.Backend)
}

func (s *SessionStateServiceSuite) TestProbeFailureReportsError() {
	s.mr.Close()

	probe := s.service.ProbeRemote(context.Background())
	s.False(probe.RemoteAvailable)
	s.NotEmpty(probe.LastError)
}

func (s *SessionStateServiceSuite) TestCancelledContextDoesNotFailOver() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.service.GetSession(ctx, "s1")
	s.ErrorIs(err, context.Canceled)
	s.True(s.health.IsRemoteAvailable())
}

func TestSessionStateService_StartsInFallbackWhenRemoteDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	remote := implementation.NewRedisStateRepository(client, "chat:", 500*time.Millisecond)
	log := logger.NewNopLogger()
	health := NewHealthMonitor(context.Background(), remote, 500*time.Millisecond, log)
	require.False(t, health.IsRemoteAvailable())

	svc := NewSessionStateService(remote, memory.NewStateRepository(), health, nil, log, SessionStateConfig{})
	session, err := svc.InitializeSession(context.Background(), "s1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "s1", session.Id)

	// no remote attempt means nothing counted as a failover
	assert.Equal(t, int64(0), health.Status().FailoverCount)

	report := svc.HealthCheck(context.Background())
	assert.Equal(t, constant.HealthStatusDegraded, report.Status)
	assert.Equal(t, int64(1), report.Stats.TotalSessions)
}
