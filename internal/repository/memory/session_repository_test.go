package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chat-state-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRepository_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository()
	now := time.Now()

	missing, err := repo.FindSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.CreateSession(ctx, entity.NewSession("s1", "t0", now), time.Hour))

	linked, err := repo.CreateConversation(ctx, entity.NewConversation("c1", "s1", "t1", "sys", now), time.Hour)
	require.NoError(t, err)
	assert.True(t, linked)

	appended, err := repo.AppendMessages(ctx, "c1", "s1", entity.NewExchange("q", "a", now))
	require.NoError(t, err)
	assert.True(t, appended)

	session, err := repo.FindSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, []string{"c1"}, session.ConversationIds)
	assert.Equal(t, int64(1), session.ConversationCount)
	assert.Equal(t, int64(2), session.MessageCount)

	conversation, err := repo.FindConversation(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, conversation)
	assert.Equal(t, int64(3), conversation.MessageCount)
	assert.Len(t, conversation.Messages, 3)

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.GlobalStats{TotalSessions: 1, TotalConversations: 1, TotalMessages: 3}, stats)

	removed, err := repo.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatsDelta{Sessions: 1, Conversations: 1, Messages: 3}, removed)

	conversation, err = repo.FindConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, conversation)

	stats, err = repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.GlobalStats{}, stats)
}

func TestStateRepository_ReturnedRecordsAreDetached(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository()
	require.NoError(t, repo.CreateSession(ctx, entity.NewSession("s1", "", time.Now()), 0))

	first, err := repo.FindSession(ctx, "s1")
	require.NoError(t, err)
	first.MessageCount = 99
	first.ConversationIds = append(first.ConversationIds, "injected")

	second, err := repo.FindSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.MessageCount)
	assert.Empty(t, second.ConversationIds)
}

func TestStateRepository_OrphanConversation(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository()

	linked, err := repo.CreateConversation(ctx, entity.NewConversation("c1", "ghost", "", "", time.Now()), 0)
	require.NoError(t, err)
	assert.False(t, linked)

	c, err := repo.FindConversation(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "ghost", c.SessionId)

	ids, err := repo.FindSessionConversationIds(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStateRepository_AppendToMissingConversation(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository()

	appended, err := repo.AppendMessages(ctx, "missing", "", entity.NewExchange("q", "a", time.Now()))
	require.NoError(t, err)
	assert.False(t, appended)

	stats, _ := repo.GetStats(ctx)
	assert.Equal(t, int64(0), stats.TotalMessages)
}

func TestStateRepository_ExtendSessionTTLReportsPresence(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository()
	require.NoError(t, repo.CreateSession(ctx, entity.NewSession("s1", "", time.Now()), time.Hour))

	ok, err := repo.ExtendSessionTTL(ctx, "s1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExtendSessionTTL(ctx, "s2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateRepository_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository()
	now := time.Now()
	require.NoError(t, repo.CreateSession(ctx, entity.NewSession("s1", "", now), 0))
	_, err := repo.CreateConversation(ctx, entity.NewConversation("c1", "s1", "", "", now), 0)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AppendMessages(ctx, "c1", "s1", entity.NewExchange(fmt.Sprintf("q%d", i), "a", now))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, err := repo.FindConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2*workers), c.MessageCount)
	assert.Len(t, c.Messages, 2*workers)

	// pairs are never interleaved
	for i := 0; i < len(c.Messages); i += 2 {
		assert.Equal(t, entity.RoleUser, c.Messages[i].Role)
		assert.Equal(t, entity.RoleAssistant, c.Messages[i+1].Role)
	}

	ping := repo.Ping(ctx)
	assert.NoError(t, ping)
}
