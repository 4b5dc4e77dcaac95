package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/voicesurvey/pkg/adapters/redis"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunParticipantStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "call-ttl", "555"))
	_, err := store.AppendAnswer(ctx, "call-ttl", domain.Answer{LegID: "L1", RecordingRef: "R1"}, 2)
	require.NoError(t, err)

	participants, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, participants, 1)

	mr.FastForward(2 * time.Second)

	_, err = store.Find(ctx, "call-ttl")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	assert.False(t, mr.Exists("voicesurvey:participant:call-ttl:answers"))

	participants, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, participants, "expired participants must not be listed")
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "my-call", "555"))
	_, err := store.AppendAnswer(ctx, "my-call", domain.Answer{LegID: "L1", RecordingRef: "R1"}, 2)
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:my-call"), "Expected hash with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:my-call:answers"), "Expected answers list with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	isMember, err := mr.SIsMember("custom:app:my-call:refs", "R1")
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	mr.Close()

	ctx := context.Background()
	_, err := store.Find(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	err = store.Create(ctx, "abc", "555")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = store.AppendAnswer(ctx, "abc", domain.Answer{RecordingRef: "R1"}, 2)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.ErrorIs(t, store.Ping(ctx), domain.ErrStoreUnavailable)
}
