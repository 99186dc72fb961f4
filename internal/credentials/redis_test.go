package credentials

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRedis returns a connected store or skips if REDIS_URL is not set.
func testRedis(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	s, err := OpenRedisStore(context.Background(), url)
	require.NoError(t, err)
	s.prefix = "labsight:test:" + uuid.NewString() + ":"
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s := testRedis(t)
	ctx := context.Background()

	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Put(ctx, "doc-1", Set{"openai": "k1"}, time.Minute))
	require.NoError(t, s.Put(ctx, "doc-1", Set{"google": "k2"}, time.Minute))

	got, err = s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, Set{"google": "k2"}, got)

	require.NoError(t, s.Delete(ctx, "doc-1"))
	require.NoError(t, s.Delete(ctx, "doc-1"))

	got, err = s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_Expiry(t *testing.T) {
	s := testRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "doc-1", Set{"openai": "k"}, time.Second))
	ttl, err := s.client.TTL(ctx, s.key("doc-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestOpenRedisStore_BadURL(t *testing.T) {
	_, err := OpenRedisStore(context.Background(), "not-a-url")
	assert.Error(t, err)
}
