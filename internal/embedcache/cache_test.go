package embedcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingService struct {
	calls int32
	err   error
}

func (c *countingService) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 0.5, -1.25}, nil
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestService_LocalHit(t *testing.T) {
	next := &countingService{}
	svc, err := New(next, "nomic-embed-text", 10, nil, zap.NewNop())
	require.NoError(t, err)

	first, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	second, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	assert.Equal(t, 1, svc.Len())
}

func TestService_SharedStoreAcrossInstances(t *testing.T) {
	mr, client := setupMiniRedis(t)
	store := NewRedisStore(client, time.Hour)
	require.NoError(t, store.Ping(context.Background()))

	next := &countingService{}
	a, err := New(next, "m", 10, store, zap.NewNop())
	require.NoError(t, err)
	b, err := New(next, "m", 10, store, zap.NewNop())
	require.NoError(t, err)

	want, err := a.Embed(context.Background(), "shared text")
	require.NoError(t, err)
	got, err := b.Embed(context.Background(), "shared text")
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
	assert.Len(t, mr.Keys(), 1)

	mr.FastForward(2 * time.Hour)
	assert.Empty(t, mr.Keys())
}

func TestService_ModelNamespacesKeys(t *testing.T) {
	_, client := setupMiniRedis(t)
	store := NewRedisStore(client, 0)
	next := &countingService{}

	a, _ := New(next, "model-a", 10, store, nil)
	b, _ := New(next, "model-b", 10, store, nil)

	_, _ = a.Embed(context.Background(), "same")
	_, _ = b.Embed(context.Background(), "same")
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
}

func TestService_FailuresAreNotCached(t *testing.T) {
	next := &countingService{err: errors.New("down")}
	svc, err := New(next, "m", 10, nil, nil)
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "x")
	require.Error(t, err)
	_, err = svc.Embed(context.Background(), "x")
	require.Error(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
	assert.Equal(t, 0, svc.Len())
}

func TestService_RedisOutageFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewRedisStore(client, time.Minute)
	mr.Close()

	next := &countingService{}
	svc, err := New(next, "m", 10, store, zap.NewNop())
	require.NoError(t, err)

	vec, err := svc.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0.5, -1.25}, vec)
}

func TestVectorEncoding(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3e-7}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestRedisStore_Miss(t *testing.T) {
	_, client := setupMiniRedis(t)
	store := NewRedisStore(client, 0)

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
