package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// memClient is an in-memory redisClient.
type memClient struct {
	data    map[string]string
	ttls    map[string]time.Duration
	pingErr error
	getErr  error
	closed  bool
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.pingErr)
}

func (m *memClient) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memClient) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memClient) Close() error { m.closed = true; return nil }

func useClient(t *testing.T, c redisClient, opts **redis.Options) {
	t.Helper()
	redisNewClient = func(o *redis.Options) redisClient {
		if opts != nil {
			*opts = o
		}
		return c
	}
	t.Cleanup(func() { redisNewClient = func(o *redis.Options) redisClient { return redis.NewClient(o) } })
}

func TestNewRedisClient(t *testing.T) {
	var opts *redis.Options
	mem := newMemClient()
	useClient(t, mem, &opts)

	c, err := NewRedisClient("192.168.56.11:6379", "secret", 1)
	require.NoError(t, err)
	require.Equal(t, "192.168.56.11:6379", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 1, opts.DB)

	require.NoError(t, c.Close())
	require.True(t, mem.closed)
}

func TestNewRedisClientPingFails(t *testing.T) {
	mem := newMemClient()
	mem.pingErr = errors.New("connection refused")
	useClient(t, mem, nil)

	c, err := NewRedisClient("addr", "", 0)
	require.EqualError(t, err, "connection refused")
	require.Nil(t, c)
	require.True(t, mem.closed)
}

func TestRedisGetSet(t *testing.T) {
	mem := newMemClient()
	useClient(t, mem, nil)
	c, err := NewRedisClient("addr", "", 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, "users:list")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "users:list", []byte(`{"users":[]}`), 5*time.Second))
	got, err := c.Get(ctx, "users:list")
	require.NoError(t, err)
	require.Equal(t, `{"users":[]}`, string(got))
	require.Equal(t, 5*time.Second, mem.ttls["users:list"])

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	require.Zero(t, mem.ttls["k"])

	mem.getErr = errors.New("conn reset")
	_, err = c.Get(ctx, "users:list")
	require.EqualError(t, err, "conn reset")
}
