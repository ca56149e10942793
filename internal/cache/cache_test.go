package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Names []string `json:"names"`
}

func TestFakeCache(t *testing.T) {
	c := &FakeCache{}
	require.Panics(t, func() { c.Get(context.Background(), "users:list") })
	require.Panics(t, func() { c.Set(context.Background(), "users:list", nil, time.Second) })
	require.NoError(t, c.Close())

	c.CloseFn = func() error { return errors.New("close") }
	require.EqualError(t, c.Close(), "close")
}

func TestGetJSON(t *testing.T) {
	ctx := context.Background()
	var p payload

	c := &FakeCache{GetFn: func(context.Context, string) ([]byte, error) { return nil, ErrMiss }}
	require.ErrorIs(t, GetJSON(ctx, c, "k", &p), ErrMiss)

	c.GetFn = func(context.Context, string) ([]byte, error) { return nil, errors.New("conn reset") }
	require.EqualError(t, GetJSON(ctx, c, "k", &p), "conn reset")

	c.GetFn = func(context.Context, string) ([]byte, error) { return []byte("{"), nil }
	require.Error(t, GetJSON(ctx, c, "k", &p))

	c.GetFn = func(_ context.Context, key string) ([]byte, error) {
		require.Equal(t, "users:list", key)
		return []byte(`{"names":["john_doe"]}`), nil
	}
	require.NoError(t, GetJSON(ctx, c, "users:list", &p))
	require.Equal(t, []string{"john_doe"}, p.Names)
}

func TestSetJSON(t *testing.T) {
	var (
		gotVal []byte
		gotTTL time.Duration
	)
	c := &FakeCache{SetFn: func(_ context.Context, _ string, v []byte, ttl time.Duration) error {
		gotVal, gotTTL = v, ttl
		return nil
	}}
	require.NoError(t, SetJSON(context.Background(), c, "k", payload{Names: []string{"a"}}, 5*time.Second))
	require.Equal(t, `{"names":["a"]}`, string(gotVal))
	require.Equal(t, 5*time.Second, gotTTL)

	c.SetFn = func(context.Context, string, []byte, time.Duration) error { return errors.New("readonly") }
	require.Error(t, SetJSON(context.Background(), c, "k", payload{}, 0))
	require.Error(t, SetJSON(context.Background(), c, "k", make(chan int), 0))
}
