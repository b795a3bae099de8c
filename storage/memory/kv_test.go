package memorystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKV_ExpiresOnRead(t *testing.T) {
	now := time.Unix(1000, 0)
	kv := NewKV().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, kv.Set(ctx, "b", []byte("2"), 0))
	require.Equal(t, 2, kv.Len())

	now = now.Add(2 * time.Minute)
	_, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	b, ok, err := kv.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", string(b))
	require.Equal(t, 1, kv.Len())
}

func TestKV_TakeIsSingleUse(t *testing.T) {
	kv := NewKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "s", []byte("x"), time.Minute))

	b, ok, err := kv.Take(ctx, "s")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", string(b))

	_, ok, err = kv.Take(ctx, "s")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKV_CopiesValues(t *testing.T) {
	kv := NewKV()
	ctx := context.Background()
	v := []byte("abc")
	require.NoError(t, kv.Set(ctx, "k", v, 0))
	v[0] = 'z'

	got, _, _ := kv.Get(ctx, "k")
	require.Equal(t, "abc", string(got))
	got[1] = 'z'
	again, _, _ := kv.Get(ctx, "k")
	require.Equal(t, "abc", string(again))
}
