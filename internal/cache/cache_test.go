package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string  `json:"symbol"`
	VTMR   float64 `json:"vtmr"`
}

type countingObserver struct{ hits, misses int }

func (o *countingObserver) CacheLookup(hit bool) {
	if hit {
		o.hits++
		return
	}
	o.misses++
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(10)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), time.Hour)
	now = now.Add(time.Second)
	m.Set(ctx, "b", []byte("2"), time.Hour)
	now = now.Add(time.Second)
	m.Get(ctx, "a")
	now = now.Add(time.Second)
	m.Set(ctx, "c", []byte("3"), time.Hour)

	_, okA, _ := m.Get(ctx, "a")
	_, okB, _ := m.Get(ctx, "b")
	_, okC, _ := m.Get(ctx, "c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, int64(1), m.Stats().Evictions)
}

func TestGetOrCompute_ComputesOnce(t *testing.T) {
	m := NewMemory(10)
	obs := &countingObserver{}
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (payload, error) {
		calls++
		return payload{Symbol: "ABC", VTMR: 0.75}, nil
	}

	first, err := GetOrComputeObserved(ctx, m, obs, "deep:abc", time.Minute, compute)
	require.NoError(t, err)
	second, err := GetOrComputeObserved(ctx, m, obs, "deep:abc", time.Minute, compute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := GetOrCompute(ctx, m, "k", time.Minute, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())

	v, err := GetOrCompute(ctx, m, "k", time.Minute, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrCompute_ZeroTTLBypassesCache(t *testing.T) {
	m := NewMemory(10)
	calls := 0
	for i := 0; i < 3; i++ {
		GetOrCompute(context.Background(), m, "k", 0, func(context.Context) (int, error) {
			calls++
			return calls, nil
		})
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, m.Len())
}

func TestRedis_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisWithClient(db, "cryptovat:")
	ctx := context.Background()

	t.Run("cache hit returns value", func(t *testing.T) {
		mock.ExpectGet("cryptovat:test_key").SetVal("test_value")

		value, found, err := c.Get(ctx, "test_key")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "test_value", string(value))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache miss returns not found", func(t *testing.T) {
		mock.ExpectGet("cryptovat:missing_key").RedisNil()

		value, found, err := c.Get(ctx, "missing_key")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error returns error", func(t *testing.T) {
		mock.ExpectGet("cryptovat:error_key").SetErr(redis.TxFailedErr)

		_, _, err := c.Get(ctx, "error_key")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedis_GetOrCompute(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisWithClient(db, "cryptovat:")
	ctx := context.Background()

	mock.ExpectGet("cryptovat:snapshots:CG").RedisNil()
	mock.ExpectSet("cryptovat:snapshots:CG", []byte(`{"symbol":"ABC","vtmr":0.5}`), time.Minute).SetVal("OK")

	v, err := GetOrCompute(ctx, c, "snapshots:CG", time.Minute, func(context.Context) (payload, error) {
		return payload{Symbol: "ABC", VTMR: 0.5}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC", v.Symbol)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisWithClient(db, "p:")

	mock.ExpectDel("p:k").SetVal(1)
	require.NoError(t, c.Delete(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
