package ledger

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *OutstandingCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewOutstandingCache(client, time.Minute)
}

func TestOutstandingCacheFetch(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (any, error) {
		calls++
		return []Payment{{ID: 1, Amount: 500}}, nil
	}

	var got []Payment
	require.NoError(t, cache.Fetch(ctx, "outstanding:all", &got, loader))
	require.Len(t, got, 1)
	require.Equal(t, 1, calls)

	// Second fetch is served from Redis.
	got = nil
	require.NoError(t, cache.Fetch(ctx, "outstanding:all", &got, loader))
	require.Len(t, got, 1)
	require.EqualValues(t, 500, got[0].Amount)
	require.Equal(t, 1, calls)
}

func TestOutstandingCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (any, error) {
		calls++
		return []Payment{{ID: int64(calls)}}, nil
	}

	var got []Payment
	require.NoError(t, cache.Fetch(ctx, "outstanding:all", &got, loader))
	require.NoError(t, cache.Invalidate(ctx))

	got = nil
	require.NoError(t, cache.Fetch(ctx, "outstanding:all", &got, loader))
	require.Equal(t, 2, calls)
	require.EqualValues(t, 2, got[0].ID)
}

func TestOutstandingCacheNilClientFallsThrough(t *testing.T) {
	var cache *OutstandingCache
	ctx := context.Background()

	var got []Payment
	err := cache.Fetch(ctx, "outstanding:all", &got, func(ctx context.Context) (any, error) {
		return []Payment{{ID: 9}}, nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, cache.Invalidate(ctx))
}

func TestListOutstandingServedThroughCache(t *testing.T) {
	repo := newMemoryRepo()
	cache := newTestCache(t)
	svc := NewObligationService(repo, nil, cache, nil)
	ctx := context.Background()

	p := createPayment(t, svc, 500, time.Now().AddDate(0, 0, 10), MethodTransfer)

	out, err := svc.ListOutstanding(ctx, PaymentFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, p.ID, out[0].ID)

	// A write through the service invalidates the listing.
	_, err = svc.RecordPartialPayment(ctx, RecordPartialPaymentInput{
		PaymentID: p.ID, Amount: 500, Method: MethodPettyCash, Date: day(2026, 6, 1),
	})
	require.NoError(t, err)

	out, err = svc.ListOutstanding(ctx, PaymentFilter{})
	require.NoError(t, err)
	require.Empty(t, out)
}
