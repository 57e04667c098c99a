package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ConsumeIfUnder_Sequential(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	// First two consumptions under a ceiling of 2 succeed
	used, allowed, err := store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 2)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, used)

	used, allowed, err = store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 2)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2, used)

	// Third is denied and the counter stays at the ceiling
	used, allowed, err = store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 2)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2, used)

	counter, err := store.Peek(ctx, "uid-1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, 2, counter.Count)
}

func TestMemory_ConsumeIfUnder_Concurrent(t *testing.T) {
	const max = 3
	const extra = 5

	store := NewMemory()
	ctx := context.Background()

	type outcome struct {
		allowed bool
		err     error
	}

	var wg sync.WaitGroup
	results := make(chan outcome, max+extra)

	for i := 0; i < max+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, err := store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", max)
			results <- outcome{allowed: allowed, err: err}
		}()
	}
	wg.Wait()
	close(results)

	// Failing inside the goroutines would call FailNow off the test
	// goroutine; collect outcomes and assert here instead.
	allowedCount := 0
	for res := range results {
		require.NoError(t, res.err)
		if res.allowed {
			allowedCount++
		}
	}

	// Exactly max succeed regardless of arrival order
	assert.Equal(t, max, allowedCount)

	counter, err := store.Peek(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, max, counter.Count)
}

func TestMemory_ConsumeIfUnder_DayBoundary(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	// Exhaust yesterday
	for i := 0; i < 2; i++ {
		_, allowed, err := store.ConsumeIfUnder(ctx, "uid-1", "2026-05-31", 2)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	_, allowed, err := store.ConsumeIfUnder(ctx, "uid-1", "2026-05-31", 2)
	require.NoError(t, err)
	require.False(t, allowed)

	// A new day starts from zero
	used, allowed, err := store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 2)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, used)

	// And still respects the ceiling
	_, allowed, err = store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 2)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, allowed, err = store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 2)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestMemory_ConsumeIfUnder_IdentitiesIndependent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, allowed, err := store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 1)
	require.NoError(t, err)
	require.True(t, allowed)

	_, allowed, err = store.ConsumeIfUnder(ctx, "uid-1", "2026-06-01", 1)
	require.NoError(t, err)
	require.False(t, allowed)

	// uid-2 has its own counter
	_, allowed, err = store.ConsumeIfUnder(ctx, "uid-2", "2026-06-01", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemory_ConsumeIfUnder_ZeroCeiling(t *testing.T) {
	store := NewMemory()

	used, allowed, err := store.ConsumeIfUnder(context.Background(), "uid-1", "2026-06-01", 0)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, used)
}

func TestMemory_SubscriptionRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	rec, err := store.Get(ctx, "uid-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, store.Upsert(ctx, &domain.SubscriptionRecord{
		Identity:   "uid-1",
		PlanID:     domain.PlanPro,
		Status:     domain.SubscriptionStatusActive,
		CustomerID: "cus_123",
	}))

	rec, err = store.Get(ctx, "uid-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.PlanPro, rec.PlanID)

	byCustomer, err := store.GetByCustomerID(ctx, "cus_123")
	require.NoError(t, err)
	require.NotNil(t, byCustomer)
	assert.Equal(t, "uid-1", byCustomer.Identity)
}

func TestMemory_LinkCustomer_CreatesRecord(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.LinkCustomer(ctx, "uid-9", "cus_999"))

	rec, err := store.Get(ctx, "uid-9")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "cus_999", rec.CustomerID)
	assert.Equal(t, domain.SubscriptionStatusNone, rec.Status)
}

func TestMemory_EventLogIdempotent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	entry := &domain.EventLogEntry{EventID: "evt_1", Type: "customer.subscription.updated"}
	require.NoError(t, store.LogEvent(ctx, entry))
	require.NoError(t, store.LogEvent(ctx, entry))

	assert.Equal(t, 1, store.EventCount())

	ok, err := store.HasEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasEvent(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ParkOrphan_Upserts(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.ParkOrphan(ctx, &domain.OrphanEvent{
		SubscriptionID: "sub_1", CustomerID: "cus_x", Status: "active",
	}))
	require.NoError(t, store.ParkOrphan(ctx, &domain.OrphanEvent{
		SubscriptionID: "sub_1", CustomerID: "cus_x", Status: "canceled",
	}))

	assert.Equal(t, 1, store.OrphanCount())
	assert.Equal(t, "canceled", store.Orphan("sub_1").Status)
}
