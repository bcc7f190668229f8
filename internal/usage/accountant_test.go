package usage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiergate/internal/models"
)

const (
	testDay   = "2026-10-17"
	testMonth = "2026-10"
)

func TestReserve_FansOutToFourRows(t *testing.T) {
	store := NewMemoryStore()
	acct := NewAccountant(store)
	ctx := context.Background()

	require.NoError(t, acct.Reserve(ctx, "u1", models.TierCheap, testDay, testMonth))

	rows, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, int64(1), r.Requests)
		assert.Equal(t, int64(0), r.TotalTokens)
		assert.Equal(t, models.TierCheap, r.Tier)
	}

	snap, err := acct.Snapshot(ctx, "u1", models.TierCheap, testDay, testMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.User.Day.Requests)
	assert.Equal(t, int64(1), snap.User.Month.Requests)
	assert.Equal(t, int64(1), snap.Global.Day.Requests)
	assert.Equal(t, int64(1), snap.Global.Month.Requests)
}

func TestCommit_AddsTokensOnly(t *testing.T) {
	store := NewMemoryStore()
	acct := NewAccountant(store)
	ctx := context.Background()

	require.NoError(t, acct.Reserve(ctx, "u1", models.TierPremium, testDay, testMonth))
	require.NoError(t, acct.Commit(ctx, "u1", models.TierPremium, testDay, testMonth, models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}))
	require.NoError(t, acct.Commit(ctx, "u1", models.TierPremium, testDay, testMonth, models.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}))

	snap, err := acct.Snapshot(ctx, "u1", models.TierPremium, testDay, testMonth)
	require.NoError(t, err)
	assert.Equal(t, models.Counter{Requests: 1, PromptTokens: 11, CompletionTokens: 6, TotalTokens: 17}, snap.User.Day)
	assert.Equal(t, snap.User.Day, snap.Global.Month)
}

func TestQwenAccountedUnderPremium(t *testing.T) {
	store := NewMemoryStore()
	acct := NewAccountant(store)
	ctx := context.Background()

	require.NoError(t, acct.Reserve(ctx, "u1", models.TierQwen, testDay, testMonth))

	qwenRows, err := store.List(ctx, Filter{Tier: models.TierQwen})
	require.NoError(t, err)
	assert.Empty(t, qwenRows)

	snap, err := acct.Snapshot(ctx, "u1", models.TierPremium, testDay, testMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.User.Day.Requests)
}

func TestSnapshot_MissingRowsAreZero(t *testing.T) {
	acct := NewAccountant(NewMemoryStore())
	snap, err := acct.Snapshot(context.Background(), "nobody", models.TierCheap, testDay, testMonth)
	require.NoError(t, err)
	assert.Equal(t, models.UsageSnapshot{}, snap)
}

func TestConcurrentReservations_NoLostUpdates(t *testing.T) {
	store := NewMemoryStore()
	acct := NewAccountant(store)
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, acct.Reserve(ctx, "u1", models.TierCheap, testDay, testMonth))
		}()
	}
	wg.Wait()

	snap, err := acct.Snapshot(ctx, "u1", models.TierCheap, testDay, testMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(n), snap.User.Day.Requests)
	assert.Equal(t, int64(n), snap.Global.Month.Requests)
}

func TestMemoryStore_ResetByFilter(t *testing.T) {
	store := NewMemoryStore()
	acct := NewAccountant(store)
	ctx := context.Background()

	require.NoError(t, acct.Reserve(ctx, "u1", models.TierCheap, testDay, testMonth))
	require.NoError(t, acct.Reserve(ctx, "u2", models.TierCheap, testDay, testMonth))

	n, err := store.Reset(ctx, Filter{Scope: models.ScopeUser, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	global, err := store.List(ctx, Filter{Scope: models.ScopeGlobal})
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, int64(2), global[0].Requests)
}
