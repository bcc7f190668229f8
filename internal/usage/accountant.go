// Package usage keeps the request and token rollup counters that admission
// control reads and the pipeline writes.
package usage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tiergate/internal/models"
)

// Key addresses one rollup row. UserID is empty for global rows.
type Key struct {
	PeriodType models.PeriodType
	Period     string
	Scope      models.Scope
	UserID     string
	Tier       models.Tier
}

// Filter selects rollup rows; empty fields match anything.
type Filter struct {
	PeriodType models.PeriodType
	Period     string
	Scope      models.Scope
	UserID     string
	Tier       models.Tier
}

// CounterStore is the shared counter backend. Increment must be a single
// atomic create-if-absent-then-add on the server side: concurrent requests
// coordinate through it and nothing else.
type CounterStore interface {
	Increment(ctx context.Context, key Key, delta models.Counter) error
	Get(ctx context.Context, key Key) (models.Counter, error)
	List(ctx context.Context, f Filter) ([]models.UsageRollup, error)
	Reset(ctx context.Context, f Filter) (int64, error)
}

var fanout = [4]struct {
	scope  models.Scope
	period models.PeriodType
}{
	{models.ScopeUser, models.PeriodDay},
	{models.ScopeUser, models.PeriodMonth},
	{models.ScopeGlobal, models.PeriodDay},
	{models.ScopeGlobal, models.PeriodMonth},
}

// Keys returns the user-day, user-month, global-day and global-month rows for
// tier's quota bucket.
func Keys(userID string, tier models.Tier, day, month string) [4]Key {
	var out [4]Key
	qt := tier.QuotaTier()
	for i, f := range fanout {
		k := Key{PeriodType: f.period, Scope: f.scope, Tier: qt, Period: day}
		if f.period == models.PeriodMonth {
			k.Period = month
		}
		if f.scope == models.ScopeUser {
			k.UserID = userID
		}
		out[i] = k
	}
	return out
}

type Accountant struct {
	Store CounterStore
}

func NewAccountant(store CounterStore) *Accountant {
	return &Accountant{Store: store}
}

// Reserve counts one request against all four rows before the provider call.
func (a *Accountant) Reserve(ctx context.Context, userID string, tier models.Tier, day, month string) error {
	return a.apply(ctx, userID, tier, day, month, models.Counter{Requests: 1})
}

// Commit adds the provider-reported token usage to the same four rows.
func (a *Accountant) Commit(ctx context.Context, userID string, tier models.Tier, day, month string, u models.Usage) error {
	return a.apply(ctx, userID, tier, day, month, models.Counter{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	})
}

func (a *Accountant) apply(ctx context.Context, userID string, tier models.Tier, day, month string, delta models.Counter) error {
	for _, k := range Keys(userID, tier, day, month) {
		if err := a.Store.Increment(ctx, k, delta); err != nil {
			return fmt.Errorf("increment %s/%s %s: %w", k.Scope, k.PeriodType, k.Tier, err)
		}
	}
	return nil
}

// Snapshot reads the four rows. Missing rows come back as zero counters.
func (a *Accountant) Snapshot(ctx context.Context, userID string, tier models.Tier, day, month string) (models.UsageSnapshot, error) {
	keys := Keys(userID, tier, day, month)
	var counters [4]models.Counter
	g, gctx := errgroup.WithContext(ctx)
	for i := range keys {
		i := i
		g.Go(func() error {
			c, err := a.Store.Get(gctx, keys[i])
			if err != nil {
				return fmt.Errorf("read %s/%s: %w", keys[i].Scope, keys[i].PeriodType, err)
			}
			counters[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.UsageSnapshot{}, err
	}
	return models.UsageSnapshot{
		User:   models.ScopeUsage{Day: counters[0], Month: counters[1]},
		Global: models.ScopeUsage{Day: counters[2], Month: counters[3]},
	}, nil
}
