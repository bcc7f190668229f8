// Package quota decides whether a request may proceed given current usage and
// the configured ceilings, and grades usage against warning thresholds.
package quota

import (
	"context"
	"fmt"

	"tiergate/internal/models"
)

const (
	LimitRequests = "requests"
	LimitTokens   = "tokens"
)

// LimitError describes the single limit that denied a request.
type LimitError struct {
	Error      string            `json:"error"`
	Scope      models.Scope      `json:"scope"`
	PeriodType models.PeriodType `json:"periodType"`
	Tier       models.Tier       `json:"tier"`
	LimitType  string            `json:"limitType"`
	Message    string            `json:"message"`
	Limits     map[string]int64  `json:"limits"`
	Usage      map[string]int64  `json:"usage"`
	Thresholds models.Thresholds `json:"thresholds"`
}

type Decision struct {
	Allowed bool
	Error   *LimitError
}

// Request is the admission input. Tier is the validated tier; limits are read
// from its quota bucket.
type Request struct {
	UserID          string
	Tier            models.Tier
	EstimatedTokens int64
	Day             string
	Month           string
	User            *models.UserPolicy
	System          *models.SystemPolicy
}

// SnapshotReader is satisfied by *usage.Accountant.
type SnapshotReader interface {
	Snapshot(ctx context.Context, userID string, tier models.Tier, day, month string) (models.UsageSnapshot, error)
}

// Check loads the four usage rows for the request's quota bucket and evaluates
// them. It never writes.
func Check(ctx context.Context, usage SnapshotReader, req Request) (Decision, error) {
	snap, err := usage.Snapshot(ctx, req.UserID, req.Tier, req.Day, req.Month)
	if err != nil {
		return Decision{}, fmt.Errorf("load usage: %w", err)
	}
	return Evaluate(snap, req), nil
}

type check struct {
	scope     models.Scope
	period    models.PeriodType
	limitType string
	limitKey  string
	limit     int64
	current   int64
}

// Evaluate runs the eight checks in their fixed order and reports the first
// violation. A zero limit never trips.
func Evaluate(snap models.UsageSnapshot, req Request) Decision {
	qt := req.Tier.QuotaTier()
	u, s := req.User, req.System

	checks := [8]check{
		{models.ScopeUser, models.PeriodDay, LimitRequests, "dailyRequestLimit", u.DailyRequestLimit.For(qt), snap.User.Day.Requests},
		{models.ScopeUser, models.PeriodMonth, LimitRequests, "monthlyRequestLimit", u.MonthlyRequestLimit.For(qt), snap.User.Month.Requests},
		{models.ScopeUser, models.PeriodDay, LimitTokens, "dailyTokenLimit", u.DailyTokenLimit.For(qt), snap.User.Day.TotalTokens},
		{models.ScopeUser, models.PeriodMonth, LimitTokens, "monthlyTokenLimit", u.MonthlyTokenLimit.For(qt), snap.User.Month.TotalTokens},
		{models.ScopeGlobal, models.PeriodDay, LimitRequests, "globalDailyRequestLimit", s.GlobalDailyRequestLimit.For(qt), snap.Global.Day.Requests},
		{models.ScopeGlobal, models.PeriodMonth, LimitRequests, "globalMonthlyRequestLimit", s.GlobalMonthlyRequestLimit.For(qt), snap.Global.Month.Requests},
		{models.ScopeGlobal, models.PeriodDay, LimitTokens, "globalDailyTokenLimit", s.GlobalDailyTokenLimit.For(qt), snap.Global.Day.TotalTokens},
		{models.ScopeGlobal, models.PeriodMonth, LimitTokens, "globalMonthlyTokenLimit", s.GlobalMonthlyTokenLimit.For(qt), snap.Global.Month.TotalTokens},
	}

	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		add := int64(1)
		usageKey := "requests"
		if c.limitType == LimitTokens {
			add = req.EstimatedTokens
			usageKey = "totalTokens"
		}
		if c.current+add <= c.limit {
			continue
		}
		return Decision{Error: &LimitError{
			Error:      "limit_exceeded",
			Scope:      c.scope,
			PeriodType: c.period,
			Tier:       req.Tier,
			LimitType:  c.limitType,
			Message:    limitMessage(c, req.Tier),
			Limits:     map[string]int64{c.limitKey: c.limit},
			Usage:      map[string]int64{usageKey: c.current},
			Thresholds: s.Thresholds(),
		}}
	}
	return Decision{Allowed: true}
}

func limitMessage(c check, tier models.Tier) string {
	scope := "User"
	if c.scope == models.ScopeGlobal {
		scope = "Global"
	}
	period := "daily"
	if c.period == models.PeriodMonth {
		period = "monthly"
	}
	kind := "request"
	if c.limitType == LimitTokens {
		kind = "token"
	}
	return fmt.Sprintf("%s %s %s limit exceeded for %s tier", scope, period, kind, tier)
}
