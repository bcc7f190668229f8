package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tiergate/internal/models"
	"tiergate/internal/usage"
)

// RollupStore keeps usage counters in the usage_rollups table. Global rows use
// an empty user_id so the unique key covers them.
type RollupStore struct {
	DB *pgxpool.Pool
}

var _ usage.CounterStore = (*RollupStore)(nil)

func NewRollupStore(db *pgxpool.Pool) *RollupStore {
	return &RollupStore{DB: db}
}

func (r *RollupStore) Increment(ctx context.Context, k usage.Key, d models.Counter) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO usage_rollups (period_type, period, scope, user_id, tier, requests, prompt_tokens, completion_tokens, total_tokens)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (period_type, period, scope, user_id, tier) DO UPDATE SET
			requests = usage_rollups.requests + EXCLUDED.requests,
			prompt_tokens = usage_rollups.prompt_tokens + EXCLUDED.prompt_tokens,
			completion_tokens = usage_rollups.completion_tokens + EXCLUDED.completion_tokens,
			total_tokens = usage_rollups.total_tokens + EXCLUDED.total_tokens`,
		string(k.PeriodType), k.Period, string(k.Scope), k.UserID, string(k.Tier),
		d.Requests, d.PromptTokens, d.CompletionTokens, d.TotalTokens)
	return err
}

func (r *RollupStore) Get(ctx context.Context, k usage.Key) (models.Counter, error) {
	var c models.Counter
	err := r.DB.QueryRow(ctx, `SELECT requests, prompt_tokens, completion_tokens, total_tokens FROM usage_rollups
		WHERE period_type=$1 AND period=$2 AND scope=$3 AND user_id=$4 AND tier=$5`,
		string(k.PeriodType), k.Period, string(k.Scope), k.UserID, string(k.Tier),
	).Scan(&c.Requests, &c.PromptTokens, &c.CompletionTokens, &c.TotalTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Counter{}, nil
	}
	return c, err
}

func rollupWhere(f usage.Filter) *whereBuilder {
	w := &whereBuilder{}
	if f.PeriodType != "" {
		w.add("period_type=$%d", string(f.PeriodType))
	}
	if f.Period != "" {
		w.add("period=$%d", f.Period)
	}
	if f.Scope != "" {
		w.add("scope=$%d", string(f.Scope))
	}
	if f.UserID != "" {
		w.add("user_id=$%d", f.UserID)
	}
	if f.Tier != "" {
		w.add("tier=$%d", string(f.Tier))
	}
	return w
}

func (r *RollupStore) List(ctx context.Context, f usage.Filter) ([]models.UsageRollup, error) {
	w := rollupWhere(f)
	rows, err := r.DB.Query(ctx, `SELECT period_type, period, scope, user_id, tier, requests, prompt_tokens, completion_tokens, total_tokens
		FROM usage_rollups `+w.String()+` ORDER BY period_type, period, scope, user_id, tier`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.UsageRollup
	for rows.Next() {
		var u models.UsageRollup
		var pt, scope, tier string
		if err := rows.Scan(&pt, &u.Period, &scope, &u.UserID, &tier,
			&u.Requests, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens); err != nil {
			return nil, err
		}
		u.PeriodType, u.Scope, u.Tier = models.PeriodType(pt), models.Scope(scope), models.Tier(tier)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *RollupStore) Reset(ctx context.Context, f usage.Filter) (int64, error) {
	w := rollupWhere(f)
	tag, err := r.DB.Exec(ctx, `DELETE FROM usage_rollups `+w.String(), w.args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
