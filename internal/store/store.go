package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tiergate/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

const systemPolicyKey = "system"

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---- User policies ----

const userPolicyColumns = `user_id, token_hash, allowed_tiers, default_tier, daily_token_limit, monthly_token_limit,
	daily_request_limit, monthly_request_limit, created_at, updated_at`

func scanUserPolicy(row pgx.Row) (*models.UserPolicy, error) {
	var p models.UserPolicy
	var tiers []string
	var def string
	if err := row.Scan(&p.UserID, &p.TokenHash, &tiers, &def, &p.DailyTokenLimit, &p.MonthlyTokenLimit,
		&p.DailyRequestLimit, &p.MonthlyRequestLimit, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	p.DefaultTier = models.Tier(def)
	p.AllowedTiers = make([]models.Tier, 0, len(tiers))
	for _, t := range tiers {
		p.AllowedTiers = append(p.AllowedTiers, models.Tier(t))
	}
	return &p, nil
}

func tierStrings(tiers []models.Tier) []string {
	out := make([]string, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, string(t))
	}
	return out
}

func (s *Store) GetUserPolicy(ctx context.Context, userID string) (*models.UserPolicy, error) {
	return scanUserPolicy(s.DB.QueryRow(ctx, `SELECT `+userPolicyColumns+` FROM user_policies WHERE user_id=$1`, userID))
}

func (s *Store) GetUserPolicyByTokenHash(ctx context.Context, hash string) (*models.UserPolicy, error) {
	return scanUserPolicy(s.DB.QueryRow(ctx, `SELECT `+userPolicyColumns+` FROM user_policies WHERE token_hash=$1`, hash))
}

func (s *Store) ListUserPolicies(ctx context.Context) ([]models.UserPolicy, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+userPolicyColumns+` FROM user_policies ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.UserPolicy
	for rows.Next() {
		p, err := scanUserPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CreateUserPolicy(ctx context.Context, p *models.UserPolicy) error {
	row := s.DB.QueryRow(ctx, `INSERT INTO user_policies (user_id, token_hash, allowed_tiers, default_tier, daily_token_limit,
		monthly_token_limit, daily_request_limit, monthly_request_limit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING created_at, updated_at`,
		p.UserID, p.TokenHash, tierStrings(p.AllowedTiers), string(p.DefaultTier), p.DailyTokenLimit,
		p.MonthlyTokenLimit, p.DailyRequestLimit, p.MonthlyRequestLimit)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if uniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) UpdateUserPolicy(ctx context.Context, p *models.UserPolicy) error {
	row := s.DB.QueryRow(ctx, `UPDATE user_policies SET allowed_tiers=$2, default_tier=$3, daily_token_limit=$4,
		monthly_token_limit=$5, daily_request_limit=$6, monthly_request_limit=$7, updated_at=NOW()
		WHERE user_id=$1 RETURNING created_at, updated_at`,
		p.UserID, tierStrings(p.AllowedTiers), string(p.DefaultTier), p.DailyTokenLimit,
		p.MonthlyTokenLimit, p.DailyRequestLimit, p.MonthlyRequestLimit)
	return notFound(row.Scan(&p.CreatedAt, &p.UpdatedAt))
}

func (s *Store) UpdateUserTokenHash(ctx context.Context, userID, hash string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE user_policies SET token_hash=$2, updated_at=NOW() WHERE user_id=$1`, userID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUserPolicy removes the policy and, when withLogs is set, the user's
// request logs in the same transaction. Usage counters live in the counter
// store and are reset by the caller.
func (s *Store) DeleteUserPolicy(ctx context.Context, userID string, withLogs bool) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	tag, err := tx.Exec(ctx, `DELETE FROM user_policies WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if withLogs {
		if _, err := tx.Exec(ctx, `DELETE FROM request_logs WHERE user_id=$1`, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ---- System policy ----

func (s *Store) GetSystemPolicy(ctx context.Context) (*models.SystemPolicy, error) {
	var p models.SystemPolicy
	row := s.DB.QueryRow(ctx, `SELECT key, global_daily_token_limit, global_monthly_token_limit, global_daily_request_limit,
		global_monthly_request_limit, warning_threshold_pct, critical_threshold_pct, updated_at
		FROM system_policy WHERE key=$1`, systemPolicyKey)
	if err := row.Scan(&p.Key, &p.GlobalDailyTokenLimit, &p.GlobalMonthlyTokenLimit, &p.GlobalDailyRequestLimit,
		&p.GlobalMonthlyRequestLimit, &p.WarningThresholdPct, &p.CriticalThresholdPct, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) UpsertSystemPolicy(ctx context.Context, p *models.SystemPolicy) error {
	p.Key = systemPolicyKey
	row := s.DB.QueryRow(ctx, `INSERT INTO system_policy (key, global_daily_token_limit, global_monthly_token_limit,
		global_daily_request_limit, global_monthly_request_limit, warning_threshold_pct, critical_threshold_pct, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT (key) DO UPDATE SET global_daily_token_limit=EXCLUDED.global_daily_token_limit,
			global_monthly_token_limit=EXCLUDED.global_monthly_token_limit,
			global_daily_request_limit=EXCLUDED.global_daily_request_limit,
			global_monthly_request_limit=EXCLUDED.global_monthly_request_limit,
			warning_threshold_pct=EXCLUDED.warning_threshold_pct,
			critical_threshold_pct=EXCLUDED.critical_threshold_pct,
			updated_at=NOW()
		RETURNING updated_at`,
		p.Key, p.GlobalDailyTokenLimit, p.GlobalMonthlyTokenLimit, p.GlobalDailyRequestLimit,
		p.GlobalMonthlyRequestLimit, p.WarningThresholdPct, p.CriticalThresholdPct)
	return row.Scan(&p.UpdatedAt)
}

// whereBuilder accumulates numbered placeholders for optional filters.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, v interface{}) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.clauses, " AND ")
}
