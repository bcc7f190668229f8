package store

import (
	"context"
	"strconv"

	"tiergate/internal/models"
)

func (s *Store) InsertRequestRecord(ctx context.Context, r *models.RequestRecord) error {
	return s.DB.QueryRow(ctx, `INSERT INTO request_logs (request_id, ts, day, month, user_id, tier_requested, tier_used,
		routing_reason, status, latency_ms, prompt_chars, prompt_tokens, completion_tokens, total_tokens,
		estimated_tokens, model, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING id`,
		r.RequestID, r.Timestamp, r.Day, r.Month, r.UserID, string(r.TierRequested), string(r.TierUsed),
		string(r.RoutingReason), string(r.Status), r.LatencyMS, r.PromptChars, r.PromptTokens, r.CompletionTokens,
		r.TotalTokens, r.EstimatedTokens, r.Model, r.ErrorMessage,
	).Scan(&r.ID)
}

type RequestLogFilters struct {
	UserID   string
	TierUsed models.Tier
	Status   models.Status
	Day      string
	Month    string
}

type PaginatedRequestLogs struct {
	Data     []models.RequestRecord `json:"data"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
}

func (s *Store) ListRequestLogsPaginated(ctx context.Context, page, pageSize int, f RequestLogFilters) (*PaginatedRequestLogs, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	w := &whereBuilder{}
	if f.UserID != "" {
		w.add("user_id=$%d", f.UserID)
	}
	if f.TierUsed != "" {
		w.add("tier_used=$%d", string(f.TierUsed))
	}
	if f.Status != "" {
		w.add("status=$%d", string(f.Status))
	}
	if f.Day != "" {
		w.add("day=$%d", f.Day)
	}
	if f.Month != "" {
		w.add("month=$%d", f.Month)
	}

	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM request_logs `+w.String(), w.args...).Scan(&total); err != nil {
		return nil, err
	}

	args := append(w.args, pageSize, (page-1)*pageSize)
	n := len(w.args)
	rows, err := s.DB.Query(ctx, `SELECT id, request_id, ts, day, month, user_id, tier_requested, tier_used, routing_reason,
		status, latency_ms, prompt_chars, prompt_tokens, completion_tokens, total_tokens, estimated_tokens, model, error_message
		FROM request_logs `+w.String()+` ORDER BY ts DESC, id DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := []models.RequestRecord{}
	for rows.Next() {
		var r models.RequestRecord
		var tierReq, tierUsed, reason, status string
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Timestamp, &r.Day, &r.Month, &r.UserID, &tierReq, &tierUsed, &reason,
			&status, &r.LatencyMS, &r.PromptChars, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&r.EstimatedTokens, &r.Model, &r.ErrorMessage); err != nil {
			return nil, err
		}
		r.TierRequested, r.TierUsed = models.Tier(tierReq), models.Tier(tierUsed)
		r.RoutingReason, r.Status = models.RoutingReason(reason), models.Status(status)
		logs = append(logs, r)
	}
	return &PaginatedRequestLogs{Data: logs, Total: total, Page: page, PageSize: pageSize}, rows.Err()
}
