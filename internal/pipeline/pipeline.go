// Package pipeline runs one chat request from policy lookup to the logged
// result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"tiergate/internal/metrics"
	"tiergate/internal/models"
	"tiergate/internal/providers"
	"tiergate/internal/quota"
	"tiergate/internal/router"
	"tiergate/internal/routing"
	"tiergate/internal/store"
	"tiergate/internal/usage"
	"tiergate/internal/util"
)

const (
	EventLimitExceeded = "limit.exceeded"
	EventLimitCritical = "limit.critical"
)

type PolicyStore interface {
	GetUserPolicy(ctx context.Context, userID string) (*models.UserPolicy, error)
}

type SystemPolicyStore interface {
	GetSystemPolicy(ctx context.Context) (*models.SystemPolicy, error)
}

type LogSink interface {
	InsertRequestRecord(ctx context.Context, r *models.RequestRecord) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, call router.Call) (router.Outcome, error)
	ModelFor(tier models.Tier) string
}

type Alerter interface {
	Fire(ctx context.Context, eventType string, data interface{})
}

type Pipeline struct {
	Users      PolicyStore
	System     SystemPolicyStore
	Accountant *usage.Accountant
	Router     Dispatcher
	Logs       LogSink
	Alerts     Alerter
	Auto       routing.AutoConfig
	Location   *time.Location
	Logger     *zap.Logger
	Now        func() time.Time
}

// Input is a parsed chat request. Tier is the caller's hint and may be empty.
type Input struct {
	UserID   string
	Messages []models.Message
	Tier     models.Tier
}

func NewRequestID() string {
	return "req_" + ksuid.New().String()
}

// run carries the state of one request once its policies are loaded.
type run struct {
	requestID     string
	start         time.Time
	day, month    string
	userID        string
	user          *models.UserPolicy
	system        *models.SystemPolicy
	tierRequested models.Tier
	tierUsed      models.Tier
	reason        models.RoutingReason
	model         string
	promptChars   int
}

// Handle runs the request to completion even if ctx is cancelled, so that
// accounting and the log record are never lost to a client disconnect.
func (p *Pipeline) Handle(ctx context.Context, in Input) (*models.ChatResponse, error) {
	ctx = context.WithoutCancel(ctx)
	r := &run{requestID: NewRequestID(), start: p.now(), userID: in.UserID}

	if err := validateMessages(in.Messages); err != nil {
		return nil, err
	}
	r.day, r.month = util.Periods(r.start, p.Location)

	user, err := p.Users.GetUserPolicy(ctx, in.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Error{Kind: KindNotFound, Status: http.StatusNotFound, Code: "user_not_found",
			Message: "No policy found for user: " + in.UserID}
	}
	if err != nil {
		return nil, internalError(r.requestID, fmt.Errorf("load user policy: %w", err))
	}
	system, err := p.System.GetSystemPolicy(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Error{Kind: KindNotFound, Status: http.StatusInternalServerError, Code: "system_error",
			Message: "System policy not found"}
	}
	if err != nil {
		return nil, internalError(r.requestID, fmt.Errorf("load system policy: %w", err))
	}
	r.user, r.system = user, system

	hint := in.Tier
	if hint == models.TierSelfHosted {
		hint = models.TierQwen
	}
	r.tierRequested, r.reason = routing.ResolveTier(hint, user, p.Auto, in.Messages)

	v := routing.ValidateTier(r.tierRequested, user)
	r.tierUsed = v.Tier
	if v.Reason != "" {
		r.reason = v.Reason
	}
	r.model = p.Router.ModelFor(r.tierUsed)
	r.promptChars = util.PromptChars(in.Messages)
	if v.Rejected {
		perr := &Error{Kind: KindForbidden, Status: http.StatusForbidden, Code: "tier_not_allowed",
			Message:      fmt.Sprintf("Tier '%s' is not allowed for user %s", r.tierRequested, in.UserID),
			RequestID:    r.requestID,
			AllowedTiers: user.AllowedTiers}
		p.finish(ctx, r, models.StatusError, models.Usage{}, perr.Message)
		return nil, perr
	}

	decision, err := quota.Check(ctx, p.Accountant, quota.Request{
		UserID:          in.UserID,
		Tier:            r.tierUsed,
		EstimatedTokens: util.EstimateTokens(r.promptChars),
		Day:             r.day,
		Month:           r.month,
		User:            user,
		System:          system,
	})
	if err != nil {
		return nil, p.fail(ctx, r, internalError(r.requestID, err))
	}
	if !decision.Allowed {
		le := decision.Error
		metrics.AdmissionDenied.WithLabelValues(string(le.Scope), string(le.PeriodType), le.LimitType).Inc()
		p.alert(ctx, EventLimitExceeded, le)
		p.finish(ctx, r, models.StatusLimited, models.Usage{}, le.Message)
		return nil, &Error{Kind: KindLimited, Status: http.StatusTooManyRequests, Code: le.Error,
			Message: le.Message, RequestID: r.requestID, Limit: le}
	}

	if err := p.Accountant.Reserve(ctx, in.UserID, r.tierUsed, r.day, r.month); err != nil {
		return nil, p.fail(ctx, r, internalError(r.requestID, fmt.Errorf("reserve: %w", err)))
	}

	out, err := p.Router.Dispatch(ctx, router.Call{
		UserID:   in.UserID,
		Tier:     r.tierUsed,
		Reason:   r.reason,
		Policy:   user,
		Messages: in.Messages,
		Day:      r.day,
		Month:    r.month,
	})
	r.tierUsed, r.reason, r.model = out.TierUsed, out.Reason, out.Model
	if err != nil {
		var pe *providers.ProviderError
		if !errors.As(err, &pe) {
			return nil, p.fail(ctx, r, internalError(r.requestID, err))
		}
		return nil, p.fail(ctx, r, &Error{Kind: KindProvider, Status: providers.StatusOf(err), Code: "provider_error",
			Message: pe.Message, RequestID: r.requestID, Err: err})
	}
	if out.Result.Model != "" {
		r.model = out.Result.Model
	}

	res := out.Result
	if err := p.Accountant.Commit(ctx, in.UserID, r.tierUsed, r.day, r.month, res.Usage); err != nil {
		return nil, p.fail(ctx, r, internalError(r.requestID, fmt.Errorf("commit: %w", err)))
	}
	metrics.TokensTotal.WithLabelValues(string(r.tierUsed), "prompt").Add(float64(res.Usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues(string(r.tierUsed), "completion").Add(float64(res.Usage.CompletionTokens))

	snap, err := p.Accountant.Snapshot(ctx, in.UserID, r.tierUsed, r.day, r.month)
	if err != nil {
		return nil, p.fail(ctx, r, internalError(r.requestID, fmt.Errorf("snapshot: %w", err)))
	}
	status := quota.StatusMatrix(snap, r.tierUsed, user, system)
	if quota.HasCritical(status) {
		p.alert(ctx, EventLimitCritical, map[string]interface{}{
			"userId": in.UserID, "tier": r.tierUsed, "limitStatus": status, "usageSnapshot": snap,
		})
	}

	latency := p.finish(ctx, r, models.StatusOK, res.Usage, "")
	return &models.ChatResponse{
		RequestID:      r.requestID,
		UserID:         in.UserID,
		TierUsed:       r.tierUsed,
		Model:          r.model,
		RoutingReason:  r.reason,
		Output:         res.Output,
		Usage:          res.Usage,
		LimitsSnapshot: quota.LimitsFor(r.tierUsed, user, system),
		UsageSnapshot:  snap,
		LimitStatus:    status,
		LatencyMS:      latency,
	}, nil
}

// validateMessages only requires a non-empty list. Roles are passed through
// to the adapters as given.
func validateMessages(messages []models.Message) *Error {
	if len(messages) == 0 {
		return validationError("messages array is required and must not be empty")
	}
	return nil
}

// fail logs the error record and returns perr.
func (p *Pipeline) fail(ctx context.Context, r *run, perr *Error) *Error {
	msg := perr.Message
	if perr.Err != nil {
		msg = perr.Err.Error()
	}
	p.finish(ctx, r, models.StatusError, models.Usage{}, msg)
	return perr
}

// finish writes the single request record and returns the latency it carries.
func (p *Pipeline) finish(ctx context.Context, r *run, status models.Status, u models.Usage, errMsg string) int64 {
	latency := p.now().Sub(r.start).Milliseconds()
	rec := &models.RequestRecord{
		RequestID:        r.requestID,
		Timestamp:        p.now().UTC(),
		Day:              r.day,
		Month:            r.month,
		UserID:           r.userID,
		TierRequested:    r.tierRequested,
		TierUsed:         r.tierUsed,
		RoutingReason:    r.reason,
		Status:           status,
		LatencyMS:        latency,
		PromptChars:      r.promptChars,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		EstimatedTokens:  status != models.StatusOK || u.Estimated,
		Model:            r.model,
	}
	if errMsg != "" {
		rec.ErrorMessage = &errMsg
	}
	if err := p.Logs.InsertRequestRecord(ctx, rec); err != nil {
		p.logger().Error("request log insert failed", zap.String("request_id", r.requestID), zap.Error(err))
	}

	metrics.RequestsTotal.WithLabelValues(string(r.tierUsed), string(status)).Inc()
	metrics.LatencyMS.WithLabelValues(string(r.tierUsed)).Observe(float64(latency))
	fields := []zap.Field{
		zap.String("request_id", r.requestID),
		zap.String("user_id", r.userID),
		zap.String("tier_requested", string(r.tierRequested)),
		zap.String("tier_used", string(r.tierUsed)),
		zap.String("routing_reason", string(r.reason)),
		zap.String("status", string(status)),
		zap.Int64("latency_ms", latency),
		zap.Int64("total_tokens", u.TotalTokens),
	}
	if errMsg != "" {
		fields = append(fields, zap.String("error", errMsg))
	}
	p.logger().Info("request completed", fields...)
	return latency
}

func (p *Pipeline) alert(ctx context.Context, event string, data interface{}) {
	if p.Alerts != nil {
		p.Alerts.Fire(ctx, event, data)
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
