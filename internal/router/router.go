package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"tiergate/internal/metrics"
	"tiergate/internal/models"
	"tiergate/internal/providers"
)

// Reserver books the request counter for a tier before its provider is called.
type Reserver interface {
	Reserve(ctx context.Context, userID string, tier models.Tier, day, month string) error
}

type Router struct {
	Adapters        providers.Table
	Models          map[models.Tier]string
	Accountant      Reserver
	FallbackEnabled bool
	Redis           redis.Cmdable
	Logger          *zap.Logger
	tracer          trace.Tracer
}

func New(adapters providers.Table, modelNames map[models.Tier]string, acct Reserver, fallback bool, redisClient redis.Cmdable, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		Adapters:        adapters,
		Models:          modelNames,
		Accountant:      acct,
		FallbackEnabled: fallback,
		Redis:           redisClient,
		Logger:          logger,
		tracer:          otel.Tracer("tiergate/router"),
	}
}

// Call is one dispatch; the primary tier has already been reserved.
type Call struct {
	UserID   string
	Tier     models.Tier
	Reason   models.RoutingReason
	Policy   *models.UserPolicy
	Messages []models.Message
	Day      string
	Month    string
}

// Outcome reports which tier served the call. TierUsed and Reason are set
// even when err is non-nil.
type Outcome struct {
	Result   providers.Result
	TierUsed models.Tier
	Reason   models.RoutingReason
	Model    string
}

// Dispatch calls the tier's adapter and, on a qualifying premium failure,
// retries once on cheap. The premium reservation is kept when that happens.
func (r *Router) Dispatch(ctx context.Context, call Call) (Outcome, error) {
	out := Outcome{TierUsed: call.Tier, Reason: call.Reason, Model: r.Models[call.Tier]}
	res, err := r.try(ctx, call.Tier, call.Messages)
	if err == nil {
		out.Result = res
		return out, nil
	}
	if !r.shouldFallback(call, err) {
		return out, err
	}

	r.Logger.Warn("premium provider failed, falling back to cheap",
		zap.String("user_id", call.UserID),
		zap.Int("status", providers.StatusOf(err)),
		zap.Error(err),
	)
	metrics.FallbacksTotal.Inc()
	out.TierUsed = models.TierCheap
	out.Reason = models.ReasonFallback
	out.Model = r.Models[models.TierCheap]
	if err := r.Accountant.Reserve(ctx, call.UserID, models.TierCheap, call.Day, call.Month); err != nil {
		return out, fmt.Errorf("reserve fallback: %w", err)
	}
	res, err = r.try(ctx, models.TierCheap, call.Messages)
	if err != nil {
		return out, err
	}
	out.Result = res
	return out, nil
}

func (r *Router) shouldFallback(call Call, err error) bool {
	if call.Tier != models.TierPremium || !r.FallbackEnabled || !call.Policy.Allows(models.TierCheap) {
		return false
	}
	status := providers.StatusOf(err)
	return status == http.StatusTooManyRequests || status >= 500
}

func (r *Router) try(ctx context.Context, tier models.Tier, messages []models.Message) (providers.Result, error) {
	ctx, span := r.tracer.Start(ctx, "provider.complete", trace.WithAttributes(
		attribute.String("tier", string(tier)),
		attribute.String("model", r.Models[tier]),
	))
	defer span.End()

	adapter, err := r.Adapters.Get(tier)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return providers.Result{}, err
	}
	res, err := adapter.Complete(ctx, messages, r.Models[tier])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int("status", providers.StatusOf(err)))
	}
	r.recordHealth(ctx, tier, err)
	return res, err
}

func (r *Router) recordHealth(ctx context.Context, tier models.Tier, err error) {
	if r.Redis == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "fail"
	}
	if err := r.Redis.Set(ctx, HealthKey(tier), status, 30*time.Second).Err(); err != nil {
		r.Logger.Debug("provider health write failed", zap.String("tier", string(tier)), zap.Error(err))
	}
}

func HealthKey(tier models.Tier) string {
	return "provider_health:" + string(tier)
}

// Health reads the last recorded status of each tier: ok, fail or unknown.
func (r *Router) Health(ctx context.Context) map[models.Tier]string {
	out := map[models.Tier]string{}
	for tier := range r.Adapters {
		out[tier] = "unknown"
		if r.Redis == nil {
			continue
		}
		if v, err := r.Redis.Get(ctx, HealthKey(tier)).Result(); err == nil {
			out[tier] = v
		}
	}
	return out
}

// ModelFor returns the configured model name of tier.
func (r *Router) ModelFor(tier models.Tier) string {
	return r.Models[tier]
}
