package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tiergate/internal/models"
	"tiergate/internal/pipeline"
	"tiergate/internal/store"
	"tiergate/internal/usage"
)

// AdminStore is the persistence surface the admin handlers need.
type AdminStore interface {
	ListUserPolicies(ctx context.Context) ([]models.UserPolicy, error)
	GetUserPolicy(ctx context.Context, userID string) (*models.UserPolicy, error)
	CreateUserPolicy(ctx context.Context, p *models.UserPolicy) error
	UpdateUserPolicy(ctx context.Context, p *models.UserPolicy) error
	UpdateUserTokenHash(ctx context.Context, userID, hash string) error
	DeleteUserPolicy(ctx context.Context, userID string, withLogs bool) error
	UpsertSystemPolicy(ctx context.Context, p *models.SystemPolicy) error
	ListRequestLogsPaginated(ctx context.Context, page, pageSize int, f store.RequestLogFilters) (*store.PaginatedRequestLogs, error)
}

// SystemPolicies is the cached system policy.
type SystemPolicies interface {
	GetSystemPolicy(ctx context.Context) (*models.SystemPolicy, error)
	Invalidate(ctx context.Context)
}

type HealthReporter interface {
	Health(ctx context.Context) map[models.Tier]string
}

type Server struct {
	Pipeline *pipeline.Pipeline
	Store    AdminStore
	System   SystemPolicies
	Counters usage.CounterStore
	Health   HealthReporter
	Location *time.Location
	Logger   *zap.Logger

	// DefaultThresholds seeds the system policy when none is stored yet.
	DefaultThresholds models.Thresholds
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
