package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tiergate/internal/models"
	"tiergate/internal/quota"
	"tiergate/internal/store"
	"tiergate/internal/usage"
	"tiergate/internal/util"
)

// Defaults applied to new users when the request leaves a field out.
var (
	defaultDailyTokenLimit     = models.TierLimits{Cheap: 100000}
	defaultMonthlyTokenLimit   = models.TierLimits{Cheap: 3000000}
	defaultDailyRequestLimit   = models.TierLimits{Cheap: 100}
	defaultMonthlyRequestLimit = models.TierLimits{Cheap: 3000}
)

func (s *Server) periods() (string, string) {
	return util.Periods(time.Now(), s.Location)
}

func (s *Server) internal(w http.ResponseWriter, msg string, err error) {
	s.Logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", msg)
}

// countersByTier folds rollup rows into one counter per tier.
func countersByTier(rows []models.UsageRollup) map[models.Tier]models.Counter {
	out := map[models.Tier]models.Counter{}
	for _, t := range models.KnownTiers {
		out[t] = models.Counter{}
	}
	for _, r := range rows {
		c := out[r.Tier]
		c.Requests += r.Requests
		c.PromptTokens += r.PromptTokens
		c.CompletionTokens += r.CompletionTokens
		c.TotalTokens += r.TotalTokens
		out[r.Tier] = c
	}
	return out
}

type tierUsage struct {
	Day   map[models.Tier]models.Counter `json:"day"`
	Month map[models.Tier]models.Counter `json:"month"`
}

func (s *Server) usageFor(r *http.Request, scope models.Scope, userID string) (tierUsage, error) {
	day, month := s.periods()
	dayRows, err := s.Counters.List(r.Context(), usage.Filter{PeriodType: models.PeriodDay, Period: day, Scope: scope, UserID: userID})
	if err != nil {
		return tierUsage{}, err
	}
	monthRows, err := s.Counters.List(r.Context(), usage.Filter{PeriodType: models.PeriodMonth, Period: month, Scope: scope, UserID: userID})
	if err != nil {
		return tierUsage{}, err
	}
	return tierUsage{Day: countersByTier(dayRows), Month: countersByTier(monthRows)}, nil
}

// ---- System policy ----

func (s *Server) AdminGetSystem(w http.ResponseWriter, r *http.Request) {
	sp, err := s.System.GetSystemPolicy(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "System policy not found")
		return
	}
	if err != nil {
		s.internal(w, "failed to load system policy", err)
		return
	}
	global, err := s.usageFor(r, models.ScopeGlobal, "")
	if err != nil {
		s.internal(w, "failed to load usage", err)
		return
	}
	writeJSON(w, map[string]interface{}{"systemPolicy": sp, "globalUsage": global})
}

type systemPatch struct {
	GlobalDailyTokenLimit     *models.TierLimits `json:"globalDailyTokenLimit"`
	GlobalMonthlyTokenLimit   *models.TierLimits `json:"globalMonthlyTokenLimit"`
	GlobalDailyRequestLimit   *models.TierLimits `json:"globalDailyRequestLimit"`
	GlobalMonthlyRequestLimit *models.TierLimits `json:"globalMonthlyRequestLimit"`
	WarningThresholdPct       *float64           `json:"warningThresholdPct"`
	CriticalThresholdPct      *float64           `json:"criticalThresholdPct"`
}

func (s *Server) AdminUpdateSystem(w http.ResponseWriter, r *http.Request) {
	var patch systemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	cur, err := s.System.GetSystemPolicy(r.Context())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internal(w, "failed to load system policy", err)
		return
	}
	sp := models.SystemPolicy{
		Key:                  "system",
		WarningThresholdPct:  s.DefaultThresholds.WarningPct,
		CriticalThresholdPct: s.DefaultThresholds.CriticalPct,
	}
	if cur != nil {
		sp = *cur
	}
	if patch.GlobalDailyTokenLimit != nil {
		sp.GlobalDailyTokenLimit = *patch.GlobalDailyTokenLimit
	}
	if patch.GlobalMonthlyTokenLimit != nil {
		sp.GlobalMonthlyTokenLimit = *patch.GlobalMonthlyTokenLimit
	}
	if patch.GlobalDailyRequestLimit != nil {
		sp.GlobalDailyRequestLimit = *patch.GlobalDailyRequestLimit
	}
	if patch.GlobalMonthlyRequestLimit != nil {
		sp.GlobalMonthlyRequestLimit = *patch.GlobalMonthlyRequestLimit
	}
	if patch.WarningThresholdPct != nil {
		sp.WarningThresholdPct = *patch.WarningThresholdPct
	}
	if patch.CriticalThresholdPct != nil {
		sp.CriticalThresholdPct = *patch.CriticalThresholdPct
	}
	if sp.WarningThresholdPct < 0 || sp.CriticalThresholdPct > 100 || sp.WarningThresholdPct >= sp.CriticalThresholdPct {
		writeError(w, http.StatusBadRequest, "invalid_request", "thresholds must satisfy 0 <= warning < critical <= 100")
		return
	}
	if err := s.Store.UpsertSystemPolicy(r.Context(), &sp); err != nil {
		s.internal(w, "failed to update system policy", err)
		return
	}
	s.System.Invalidate(r.Context())
	writeJSON(w, map[string]interface{}{"systemPolicy": sp})
}

// ---- Users ----

type userView struct {
	Policy models.UserPolicy `json:"policy"`
	Usage  tierUsage         `json:"usage"`
	Status quota.TierStatus  `json:"status"`
}

func (s *Server) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.ListUserPolicies(r.Context())
	if err != nil {
		s.internal(w, "failed to list users", err)
		return
	}
	sp, err := s.System.GetSystemPolicy(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		sp, err = &models.SystemPolicy{
			WarningThresholdPct:  s.DefaultThresholds.WarningPct,
			CriticalThresholdPct: s.DefaultThresholds.CriticalPct,
		}, nil
	}
	if err != nil {
		s.internal(w, "failed to load system policy", err)
		return
	}
	out := make([]userView, 0, len(users))
	for i := range users {
		u := users[i]
		tu, err := s.usageFor(r, models.ScopeUser, u.UserID)
		if err != nil {
			s.internal(w, "failed to load usage", err)
			return
		}
		out = append(out, userView{Policy: u, Usage: tu, Status: quota.UserTierStatus(tu.Day, tu.Month, &u, sp)})
	}
	writeJSON(w, map[string]interface{}{"users": out})
}

type userPatch struct {
	UserID              string             `json:"userId"`
	Token               string             `json:"token"`
	AllowedTiers        []models.Tier      `json:"allowedTiers"`
	DefaultTier         *models.Tier       `json:"defaultTier"`
	DailyTokenLimit     *models.TierLimits `json:"dailyTokenLimit"`
	MonthlyTokenLimit   *models.TierLimits `json:"monthlyTokenLimit"`
	DailyRequestLimit   *models.TierLimits `json:"dailyRequestLimit"`
	MonthlyRequestLimit *models.TierLimits `json:"monthlyRequestLimit"`
}

func (p userPatch) apply(u *models.UserPolicy) {
	if p.AllowedTiers != nil {
		u.AllowedTiers = p.AllowedTiers
	}
	if p.DefaultTier != nil {
		u.DefaultTier = *p.DefaultTier
	}
	if p.DailyTokenLimit != nil {
		u.DailyTokenLimit = *p.DailyTokenLimit
	}
	if p.MonthlyTokenLimit != nil {
		u.MonthlyTokenLimit = *p.MonthlyTokenLimit
	}
	if p.DailyRequestLimit != nil {
		u.DailyRequestLimit = *p.DailyRequestLimit
	}
	if p.MonthlyRequestLimit != nil {
		u.MonthlyRequestLimit = *p.MonthlyRequestLimit
	}
}

func validTier(t models.Tier) bool {
	for _, k := range models.KnownTiers {
		if t == k {
			return true
		}
	}
	return false
}

func validateUser(u *models.UserPolicy) error {
	for _, t := range u.AllowedTiers {
		if !validTier(t) {
			return fmt.Errorf("unknown tier %q in allowedTiers", t)
		}
	}
	if u.DefaultTier != models.TierAuto && !validTier(u.DefaultTier) {
		return fmt.Errorf("unknown defaultTier %q", u.DefaultTier)
	}
	return nil
}

func (s *Server) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var patch userPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if patch.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "userId is required")
		return
	}
	token := patch.Token
	if token == "" {
		var err error
		if token, err = util.NewUserToken(); err != nil {
			s.internal(w, "failed to generate token", err)
			return
		}
	}
	u := &models.UserPolicy{
		UserID:              patch.UserID,
		TokenHash:           util.HashString(token),
		AllowedTiers:        []models.Tier{models.TierCheap},
		DefaultTier:         models.TierCheap,
		DailyTokenLimit:     defaultDailyTokenLimit,
		MonthlyTokenLimit:   defaultMonthlyTokenLimit,
		DailyRequestLimit:   defaultDailyRequestLimit,
		MonthlyRequestLimit: defaultMonthlyRequestLimit,
	}
	patch.apply(u)
	if err := validateUser(u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.Store.CreateUserPolicy(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, "invalid_request", "User ID already exists")
			return
		}
		s.internal(w, "failed to create user", err)
		return
	}
	u.Token = token
	writeJSON(w, map[string]interface{}{"userPolicy": u, "message": "User created successfully"})
}

func (s *Server) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	var patch userPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	u, err := s.Store.GetUserPolicy(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	if err != nil {
		s.internal(w, "failed to load user", err)
		return
	}
	patch.apply(u)
	if err := validateUser(u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.Store.UpdateUserPolicy(r.Context(), u); err != nil {
		s.internal(w, "failed to update user", err)
		return
	}
	writeJSON(w, map[string]interface{}{"userPolicy": u})
}

func (s *Server) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	withUsage := r.URL.Query().Get("deleteUsageData") == "true"
	if err := s.Store.DeleteUserPolicy(r.Context(), userID, withUsage); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		s.internal(w, "failed to delete user", err)
		return
	}
	if withUsage {
		if _, err := s.Counters.Reset(r.Context(), usage.Filter{Scope: models.ScopeUser, UserID: userID}); err != nil {
			s.internal(w, "failed to delete usage", err)
			return
		}
	}
	writeJSON(w, map[string]interface{}{"message": "User deleted successfully", "deletedUsageData": withUsage})
}

func (s *Server) AdminRegenerateToken(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	token, err := util.NewUserToken()
	if err != nil {
		s.internal(w, "failed to generate token", err)
		return
	}
	if err := s.Store.UpdateUserTokenHash(r.Context(), userID, util.HashString(token)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		s.internal(w, "failed to update token", err)
		return
	}
	u, err := s.Store.GetUserPolicy(r.Context(), userID)
	if err != nil {
		s.internal(w, "failed to load user", err)
		return
	}
	u.Token = token
	writeJSON(w, map[string]interface{}{"userPolicy": u, "message": "Token regenerated successfully", "oldTokenInvalidated": true})
}

// ---- Usage, logs, reset ----

func (s *Server) AdminUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := usage.Filter{PeriodType: models.PeriodDay}
	switch {
	case q.Get("day") != "":
		f.Period = q.Get("day")
	case q.Get("month") != "":
		f.PeriodType, f.Period = models.PeriodMonth, q.Get("month")
	default:
		f.Period, _ = s.periods()
	}
	if !util.ValidPeriod(f.PeriodType, f.Period) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid period "+f.Period)
		return
	}
	rows, err := s.Counters.List(r.Context(), f)
	if err != nil {
		s.internal(w, "failed to list usage", err)
		return
	}
	if rows == nil {
		rows = []models.UsageRollup{}
	}
	writeJSON(w, map[string]interface{}{"usage": rows})
}

func (s *Server) AdminLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("limit"))
	res, err := s.Store.ListRequestLogsPaginated(r.Context(), page, size, store.RequestLogFilters{
		UserID:   q.Get("userId"),
		TierUsed: models.Tier(q.Get("tierUsed")),
		Status:   models.Status(q.Get("status")),
		Day:      q.Get("day"),
		Month:    q.Get("month"),
	})
	if err != nil {
		s.internal(w, "failed to list logs", err)
		return
	}
	writeJSON(w, res)
}

type resetRequest struct {
	Scope      string            `json:"scope"`
	PeriodType models.PeriodType `json:"periodType"`
	Period     string            `json:"period"`
	UserID     string            `json:"userId"`
}

func (s *Server) AdminReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	f := usage.Filter{PeriodType: req.PeriodType, Period: req.Period}
	switch req.Scope {
	case "user":
		f.Scope, f.UserID = models.ScopeUser, req.UserID
	case "global":
		f.Scope = models.ScopeGlobal
	case "all", "":
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "scope must be user, global or all")
		return
	}
	n, err := s.Counters.Reset(r.Context(), f)
	if err != nil {
		s.internal(w, "failed to reset usage", err)
		return
	}
	s.Logger.Info("usage reset", zap.String("scope", req.Scope), zap.String("period", req.Period), zap.Int64("deleted", n))
	writeJSON(w, map[string]interface{}{"message": "Usage reset successfully", "deletedCount": n})
}

func (s *Server) AdminProviderHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"providers": s.Health.Health(r.Context())})
}
