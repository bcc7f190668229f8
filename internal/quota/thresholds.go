package quota

import "tiergate/internal/models"

const (
	StatusOK       = "ok"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

func Classify(usage, limit int64, warningPct, criticalPct float64) string {
	if limit == 0 {
		return StatusOK
	}
	pct := float64(usage) / float64(limit) * 100
	if pct >= criticalPct {
		return StatusCritical
	}
	if pct >= warningPct {
		return StatusWarning
	}
	return StatusOK
}

// StatusMatrix grades token usage for the four (scope, period) pairs of tier's
// quota bucket.
func StatusMatrix(snap models.UsageSnapshot, tier models.Tier, user *models.UserPolicy, system *models.SystemPolicy) models.LimitStatus {
	qt := tier.QuotaTier()
	w, c := system.WarningThresholdPct, system.CriticalThresholdPct
	return models.LimitStatus{
		UserDay:     Classify(snap.User.Day.TotalTokens, user.DailyTokenLimit.For(qt), w, c),
		UserMonth:   Classify(snap.User.Month.TotalTokens, user.MonthlyTokenLimit.For(qt), w, c),
		GlobalDay:   Classify(snap.Global.Day.TotalTokens, system.GlobalDailyTokenLimit.For(qt), w, c),
		GlobalMonth: Classify(snap.Global.Month.TotalTokens, system.GlobalMonthlyTokenLimit.For(qt), w, c),
	}
}

// HasCritical reports whether any cell of the matrix is critical.
func HasCritical(s models.LimitStatus) bool {
	return s.UserDay == StatusCritical || s.UserMonth == StatusCritical ||
		s.GlobalDay == StatusCritical || s.GlobalMonth == StatusCritical
}

// TierStatus grades one user's token usage per tier for admin views. Usage is
// keyed by tier name as stored; limits are the tier's own.
type TierStatus struct {
	Day   map[models.Tier]string `json:"day"`
	Month map[models.Tier]string `json:"month"`
}

func UserTierStatus(day, month map[models.Tier]models.Counter, user *models.UserPolicy, system *models.SystemPolicy) TierStatus {
	out := TierStatus{Day: map[models.Tier]string{}, Month: map[models.Tier]string{}}
	w, c := system.WarningThresholdPct, system.CriticalThresholdPct
	for _, t := range models.KnownTiers {
		out.Day[t] = Classify(day[t].TotalTokens, user.DailyTokenLimit.For(t), w, c)
		out.Month[t] = Classify(month[t].TotalTokens, user.MonthlyTokenLimit.For(t), w, c)
	}
	return out
}

// LimitsFor returns the limits that apply to tier's quota bucket.
func LimitsFor(tier models.Tier, user *models.UserPolicy, system *models.SystemPolicy) models.LimitsSnapshot {
	qt := tier.QuotaTier()
	return models.LimitsSnapshot{
		User: models.PeriodLimits{
			DailyTokenLimit:     user.DailyTokenLimit.For(qt),
			MonthlyTokenLimit:   user.MonthlyTokenLimit.For(qt),
			DailyRequestLimit:   user.DailyRequestLimit.For(qt),
			MonthlyRequestLimit: user.MonthlyRequestLimit.For(qt),
		},
		Global: models.PeriodLimits{
			DailyTokenLimit:     system.GlobalDailyTokenLimit.For(qt),
			MonthlyTokenLimit:   system.GlobalMonthlyTokenLimit.For(qt),
			DailyRequestLimit:   system.GlobalDailyRequestLimit.For(qt),
			MonthlyRequestLimit: system.GlobalMonthlyRequestLimit.For(qt),
		},
		Thresholds: system.Thresholds(),
	}
}
