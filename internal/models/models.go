package models

import "time"

type Tier string

const (
	TierCheap      Tier = "cheap"
	TierPremium    Tier = "premium"
	TierQwen       Tier = "qwen"
	TierSelfHosted Tier = "self-hosted"
	TierAuto       Tier = "auto"
)

// KnownTiers lists the tiers that carry their own limits and counters.
var KnownTiers = []Tier{TierCheap, TierPremium, TierQwen}

// IsSelfHosted reports whether t is served by the self-hosted backend.
func (t Tier) IsSelfHosted() bool {
	return t == TierQwen || t == TierSelfHosted
}

// QuotaTier returns the bucket t is accounted under. Self-hosted traffic
// shares the premium quota but keeps its own name in logs and allow-lists.
func (t Tier) QuotaTier() Tier {
	if t.IsSelfHosted() {
		return TierPremium
	}
	return t
}

type RoutingReason string

const (
	ReasonExplicit            RoutingReason = "explicit"
	ReasonDefault             RoutingReason = "default"
	ReasonAutoChars           RoutingReason = "auto_chars"
	ReasonAutoKeyword         RoutingReason = "auto_keyword"
	ReasonAutoDefault         RoutingReason = "auto_default"
	ReasonDowngradeNotAllowed RoutingReason = "downgrade_not_allowed"
	ReasonTierNotAllowed      RoutingReason = "tier_not_allowed"
	ReasonFallback            RoutingReason = "fallback"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusLimited Status = "limited"
)

type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodMonth PeriodType = "month"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
	Estimated        bool  `json:"estimated"`
}

// TierLimits holds one limit per tier. Zero means unlimited.
type TierLimits struct {
	Cheap   int64 `json:"cheap"`
	Premium int64 `json:"premium"`
	Qwen    int64 `json:"qwen"`
}

func (l TierLimits) For(t Tier) int64 {
	switch t {
	case TierCheap:
		return l.Cheap
	case TierPremium:
		return l.Premium
	case TierQwen, TierSelfHosted:
		return l.Qwen
	default:
		return 0
	}
}

type UserPolicy struct {
	UserID              string     `json:"userId"`
	Token               string     `json:"token,omitempty"`
	TokenHash           string     `json:"-"`
	AllowedTiers        []Tier     `json:"allowedTiers"`
	DefaultTier         Tier       `json:"defaultTier"`
	DailyTokenLimit     TierLimits `json:"dailyTokenLimit"`
	MonthlyTokenLimit   TierLimits `json:"monthlyTokenLimit"`
	DailyRequestLimit   TierLimits `json:"dailyRequestLimit"`
	MonthlyRequestLimit TierLimits `json:"monthlyRequestLimit"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (p *UserPolicy) Allows(t Tier) bool {
	for _, a := range p.AllowedTiers {
		if a == t {
			return true
		}
	}
	return false
}

type SystemPolicy struct {
	Key                       string     `json:"key"`
	GlobalDailyTokenLimit     TierLimits `json:"globalDailyTokenLimit"`
	GlobalMonthlyTokenLimit   TierLimits `json:"globalMonthlyTokenLimit"`
	GlobalDailyRequestLimit   TierLimits `json:"globalDailyRequestLimit"`
	GlobalMonthlyRequestLimit TierLimits `json:"globalMonthlyRequestLimit"`
	WarningThresholdPct       float64    `json:"warningThresholdPct"`
	CriticalThresholdPct      float64    `json:"criticalThresholdPct"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

type Thresholds struct {
	WarningPct  float64 `json:"warningPct"`
	CriticalPct float64 `json:"criticalPct"`
}

func (s *SystemPolicy) Thresholds() Thresholds {
	return Thresholds{WarningPct: s.WarningThresholdPct, CriticalPct: s.CriticalThresholdPct}
}

// Counter is the value part of a usage rollup row.
type Counter struct {
	Requests         int64 `json:"requests"`
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

type UsageRollup struct {
	PeriodType PeriodType `json:"periodType"`
	Period     string     `json:"period"`
	Scope      Scope      `json:"scope"`
	UserID     string     `json:"userId,omitempty"`
	Tier       Tier       `json:"tier"`
	Counter
}

type ScopeUsage struct {
	Day   Counter `json:"day"`
	Month Counter `json:"month"`
}

type UsageSnapshot struct {
	User   ScopeUsage `json:"user"`
	Global ScopeUsage `json:"global"`
}

type PeriodLimits struct {
	DailyTokenLimit     int64 `json:"dailyTokenLimit"`
	MonthlyTokenLimit   int64 `json:"monthlyTokenLimit"`
	DailyRequestLimit   int64 `json:"dailyRequestLimit"`
	MonthlyRequestLimit int64 `json:"monthlyRequestLimit"`
}

type LimitsSnapshot struct {
	User       PeriodLimits `json:"user"`
	Global     PeriodLimits `json:"global"`
	Thresholds Thresholds   `json:"thresholds"`
}

type LimitStatus struct {
	UserDay     string `json:"userDay"`
	UserMonth   string `json:"userMonth"`
	GlobalDay   string `json:"globalDay"`
	GlobalMonth string `json:"globalMonth"`
}

type RequestRecord struct {
	ID               int64         `json:"id"`
	RequestID        string        `json:"requestId"`
	Timestamp        time.Time     `json:"ts"`
	Day              string        `json:"day"`
	Month            string        `json:"month"`
	UserID           string        `json:"userId"`
	TierRequested    Tier          `json:"tierRequested"`
	TierUsed         Tier          `json:"tierUsed"`
	RoutingReason    RoutingReason `json:"routingReason"`
	Status           Status        `json:"status"`
	LatencyMS        int64         `json:"latencyMs"`
	PromptChars      int           `json:"promptChars"`
	PromptTokens     int64         `json:"promptTokens"`
	CompletionTokens int64         `json:"completionTokens"`
	TotalTokens      int64         `json:"totalTokens"`
	EstimatedTokens  bool          `json:"estimatedTokens"`
	Model            string        `json:"model"`
	ErrorMessage     *string       `json:"errorMessage"`
}
