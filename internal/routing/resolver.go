// Package routing turns a request's tier hint and the caller's policy into the
// tier that will serve the request.
package routing

import (
	"strings"
	"unicode/utf8"

	"tiergate/internal/models"
)

// AutoConfig drives the "auto" tier heuristic.
type AutoConfig struct {
	PremiumCharsOver int
	Keywords         []string
}

// ResolveTier picks the explicit tier when given, else the user's default,
// and resolves "auto" through ResolveAutoTier.
func ResolveTier(explicit models.Tier, policy *models.UserPolicy, auto AutoConfig, messages []models.Message) (models.Tier, models.RoutingReason) {
	tier := explicit
	reason := models.ReasonExplicit
	if tier == "" {
		tier = policy.DefaultTier
		reason = models.ReasonDefault
	}
	if tier == models.TierAuto {
		return ResolveAutoTier(messages, auto)
	}
	return tier, reason
}

// ResolveAutoTier looks only at user turns. Length is checked before keywords.
func ResolveAutoTier(messages []models.Message, auto AutoConfig) (models.Tier, models.RoutingReason) {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == "user" {
			parts = append(parts, m.Content)
		}
	}
	text := strings.Join(parts, " ")

	if utf8.RuneCountInString(text) > auto.PremiumCharsOver {
		return models.TierPremium, models.ReasonAutoChars
	}
	lower := strings.ToLower(text)
	for _, kw := range auto.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return models.TierPremium, models.ReasonAutoKeyword
		}
	}
	return models.TierCheap, models.ReasonAutoDefault
}

// TierFromModel maps an OpenAI-style model name onto a tier hint. An empty
// result means "no hint": the user's default tier applies.
func TierFromModel(model string) models.Tier {
	if model == "" || model == string(models.TierAuto) {
		return models.TierAuto
	}
	m := strings.ToLower(model)
	switch models.Tier(m) {
	case models.TierCheap, models.TierPremium, models.TierQwen, models.TierSelfHosted:
		return models.Tier(m)
	}
	switch {
	case strings.Contains(m, "qwen"):
		return models.TierQwen
	case strings.Contains(m, "flash"):
		return models.TierCheap
	case strings.Contains(m, "pro"):
		return models.TierPremium
	}
	return ""
}
