package routing

import "tiergate/internal/models"

// Validation is the outcome of checking a tier against a user's allow-list.
// Reason is empty when the tier passes through unchanged.
type Validation struct {
	Tier     models.Tier
	Reason   models.RoutingReason
	Rejected bool
}

// ValidateTier applies the allow-list: self-hosted rides on premium access,
// disallowed tiers fall back to cheap when possible, otherwise the request is
// rejected with tier_not_allowed.
func ValidateTier(tier models.Tier, policy *models.UserPolicy) Validation {
	if tier.IsSelfHosted() && policy.Allows(models.TierPremium) {
		return Validation{Tier: tier}
	}
	if policy.Allows(tier) {
		return Validation{Tier: tier}
	}
	if policy.Allows(models.TierCheap) {
		return Validation{Tier: models.TierCheap, Reason: models.ReasonDowngradeNotAllowed}
	}
	return Validation{Tier: tier, Reason: models.ReasonTierNotAllowed, Rejected: true}
}
