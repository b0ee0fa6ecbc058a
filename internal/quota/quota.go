// Package quota decides whether a user may link another mail account.
package quota

import "github.com/avolkov87/mailhub/internal/model"

// Unlimited marks a limit that is never enforced (elevated roles).
const Unlimited = -1

// ReasonQuotaExceeded is the stable denial reason surfaced to the UI.
const ReasonQuotaExceeded = "quota exceeded"

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Reason  string
	Limit   int // effective maximum, Unlimited for elevated roles
}

// Policy holds per-tier linked account limits. FreeLimit must be below
// ProLimit; config validation enforces that at startup.
type Policy struct {
	FreeLimit int
	ProLimit  int
}

// NewPolicy constructs a Policy, falling back to defaults for
// non-positive limits.
func NewPolicy(free, pro int) Policy {
	if free <= 0 {
		free = 1
	}
	if pro <= 0 {
		pro = 3
	}
	return Policy{FreeLimit: free, ProLimit: pro}
}

// LimitFor returns the effective account maximum for a role and tier.
// The returned limit is what the repository enforces inside the linking
// transaction; decisions taken on counts read outside it are advisory.
func (p Policy) LimitFor(role model.Role, status model.SubscriptionStatus) int {
	if role.Elevated() {
		return Unlimited
	}
	if status == model.SubscriptionPro {
		return p.ProLimit
	}
	return p.FreeLimit
}

// CanLinkAccount reports whether a user with the given role, tier, and
// current linked account count may link one more.
func (p Policy) CanLinkAccount(role model.Role, status model.SubscriptionStatus, currentCount int) Decision {
	limit := p.LimitFor(role, status)
	if limit == Unlimited || currentCount < limit {
		return Decision{Allowed: true, Limit: limit}
	}
	return Decision{Allowed: false, Reason: ReasonQuotaExceeded, Limit: limit}
}
