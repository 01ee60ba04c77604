package entitlements

import (
	"math"
	"time"

	"brokerdesk/internal/store"
)

type Status string

const (
	StatusNone               Status = "none"
	StatusTrialActive        Status = "trial_active"
	StatusTrialExpired       Status = "trial_expired"
	StatusSubscriptionActive Status = "subscription_active"
	StatusInactive           Status = "inactive"
)

const (
	msgTrialExpired = "trial expired, upgrade to continue"
	msgInactive     = "choose a plan to continue"
)

// Decision is the derived entitlement snapshot for one account at one
// instant. It is recomputed on every read and never persisted.
type Decision struct {
	Status        Status `json:"status"`
	CanAccess     bool   `json:"can_access"`
	CanModify     bool   `json:"can_modify"`
	UsageLimit    int64  `json:"usage_limit"`
	UsageCount    int64  `json:"usage_count"`
	DaysRemaining int    `json:"days_remaining,omitempty"`
	Message       string `json:"message,omitempty"`
}

type Evaluator struct {
	policies map[Plan]planPolicy
}

// NewEvaluator builds an evaluator from the built-in plan table, with limits
// optionally overridden by a yaml file. A missing or malformed file falls
// back to the defaults.
func NewEvaluator(planLimitsPath string) *Evaluator {
	return &Evaluator{policies: loadPlanPolicies(planLimitsPath)}
}

// Evaluate derives the entitlement decision from the account record and the
// supplied clock instant. It is a total function: it never errors and never
// mutates the record; unknown or malformed plans degrade to inactive.
//
// Precedence is plan-gated before date-gated: a former trial account whose
// plan was changed to standard is judged on its subscription window, and a
// pro account with an expired subscription is inactive, not active.
func (e *Evaluator) Evaluate(account *store.AccountRecord, now time.Time) Decision {
	if account == nil {
		return Decision{Status: StatusNone}
	}

	switch plan := ParsePlan(account.Plan); plan {
	case PlanTrial:
		if !account.TrialEndsAt.Valid {
			break
		}
		if now.Before(account.TrialEndsAt.Time) {
			pol := e.policies[PlanTrial]
			return Decision{
				Status:        StatusTrialActive,
				CanAccess:     true,
				CanModify:     pol.CanModify,
				UsageLimit:    pol.UsageLimit,
				UsageCount:    account.UsageCount,
				DaysRemaining: daysRemaining(account.TrialEndsAt.Time, now),
			}
		}
		// Expired trials keep read access so the account can still see its
		// data while deciding on a paid plan.
		return Decision{
			Status:     StatusTrialExpired,
			CanAccess:  true,
			UsageCount: account.UsageCount,
			Message:    msgTrialExpired,
		}
	case PlanStandard, PlanPro:
		if account.SubscriptionEndsAt.Valid && now.Before(account.SubscriptionEndsAt.Time) {
			pol := e.policies[plan]
			return Decision{
				Status:     StatusSubscriptionActive,
				CanAccess:  true,
				CanModify:  pol.CanModify,
				UsageLimit: pol.UsageLimit,
				UsageCount: account.UsageCount,
			}
		}
	}

	return Decision{
		Status:     StatusInactive,
		UsageCount: account.UsageCount,
		Message:    msgInactive,
	}
}

// daysRemaining rounds up on whole-day boundaries: any positive remaining
// time reports at least 1, expiry at the current instant reports 0.
func daysRemaining(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
