package entitlements

import "strings"

type Plan string

const (
	PlanNone     Plan = "none"
	PlanTrial    Plan = "trial"
	PlanStandard Plan = "standard"
	PlanPro      Plan = "pro"
)

// UsageUnlimited marks a plan with no metered-resource ceiling.
const UsageUnlimited int64 = -1

func ParsePlan(raw string) Plan {
	return Plan(strings.ToLower(strings.TrimSpace(raw)))
}

type planPolicy struct {
	UsageLimit int64
	CanModify  bool
}

// Plan capabilities are a data table rather than branches so a new tier is a
// row, not code. Plans absent from the table evaluate to inactive.
var defaultPlanPolicies = map[Plan]planPolicy{
	PlanTrial:    {UsageLimit: 50, CanModify: true},
	PlanStandard: {UsageLimit: 50, CanModify: true},
	PlanPro:      {UsageLimit: UsageUnlimited, CanModify: true},
}
