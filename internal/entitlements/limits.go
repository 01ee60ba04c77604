package entitlements

import (
	"os"

	"gopkg.in/yaml.v3"
)

type planLimitsFile struct {
	Plans map[string]struct {
		UsageLimit int64 `yaml:"usage_limit"`
		Unlimited  bool  `yaml:"unlimited"`
	} `yaml:"plans"`
}

// loadPlanPolicies overlays the built-in table with limits from a yaml file.
// Any read or parse failure keeps the defaults; the file can adjust limits
// for known plans but cannot grant modify rights to unknown ones.
func loadPlanPolicies(path string) map[Plan]planPolicy {
	policies := make(map[Plan]planPolicy, len(defaultPlanPolicies))
	for plan, pol := range defaultPlanPolicies {
		policies[plan] = pol
	}

	if path == "" {
		return policies
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return policies
	}
	var file planLimitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return policies
	}
	for rawPlan, override := range file.Plans {
		plan := ParsePlan(rawPlan)
		pol, ok := policies[plan]
		if !ok {
			continue
		}
		if override.Unlimited {
			pol.UsageLimit = UsageUnlimited
		} else if override.UsageLimit > 0 {
			pol.UsageLimit = override.UsageLimit
		}
		policies[plan] = pol
	}
	return policies
}
