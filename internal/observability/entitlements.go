package observability

import (
	"log"
	"sync"
)

type EntitlementObserver struct {
	logger *log.Logger

	mu          sync.Mutex
	denyCounts  map[string]int64
	warned80    map[string]bool
	warnedTrial map[string]bool
}

func NewEntitlementObserver(logger *log.Logger) *EntitlementObserver {
	if logger == nil {
		logger = log.Default()
	}
	return &EntitlementObserver{
		logger:      logger,
		denyCounts:  make(map[string]int64),
		warned80:    make(map[string]bool),
		warnedTrial: make(map[string]bool),
	}
}

func (o *EntitlementObserver) RecordAllow(accountID string, reason string, used int64, limit int64) {
	if o == nil {
		return
	}
	utilization := 0.0
	if limit > 0 {
		utilization = float64(used) / float64(limit)
	}
	o.logger.Printf("entitlements allow account_id=%s reason=%s used=%d limit=%d utilization=%.4f", accountID, reason, used, limit, utilization)

	if utilization >= 0.8 {
		o.mu.Lock()
		alreadyWarned := o.warned80[accountID]
		if !alreadyWarned {
			o.warned80[accountID] = true
		}
		o.mu.Unlock()
		if !alreadyWarned {
			o.logger.Printf("entitlements warning account_id=%s threshold=0.80 used=%d limit=%d", accountID, used, limit)
		}
	}
}

func (o *EntitlementObserver) RecordDeny(accountID string, reason string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.denyCounts[accountID]++
	count := o.denyCounts[accountID]
	o.mu.Unlock()

	o.logger.Printf("entitlements deny account_id=%s reason=%s count=%d", accountID, reason, count)

	// Basic alert hook for repeated spikes in deny events.
	if count%10 == 0 {
		o.logger.Printf("entitlements alert account_id=%s reason=%s repeated_deny_count=%d", accountID, reason, count)
	}
}

// RecordTrialEnding emits a one-shot warning per account once a trial
// decision reports fewer than two remaining days.
func (o *EntitlementObserver) RecordTrialEnding(accountID string, daysRemaining int) {
	if o == nil || daysRemaining >= 2 {
		return
	}
	o.mu.Lock()
	alreadyWarned := o.warnedTrial[accountID]
	if !alreadyWarned {
		o.warnedTrial[accountID] = true
	}
	o.mu.Unlock()
	if !alreadyWarned {
		o.logger.Printf("entitlements trial_ending account_id=%s days_remaining=%d", accountID, daysRemaining)
	}
}
