package entitlements

import (
	"testing"
	"time"

	"brokerdesk/internal/store"
)

func TestCanPerform(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		action   Action
		want     bool
	}{
		{
			name:     "add under finite limit",
			decision: Decision{CanModify: true, UsageLimit: 50, UsageCount: 49},
			action:   Action{Kind: ActionAddClient},
			want:     true,
		},
		{
			name:     "add at finite limit",
			decision: Decision{CanModify: true, UsageLimit: 50, UsageCount: 50},
			action:   Action{Kind: ActionAddClient},
			want:     false,
		},
		{
			name:     "add over finite limit",
			decision: Decision{CanModify: true, UsageLimit: 50, UsageCount: 51},
			action:   Action{Kind: ActionAddClient},
			want:     false,
		},
		{
			name:     "add with unlimited plan",
			decision: Decision{CanModify: true, UsageLimit: UsageUnlimited, UsageCount: 1 << 40},
			action:   Action{Kind: ActionAddClient},
			want:     true,
		},
		{
			name:     "add without modify rights",
			decision: Decision{CanModify: false, UsageLimit: 50, UsageCount: 0},
			action:   Action{Kind: ActionAddClient},
			want:     false,
		},
		{
			name:     "edit ignores the usage limit",
			decision: Decision{CanModify: true, UsageLimit: 50, UsageCount: 50},
			action:   Action{Kind: ActionEditRecords},
			want:     true,
		},
		{
			name:     "edit without modify rights",
			decision: Decision{CanModify: false},
			action:   Action{Kind: ActionEditRecords},
			want:     false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := CanPerform(tc.decision, tc.action); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestGateScenarioTrialNearLimit(t *testing.T) {
	eval := NewEvaluator("")
	now := mustTime(t)

	account := accountAt(now, 49)
	decision := eval.Evaluate(account, now)
	if decision.Status != StatusTrialActive || !decision.CanModify {
		t.Fatalf("expected active modifiable trial, got %+v", decision)
	}
	if decision.DaysRemaining != 2 {
		t.Fatalf("expected 2 days remaining, got %d", decision.DaysRemaining)
	}
	if !CanPerform(decision, Action{Kind: ActionAddClient}) {
		t.Fatalf("expected one slot left at 49/50")
	}

	// After one successful creation the counter reads 50 and the gate closes.
	account.UsageCount = 50
	decision = eval.Evaluate(account, now)
	if CanPerform(decision, Action{Kind: ActionAddClient}) {
		t.Fatalf("expected gate closed at 50/50")
	}
	if !CanPerform(decision, Action{Kind: ActionEditRecords}) {
		t.Fatalf("editing existing records must survive a full quota")
	}
}

func mustTime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func accountAt(now time.Time, usage int64) *store.AccountRecord {
	return &store.AccountRecord{
		Plan:        "trial",
		TrialEndsAt: nullTime(now.Add(48 * time.Hour)),
		UsageCount:  usage,
	}
}
