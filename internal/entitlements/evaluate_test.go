package entitlements

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"brokerdesk/internal/store"
)

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

func TestEvaluateDecisionTable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	eval := NewEvaluator("")

	tests := []struct {
		name          string
		account       *store.AccountRecord
		wantStatus    Status
		wantAccess    bool
		wantModify    bool
		wantLimit     int64
		wantDays      int
		wantMessage   bool
	}{
		{
			name:       "absent account",
			account:    nil,
			wantStatus: StatusNone,
		},
		{
			name:       "trial active",
			account:    &store.AccountRecord{Plan: "trial", TrialEndsAt: nullTime(now.Add(48 * time.Hour)), UsageCount: 3},
			wantStatus: StatusTrialActive,
			wantAccess: true,
			wantModify: true,
			wantLimit:  50,
			wantDays:   2,
		},
		{
			name:        "trial expired in the past",
			account:     &store.AccountRecord{Plan: "trial", TrialEndsAt: nullTime(now.Add(-time.Hour)), UsageCount: 12},
			wantStatus:  StatusTrialExpired,
			wantAccess:  true,
			wantMessage: true,
		},
		{
			name:        "trial expiring at this instant",
			account:     &store.AccountRecord{Plan: "trial", TrialEndsAt: nullTime(now)},
			wantStatus:  StatusTrialExpired,
			wantAccess:  true,
			wantMessage: true,
		},
		{
			name:        "trial plan without trial end",
			account:     &store.AccountRecord{Plan: "trial"},
			wantStatus:  StatusInactive,
			wantMessage: true,
		},
		{
			name:       "standard active",
			account:    &store.AccountRecord{Plan: "standard", SubscriptionEndsAt: nullTime(now.Add(20 * 24 * time.Hour))},
			wantStatus: StatusSubscriptionActive,
			wantAccess: true,
			wantModify: true,
			wantLimit:  50,
		},
		{
			name:        "standard expired yesterday",
			account:     &store.AccountRecord{Plan: "standard", SubscriptionEndsAt: nullTime(now.Add(-24 * time.Hour))},
			wantStatus:  StatusInactive,
			wantMessage: true,
		},
		{
			name:       "pro active is unlimited",
			account:    &store.AccountRecord{Plan: "pro", SubscriptionEndsAt: nullTime(now.Add(24 * time.Hour)), UsageCount: 100000},
			wantStatus: StatusSubscriptionActive,
			wantAccess: true,
			wantModify: true,
			wantLimit:  UsageUnlimited,
		},
		{
			name:        "pro expired falls to inactive",
			account:     &store.AccountRecord{Plan: "pro", SubscriptionEndsAt: nullTime(now.Add(-time.Minute))},
			wantStatus:  StatusInactive,
			wantMessage: true,
		},
		{
			name: "upgraded trial judged on subscription window",
			account: &store.AccountRecord{
				Plan:               "standard",
				TrialEndsAt:        nullTime(now.Add(-30 * 24 * time.Hour)),
				SubscriptionEndsAt: nullTime(now.Add(10 * 24 * time.Hour)),
			},
			wantStatus: StatusSubscriptionActive,
			wantAccess: true,
			wantModify: true,
			wantLimit:  50,
		},
		{
			name:        "unknown plan degrades to inactive",
			account:     &store.AccountRecord{Plan: "platinum", SubscriptionEndsAt: nullTime(now.Add(24 * time.Hour))},
			wantStatus:  StatusInactive,
			wantMessage: true,
		},
		{
			name:        "unset plan",
			account:     &store.AccountRecord{Plan: "none"},
			wantStatus:  StatusInactive,
			wantMessage: true,
		},
		{
			name:       "plan normalization",
			account:    &store.AccountRecord{Plan: "  Trial ", TrialEndsAt: nullTime(now.Add(time.Hour))},
			wantStatus: StatusTrialActive,
			wantAccess: true,
			wantModify: true,
			wantLimit:  50,
			wantDays:   1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			decision := eval.Evaluate(tc.account, now)
			if decision.Status != tc.wantStatus {
				t.Fatalf("status: got %s want %s", decision.Status, tc.wantStatus)
			}
			if decision.CanAccess != tc.wantAccess {
				t.Fatalf("can_access: got %v want %v", decision.CanAccess, tc.wantAccess)
			}
			if decision.CanModify != tc.wantModify {
				t.Fatalf("can_modify: got %v want %v", decision.CanModify, tc.wantModify)
			}
			if decision.UsageLimit != tc.wantLimit {
				t.Fatalf("usage_limit: got %d want %d", decision.UsageLimit, tc.wantLimit)
			}
			if decision.DaysRemaining != tc.wantDays {
				t.Fatalf("days_remaining: got %d want %d", decision.DaysRemaining, tc.wantDays)
			}
			if tc.wantMessage && decision.Message == "" {
				t.Fatalf("expected a message for status %s", decision.Status)
			}
			if !tc.wantMessage && decision.Message != "" {
				t.Fatalf("unexpected message %q", decision.Message)
			}
			if tc.account != nil && decision.UsageCount != tc.account.UsageCount {
				t.Fatalf("usage_count: got %d want %d", decision.UsageCount, tc.account.UsageCount)
			}
		})
	}
}

func TestEvaluateCopiesUsageCountRegardlessOfStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	eval := NewEvaluator("")
	account := &store.AccountRecord{Plan: "trial", TrialEndsAt: nullTime(now.Add(-time.Hour)), UsageCount: 49}

	decision := eval.Evaluate(account, now)
	if decision.Status != StatusTrialExpired {
		t.Fatalf("expected trial_expired, got %s", decision.Status)
	}
	if decision.UsageCount != 49 {
		t.Fatalf("expected usage count carried over, got %d", decision.UsageCount)
	}
	if decision.CanModify {
		t.Fatalf("expired trial must not modify, regardless of usage count")
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	eval := NewEvaluator("")
	account := &store.AccountRecord{Plan: "trial", TrialEndsAt: nullTime(now.Add(36 * time.Hour)), UsageCount: 7}

	first := eval.Evaluate(account, now)
	second := eval.Evaluate(account, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different decisions: %+v vs %+v", first, second)
	}
	if account.UsageCount != 7 || account.Plan != "trial" {
		t.Fatalf("evaluate mutated its input: %+v", account)
	}
}

func TestDaysRemainingCeiling(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{name: "exact two days", end: now.Add(48 * time.Hour), want: 2},
		{name: "just over one day rounds up", end: now.Add(25 * time.Hour), want: 2},
		{name: "under one day reports one", end: now.Add(10 * time.Minute), want: 1},
		{name: "expiry instant reports zero", end: now, want: 0},
		{name: "past reports zero", end: now.Add(-time.Hour), want: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := daysRemaining(tc.end, now); got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}
