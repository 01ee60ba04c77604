// Package usage owns every change to an account's metered-resource counter.
// The gate decides whether a new addition is allowed; this service performs
// the bookkeeping once the creation or deletion has already happened.
//
// Counter writes are single atomic statements rather than the read-then-write
// the original front end performed, so two concurrent calls can never lose an
// increment (see TestConcurrentIncrementsLoseNothing in the store package).
package usage

import (
	"context"
	"errors"
	"log"
	"time"

	"brokerdesk/internal/auth"
	"brokerdesk/internal/cache"
	"brokerdesk/internal/observability"
	"brokerdesk/internal/store"
)

var ErrNotAuthenticated = errors.New("not authenticated")

const (
	reasonIncrement = "usage_increment"
	reasonDecrement = "usage_decrement"
)

type MutateFunc func(ctx context.Context, accountID string) (int64, error)
type ReloadFunc func(ctx context.Context, accountID string) (store.AccountRecord, error)
type RecordEventFunc func(ctx context.Context, accountID string, delta int64, reason string) error
type InvalidateFunc func(ctx context.Context, accountID string) error

type Service struct {
	Store    *store.Store
	Cache    *cache.Cache
	Observer *observability.EntitlementObserver
	Logger   *log.Logger
	Now      func() time.Time

	IncrementCount MutateFunc
	DecrementCount MutateFunc
	Reload         ReloadFunc
	RecordEvent    RecordEventFunc
	Invalidate     InvalidateFunc
}

func NewService(st *store.Store, c *cache.Cache, observer *observability.EntitlementObserver, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	svc := &Service{
		Store:    st,
		Cache:    c,
		Observer: observer,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}
	if st != nil {
		svc.IncrementCount = st.IncrementUsageCount
		svc.DecrementCount = st.DecrementUsageCount
		svc.Reload = st.GetAccount
		svc.RecordEvent = st.RecordUsageEvent
	}
	if c != nil {
		svc.Invalidate = c.Invalidate
	}
	return svc
}

// Increment bumps the counter for the principal's account and returns the
// freshly reloaded record. The counter write failing is fatal to the call;
// everything after it (event row, cache invalidation, reload) is best-effort
// because the write has already landed.
func (s *Service) Increment(ctx context.Context, principal auth.Principal) (store.AccountRecord, error) {
	return s.apply(ctx, principal, s.IncrementCount, 1, reasonIncrement)
}

// Decrement lowers the counter, flooring at zero inside the write itself so
// a concurrent decrement can never push the stored value negative.
func (s *Service) Decrement(ctx context.Context, principal auth.Principal) (store.AccountRecord, error) {
	return s.apply(ctx, principal, s.DecrementCount, -1, reasonDecrement)
}

func (s *Service) apply(ctx context.Context, principal auth.Principal, mutate MutateFunc, delta int64, reason string) (store.AccountRecord, error) {
	if principal.AccountID == "" {
		return store.AccountRecord{}, ErrNotAuthenticated
	}
	if mutate == nil {
		return store.AccountRecord{}, errors.New("usage service not configured")
	}

	accountID := principal.AccountID
	count, err := mutate(ctx, accountID)
	if err != nil {
		return store.AccountRecord{}, err
	}

	if s.RecordEvent != nil {
		if err := s.RecordEvent(ctx, accountID, delta, reason); err != nil {
			s.Logger.Printf("usage event write failed account_id=%s reason=%s err=%v", accountID, reason, err)
		}
	}
	if s.Invalidate != nil {
		if err := s.Invalidate(ctx, accountID); err != nil {
			s.Logger.Printf("usage cache invalidation failed account_id=%s err=%v", accountID, err)
		}
	}

	if s.Reload == nil {
		return store.AccountRecord{ID: accountID, UsageCount: count}, nil
	}
	account, err := s.Reload(ctx, accountID)
	if err != nil {
		// The counter write already succeeded; a failed reload only means
		// the caller sees a projection until the next successful read.
		s.Logger.Printf("account reload failed after usage write account_id=%s err=%v", accountID, err)
		return store.AccountRecord{ID: accountID, UsageCount: count}, nil
	}
	return account, nil
}
