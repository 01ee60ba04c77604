// Package reconcile repairs drift between an account's usage counter and the
// number of client records it actually owns. Drift appears when a caller
// creates or deletes a record without going through the usage mutator; the
// counter is bookkeeping, the clients table is the ground truth.
package reconcile

import (
	"context"
	"log"
	"time"

	"brokerdesk/internal/store"
)

type Service struct {
	Store  *store.Store
	Logger *log.Logger
	Now    func() time.Time
}

type Report struct {
	AccountsScanned  int
	CountersRepaired int
}

func NewService(st *store.Store) *Service {
	return &Service{
		Store:  st,
		Logger: log.Default(),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Run(ctx context.Context) (Report, error) {
	var report Report
	if s == nil || s.Store == nil {
		return report, nil
	}

	usages, err := s.Store.ListAccountUsage(ctx)
	if err != nil {
		return report, err
	}
	for _, usage := range usages {
		report.AccountsScanned++
		actual, err := s.Store.CountClientsByAccount(ctx, usage.AccountID)
		if err != nil {
			return report, err
		}
		if actual == usage.UsageCount {
			continue
		}
		if err := s.Store.SetUsageCount(ctx, usage.AccountID, actual); err != nil {
			return report, err
		}
		if err := s.Store.RecordUsageEvent(ctx, usage.AccountID, actual-usage.UsageCount, "reconcile_repair"); err != nil {
			s.Logger.Printf("reconcile event write failed account_id=%s err=%v", usage.AccountID, err)
		}
		s.Logger.Printf("reconcile repaired account_id=%s stored=%d actual=%d", usage.AccountID, usage.UsageCount, actual)
		report.CountersRepaired++
	}

	return report, nil
}
