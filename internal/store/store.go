package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AccountRecord is the persisted entitlement state for one CRM account.
// Exactly one of TrialEndsAt/SubscriptionEndsAt is meaningful at a time,
// selected by Plan.
type AccountRecord struct {
	ID                 string
	Email              string
	Plan               string
	TrialEndsAt        sql.NullTime
	SubscriptionEndsAt sql.NullTime
	UsageCount         int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const accountColumns = `id, email, plan, trial_ends_at, subscription_ends_at, usage_count, created_at, updated_at`

func scanAccount(row *sql.Row) (AccountRecord, error) {
	var a AccountRecord
	err := row.Scan(&a.ID, &a.Email, &a.Plan, &a.TrialEndsAt, &a.SubscriptionEndsAt, &a.UsageCount, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) CreateTrialAccount(ctx context.Context, email string, trialEndsAt time.Time) (AccountRecord, error) {
	id := uuid.NewString()
	row := s.db.QueryRowContext(ctx, `INSERT INTO accounts (id, email, plan, trial_ends_at, usage_count)
		VALUES ($1, $2, 'trial', $3, 0)
		RETURNING `+accountColumns, id, email, trialEndsAt)
	return scanAccount(row)
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (AccountRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (AccountRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *Store) SetAccountPlan(ctx context.Context, accountID string, plan string, subscriptionEndsAt sql.NullTime) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET plan = $2, subscription_ends_at = $3, updated_at = now() WHERE id = $1`,
		accountID, plan, subscriptionEndsAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementUsageCount bumps the metered-resource counter in a single atomic
// statement, returning the stored value after the write. Two concurrent calls
// can never observe the same prior count.
func (s *Store) IncrementUsageCount(ctx context.Context, accountID string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE accounts SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 RETURNING usage_count`, accountID)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DecrementUsageCount floors at zero inside the write itself, so a stale
// prior read can never push the stored count negative.
func (s *Store) DecrementUsageCount(ctx context.Context, accountID string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE accounts SET usage_count = GREATEST(usage_count - 1, 0), updated_at = now()
		WHERE id = $1 RETURNING usage_count`, accountID)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) SetUsageCount(ctx context.Context, accountID string, count int64) error {
	if count < 0 {
		count = 0
	}
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET usage_count = $2, updated_at = now() WHERE id = $1`, accountID, count)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type AccountUsage struct {
	AccountID  string
	UsageCount int64
}

func (s *Store) ListAccountUsage(ctx context.Context) ([]AccountUsage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, usage_count FROM accounts ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountUsage
	for rows.Next() {
		var u AccountUsage
		if err := rows.Scan(&u.AccountID, &u.UsageCount); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) RecordUsageEvent(ctx context.Context, accountID string, delta int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO usage_events (id, account_id, delta, reason) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), accountID, delta, reason)
	return err
}

func (s *Store) HealthSummary(ctx context.Context) (map[string]string, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"database": "ok"}, nil
}
