package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ClientRecord is one metered CRM resource owned by an account. The account's
// usage counter tracks how many of these the account holds; the counter is
// maintained by callers, not derived from this table (see internal/reconcile
// for drift repair).
type ClientRecord struct {
	ID        string
	AccountID string
	FullName  string
	Email     string
	Phone     string
	Stage     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const clientColumns = `id, account_id, full_name, email, phone, stage, created_at, updated_at`

func (s *Store) CreateClient(ctx context.Context, client ClientRecord) (ClientRecord, error) {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	if client.Stage == "" {
		client.Stage = "lead"
	}
	row := s.db.QueryRowContext(ctx, `INSERT INTO clients (id, account_id, full_name, email, phone, stage)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+clientColumns,
		client.ID, client.AccountID, client.FullName, client.Email, client.Phone, client.Stage)
	var out ClientRecord
	err := row.Scan(&out.ID, &out.AccountID, &out.FullName, &out.Email, &out.Phone, &out.Stage, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (s *Store) GetClientForAccount(ctx context.Context, accountID, clientID string) (ClientRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1 AND account_id = $2`, clientID, accountID)
	var out ClientRecord
	err := row.Scan(&out.ID, &out.AccountID, &out.FullName, &out.Email, &out.Phone, &out.Stage, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (s *Store) ListClientsByAccount(ctx context.Context, accountID string, limit int) ([]ClientRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []ClientRecord
	for rows.Next() {
		var c ClientRecord
		if err := rows.Scan(&c.ID, &c.AccountID, &c.FullName, &c.Email, &c.Phone, &c.Stage, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// DeleteClientForAccount reports whether a row was actually removed so the
// caller knows whether to decrement the usage counter.
func (s *Store) DeleteClientForAccount(ctx context.Context, accountID, clientID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1 AND account_id = $2`, clientID, accountID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) CountClientsByAccount(ctx context.Context, accountID string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM clients WHERE account_id = $1`, accountID)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
