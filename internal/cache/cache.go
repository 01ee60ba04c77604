package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"brokerdesk/internal/store"
)

// ErrMiss is returned when no snapshot is cached for the account.
var ErrMiss = errors.New("cache miss")

// Cache holds short-lived account snapshots. Only raw account records are
// cached, never derived entitlement decisions, so a decision can only ever
// be as stale as its inputs. The usage mutator invalidates the snapshot
// after every counter write.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(url string, ttl time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: redis.NewClient(opt), ttl: ttl}, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func accountKey(accountID string) string {
	return "account_snapshot:" + accountID
}

func (c *Cache) GetAccount(ctx context.Context, accountID string) (store.AccountRecord, error) {
	var account store.AccountRecord
	data, err := c.client.Get(ctx, accountKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return account, ErrMiss
		}
		return account, err
	}
	if err := json.Unmarshal(data, &account); err != nil {
		return account, ErrMiss
	}
	return account, nil
}

func (c *Cache) SetAccount(ctx context.Context, account store.AccountRecord) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, accountKey(account.ID), data, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, accountID string) error {
	return c.client.Del(ctx, accountKey(accountID)).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
