package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/eaglebank/bank-service/internal/ledger"
	"github.com/eaglebank/bank-service/shared/models"
	sharedredis "github.com/eaglebank/bank-service/shared/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const accountViewKeyPrefix = "bank:view:"

// AccountViewRepository serves the admin read model. Redis holds the
// projected AccountViews; the ledger is the fallback and the source of
// truth, and every cold read warms the cache. A nil Redis client disables
// caching entirely.
type AccountViewRepository struct {
	ledger  ledger.Ledger
	redis   *goredis.Client
	cache   *sharedredis.ViewCache[models.AccountView]
	reserve string
}

func NewAccountViewRepository(l ledger.Ledger, redisClient *goredis.Client, reserveID string) *AccountViewRepository {
	r := &AccountViewRepository{ledger: l, redis: redisClient, reserve: reserveID}
	if redisClient != nil {
		r.cache = sharedredis.NewViewCache[models.AccountView](redisClient, 0)
	}
	return r
}

// GetByUsername returns an AccountView, trying Redis first then the ledger.
func (r *AccountViewRepository) GetByUsername(ctx context.Context, username string) (*models.AccountView, error) {
	if r.cache != nil {
		if view, ok := r.cache.Get(ctx, accountViewKeyPrefix+username); ok {
			return view, nil
		}
	}

	acct, err := r.ledger.Get(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account view: %w", err)
	}
	view := r.toView(acct.ID, acct.Balance, acct.Debt, acct.Version)
	r.CacheAccountView(ctx, view)
	return view, nil
}

// List reads every account from a ledger snapshot and refreshes the cache
// with it.
func (r *AccountViewRepository) List(ctx context.Context) ([]models.AccountView, error) {
	accounts, err := r.ledger.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list account views: %w", err)
	}
	views := make([]models.AccountView, 0, len(accounts))
	for _, acct := range accounts {
		view := r.toView(acct.ID, acct.Balance, acct.Debt, acct.Version)
		r.CacheAccountView(ctx, view)
		views = append(views, *view)
	}
	return views, nil
}

// Refresh applies a committed state from the event stream. States older
// than the cached version are ignored so redelivered or reordered events
// cannot roll a view back.
func (r *AccountViewRepository) Refresh(ctx context.Context, state models.AccountState) {
	if r.cache == nil {
		return
	}
	key := accountViewKeyPrefix + state.Username
	if cached, ok := r.cache.Get(ctx, key); ok && cached.Version >= state.Version {
		return
	}
	r.CacheAccountView(ctx, r.toView(state.Username, state.Balance, state.Debt, state.Version))
}

// CacheAccountView stores or refreshes the Redis read model for an account.
func (r *AccountViewRepository) CacheAccountView(ctx context.Context, view *models.AccountView) {
	if r.cache == nil {
		return
	}
	r.cache.Set(ctx, accountViewKeyPrefix+view.Username, view)
}

// InvalidateAccountView drops the cached view so the next read goes to the
// ledger.
func (r *AccountViewRepository) InvalidateAccountView(ctx context.Context, username string) {
	if r.cache == nil {
		return
	}
	r.cache.Delete(ctx, accountViewKeyPrefix+username)
}

const processedEventKeyPrefix = "bank:processed:evt:"

// IsEventProcessed returns true if this event ID has already been projected.
// Guards against duplicate delivery under at-least-once Redis Streams
// semantics.
func (r *AccountViewRepository) IsEventProcessed(ctx context.Context, eventID string) bool {
	if r.redis == nil {
		return false
	}
	val, err := r.redis.Exists(ctx, processedEventKeyPrefix+eventID).Result()
	return err == nil && val > 0
}

// MarkEventProcessed records that an event has been projected. The key
// expires after 72 hours, which covers any realistic redelivery window from
// a consumer group.
func (r *AccountViewRepository) MarkEventProcessed(ctx context.Context, eventID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Set(ctx, processedEventKeyPrefix+eventID, "1", 72*time.Hour).Err(); err != nil {
		logrus.WithError(err).WithField("event_id", eventID).Warn("failed to mark event as processed")
	}
}

func (r *AccountViewRepository) toView(username string, balance, debt, version int64) *models.AccountView {
	return &models.AccountView{
		Username:  username,
		Balance:   balance,
		Debt:      debt,
		Version:   version,
		Reserve:   username == r.reserve,
		UpdatedAt: time.Now().UTC(),
	}
}
