package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

const (
	// Redis key prefix for quota records.
	quotaKeyPrefix = "quota:"
	// Records stay readable past midnight so the rollover comparison can
	// observe the stale period key, then expire on their own.
	quotaTTL = 48 * time.Hour
)

// redisQuotaRepository implements QuotaRepository on Redis. Records are stored
// as JSON under one key per scope; rollover works exactly as in the database
// store, by comparing the stored period key at read time.
type redisQuotaRepository struct {
	client *redis.Client
}

func newRedisQuotaRepository(client *redis.Client) *redisQuotaRepository {
	return &redisQuotaRepository{client: client}
}

func (r *redisQuotaRepository) Read(identity models.Identity, periodKey string) (*models.QuotaRecord, error) {
	ctx := context.Background()
	scopeKey := identity.ScopeKey()

	val, err := r.client.Get(ctx, r.key(scopeKey)).Result()
	if err == redis.Nil {
		return &models.QuotaRecord{ScopeKey: scopeKey, PeriodKey: periodKey}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quota for %s: %w", scopeKey, err)
	}

	var record models.QuotaRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to decode quota record for %s: %w", scopeKey, err)
	}

	if record.PeriodKey != periodKey {
		return &models.QuotaRecord{ScopeKey: scopeKey, PeriodKey: periodKey}, nil
	}
	return &record, nil
}

func (r *redisQuotaRepository) Increment(identity models.Identity, periodKey string, tokens int) (*models.QuotaRecord, error) {
	ctx := context.Background()
	scopeKey := identity.ScopeKey()

	record, err := r.Read(identity, periodKey)
	if err != nil {
		return nil, err
	}
	record.UsedTokens += tokens
	record.UpdatedAt = time.Now()

	val, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quota record for %s: %w", scopeKey, err)
	}
	if err := r.client.Set(ctx, r.key(scopeKey), val, quotaTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to persist quota for %s: %w", scopeKey, err)
	}
	return record, nil
}

func (r *redisQuotaRepository) key(scopeKey string) string {
	return quotaKeyPrefix + scopeKey
}
