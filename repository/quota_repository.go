package repository

import (
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

// QuotaRepository is the durable per-identity daily token counter.
//
// Day rollover is enforced at read time: when the stored record's period key
// does not match the requested one, a fresh zero record is returned (and the
// next increment starts from zero). Records are never explicitly deleted;
// the next day's record supersedes them.
type QuotaRepository interface {
	// Read returns the quota record for the identity and period. A missing
	// or stale record yields a fresh zero record, not an error.
	Read(identity models.Identity, periodKey string) (*models.QuotaRecord, error)

	// Increment adds tokens to the identity's counter for the period and
	// returns the persisted record. Read-after-write within the process
	// observes the incremented value.
	Increment(identity models.Identity, periodKey string, tokens int) (*models.QuotaRecord, error)
}

// Quota store selections understood by NewQuotaRepository.
const (
	QuotaStoreDatabase = "database"
	QuotaStoreRedis    = "redis"
)

// NewQuotaRepository creates a quota repository backed by the selected store.
func NewQuotaRepository(storeType string, db *gorm.DB, redisClient *redis.Client) (QuotaRepository, error) {
	switch storeType {
	case QuotaStoreDatabase, "":
		if db == nil {
			return nil, fmt.Errorf("%w: database store requires a gorm DB", ErrInvalidConfig)
		}
		return &gormQuotaRepository{db: db}, nil
	case QuotaStoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("%w: redis store requires a redis client", ErrInvalidConfig)
		}
		return newRedisQuotaRepository(redisClient), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}

type gormQuotaRepository struct {
	db *gorm.DB
}

func (r *gormQuotaRepository) Read(identity models.Identity, periodKey string) (*models.QuotaRecord, error) {
	scopeKey := identity.ScopeKey()

	var record models.QuotaRecord
	err := r.db.First(&record, "scope_key = ?", scopeKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.QuotaRecord{ScopeKey: scopeKey, PeriodKey: periodKey}, nil
		}
		return nil, fmt.Errorf("failed to fetch quota for %s: %w", scopeKey, err)
	}

	// Day rollover: a record from a previous period reads as zero.
	if record.PeriodKey != periodKey {
		return &models.QuotaRecord{ScopeKey: scopeKey, PeriodKey: periodKey}, nil
	}
	return &record, nil
}

func (r *gormQuotaRepository) Increment(identity models.Identity, periodKey string, tokens int) (*models.QuotaRecord, error) {
	scopeKey := identity.ScopeKey()

	recordToUpsert := models.QuotaRecord{
		ScopeKey:   scopeKey,
		PeriodKey:  periodKey,
		UsedTokens: tokens,
	}

	// UPSERT on the scope key. An existing record from the same period is
	// incremented; one from a previous period is restarted at this count.
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"used_tokens": gorm.Expr("CASE WHEN period_key = ? THEN used_tokens + ? ELSE ? END", periodKey, tokens, tokens),
			"period_key":  periodKey,
		}),
	}).Create(&recordToUpsert).Error
	if err != nil {
		return nil, fmt.Errorf("failed to increment quota for %s: %w", scopeKey, err)
	}

	// The upserted struct does not reflect the DoUpdates branch; re-fetch.
	var current models.QuotaRecord
	if fetchErr := r.db.First(&current, "scope_key = ?", scopeKey).Error; fetchErr != nil {
		return nil, fmt.Errorf("failed to fetch quota for %s after increment: %w", scopeKey, fetchErr)
	}

	log.Printf("INFO: [QuotaRepository] Incremented quota for %s by %d tokens. New count: %d", scopeKey, tokens, current.UsedTokens)
	return &current, nil
}
