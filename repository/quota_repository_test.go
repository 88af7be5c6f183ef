package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

func TestQuotaRepository_ReadMissingReturnsZeroRecord(t *testing.T) {
	repo, err := NewQuotaRepository(QuotaStoreDatabase, testDB(t), nil)
	require.NoError(t, err)

	identity := models.Identity{DeviceID: "device-1"}
	record, err := repo.Read(identity, "2026-08-29")
	require.NoError(t, err)

	assert.Equal(t, identity.ScopeKey(), record.ScopeKey)
	assert.Equal(t, "2026-08-29", record.PeriodKey)
	assert.Equal(t, 0, record.UsedTokens)
}

func TestQuotaRepository_IncrementIsMonotoneWithinDay(t *testing.T) {
	repo, err := NewQuotaRepository(QuotaStoreDatabase, testDB(t), nil)
	require.NoError(t, err)

	identity := models.Identity{AccountID: "acct-1"}
	day := "2026-08-29"

	previous := 0
	for _, tokens := range []int{100, 50, 250, 1} {
		record, err := repo.Increment(identity, day, tokens)
		require.NoError(t, err)
		assert.Greater(t, record.UsedTokens, previous)
		assert.Equal(t, previous+tokens, record.UsedTokens)
		previous = record.UsedTokens
	}

	// Read-after-write observes the incremented value.
	record, err := repo.Read(identity, day)
	require.NoError(t, err)
	assert.Equal(t, 401, record.UsedTokens)
}

func TestQuotaRepository_DayRolloverResetsToZero(t *testing.T) {
	repo, err := NewQuotaRepository(QuotaStoreDatabase, testDB(t), nil)
	require.NoError(t, err)

	identity := models.Identity{DeviceID: "device-2"}

	_, err = repo.Increment(identity, "2026-08-29", 800)
	require.NoError(t, err)

	// The next day reads as a fresh zero record, no carryover.
	record, err := repo.Read(identity, "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, 0, record.UsedTokens)
	assert.Equal(t, "2026-08-30", record.PeriodKey)

	// An increment on the new day restarts the counter.
	record, err = repo.Increment(identity, "2026-08-30", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, record.UsedTokens)

	// The old day's count is gone for good.
	record, err = repo.Read(identity, "2026-08-30")
	require.NoError(t, err)
	assert.Equal(t, 42, record.UsedTokens)
}

func TestQuotaRepository_ScopesAreIndependent(t *testing.T) {
	repo, err := NewQuotaRepository(QuotaStoreDatabase, testDB(t), nil)
	require.NoError(t, err)

	day := "2026-08-29"
	device := models.Identity{DeviceID: "device-3"}
	account := models.Identity{AccountID: "acct-3"}

	_, err = repo.Increment(device, day, 500)
	require.NoError(t, err)

	record, err := repo.Read(account, day)
	require.NoError(t, err)
	assert.Equal(t, 0, record.UsedTokens)
}

func TestNewQuotaRepository_Validation(t *testing.T) {
	_, err := NewQuotaRepository("bogus", testDB(t), nil)
	assert.ErrorIs(t, err, ErrInvalidStoreType)

	_, err = NewQuotaRepository(QuotaStoreDatabase, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewQuotaRepository(QuotaStoreRedis, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
