package services

import (
	"time"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/repository"
)

// periodKeyLayout is the calendar-day key for quota records. Rollover is an
// explicit key comparison in the repository, independent of formatting.
const periodKeyLayout = "2006-01-02"

// QuotaService is the quota store facade: it derives the current period key
// and applies the per-identity daily limits.
type QuotaService interface {
	// Read returns the identity's quota record for the current day.
	Read(identity models.Identity) (*models.QuotaRecord, error)

	// Charge adds tokens to the identity's counter for the current day.
	Charge(identity models.Identity, tokens int) (*models.QuotaRecord, error)

	// DailyLimit returns the identity's daily token limit.
	DailyLimit(identity models.Identity) int
}

type quotaService struct {
	repo      repository.QuotaRepository
	anonLimit int
	authLimit int
	now       func() time.Time
}

// NewQuotaService creates a QuotaService with the given limits.
func NewQuotaService(repo repository.QuotaRepository, anonLimit, authLimit int) QuotaService {
	return &quotaService{
		repo:      repo,
		anonLimit: anonLimit,
		authLimit: authLimit,
		now:       time.Now,
	}
}

func (s *quotaService) Read(identity models.Identity) (*models.QuotaRecord, error) {
	return s.repo.Read(identity, s.periodKey())
}

func (s *quotaService) Charge(identity models.Identity, tokens int) (*models.QuotaRecord, error) {
	if tokens < 0 {
		tokens = 0
	}
	return s.repo.Increment(identity, s.periodKey(), tokens)
}

func (s *quotaService) DailyLimit(identity models.Identity) int {
	if identity.IsAuthenticated() {
		return s.authLimit
	}
	return s.anonLimit
}

func (s *quotaService) periodKey() string {
	return s.now().Format(periodKeyLayout)
}
