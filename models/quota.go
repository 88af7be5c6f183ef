package models

import "time"

// QuotaRecord tracks token usage for one identity within one calendar day.
// At most one record is active per ScopeKey; when PeriodKey no longer matches
// the current day the record is superseded by a fresh zero record.
type QuotaRecord struct {
	ScopeKey   string    `json:"scope_key" gorm:"primaryKey"`
	PeriodKey  string    `json:"period_key"` // calendar day, "2006-01-02"
	UsedTokens int       `json:"used_tokens" gorm:"default:0"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for the QuotaRecord model.
func (QuotaRecord) TableName() string {
	return "quota_records"
}
