package models

// ChatMessage is a single transcript entry as exchanged with the completion
// backend. Unlike Message it is not persisted; the chat session controller
// keeps the transcript in memory and only writes completed exchanges through
// the conversation store.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// UsageSnapshot is the quota counter exposed to the presentation layer after
// each exchange and via the usage endpoint.
type UsageSnapshot struct {
	UsedTokens      int     `json:"used_tokens"`
	DailyLimit      int     `json:"daily_limit"`
	RemainingTokens int     `json:"remaining_tokens"`
	UsedPercent     float64 `json:"used_percent"`
}

// NewUsageSnapshot derives the counter values the dashboard displays.
func NewUsageSnapshot(used, limit int) UsageSnapshot {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	pct := 0.0
	if limit > 0 {
		pct = float64(used) / float64(limit) * 100
	}
	return UsageSnapshot{
		UsedTokens:      used,
		DailyLimit:      limit,
		RemainingTokens: remaining,
		UsedPercent:     pct,
	}
}
