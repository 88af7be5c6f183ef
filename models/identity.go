package models

// Identity is the actor whose quota and conversation history are tracked.
// An identity is either account-scoped (authenticated) or device-scoped
// (anonymous visitor). Exactly one of the two fields is set.
type Identity struct {
	AccountID string `json:"account_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// IsAuthenticated reports whether the identity is backed by an account session.
func (i Identity) IsAuthenticated() bool {
	return i.AccountID != ""
}

// ScopeKey returns the stable storage key for this identity. Quota records and
// chat sessions are both keyed by it.
func (i Identity) ScopeKey() string {
	if i.IsAuthenticated() {
		return "account:" + i.AccountID
	}
	return "device:" + i.DeviceID
}
