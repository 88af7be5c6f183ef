package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

// Notices surfaced to the presentation layer for blocked submissions.
const (
	noticeRateLimited   = "Please wait a few seconds before sending another message."
	noticeQuotaExceeded = "You have reached your daily usage limit. It resets tomorrow."
	noticeSignIn        = "You have reached the free daily limit. Sign in or create an account to keep chatting with a larger quota."
	noticeUsageWarning  = "Heads up: you have used over 90% of your daily limit."
)

// SubmitResult is what the presentation layer needs after a submit attempt:
// the controller state, the reply, and any one-shot notices.
type SubmitResult struct {
	State          SessionState         `json:"state"`
	Reply          string               `json:"reply,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Notice         string               `json:"notice,omitempty"`
	SignInPrompt   bool                 `json:"sign_in_prompt,omitempty"`
	Warning        string               `json:"warning,omitempty"`
	Usage          models.UsageSnapshot `json:"usage"`

	// PersistenceFailed is set when the exchange succeeded but saving the
	// history did not. The reply is still usable.
	PersistenceFailed bool `json:"persistence_failed,omitempty"`
}

// ChunkFunc receives incremental assistant content as it streams in. A non-nil
// return abandons the stream.
type ChunkFunc func(chunk string) error

// ChatService is the chat session controller: it validates a send attempt
// against quota and rate limits, streams the reply from the completion
// backend, charges quota and persists history for authenticated identities.
type ChatService interface {
	// Submit runs one exchange. Quota and rate-limit blocks come back as
	// ErrQuotaExceeded / ErrRateLimited with a populated result; they are
	// expected control flow and reach the backend in neither case.
	Submit(ctx context.Context, identity models.Identity, conversationID, text string, emit ChunkFunc) (*SubmitResult, error)

	// Usage returns the identity's current quota counter.
	Usage(identity models.Identity) (models.UsageSnapshot, error)

	// CloseSession discards the identity's session state.
	CloseSession(identity models.Identity)
}

type chatService struct {
	completion    CompletionClient
	quota         QuotaService
	conversations ConversationService
	sessions      *SessionRegistry
	warnThreshold float64
	historyLimit  int
}

// NewChatService creates the chat session controller with its injected
// dependencies.
func NewChatService(
	completion CompletionClient,
	quota QuotaService,
	conversations ConversationService,
	sessions *SessionRegistry,
	warnThreshold float64,
	historyLimit int,
) ChatService {
	if warnThreshold <= 0 {
		warnThreshold = 0.9
	}
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &chatService{
		completion:    completion,
		quota:         quota,
		conversations: conversations,
		sessions:      sessions,
		warnThreshold: warnThreshold,
		historyLimit:  historyLimit,
	}
}

func (s *chatService) Submit(ctx context.Context, identity models.Identity, conversationID, text string, emit ChunkFunc) (*SubmitResult, error) {
	session := s.sessions.Session(identity)
	session.mu.Lock()
	defer session.mu.Unlock()

	session.state = StateComposing

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// Whitespace-only input is a no-op, not an error.
		return &SubmitResult{State: StateComposing}, nil
	}

	estimated := EstimateTokens(trimmed)
	limit := s.quota.DailyLimit(identity)

	record, err := s.quota.Read(identity)
	if err != nil {
		// A failed quota read must not take the chat down; treat as zero
		// usage and log it.
		log.Printf("WARN: [ChatService] Quota read failed for %s, assuming zero usage: %v", identity.ScopeKey(), err)
		record = &models.QuotaRecord{ScopeKey: identity.ScopeKey()}
	}

	// Anonymous visitors with an exhausted quota get the sign-in offer
	// before anything else, and the backend is never contacted.
	if !identity.IsAuthenticated() && record.UsedTokens >= limit {
		return s.blockOnQuota(session, identity, record, limit), ErrQuotaExceeded
	}

	if !session.limiter.CheckAndRecord(time.Now()) {
		session.state = StateBlocked
		return &SubmitResult{
			State:  StateBlocked,
			Notice: noticeRateLimited,
			Usage:  models.NewUsageSnapshot(record.UsedTokens, limit),
		}, ErrRateLimited
	}

	if record.UsedTokens+estimated > limit {
		return s.blockOnQuota(session, identity, record, limit), ErrQuotaExceeded
	}

	// Checks passed: the user message joins the visible transcript and the
	// exchange moves to Sending.
	session.transcript = append(session.transcript, models.ChatMessage{Role: "user", Content: trimmed})
	session.state = StateSending

	stream, err := s.completion.StreamCompletion(ctx, s.historyWindow(session.transcript))
	if err != nil {
		s.rollback(session, 1)
		return &SubmitResult{State: StateComposing}, fmt.Errorf("completion backend unavailable: %w", err)
	}
	defer stream.Close()

	// Backend accepted: an empty assistant placeholder is appended and
	// filled monotonically as chunks arrive.
	session.state = StateStreaming
	session.transcript = append(session.transcript, models.ChatMessage{Role: "assistant"})

	var reply strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			// Transport failure mid-stream: roll the transcript back to
			// its pre-attempt state. Nothing is charged or persisted.
			s.rollback(session, 2)
			return &SubmitResult{State: StateComposing}, fmt.Errorf("stream interrupted: %w", recvErr)
		}
		if chunk == "" {
			continue
		}
		reply.WriteString(chunk)
		session.transcript[len(session.transcript)-1].Content = reply.String()
		if emit != nil {
			if emitErr := emit(chunk); emitErr != nil {
				// The client went away; abandon the stream without
				// charging or persisting the partial reply.
				s.rollback(session, 2)
				return &SubmitResult{State: StateComposing}, fmt.Errorf("client disconnected: %w", emitErr)
			}
		}
	}

	finalReply := reply.String()
	totalTokens := estimated + EstimateTokens(finalReply)

	charged, chargeErr := s.quota.Charge(identity, totalTokens)
	if chargeErr != nil {
		log.Printf("ERROR: [ChatService] Failed to charge %d tokens for %s: %v", totalTokens, identity.ScopeKey(), chargeErr)
		// Carry on with the locally computed total so the warning check and
		// the returned counter stay meaningful.
		charged = &models.QuotaRecord{ScopeKey: record.ScopeKey, PeriodKey: record.PeriodKey, UsedTokens: record.UsedTokens + totalTokens}
	}

	session.state = StateIdle
	session.signInPromptShown = false

	result := &SubmitResult{
		State:          StateIdle,
		Reply:          finalReply,
		ConversationID: conversationID,
		Usage:          models.NewUsageSnapshot(charged.UsedTokens, limit),
	}

	if identity.IsAuthenticated() {
		persistedID, persistErr := s.persistExchange(identity, conversationID, trimmed, finalReply)
		if persistErr != nil {
			// History failed to save; the in-memory transcript and the
			// streamed reply are unaffected.
			log.Printf("ERROR: [ChatService] Failed to persist exchange for %s: %v", identity.ScopeKey(), persistErr)
			result.PersistenceFailed = true
		} else {
			result.ConversationID = persistedID
		}
	}

	if !session.warningShown && float64(charged.UsedTokens) >= s.warnThreshold*float64(limit) {
		session.warningShown = true
		result.Warning = noticeUsageWarning
	}

	return result, nil
}

func (s *chatService) Usage(identity models.Identity) (models.UsageSnapshot, error) {
	record, err := s.quota.Read(identity)
	if err != nil {
		return models.UsageSnapshot{}, err
	}
	return models.NewUsageSnapshot(record.UsedTokens, s.quota.DailyLimit(identity)), nil
}

func (s *chatService) CloseSession(identity models.Identity) {
	s.sessions.Close(identity)
}

// blockOnQuota moves the session to Blocked and surfaces the sign-in prompt
// for anonymous identities, once per exhaustion episode.
func (s *chatService) blockOnQuota(session *ChatSession, identity models.Identity, record *models.QuotaRecord, limit int) *SubmitResult {
	session.state = StateBlocked
	result := &SubmitResult{
		State:  StateBlocked,
		Notice: noticeQuotaExceeded,
		Usage:  models.NewUsageSnapshot(record.UsedTokens, limit),
	}
	if !identity.IsAuthenticated() {
		result.Notice = noticeSignIn
		if !session.signInPromptShown {
			session.signInPromptShown = true
			result.SignInPrompt = true
		}
	}
	return result
}

// persistExchange writes both turns of a completed exchange, creating the
// conversation on the first message of a thread.
func (s *chatService) persistExchange(identity models.Identity, conversationID, userText, assistantText string) (string, error) {
	if conversationID == "" {
		conversation, err := s.conversations.Start(identity, userText)
		if err != nil {
			return "", err
		}
		conversationID = conversation.ID
	} else {
		if err := s.conversations.Append(identity, conversationID, "user", userText); err != nil {
			return "", err
		}
	}
	if err := s.conversations.Append(identity, conversationID, "assistant", assistantText); err != nil {
		return conversationID, err
	}
	return conversationID, nil
}

// rollback removes the last n transcript entries and returns the controller
// to Composing so the user can retry without losing the typed input.
func (s *chatService) rollback(session *ChatSession, n int) {
	if n > len(session.transcript) {
		n = len(session.transcript)
	}
	session.transcript = session.transcript[:len(session.transcript)-n]
	session.state = StateComposing
}

// historyWindow bounds how much transcript is sent to the completion backend.
func (s *chatService) historyWindow(transcript []models.ChatMessage) []models.ChatMessage {
	if len(transcript) <= s.historyLimit {
		return transcript
	}
	return transcript[len(transcript)-s.historyLimit:]
}
