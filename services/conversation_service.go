package services

import (
	"log"
	"sync"
	"time"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/repository"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/utils"
)

// listCacheTTL bounds how stale a cached conversation list may get before a
// List call goes back to the repository.
const listCacheTTL = 15 * time.Second

// ConversationService is the conversation store exposed to handlers and the
// chat session controller. All operations require an authenticated identity;
// anonymous callers get ErrUnauthorized.
type ConversationService interface {
	List(identity models.Identity) ([]models.Conversation, error)

	// Start creates a conversation titled after the first message and stores
	// that message as its opening turn.
	Start(identity models.Identity, firstMessage string) (*models.Conversation, error)

	// Append adds a message to an existing conversation.
	Append(identity models.Identity, conversationID, role, content string) error

	LoadMessages(identity models.Identity, conversationID string) ([]models.Message, error)

	// Delete removes a conversation and its messages; a second delete of the
	// same conversation is a no-op.
	Delete(identity models.Identity, conversationID string) error

	// Invalidate drops the account's cached list. Called on realtime change
	// notifications from other tabs; the cache is advisory, never an
	// authoritative overwrite of in-flight state.
	Invalidate(accountID string)
}

type cachedList struct {
	conversations []models.Conversation
	fetchedAt     time.Time
}

type conversationService struct {
	repo          repository.ConversationRepository
	titleMaxRunes int

	mu    sync.Mutex
	cache map[string]cachedList
}

// NewConversationService creates a ConversationService. titleMaxRunes bounds
// the derived conversation title length.
func NewConversationService(repo repository.ConversationRepository, titleMaxRunes int) ConversationService {
	return &conversationService{
		repo:          repo,
		titleMaxRunes: titleMaxRunes,
		cache:         make(map[string]cachedList),
	}
}

func (s *conversationService) List(identity models.Identity) ([]models.Conversation, error) {
	if !identity.IsAuthenticated() {
		return nil, ErrUnauthorized
	}

	s.mu.Lock()
	entry, ok := s.cache[identity.AccountID]
	s.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < listCacheTTL {
		return entry.conversations, nil
	}

	conversations, err := s.repo.List(identity.AccountID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[identity.AccountID] = cachedList{conversations: conversations, fetchedAt: time.Now()}
	s.mu.Unlock()
	return conversations, nil
}

func (s *conversationService) Start(identity models.Identity, firstMessage string) (*models.Conversation, error) {
	if !identity.IsAuthenticated() {
		return nil, ErrUnauthorized
	}

	title := utils.TruncateRunes(firstMessage, s.titleMaxRunes)
	conversation, err := s.repo.Create(identity.AccountID, title)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Append(identity.AccountID, conversation.ID, "user", firstMessage); err != nil {
		return nil, err
	}

	s.Invalidate(identity.AccountID)
	return conversation, nil
}

func (s *conversationService) Append(identity models.Identity, conversationID, role, content string) error {
	if !identity.IsAuthenticated() {
		return ErrUnauthorized
	}
	if err := s.repo.Append(identity.AccountID, conversationID, role, content); err != nil {
		return err
	}
	s.Invalidate(identity.AccountID)
	return nil
}

func (s *conversationService) LoadMessages(identity models.Identity, conversationID string) ([]models.Message, error) {
	if !identity.IsAuthenticated() {
		return nil, ErrUnauthorized
	}
	return s.repo.LoadMessages(identity.AccountID, conversationID)
}

func (s *conversationService) Delete(identity models.Identity, conversationID string) error {
	if !identity.IsAuthenticated() {
		return ErrUnauthorized
	}
	if err := s.repo.Delete(identity.AccountID, conversationID); err != nil {
		return err
	}
	log.Printf("INFO: [ConversationService] Conversation %s deleted for account %s.", conversationID, identity.AccountID)
	s.Invalidate(identity.AccountID)
	return nil
}

func (s *conversationService) Invalidate(accountID string) {
	s.mu.Lock()
	delete(s.cache, accountID)
	s.mu.Unlock()
}
