package repository

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
)

// ConversationRepository persists conversations and their messages. Every
// operation is scoped to the owning account; rows belonging to other accounts
// behave as if they did not exist.
type ConversationRepository interface {
	// List returns the account's conversations, newest updated first.
	List(accountID string) ([]models.Conversation, error)

	// Create starts a new conversation with the given title.
	Create(accountID, title string) (*models.Conversation, error)

	// Append inserts a message and bumps the conversation's UpdatedAt.
	// Returns ErrNotFound when the conversation does not exist or is not
	// owned by the account.
	Append(accountID, conversationID string, role, content string) error

	// LoadMessages returns the conversation's messages in creation order.
	// Returns ErrNotFound for a missing or foreign conversation.
	LoadMessages(accountID, conversationID string) ([]models.Message, error)

	// Delete removes the conversation and all its messages. Deleting an
	// already-gone conversation is a no-op.
	Delete(accountID, conversationID string) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a gorm-backed ConversationRepository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) List(accountID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.
		Where("account_id = ?", accountID).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for account %s: %w", accountID, err)
	}
	return conversations, nil
}

func (r *conversationRepository) Create(accountID, title string) (*models.Conversation, error) {
	now := time.Now()
	conversation := models.Conversation{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.Create(&conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation for account %s: %w", accountID, err)
	}
	log.Printf("INFO: [ConversationRepository] Created conversation %s for account %s.", conversation.ID, accountID)
	return &conversation, nil
}

func (r *conversationRepository) Append(accountID, conversationID string, role, content string) error {
	conversation, err := r.owned(accountID, conversationID)
	if err != nil {
		return err
	}

	message := models.Message{
		ConversationID: conversation.ID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := r.db.Create(&message).Error; err != nil {
		return fmt.Errorf("failed to append message to conversation %s: %w", conversationID, err)
	}

	if err := r.db.Model(&models.Conversation{}).
		Where("id = ?", conversation.ID).
		Update("updated_at", message.CreatedAt).Error; err != nil {
		return fmt.Errorf("failed to bump conversation %s: %w", conversationID, err)
	}
	return nil
}

func (r *conversationRepository) LoadMessages(accountID, conversationID string) ([]models.Message, error) {
	if _, err := r.owned(accountID, conversationID); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := r.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for conversation %s: %w", conversationID, err)
	}
	return messages, nil
}

func (r *conversationRepository) Delete(accountID, conversationID string) error {
	conversation, err := r.owned(accountID, conversationID)
	if errors.Is(err, ErrNotFound) {
		// Already gone; deleting twice is a no-op for the caller.
		return nil
	}
	if err != nil {
		return err
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversation.ID).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages of conversation %s: %w", conversationID, err)
		}
		if err := tx.Delete(&models.Conversation{}, "id = ?", conversation.ID).Error; err != nil {
			return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
		}
		log.Printf("INFO: [ConversationRepository] Deleted conversation %s for account %s.", conversationID, accountID)
		return nil
	})
}

// owned fetches a conversation and verifies ownership. Foreign rows surface
// as ErrNotFound, never as a permission hint.
func (r *conversationRepository) owned(accountID, conversationID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.First(&conversation, "id = ? AND account_id = ?", conversationID, accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch conversation %s: %w", conversationID, err)
	}
	return &conversation, nil
}
