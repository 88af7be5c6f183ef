package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/middleware"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/repository"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/services"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/utils"
)

// ListConversationsHandler returns the caller's conversations, newest
// updated first.
func (h *APIHandler) ListConversationsHandler(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	conversations, err := h.conversationService.List(identity)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			utils.SendJSONError(c, http.StatusUnauthorized, "Sign in to access conversation history.", nil)
			return
		}
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to list conversations.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// ConversationMessagesHandler replays a conversation's messages in creation
// order.
func (h *APIHandler) ConversationMessagesHandler(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	conversationID := c.Param("conversationID")

	messages, err := h.conversationService.LoadMessages(identity, conversationID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnauthorized):
			utils.SendJSONError(c, http.StatusUnauthorized, "Sign in to access conversation history.", nil)
		case errors.Is(err, repository.ErrNotFound):
			utils.SendJSONError(c, http.StatusNotFound, "Conversation not found.", nil)
		default:
			utils.SendJSONError(c, http.StatusInternalServerError, "Failed to load messages.", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// DeleteConversationHandler removes a conversation and all its messages.
// Deleting an already-gone conversation succeeds quietly.
func (h *APIHandler) DeleteConversationHandler(c *gin.Context) {
	identity := middleware.IdentityFrom(c)
	conversationID := c.Param("conversationID")

	if err := h.conversationService.Delete(identity, conversationID); err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			utils.SendJSONError(c, http.StatusUnauthorized, "Sign in to manage conversation history.", nil)
			return
		}
		utils.SendJSONError(c, http.StatusInternalServerError, "Failed to delete conversation.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": conversationID})
}
