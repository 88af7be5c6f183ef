package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/config"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/middleware"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/models"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/services"
)

// APIHandler holds all dependencies for API handlers.
type APIHandler struct {
	chatService         services.ChatService
	conversationService services.ConversationService
}

// NewAPIHandler creates a new APIHandler with necessary dependencies.
func NewAPIHandler(chatService services.ChatService, conversationService services.ConversationService) *APIHandler {
	return &APIHandler{
		chatService:         chatService,
		conversationService: conversationService,
	}
}

// InitResponse is the payload of the /api/init probe: who the caller is and
// what limits apply.
type InitResponse struct {
	UserType            string `json:"user_type"` // "anonymous" or "authenticated"
	ScopeKey            string `json:"scope_key"`
	AnonymousDailyLimit int    `json:"anonymous_daily_limit"`
	DailyLimit          int    `json:"daily_limit"`
	UsedTokens          int    `json:"used_tokens"`
	RemainingTokens     int    `json:"remaining_tokens"`
}

// InitHandler reports the resolved identity and its quota so the widget can
// bootstrap its counters.
func (h *APIHandler) InitHandler(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	usage, err := h.chatService.Usage(identity)
	if err != nil {
		c.JSON(http.StatusOK, InitResponse{
			UserType:            userType(identity),
			ScopeKey:            identity.ScopeKey(),
			AnonymousDailyLimit: config.AppConfig.Quota.AnonymousDailyLimit,
			DailyLimit:          config.AppConfig.Quota.DailyLimit,
		})
		return
	}

	c.JSON(http.StatusOK, InitResponse{
		UserType:            userType(identity),
		ScopeKey:            identity.ScopeKey(),
		AnonymousDailyLimit: config.AppConfig.Quota.AnonymousDailyLimit,
		DailyLimit:          config.AppConfig.Quota.DailyLimit,
		UsedTokens:          usage.UsedTokens,
		RemainingTokens:     usage.RemainingTokens,
	})
}

// UsageHandler returns the quota counter for the current identity.
func (h *APIHandler) UsageHandler(c *gin.Context) {
	identity := middleware.IdentityFrom(c)

	usage, err := h.chatService.Usage(identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read usage."})
		return
	}
	c.JSON(http.StatusOK, usage)
}

func userType(identity models.Identity) string {
	if identity.IsAuthenticated() {
		return "authenticated"
	}
	return "anonymous"
}
