package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marciolins2020/reddata-sovereign-ai-sub000/middleware"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/services"
	"github.com/marciolins2020/reddata-sovereign-ai-sub000/utils"
)

// ChatRequest is the client payload for a chat submission.
type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id,omitempty"`
	Stream         *bool  `json:"stream,omitempty"` // default true
}

// sseChunk is one streamed content delta.
type sseChunk struct {
	Content string `json:"content"`
}

// sseMeta trails the content chunks with the exchange outcome.
type sseMeta struct {
	Event           string  `json:"event"` // "done" or "error"
	ConversationID  string  `json:"conversation_id,omitempty"`
	Warning         string  `json:"warning,omitempty"`
	UsedTokens      int     `json:"used_tokens"`
	RemainingTokens int     `json:"remaining_tokens"`
	UsedPercent     float64 `json:"used_percent"`
	Error           string  `json:"error,omitempty"`
}

// ChatHandler runs one chat exchange. By default the assistant reply is
// relayed as server-sent events ("data: {json}" lines ending with the
// "data: [DONE]" sentinel); with "stream": false the full reply comes back as
// a single {"answer": ...} object.
func (h *APIHandler) ChatHandler(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid request payload.", err)
		return
	}

	identity := middleware.IdentityFrom(c)
	streaming := req.Stream == nil || *req.Stream

	var emit services.ChunkFunc
	headersSent := false
	if streaming {
		emit = func(chunk string) error {
			if !headersSent {
				writeSSEHeaders(c)
				headersSent = true
			}
			return writeSSE(c, sseChunk{Content: chunk})
		}
	}

	result, err := h.chatService.Submit(c.Request.Context(), identity, req.ConversationID, req.Message, emit)

	// Quota and rate-limit blocks happen before any bytes are streamed, so
	// they can always be reported as plain JSON.
	switch {
	case errors.Is(err, services.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     result.Notice,
			"retryable": true,
		})
		return
	case errors.Is(err, services.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":          result.Notice,
			"sign_in_prompt": result.SignInPrompt,
			"usage":          result.Usage,
		})
		return
	case err != nil:
		log.Printf("ERROR: [ChatHandler] Exchange failed for %s: %v", identity.ScopeKey(), err)
		if headersSent {
			// Mid-stream failure: the SSE channel is already open, close it
			// with an error event.
			_ = writeSSE(c, sseMeta{Event: "error", Error: "The reply was interrupted. Please try again."})
			writeSSEDone(c)
			return
		}
		utils.SendJSONError(c, http.StatusBadGateway, "The assistant is temporarily unavailable. Please try again.", err)
		return
	}

	if result.State == services.StateComposing && result.Reply == "" {
		// Whitespace-only input: nothing to do.
		c.JSON(http.StatusOK, gin.H{"answer": ""})
		return
	}

	if !streaming {
		c.JSON(http.StatusOK, gin.H{
			"answer":          result.Reply,
			"conversation_id": result.ConversationID,
			"warning":         result.Warning,
			"usage":           result.Usage,
		})
		return
	}

	if !headersSent {
		// Empty reply stream; still deliver the trailer and sentinel.
		writeSSEHeaders(c)
	}
	_ = writeSSE(c, sseMeta{
		Event:           "done",
		ConversationID:  result.ConversationID,
		Warning:         result.Warning,
		UsedTokens:      result.Usage.UsedTokens,
		RemainingTokens: result.Usage.RemainingTokens,
		UsedPercent:     result.Usage.UsedPercent,
	})
	writeSSEDone(c)
}

func writeSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
}

func writeSSE(c *gin.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func writeSSEDone(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}
