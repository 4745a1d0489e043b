package controllers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"edith/models"
	"edith/services"

	"github.com/gin-gonic/gin"
)

// AvailableEndpoints is advertised by the 404 handler.
var AvailableEndpoints = []string{
	"GET /api/health",
	"POST /api/edith-chat",
	"POST /api/admin/knowledge",
}

type ChatController struct {
	chat  *services.ChatService
	admin *services.KnowledgeAdmin
	now   func() time.Time
}

func NewChatController(chat *services.ChatService, admin *services.KnowledgeAdmin) *ChatController {
	return &ChatController{chat: chat, admin: admin, now: time.Now}
}

func (cc *ChatController) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": services.FormatTimestamp(cc.now()),
		"message":   "EDITH AI Backend is running smoothly! 🕷️",
	})
}

func (cc *ChatController) HandleChat(c *gin.Context) {
	var request models.ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		slog.Warn("Error binding chat request", "error", err)
		if tooLarge(c, err) {
			return
		}
		var verr *services.ChatError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && strings.HasPrefix(typeErr.Field, "conversationHistory") {
			verr = services.InvalidHistory(err)
		} else {
			// Any other body that does not decode is treated like a missing message.
			_, verr = services.ValidateMessage(nil)
		}
		c.JSON(verr.Status(), models.ErrorResponse{Error: verr.Message})
		return
	}

	reply, err := cc.chat.Reply(c.Request.Context(), request)
	if err != nil {
		var chatErr *services.ChatError
		if !errors.As(err, &chatErr) {
			chatErr = services.ClassifyUpstreamError(err)
		}
		c.JSON(chatErr.Status(), models.ErrorResponse{
			Error: chatErr.Message,
			Type:  chatErr.ResponseType(),
		})
		return
	}

	c.JSON(http.StatusOK, reply)
}

func (cc *ChatController) HandleKnowledgeUpdate(c *gin.Context) {
	var request models.KnowledgeUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		if tooLarge(c, err) {
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Password and knowledge are required"})
		return
	}
	if request.Knowledge == nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Password and knowledge are required"})
		return
	}

	err := cc.admin.Update(c.Request.Context(), request.Password, request.Knowledge)
	if errors.Is(err, services.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	if err != nil {
		slog.Error("Knowledge update error", "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update knowledge base"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Knowledge base updated successfully!"})
}

// tooLarge answers 413 when err comes from the body size cap.
func tooLarge(c *gin.Context, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Request body too large"})
	return true
}

func HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":               "Endpoint not found. Try /api/edith-chat to talk to EDITH!",
		"available_endpoints": AvailableEndpoints,
	})
}
