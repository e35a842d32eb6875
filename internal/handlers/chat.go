package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"class-chat-service/internal/models"
	"class-chat-service/internal/ws"
)

// ChatService is the subset of the chat core served over REST.
type ChatService interface {
	History(ctx context.Context, identity models.Identity, classID int64, page, limit int) (models.HistoryPage, error)
	Stats(ctx context.Context, identity models.Identity, classID int64) (models.ActivityStats, error)
	MarkRead(ctx context.Context, reader models.Identity, messageID int64) (models.Message, error)
}

// ChatHandler manages class chat endpoints. Mutations go through the hub so
// connected room members see them.
type ChatHandler struct {
	svc ChatService
	hub *ws.Hub
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(svc ChatService, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{svc: svc, hub: hub}
}

// RegisterRoutes wires the class chat endpoints behind auth.
func (h *ChatHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/classes/:class_id/messages", h.GetClassMessages)
	r.GET("/classes/:class_id/stats", h.GetClassStats)
	r.GET("/classes/:class_id/online", h.GetOnline)
	r.PUT("/messages/:message_id", h.EditMessage)
	r.DELETE("/messages/:message_id", h.DeleteMessage)
	r.POST("/messages/:message_id/read", h.MarkRead)
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// GetClassMessages returns a page of class history, oldest first.
func (h *ChatHandler) GetClassMessages(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	classID, ok := parseID(c, "class_id")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	result, err := h.svc.History(c.Request.Context(), identity, classID, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": result.Messages,
		"pagination": pagination{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Total,
			Pages: result.Pages,
		},
	})
}

// GetClassStats returns activity counts for the class.
func (h *ChatHandler) GetClassStats(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	classID, ok := parseID(c, "class_id")
	if !ok {
		return
	}

	stats, err := h.svc.Stats(c.Request.Context(), identity, classID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetOnline lists users currently connected to the class chat.
func (h *ChatHandler) GetOnline(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	classID, ok := parseID(c, "class_id")
	if !ok {
		return
	}

	ids, err := h.hub.Online(c.Request.Context(), identity, classID)
	if err != nil {
		writeError(c, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"class_id": classID, "user_ids": ids})
}

type editMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// EditMessage replaces the body of the caller's message.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	messageID, ok := parseID(c, "message_id")
	if !ok {
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	msg, err := h.hub.EditMessage(c.Request.Context(), identity, messageID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage soft-deletes the caller's message.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	messageID, ok := parseID(c, "message_id")
	if !ok {
		return
	}

	if _, err := h.hub.DeleteMessage(c.Request.Context(), identity, messageID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkRead records that the caller has read the message.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	messageID, ok := parseID(c, "message_id")
	if !ok {
		return
	}

	if _, err := h.svc.MarkRead(c.Request.Context(), identity, messageID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
