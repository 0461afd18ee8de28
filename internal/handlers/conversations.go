package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/dispatch"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ConversationHandler manages the conversation HTTP API. It is also the
// fallback read path for clients without a live websocket: the same
// endpoints serve both genuine polling and post-reconnect resync.
type ConversationHandler struct {
	convRepo   repositories.ConversationRepository
	msgRepo    repositories.MessageRepository
	dispatcher *dispatch.Dispatcher
	emitter    *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, dispatcher *dispatch.Dispatcher, emitter *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		dispatcher: dispatcher,
		emitter:    emitter,
	}
}

// ListConversations returns the identity's conversations, most recently
// active first, with unread counts.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	target := c.Param("id")
	caller := c.GetString(middleware.IdentityKey)
	role := c.GetString(middleware.RoleKey)
	if caller != target && role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot list another identity's conversations"})
		return
	}

	page, limit := pagination(c)
	summaries, err := h.convRepo.ListConversations(c.Request.Context(), target, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries, "page": page, "limit": limit})
}

// CreateConversation creates a conversation with a fixed participant set.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req struct {
		Participants []models.Participant `json:"participants" binding:"required"`
		Title        string               `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := c.GetString(middleware.IdentityKey)
	role := c.GetString(middleware.RoleKey)
	if role != models.RoleAdmin && !containsIdentity(req.Participants, caller) {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller must be a participant"})
		return
	}

	conv, err := h.convRepo.CreateConversation(c.Request.Context(), req.Participants, req.Title)
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidParticipants) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participants"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.dispatcher.ConversationCreated(conv)
	h.emitter.Emit(c.Request.Context(), "conversation_created", conv.ID, caller, requestIDFromContext(c), "")
	c.JSON(http.StatusCreated, conv)
}

// GetMessages returns one page of messages, newest page first, oldest to
// newest within the page. An optional before=<message id> query param
// anchors paging so pages stay stable while new messages arrive.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("id")
	caller := c.GetString(middleware.IdentityKey)

	page, limit := pagination(c)
	before, _ := strconv.ParseInt(c.Query("before"), 10, 64)
	msgs, err := h.msgRepo.ListMessages(c.Request.Context(), conversationID, caller, page, limit, before)
	if err != nil {
		respondStoreError(c, err, "failed to load messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "page": page, "limit": limit})
}

// PostMessage appends a message and pushes it to the other participants'
// live channels. Push failures never surface here; the write already
// committed.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID := c.Param("id")
	caller := c.GetString(middleware.IdentityKey)
	role := c.GetString(middleware.RoleKey)

	var req struct {
		Content     string              `json:"content" binding:"required"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, a := range req.Attachments {
		if a.Filename == "" || a.StorageRef == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment requires filename and storage_ref"})
			return
		}
	}

	sender := models.Participant{Identity: caller, Role: role}
	msg, err := h.msgRepo.AppendMessage(c.Request.Context(), conversationID, sender, req.Content, req.Attachments)
	if err != nil {
		respondStoreError(c, err, "failed to store message")
		return
	}

	if conv, err := h.convRepo.GetConversation(c.Request.Context(), conversationID); err == nil {
		h.dispatcher.MessageCreated(conv, msg)
	} else {
		log.Printf("push skipped conversation=%s event=message_created: %v", conversationID, err)
	}
	h.emitter.Emit(c.Request.Context(), "message_created", conversationID, caller, requestIDFromContext(c), "")
	c.JSON(http.StatusCreated, msg)
}

// MarkRead records read receipts for every message up to the cursor and
// notifies the other participants.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID := c.Param("id")
	caller := c.GetString(middleware.IdentityKey)

	var req struct {
		UpTo int64 `json:"up_to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	marked, err := h.msgRepo.MarkRead(c.Request.Context(), conversationID, caller, req.UpTo)
	if err != nil {
		respondStoreError(c, err, "failed to mark read")
		return
	}

	if marked > 0 {
		if conv, err := h.convRepo.GetConversation(c.Request.Context(), conversationID); err == nil {
			h.dispatcher.ReadReceipt(conv, caller, req.UpTo)
		} else {
			log.Printf("push skipped conversation=%s event=read_receipt: %v", conversationID, err)
		}
		h.emitter.Emit(c.Request.Context(), "read_receipt", conversationID, caller, requestIDFromContext(c), "")
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// ArchiveConversation retires a conversation. Only doctor participants or
// admins may archive; history is preserved.
func (h *ConversationHandler) ArchiveConversation(c *gin.Context) {
	conversationID := c.Param("id")
	caller := c.GetString(middleware.IdentityKey)
	role := c.GetString(middleware.RoleKey)

	conv, err := h.convRepo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondStoreError(c, err, "failed to load conversation")
		return
	}
	if role != models.RoleAdmin {
		if role != models.RoleDoctor || !conv.HasParticipant(caller) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to archive"})
			return
		}
	}

	if err := h.convRepo.ArchiveConversation(c.Request.Context(), conversationID); err != nil {
		respondStoreError(c, err, "could not archive conversation")
		return
	}

	h.emitter.Emit(c.Request.Context(), "conversation_archived", conversationID, caller, requestIDFromContext(c), "")
	c.Status(http.StatusNoContent)
}

func respondStoreError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, repositories.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func containsIdentity(participants []models.Participant, identity string) bool {
	for _, p := range participants {
		if p.Identity == identity {
			return true
		}
	}
	return false
}
