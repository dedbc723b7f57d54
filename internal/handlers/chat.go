package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// LiveHub is the slice of the realtime hub the REST endpoints need: read receipts for a
// sender's live sessions and the live online flag.
type LiveHub interface {
	NotifyRead(readerID, senderID int64)
	IsOnline(userID int64) bool
}

// ChatHandler serves the direct-message REST endpoints.
type ChatHandler struct {
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	hub         LiveHub
	log         zerolog.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, hub LiveHub, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		hub:         hub,
		log:         log.With().Str("component", "chat_handler").Logger(),
	}
}

// ListUsers returns every other user with their online flag and unread count.
func (h *ChatHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt64("userID")

	users, err := h.userRepo.ListUsers(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	if users == nil {
		users = []models.UserSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetMessages returns the history with another user and marks their messages read.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID := c.GetInt64("userID")
	otherID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || otherID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()
	other, err := h.userRepo.GetUser(ctx, otherID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("other_id", otherID).Msg("get user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	// Mark first so the returned history already carries the new read state.
	updated, err := h.messageRepo.MarkRead(ctx, otherID, userID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Int64("other_id", otherID).Msg("mark read")
	} else if updated > 0 && h.hub != nil {
		h.hub.NotifyRead(userID, otherID)
	}

	msgs, err := h.messageRepo.ListHistory(ctx, userID, otherID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Int64("other_id", otherID).Msg("list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	peer := gin.H{"id": other.ID, "username": other.Username, "is_online": h.hub != nil && h.hub.IsOnline(other.ID)}
	c.JSON(http.StatusOK, gin.H{"user": peer, "messages": msgs})
}

// ListConversations returns one entry per counterpart, newest first.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt64("userID")

	conversations, err := h.messageRepo.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// UnreadCount returns the caller's unread messages, in total or from ?from=<user_id>.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID := c.GetInt64("userID")

	var (
		n   int
		err error
	)
	if from := c.Query("from"); from != "" {
		senderID, parseErr := strconv.ParseInt(from, 10, 64)
		if parseErr != nil || senderID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		n, err = h.messageRepo.UnreadCountFrom(c.Request.Context(), senderID, userID)
	} else {
		n, err = h.messageRepo.UnreadCount(c.Request.Context(), userID)
	}
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("unread count")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}
