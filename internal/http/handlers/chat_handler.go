// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat (room) resources:
//   - POST   /chats                    (create)
//   - GET    /chats                    (list, paginated, ETag support)
//   - PUT    /chats/{id}/title         (rename)
//   - POST   /chats/{id}/participants  (add a member)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/repo"
	"github.com/tbourn/go-chat-relay/internal/services"
	"github.com/tbourn/go-chat-relay/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService defines chat lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// Create starts a new chat with an optional title; creatorID becomes the
	// first participant.
	Create(ctx context.Context, creatorID, title string) (*domain.Chat, error)
	// ListPage returns a page of chats for a user and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Chat, int64, error)
	// UpdateTitle renames a chat the caller participates in.
	UpdateTitle(ctx context.Context, userID, chatID, title string) error
	// AddParticipant adds newUserID to a chat the caller participates in.
	AddParticipant(ctx context.Context, callerID, chatID, newUserID string) error
}

// MessageService defines message persistence and retrieval operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// Persist validates and stores one message with server-assigned identity.
	Persist(ctx context.Context, chatID, senderID, content, msgType string, replyTo *string) (*domain.Message, error)
	// ResolveReply fetches a replied-to message, or (nil, nil) when absent.
	ResolveReply(ctx context.Context, messageID string) (*domain.Message, error)
	// ListPage returns a page of messages within a chat and the total count.
	ListPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error)
}

// MembershipChecker answers whether a user belongs to a chat. The REST send
// path enforces the same participant rule the WebSocket admission applies.
type MembershipChecker interface {
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

// ReactionService defines operations to record emoji reactions on messages.
type ReactionService interface {
	// Leave records an emoji reaction for messageID on behalf of userID.
	Leave(ctx context.Context, userID, messageID, emoji string) (*domain.Reaction, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for chats, messages, and reactions.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	chatSvc    ChatService
	msgSvc     MessageService
	membership MembershipChecker
	reactSvc   ReactionService
	relay      Relay

	// IdempotencyTTL is how long a recorded Idempotency-Key result stays
	// replayable. Configurable after construction, like the tuning fields
	// on the services.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
// relay may be nil, in which case REST-originated messages are persisted but
// not fanned out to live WebSocket connections.
func New(chatSvc ChatService, msgSvc MessageService, membership MembershipChecker, reactSvc ReactionService, relay Relay) *Handlers {
	return &Handlers{
		chatSvc:        chatSvc,
		msgSvc:         msgSvc,
		membership:     membership,
		reactSvc:       reactSvc,
		relay:          relay,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// requireUser extracts the authenticated user id from Gin context (set by the
// auth middleware). When no identity is present it writes a 401 and aborts;
// the second return tells the handler to stop. Identity comes only from the
// context key, never from request headers.
func requireUser(c *gin.Context) (string, bool) {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	c.Abort()
	return "", false
}

//
// DTOs
//

// CreateChatRequest is the JSON payload for creating a chat.
type CreateChatRequest struct {
	// Title optionally sets the chat title; a default is used when empty.
	Title string `json:"title"`
}

// UpdateChatTitleRequest is the JSON payload for updating a chat title.
type UpdateChatTitleRequest struct {
	// Title is the new chat name (1–255 chars).
	Title string `json:"title" binding:"required,min=1,max=255"`
}

// AddParticipantRequest is the JSON payload for adding a chat member.
type AddParticipantRequest struct {
	// UserID is the identity to add to the chat.
	UserID string `json:"user_id" binding:"required,min=1"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListChatsResponse wraps a page of chats and pagination information.
type ListChatsResponse struct {
	Chats      []domain.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreateChat creates a chat for the current user and returns the chat resource
// with HTTP 201.
func (h *Handlers) CreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(req.Title)

	uid, authed := requireUser(c)
	if !authed {
		return
	}

	ch, err := h.chatSvc.Create(c.Request.Context(), uid, title)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, ch)
}

// ListChats returns a page of the user's chats. Supports weak ETag via
// If-None-Match and may return 304.
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.chatSvc.(*services.ChatService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ChatsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"chats:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.chatSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListChatsResponse{
		Chats: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// UpdateChatTitle renames a chat the current user participates in.
func (h *Handlers) UpdateChatTitle(c *gin.Context) {
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	var req UpdateChatTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1–255 chars)")
		return
	}

	uid, authed := requireUser(c)
	if !authed {
		return
	}

	if err := h.chatSvc.UpdateTitle(c.Request.Context(), uid, chatID, req.Title); err != nil {
		switch {
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this chat")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	noContent(c)
}

// AddParticipant adds a user to a chat the current caller participates in.
// Adding a user twice is a no-op and still returns 204.
func (h *Handlers) AddParticipant(c *gin.Context) {
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id required")
		return
	}

	uid, authed := requireUser(c)
	if !authed {
		return
	}

	if err := h.chatSvc.AddParticipant(c.Request.Context(), uid, chatID, strings.TrimSpace(req.UserID)); err != nil {
		switch {
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this chat")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	noContent(c)
}
