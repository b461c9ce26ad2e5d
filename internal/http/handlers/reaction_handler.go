// Reaction HTTP handlers.
//
// This file exposes the REST endpoint for leaving emoji reactions on
// messages:
//   - POST /messages/{id}/reactions  (create reaction)
//
// Handlers in this file are transport-thin: they validate input, delegate to
// application services, and translate domain/service errors into HTTP results.
// The accepted emoji set is enforced by the service layer.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-chat-relay/internal/services"
)

// LeaveReactionRequest is the JSON payload for reacting to a message.
type LeaveReactionRequest struct {
	// Emoji is the reaction glyph; must be one of the server's allowed set.
	Emoji string `json:"emoji" binding:"required,min=1"`
}

// LeaveReaction records an emoji reaction for the current user on a message.
// A user may react at most once per message.
func (h *Handlers) LeaveReaction(c *gin.Context) {
	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	var req LeaveReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "emoji required")
		return
	}

	uid, authed := requireUser(c)
	if !authed {
		return
	}

	r, err := h.reactSvc.Leave(c.Request.Context(), uid, messageID, req.Emoji)
	if err != nil {
		switch err {
		case services.ErrInvalidReaction:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unsupported emoji")
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case services.ErrNotParticipant:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this chat")
		case services.ErrDuplicateReaction:
			fail(c, http.StatusConflict, ErrCodeConflict, "reaction already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusCreated, r)
}
