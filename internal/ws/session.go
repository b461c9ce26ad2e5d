// Session handler: owns one connection end-to-end through the
// Admitting → Active → Closed lifecycle.
package ws

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// IdentityResolver resolves a bearer credential to an authenticated user ID.
type IdentityResolver interface {
	Resolve(credential string) (string, error)
}

// MembershipChecker answers room existence and participation queries during
// admission.
type MembershipChecker interface {
	RoomExists(ctx context.Context, chatID string) (bool, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
}

// MessageStore persists inbound messages and resolves replied-to references.
// Persist assigns the record's ID and timestamp; ResolveReply returns
// (nil, nil) when the reference does not resolve.
type MessageStore interface {
	Persist(ctx context.Context, chatID, senderID, content, msgType string, replyTo *string) (*domain.Message, error)
	ResolveReply(ctx context.Context, messageID string) (*domain.Message, error)
}

// SessionHandler orchestrates connection lifecycles: admission (credential and
// room membership checks), the receive loop (validate → persist → broadcast),
// and teardown (deregistration). One SessionHandler instance serves all
// connections; per-connection state lives on the goroutine running Run.
type SessionHandler struct {
	Registry    *Registry
	Broadcaster *Broadcaster
	Identity    IdentityResolver
	Membership  MembershipChecker
	Store       MessageStore
	Log         zerolog.Logger
}

// Run drives one connection from admission to teardown. It blocks until the
// peer disconnects or the connection becomes unrecoverable, and always leaves
// the registry without an entry for t — deregistration is idempotent, so a
// broadcast-triggered prune racing with this teardown is safe.
func (h *SessionHandler) Run(ctx context.Context, roomID, credential string, t transport) {
	defer t.Close()

	userID, admitted := h.admit(ctx, roomID, credential, t)
	if !admitted {
		return
	}

	h.Registry.Register(roomID, t)
	connsActive.Inc()
	h.Log.Info().Str("chat_id", roomID).Str("user_id", userID).
		Int("room_connections", h.Registry.Len(roomID)).
		Msg("connection admitted")

	defer func() {
		h.Registry.Unregister(roomID, t)
		connsActive.Dec()
		h.Log.Info().Str("chat_id", roomID).Str("user_id", userID).Msg("connection closed")
	}()

	h.receiveLoop(ctx, roomID, userID, t)
}

// admit performs the one-time authentication and authorization checks. On
// failure it writes the appropriate close frame (1008 policy violation for
// credential and room-id problems, 1003 cannot-accept for unknown rooms and
// non-members) and reports false; the connection is never registered.
func (h *SessionHandler) admit(ctx context.Context, roomID, credential string, t transport) (string, bool) {
	if strings.TrimSpace(credential) == "" {
		h.reject(t, websocket.ClosePolicyViolation, "credential required", roomID)
		return "", false
	}

	userID, err := h.Identity.Resolve(credential)
	if err != nil {
		h.reject(t, websocket.ClosePolicyViolation, "invalid credential", roomID)
		return "", false
	}

	if _, err := uuid.Parse(roomID); err != nil {
		h.reject(t, websocket.ClosePolicyViolation, "malformed room id", roomID)
		return "", false
	}

	exists, err := h.Membership.RoomExists(ctx, roomID)
	if err != nil {
		h.Log.Error().Err(err).Str("chat_id", roomID).Msg("room lookup failed during admission")
		h.reject(t, websocket.CloseInternalServerErr, "admission failed", roomID)
		return "", false
	}
	if !exists {
		h.reject(t, websocket.CloseUnsupportedData, "unknown room", roomID)
		return "", false
	}

	member, err := h.Membership.IsParticipant(ctx, roomID, userID)
	if err != nil {
		h.Log.Error().Err(err).Str("chat_id", roomID).Msg("membership lookup failed during admission")
		h.reject(t, websocket.CloseInternalServerErr, "admission failed", roomID)
		return "", false
	}
	if !member {
		h.reject(t, websocket.CloseUnsupportedData, "not a participant", roomID)
		return "", false
	}

	return userID, true
}

// reject closes the handshake with a status code before the connection ever
// reaches the registry.
func (h *SessionHandler) reject(t transport, code int, reason, roomID string) {
	h.Log.Warn().Int("close_code", code).Str("chat_id", roomID).Str("reason", reason).
		Msg("connection rejected")
	_ = t.WriteClose(code, reason)
}

// receiveLoop is the Active state: it blocks on the next inbound frame,
// validates it, persists it, and fans it out. Malformed frames are ignored
// (the sender is notified and the loop continues); a read error means the
// peer is gone; any persistence failure is fatal to this connection only.
func (h *SessionHandler) receiveLoop(ctx context.Context, roomID, userID string, t transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			// Orderly disconnects and faulted transports land here alike;
			// either way this connection is done.
			h.Log.Debug().Err(err).Str("chat_id", roomID).Str("user_id", userID).
				Msg("read loop ended")
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.Log.Warn().Err(err).Str("chat_id", roomID).Msg("ignoring undecodable frame")
			_ = t.WriteJSON(ErrorNotice{Error: "invalid message frame"})
			continue
		}
		if strings.TrimSpace(frame.Content) == "" {
			h.Log.Warn().Str("chat_id", roomID).Msg("ignoring frame with empty content")
			_ = t.WriteJSON(ErrorNotice{Error: "content cannot be empty"})
			continue
		}

		// Best-effort parse: a malformed reply reference degrades to "no reply".
		var replyTo *string
		if frame.ReplyToMessageID != "" {
			if _, err := uuid.Parse(frame.ReplyToMessageID); err != nil {
				h.Log.Warn().Str("chat_id", roomID).Str("reply_to", frame.ReplyToMessageID).
					Msg("ignoring malformed reply reference")
			} else {
				id := frame.ReplyToMessageID
				replyTo = &id
			}
		}

		// The admitted identity is the sender; identities inside the frame
		// are never trusted.
		msg, err := h.Store.Persist(ctx, roomID, userID, frame.Content, frame.Type, replyTo)
		if err != nil {
			// A faulty message must not take down the relay; it does take
			// down this connection.
			h.Log.Error().Err(err).Str("chat_id", roomID).Str("user_id", userID).
				Msg("persist failed, closing connection")
			return
		}

		h.Broadcaster.Broadcast(roomID, h.buildPayload(ctx, msg))
	}
}

// buildPayload projects the persisted message into its broadcast form,
// resolving the replied-to summary once. Resolution failures degrade to a
// null reply rather than failing the broadcast.
func (h *SessionHandler) buildPayload(ctx context.Context, msg *domain.Message) *BroadcastPayload {
	var replied *RepliedMessage
	if msg.ReplyToMessageID != nil {
		target, err := h.Store.ResolveReply(ctx, *msg.ReplyToMessageID)
		if err != nil {
			h.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("reply resolution failed")
		} else if target != nil {
			replied = NewRepliedMessage(target)
		}
	}
	return NewBroadcastPayload(msg, replied)
}
