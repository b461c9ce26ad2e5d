// Package ws implements the real-time relay core: per-room connection
// registry, fan-out broadcaster, and the per-connection session handler that
// admits, reads, persists, and broadcasts chat messages.
//
// This file defines the wire frames exchanged with clients. Inbound frames are
// transient and fully untrusted; the broadcast payload is a projection of the
// persisted message, optionally enriched with a denormalized summary of the
// replied-to message resolved once when the payload is built.
package ws

import (
	"time"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// replySnippetRunes caps the replied-to content summary carried in broadcast
// payloads.
const replySnippetRunes = 120

// InboundFrame is the client→server message frame.
//
// Only Content is required. Type defaults to "text". ReplyToMessageID is
// parsed best-effort: a malformed value is treated as absent. Timestamp is
// advisory only; the server assigns the authoritative persisted timestamp.
type InboundFrame struct {
	Content          string `json:"content"`
	Type             string `json:"type,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
}

// RepliedMessage is the denormalized summary of a replied-to message embedded
// in broadcast payloads.
type RepliedMessage struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

// BroadcastPayload is the server→client frame fanned out to every live
// connection in a room. RepliedToMessage is null when the message is not a
// reply (or the reference did not resolve).
type BroadcastPayload struct {
	ID               string          `json:"id"`
	ChatID           string          `json:"chat_id"`
	SenderID         string          `json:"sender_id"`
	Content          string          `json:"content"`
	Type             string          `json:"type"`
	Timestamp        time.Time       `json:"timestamp"`
	RepliedToMessage *RepliedMessage `json:"replied_to_message"`
}

// ErrorNotice is sent back to a single client when its frame was ignored
// (malformed JSON, empty content). It is informational; the connection stays
// open.
type ErrorNotice struct {
	Error string `json:"error"`
}

// NewBroadcastPayload projects a persisted message into its wire form.
// replied may be nil.
func NewBroadcastPayload(m *domain.Message, replied *RepliedMessage) *BroadcastPayload {
	return &BroadcastPayload{
		ID:               m.ID,
		ChatID:           m.ChatID,
		SenderID:         m.SenderID,
		Content:          m.Content,
		Type:             m.Type,
		Timestamp:        m.Timestamp,
		RepliedToMessage: replied,
	}
}

// NewRepliedMessage builds the reply summary for a resolved replied-to
// message, clipping the content snippet by rune count.
func NewRepliedMessage(m *domain.Message) *RepliedMessage {
	return &RepliedMessage{
		ID:       m.ID,
		SenderID: m.SenderID,
		Content:  snippet(m.Content, replySnippetRunes),
	}
}

// snippet truncates s to at most max runes, appending an ellipsis when
// content was cut.
func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
