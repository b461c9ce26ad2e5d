// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the message store contract of the relay: validating inbound content,
// persisting messages with server-assigned identity and timestamp, resolving
// replied-to references, and serving paginated history.
//
// Both delivery paths go through Persist — the WebSocket receive loop and the
// REST send endpoint — so validation and persistence semantics cannot drift
// between them. Each persist call is a single INSERT and therefore atomic.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// chat/sender identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultMessageType is applied when the client does not supply a type.
const defaultMessageType = "text"

// MessageService coordinates message persistence, reply resolution, and
// history retrieval.
type MessageService struct {
	DB *gorm.DB

	// MaxContentRunes caps message content length; 0 disables the cap.
	MaxContentRunes int
}

// Persist validates and stores one inbound message, returning the persisted
// record with its generated ID and server-assigned UTC timestamp.
//
// Semantics:
//   - content is trimmed; empty content yields ErrEmptyContent.
//   - content over MaxContentRunes yields ErrTooLong.
//   - chatID must reference an existing chat; otherwise ErrChatNotFound.
//   - senderID is the admitted identity, never one supplied by the frame.
//   - replyTo is best-effort: a reference to a message that does not exist
//     is dropped rather than rejected, mirroring the lenient parse on the
//     relay's inbound path.
func (s *MessageService) Persist(ctx context.Context, chatID, senderID, content, msgType string, replyTo *string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Persist",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("sender.id", senderID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}
	if msgType == "" {
		msgType = defaultMessageType
	}

	exists, err := repo.ChatExists(ctx, s.DB, chatID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrChatNotFound
	}

	// Degrade, don't fail: a dangling reply reference is stored as no reply.
	if replyTo != nil {
		if _, err := repo.GetMessage(s.DB.WithContext(ctx), *replyTo); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			replyTo = nil
		}
	}

	return repo.CreateMessage(s.DB.WithContext(ctx), chatID, senderID, content, msgType, replyTo)
}

// ResolveReply fetches the message referenced by a reply. It returns
// (nil, nil) when the reference does not resolve, so callers can treat an
// absent reply target as "no reply" without error handling gymnastics.
func (s *MessageService) ResolveReply(ctx context.Context, messageID string) (*domain.Message, error) {
	m, err := repo.GetMessage(s.DB.WithContext(ctx), messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListPage returns paginated messages for a chat.
func (s *MessageService) ListPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	exists, err := repo.ChatExists(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, ErrChatNotFound
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), chatID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), chatID, offset, pageSize)
	return items, total, err
}
