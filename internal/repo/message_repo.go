// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message and
// Reaction models.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// ErrDuplicateReaction indicates that a reaction row already exists for the
// given (message_id, user_id) tuple.
var ErrDuplicateReaction = errors.New("reaction already exists")

// CreateMessage inserts a new message row. The message ID is a generated UUID
// and Timestamp is the authoritative server-assigned time (UTC, at persistence).
// replyTo may be nil when the message does not reference another one.
func CreateMessage(db *gorm.DB, chatID, senderID, content, msgType string, replyTo *string) (*domain.Message, error) {
	if msgType == "" {
		msgType = "text"
	}
	now := time.Now().UTC()
	m := &domain.Message{
		ID:               uuid.NewString(),
		ChatID:           chatID,
		SenderID:         senderID,
		Content:          content,
		Type:             msgType,
		Timestamp:        now,
		ReplyToMessageID: replyTo,
		CreatedAt:        now,
	}
	return m, db.Create(m).Error
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesPage returns a paginated slice ordered deterministically
// (Timestamp ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, chatID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("chat_id = ?", chatID).
		Order("timestamp ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(db *gorm.DB, chatID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE chat_id = ? AND deleted_at IS NULL", chatID).Scan(&total).Error
	return total, err
}

// CreateReaction inserts a reaction row for a message and returns
// ErrDuplicateReaction on unique violation.
func CreateReaction(ctx context.Context, db *gorm.DB, messageID, userID, emoji string) (*domain.Reaction, error) {
	r := &domain.Reaction{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicateReaction
		}
		return nil, err
	}
	return r, nil
}
