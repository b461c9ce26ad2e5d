// Package services – ReactionService
//
// This file implements the ReactionService, which governs how users leave
// emoji reactions on messages. It enforces business rules (message existence,
// chat membership, emoji allowlist, uniqueness) and persists reactions
// atomically. Service-level errors (e.g. ErrInvalidReaction,
// ErrMessageNotFound, ErrNotParticipant, ErrDuplicateReaction) are returned
// for predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/repo"
)

// allowedEmoji is the closed set of reaction emoji the service accepts.
var allowedEmoji = map[string]struct{}{
	"👍": {}, "👎": {}, "❤️": {}, "😂": {}, "😮": {}, "😢": {},
}

// ReactionService implements the use-cases around message reactions.
// It validates the operation (membership, emoji, uniqueness) and persists the
// reaction using the provided GORM handle. The service is context-aware and
// opens its own transaction per call.
type ReactionService struct {
	// DB is the database handle used for all reaction operations.
	DB *gorm.DB
}

// Leave records an emoji reaction for messageID on behalf of userID.
//
// Semantics and validation:
//   - emoji must be in the allowed set; otherwise ErrInvalidReaction.
//   - messageID must exist; otherwise ErrMessageNotFound.
//   - userID must be a participant of the message's chat; otherwise
//     ErrNotParticipant.
//   - A user may leave at most one reaction per message; attempting to do so
//     again yields ErrDuplicateReaction.
//
// Concurrency & atomicity:
//   - The operation runs inside a transaction so the existence/membership
//     checks and the insert are atomic.
func (s *ReactionService) Leave(ctx context.Context, userID, messageID, emoji string) (*domain.Reaction, error) {
	if _, ok := allowedEmoji[emoji]; !ok {
		return nil, ErrInvalidReaction
	}

	var out *domain.Reaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(tx, messageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return err
		}

		member, err := repo.IsParticipant(ctx, tx, msg.ChatID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotParticipant
		}

		r, err := repo.CreateReaction(ctx, tx, messageID, userID, emoji)
		if err != nil {
			if errors.Is(err, repo.ErrDuplicateReaction) {
				return ErrDuplicateReaction
			}
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
