// Package services – MembershipService
//
// This file implements the room membership check consumed by the WebSocket
// admission path and the REST handlers: does the room exist, and is a given
// user one of its participants. It is a thin, read-only wrapper over the
// repository layer so that the relay core can depend on a narrow contract
// instead of GORM.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/repo"
)

// MembershipService answers room existence and participation queries.
// All methods are safe for concurrent use.
type MembershipService struct {
	// DB is the GORM handle used for lookups.
	DB *gorm.DB
}

// RoomExists reports whether a chat with the given ID exists.
func (s *MembershipService) RoomExists(ctx context.Context, chatID string) (bool, error) {
	return repo.ChatExists(ctx, s.DB, chatID)
}

// IsParticipant reports whether userID is an authorized participant of chatID.
func (s *MembershipService) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return repo.IsParticipant(ctx, s.DB, chatID, userID)
}
