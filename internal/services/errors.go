// Package services defines the business logic for chats, messages, membership,
// and reactions. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages, HTTP status codes, or WebSocket close codes is
// performed at the handler layer.
package services

import "errors"

var (
	// ErrChatNotFound indicates that the requested chat does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrNotParticipant indicates that the user is not a member of the chat
	// they are trying to act on.
	ErrNotParticipant = errors.New("user is not a chat participant")

	// ErrEmptyContent is returned when a message is submitted with empty or
	// whitespace-only content.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when message content exceeds the configured
	// maximum length limit.
	ErrTooLong = errors.New("content too long")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidReaction is returned when a reaction emoji is outside the
	// allowed set.
	ErrInvalidReaction = errors.New("unsupported reaction emoji")

	// ErrDuplicateReaction is returned when a user attempts to react to a
	// message they have already reacted to.
	ErrDuplicateReaction = errors.New("reaction already exists")
)
