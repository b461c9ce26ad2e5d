// Package services – ChatService
//
// This file implements the ChatService, which manages the lifecycle of chats.
// It validates and normalizes titles, enforces membership rules, and
// coordinates repository operations for creating, listing (with pagination),
// renaming, and growing a chat's participant set. The creator of a chat is
// always its first participant.
//
// Service-level errors (e.g., ErrChatNotFound, ErrNotParticipant) are returned
// for predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"golang.org/x/text/language"
)

// ChatRepo defines the repository contract required by ChatService.
// Implementations are responsible for persistence of chat aggregates.
type ChatRepo interface {
	// CreateChat inserts a new chat row with the given title.
	CreateChat(ctx context.Context, db *gorm.DB, title string) (*domain.Chat, error)

	// GetChat fetches a chat by ID.
	GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error)

	// UpdateChatTitle updates a chat's title.
	UpdateChatTitle(ctx context.Context, db *gorm.DB, id, title string) error

	// AddParticipant links a user to a chat (idempotent).
	AddParticipant(ctx context.Context, db *gorm.DB, chatID, userID string) error

	// IsParticipant reports whether a user belongs to a chat.
	IsParticipant(ctx context.Context, db *gorm.DB, chatID, userID string) (bool, error)

	// CountChats returns the number of chats a user participates in.
	CountChats(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListChatsPage returns a page of chats a user participates in.
	ListChatsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Chat, error)
}

// ChatService provides chat-level operations such as creating, listing,
// renaming, and adding participants. It enforces title rules and ensures
// membership constraints.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the chat repository used by this service.
	Repo ChatRepo

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// TitleLocale selects casing rules for title normalization.
	TitleLocale language.Tag
}

// NewChatService constructs a ChatService with sane defaults for title handling.
func NewChatService(db *gorm.DB, r ChatRepo) *ChatService {
	return &ChatService{
		DB:          db,
		Repo:        r,
		TitleMaxLen: 60,
		TitleLocale: language.Und,
	}
}

// Create inserts a new chat with the provided title and registers creatorID as
// its first participant. Titles are normalized, trimmed, clipped, and a
// default fallback is applied.
func (s *ChatService) Create(ctx context.Context, creatorID, title string) (*domain.Chat, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = "New chat"
	}

	var out *domain.Chat
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := s.Repo.CreateChat(ctx, tx, s.clip(title))
		if err != nil {
			return err
		}
		if err := s.Repo.AddParticipant(ctx, tx, ch.ID, creatorID); err != nil {
			return err
		}
		out = ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPage returns a page of chats for a user (paginated).
// It applies defaults for invalid page/pageSize and returns total count.
func (s *ChatService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Chat, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountChats(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Chat{}, 0, nil
	}

	items, err := s.Repo.ListChatsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// UpdateTitle updates a chat's title, ensuring the chat exists and the caller
// is one of its participants. Falls back to "Untitled" if title is blank.
func (s *ChatService) UpdateTitle(ctx context.Context, userID, chatID, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = "Untitled"
	}
	if _, err := s.Repo.GetChat(ctx, s.DB, chatID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	member, err := s.Repo.IsParticipant(ctx, s.DB, chatID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotParticipant
	}
	return s.Repo.UpdateChatTitle(ctx, s.DB, chatID, s.clip(title))
}

// AddParticipant adds newUserID to a chat. The caller must already be a
// participant of the chat; adding an existing member is a no-op.
func (s *ChatService) AddParticipant(ctx context.Context, callerID, chatID, newUserID string) error {
	if _, err := s.Repo.GetChat(ctx, s.DB, chatID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	member, err := s.Repo.IsParticipant(ctx, s.DB, chatID, callerID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotParticipant
	}
	return s.Repo.AddParticipant(ctx, s.DB, chatID, newUserID)
}

// clip truncates a chat title to the configured maximum rune length.
func (s *ChatService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
