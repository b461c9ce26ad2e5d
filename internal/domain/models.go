// Package domain defines the persistence models for users, chats,
// participants, messages, and reactions. These types are mapped with GORM and
// form the core data layer of the chat relay.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered account. The relay itself never creates users;
// they exist so that message sender identities and chat participant rows have
// a referential anchor.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Username: unique human-readable handle.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type User struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Username  string         `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Chat represents a room: a group of participants that share broadcast
// visibility. Live WebSocket connections attach to exactly one chat for their
// entire lifetime.
//
// Fields:
//   - ID: stable UUID primary key (char(36)); the room identifier clients
//     supply when connecting.
//   - Title: human-readable chat title.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Chat struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'New chat'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// ChatParticipant links a user to a chat. Membership is checked once per
// WebSocket admission and per REST request; a user appears at most once per
// chat (enforced by unique index).
type ChatParticipant struct {
	ID       string    `json:"id"        gorm:"type:char(36);primaryKey"`
	ChatID   string    `json:"chat_id"   gorm:"type:char(36);not null;index;uniqueIndex:ux_chat_participant,priority:1"`
	UserID   string    `json:"user_id"   gorm:"type:varchar(64);not null;index;uniqueIndex:ux_chat_participant,priority:2"`
	JoinedAt time.Time `json:"joined_at"`

	// Chat is the parent room. Participants are cascade-deleted if their
	// chat is removed.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatParticipant.
func (ChatParticipant) TableName() string { return "chat_participants" }

// Message represents a single persisted utterance within a chat. A message is
// created exactly once per accepted inbound frame (or REST send) and never
// mutated afterwards; broadcast payloads reference it without owning it.
//
// Fields:
//   - ID: UUID primary key (char(36)), server-generated.
//   - ChatID: foreign key to the owning chat (indexed with Timestamp).
//   - SenderID: the admitted user's identity. Never taken from the frame.
//   - Content: full text content of the message.
//   - Type: message kind, "text" unless the client says otherwise.
//   - Timestamp: server-assigned at persistence time; client-supplied
//     timestamps are advisory only and ignored.
//   - ReplyToMessageID: optional reference to the replied-to message.
type Message struct {
	ID               string         `json:"id"                  gorm:"type:char(36);primaryKey"`
	ChatID           string         `json:"chat_id"             gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	SenderID         string         `json:"sender_id"           gorm:"type:varchar(64);not null;index"`
	Content          string         `json:"content"             gorm:"type:text;not null"`
	Type             string         `json:"type"                gorm:"type:varchar(32);not null;default:'text'"`
	Timestamp        time.Time      `json:"timestamp"           gorm:"index:idx_chat_msgs,priority:2"`
	ReplyToMessageID *string        `json:"reply_to_message_id,omitempty" gorm:"type:char(36)"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-"                   gorm:"index"`

	// Chat is the parent room. Messages are cascade-deleted if their chat
	// is removed.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Reaction represents a user-provided emoji reaction on a specific message.
// A user can only leave one reaction per message (enforced by unique index).
type Reaction struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string         `json:"message_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_reaction_message_user"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_reaction_message_user"`
	Emoji     string         `json:"emoji"      gorm:"type:varchar(16);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Message is the reacted-to message. Reactions are cascade-deleted if
	// the underlying message is removed.
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Reaction.
func (Reaction) TableName() string { return "reactions" }
