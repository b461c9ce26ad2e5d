package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

func TestCreateMessage_AssignsIdentityAndDefaults(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	c, err := CreateChat(ctx, db, "room")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	before := time.Now().UTC().Add(-time.Second)
	m, err := CreateMessage(db, c.ID, "alice", "hello", "", nil)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected generated message ID")
	}
	if m.Type != "text" {
		t.Fatalf("type = %q, want default %q", m.Type, "text")
	}
	if m.Timestamp.Before(before) {
		t.Fatalf("timestamp %v not server-assigned", m.Timestamp)
	}
	if m.ReplyToMessageID != nil {
		t.Fatalf("unexpected reply reference %v", *m.ReplyToMessageID)
	}
}

func TestCreateMessage_WithReplyReference(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	c, err := CreateChat(ctx, db, "room")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	first, err := CreateMessage(db, c.ID, "alice", "original", "text", nil)
	if err != nil {
		t.Fatalf("CreateMessage first: %v", err)
	}

	reply, err := CreateMessage(db, c.ID, "bob", "a reply", "text", &first.ID)
	if err != nil {
		t.Fatalf("CreateMessage reply: %v", err)
	}
	got, err := GetMessage(db, reply.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.ReplyToMessageID == nil || *got.ReplyToMessageID != first.ID {
		t.Fatalf("reply reference = %v, want %s", got.ReplyToMessageID, first.ID)
	}
}

func TestListMessagesPage_DeterministicOrder(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	c, err := CreateChat(ctx, db, "room")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := CreateMessage(db, c.ID, "alice", fmt.Sprintf("msg-%d", i), "text", nil); err != nil {
			t.Fatalf("CreateMessage %d: %v", i, err)
		}
	}

	total, err := CountMessages(db, c.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if total != 5 {
		t.Fatalf("CountMessages = %d, want 5", total)
	}

	page, err := ListMessagesPage(db, c.ID, 0, 3)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("page size = %d, want 3", len(page))
	}
	for i := 1; i < len(page); i++ {
		prev, cur := page[i-1], page[i]
		if cur.Timestamp.Before(prev.Timestamp) {
			t.Fatalf("messages out of order: %v before %v", cur.Timestamp, prev.Timestamp)
		}
		if cur.Timestamp.Equal(prev.Timestamp) && cur.ID < prev.ID {
			t.Fatalf("ID tiebreak violated: %s before %s", cur.ID, prev.ID)
		}
	}
}

func TestCreateReaction_DuplicateRejected(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	c, err := CreateChat(ctx, db, "room")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	m, err := CreateMessage(db, c.ID, "alice", "hello", "text", nil)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	r, err := CreateReaction(ctx, db, m.ID, "bob", "👍")
	if err != nil {
		t.Fatalf("CreateReaction: %v", err)
	}
	if r.Emoji != "👍" {
		t.Fatalf("emoji = %q, want 👍", r.Emoji)
	}

	if _, err := CreateReaction(ctx, db, m.ID, "bob", "❤️"); err != ErrDuplicateReaction {
		t.Fatalf("expected ErrDuplicateReaction, got %v", err)
	}

	var n int64
	if err := db.Model(&domain.Reaction{}).Where("message_id = ?", m.ID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaction rows = %d, want 1", n)
	}
}

func TestCountMessages_MissingTableSurfacesError(t *testing.T) {
	db := newIdemDB(t) // no migrations: the messages table does not exist
	if _, err := CountMessages(db, "c1"); err == nil {
		t.Fatal("expected error for missing messages table")
	}
}
