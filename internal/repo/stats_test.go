package repo

import (
	"context"
	"testing"
)

func TestChatsStats_EmptyAndPopulated(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	count, maxAt, err := ChatsStats(ctx, db, "alice")
	if err != nil {
		t.Fatalf("ChatsStats empty: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("empty stats = (%d, %v), want (0, nil)", count, maxAt)
	}

	c, err := CreateChat(ctx, db, "room")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if err := AddParticipant(ctx, db, c.ID, "alice"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	count, maxAt, err = ChatsStats(ctx, db, "alice")
	if err != nil {
		t.Fatalf("ChatsStats: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if maxAt == nil || maxAt.IsZero() {
		t.Fatalf("maxUpdatedAt = %v, want a real timestamp", maxAt)
	}
}

func TestMessagesStats_EmptyAndPopulated(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	c, err := CreateChat(ctx, db, "room")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	count, maxAt, err := MessagesStats(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("MessagesStats empty: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("empty stats = (%d, %v), want (0, nil)", count, maxAt)
	}

	for i := 0; i < 2; i++ {
		if _, err := CreateMessage(db, c.ID, "alice", "hi", "text", nil); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	count, maxAt, err = MessagesStats(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("MessagesStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if maxAt == nil || maxAt.IsZero() {
		t.Fatalf("maxUpdatedAt = %v, want a real timestamp", maxAt)
	}
}

func TestCreateUser_And_GetUser(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	u, err := CreateUser(ctx, db, "alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	got, err := GetUser(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("username = %q, want %q", got.Username, "alice")
	}

	// Username uniqueness is enforced at the schema level.
	if _, err := CreateUser(ctx, db, "alice"); err == nil {
		t.Fatal("expected unique violation for duplicate username")
	}
}
