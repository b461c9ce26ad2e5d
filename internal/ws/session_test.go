package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// ----- Fake transport -----

// fakeTransport scripts inbound frames through a channel and records
// everything the session writes back. Closing the channel simulates an
// orderly peer disconnect.
type fakeTransport struct {
	frames chan []byte

	mu          sync.Mutex
	delivered   []*BroadcastPayload
	notices     []ErrorNotice
	failWrite   bool
	closeCode   int
	closeReason string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 8)}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	data, ok := <-f.frames
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (f *fakeTransport) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errors.New("peer gone")
	}
	switch p := v.(type) {
	case *BroadcastPayload:
		f.delivered = append(f.delivered, p)
	case ErrorNotice:
		f.notices = append(f.notices, p)
	}
	return nil
}

func (f *fakeTransport) WriteClose(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCode, f.closeReason = code, reason
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) send(t *testing.T, frame any) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.frames <- data
}

func (f *fakeTransport) disconnect() { close(f.frames) }

func (f *fakeTransport) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func (f *fakeTransport) lastCloseCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

// ----- Fake collaborators -----

type fakeResolver struct {
	users map[string]string // credential -> user id
}

func (r *fakeResolver) Resolve(credential string) (string, error) {
	if uid, ok := r.users[credential]; ok {
		return uid, nil
	}
	return "", errors.New("invalid credential")
}

type fakeMembership struct {
	rooms   map[string]bool
	members map[string]map[string]bool // room -> user -> member
}

func (m *fakeMembership) RoomExists(_ context.Context, chatID string) (bool, error) {
	return m.rooms[chatID], nil
}

func (m *fakeMembership) IsParticipant(_ context.Context, chatID, userID string) (bool, error) {
	return m.members[chatID][userID], nil
}

type fakeStore struct {
	mu          sync.Mutex
	persisted   []*domain.Message
	failPersist error
	replies     map[string]*domain.Message
}

func (s *fakeStore) Persist(_ context.Context, chatID, senderID, content, msgType string, replyTo *string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPersist != nil {
		return nil, s.failPersist
	}
	if msgType == "" {
		msgType = "text"
	}
	m := &domain.Message{
		ID:               fmt.Sprintf("m%d", len(s.persisted)+1),
		ChatID:           chatID,
		SenderID:         senderID,
		Content:          content,
		Type:             msgType,
		Timestamp:        time.Now().UTC(),
		ReplyToMessageID: replyTo,
	}
	s.persisted = append(s.persisted, m)
	return m, nil
}

func (s *fakeStore) ResolveReply(_ context.Context, messageID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replies[messageID], nil
}

func (s *fakeStore) persistedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.persisted)
}

// ----- Harness -----

const (
	tokenAlice = "token-alice"
	tokenBob   = "token-bob"
)

type harness struct {
	room     string
	registry *Registry
	handler  *SessionHandler
	store    *fakeStore
}

// newHarness builds a session handler for one room where alice and bob are
// participants and the given tokens resolve.
func newHarness() *harness {
	room := uuid.NewString()
	registry := NewRegistry()
	store := &fakeStore{replies: map[string]*domain.Message{}}
	h := &SessionHandler{
		Registry:    registry,
		Broadcaster: NewBroadcaster(registry, zerolog.Nop()),
		Identity:    &fakeResolver{users: map[string]string{tokenAlice: "alice", tokenBob: "bob"}},
		Membership: &fakeMembership{
			rooms:   map[string]bool{room: true},
			members: map[string]map[string]bool{room: {"alice": true, "bob": true}},
		},
		Store: store,
		Log:   zerolog.Nop(),
	}
	return &harness{room: room, registry: registry, handler: h, store: store}
}

// run starts a session goroutine and returns a channel closed when it ends.
func (hs *harness) run(roomID, credential string, t *fakeTransport) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		hs.handler.Run(context.Background(), roomID, credential, t)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
}

// waitRegistered blocks until the room holds n connections (admission runs on
// the session goroutine).
func (hs *harness) waitRegistered(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hs.registry.Len(hs.room) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room never reached %d connections (has %d)", n, hs.registry.Len(hs.room))
		}
		time.Sleep(time.Millisecond)
	}
}

// ----- Admission -----

func TestSession_AdmitsParticipantAndRelaysMessage(t *testing.T) {
	hs := newHarness()

	alice := newFakeTransport()
	bob := newFakeTransport()
	doneAlice := hs.run(hs.room, tokenAlice, alice)
	doneBob := hs.run(hs.room, tokenBob, bob)
	hs.waitRegistered(t, 2)

	alice.send(t, InboundFrame{Content: "hi"})
	alice.disconnect()
	waitDone(t, doneAlice)
	bob.disconnect()
	waitDone(t, doneBob)

	if got := hs.store.persistedCount(); got != 1 {
		t.Fatalf("persisted %d messages, want 1", got)
	}
	m := hs.store.persisted[0]
	if m.SenderID != "alice" || m.ChatID != hs.room || m.Content != "hi" {
		t.Fatalf("persisted message = %+v, want sender alice in room %s", m, hs.room)
	}

	// The sender's own connection receives the echo too.
	if alice.deliveredCount() != 1 || bob.deliveredCount() != 1 {
		t.Fatalf("deliveries = (%d, %d), want (1, 1)", alice.deliveredCount(), bob.deliveredCount())
	}
	if bob.delivered[0].Content != "hi" || bob.delivered[0].SenderID != "alice" {
		t.Fatalf("broadcast payload = %+v", bob.delivered[0])
	}
}

func TestSession_RejectsMissingCredential(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()

	waitDone(t, hs.run(hs.room, "", tr))

	if got := tr.lastCloseCode(); got != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", got, websocket.ClosePolicyViolation)
	}
	if hs.registry.RoomCount() != 0 {
		t.Fatal("rejected connection was registered")
	}
}

func TestSession_RejectsUnresolvableCredential(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()

	waitDone(t, hs.run(hs.room, "bogus-token", tr))

	if got := tr.lastCloseCode(); got != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", got, websocket.ClosePolicyViolation)
	}
}

func TestSession_RejectsMalformedRoomID(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()

	waitDone(t, hs.run("not-a-uuid", tokenAlice, tr))

	if got := tr.lastCloseCode(); got != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", got, websocket.ClosePolicyViolation)
	}
}

func TestSession_RejectsUnknownRoom(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()

	waitDone(t, hs.run(uuid.NewString(), tokenAlice, tr))

	if got := tr.lastCloseCode(); got != websocket.CloseUnsupportedData {
		t.Fatalf("close code = %d, want %d", got, websocket.CloseUnsupportedData)
	}
}

func TestSession_RejectsNonParticipantBeforeRegistration(t *testing.T) {
	hs := newHarness()
	hs.handler.Membership.(*fakeMembership).members[hs.room]["bob"] = false
	tr := newFakeTransport()

	waitDone(t, hs.run(hs.room, tokenBob, tr))

	if got := tr.lastCloseCode(); got != websocket.CloseUnsupportedData {
		t.Fatalf("close code = %d, want %d", got, websocket.CloseUnsupportedData)
	}
	if hs.registry.RoomCount() != 0 {
		t.Fatal("non-participant was registered before rejection")
	}
}

// ----- Receive loop -----

func TestSession_EmptyContentIsIgnored(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()
	done := hs.run(hs.room, tokenAlice, tr)
	hs.waitRegistered(t, 1)

	tr.send(t, InboundFrame{Content: "   "})
	tr.disconnect()
	waitDone(t, done)

	if got := hs.store.persistedCount(); got != 0 {
		t.Fatalf("empty content persisted %d messages", got)
	}
	if got := tr.deliveredCount(); got != 0 {
		t.Fatalf("empty content broadcast %d payloads", got)
	}
	if len(tr.notices) != 1 {
		t.Fatalf("sender notices = %d, want 1", len(tr.notices))
	}
}

func TestSession_UndecodableFrameIsIgnored(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()
	done := hs.run(hs.room, tokenAlice, tr)
	hs.waitRegistered(t, 1)

	tr.frames <- []byte("{not json")
	tr.send(t, InboundFrame{Content: "still alive"})
	tr.disconnect()
	waitDone(t, done)

	// The bad frame was skipped, the next one processed normally.
	if got := hs.store.persistedCount(); got != 1 {
		t.Fatalf("persisted %d messages, want 1", got)
	}
	if len(tr.notices) != 1 {
		t.Fatalf("sender notices = %d, want 1", len(tr.notices))
	}
}

func TestSession_MalformedReplyReferenceDegradesToNoReply(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()
	done := hs.run(hs.room, tokenAlice, tr)
	hs.waitRegistered(t, 1)

	tr.send(t, InboundFrame{Content: "hello", ReplyToMessageID: "definitely-not-a-uuid"})
	tr.disconnect()
	waitDone(t, done)

	if got := hs.store.persistedCount(); got != 1 {
		t.Fatalf("persisted %d messages, want 1", got)
	}
	if hs.store.persisted[0].ReplyToMessageID != nil {
		t.Fatalf("malformed reply reference persisted as %q", *hs.store.persisted[0].ReplyToMessageID)
	}
	if tr.delivered[0].RepliedToMessage != nil {
		t.Fatalf("payload carries a reply summary for a malformed reference")
	}
}

func TestSession_ResolvedReplyIsEmbeddedInPayload(t *testing.T) {
	hs := newHarness()
	original := uuid.NewString()
	hs.store.replies[original] = &domain.Message{
		ID:       original,
		SenderID: "bob",
		Content:  "the original message",
	}

	tr := newFakeTransport()
	done := hs.run(hs.room, tokenAlice, tr)
	hs.waitRegistered(t, 1)

	tr.send(t, InboundFrame{Content: "replying", ReplyToMessageID: original})
	tr.disconnect()
	waitDone(t, done)

	if tr.deliveredCount() != 1 {
		t.Fatalf("deliveries = %d, want 1", tr.deliveredCount())
	}
	replied := tr.delivered[0].RepliedToMessage
	if replied == nil {
		t.Fatal("payload is missing the reply summary")
	}
	if replied.ID != original || replied.SenderID != "bob" || replied.Content != "the original message" {
		t.Fatalf("reply summary = %+v", replied)
	}
}

func TestSession_PersistFailureClosesOnlyThisConnection(t *testing.T) {
	hs := newHarness()
	tr := newFakeTransport()
	other := newFakeTransport()
	done := hs.run(hs.room, tokenAlice, tr)
	doneOther := hs.run(hs.room, tokenBob, other)
	hs.waitRegistered(t, 2)

	hs.store.failPersist = errors.New("disk on fire")
	tr.send(t, InboundFrame{Content: "doomed"})
	waitDone(t, done)

	if got := hs.registry.Len(hs.room); got != 1 {
		t.Fatalf("room has %d connections after persist failure, want 1 (the other peer)", got)
	}
	if got := other.deliveredCount(); got != 0 {
		t.Fatalf("failed persist still broadcast %d payloads", got)
	}

	other.disconnect()
	waitDone(t, doneOther)
}

// ----- Teardown -----

func TestSession_DisconnectUnregistersExactlyOnce(t *testing.T) {
	hs := newHarness()

	// Second, independent room to verify isolation.
	otherRoom := uuid.NewString()
	m := hs.handler.Membership.(*fakeMembership)
	m.rooms[otherRoom] = true
	m.members[otherRoom] = map[string]bool{"bob": true}

	tr := newFakeTransport()
	other := newFakeTransport()
	done := hs.run(hs.room, tokenAlice, tr)
	go hs.handler.Run(context.Background(), otherRoom, tokenBob, other)

	hs.waitRegistered(t, 1)
	deadline := time.Now().Add(2 * time.Second)
	for hs.registry.Len(otherRoom) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("second room never registered")
		}
		time.Sleep(time.Millisecond)
	}

	tr.disconnect()
	waitDone(t, done)

	if got := hs.registry.Len(hs.room); got != 0 {
		t.Fatalf("disconnected room still holds %d connections", got)
	}
	if got := hs.registry.Len(otherRoom); got != 1 {
		t.Fatalf("disconnect affected an unrelated room: %d connections", got)
	}
}

func TestSession_ConcurrentSendersBothPersistAndBroadcast(t *testing.T) {
	hs := newHarness()

	alice := newFakeTransport()
	bob := newFakeTransport()
	doneAlice := hs.run(hs.room, tokenAlice, alice)
	doneBob := hs.run(hs.room, tokenBob, bob)
	hs.waitRegistered(t, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); alice.send(t, InboundFrame{Content: "from alice"}) }()
	go func() { defer wg.Done(); bob.send(t, InboundFrame{Content: "from bob"}) }()
	wg.Wait()

	alice.disconnect()
	bob.disconnect()
	waitDone(t, doneAlice)
	waitDone(t, doneBob)

	if got := hs.store.persistedCount(); got != 2 {
		t.Fatalf("persisted %d messages, want 2 (no lost writes)", got)
	}

	// Each sender saw its own echo; whether it also saw the peer's message
	// depends on interleaving with teardown, so only assert the lower bound
	// and payload integrity.
	for _, tr := range []*fakeTransport{alice, bob} {
		if tr.deliveredCount() < 1 {
			t.Fatalf("a connection observed no deliveries")
		}
		for _, p := range tr.delivered {
			if p.Content == "" || p.ID == "" || p.ChatID != hs.room {
				t.Fatalf("observed partially-formed payload: %+v", p)
			}
		}
	}
}
