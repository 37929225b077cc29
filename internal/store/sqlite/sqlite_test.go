package sqlite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *SQLiteStore, name string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), name, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return u
}

func TestUserLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "Alice")
	if alice.UUID == "" || !alice.Active {
		t.Fatalf("unexpected user: %+v", alice)
	}

	byUUID, err := s.GetUserByUUID(ctx, alice.UUID)
	if err != nil || byUUID.ID != alice.ID {
		t.Fatalf("GetUserByUUID: %+v, %v", byUUID, err)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil || byName.ID != alice.ID {
		t.Fatalf("expected case-insensitive username match, got %+v, %v", byName, err)
	}

	if _, err := s.GetUserByUUID(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteUserDropsFriendshipsAndFreesUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	if _, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := s.UpdateFriendStatus(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := s.CreateFriendRequest(ctx, carol.ID, alice.ID); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := s.DeleteUser(ctx, alice.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, alice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected second delete to report ErrNotFound, got %v", err)
	}

	deleted, err := s.GetUserByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("deleted user should still resolve by id: %v", err)
	}
	if deleted.Active || deleted.DeletedAt == nil {
		t.Fatalf("expected inactive user, got %+v", deleted)
	}

	rows, err := s.ListFriends(ctx, alice.ID, nil)
	if err != nil {
		t.Fatalf("ListFriends: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no friendship rows, got %d", len(rows))
	}

	if _, err := s.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("username should be free again: %v", err)
	}
}

func TestMarkMessageReadIsGuarded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	msg, err := s.CreateMessage(ctx, alice.ID, bob.ID, "hi")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.Read || msg.UUID == "" || msg.Content != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	first, err := s.MarkMessageRead(ctx, msg.ID)
	if err != nil {
		t.Fatalf("MarkMessageRead: %v", err)
	}
	second, err := s.MarkMessageRead(ctx, msg.ID)
	if err != nil {
		t.Fatalf("MarkMessageRead: %v", err)
	}
	if first != 1 || second != 0 {
		t.Fatalf("expected 1 then 0 rows, got %d then %d", first, second)
	}
}

func TestMarkMessageReadConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	msg, err := s.CreateMessage(ctx, alice.ID, bob.ID, "race")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	var changed atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.MarkMessageRead(ctx, msg.ID)
			if err != nil {
				t.Errorf("MarkMessageRead: %v", err)
				return
			}
			changed.Add(n)
		}()
	}
	wg.Wait()

	if got := changed.Load(); got != 1 {
		t.Fatalf("expected exactly one transition, got %d", got)
	}
}

func TestMarkConversationReadCountsOnlyOneDirection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.CreateMessage(ctx, alice.ID, bob.ID, text); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}
	if _, err := s.CreateMessage(ctx, bob.ID, alice.ID, "reply"); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	n, err := s.MarkConversationRead(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	n, err = s.MarkConversationRead(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows on repeat, got %d", n)
	}
}

func TestListConversationAndRecentChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	mustSend := func(from, to *store.User, text string) *store.Message {
		t.Helper()
		m, err := s.CreateMessage(ctx, from.ID, to.ID, text)
		if err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		return m
	}

	mustSend(bob, alice, "b1")
	mustSend(bob, alice, "b2")
	mustSend(carol, alice, "c1")
	last := mustSend(alice, carol, "c2")

	msgs, err := s.ListConversation(ctx, alice.ID, bob.ID, 10, nil)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "b2" || msgs[1].Content != "b1" {
		t.Fatalf("unexpected conversation: %+v", msgs)
	}

	before := msgs[0].ID
	older, err := s.ListConversation(ctx, alice.ID, bob.ID, 10, &before)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(older) != 1 || older[0].Content != "b1" {
		t.Fatalf("unexpected page: %+v", older)
	}

	chats, err := s.ListRecentChats(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListRecentChats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].CounterpartID != carol.ID || chats[0].LastMessage.ID != last.ID || chats[0].UnreadCount != 1 {
		t.Fatalf("unexpected first chat: %+v", chats[0])
	}
	if chats[1].CounterpartID != bob.ID || chats[1].UnreadCount != 2 {
		t.Fatalf("unexpected second chat: %+v", chats[1])
	}
}

func TestFriendshipLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	req, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateFriendRequest: %v", err)
	}
	if req.Status != store.FriendStatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if got := store.RelationOf(req, bob.ID); got != store.RelationIncoming {
		t.Fatalf("expected incoming for bob, got %s", got)
	}

	ok, err := s.IsFriend(ctx, alice.ID, bob.ID)
	if err != nil || ok {
		t.Fatalf("pending request must not count as friendship: %v, %v", ok, err)
	}

	if err := s.UpdateFriendStatus(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); err != nil {
		t.Fatalf("UpdateFriendStatus: %v", err)
	}
	if err := s.UpdateFriendStatus(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected repeated accept to fail with ErrNotFound, got %v", err)
	}

	ok, err = s.IsFriend(ctx, bob.ID, alice.ID)
	if err != nil || !ok {
		t.Fatalf("expected mutual friendship: %v, %v", ok, err)
	}

	// a reject or cancel must not remove an accepted friendship
	if err := s.DeleteFriendship(ctx, alice.ID, bob.ID, store.FriendStatusPending); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected pending delete of accepted row to fail with ErrNotFound, got %v", err)
	}
	if ok, _ := s.IsFriend(ctx, alice.ID, bob.ID); !ok {
		t.Fatal("accepted friendship was removed by a pending delete")
	}

	if err := s.DeleteFriendship(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); err != nil {
		t.Fatalf("DeleteFriendship: %v", err)
	}
	if err := s.DeleteFriendship(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCrossedFriendRequestsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	if _, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("CreateFriendRequest: %v", err)
	}
	if _, err := s.CreateFriendRequest(ctx, bob.ID, alice.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected crossed request to conflict, got %v", err)
	}
	if _, err := s.CreateFriendRequest(ctx, alice.ID, bob.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate request to conflict, got %v", err)
	}

	rows, err := s.ListFriends(ctx, alice.ID, nil)
	if err != nil {
		t.Fatalf("ListFriends: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row between alice and bob, got %d", len(rows))
	}

	// the pair index rejects a reversed row even when written directly
	_, err = s.db.ExecContext(ctx, `INSERT INTO friends (user_id, friend_id, status) VALUES (?, ?, 'pending')`, bob.ID, alice.ID)
	if !isUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}
