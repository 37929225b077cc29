package friends

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vovakirdan/wirechat-dm/internal/store"
	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
)

type notification struct {
	kind        string
	first, last int64
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *recordingNotifier) record(kind string, a, b *store.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{kind: kind, first: a.ID, last: b.ID})
}

func (n *recordingNotifier) FriendRequestSent(_ context.Context, a, b *store.User) {
	n.record("sent", a, b)
}

func (n *recordingNotifier) FriendRequestAccepted(_ context.Context, a, b *store.User) {
	n.record("accepted", a, b)
}

func (n *recordingNotifier) FriendRequestRejected(_ context.Context, a, b *store.User) {
	n.record("rejected", a, b)
}

func (n *recordingNotifier) FriendRequestCancelled(_ context.Context, a, b *store.User) {
	n.record("cancelled", a, b)
}

func (n *recordingNotifier) FriendRemoved(_ context.Context, a, b *store.User) {
	n.record("removed", a, b)
}

func (n *recordingNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return notification{}
	}
	return n.calls[len(n.calls)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteStore, *recordingNotifier) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	n := &recordingNotifier{}
	return New(st, n, nil), st, n
}

func mustUser(t *testing.T, st *sqlite.SQLiteStore, name string) *store.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), name, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestSendRequestValidation(t *testing.T) {
	svc, st, n := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	if _, err := svc.SendRequest(ctx, alice.ID, alice.ID); !errors.Is(err, ErrCannotFriendSelf) {
		t.Fatalf("expected ErrCannotFriendSelf, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, alice.ID, 999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if got := n.last(); got != (notification{"sent", alice.ID, bob.ID}) {
		t.Fatalf("unexpected notification %+v", got)
	}

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); !errors.Is(err, ErrRequestAlreadyExists) {
		t.Fatalf("expected ErrRequestAlreadyExists, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, bob.ID, alice.ID); !errors.Is(err, ErrRequestAlreadyExists) {
		t.Fatalf("expected ErrRequestAlreadyExists for reverse request, got %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("failed requests must not notify, got %d calls", n.count())
	}
}

func TestSendRequestByUsername(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "Bob")

	f, err := svc.SendRequestByUsername(ctx, alice.ID, " bob ")
	if err != nil {
		t.Fatalf("SendRequestByUsername: %v", err)
	}
	if f.FriendID != bob.ID {
		t.Fatalf("expected request to bob, got %+v", f)
	}
	if _, err := svc.SendRequestByUsername(ctx, alice.ID, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAcceptAndRemove(t *testing.T) {
	svc, st, n := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	// Only the addressee can accept.
	if err := svc.AcceptRequest(ctx, alice.ID, bob.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if err := svc.AcceptRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if got := n.last(); got != (notification{"accepted", alice.ID, bob.ID}) {
		t.Fatalf("unexpected notification %+v", got)
	}
	if err := svc.AcceptRequest(ctx, bob.ID, alice.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected repeated accept to fail, got %v", err)
	}

	ok, err := svc.IsFriend(ctx, alice.ID, bob.ID)
	if err != nil || !ok {
		t.Fatalf("expected friendship, got %v, %v", ok, err)
	}

	if err := svc.RemoveFriend(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	if got := n.last(); got != (notification{"removed", bob.ID, alice.ID}) {
		t.Fatalf("unexpected notification %+v", got)
	}
	if err := svc.RemoveFriend(ctx, bob.ID, alice.ID); !errors.Is(err, ErrNotFriends) {
		t.Fatalf("expected ErrNotFriends, got %v", err)
	}
}

func TestRejectAndCancel(t *testing.T) {
	svc, st, n := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if err := svc.RejectRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}
	if got := n.last(); got != (notification{"rejected", alice.ID, bob.ID}) {
		t.Fatalf("unexpected notification %+v", got)
	}

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("SendRequest after reject: %v", err)
	}
	// The addressee cannot cancel someone else's request.
	if err := svc.CancelRequest(ctx, bob.ID, alice.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if err := svc.CancelRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	if got := n.last(); got != (notification{"cancelled", alice.ID, bob.ID}) {
		t.Fatalf("unexpected notification %+v", got)
	}
}

func TestOverview(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")
	dave := mustUser(t, st, "dave")

	if _, err := svc.SendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.AcceptRequest(ctx, bob.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SendRequest(ctx, carol.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SendRequest(ctx, alice.ID, dave.ID); err != nil {
		t.Fatal(err)
	}

	ov, err := svc.Overview(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(ov.Friends) != 1 || ov.Friends[0].ID != bob.ID {
		t.Fatalf("unexpected friends: %+v", ov.Friends)
	}
	if len(ov.Incoming) != 1 || ov.Incoming[0].ID != carol.ID {
		t.Fatalf("unexpected incoming: %+v", ov.Incoming)
	}
	if len(ov.Outgoing) != 1 || ov.Outgoing[0].ID != dave.ID {
		t.Fatalf("unexpected outgoing: %+v", ov.Outgoing)
	}
}

// racingStore runs a competing write right before the wrapped call, as if another
// request committed between the service's check and its write.
type racingStore struct {
	*sqlite.SQLiteStore
	beforeDelete func()
	hideExisting bool
}

func (r *racingStore) DeleteFriendship(ctx context.Context, userID, friendID int64, status store.FriendStatus) error {
	if r.beforeDelete != nil {
		r.beforeDelete()
	}
	return r.SQLiteStore.DeleteFriendship(ctx, userID, friendID, status)
}

func (r *racingStore) GetFriendship(ctx context.Context, userID, friendID int64) (*store.Friend, error) {
	if r.hideExisting {
		r.hideExisting = false
		return nil, store.ErrNotFound
	}
	return r.SQLiteStore.GetFriendship(ctx, userID, friendID)
}

func TestRejectLosingToAcceptKeepsFriendship(t *testing.T) {
	_, st, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	for _, tc := range []struct {
		name string
		run  func(*Service) error
	}{
		{"reject", func(svc *Service) error { return svc.RejectRequest(ctx, bob.ID, alice.ID) }},
		{"cancel", func(svc *Service) error { return svc.CancelRequest(ctx, alice.ID, bob.ID) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := st.CreateFriendRequest(ctx, alice.ID, bob.ID); err != nil {
				t.Fatalf("CreateFriendRequest: %v", err)
			}
			rs := &racingStore{SQLiteStore: st, beforeDelete: func() {
				if err := st.UpdateFriendStatus(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); err != nil {
					t.Errorf("accept: %v", err)
				}
			}}
			n := &recordingNotifier{}
			svc := New(rs, n, nil)

			if err := tc.run(svc); !errors.Is(err, ErrRequestNotFound) {
				t.Fatalf("expected ErrRequestNotFound, got %v", err)
			}
			if ok, err := st.IsFriend(ctx, alice.ID, bob.ID); err != nil || !ok {
				t.Fatalf("accepted friendship must survive, got %v, %v", ok, err)
			}
			if n.count() != 0 {
				t.Fatalf("a lost race must not notify, got %+v", n.calls)
			}

			if err := st.DeleteFriendship(ctx, alice.ID, bob.ID, store.FriendStatusAccepted); err != nil {
				t.Fatalf("cleanup: %v", err)
			}
		})
	}
}

func TestCrossedRequestsCreateOneRow(t *testing.T) {
	_, st, _ := newTestService(t)
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	if _, err := st.CreateFriendRequest(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("CreateFriendRequest: %v", err)
	}

	// bob's check runs before alice's request is visible to him
	rs := &racingStore{SQLiteStore: st, hideExisting: true}
	n := &recordingNotifier{}
	svc := New(rs, n, nil)

	if _, err := svc.SendRequest(ctx, bob.ID, alice.ID); !errors.Is(err, ErrRequestAlreadyExists) {
		t.Fatalf("expected ErrRequestAlreadyExists, got %v", err)
	}
	if n.count() != 0 {
		t.Fatalf("a conflicting request must not notify, got %+v", n.calls)
	}

	ov, err := svc.Overview(ctx, bob.ID)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(ov.Incoming) != 1 || len(ov.Outgoing) != 0 {
		t.Fatalf("expected only alice's incoming request, got %+v", ov)
	}
}
