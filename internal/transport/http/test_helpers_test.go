package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/pubsub"
	"github.com/vovakirdan/wirechat-dm/internal/render"
	"github.com/vovakirdan/wirechat-dm/internal/service/accounts"
	"github.com/vovakirdan/wirechat-dm/internal/service/chats"
	"github.com/vovakirdan/wirechat-dm/internal/service/friends"
	"github.com/vovakirdan/wirechat-dm/internal/store"
	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	layer *pubsub.Memory
}

type testUser struct {
	token string
	*store.User
}

// frame is the union of the outbound fields the tests look at.
type frame struct {
	Type          string `json:"type"`
	OtherUserUUID string `json:"otherUserUuid"`
	UnreadDelta   string `json:"unreadDelta"`
	Preview       string `json:"preview"`
	HTML          string `json:"html"`
	Message       struct {
		Content string `json:"content"`
		Read    bool   `json:"read"`
	} `json:"message"`
	Action     string `json:"action"`
	Count      int64  `json:"count"`
	Section    string `json:"section"`
	AreFriends *bool  `json:"areFriends"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	layer := pubsub.NewMemory(&logger)
	renderer, err := render.New(0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	c := core.New(st, layer, renderer, &logger, core.Options{OpTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	authService := auth.NewService(ctx, st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, c, &logger)

	cfg := config.Default()
	cfg.WS.PingInterval = 0
	server := NewServer(Services{
		Core:     c,
		Auth:     authService,
		Friends:  friends.New(st, c, &logger),
		Accounts: accounts.New(st, c, &logger),
		Chats:    chats.New(st, c, 0),
		Store:    st,
	}, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, layer: layer}
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != stdhttp.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) register(t *testing.T, username string) *testUser {
	t.Helper()

	var resp AuthResponse
	status := e.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{Username: username, Password: "password123"}, &resp)
	if status != stdhttp.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}
	u, err := e.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("load %s: %v", username, err)
	}
	return &testUser{token: resp.Token, User: u}
}

func (e *testEnv) befriend(t *testing.T, from, to *testUser) {
	t.Helper()

	if status := e.do(t, stdhttp.MethodPost, "/api/friends/requests", from.token, SendFriendRequestRequest{Username: to.Username}, nil); status != stdhttp.StatusCreated {
		t.Fatalf("send request: status %d", status)
	}
	if status := e.do(t, stdhttp.MethodPost, "/api/friends/requests/"+from.UUID+"/accept", to.token, nil, nil); status != stdhttp.StatusNoContent {
		t.Fatalf("accept request: status %d", status)
	}
}

// dial opens a websocket for u and waits until its session joined the user group.
func (e *testEnv) dial(t *testing.T, u *testUser) *websocket.Conn {
	t.Helper()

	before := e.layer.Members(core.GroupForUser(u.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + u.token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	require.Eventually(t, func() bool {
		return e.layer.Members(core.GroupForUser(u.ID)) == before+1
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// navigate loads path and waits until the server processed it.
func navigate(t *testing.T, conn *websocket.Conn, path string) {
	t.Helper()
	send(t, conn, map[string]string{"type": "page_load", "path": path})
	// Frames are handled in order, so a short pause is enough for state that emits nothing.
	time.Sleep(50 * time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

// expectSilence fails if conn receives a frame within d. The timed out read closes conn.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	var f frame
	if err := wsjson.Read(ctx, conn, &f); err == nil {
		t.Fatalf("unexpected frame %+v", f)
	}
}
