package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

type friendsOverview struct {
	Friends []struct {
		UUID     string `json:"uuid"`
		Username string `json:"username"`
	} `json:"friends"`
}

type inboundFrame struct {
	Type          string `json:"type"`
	OtherUserUUID string `json:"otherUserUuid"`
	OtherUsername string `json:"otherUsername"`
	UnreadDelta   string `json:"unreadDelta"`
	Preview       string `json:"preview"`
	Message       struct {
		SenderUUID string `json:"senderUuid"`
		Content    string `json:"content"`
		Read       bool   `json:"read"`
	} `json:"message"`
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server address")
	user := flag.String("user", "", "username")
	password := flag.String("password", "", "password")
	to := flag.String("to", "", "friend to chat with")
	flag.Parse()
	if *user == "" || *to == "" {
		return errors.New("-user and -to are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := login(ctx, *addr, *user, *password)
	if err != nil {
		return err
	}
	peer, err := findFriend(ctx, *addr, token, *to)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*addr, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := wsjson.Write(ctx, conn, map[string]string{"type": proto.InboundTypeChatLoad, "identity": peer}); err != nil {
		return fmt.Errorf("open chat: %w", err)
	}

	fmt.Printf("Chatting with %s as %s\n", *to, *user)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, peer, *to)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func login(ctx context.Context, addr, user, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": user, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login: %w", err)
	}
	return out.Token, nil
}

func findFriend(ctx context.Context, addr, token, username string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/friends", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("list friends: %w", err)
	}
	defer resp.Body.Close()

	var ov friendsOverview
	if err := json.NewDecoder(resp.Body).Decode(&ov); err != nil {
		return "", fmt.Errorf("decode friends: %w", err)
	}
	for _, f := range ov.Friends {
		if strings.EqualFold(f.Username, username) {
			return f.UUID, nil
		}
	}
	return "", fmt.Errorf("%s is not a friend", username)
}

func readLoop(ctx context.Context, conn *websocket.Conn, peer, peerName string) {
	for {
		var f inboundFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch f.Type {
		case proto.OutboundTypeMessage:
			who := "you"
			if f.Message.SenderUUID == peer {
				who = peerName
			}
			fmt.Printf("%s: %s\n", who, f.Message.Content)
		case proto.OutboundTypeRecentChat:
			if f.OtherUserUUID != peer && f.UnreadDelta == string(proto.UnreadIncrement) {
				fmt.Printf("(new message elsewhere: %s)\n", f.Preview)
			}
		case proto.OutboundTypeMessageRead, proto.OutboundTypeAllMessagesRead:
			if f.Action == string(proto.ActionReadIndicator) {
				fmt.Printf("(%s read %d message(s))\n", peerName, f.Count)
			}
		case proto.OutboundTypeSessionLoggedOut:
			fmt.Println("(logged out)")
			return
		default:
			fmt.Printf("(%s %s)\n", f.Type, f.OtherUsername)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := wsjson.Write(ctx, conn, map[string]string{"type": proto.InboundTypeChatSend, "content": text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
