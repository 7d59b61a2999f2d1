package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"

	"github.com/mgauthier/tilewire/internal/wire"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *Server) {
	t.Helper()
	s := New("", opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func dial(t *testing.T, ts *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?name=" + name
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, kind wire.Kind, payload any) {
	t.Helper()
	frame, err := wire.Encode(kind, payload)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		t.Fatalf("write error: %v", err)
	}
}

func waitForHistory(t *testing.T, s *Server, conversation string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.history.Count(conversation) != n && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.history.Count(conversation); got != n {
		t.Fatalf("expected %d messages in history, got %d", n, got)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestBackfillEmptyConversation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/conversations/lobby/messages")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	// The messages field is always an array, never null.
	if !strings.Contains(string(body), `"messages":[]`) {
		t.Fatalf("expected empty messages array, got %s", body)
	}
}

func TestBackfillServesChatHistory(t *testing.T) {
	ts, s := newTestServer(t)

	alice := dial(t, ts, "Alice")
	sendEvent(t, alice, wire.KindJoinRoom, "lobby")
	sendEvent(t, alice, wire.KindSendMessage, wire.SendMessagePayload{Content: "hello", Conversation: "lobby"})
	waitForHistory(t, s, "lobby", 1)

	resp, err := http.Get(ts.URL + "/conversations/lobby/messages?perPage=20&offset=0")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	var page struct {
		Messages []wire.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(page.Messages))
	}
	if page.Messages[0].From != "Alice" || page.Messages[0].Content != "hello" {
		t.Errorf("unexpected message: %+v", page.Messages[0])
	}
}

func TestBackfillNegativeOffsetRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/conversations/lobby/messages?offset=-1")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestBackfillRateLimited(t *testing.T) {
	ts, _ := newTestServer(t, WithRateLimit(2, time.Hour))

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/conversations/lobby/messages")
		if err != nil {
			t.Fatalf("request error: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/conversations/lobby/messages")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestCreateGame(t *testing.T) {
	ts, s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"playerNames": []string{"Alice", "Bob"},
		"timePerTurn": 45000,
	})
	resp, err := http.Post(ts.URL+"/games", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		Token       string `json:"token"`
		TimePerTurn int    `json:"timePerTurn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected a game token")
	}
	if created.TimePerTurn != 45000 {
		t.Errorf("expected timePerTurn 45000, got %d", created.TimePerTurn)
	}

	g := s.games.Get(created.Token)
	if g == nil {
		t.Fatal("created game not registered")
	}
	if got := g.Snapshot(); len(got.Players) != 2 || got.Players[0].Name != "Alice" {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestCreateGameRejectsBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/games", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid body: expected 400, got %d", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]any{"playerNames": []string{"Alice"}})
	resp, err = http.Post(ts.URL+"/games", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("single player: expected 400, got %d", resp.StatusCode)
	}
}

func TestRedisBackedHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ts, s := newTestServer(t, WithRedis(client))

	alice := dial(t, ts, "Alice")
	sendEvent(t, alice, wire.KindJoinRoom, "lobby")
	sendEvent(t, alice, wire.KindSendMessage, wire.SendMessagePayload{Content: "persisted", Conversation: "lobby"})
	waitForHistory(t, s, "lobby", 1)

	resp, err := http.Get(ts.URL + "/conversations/lobby/messages")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	var page struct {
		Messages []wire.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Content != "persisted" {
		t.Fatalf("unexpected page: %+v", page.Messages)
	}
}
