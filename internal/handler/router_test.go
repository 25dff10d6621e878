package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/notify"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket/sockettest"
)

type bridge struct {
	srv     *sockettest.Server
	client  *fiora.Client
	hub     *notify.Hub
	router  http.Handler
	mu      sync.Mutex
	notices []notify.Notice
}

func (b *bridge) noticeTexts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.notices))
	for i, n := range b.notices {
		out[i] = n.Message
	}
	return out
}

func newBridge(t *testing.T, opts Options) *bridge {
	t.Helper()

	srv := sockettest.NewServer(3)
	t.Cleanup(srv.Close)

	msg := func(id, to, from, content string) model.Message {
		return model.Message{ID: id, To: to, Type: model.MessageText, Content: content, From: model.Sender{ID: from, Username: from}}
	}

	srv.Handle(fiora.EventLogin, func(payload json.RawMessage) any {
		var req map[string]string
		json.Unmarshal(payload, &req)
		if req["password"] != "secret" {
			return "密码错误"
		}
		return map[string]any{
			"_id":      "u1",
			"username": "alice",
			"token":    "tok-1",
			"groups":   []map[string]any{{"_id": "g1", "name": "fiora"}},
		}
	})
	srv.Handle(fiora.EventFetchHistory, func(json.RawMessage) any {
		return map[string]model.History{
			"g1": {Messages: []model.Message{msg("m1", "g1", "u2", "a"), msg("m2", "g1", "u2", "b")}, Unread: 2},
		}
	})
	srv.Handle(fiora.EventSendMessage, func(payload json.RawMessage) any {
		var req map[string]string
		json.Unmarshal(payload, &req)
		if req["content"] == "banned" {
			return fiora.SealText
		}
		return msg("s1", req["to"], "u1", req["content"])
	})

	discard := log.New(io.Discard, "", 0)
	hub := notify.NewHub(discard)

	sockOpts := socket.DefaultOptions(srv.URL)
	sockOpts.Logger = discard
	client := fiora.NewClient(socket.NewSession(sockOpts), fiora.Options{
		BaseURL:    srv.URL,
		AckTimeout: 3 * time.Second,
		Notifier:   hub,
		Logger:     discard,
	})
	t.Cleanup(func() { client.Close() })

	b := &bridge{srv: srv, client: client, hub: hub, router: NewRouter(client, hub, opts)}
	hub.Notices().Subscribe(func(n notify.Notice) {
		b.mu.Lock()
		b.notices = append(b.notices, n)
		b.mu.Unlock()
	})
	return b
}

func (b *bridge) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	b.router.ServeHTTP(resp, req)
	return resp
}

func (b *bridge) login(t *testing.T) {
	t.Helper()
	if resp := b.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "secret"}); resp.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", resp.Code, resp.Body.String())
	}
}

func TestLoginValidation(t *testing.T) {
	b := newBridge(t, Options{})

	if resp := b.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp := b.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "wrong"})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "密码错误") {
		t.Fatalf("expected server text in body, got %s", resp.Body.String())
	}
}

func TestLoginAndStatus(t *testing.T) {
	b := newBridge(t, Options{})

	var status struct {
		LoggedIn bool            `json:"loggedIn"`
		User     json.RawMessage `json:"user"`
	}
	resp := b.do(t, http.MethodGet, "/api/status", nil)
	json.NewDecoder(resp.Body).Decode(&status)
	if status.LoggedIn || status.User != nil {
		t.Fatalf("expected anonymous status, got %+v", status)
	}

	resp = b.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "secret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "tok-1") {
		t.Fatal("token must not be exposed")
	}

	resp = b.do(t, http.MethodGet, "/api/status", nil)
	json.NewDecoder(resp.Body).Decode(&status)
	if !status.LoggedIn || !strings.Contains(string(status.User), `"username":"alice"`) {
		t.Fatalf("expected logged in status, got %s", resp.Body.String())
	}
}

func TestConversationsAndMessages(t *testing.T) {
	b := newBridge(t, Options{})

	if resp := b.do(t, http.MethodGet, "/api/conversations", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", resp.Code)
	}
	b.login(t)

	var list []model.Conversation
	resp := b.do(t, http.MethodGet, "/api/conversations", nil)
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode conversations: %v", err)
	}
	if len(list) != 1 || list[0].ID != "g1" || list[0].Unread != 2 {
		t.Fatalf("unexpected conversations: %+v", list)
	}

	var msgs []model.Message
	resp = b.do(t, http.MethodGet, "/api/conversations/g1/messages", nil)
	json.NewDecoder(resp.Body).Decode(&msgs)
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	if resp := b.do(t, http.MethodPost, "/api/conversations/g1/read", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	resp = b.do(t, http.MethodGet, "/api/conversations", nil)
	json.NewDecoder(resp.Body).Decode(&list)
	if list[0].Unread != 0 {
		t.Fatalf("expected unread cleared, got %d", list[0].Unread)
	}
}

func TestSendMessage(t *testing.T) {
	b := newBridge(t, Options{})
	b.login(t)

	if resp := b.do(t, http.MethodPost, "/api/conversations/g1/messages", map[string]string{"content": " "}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content, got %d", resp.Code)
	}
	if resp := b.do(t, http.MethodPost, "/api/conversations/g1/messages", map[string]string{"content": "x", "type": "file"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.Code)
	}

	resp := b.do(t, http.MethodPost, "/api/conversations/g1/messages", map[string]string{"content": "hello"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var msg model.Message
	json.NewDecoder(resp.Body).Decode(&msg)
	if msg.ID != "s1" || msg.Content != "hello" {
		t.Fatalf("unexpected echo: %+v", msg)
	}
	if got := b.client.Messages("g1"); len(got) != 3 || got[2].ID != "s1" {
		t.Fatalf("echo not appended: %+v", got)
	}
	if texts := b.noticeTexts(); len(texts) != 1 || texts[0] != "发送成功" {
		t.Fatalf("expected success notice, got %v", texts)
	}

	resp = b.do(t, http.MethodPost, "/api/conversations/g1/messages", map[string]string{"content": "banned"})
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 when sealed, got %d", resp.Code)
	}
	calls := len(b.srv.Calls(fiora.EventSendMessage))
	resp = b.do(t, http.MethodPost, "/api/conversations/g1/messages", map[string]string{"content": "again"})
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected local 429, got %d", resp.Code)
	}
	if len(b.srv.Calls(fiora.EventSendMessage)) != calls {
		t.Fatal("sealed send must not reach the server")
	}
}

func TestSilentSend(t *testing.T) {
	b := newBridge(t, Options{SilentSend: true})
	b.login(t)

	if resp := b.do(t, http.MethodPost, "/api/conversations/g1/messages", map[string]string{"content": "hello"}); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if texts := b.noticeTexts(); len(texts) != 0 {
		t.Fatalf("silent send must not notify, got %v", texts)
	}
}

func TestEventStream(t *testing.T) {
	b := newBridge(t, Options{})
	b.login(t)

	server := httptest.NewServer(b.router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	expect := func(event, contains string) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed while waiting for %s", event)
				}
				if line != "event: "+event {
					continue
				}
				data := <-lines
				if !strings.Contains(data, contains) {
					t.Fatalf("%s event data %q does not contain %q", event, data, contains)
				}
				return
			case <-deadline:
				t.Fatalf("timed out waiting for %s event", event)
			}
		}
	}

	expect("state", `"loggedIn":true`)

	b.hub.Info("hello from hub")
	expect("notice", "hello from hub")

	if err := b.srv.Push(fiora.EventMessagePushed, model.Message{ID: "p1", To: "g1", Type: model.MessageText, Content: "live"}); err != nil {
		t.Fatalf("Push err: %v", err)
	}
	expect("message", `"_id":"p1"`)

	cancel()
	deadline := time.Now().Add(3 * time.Second)
	for b.client.MessageEvents().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream subscription leaked after the request ended")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
