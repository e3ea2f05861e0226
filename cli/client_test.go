package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
)

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/assistant/tools", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"missing or invalid token","code":"unauthorized"}}`))
			return
		}
		w.Write([]byte(`{"channel":"web","tools":[{"name":"navigate_to","category":"navigation","description":"Open a page"}]}`))
	})
	mux.HandleFunc("/api/v1/assistant/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var in map[string]string
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		conn.WriteJSON(map[string]any{"type": "content", "text": "re: " + in["message"]})
		conn.WriteJSON(map[string]any{"type": "done"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetTools(t *testing.T) {
	srv := newFakeAPI(t)
	c := &ApiClient{httpClient: srv.Client(), BaseURL: srv.URL, Token: "tok"}

	if err := c.CheckHealth(); err != nil {
		t.Fatalf("health: %v", err)
	}
	ch, tools, err := c.GetTools()
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if ch != "web" || len(tools) != 1 || tools[0].Name != "navigate_to" {
		t.Fatalf("unexpected tools response: %s %+v", ch, tools)
	}

	c.Token = "wrong"
	if _, _, err := c.GetTools(); err == nil || err.Error() != "missing or invalid token (unauthorized)" {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestChatSession(t *testing.T) {
	srv := newFakeAPI(t)
	c := &ApiClient{httpClient: srv.Client(), BaseURL: srv.URL, Token: "tok"}

	chat, err := c.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer chat.Close()

	if err := chat.Send("hello", Scope{ContextType: "booking", ContextID: "b-1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var frames []Frame
	for {
		f, err := chat.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		frames = append(frames, f)
		if f.Terminal() {
			break
		}
	}
	got, _ := json.Marshal(frames)
	if len(frames) != 2 || frames[0].Text != "re: hello" || frames[1].Type != "done" {
		t.Fatalf("unexpected frames: %s", got)
	}
}
