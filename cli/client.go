package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ApiClient talks to the chefassist API on behalf of one chef and channel,
// identified by the token.
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
	Token      string
}

// NewApiClient reads CHEFASSIST_API_URL and CHEFASSIST_TOKEN.
func NewApiClient() *ApiClient {
	baseURL := os.Getenv("CHEFASSIST_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &ApiClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      os.Getenv("CHEFASSIST_TOKEN"),
	}
}

// CheckHealth checks if the API is up and running
func (c *ApiClient) CheckHealth() error {
	resp, err := c.httpClient.Get(c.BaseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status code: %d", resp.StatusCode)
	}
	return nil
}

// Tool is one tool the caller's channel may use.
type Tool struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Turn is one stored message of a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type History struct {
	ThreadID string `json:"threadId"`
	Turns    []Turn `json:"turns"`
}

// Scope narrows a conversation to a booking or client.
type Scope struct {
	ContextType string `json:"contextType,omitempty"`
	ContextID   string `json:"contextId,omitempty"`
}

// Frame is one streamed event of an assistant reply.
type Frame struct {
	Type        string         `json:"type"`
	Text        string         `json:"text"`
	ActionType  string         `json:"actionType"`
	Payload     map[string]any `json:"payload"`
	AutoExecute bool           `json:"autoExecute"`
	Message     string         `json:"message"`
}

func (f Frame) Terminal() bool { return f.Type == "done" || f.Type == "error" }

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// GetTools fetches the tools available to the token's channel
func (c *ApiClient) GetTools() (string, []Tool, error) {
	var out struct {
		Channel string `json:"channel"`
		Tools   []Tool `json:"tools"`
	}
	if err := c.do(http.MethodGet, "/api/v1/assistant/tools", nil, &out); err != nil {
		return "", nil, err
	}
	return out.Channel, out.Tools, nil
}

// GetHistory fetches the active conversation for a scope
func (c *ApiClient) GetHistory(sc Scope) (History, error) {
	q := url.Values{}
	if sc.ContextType != "" {
		q.Set("contextType", sc.ContextType)
		q.Set("contextId", sc.ContextID)
	}
	path := "/api/v1/assistant/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var h History
	err := c.do(http.MethodGet, path, nil, &h)
	return h, err
}

// StartConversation archives the active conversation for a scope
func (c *ApiClient) StartConversation(sc Scope) (string, error) {
	var out struct {
		ThreadID string `json:"threadId"`
	}
	if err := c.do(http.MethodPost, "/api/v1/assistant/conversations", sc, &out); err != nil {
		return "", err
	}
	return out.ThreadID, nil
}

func (c *ApiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
			return fmt.Errorf("%s (%s)", e.Error.Message, e.Error.Code)
		}
		return fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

// ChatSession is an open websocket to the assistant.
type ChatSession struct {
	conn *websocket.Conn
}

// Connect opens the assistant websocket. Browsers cannot set headers on the
// upgrade, so the token travels in the query like the dashboard sends it.
func (c *ApiClient) Connect() (*ChatSession, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/assistant/ws"
	u.RawQuery = url.Values{"token": {c.Token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect failed with status code: %d", resp.StatusCode)
		}
		return nil, err
	}
	return &ChatSession{conn: conn}, nil
}

func (s *ChatSession) Send(message string, sc Scope) error {
	return s.conn.WriteJSON(struct {
		Message string `json:"message"`
		Scope
	}{message, sc})
}

// Next blocks for the next frame.
func (s *ChatSession) Next() (Frame, error) {
	var f Frame
	err := s.conn.ReadJSON(&f)
	return f, err
}

func (s *ChatSession) Close() error {
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
