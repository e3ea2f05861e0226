package engine

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("empty response from completion engine")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    Role
	Content string
}

// ToolSpec describes a tool the engine may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one invocation the engine asked for. Arguments is the raw text the
// engine produced and may not be valid JSON.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

// Round is one completed tool phase of the current request.
type Round struct {
	Text    string
	Calls   []ToolCall
	Results []ToolResult
}

// Request is one completion call: the conversation so far, the new message and
// the tool rounds already run for it.
type Request struct {
	Instructions string
	History      []Message
	Message      string
	Rounds       []Round
	Tools        []ToolSpec
}

// Response is either final text (no ToolCalls) or a set of tool calls,
// possibly with some leading text.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// ChunkFunc receives narrative text as it is generated. Returning an error
// aborts the completion.
type ChunkFunc func(ctx context.Context, text string) error

// Engine is the completion engine the session talks to.
type Engine interface {
	Complete(ctx context.Context, req Request, onChunk ChunkFunc) (Response, error)
}
