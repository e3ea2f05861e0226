package result

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the outcome of one tool invocation.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusRestricted Status = "restricted"
	StatusError      Status = "error"
)

// Result is the single normalized shape every tool invocation produces. It is
// built fresh per call and only persisted through the assistant text it leads to.
type Result struct {
	Tool    string         `json:"tool"`
	Status  Status         `json:"status"`
	Channel string         `json:"channel,omitempty"`
	Message string         `json:"message,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`

	RenderAsAction bool   `json:"render_as_action,omitempty"`
	ActionType     string `json:"action_type,omitempty"`
	// ActionKey names the payload field that identifies the action for dedup.
	ActionKey   string `json:"action_key,omitempty"`
	AutoExecute bool   `json:"auto_execute,omitempty"`
}

// Executor is a tool executor after normalization. The sensitivity guard wraps
// executors of this shape without changing the signature.
type Executor func(ctx context.Context, args json.RawMessage) (Result, error)

// Action is returned by tools whose output should be rendered by the client
// rather than narrated.
type Action struct {
	Type        string
	Key         string
	AutoExecute bool
	Payload     map[string]any
}

// Restricted builds a restricted result for a channel.
func Restricted(tool, channel, message string) Result {
	return Result{Tool: tool, Status: StatusRestricted, Channel: channel, Message: message}
}

// Failed builds an error result. The message is fed back to the engine, never
// shown to the end user verbatim.
func Failed(tool, message string) Result {
	return Result{Tool: tool, Status: StatusError, Message: message}
}

// Normalize turns whatever a tool returned into a Result. Maps, structs, Action
// values, and serialized JSON or plain text are all accepted.
func Normalize(tool string, out any) (Result, error) {
	switch v := out.(type) {
	case nil:
		return Result{Tool: tool, Status: StatusSuccess, Payload: map[string]any{}}, nil
	case Result:
		v.Tool = tool
		if v.Status == "" {
			v.Status = StatusSuccess
		}
		return v, nil
	case *Result:
		if v == nil {
			return Normalize(tool, nil)
		}
		return Normalize(tool, *v)
	case Action:
		return fromAction(tool, v), nil
	case *Action:
		if v == nil {
			return Normalize(tool, nil)
		}
		return fromAction(tool, *v), nil
	case map[string]any:
		return fromPayload(tool, v), nil
	case string:
		return fromText(tool, []byte(v))
	case []byte:
		return fromText(tool, v)
	case json.RawMessage:
		return fromText(tool, v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return Result{}, fmt.Errorf("normalize %s output: %w", tool, err)
		}
		return fromText(tool, raw)
	}
}

func fromAction(tool string, a Action) Result {
	payload := a.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return Result{
		Tool:           tool,
		Status:         StatusSuccess,
		Payload:        payload,
		RenderAsAction: true,
		ActionType:     a.Type,
		ActionKey:      a.Key,
		AutoExecute:    a.AutoExecute,
	}
}

// fromPayload treats a lone {"error": "..."} object as a failed call.
func fromPayload(tool string, payload map[string]any) Result {
	if msg, ok := payload["error"].(string); ok && len(payload) == 1 {
		return Failed(tool, msg)
	}
	return Result{Tool: tool, Status: StatusSuccess, Payload: payload}
}

func fromText(tool string, raw []byte) (Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Normalize(tool, nil)
	}
	if !json.Valid(trimmed) {
		return Result{Tool: tool, Status: StatusSuccess, Payload: map[string]any{"text": string(trimmed)}}, nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return Result{}, fmt.Errorf("normalize %s output: %w", tool, err)
	}
	if obj, ok := decoded.(map[string]any); ok {
		return fromPayload(tool, obj), nil
	}
	return Result{Tool: tool, Status: StatusSuccess, Payload: map[string]any{"data": decoded}}, nil
}

// EngineContent renders the result as the JSON text handed back to the
// completion engine: {"status": ..., ...payload} plus channel/message when set.
func (r Result) EngineContent() string {
	body := make(map[string]any, len(r.Payload)+3)
	for k, v := range r.Payload {
		body[k] = v
	}
	body["status"] = string(r.Status)
	if r.Channel != "" {
		body["channel"] = r.Channel
	}
	if r.Message != "" {
		body["message"] = r.Message
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, r.Status)
	}
	return string(raw)
}

// PrimaryValue is the payload value under ActionKey, used to identify an
// action across repeated tool calls.
func (r Result) PrimaryValue() string {
	if r.ActionKey == "" {
		raw, _ := json.Marshal(r.Payload)
		return string(raw)
	}
	v, ok := r.Payload[r.ActionKey]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}
