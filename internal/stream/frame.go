package stream

import (
	"encoding/json"

	"chefassist/internal/actions"
)

// FrameType tags a frame. Error and done are terminal.
type FrameType string

const (
	FrameContent FrameType = "content"
	FrameAction  FrameType = "action"
	FrameError   FrameType = "error"
	FrameDone    FrameType = "done"
)

// Frame is one outbound event. Only the fields of its type are serialized.
type Frame struct {
	Type    FrameType
	Text    string
	Action  actions.Block
	Message string
}

// Terminal reports whether no frame may follow this one.
func (f Frame) Terminal() bool {
	return f.Type == FrameError || f.Type == FrameDone
}

func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameContent:
		return json.Marshal(struct {
			Type FrameType `json:"type"`
			Text string    `json:"text"`
		}{f.Type, f.Text})
	case FrameAction:
		payload := f.Action.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		return json.Marshal(struct {
			Type        FrameType      `json:"type"`
			ActionType  string         `json:"actionType"`
			Payload     map[string]any `json:"payload"`
			AutoExecute bool           `json:"autoExecute"`
		}{f.Type, f.Action.ActionType, payload, f.Action.AutoExecute})
	case FrameError:
		return json.Marshal(struct {
			Type    FrameType `json:"type"`
			Message string    `json:"message"`
		}{f.Type, f.Message})
	default:
		return json.Marshal(struct {
			Type FrameType `json:"type"`
		}{f.Type})
	}
}

// UnmarshalJSON accepts the wire shape produced by MarshalJSON; clients of the
// websocket endpoint decode frames with it.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type        FrameType      `json:"type"`
		Text        string         `json:"text"`
		ActionType  string         `json:"actionType"`
		Payload     map[string]any `json:"payload"`
		AutoExecute bool           `json:"autoExecute"`
		Message     string         `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*f = Frame{Type: wire.Type, Text: wire.Text, Message: wire.Message}
	if wire.Type == FrameAction {
		f.Action = actions.Block{ActionType: wire.ActionType, Payload: wire.Payload, AutoExecute: wire.AutoExecute}
	}
	return nil
}
