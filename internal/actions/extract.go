package actions

import (
	"encoding/json"

	"chefassist/internal/result"
)

// Block is a structured instruction for the client, delivered after the
// narrative as an action frame.
type Block struct {
	ActionType  string         `json:"actionType"`
	Payload     map[string]any `json:"payload"`
	AutoExecute bool           `json:"autoExecute"`
}

// MarshalJSON always writes autoExecute and never writes a null payload.
func (b Block) MarshalJSON() ([]byte, error) {
	payload := b.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal(struct {
		ActionType  string         `json:"actionType"`
		Payload     map[string]any `json:"payload"`
		AutoExecute bool           `json:"autoExecute"`
	}{b.ActionType, payload, b.AutoExecute})
}

// Extract turns the results flagged for rendering into blocks, in result order.
// Auto-execute blocks are deduplicated by action type and primary payload value,
// keeping the first occurrence. Blocks that only offer something to the chef are
// kept as-is.
func Extract(results []result.Result) []Block {
	var blocks []Block
	seen := make(map[string]bool)
	for _, r := range results {
		if !r.RenderAsAction || r.Status != result.StatusSuccess {
			continue
		}
		if r.AutoExecute {
			key := r.ActionType + "\x00" + r.PrimaryValue()
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		blocks = append(blocks, Block{
			ActionType:  r.ActionType,
			Payload:     r.Payload,
			AutoExecute: r.AutoExecute,
		})
	}
	return blocks
}
