package result

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	type overview struct {
		Name     string `json:"name"`
		Bookings int    `json:"bookings"`
	}

	tests := []struct {
		name    string
		out     any
		status  Status
		payload map[string]any
	}{
		{"nil", nil, StatusSuccess, map[string]any{}},
		{"map", map[string]any{"count": 2}, StatusSuccess, map[string]any{"count": 2}},
		{"struct", overview{Name: "Okafor", Bookings: 3}, StatusSuccess, map[string]any{"name": "Okafor", "bookings": float64(3)}},
		{"json text", `{"count": 2}`, StatusSuccess, map[string]any{"count": float64(2)}},
		{"json bytes", []byte(`[1,2]`), StatusSuccess, map[string]any{"data": []any{float64(1), float64(2)}}},
		{"plain text", "no bookings this week", StatusSuccess, map[string]any{"text": "no bookings this week"}},
		{"error object", map[string]any{"error": "menu missing"}, StatusError, nil},
		{"error text", json.RawMessage(`{"error":"menu missing"}`), StatusError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize("get_menu_summary", tt.out)
			require.NoError(t, err)
			assert.Equal(t, "get_menu_summary", res.Tool)
			assert.Equal(t, tt.status, res.Status)
			if tt.status == StatusError {
				assert.Equal(t, "menu missing", res.Message)
				return
			}
			assert.Equal(t, tt.payload, res.Payload)
		})
	}
}

func TestNormalize_Action(t *testing.T) {
	res, err := Normalize("navigate_to", &Action{Type: "navigate", Key: "path", AutoExecute: true, Payload: map[string]any{"path": "/menus"}})
	require.NoError(t, err)

	assert.True(t, res.RenderAsAction)
	assert.True(t, res.AutoExecute)
	assert.Equal(t, "navigate", res.ActionType)
	assert.Equal(t, "/menus", res.PrimaryValue())
}

func TestNormalize_Unmarshalable(t *testing.T) {
	_, err := Normalize("broken", make(chan int))
	assert.Error(t, err)
}

func TestEngineContent(t *testing.T) {
	res := Restricted("get_dietary_summary", "bridge-a", "Available on the dashboard.")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.EngineContent()), &decoded))
	assert.Equal(t, map[string]any{
		"status":  "restricted",
		"channel": "bridge-a",
		"message": "Available on the dashboard.",
	}, decoded)
}
