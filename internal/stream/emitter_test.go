package stream

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"chefassist/internal/actions"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(e *Emitter) <-chan []Frame {
	out := make(chan []Frame, 1)
	go func() {
		var frames []Frame
		for f := range e.Frames() {
			frames = append(frames, f)
		}
		out <- frames
	}()
	return out
}

func TestEmitter_OrderAndTermination(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter(2)
	got := collect(e)

	require.NoError(t, e.Content(ctx, "Your next event "))
	require.NoError(t, e.Content(ctx, "is Saturday."))
	require.NoError(t, e.Action(ctx, actions.Block{ActionType: "navigate", Payload: map[string]any{"path": "/bookings"}, AutoExecute: true}))
	require.NoError(t, e.Done(ctx))

	frames := <-got
	types := make([]FrameType, 0, len(frames))
	for _, f := range frames {
		types = append(types, f.Type)
	}
	assert.Equal(t, []FrameType{FrameContent, FrameContent, FrameAction, FrameDone}, types)
	assert.ErrorIs(t, e.Content(ctx, "late"), ErrClosed)
}

func TestEmitter_NeverSplitsRunes(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter(16)
	got := collect(e)

	text := "Crème brûlée for 🎂 night"
	raw := []byte(text)
	// feed one byte at a time so every multi-byte rune is cut
	for i := range raw {
		require.NoError(t, e.Content(ctx, string(raw[i:i+1])))
	}
	require.NoError(t, e.Done(ctx))

	var sb strings.Builder
	for _, f := range <-got {
		if f.Type == FrameContent {
			assert.True(t, utf8.ValidString(f.Text), "frame %q splits a rune", f.Text)
			sb.WriteString(f.Text)
		}
	}
	assert.Equal(t, text, sb.String())
}

func TestEmitter_Backpressure(t *testing.T) {
	e := NewEmitter(1)
	defer e.Close()

	require.NoError(t, e.Content(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := e.Content(ctx, "second")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestEmitter_FailIsTerminal(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter(4)
	got := collect(e)

	require.NoError(t, e.Content(ctx, "Let me check \xe2\x80"))
	require.NoError(t, e.Fail(ctx, "Something went wrong. Please try again."))
	assert.ErrorIs(t, e.Done(ctx), ErrClosed)

	frames := <-got
	require.Len(t, frames, 2)
	assert.Equal(t, FrameError, frames[1].Type)
	assert.True(t, frames[1].Terminal())
}

func TestEmitter_CloseIsIdempotent(t *testing.T) {
	e := NewEmitter(1)
	e.Close()
	e.Close()
	_, open := <-e.Frames()
	assert.False(t, open)
}

func TestFrameJSON(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
	}{
		{Frame{Type: FrameContent, Text: "hi"}, `{"type":"content","text":"hi"}`},
		{Frame{Type: FrameAction, Action: actions.Block{ActionType: "draft_message"}}, `{"type":"action","actionType":"draft_message","payload":{},"autoExecute":false}`},
		{Frame{Type: FrameError, Message: "Something went wrong."}, `{"type":"error","message":"Something went wrong."}`},
		{Frame{Type: FrameDone}, `{"type":"done"}`},
	}
	for _, tt := range tests {
		raw, err := json.Marshal(tt.frame)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(raw))

		var back Frame
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, tt.frame.Type, back.Type)
	}
}
