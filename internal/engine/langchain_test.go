package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	chunks   []string
	response *llms.ContentResponse
	err      error

	gotMessages []llms.MessageContent
	gotOptions  llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.gotMessages = messages
	for _, opt := range options {
		opt(&f.gotOptions)
	}
	if f.gotOptions.StreamingFunc != nil {
		for _, c := range f.chunks {
			if err := f.gotOptions.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return f.response, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestComplete_TextStreamsAndSkipsToolDeltas(t *testing.T) {
	model := &fakeModel{
		chunks: []string{"Your next ", `[{"type":"function","function":{"name":"list_upcoming_events","arguments":"{}"}}]`, "event is Saturday."},
		response: &llms.ContentResponse{Choices: []*llms.ContentChoice{
			{Content: "Your next event is Saturday."},
		}},
	}
	eng := NewLangChain(model, llms.WithTemperature(0.2))

	var streamed []string
	resp, err := eng.Complete(context.Background(), Request{
		Instructions: "be brief",
		Message:      "what's next?",
		Tools:        []ToolSpec{{Name: "list_upcoming_events", Description: "List events.", Parameters: map[string]any{"type": "object"}}},
	}, func(_ context.Context, text string) error {
		streamed = append(streamed, text)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Your next event is Saturday.", resp.Text)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, []string{"Your next ", "event is Saturday."}, streamed)
	require.Len(t, model.gotOptions.Tools, 1)
	assert.Equal(t, "list_upcoming_events", model.gotOptions.Tools[0].Function.Name)
	assert.Equal(t, 0.2, model.gotOptions.Temperature)
}

func TestComplete_ToolCalls(t *testing.T) {
	model := &fakeModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{
			{ID: "call-1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "get_menu_summary", Arguments: `{"booking_id":"b-42"}`}},
			{ID: "call-2", Type: "function"},
		},
	}}}}

	resp, err := NewLangChain(model).Complete(context.Background(), Request{Message: "menu?"}, nil)
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, ToolCall{ID: "call-1", Name: "get_menu_summary", Arguments: `{"booking_id":"b-42"}`}, resp.ToolCalls[0])
	assert.Equal(t, ToolCall{ID: "call-2"}, resp.ToolCalls[1])
	assert.Nil(t, model.gotOptions.StreamingFunc)
}

func TestComplete_Errors(t *testing.T) {
	_, err := NewLangChain(&fakeModel{err: errors.New("dial tcp: connection refused")}).Complete(context.Background(), Request{}, nil)
	assert.Error(t, err)

	_, err = NewLangChain(&fakeModel{response: &llms.ContentResponse{}}).Complete(context.Background(), Request{}, nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestMessages_Layout(t *testing.T) {
	msgs := Messages(Request{
		Instructions: "system text",
		History: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello chef"},
		},
		Message: "menu for b-42?",
		Rounds: []Round{{
			Calls:   []ToolCall{{ID: "call-1", Name: "get_menu_summary", Arguments: `{"booking_id":"b-42"}`}},
			Results: []ToolResult{{CallID: "call-1", Name: "get_menu_summary", Content: `{"status":"success"}`}},
		}},
	})

	roles := make([]llms.ChatMessageType, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []llms.ChatMessageType{
		llms.ChatMessageTypeSystem,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
		llms.ChatMessageTypeTool,
	}, roles)

	call, ok := msgs[4].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call-1", call.ID)

	answer, ok := msgs[5].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call-1", answer.ToolCallID)
}

func TestNew_Providers(t *testing.T) {
	_, err := New(ProviderConfig{Provider: "openai", Model: "gpt-4o-mini"})
	assert.Error(t, err, "missing key")

	_, err = New(ProviderConfig{Provider: "carrier-pigeon", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = New(ProviderConfig{Provider: "azure_openai", APIKey: "k", Model: "gpt-4o"})
	assert.Error(t, err, "azure needs an endpoint")

	eng, err := New(ProviderConfig{Provider: "github_models", APIKey: "k", Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 512})
	require.NoError(t, err)
	assert.Len(t, eng.opts, 2)
}
