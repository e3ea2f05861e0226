package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// LangChain adapts any langchaingo model with tool support to Engine.
type LangChain struct {
	model llms.Model
	opts  []llms.CallOption
}

// NewLangChain applies opts to every call.
func NewLangChain(model llms.Model, opts ...llms.CallOption) *LangChain {
	return &LangChain{model: model, opts: opts}
}

func (l *LangChain) Complete(ctx context.Context, req Request, onChunk ChunkFunc) (Response, error) {
	opts := append([]llms.CallOption(nil), l.opts...)
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toolDefinitions(req.Tools)))
	}
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			// tool call deltas arrive through the same callback as JSON
			if isToolCallChunk(chunk) {
				return nil
			}
			return onChunk(ctx, string(chunk))
		}))
	}

	response, err := l.model.GenerateContent(ctx, Messages(req), opts...)
	if err != nil {
		return Response{}, fmt.Errorf("failed to generate content: %w", err)
	}
	if response == nil || len(response.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}

	choice := response.Choices[0]
	out := Response{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		call := ToolCall{ID: tc.ID}
		if tc.FunctionCall != nil {
			call.Name = tc.FunctionCall.Name
			call.Arguments = tc.FunctionCall.Arguments
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

// Messages lays out a request as a chat transcript: instructions, history, the
// new message, then each tool round as an assistant call plus tool answers.
func Messages(req Request) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(req.History)+2+3*len(req.Rounds))
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.Instructions))
	for _, m := range req.History {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, m.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Message))

	for _, round := range req.Rounds {
		call := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if round.Text != "" {
			call.Parts = append(call.Parts, llms.TextContent{Text: round.Text})
		}
		for _, tc := range round.Calls {
			call.Parts = append(call.Parts, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		msgs = append(msgs, call)
		for _, res := range round.Results {
			msgs = append(msgs, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: res.CallID,
					Name:       res.Name,
					Content:    res.Content,
				}},
			})
		}
	}
	return msgs
}

func toolDefinitions(specs []ToolSpec) []llms.Tool {
	tools := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}

func isToolCallChunk(chunk []byte) bool {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) < 2 || trimmed[0] != '[' {
		return false
	}
	var calls []struct {
		Function *struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(trimmed, &calls); err != nil {
		return false
	}
	for _, c := range calls {
		if c.Function != nil {
			return true
		}
	}
	return false
}
