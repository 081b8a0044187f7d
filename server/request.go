package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/lexcodex/reactchat/agents/react"
	"github.com/lexcodex/reactchat/framework"
)

const maxRequestBytes = 4 << 20

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Messages  []InboundMessage `json:"messages"`
	Stream    *bool            `json:"stream,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

// InboundMessage accepts both snake_case and camelCase field names for the
// optional tool and reasoning fields.
type InboundMessage struct {
	Role             framework.Role
	Content          string
	ToolCalls        []framework.ToolCall
	ToolCallID       string
	ReasoningContent *string
}

type inboundToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role                  framework.Role    `json:"role"`
		Content               *string           `json:"content"`
		ToolCalls             []inboundToolCall `json:"tool_calls"`
		ToolCallsCamel        []inboundToolCall `json:"toolCalls"`
		ToolCallID            string            `json:"tool_call_id"`
		ToolCallIDCamel       string            `json:"toolCallId"`
		ReasoningContent      *string           `json:"reasoning_content"`
		ReasoningContentCamel *string           `json:"reasoningContent"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Content == nil {
		return errors.New("message content is required")
	}
	calls := raw.ToolCalls
	if calls == nil {
		calls = raw.ToolCallsCamel
	}
	*m = InboundMessage{
		Role:             raw.Role,
		Content:          *raw.Content,
		ToolCallID:       firstNonEmpty(raw.ToolCallID, raw.ToolCallIDCamel),
		ReasoningContent: raw.ReasoningContent,
	}
	if m.ReasoningContent == nil {
		m.ReasoningContent = raw.ReasoningContentCamel
	}
	for _, c := range calls {
		m.ToolCalls = append(m.ToolCalls, c.toolCall())
	}
	return nil
}

// toolCall flattens either the OpenAI nested form or the flat form.
// Arguments may arrive as a JSON string or as an object.
func (c inboundToolCall) toolCall() framework.ToolCall {
	name, args := c.Name, c.Arguments
	if c.Function != nil {
		if c.Function.Name != "" {
			name = c.Function.Name
		}
		if len(c.Function.Arguments) > 0 {
			args = c.Function.Arguments
		}
	}
	call := framework.ToolCall{ID: c.ID, Name: name}
	if len(args) > 0 {
		var s string
		if err := json.Unmarshal(args, &s); err == nil {
			call.Arguments = s
		} else {
			call.Arguments = string(args)
		}
	}
	return call
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// decodeChatRequest reads and validates a chat payload.
func decodeChatRequest(r io.Reader) (react.ChatRequest, error) {
	var req ChatRequest
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return react.ChatRequest{}, fmt.Errorf("invalid chat request: %w", err)
	}
	return req.toDriver()
}

func (req ChatRequest) toDriver() (react.ChatRequest, error) {
	if len(req.Messages) == 0 {
		return react.ChatRequest{}, errors.New("messages must not be empty")
	}
	if req.MaxTokens < 0 {
		return react.ChatRequest{}, errors.New("max_tokens must not be negative")
	}
	out := react.ChatRequest{MaxTokens: req.MaxTokens}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return react.ChatRequest{}, fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
		out.Messages = append(out.Messages, framework.Message{
			Role:             m.Role,
			Content:          m.Content,
			ToolCalls:        m.ToolCalls,
			ToolCallID:       m.ToolCallID,
			ReasoningContent: m.ReasoningContent,
		})
	}
	return out, nil
}

// ToolExecuteRequest invokes one tool directly.
type ToolExecuteRequest struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// HealthResponse reports liveness or readiness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}
