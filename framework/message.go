package framework

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one the chat API accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of the conversation history. ReasoningContent is a
// pointer so that "absent" and "present but empty" stay distinguishable when
// the history is replayed upstream.
type Message struct {
	Role             Role       `json:"role"`
	Content          string     `json:"content"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	ReasoningContent *string    `json:"reasoning_content,omitempty"`
}

// ToolCall is a fully accumulated request from the model to run a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParseArguments decodes the streamed argument string. Empty or malformed
// input yields an empty map so a bad argument payload never aborts a turn.
func (c ToolCall) ParseArguments() map[string]interface{} {
	args := map[string]interface{}{}
	raw := strings.TrimSpace(c.Arguments)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]interface{}{}
	}
	return args
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
