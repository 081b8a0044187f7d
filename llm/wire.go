package llm

import (
	"github.com/lexcodex/reactchat/framework"
)

type chatPayload struct {
	Model     string                 `json:"model"`
	Messages  []wireMessage          `json:"messages"`
	Stream    bool                   `json:"stream"`
	Tools     []framework.ToolSchema `json:"tools,omitempty"`
	MaxTokens int                    `json:"max_tokens,omitempty"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role             framework.Role `json:"role"`
	Content          string         `json:"content"`
	ToolCalls        []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	ReasoningContent *string        `json:"reasoning_content,omitempty"`
}

// PrepareMessages converts history into wire messages, prepending the system
// prompt when set. An assistant message carrying tool calls always replays
// reasoning_content (possibly empty); every other message omits it.
func PrepareMessages(systemPrompt string, messages []framework.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, wireMessage{Role: framework.RoleSystem, Content: systemPrompt})
	}
	for _, msg := range messages {
		wm := wireMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == framework.RoleAssistant && len(msg.ToolCalls) > 0 {
			reasoning := ""
			if msg.ReasoningContent != nil {
				reasoning = *msg.ReasoningContent
			}
			wm.ReasoningContent = &reasoning
			wm.ToolCalls = make([]wireToolCall, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:   call.ID,
					Type: "function",
					Function: wireFunction{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
		}
		out = append(out, wm)
	}
	return out
}

// Delta is the choices[0].delta object of one stream chunk.
type Delta struct {
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// Empty reports whether the delta carries nothing to accumulate.
func (d Delta) Empty() bool {
	return d.Content == "" && d.ReasoningContent == "" && len(d.ToolCalls) == 0
}

// ToolCallDelta is one indexed tool-call fragment.
type ToolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function FunctionCallDelta `json:"function"`
}

// FunctionCallDelta carries a name and an arguments fragment.
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta        Delta  `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
