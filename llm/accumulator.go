package llm

import (
	"strings"

	"github.com/google/uuid"

	"github.com/lexcodex/reactchat/framework"
)

// Fragment is what one delta contributed, ready to be surfaced immediately.
type Fragment struct {
	Content   string
	Reasoning string
	// ToolCalls lists the indices touched by the delta.
	ToolCalls []int
}

// Accumulator rebuilds one assistant turn from streamed deltas. Tool-call
// fragments are merged by index; the result never has index gaps.
type Accumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	calls     []framework.ToolCall
	frozen    bool
	newID     func() string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{newID: placeholderID}
}

func placeholderID() string {
	return "call_" + uuid.NewString()
}

// Ingest merges a delta. Calls after Finish are ignored.
func (a *Accumulator) Ingest(delta Delta) Fragment {
	var frag Fragment
	if a.frozen {
		return frag
	}
	if delta.Content != "" {
		a.content.WriteString(delta.Content)
		frag.Content = delta.Content
	}
	if delta.ReasoningContent != "" {
		a.reasoning.WriteString(delta.ReasoningContent)
		frag.Reasoning = delta.ReasoningContent
	}
	for _, tc := range delta.ToolCalls {
		if tc.Index < 0 {
			continue
		}
		a.ensure(tc.Index)
		call := &a.calls[tc.Index]
		if tc.ID != "" {
			call.ID = tc.ID
		}
		if tc.Function.Name != "" {
			call.Name = tc.Function.Name
		}
		call.Arguments += tc.Function.Arguments
		frag.ToolCalls = append(frag.ToolCalls, tc.Index)
	}
	return frag
}

// ensure backfills placeholder entries up to and including index.
func (a *Accumulator) ensure(index int) {
	for len(a.calls) <= index {
		a.calls = append(a.calls, framework.ToolCall{ID: a.newID()})
	}
}

// Content returns the content accumulated so far.
func (a *Accumulator) Content() string { return a.content.String() }

// Reasoning returns the reasoning accumulated so far.
func (a *Accumulator) Reasoning() string { return a.reasoning.String() }

// HasToolCalls reports whether any tool-call fragment arrived.
func (a *Accumulator) HasToolCalls() bool { return len(a.calls) > 0 }

// ToolCalls returns a copy of the calls in index order.
func (a *Accumulator) ToolCalls() []framework.ToolCall {
	out := make([]framework.ToolCall, len(a.calls))
	copy(out, a.calls)
	return out
}

// Finish freezes the buffers and returns the assistant message for the turn.
func (a *Accumulator) Finish() framework.Message {
	a.frozen = true
	msg := framework.Message{
		Role:    framework.RoleAssistant,
		Content: a.content.String(),
	}
	if len(a.calls) > 0 {
		msg.ToolCalls = a.ToolCalls()
	}
	if a.reasoning.Len() > 0 || len(a.calls) > 0 {
		msg.ReasoningContent = framework.StringPtr(a.reasoning.String())
	}
	return msg
}
