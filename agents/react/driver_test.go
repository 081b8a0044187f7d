package react

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/reactchat/framework"
	"github.com/lexcodex/reactchat/llm"
)

type scriptedTurn struct {
	deltas    []llm.Delta
	err       error
	streamErr error
}

// scriptedModel replays one turn per StreamChat call and repeats the last
// turn once the script runs out.
type scriptedModel struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	requests []llm.ChatRequest
	panicOn  bool
}

func (m *scriptedModel) StreamChat(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn {
		panic("model exploded")
	}
	req.Messages = append([]framework.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := len(m.requests) - 1
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	}
	turn := m.turns[idx]
	if turn.err != nil {
		return nil, turn.err
	}
	return &llm.SliceStream{Deltas: turn.deltas, Err: turn.streamErr}, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type funcTool struct {
	name string
	fn   func(args map[string]interface{}) framework.ToolResult
	got  []map[string]interface{}
}

func (t *funcTool) Name() string                          { return t.name }
func (t *funcTool) Description() string                   { return "test tool" }
func (t *funcTool) Parameters() []framework.ToolParameter { return nil }
func (t *funcTool) Execute(ctx context.Context, args map[string]interface{}) framework.ToolResult {
	t.got = append(t.got, args)
	return t.fn(args)
}

func echoTool() *funcTool {
	return &funcTool{name: "echo", fn: func(args map[string]interface{}) framework.ToolResult {
		return framework.Ok(args["text"])
	}}
}

func callDelta(id, name, args string) llm.Delta {
	return llm.Delta{ToolCalls: []llm.ToolCallDelta{{
		Index:    0,
		ID:       id,
		Type:     "function",
		Function: llm.FunctionCallDelta{Name: name, Arguments: args},
	}}}
}

func newDriver(model llm.ChatModel, tools ...framework.Tool) *Driver {
	registry := framework.NewToolRegistry(nil)
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			panic(err)
		}
	}
	return &Driver{Model: model, Tools: registry}
}

func userMessage(text string) ChatRequest {
	return ChatRequest{Messages: []framework.Message{{Role: framework.RoleUser, Content: text}}}
}

func terminalCount(events []framework.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Type.Terminal() {
			n++
		}
	}
	return n
}

func TestDriverStreamsContentWithoutTools(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{{deltas: []llm.Delta{{Content: "Hel"}, {Content: "lo"}}}}}
	sink := &framework.RecordingSink{}

	outcome := newDriver(model).Run(context.Background(), userMessage("hi"), sink)

	assert.Equal(t, FinishedNoTools, outcome)
	assert.Equal(t, []framework.EventType{framework.EventContent, framework.EventContent, framework.EventDone}, sink.Types())
	events := sink.Events()
	assert.Equal(t, "Hel", events[0].Data)
	assert.Equal(t, "lo", events[1].Data)
	assert.Nil(t, events[2].Data)

	require.Len(t, model.requests, 1)
	assert.Nil(t, model.requests[0].Tools)
	assert.Equal(t, DefaultSystemPrompt, model.requests[0].SystemPrompt)
}

func TestDriverRunsToolThenAnswers(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{deltas: []llm.Delta{
			{ReasoningContent: "Let me echo the greeting back."},
			callDelta("call_1", "echo", `{"text":"hi"}`),
		}},
		{deltas: []llm.Delta{{Content: "It said hi"}}},
	}}
	tool := echoTool()
	sink := &framework.RecordingSink{}

	outcome := newDriver(model, tool).Run(context.Background(), userMessage("echo hi"), sink)

	assert.Equal(t, FinishedNoTools, outcome)
	assert.Equal(t, []framework.EventType{
		framework.EventReasoning,
		framework.EventReActStep, // thought
		framework.EventToolCall,
		framework.EventReActStep, // thought now leads to action
		framework.EventReActStep, // action
		framework.EventToolResult,
		framework.EventReActStep, // observation
		framework.EventContent,
		framework.EventDone,
	}, sink.Types())

	events := sink.Events()
	thought := events[1].Data.(*Thought)
	assert.Equal(t, "Echo the greeting back", thought.Title)
	assert.Equal(t, LeadsToResponse, thought.LeadsTo)
	assert.Equal(t, LeadsToAction, events[3].Data.(*Thought).LeadsTo)

	call := events[2].Data.(framework.ToolCallEvent)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, map[string]interface{}{"text": "hi"}, call.Parameters)

	action := events[4].Data.(*Action)
	assert.Equal(t, "call_1", action.ToolCall.ID)
	assert.Equal(t, framework.ToolResultEvent{ToolCallID: "call_1", Result: "hi"}, events[5].Data)
	assert.Equal(t, action.ID, events[6].Data.(*Observation).ActionID)

	require.Len(t, model.requests, 2)
	assert.NotEmpty(t, model.requests[0].Tools)
	history := model.requests[1].Messages
	require.Len(t, history, 3)
	assert.Equal(t, framework.RoleAssistant, history[1].Role)
	require.NotNil(t, history[1].ReasoningContent)
	assert.Equal(t, "Let me echo the greeting back.", *history[1].ReasoningContent)
	assert.Equal(t, framework.Message{Role: framework.RoleTool, Content: `"hi"`, ToolCallID: "call_1"}, history[2])
}

func TestDriverThoughtKeepsRawReasoning(t *testing.T) {
	first := "I will read the config file now.\n"
	second := "I will read the config file again.\n\n\n\nDone   here"
	model := &scriptedModel{turns: []scriptedTurn{{deltas: []llm.Delta{
		{ReasoningContent: first},
		{ReasoningContent: second},
		{Content: "done"},
	}}}}
	sink := &framework.RecordingSink{}

	newDriver(model).Run(context.Background(), userMessage("read it"), sink)

	var thoughts []*Thought
	for _, ev := range sink.Events() {
		if thought, ok := ev.Data.(*Thought); ok {
			thoughts = append(thoughts, thought)
		}
	}
	require.Len(t, thoughts, 2)
	assert.Equal(t, thoughts[0].ID, thoughts[1].ID)
	assert.Equal(t, first, thoughts[0].Content)
	assert.Equal(t, first+second, thoughts[1].Content)
	assert.Equal(t, "Read the config file now", thoughts[1].Title)
}

func TestDriverSynthesizesThoughtForBareToolCall(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{deltas: []llm.Delta{callDelta("call_1", "echo", `{"text":"x"}`)}},
		{deltas: []llm.Delta{{Content: "ok"}}},
	}}
	sink := &framework.RecordingSink{}
	newDriver(model, echoTool()).Run(context.Background(), userMessage("go"), sink)

	events := sink.Events()
	require.True(t, len(events) > 3)
	assert.Equal(t, framework.EventToolCall, events[0].Type)
	thought, ok := events[1].Data.(*Thought)
	require.True(t, ok)
	assert.Equal(t, ImplicitThoughtTitle, thought.Title)
	assert.Equal(t, LeadsToAction, thought.LeadsTo)
	_, ok = events[2].Data.(*Action)
	assert.True(t, ok)
}

func TestDriverToolNotFound(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{deltas: []llm.Delta{callDelta("call_1", "ghost", `{}`)}},
		{deltas: []llm.Delta{{Content: "sorry"}}},
	}}
	sink := &framework.RecordingSink{}
	outcome := newDriver(model, echoTool()).Run(context.Background(), userMessage("x"), sink)
	assert.Equal(t, FinishedNoTools, outcome)

	var toolErr framework.ToolErrorEvent
	for _, ev := range sink.Events() {
		if ev.Type == framework.EventToolError {
			toolErr = ev.Data.(framework.ToolErrorEvent)
		}
	}
	assert.Equal(t, "call_1", toolErr.ToolCallID)
	assert.Equal(t, "Error: Tool 'ghost' not found", toolErr.Error)

	history := model.requests[1].Messages
	assert.Equal(t, "Error: Tool 'ghost' not found", history[len(history)-1].Content)
}

func TestDriverToolFailureAndPanic(t *testing.T) {
	failing := &funcTool{name: "disk", fn: func(map[string]interface{}) framework.ToolResult {
		return framework.Fail("disk full")
	}}
	panicky := &funcTool{name: "boom", fn: func(map[string]interface{}) framework.ToolResult {
		panic("kaboom")
	}}
	model := &scriptedModel{turns: []scriptedTurn{
		{deltas: []llm.Delta{
			callDelta("call_1", "disk", `{}`),
			{ToolCalls: []llm.ToolCallDelta{{Index: 1, ID: "call_2", Function: llm.FunctionCallDelta{Name: "boom", Arguments: "{}"}}}},
		}},
		{deltas: []llm.Delta{{Content: "done"}}},
	}}
	sink := &framework.RecordingSink{}
	outcome := newDriver(model, failing, panicky).Run(context.Background(), userMessage("x"), sink)
	assert.Equal(t, FinishedNoTools, outcome)

	var errs []framework.ToolErrorEvent
	for _, ev := range sink.Events() {
		if ev.Type == framework.EventToolError {
			errs = append(errs, ev.Data.(framework.ToolErrorEvent))
		}
	}
	require.Len(t, errs, 2)
	assert.Equal(t, "disk full", errs[0].Error)
	assert.Equal(t, "kaboom", errs[1].Error)

	history := model.requests[1].Messages
	require.Len(t, history, 4)
	assert.Equal(t, "Error: disk full", history[2].Content)
	assert.Equal(t, "Error: kaboom", history[3].Content)
}

func TestDriverMalformedArgumentsBecomeEmpty(t *testing.T) {
	tool := echoTool()
	model := &scriptedModel{turns: []scriptedTurn{
		{deltas: []llm.Delta{callDelta("call_1", "echo", `{not json`)}},
		{deltas: []llm.Delta{{Content: "ok"}}},
	}}
	sink := &framework.RecordingSink{}
	newDriver(model, tool).Run(context.Background(), userMessage("x"), sink)

	require.Len(t, tool.got, 1)
	assert.Empty(t, tool.got[0])
	call := sink.Events()[0].Data.(framework.ToolCallEvent)
	assert.NotNil(t, call.Parameters)
	assert.Empty(t, call.Parameters)
}

func TestDriverStopsAtHardCeiling(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{deltas: []llm.Delta{callDelta("call_1", "echo", `{"text":"again"}`)}},
	}}
	driver := newDriver(model, echoTool())
	driver.MaxIterations = 50
	sink := &framework.RecordingSink{}

	outcome := driver.Run(context.Background(), userMessage("loop"), sink)

	assert.Equal(t, FinishedMaxIterations, outcome)
	assert.Equal(t, HardIterationCeiling, model.calls())
	types := sink.Types()
	assert.Equal(t, framework.EventDone, types[len(types)-1])
	assert.Equal(t, 1, terminalCount(sink.Events()))
}

func TestDriverStopsWhenOrchestratorCompletes(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{deltas: []llm.Delta{callDelta("call_1", "echo", `{"text":"again"}`)}},
	}}
	driver := newDriver(model, echoTool())
	driver.MaxIterations = 3
	sink := &framework.RecordingSink{}

	outcome := driver.Run(context.Background(), userMessage("loop"), sink)

	assert.Equal(t, FinishedMaxIterations, outcome)
	assert.Equal(t, 3, model.calls())
}

func TestDriverUpstreamErrorEmitsSingleError(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{{err: &llm.APIError{StatusCode: 500, Body: "boom"}}}}
	sink := &framework.RecordingSink{}

	outcome := newDriver(model).Run(context.Background(), userMessage("x"), sink)

	assert.Equal(t, Failed, outcome)
	require.Equal(t, []framework.EventType{framework.EventError}, sink.Types())
	assert.Equal(t, framework.ErrorEvent{Message: "DeepSeek API error: 500 - boom"}, sink.Events()[0].Data)
}

func TestDriverMidStreamFailure(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{{
		deltas:    []llm.Delta{{Content: "par"}},
		streamErr: errors.New("connection reset"),
	}}}
	sink := &framework.RecordingSink{}

	outcome := newDriver(model).Run(context.Background(), userMessage("x"), sink)

	assert.Equal(t, Failed, outcome)
	assert.Equal(t, []framework.EventType{framework.EventContent, framework.EventError}, sink.Types())
	assert.Equal(t, framework.ErrorEvent{Message: "DeepSeek request error: connection reset"}, sink.Events()[1].Data)
}

func TestDriverCanceledContext(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{{deltas: []llm.Delta{{Content: "never"}}}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &framework.RecordingSink{}

	outcome := newDriver(model).Run(ctx, userMessage("x"), sink)

	assert.Equal(t, Canceled, outcome)
	assert.Equal(t, []framework.EventType{framework.EventError}, sink.Types())
}

func TestDriverRecoversFromPanic(t *testing.T) {
	model := &scriptedModel{panicOn: true}
	sink := &framework.RecordingSink{}

	outcome := newDriver(model).Run(context.Background(), userMessage("x"), sink)

	assert.Equal(t, Failed, outcome)
	assert.Equal(t, []framework.Event{{
		Type: framework.EventError,
		Data: framework.ErrorEvent{Message: "Internal server error"},
	}}, sink.Events())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "finished", FinishedNoTools.String())
	assert.Equal(t, "max_iterations", FinishedMaxIterations.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "canceled", Canceled.String())
}
