package react

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/lexcodex/reactchat/framework"
	"github.com/lexcodex/reactchat/llm"
)

// HardIterationCeiling caps the model turns of one request no matter how the
// driver is configured.
const HardIterationCeiling = 10

const (
	internalErrorMessage = "Internal server error"
	canceledMessage      = "Request canceled"
)

// Outcome reports how a Run ended.
type Outcome int

const (
	FinishedNoTools Outcome = iota
	FinishedMaxIterations
	Failed
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case FinishedNoTools:
		return "finished"
	case FinishedMaxIterations:
		return "max_iterations"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ChatRequest is one inbound conversation.
type ChatRequest struct {
	Messages  []framework.Message
	MaxTokens int
}

// Driver runs the streaming reason/act loop for one request at a time. A
// Driver holds no per-request state and may serve concurrent Runs.
type Driver struct {
	Model         llm.ChatModel
	Tools         *framework.ToolRegistry
	MaxIterations int
	SystemPrompt  string
	// MaxTokens applies when a request does not set its own limit.
	MaxTokens int
	Logger    *slog.Logger
}

// run is the state of a single Run.
type run struct {
	*Driver
	ctx      context.Context
	sink     framework.EventSink
	log      *slog.Logger
	orch     *Orchestrator
	messages []framework.Message
	tools    []framework.ToolSchema
	closed   bool
}

// Run streams the conversation into sink and returns how it ended. sink
// receives exactly one terminal event (done or error).
func (d *Driver) Run(ctx context.Context, req ChatRequest, sink framework.EventSink) (outcome Outcome) {
	r := &run{
		Driver:   d,
		ctx:      ctx,
		sink:     sink,
		log:      d.logger(),
		messages: append([]framework.Message(nil), req.Messages...),
	}
	r.orch = NewOrchestrator(d.maxIterations(), func(step Step) {
		r.emit(framework.EventReActStep, step)
	})
	r.orch.SetLogger(r.log)
	if d.Tools != nil && d.Tools.Len() > 0 {
		r.tools = d.Tools.Schemas()
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("chat loop panic", "panic", rec, "stack", string(debug.Stack()))
			r.fail(internalErrorMessage)
			outcome = Failed
		}
	}()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = d.MaxTokens
	}
	r.log.Info("starting chat stream", "message_count", len(req.Messages), "has_tools", len(r.tools) > 0)
	for turn := 1; turn <= HardIterationCeiling; turn++ {
		r.log.Info("react iteration", "iteration", turn, "max_iterations", HardIterationCeiling)
		msg, err := r.streamTurn(maxTokens)
		if err != nil {
			return r.upstreamFailure(err)
		}
		if len(msg.ToolCalls) == 0 {
			r.log.Info("no tool calls, finishing chat")
			r.finish()
			return FinishedNoTools
		}
		r.log.Info("executing tool calls", "count", len(msg.ToolCalls))
		r.messages = append(r.messages, msg)
		for _, call := range msg.ToolCalls {
			if ctx.Err() != nil {
				return r.canceled()
			}
			r.messages = append(r.messages, r.invoke(call))
		}
		if r.orch.Complete() {
			break
		}
	}
	r.log.Warn("iteration limit reached", "iterations", r.orch.State().Iteration)
	r.finish()
	return FinishedMaxIterations
}

// streamTurn consumes one model response, surfacing fragments as they
// arrive, and returns the assembled assistant message.
func (r *run) streamTurn(maxTokens int) (framework.Message, error) {
	r.orch.BeginTurn()
	stream, err := r.Model.StreamChat(r.ctx, llm.ChatRequest{
		SystemPrompt: r.systemPrompt(),
		Messages:     r.messages,
		Tools:        r.tools,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return framework.Message{}, err
	}
	defer stream.Close()

	acc := llm.NewAccumulator()
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return framework.Message{}, err
		}
		frag := acc.Ingest(delta)
		if frag.Content != "" {
			r.emit(framework.EventContent, frag.Content)
		}
		if frag.Reasoning != "" {
			r.emit(framework.EventReasoning, frag.Reasoning)
			r.recordThought(acc)
		}
	}
	return acc.Finish(), nil
}

func (r *run) recordThought(acc *llm.Accumulator) {
	content := acc.Reasoning()
	if strings.TrimSpace(content) == "" {
		return
	}
	title, _ := ExtractTitle(Sanitize(content))
	leadsTo := LeadsToResponse
	if acc.HasToolCalls() {
		leadsTo = LeadsToAction
	}
	r.orch.RecordThought(content, title, leadsTo)
}

// invoke executes one tool call and returns the tool-role message that
// carries its outcome back to the model.
func (r *run) invoke(call framework.ToolCall) framework.Message {
	params := call.ParseArguments()
	event := framework.ToolCallEvent{
		ID:         call.ID,
		Name:       call.Name,
		Parameters: params,
		Timestamp:  time.Now().UnixMilli(),
	}
	r.emit(framework.EventToolCall, event)
	action := r.orch.RecordAction(event)

	reply := framework.Message{Role: framework.RoleTool, ToolCallID: call.ID}
	var tool framework.Tool
	ok := false
	if r.Tools != nil {
		tool, ok = r.Tools.Get(call.Name)
	}
	if !ok {
		msg := fmt.Sprintf("Error: Tool '%s' not found", call.Name)
		r.log.Warn("tool not found", "tool", call.Name)
		r.toolFailed(call.ID, action.ID, msg)
		reply.Content = msg
		return reply
	}

	res := r.execute(tool, params)
	if !res.Success {
		errText := res.Error
		if errText == "" {
			errText = "Unknown error"
		}
		r.toolFailed(call.ID, action.ID, errText)
		reply.Content = "Error: " + errText
		return reply
	}
	r.emit(framework.EventToolResult, framework.ToolResultEvent{ToolCallID: call.ID, Result: res.Result})
	r.observe(action.ID, res.Result, "")
	reply.Content = encodeResult(res.Result)
	return reply
}

// execute runs a tool, converting a panic into a failed result.
func (r *run) execute(tool framework.Tool, params map[string]interface{}) (res framework.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool execution panic", "tool", tool.Name(), "panic", rec)
			res = framework.Fail("%v", rec)
		}
	}()
	start := time.Now()
	res = tool.Execute(r.ctx, params)
	r.log.Info("tool executed", "tool", tool.Name(), "success", res.Success, "duration", time.Since(start))
	return res
}

func (r *run) toolFailed(callID, actionID, errText string) {
	r.emit(framework.EventToolError, framework.ToolErrorEvent{ToolCallID: callID, Error: errText})
	r.observe(actionID, nil, errText)
}

func (r *run) observe(actionID string, result interface{}, errText string) {
	if _, err := r.orch.RecordObservation(actionID, result, errText); err != nil {
		r.log.Error("record observation", "error", err)
	}
}

func encodeResult(result interface{}) string {
	if result == nil {
		return ""
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

func (r *run) upstreamFailure(err error) Outcome {
	if r.ctx.Err() != nil {
		return r.canceled()
	}
	msg := upstreamMessage(err)
	r.log.Error("chat API error", "error", err)
	r.fail(msg)
	return Failed
}

func upstreamMessage(err error) string {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "DeepSeek") || errors.Is(err, llm.ErrCircuitOpen) {
		return msg
	}
	return "DeepSeek request error: " + msg
}

func (r *run) canceled() Outcome {
	r.log.Info("chat canceled by client")
	r.fail(canceledMessage)
	return Canceled
}

func (r *run) emit(kind framework.EventType, data interface{}) {
	if r.closed {
		return
	}
	r.sink.Emit(framework.Event{Type: kind, Data: data})
}

func (r *run) finish() {
	if r.closed {
		return
	}
	r.sink.Emit(framework.Event{Type: framework.EventDone})
	r.closed = true
	r.log.Info("chat stream completed")
}

func (r *run) fail(message string) {
	if r.closed {
		return
	}
	r.sink.Emit(framework.Event{Type: framework.EventError, Data: framework.ErrorEvent{Message: message}})
	r.closed = true
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Driver) maxIterations() int {
	if d.MaxIterations <= 0 || d.MaxIterations > HardIterationCeiling {
		return HardIterationCeiling
	}
	return d.MaxIterations
}

func (d *Driver) systemPrompt() string {
	if d.SystemPrompt != "" {
		return d.SystemPrompt
	}
	return DefaultSystemPrompt
}
