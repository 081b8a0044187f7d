package framework

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EventType categorizes chat stream events.
type EventType string

const (
	EventContent    EventType = "content"
	EventReasoning  EventType = "reasoning"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventToolError  EventType = "tool_error"
	EventReActStep  EventType = "react_step"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Terminal reports whether the event ends a chat stream.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Event is one typed record of the outbound chat stream.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// ToolCallEvent is the payload of a tool_call event.
type ToolCallEvent struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
	Timestamp  int64                  `json:"timestamp"`
}

// ToolResultEvent is the payload of a tool_result event.
type ToolResultEvent struct {
	ToolCallID string      `json:"toolCallId"`
	Result     interface{} `json:"result"`
}

// ToolErrorEvent is the payload of a tool_error event.
type ToolErrorEvent struct {
	ToolCallID string `json:"toolCallId"`
	Error      string `json:"error"`
}

// ErrorEvent is the payload of a terminal error event.
type ErrorEvent struct {
	Message string `json:"message"`
}

// EventSink receives stream events in emission order. Transports (SSE,
// websocket) and diagnostics implement it.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f.
func (f EventSinkFunc) Emit(event Event) { f(event) }

// MultiplexSink broadcasts events to multiple sinks.
type MultiplexSink struct {
	Sinks []EventSink
}

// Emit forwards the event to all registered sinks.
func (m MultiplexSink) Emit(event Event) {
	for _, s := range m.Sinks {
		if s != nil {
			s.Emit(event)
		}
	}
}

// RecordingSink keeps every event in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event.
func (r *RecordingSink) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *RecordingSink) Types() []EventType {
	events := r.Events()
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// JSONFileSink appends events as newline-delimited JSON to a transcript file
// so external tools can tail the stream.
type JSONFileSink struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
	// RequestID tags every line written by this sink.
	RequestID string
}

type transcriptLine struct {
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
}

// NewJSONFileSink opens (or creates) the transcript file.
func NewJSONFileSink(path string) (*JSONFileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONFileSink{file: f, enc: json.NewEncoder(f)}, nil
}

// WithRequest returns a sink sharing the file but tagging lines with id.
func (j *JSONFileSink) WithRequest(id string) EventSink {
	return EventSinkFunc(func(event Event) {
		j.write(id, event)
	})
}

// Emit writes the JSON record.
func (j *JSONFileSink) Emit(event Event) {
	j.write(j.RequestID, event)
}

func (j *JSONFileSink) write(id string, event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc != nil {
		_ = j.enc.Encode(transcriptLine{
			RequestID: id,
			Timestamp: time.Now().UTC(),
			Type:      event.Type,
			Data:      event.Data,
		})
	}
}

// Close releases the file handle.
func (j *JSONFileSink) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		j.enc = nil
		return err
	}
	return nil
}

// LoggerSink logs events at debug level. Content and reasoning fragments are
// summarized by length to keep the log readable.
type LoggerSink struct {
	Logger *slog.Logger
}

// Emit logs the event.
func (t LoggerSink) Emit(event Event) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch data := event.Data.(type) {
	case string:
		logger.Debug("stream event", "type", event.Type, "bytes", len(data))
	case ErrorEvent:
		logger.Debug("stream event", "type", event.Type, "message", data.Message)
	default:
		logger.Debug("stream event", "type", event.Type)
	}
}
