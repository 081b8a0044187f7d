package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lexcodex/reactchat/framework"
)

// InstrumentedModel wraps a ChatModel and logs each request and the shape of
// the stream it produced.
type InstrumentedModel struct {
	Inner  ChatModel
	Logger *slog.Logger
	// Debug adds a clipped preview of the latest user message.
	Debug bool
}

func NewInstrumentedModel(inner ChatModel, logger *slog.Logger, debug bool) *InstrumentedModel {
	return &InstrumentedModel{Inner: inner, Logger: logger, Debug: debug}
}

func (m *InstrumentedModel) StreamChat(ctx context.Context, req ChatRequest) (Stream, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"prompt_chars", promptChars(req),
		"max_tokens", req.MaxTokens,
	}
	if m.Debug {
		attrs = append(attrs, "preview", clip(lastUserContent(req.Messages), 512))
	}
	logger.Debug("chat request", attrs...)

	start := time.Now()
	stream, err := m.Inner.StreamChat(ctx, req)
	if err != nil {
		logger.Warn("chat request failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	return &instrumentedStream{inner: stream, logger: logger, start: start}, nil
}

type instrumentedStream struct {
	inner  Stream
	logger *slog.Logger
	start  time.Time

	deltas         int
	contentChars   int
	reasoningChars int
	toolFragments  int
	firstDelta     time.Duration
	once           sync.Once
}

func (s *instrumentedStream) Recv() (Delta, error) {
	d, err := s.inner.Recv()
	if err != nil {
		s.report(err)
		return d, err
	}
	if s.deltas == 0 {
		s.firstDelta = time.Since(s.start)
	}
	s.deltas++
	s.contentChars += len(d.Content)
	s.reasoningChars += len(d.ReasoningContent)
	s.toolFragments += len(d.ToolCalls)
	return d, nil
}

func (s *instrumentedStream) Close() error {
	s.report(nil)
	return s.inner.Close()
}

func (s *instrumentedStream) report(err error) {
	s.once.Do(func() {
		attrs := []any{
			"deltas", s.deltas,
			"content_chars", s.contentChars,
			"reasoning_chars", s.reasoningChars,
			"tool_fragments", s.toolFragments,
			"first_delta", s.firstDelta,
			"elapsed", time.Since(s.start),
		}
		if err != nil && !errors.Is(err, io.EOF) {
			s.logger.Warn("chat stream aborted", append(attrs, "error", err)...)
			return
		}
		s.logger.Debug("chat stream finished", attrs...)
	})
}

func promptChars(req ChatRequest) int {
	n := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		n += len(msg.Content)
	}
	return n
}

func lastUserContent(messages []framework.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == framework.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
