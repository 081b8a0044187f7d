package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const maxLineSize = 1 << 20

// Stream yields deltas until io.EOF, which marks the [DONE] terminator or a
// closed connection.
type Stream interface {
	Recv() (Delta, error)
	Close() error
}

type sseStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger

	closeOnce sync.Once
	stop      func() bool
	done      bool
}

func newSSEStream(ctx context.Context, body io.ReadCloser, logger *slog.Logger) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	s := &sseStream{ctx: ctx, body: body, scanner: scanner, logger: logger}
	// Closing the body unblocks a pending read when the caller goes away.
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return s
}

// Recv returns the next delta carrying data. Comment lines, blank lines,
// unparsable chunks and chunks without choices are skipped.
func (s *sseStream) Recv() (Delta, error) {
	for {
		if s.done {
			return Delta{}, io.EOF
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.ctx.Err(); err != nil {
				return Delta{}, err
			}
			if err := s.scanner.Err(); err != nil {
				return Delta{}, err
			}
			return Delta{}, io.EOF
		}
		line := s.scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return Delta{}, io.EOF
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.logger.Warn("skipping unparsable stream chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Empty() {
			continue
		}
		return delta, nil
	}
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		err = s.body.Close()
	})
	return err
}

// SliceStream replays fixed deltas. Tests and offline tools use it.
type SliceStream struct {
	Deltas []Delta
	Err    error
	pos    int
	closed bool
}

// Recv returns the next delta, then Err (or io.EOF).
func (s *SliceStream) Recv() (Delta, error) {
	if s.pos < len(s.Deltas) {
		d := s.Deltas[s.pos]
		s.pos++
		return d, nil
	}
	if s.Err != nil {
		return Delta{}, s.Err
	}
	return Delta{}, io.EOF
}

// Close marks the stream closed.
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	return s.closed
}
