// Package client talks to a running chat server and renders its event
// stream for a terminal.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lexcodex/reactchat/framework"
)

// ErrStreamTruncated is returned when the stream ends without done or error.
var ErrStreamTruncated = errors.New("chat stream ended without a terminal event")

// Frame is one decoded server-sent event.
type Frame struct {
	Type framework.EventType `json:"type"`
	Data json.RawMessage     `json:"data"`
}

// Event converts the frame for use with an EventSink.
func (f Frame) Event() framework.Event {
	var data interface{}
	if len(f.Data) > 0 {
		_ = json.Unmarshal(f.Data, &data)
	}
	return framework.Event{Type: f.Type, Data: data}
}

// Client posts chat requests to the server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// ChatPayload mirrors the server's chat request body.
type ChatPayload struct {
	Messages  []framework.Message `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

// Chat streams one conversation, calling fn for every frame in order. It
// returns after the terminal frame, when fn fails, or when ctx ends.
func (c *Client) Chat(ctx context.Context, payload ChatPayload, fn func(Frame) error) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/api/v1/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat request failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return ReadFrames(resp.Body, fn)
}

// ReadFrames parses `data:` lines from r until a terminal frame.
func ReadFrames(r io.Reader, fn func(Frame) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var frame Frame
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &frame); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		if err := fn(frame); err != nil {
			return err
		}
		if frame.Type.Terminal() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamTruncated
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
