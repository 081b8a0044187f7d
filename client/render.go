package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/lexcodex/reactchat/framework"
)

// ColorEnabled reports whether f is a terminal that should get colour.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type palette struct {
	reasoning func(...string) string
	heading   func(...string) string
	tool      func(...string) string
	success   func(...string) string
	failure   func(...string) string
}

func plain(s ...string) string { return strings.Join(s, " ") }

func newPalette(w io.Writer, color bool) palette {
	if !color {
		return palette{plain, plain, plain, plain, plain}
	}
	r := lipgloss.NewRenderer(w)
	return palette{
		reasoning: r.NewStyle().Foreground(lipgloss.Color("241")).Italic(true).Render,
		heading:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render,
		tool:      r.NewStyle().Foreground(lipgloss.Color("86")).Render,
		success:   r.NewStyle().Foreground(lipgloss.Color("42")).Render,
		failure:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Render,
	}
}

// Renderer prints chat events for a human. It accepts typed in-process
// events as well as events decoded from the wire.
type Renderer struct {
	mu            sync.Mutex
	out           io.Writer
	style         palette
	ShowReasoning bool
	ShowSteps     bool
	midLine       bool
}

// NewRenderer writes to out, colouring when color is set.
func NewRenderer(out io.Writer, color bool) *Renderer {
	return &Renderer{out: out, style: newPalette(out, color), ShowReasoning: true}
}

// Emit implements framework.EventSink.
func (r *Renderer) Emit(event framework.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch event.Type {
	case framework.EventContent:
		r.write(fmt.Sprint(event.Data))
	case framework.EventReasoning:
		if r.ShowReasoning {
			r.write(r.style.reasoning(fmt.Sprint(event.Data)))
		}
	case framework.EventReActStep:
		if r.ShowSteps {
			r.renderStep(event.Data)
		}
	case framework.EventToolCall:
		var call framework.ToolCallEvent
		if decode(event.Data, &call) == nil {
			params, _ := json.Marshal(call.Parameters)
			r.line(r.style.tool(fmt.Sprintf("→ %s %s", call.Name, params)))
		}
	case framework.EventToolResult:
		var res framework.ToolResultEvent
		if decode(event.Data, &res) == nil {
			r.line(r.style.success("✓ " + summarize(res.Result)))
		}
	case framework.EventToolError:
		var res framework.ToolErrorEvent
		if decode(event.Data, &res) == nil {
			r.line(r.style.failure("✗ " + res.Error))
		}
	case framework.EventError:
		var e framework.ErrorEvent
		_ = decode(event.Data, &e)
		r.line(r.style.failure("error: " + e.Message))
	case framework.EventDone:
		r.endLine()
	}
}

func (r *Renderer) renderStep(data interface{}) {
	var step struct {
		Type    string `json:"type"`
		Title   string `json:"title"`
		Content string `json:"content"`
		LeadsTo string `json:"leads_to"`
	}
	if decode(data, &step) != nil {
		return
	}
	label := step.Type
	if step.Title != "" {
		label += ": " + step.Title
	}
	r.line(r.style.heading("[" + label + "]"))
}

func (r *Renderer) write(s string) {
	if s == "" {
		return
	}
	fmt.Fprint(r.out, s)
	r.midLine = !strings.HasSuffix(s, "\n")
}

func (r *Renderer) line(s string) {
	r.endLine()
	fmt.Fprintln(r.out, s)
}

func (r *Renderer) endLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

// decode re-shapes typed or generic event data into v.
func decode(data interface{}, v interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func summarize(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	s := string(raw)
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
