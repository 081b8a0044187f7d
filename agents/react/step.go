package react

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexcodex/reactchat/framework"
)

// StepKind discriminates the three step variants.
type StepKind string

const (
	KindThought     StepKind = "thought"
	KindAction      StepKind = "action"
	KindObservation StepKind = "observation"
)

// LeadsTo records what a Thought resolved into.
type LeadsTo string

const (
	LeadsToUnknown  LeadsTo = ""
	LeadsToResponse LeadsTo = "response"
	LeadsToAction   LeadsTo = "action"
)

// Step is one entry of the audit log. The interface is sealed: *Thought,
// *Action and *Observation are the only implementations, and every consumer
// switches over all three.
type Step interface {
	Kind() StepKind
	StepID() string
	sealed()
}

// Thought is model reasoning, possibly still growing while streamed.
type Thought struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	LeadsTo   LeadsTo   `json:"leads_to,omitempty"`
}

// Action is one requested tool invocation.
type Action struct {
	ID        string                  `json:"id"`
	Timestamp time.Time               `json:"timestamp"`
	ToolCall  framework.ToolCallEvent `json:"tool_call"`
}

// Observation is the outcome of an Action. At most one of Result and Error
// is set.
type Observation struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	ActionID  string      `json:"action_id"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func (*Thought) Kind() StepKind     { return KindThought }
func (*Action) Kind() StepKind      { return KindAction }
func (*Observation) Kind() StepKind { return KindObservation }

func (t *Thought) StepID() string     { return t.ID }
func (a *Action) StepID() string      { return a.ID }
func (o *Observation) StepID() string { return o.ID }

func (*Thought) sealed()     {}
func (*Action) sealed()      {}
func (*Observation) sealed() {}

// MarshalJSON adds the "type" discriminator.
func (t *Thought) MarshalJSON() ([]byte, error) {
	type plain Thought
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		*plain
	}{KindThought, (*plain)(t)})
}

// MarshalJSON adds the "type" discriminator.
func (a *Action) MarshalJSON() ([]byte, error) {
	type plain Action
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		*plain
	}{KindAction, (*plain)(a)})
}

// MarshalJSON adds the "type" discriminator.
func (o *Observation) MarshalJSON() ([]byte, error) {
	type plain Observation
	return json.Marshal(struct {
		Type StepKind `json:"type"`
		*plain
	}{KindObservation, (*plain)(o)})
}

// UnmarshalStep decodes a step by its "type" field.
func UnmarshalStep(data []byte) (Step, error) {
	var head struct {
		Type StepKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case KindThought:
		var t Thought
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return &t, nil
	case KindAction:
		var a Action
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return &a, nil
	case KindObservation:
		var o Observation
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return &o, nil
	default:
		return nil, fmt.Errorf("unknown step type %q", head.Type)
	}
}

// cloneStep returns a copy that callers may keep while the log mutates.
func cloneStep(step Step) Step {
	switch s := step.(type) {
	case *Thought:
		c := *s
		return &c
	case *Action:
		c := *s
		params := make(map[string]interface{}, len(s.ToolCall.Parameters))
		for k, v := range s.ToolCall.Parameters {
			params[k] = v
		}
		c.ToolCall.Parameters = params
		return &c
	case *Observation:
		c := *s
		return &c
	default:
		panic(fmt.Sprintf("react: unknown step %T", step))
	}
}
