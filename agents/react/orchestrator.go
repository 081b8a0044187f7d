package react

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lexcodex/reactchat/framework"
)

// ErrUnknownAction is returned when an observation names no recorded action.
var ErrUnknownAction = errors.New("observation references unknown action")

// Phase is the orchestrator's position in the think/act/observe cycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseThinking  Phase = "thinking"
	PhaseActing    Phase = "acting"
	PhaseObserving Phase = "observing"
	PhaseComplete  Phase = "complete"
)

// ImplicitThoughtTitle titles the placeholder recorded for a tool call that
// arrived without reasoning.
const ImplicitThoughtTitle = "Implicit reasoning"

// State is the externally visible progress of one conversation.
type State struct {
	Phase         Phase `json:"current_phase"`
	Iteration     int   `json:"current_iteration"`
	MaxIterations int   `json:"max_iterations"`
}

// Orchestrator keeps the ordered Thought/Action/Observation log of a single
// request. It is owned by one Driver run and is not safe for concurrent use.
type Orchestrator struct {
	steps []Step
	// open indexes the Thought that is still receiving reasoning, or -1.
	open      int
	actions   map[string]bool
	phase     Phase
	iteration int
	max       int
	onStep    func(Step)
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator bounded to maxIterations
// observations. onStep receives a copy of every new or updated step.
func NewOrchestrator(maxIterations int, onStep func(Step)) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = framework.DefaultMaxIterations
	}
	return &Orchestrator{
		open:    -1,
		actions: map[string]bool{},
		phase:   PhaseIdle,
		max:     maxIterations,
		onStep:  onStep,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger replaces the debug logger.
func (o *Orchestrator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// BeginTurn closes the open Thought so the next streaming turn starts a
// fresh one.
func (o *Orchestrator) BeginTurn() {
	o.open = -1
}

// RecordThought merges content into the open Thought or appends a new one.
// title only replaces the displayed title when non-empty. Once the
// orchestrator is complete it records nothing and returns false.
func (o *Orchestrator) RecordThought(content, title string, leadsTo LeadsTo) (*Thought, bool) {
	if o.phase == PhaseComplete {
		return nil, false
	}
	o.phase = PhaseThinking
	if o.open >= 0 {
		thought := o.steps[o.open].(*Thought)
		thought.Content = content
		if title != "" {
			thought.Title = title
		}
		if leadsTo != LeadsToUnknown {
			thought.LeadsTo = leadsTo
		}
		o.emit(thought)
		return cloneStep(thought).(*Thought), true
	}
	thought := &Thought{
		ID:        o.newID(KindThought),
		Content:   content,
		Title:     title,
		Timestamp: o.now(),
		LeadsTo:   leadsTo,
	}
	o.steps = append(o.steps, thought)
	o.open = len(o.steps) - 1
	o.emit(thought)
	return cloneStep(thought).(*Thought), true
}

// RecordAction appends an Action. When no Thought is open a placeholder is
// recorded first so every Action traces back to reasoning. The open Thought
// is closed afterwards.
func (o *Orchestrator) RecordAction(call framework.ToolCallEvent) *Action {
	if o.open < 0 {
		thought := &Thought{
			ID:        o.newID(KindThought),
			Content:   fmt.Sprintf("Executing tool call without explicit reasoning: %s", call.Name),
			Title:     ImplicitThoughtTitle,
			Timestamp: o.now(),
			LeadsTo:   LeadsToAction,
		}
		o.steps = append(o.steps, thought)
		o.emit(thought)
	} else {
		thought := o.steps[o.open].(*Thought)
		if thought.LeadsTo != LeadsToAction {
			thought.LeadsTo = LeadsToAction
			o.emit(thought)
		}
	}
	o.open = -1
	o.transition(PhaseActing)
	action := &Action{
		ID:        o.newID(KindAction),
		Timestamp: o.now(),
		ToolCall:  call,
	}
	o.steps = append(o.steps, action)
	o.actions[action.ID] = true
	o.emit(action)
	o.logger.Debug("recorded action", "tool", call.Name, "action_id", action.ID)
	return cloneStep(action).(*Action)
}

// RecordObservation closes one cycle. errText wins over result when both are
// given. The iteration counter increases by exactly one.
func (o *Orchestrator) RecordObservation(actionID string, result interface{}, errText string) (*Observation, error) {
	if !o.actions[actionID] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}
	obs := &Observation{
		ID:        o.newID(KindObservation),
		Timestamp: o.now(),
		ActionID:  actionID,
	}
	if errText != "" {
		obs.Error = errText
	} else {
		obs.Result = result
	}
	o.steps = append(o.steps, obs)
	o.open = -1
	o.iteration++
	if o.iteration >= o.max {
		o.phase = PhaseComplete
		o.logger.Warn("reached max iterations", "max_iterations", o.max)
	} else {
		o.transition(PhaseObserving)
	}
	o.emit(obs)
	return cloneStep(obs).(*Observation), nil
}

// Steps returns a snapshot of the log.
func (o *Orchestrator) Steps() []Step {
	out := make([]Step, len(o.steps))
	for i, s := range o.steps {
		out[i] = cloneStep(s)
	}
	return out
}

// State reports phase and counters.
func (o *Orchestrator) State() State {
	return State{Phase: o.phase, Iteration: o.iteration, MaxIterations: o.max}
}

// Complete reports whether the iteration bound was reached.
func (o *Orchestrator) Complete() bool {
	return o.phase == PhaseComplete
}

func (o *Orchestrator) transition(next Phase) {
	if o.phase != PhaseComplete {
		o.phase = next
	}
}

func (o *Orchestrator) emit(step Step) {
	if o.onStep != nil {
		o.onStep(cloneStep(step))
	}
}

func (o *Orchestrator) newID(kind StepKind) string {
	return string(kind) + "-" + uuid.NewString()
}
