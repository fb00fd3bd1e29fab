package plugin

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Defaults applied to declared metadata when a plugin leaves a field unset
const (
	DefaultPriority   = 50
	DefaultEvent      = "message"
	DefaultPermission = "all"
)

// Reserved method names every plugin answers to
const (
	MethodAccept    = "accept"
	MethodUnmatched = "handle_unmatched"
)

// AcceptResult is the tri-state outcome of a plugin's accept hook
type AcceptResult string

const (
	// AcceptContinue lets the orchestrator keep routing the event
	AcceptContinue AcceptResult = "continue"
	// AcceptExclusive claims the event; lower-priority plugins are skipped
	AcceptExclusive AcceptResult = "exclusive"
	// AcceptHandled marks the event as fully processed
	AcceptHandled AcceptResult = "handled"
)

// ParseAcceptResult maps a declared accept value onto the tri-state result.
// Booleans are accepted for plugins written against the old two-state contract.
func ParseAcceptResult(v any) (AcceptResult, error) {
	switch val := v.(type) {
	case nil:
		return AcceptContinue, nil
	case bool:
		if val {
			return AcceptHandled, nil
		}
		return AcceptContinue, nil
	case string:
		switch AcceptResult(strings.ToLower(val)) {
		case "", AcceptContinue:
			return AcceptContinue, nil
		case AcceptExclusive:
			return AcceptExclusive, nil
		case AcceptHandled:
			return AcceptHandled, nil
		}
	case AcceptResult:
		return ParseAcceptResult(string(val))
	}
	return "", fmt.Errorf("invalid accept result %v", v)
}

// Rule is a declarative trigger the orchestrator matches against incoming events.
// Pattern is opaque here and handed over as declared.
type Rule struct {
	Pattern    *string `json:"reg"`
	Method     string  `json:"fnc" validate:"required"`
	Event      string  `json:"event"`
	Log        bool    `json:"log"`
	Permission string  `json:"permission"`
}

// UnmarshalJSON fills the defaults for fields the declaration omits
func (r *Rule) UnmarshalJSON(data []byte) error {
	type rawRule Rule
	raw := rawRule{
		Event:      DefaultEvent,
		Log:        true,
		Permission: DefaultPermission,
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Rule(raw)
	return nil
}

// ScheduledTask is a declarative timer. The orchestrator schedules it, not the bridge.
type ScheduledTask struct {
	Cron   string `json:"cron" validate:"required,cron"`
	Method string `json:"fnc" validate:"required"`
	Name   string `json:"name,omitempty"`
	Log    bool   `json:"log"`
}

// UnmarshalJSON fills the defaults for fields the declaration omits
func (t *ScheduledTask) UnmarshalJSON(data []byte) error {
	type rawTask ScheduledTask
	raw := rawTask{Log: true}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ScheduledTask(raw)
	return nil
}

// Descriptor is the metadata snapshot taken when a plugin is registered.
// It is never updated afterwards; a rescan produces a new one.
type Descriptor struct {
	Key            string          `json:"key" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	Priority       int             `json:"priority"`
	BypassThrottle bool            `json:"bypassThrottle"`
	Rules          []Rule          `json:"rule" validate:"dive"`
	Tasks          []ScheduledTask `json:"task" validate:"dive"`
}

// Normalize replaces nil slices with empty ones so the wire form always carries arrays
func (d Descriptor) Normalize() Descriptor {
	if d.Rules == nil {
		d.Rules = []Rule{}
	}
	if d.Tasks == nil {
		d.Tasks = []ScheduledTask{}
	}
	return d
}

// Event is the raw event payload the orchestrator forwards with a call
type Event map[string]any

// Call is the per-invocation context handed to a plugin method.
// Event is Args[0] when that argument is a JSON object; Args are left exactly as sent.
type Call struct {
	Key    string
	Method string
	Event  Event
	Args   []any
}

// NewCall builds the call context for a method invocation
func NewCall(key, method string, args []any) Call {
	call := Call{Key: key, Method: method, Args: args}
	if len(args) > 0 {
		switch ev := args[0].(type) {
		case map[string]any:
			call.Event = Event(ev)
		case Event:
			call.Event = ev
		}
	}
	return call
}

// LoadResult contains the results of one discovery pass
type LoadResult struct {
	Loaded []string         // Registered plugin keys, in registration order
	Failed []string         // Files that failed to load
	Errors map[string]error // Errors by file path
}

func newLoadResult() *LoadResult {
	return &LoadResult{
		Loaded: []string{},
		Failed: []string{},
		Errors: make(map[string]error),
	}
}
