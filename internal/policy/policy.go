// Package policy provides tool authorization for agent runs.
// It decides, per proposed tool call, whether the call may proceed, needs
// user confirmation, or is denied outright. Decisions are deterministic and
// side-effect-free so they stay auditable.
package policy

import (
	"encoding/json"
	"strings"
)

// Decision is the outcome of a policy evaluation. There are no partial or
// compound decisions.
type Decision string

const (
	// DecisionAllow permits the call without further interaction.
	DecisionAllow Decision = "allow"

	// DecisionConfirm requires an explicit user approval step.
	DecisionConfirm Decision = "confirm"

	// DecisionDeny rejects the call.
	DecisionDeny Decision = "deny"

	// DecisionRateLimit rejects the call for quota reasons.
	DecisionRateLimit Decision = "rate_limit"
)

// Context carries everything a single decision may consider. Immutable per
// decision.
type Context struct {
	TenantID string
	AgentID  string

	// Tool is the proposed tool name.
	Tool string

	// Args are the proposed call arguments.
	Args json.RawMessage

	// Profile names the active policy profile. Empty selects the default
	// classification.
	Profile string
}

// Classification maps tool names to effect classes. The engine receives
// these lists at construction; there is no module-level default state.
type Classification struct {
	// Read tools are allowed without interaction.
	Read []string `json:"read" yaml:"read"`

	// Write tools require confirmation.
	Write []string `json:"write" yaml:"write"`

	// Destructive tools are denied.
	Destructive []string `json:"destructive" yaml:"destructive"`
}

// NormalizeTool normalizes a tool name to its canonical form.
func NormalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type classificationSets struct {
	read        map[string]bool
	write       map[string]bool
	destructive map[string]bool
}

func newSets(c Classification) classificationSets {
	sets := classificationSets{
		read:        make(map[string]bool, len(c.Read)),
		write:       make(map[string]bool, len(c.Write)),
		destructive: make(map[string]bool, len(c.Destructive)),
	}
	for _, name := range c.Read {
		sets.read[NormalizeTool(name)] = true
	}
	for _, name := range c.Write {
		sets.write[NormalizeTool(name)] = true
	}
	for _, name := range c.Destructive {
		sets.destructive[NormalizeTool(name)] = true
	}
	return sets
}

// Engine evaluates tool calls against injected classification lists.
//
// The engine holds no mutable state after construction, so concurrent
// decisions for different runs need no synchronization.
type Engine struct {
	defaults classificationSets
	profiles map[string]classificationSets
}

// New creates an engine with the given default classification.
func New(defaults Classification) *Engine {
	return &Engine{
		defaults: newSets(defaults),
		profiles: make(map[string]classificationSets),
	}
}

// WithProfile registers a named profile with its own classification lists.
// Returns the engine for chaining during construction.
func (e *Engine) WithProfile(name string, c Classification) *Engine {
	e.profiles[name] = newSets(c)
	return e
}

// Decide returns the policy decision for the proposed call, first match wins:
//
//  1. Read-classified tools are allowed.
//  2. Write-classified tools require confirmation.
//  3. Destructive tools are denied.
//  4. Unknown tools require confirmation. Failing toward caution here is a
//     deliberate safety default, never an error.
func (e *Engine) Decide(ctx Context) Decision {
	sets := e.defaults
	if ctx.Profile != "" {
		if p, ok := e.profiles[ctx.Profile]; ok {
			sets = p
		}
	}

	name := NormalizeTool(ctx.Tool)
	switch {
	case sets.read[name]:
		return DecisionAllow
	case sets.write[name]:
		return DecisionConfirm
	case sets.destructive[name]:
		return DecisionDeny
	default:
		return DecisionConfirm
	}
}

// CheckBudget reports whether the run still has budget for another call.
// It composes with Decide: a call may be allowed by policy yet still refused
// for budget exhaustion, and callers must check both.
func (e *Engine) CheckBudget(ctx Context, budget *BudgetState) bool {
	if budget == nil {
		return true
	}
	return !budget.Exhausted()
}
