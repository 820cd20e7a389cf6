package tunacode

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolClass classifies what a tool may do to the world.
type ToolClass int

const (
	// ClassReadOnly tools observe without mutating (read_file, grep, list_dir).
	ClassReadOnly ToolClass = iota
	// ClassWrite tools mutate files or state (write_file, edit).
	ClassWrite
	// ClassExecute tools run arbitrary commands (bash).
	ClassExecute
)

func (c ToolClass) String() string {
	switch c {
	case ClassReadOnly:
		return "read-only"
	case ClassWrite:
		return "write"
	case ClassExecute:
		return "execute"
	}
	return "unknown"
}

// Tool is one agent capability. Implementations live under tools/; the core
// consumes only this contract.
type Tool interface {
	// Schema describes the tool to the model.
	Schema() ToolSchema
	// Class reports the tool's read-only/write/execute classification.
	Class() ToolClass
	// PlanSafe reports whether the tool may run while plan mode is active.
	// True for read-only tools and present_plan.
	PlanSafe() bool
	// Invoke executes the tool. A failed invocation returns a *ToolError;
	// the dispatcher converts it to a tool-return, never aborting the request.
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolRegistry holds the session's named tools. It is built explicitly at
// startup; registration after the registry is handed to an agent has no
// effect on that agent's schema set.
type ToolRegistry struct {
	order []string
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is a programming error.
func (r *ToolRegistry) Register(t Tool) error {
	name := t.Schema().Name
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.order = append(r.order, name)
	r.tools[name] = t
	return nil
}

// MustRegister is Register that panics on duplicate names. For startup wiring.
func (r *ToolRegistry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the named tool, or nil.
func (r *ToolRegistry) Get(name string) Tool {
	return r.tools[name]
}

// Schemas returns all tool schemas in registration order.
func (r *ToolRegistry) Schemas() []ToolSchema {
	schemas := make([]ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// Names returns all tool names in registration order.
func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}
