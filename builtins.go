package tunacode

import (
	"context"
	"encoding/json"
	"fmt"
)

// Built-in tools registered by the core itself: the react scratchpad used by
// forced-react interventions, and present_plan for the plan-mode hand-off.

// RegisterBuiltins adds the built-in tools to the registry.
func RegisterBuiltins(r *ToolRegistry, session *SessionState) {
	r.MustRegister(&reactTool{})
	r.MustRegister(&presentPlanTool{session: session})
}

// --- react ---

// reactTool is an internal scratchpad. Writing to it produces no side
// effects; its value is forcing the model (or the intervention engine) to
// articulate the current state and next step.
type reactTool struct{}

func (t *reactTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        "react",
		Description: "Record your current reasoning: what you have learned so far and the concrete next step you will take.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thoughts": {"type": "string", "description": "What you know so far"},
				"next_step": {"type": "string", "description": "The concrete next action"}
			},
			"required": ["thoughts", "next_step"]
		}`),
	}
}

func (t *reactTool) Class() ToolClass { return ClassReadOnly }
func (t *reactTool) PlanSafe() bool   { return true }

func (t *reactTool) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Thoughts string `json:"thoughts"`
		NextStep string `json:"next_step"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", &ToolError{Tool: "react", Message: "invalid args: " + err.Error()}
	}
	if params.NextStep == "" {
		return "Noted. Decide on a concrete next step before continuing.", nil
	}
	return fmt.Sprintf("Noted. Next step: %s", params.NextStep), nil
}

// --- present_plan ---

// presentPlanTool hands a plan to the user for approval via the session's
// plan approval callback. It is the one non-read-only tool allowed in plan
// mode; its execute classification keeps it out of parallel batches.
type presentPlanTool struct {
	session *SessionState
}

func (t *presentPlanTool) Schema() ToolSchema {
	return ToolSchema{
		Name:        "present_plan",
		Description: "Present your implementation plan to the user for approval. Call this once the plan is complete; do not start writing code before approval.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"plan": {"type": "string", "description": "The full plan in markdown"}
			},
			"required": ["plan"]
		}`),
	}
}

func (t *presentPlanTool) Class() ToolClass { return ClassExecute }
func (t *presentPlanTool) PlanSafe() bool   { return true }

func (t *presentPlanTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", &ToolError{Tool: "present_plan", Message: "invalid args: " + err.Error()}
	}
	if params.Plan == "" {
		return "", &ToolError{Tool: "present_plan", Message: "plan is required"}
	}
	if t.session.PlanApproval == nil {
		return "", &ToolError{Tool: "present_plan", Message: "no plan approval callback configured"}
	}

	approved, feedback, err := t.session.PlanApproval(ctx, params.Plan)
	if err != nil {
		return "", err
	}
	if !approved {
		if feedback == "" {
			feedback = "no feedback given"
		}
		return "Plan rejected. User feedback: " + feedback, nil
	}
	// Approval ends plan mode; the next iterations may use write tools.
	t.session.SetPlanMode(false)
	return "Plan approved. Proceed with the implementation.", nil
}
