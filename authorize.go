package tunacode

import (
	"context"
	"encoding/json"
)

// AuthDecision is the host UI's answer to an interactive authorization
// prompt.
type AuthDecision struct {
	Approved   bool
	SkipFuture bool
	Abort      bool
}

// AuthorizeFunc asks the host UI whether a tool invocation may proceed.
// It blocks until the user answers or ctx is cancelled.
type AuthorizeFunc func(ctx context.Context, tool string, args json.RawMessage) (AuthDecision, error)

// Authorizer gates every tool invocation. Rules run in order: plan-mode
// block, yolo bypass, ignore-list, interactive prompt. Decisions for a
// parallel read-only batch are collected sequentially before any tool
// starts, so concurrent authorizers never observe a stale ignore list.
type Authorizer struct {
	session *SessionState
	prompt  AuthorizeFunc
}

// NewAuthorizer creates an authorizer bound to the session. prompt may be
// nil, in which case tools not covered by yolo or the ignore list are denied.
func NewAuthorizer(session *SessionState, prompt AuthorizeFunc) *Authorizer {
	return &Authorizer{session: session, prompt: prompt}
}

// Authorize applies the rule pipeline to one tool call. A nil return means
// approved. Denials surface as *AuthorizationDenied; a user abort during the
// interactive prompt surfaces as ErrUserAbort.
func (a *Authorizer) Authorize(ctx context.Context, tool Tool, args json.RawMessage) error {
	name := tool.Schema().Name

	if a.session.PlanMode && !tool.PlanSafe() {
		return &AuthorizationDenied{
			Tool:   name,
			Reason: "Blocked by plan mode: only read-only tools and present_plan may run until the plan is approved",
		}
	}
	if a.session.Yolo {
		return nil
	}
	if a.session.IgnoresTool(name) {
		return nil
	}
	if a.prompt == nil {
		return &AuthorizationDenied{Tool: name, Reason: "no authorization callback configured"}
	}

	decision, err := a.prompt(ctx, name, args)
	if err != nil {
		return err
	}
	if decision.Abort {
		return ErrUserAbort
	}
	if decision.SkipFuture {
		a.session.AddToolIgnore(name)
	}
	if !decision.Approved {
		return &AuthorizationDenied{Tool: name, Reason: "denied by user"}
	}
	return nil
}
