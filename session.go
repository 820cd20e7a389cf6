package tunacode

import (
	"context"
	"time"
)

// ProviderSettings is the per-provider subtree of the user configuration.
// Any change here must produce an agent-cache miss.
type ProviderSettings struct {
	BaseURL   string
	APIKeyEnv string
}

// SessionConfig is the configuration subset the core consults. It is built
// by internal/config from defaults, the TOML file, and env overrides.
type SessionConfig struct {
	DefaultModel         string
	LocalMode            bool
	ContextWindowSize    int
	MaxRetries           int
	ToolStrictValidation bool
	RequestDelay         time.Duration
	GlobalRequestTimeout time.Duration
	Providers            map[string]ProviderSettings
}

// PlanApprovalFunc presents a plan to the user and returns their verdict.
// Consumed by the present_plan builtin.
type PlanApprovalFunc func(ctx context.Context, plan string) (approved bool, feedback string, err error)

// SessionState is the per-REPL-session state. It is owned by the REPL and
// borrowed by the orchestrator for the duration of one request; nothing else
// touches it while a request is in flight.
type SessionState struct {
	Messages     *MessageStore
	CurrentModel string // "provider:model"
	Config       SessionConfig

	LastCallUsage CallUsage
	TotalTokens   int
	MaxTokens     int

	PlanMode bool
	Yolo     bool

	// PlanApproval is consumed by the present_plan tool. Optional.
	PlanApproval PlanApprovalFunc

	toolIgnore map[string]bool
}

// NewSessionState creates a session bound to cfg, with an empty message log.
func NewSessionState(cfg SessionConfig) *SessionState {
	s := &SessionState{
		Messages:     NewMessageStore(),
		CurrentModel: cfg.DefaultModel,
		Config:       cfg,
		MaxTokens:    cfg.ContextWindowSize,
		toolIgnore:   make(map[string]bool),
	}
	return s
}

// ResetForNewRequest clears the request-scoped session fields. Called once
// at the top of ProcessRequest, before the prompt is appended.
func (s *SessionState) ResetForNewRequest() {
	s.LastCallUsage = CallUsage{}
}

// SetModel switches the current model. The caller is responsible for
// invalidating the agent cache for the previous model.
func (s *SessionState) SetModel(model string) {
	s.CurrentModel = model
}

// RecordUsage stores the usage of the latest model call and folds its token
// counts into the running total.
func (s *SessionState) RecordUsage(u CallUsage) {
	s.LastCallUsage = u
	s.TotalTokens += u.PromptTokens + u.CompletionTokens
}

// IgnoresTool reports whether the tool is on the session's auto-approve list.
func (s *SessionState) IgnoresTool(name string) bool {
	return s.toolIgnore[name]
}

// AddToolIgnore puts a tool on the auto-approve list. Only the authorization
// callback's task mutates this set.
func (s *SessionState) AddToolIgnore(name string) {
	s.toolIgnore[name] = true
}

// SetPlanMode toggles the read-only planning restriction.
func (s *SessionState) SetPlanMode(on bool) {
	s.PlanMode = on
}

// SetYolo toggles auto-approval of every tool invocation.
func (s *SessionState) SetYolo(on bool) {
	s.Yolo = on
}
