package tunacode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// wire builds a session + cache + orchestrator around a scripted provider.
func wire(t *testing.T, provider Provider, registry *ToolRegistry, opts ...OrchestratorOption) (*SessionState, *AgentCache, *RequestOrchestrator) {
	t.Helper()
	session := newTestSession()
	session.SetYolo(true)
	if registry == nil {
		registry = NewToolRegistry()
	}
	cache := NewAgentCache(providerBuilder(provider), nil)
	orch := NewRequestOrchestrator(session, cache, registry, nil, opts...)
	return session, cache, orch
}

func TestProcessRequestHappyCompletion(t *testing.T) {
	listed := false
	registry := NewToolRegistry()
	registry.MustRegister(&fnTool{name: "list_dir", class: ClassReadOnly, planSafe: true,
		fn: func(context.Context, json.RawMessage) (string, error) {
			listed = true
			return "a.go\nb.go\nc.go", nil
		}})

	provider := &mockProvider{responses: []ChatResponse{
		{Parts: []Part{ToolCallPart("1", "list_dir", json.RawMessage(`{"path":"."}`))}},
		textResp("TUNACODE DONE: listed 3 files"),
	}}
	session, _, orch := wire(t, provider, registry)

	outcome, err := orch.ProcessRequest(context.Background(), "List files then say done.")
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Completed {
		t.Error("not completed")
	}
	if outcome.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", outcome.Iterations)
	}
	if outcome.FinalText != "TUNACODE DONE: listed 3 files" {
		t.Errorf("final text = %q", outcome.FinalText)
	}
	if !listed {
		t.Error("tool never ran")
	}
	if orphans := session.Messages.OrphanedToolCalls(); len(orphans) != 0 {
		t.Errorf("orphans = %+v", orphans)
	}
	if outcome.Usage.PromptTokens == 0 {
		t.Error("usage not accumulated")
	}
}

func TestProcessRequestIterationLimit(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		textResp("working"), textResp("still working"), textResp("more work"),
	}}
	session, _, orch := wire(t, provider, nil, WithMaxIterations(3))

	outcome, err := orch.ProcessRequest(context.Background(), "never finishes")
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.AwaitingUserGuidance {
		t.Error("awaiting_user_guidance not set")
	}
	if outcome.Completed {
		t.Error("completed should be false")
	}
	if provider.callCount() != 3 {
		t.Errorf("model calls = %d, want 3 (counter must not pass the limit)", provider.callCount())
	}
	if msg := lastUserPrompt(session.Messages); !strings.Contains(msg, "Reached iteration limit") {
		t.Errorf("limit prompt = %q", msg)
	}
}

func TestProcessRequestPlanModeBlocksBash(t *testing.T) {
	ran := false
	registry := NewToolRegistry()
	registry.MustRegister(&fnTool{name: "bash", class: ClassExecute,
		fn: func(context.Context, json.RawMessage) (string, error) {
			ran = true
			return "removed", nil
		}})

	provider := &mockProvider{responses: []ChatResponse{
		{Parts: []Part{ToolCallPart("1", "bash", json.RawMessage(`{"cmd":"rm tmp"}`))}},
		textResp("TUNACODE DONE: could not proceed"),
	}}
	session := newTestSession()
	session.SetPlanMode(true)
	session.SetYolo(true) // yolo must not bypass the plan-mode rule
	cache := NewAgentCache(providerBuilder(provider), nil)
	orch := NewRequestOrchestrator(session, cache, registry, nil)

	if _, err := orch.ProcessRequest(context.Background(), "delete tmp"); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("bash ran in plan mode")
	}
	returns := collectReturns(session.Messages)
	if len(returns) == 0 || !strings.HasPrefix(returns[0].Content, "Blocked by plan mode") {
		t.Errorf("returns = %+v, want plan-mode block content", returns)
	}
}

func TestProcessRequestUserAbortPatchesOrphans(t *testing.T) {
	registry := NewToolRegistry()
	registry.MustRegister(readOnlyTool("grep"))

	provider := &mockProvider{responses: []ChatResponse{
		{Parts: []Part{tcall("1", "grep"), tcall("2", "grep")}},
	}}
	session := newTestSession()
	cache := NewAgentCache(providerBuilder(provider), nil)
	abortPrompt := func(context.Context, string, json.RawMessage) (AuthDecision, error) {
		return AuthDecision{Abort: true}, nil
	}
	orch := NewRequestOrchestrator(session, cache, registry, abortPrompt)

	_, err := orch.ProcessRequest(context.Background(), "search stuff")
	if !errors.Is(err, ErrUserAbort) {
		t.Fatalf("err = %v, want ErrUserAbort", err)
	}
	if orphans := session.Messages.OrphanedToolCalls(); len(orphans) != 0 {
		t.Errorf("orphans after abort = %+v", orphans)
	}
	if cache.Size() != 0 {
		t.Error("cache not invalidated on user abort")
	}
}

func TestProcessRequestGlobalTimeout(t *testing.T) {
	session := newTestSession()
	session.SetYolo(true)
	session.Config.GlobalRequestTimeout = 30 * time.Millisecond
	cache := NewAgentCache(providerBuilder(slowProvider{}), nil)
	orch := NewRequestOrchestrator(session, cache, NewToolRegistry(), nil)

	_, err := orch.ProcessRequest(context.Background(), "hang forever")
	if !errors.Is(err, ErrGlobalTimeout) {
		t.Fatalf("err = %v, want ErrGlobalTimeout", err)
	}
	if cache.Size() != 0 {
		t.Error("cache not invalidated on global timeout")
	}
}

func TestProcessRequestOuterCancellation(t *testing.T) {
	session := newTestSession()
	session.SetYolo(true)
	cache := NewAgentCache(providerBuilder(slowProvider{}), nil)
	orch := NewRequestOrchestrator(session, cache, NewToolRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := orch.ProcessRequest(ctx, "hang forever")
	if !errors.Is(err, ErrUserAbort) {
		t.Fatalf("err = %v, want ErrUserAbort for outer cancellation", err)
	}
}

func TestProcessRequestStreaming(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		textResp("TUNACODE DONE: streamed"),
	}}

	var partials []string
	streamer := NewStreamer(func(p string) { partials = append(partials, p) }, nil)
	_, _, orch := wire(t, provider, nil, WithStreamer(streamer))

	outcome, err := orch.ProcessRequest(context.Background(), "stream it")
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Completed {
		t.Error("not completed")
	}
	if len(partials) == 0 || partials[len(partials)-1] != "TUNACODE DONE: streamed" {
		t.Errorf("partials = %v, want final state emitted", partials)
	}
}

func TestProcessRequestReactGuidanceReachesModel(t *testing.T) {
	// Three tool-free iterations force a react at iteration 2; the guidance
	// must appear in the next model request (iteration 3).
	provider := &mockProvider{responses: []ChatResponse{
		textResp("a"), textResp("b"), textResp("c"),
		textResp("TUNACODE DONE: ok"),
	}}
	_, _, orch := wire(t, provider, nil)

	if _, err := orch.ProcessRequest(context.Background(), "slow task"); err != nil {
		t.Fatal(err)
	}

	last := provider.lastRequest()
	var found bool
	for _, m := range last.Messages {
		if m.Kind == KindModelRequest {
			for _, p := range m.Parts {
				if p.Kind == PartText && strings.Contains(p.Text, "Guidance:") {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("react guidance never reached the in-flight model context")
	}
}

func TestProcessRequestResetsPerRequestState(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		textResp("TUNACODE DONE: one"),
		textResp("TUNACODE DONE: two"),
	}}
	session, _, orch := wire(t, provider, nil)

	out1, err := orch.ProcessRequest(context.Background(), "first")
	if err != nil {
		t.Fatal(err)
	}
	out2, err := orch.ProcessRequest(context.Background(), "second")
	if err != nil {
		t.Fatal(err)
	}
	if out1.RequestID == out2.RequestID {
		t.Error("request ids collide")
	}
	if out2.Iterations != 0 {
		t.Errorf("second request iterations = %d, want 0", out2.Iterations)
	}
	if session.Messages.UserPromptCount() != 2 {
		t.Errorf("user prompts = %d, want 2", session.Messages.UserPromptCount())
	}
}
