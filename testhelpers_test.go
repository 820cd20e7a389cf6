package tunacode

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// --- Provider mocks (shared across orchestrator, stream, retry tests) ---

// mockProvider replays a script of responses in order. Safe for concurrent
// use; records every request it sees.
type mockProvider struct {
	name      string
	responses []ChatResponse
	errs      []error // optional, aligned with responses; nil = success

	mu       sync.Mutex
	calls    int
	requests []ChatRequest
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) next(req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return ChatResponse{}, m.errs[i]
	}
	if i >= len(m.responses) {
		return ChatResponse{Parts: []Part{TextPart("out of script")}}, nil
	}
	return m.responses[i], nil
}

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	return m.next(req)
}

func (m *mockProvider) ChatStream(_ context.Context, req ChatRequest, ch chan<- string) (ChatResponse, error) {
	resp, err := m.next(req)
	if err != nil {
		close(ch)
		return ChatResponse{}, err
	}
	for _, p := range resp.Parts {
		if p.Kind == PartText {
			ch <- p.Text
		}
	}
	close(ch)
	return resp, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) lastRequest() ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ChatRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// slowProvider blocks until its context is cancelled.
type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }

func (slowProvider) Chat(ctx context.Context, _ ChatRequest) (ChatResponse, error) {
	<-ctx.Done()
	return ChatResponse{}, ctx.Err()
}

func (slowProvider) ChatStream(ctx context.Context, _ ChatRequest, ch chan<- string) (ChatResponse, error) {
	close(ch)
	<-ctx.Done()
	return ChatResponse{}, ctx.Err()
}

// --- Tool mocks ---

// fnTool adapts a function to the Tool interface.
type fnTool struct {
	name     string
	class    ToolClass
	planSafe bool
	fn       func(ctx context.Context, args json.RawMessage) (string, error)
}

func (t *fnTool) Schema() ToolSchema {
	return ToolSchema{Name: t.name, Description: "test tool", Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *fnTool) Class() ToolClass { return t.class }
func (t *fnTool) PlanSafe() bool   { return t.planSafe }
func (t *fnTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	if t.fn == nil {
		return "ok from " + t.name, nil
	}
	return t.fn(ctx, args)
}

func readOnlyTool(name string) *fnTool {
	return &fnTool{name: name, class: ClassReadOnly, planSafe: true}
}

func writeTool(name string) *fnTool {
	return &fnTool{name: name, class: ClassWrite}
}

func execTool(name string) *fnTool {
	return &fnTool{name: name, class: ClassExecute}
}

// newBarrierTool returns a read-only tool that blocks each invocation until
// all expected concurrent calls have started. If invocations run
// sequentially, the test deadlocks (caught by timeout).
func newBarrierTool(name string, barrier chan struct{}, started chan struct{}) *fnTool {
	return &fnTool{
		name:     name,
		class:    ClassReadOnly,
		planSafe: true,
		fn: func(ctx context.Context, _ json.RawMessage) (string, error) {
			started <- struct{}{}
			select {
			case <-barrier:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return "done from " + name, nil
		},
	}
}

// --- Session / wiring helpers ---

func testConfig() SessionConfig {
	return SessionConfig{
		DefaultModel:         "openai:gpt-4.1",
		ContextWindowSize:    200_000,
		MaxRetries:           3,
		GlobalRequestTimeout: 5 * time.Second,
		Providers: map[string]ProviderSettings{
			"openai": {BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
		},
	}
}

func newTestSession() *SessionState {
	return NewSessionState(testConfig())
}

// providerBuilder returns an AgentBuilder that binds the given provider to
// every model.
func providerBuilder(p Provider) AgentBuilder {
	return func(model string, cfg SessionConfig) (*Agent, error) {
		return NewAgent(model, p, nil, cfg.ToolStrictValidation, 0), nil
	}
}

// approveAll is an AuthorizeFunc that approves everything.
func approveAll(_ context.Context, _ string, _ json.RawMessage) (AuthDecision, error) {
	return AuthDecision{Approved: true}, nil
}

// tcall is a convenience for building tool-call parts in scripts.
func tcall(id, tool string) Part {
	return ToolCallPart(id, tool, json.RawMessage(`{}`))
}

// textResp builds a text-only node.
func textResp(s string) ChatResponse {
	return ChatResponse{Parts: []Part{TextPart(s)}, Usage: CallUsage{PromptTokens: 10, CompletionTokens: 5}}
}

// repeat builds a long string for compaction tests.
func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for range n {
		out = append(out, s...)
	}
	return string(out)
}
