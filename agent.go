package tunacode

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// ContextInjector appends guidance into an in-flight agent run so the next
// model call observes it. Forced-react guidance goes through this interface;
// nothing reaches into the agent's internals.
type ContextInjector interface {
	Inject(guidance string)
}

// Agent is a model-bound, ready-to-invoke instance. The tool set is fixed at
// construction; conditional availability (plan mode) is enforced at
// invocation time by the Authorizer, not by rebuilding the agent.
type Agent struct {
	model    string // "provider:model"
	provider Provider
	tools    []ToolSchema
	strict   bool
	delay    time.Duration

	mu       sync.Mutex
	injected []string
}

// NewAgent binds a provider and tool set into an invocable agent.
func NewAgent(model string, provider Provider, tools []ToolSchema, strict bool, delay time.Duration) *Agent {
	return &Agent{model: model, provider: provider, tools: tools, strict: strict, delay: delay}
}

// Model returns the full "provider:model" identifier the agent is bound to.
func (a *Agent) Model() string { return a.model }

// Inject implements ContextInjector. Injected guidance is drained into the
// next RunNode call as a synthetic model-request message.
func (a *Agent) Inject(guidance string) {
	a.mu.Lock()
	a.injected = append(a.injected, guidance)
	a.mu.Unlock()
}

// drainInjected removes and returns pending guidance.
func (a *Agent) drainInjected() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	g := a.injected
	a.injected = nil
	return g
}

// buildRequest assembles the chat request for one node: the conversation
// plus any injected guidance as a trailing model-request message.
func (a *Agent) buildRequest(messages []Message) ChatRequest {
	if g := a.drainInjected(); len(g) > 0 {
		messages = append(append([]Message(nil), messages...),
			ModelRequest(TextPart(strings.Join(g, "\n"))))
	}
	return ChatRequest{Messages: messages, Tools: a.tools}
}

// RunNode produces one node from the model. The configured request delay is
// applied first (cancellation-safe); tool-call arguments in the response are
// validated per the agent's strictness.
func (a *Agent) RunNode(ctx context.Context, messages []Message) (ChatResponse, error) {
	if err := a.wait(ctx); err != nil {
		return ChatResponse{}, err
	}
	resp, err := a.provider.Chat(ctx, a.buildRequest(messages))
	if err != nil {
		return ChatResponse{}, err
	}
	if err := a.validateToolCalls(&resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// RunNodeStream is RunNode with text deltas forwarded into ch. The provider
// closes ch.
func (a *Agent) RunNodeStream(ctx context.Context, messages []Message, ch chan<- string) (ChatResponse, error) {
	if err := a.wait(ctx); err != nil {
		close(ch)
		return ChatResponse{}, err
	}
	resp, err := a.provider.ChatStream(ctx, a.buildRequest(messages), ch)
	if err != nil {
		return ChatResponse{}, err
	}
	if err := a.validateToolCalls(&resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// wait applies the configured inter-request delay, returning early on
// cancellation.
func (a *Agent) wait(ctx context.Context) error {
	if a.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(a.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// validateToolCalls checks each tool-call part's arguments. Model output is
// unpredictable: in lax mode malformed JSON is repaired when a balanced
// object can be found in the raw text; strict mode rejects immediately.
func (a *Agent) validateToolCalls(resp *ChatResponse) error {
	for i := range resp.Parts {
		p := &resp.Parts[i]
		if p.Kind != PartToolCall {
			continue
		}
		if len(p.Args) == 0 {
			p.Args = json.RawMessage("{}")
			continue
		}
		if json.Valid(p.Args) {
			continue
		}
		if a.strict {
			return &ToolBatchingParseError{Tool: p.Tool, Raw: string(p.Args), Err: errInvalidJSON}
		}
		repaired, ok := repairJSONObject(string(p.Args))
		if !ok {
			return &ToolBatchingParseError{Tool: p.Tool, Raw: string(p.Args), Err: errInvalidJSON}
		}
		p.Args = json.RawMessage(repaired)
	}
	return nil
}

var errInvalidJSON = &jsonSyntaxError{}

type jsonSyntaxError struct{}

func (*jsonSyntaxError) Error() string { return "invalid JSON" }

// repairJSONObject extracts the first balanced {...} object from s and
// returns it if it parses. Best effort only.
func repairJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid(bytes.TrimSpace([]byte(candidate))) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
