package tunacode

import "context"

// Provider abstracts the model backend. Implementations live under
// provider/; the core never speaks a wire protocol directly.
type Provider interface {
	// Chat sends a request and returns one complete node.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatStream streams text deltas into ch while producing the node, then
	// returns the final response with usage stats. Implementations must
	// close ch before returning and stop promptly on ctx cancellation.
	ChatStream(ctx context.Context, req ChatRequest, ch chan<- string) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "openrouter").
	Name() string
}
