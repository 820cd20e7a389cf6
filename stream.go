package tunacode

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// StreamThrottle bounds UI updates to at most one per interval. The final
// accumulated state is always emitted.
const StreamThrottle = 100 * time.Millisecond

// StreamHook receives the accumulated partial text, throttled to ≤ 10 Hz.
type StreamHook func(partial string)

// Streamer consumes a node through the provider's token stream, forwarding
// accumulated text to the UI. It runs under the same cancellation scope as
// the outer request — user abort cancels immediately — and carries no inner
// watchdog; only the orchestrator's global request timeout applies.
type Streamer struct {
	onToken  StreamHook
	throttle time.Duration
	logger   *slog.Logger
}

// NewStreamer creates a Streamer delivering partials to onToken.
func NewStreamer(onToken StreamHook, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = nopLogger
	}
	return &Streamer{onToken: onToken, throttle: StreamThrottle, logger: logger}
}

// RunNode produces one node via the agent's streaming path. If the stream
// fails it falls back to non-streaming retrieval of the same node and logs
// a warning; cancellation is never retried.
func (s *Streamer) RunNode(ctx context.Context, agent *Agent, messages []Message) (ChatResponse, error) {
	ch := make(chan string, 64)

	var (
		resp      ChatResponse
		streamErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, streamErr = agent.RunNodeStream(ctx, messages, ch)
	}()

	var accumulated strings.Builder
	var lastEmit time.Time
	dirty := false
	for delta := range ch {
		accumulated.WriteString(delta)
		dirty = true
		if time.Since(lastEmit) >= s.throttle {
			s.emit(accumulated.String())
			lastEmit = time.Now()
			dirty = false
		}
	}
	<-done

	if dirty {
		s.emit(accumulated.String())
	}

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded) || errors.Is(streamErr, ErrUserAbort) {
			return ChatResponse{}, streamErr
		}
		s.logger.Warn("stream failed, falling back to non-streaming", "error", streamErr)
		resp, err := agent.RunNode(ctx, messages)
		if err != nil {
			return ChatResponse{}, err
		}
		s.emit(resp.Text())
		return resp, nil
	}
	return resp, nil
}

func (s *Streamer) emit(partial string) {
	if s.onToken != nil && partial != "" {
		s.onToken(partial)
	}
}
