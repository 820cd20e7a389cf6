package tunacode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Completion markers, matched bit-exact against model output.
const (
	CompletionMarkerDone = "TUNACODE DONE:"
	CompletionMarkerTask = "TUNACODE_TASK_COMPLETE"
)

// pendingPhrases downgrade a completion marker to a warning without
// rejecting it. Matched case-insensitively.
var pendingPhrases = []string{"let me", "i'll", "going to"}

// Verdict is the intervention engine's ruling on whether the loop continues.
type Verdict int

const (
	// VerdictContinue means the loop proceeds to the next iteration.
	VerdictContinue Verdict = iota
	// VerdictComplete means the model declared the task done.
	VerdictComplete
	// VerdictAwaitGuidance means the iteration limit was reached and the
	// request hands back to the user.
	VerdictAwaitGuidance
)

// InterventionEngine applies the five loop-steering mechanisms, in order,
// once per iteration after the node's tools have run: empty-response nudge,
// productivity alert, forced react, completion detection, iteration limit.
// Interventions mutate the message store by appending synthetic messages
// and reach the in-flight model context only through a ContextInjector.
type InterventionEngine struct {
	store         *MessageStore
	registry      *ToolRegistry
	maxIterations int
	logger        *slog.Logger
}

// NewInterventionEngine creates an engine for one session.
func NewInterventionEngine(session *SessionState, registry *ToolRegistry, maxIterations int, logger *slog.Logger) *InterventionEngine {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = nopLogger
	}
	return &InterventionEngine{
		store:         session.Messages,
		registry:      registry,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// Evaluate runs the mechanisms against the just-processed node and returns
// the loop verdict. injector carries react guidance into the next model call.
func (e *InterventionEngine) Evaluate(ctx context.Context, reqCtx *RequestContext, node ChatResponse, injector ContextInjector) Verdict {
	e.checkEmptyResponse(reqCtx, node)
	e.checkProductivity(reqCtx, node)
	e.forceReact(ctx, reqCtx, injector)

	if e.checkCompletion(reqCtx, node) {
		reqCtx.TaskCompleted = true
		return VerdictComplete
	}

	if reqCtx.Iteration >= e.maxIterations-1 && !reqCtx.TaskCompleted {
		e.store.Append(UserPrompt("Reached iteration limit. Tell me to continue or revise."))
		reqCtx.AwaitingUserGuidance = true
		e.logger.Info("iteration limit reached, awaiting user guidance",
			"request_id", reqCtx.RequestID, "iterations", e.maxIterations)
		return VerdictAwaitGuidance
	}
	return VerdictContinue
}

// nodeIsEmpty reports whether the node carries no substance: zero parts, or
// only whitespace text and thoughts, and no tool calls.
func nodeIsEmpty(node ChatResponse) bool {
	for _, p := range node.Parts {
		switch p.Kind {
		case PartToolCall:
			return false
		case PartText, PartThought:
			if strings.TrimSpace(p.Text) != "" {
				return false
			}
		}
	}
	return true
}

func (e *InterventionEngine) checkEmptyResponse(reqCtx *RequestContext, node ChatResponse) {
	if !nodeIsEmpty(node) {
		reqCtx.ConsecutiveEmptyResponses = 0
		return
	}
	reqCtx.ConsecutiveEmptyResponses++
	e.store.Append(UserPrompt(
		"Your last response was empty. Take a concrete next action: " +
			"(1) call a tool to gather information or make progress, " +
			"(2) continue working toward: " + reqCtx.OriginalQuery + ", or " +
			"(3) finish with `" + CompletionMarkerDone + "` followed by a summary."))
	e.logger.Debug("empty response nudge injected",
		"request_id", reqCtx.RequestID, "consecutive", reqCtx.ConsecutiveEmptyResponses)
}

func (e *InterventionEngine) checkProductivity(reqCtx *RequestContext, node ChatResponse) {
	if len(node.ToolCalls()) > 0 {
		reqCtx.unproductiveIterations = 0
		return
	}
	reqCtx.unproductiveIterations++
	if reqCtx.unproductiveIterations < UnproductiveLimit || reqCtx.TaskCompleted {
		return
	}
	e.store.Append(UserPrompt(fmt.Sprintf(
		"ALERT: No tools executed for %d iterations. You MUST either: "+
			"(1) start with `%s` if complete, (2) execute a tool now, or (3) explain the blocker.",
		reqCtx.unproductiveIterations, CompletionMarkerDone)))
	e.logger.Warn("productivity alert injected",
		"request_id", reqCtx.RequestID, "unproductive", reqCtx.unproductiveIterations)
}

// forceReact periodically runs the internal react scratchpad and injects
// guidance derived from the latest tool result directly into the in-flight
// model context.
func (e *InterventionEngine) forceReact(ctx context.Context, reqCtx *RequestContext, injector ContextInjector) {
	if reqCtx.Iteration < 2 || reqCtx.Iteration%ForcedReactInterval != 0 {
		return
	}
	if reqCtx.ReactForcedCalls >= ForcedReactLimit {
		return
	}

	guidance := e.deriveGuidance(reqCtx)
	if react := e.registry.Get("react"); react != nil {
		args, _ := json.Marshal(map[string]string{
			"thoughts":  "Checkpoint at iteration " + fmt.Sprint(reqCtx.Iteration),
			"next_step": guidance,
		})
		if _, err := react.Invoke(ctx, args); err != nil {
			e.logger.Warn("react tool failed", "error", err)
		}
	}
	reqCtx.ReactForcedCalls++
	reqCtx.PushReactGuidance(guidance)
	if injector != nil {
		injector.Inject("Guidance: " + guidance)
	}
	e.logger.Debug("forced react",
		"request_id", reqCtx.RequestID,
		"iteration", reqCtx.Iteration,
		"forced_calls", reqCtx.ReactForcedCalls)
}

// deriveGuidance builds a contextual hint from the most recent tool result
// and the original query.
func (e *InterventionEngine) deriveGuidance(reqCtx *RequestContext) string {
	if last := e.store.LastToolReturn(); last != nil {
		return fmt.Sprintf("Latest result from %s: %s. Keep working toward: %s",
			last.Tool, truncate(last.Content, 200), truncate(reqCtx.OriginalQuery, 200))
	}
	return "No tool results yet. Start by gathering context for: " + truncate(reqCtx.OriginalQuery, 200)
}

// checkCompletion scans the node text for completion markers. Queued tool
// calls in the same node always override the marker: the model did work
// this iteration and the loop must observe the results. Pending-intention
// phrases downgrade to a warning but still accept.
func (e *InterventionEngine) checkCompletion(reqCtx *RequestContext, node ChatResponse) bool {
	text := node.Text()
	if !strings.Contains(text, CompletionMarkerDone) && !strings.Contains(text, CompletionMarkerTask) {
		return false
	}
	if len(node.ToolCalls()) > 0 {
		e.logger.Info("completion marker overridden by queued tool calls",
			"request_id", reqCtx.RequestID, "tool_calls", len(node.ToolCalls()))
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range pendingPhrases {
		if strings.Contains(lower, phrase) {
			e.logger.Warn("completion marker with pending-intention phrase, accepting anyway",
				"request_id", reqCtx.RequestID, "phrase", phrase)
			break
		}
	}
	return true
}

// truncate limits s to n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
