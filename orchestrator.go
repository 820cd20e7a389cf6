package tunacode

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultGlobalTimeout bounds each per-iteration model call when the
// configuration does not set global_request_timeout.
const DefaultGlobalTimeout = 120 * time.Second

// RequestOutcome is the result of one ProcessRequest call.
type RequestOutcome struct {
	RequestID            string
	FinalText            string
	Usage                CallUsage
	Iterations           int
	Completed            bool
	AwaitingUserGuidance bool
}

// RequestOrchestrator drives one user request: reset state, compact, loop
// model calls and tool dispatch under interventions, finalize. It borrows
// the SessionState for the duration of a request; the AgentCache is shared
// across requests.
type RequestOrchestrator struct {
	session        *SessionState
	cache          *AgentCache
	registry       *ToolRegistry
	auth           *Authorizer
	dispatcher     *ToolDispatcher
	compactor      *Compactor
	interventions  *InterventionEngine
	streamer       *Streamer
	tracer         Tracer
	costFn         CostFn
	maxIterations  int
	toolResultHook ToolResultHook
	logger         *slog.Logger
}

// OrchestratorOption configures a RequestOrchestrator.
type OrchestratorOption func(*RequestOrchestrator)

// WithStreamer enables streaming model calls through s.
func WithStreamer(s *Streamer) OrchestratorOption {
	return func(o *RequestOrchestrator) { o.streamer = s }
}

// WithTracer enables span emission.
func WithTracer(t Tracer) OrchestratorOption {
	return func(o *RequestOrchestrator) { o.tracer = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *RequestOrchestrator) { o.logger = l }
}

// WithCostFn sets the usage cost calculator.
func WithCostFn(fn CostFn) OrchestratorOption {
	return func(o *RequestOrchestrator) { o.costFn = fn }
}

// WithMaxIterations overrides the iteration limit.
func WithMaxIterations(n int) OrchestratorOption {
	return func(o *RequestOrchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithToolResultHook forwards completed tool invocations to the host UI.
func WithToolResultHook(hook ToolResultHook) OrchestratorOption {
	return func(o *RequestOrchestrator) { o.toolResultHook = hook }
}

// NewRequestOrchestrator wires the request pipeline for one session.
// authPrompt is the host UI's interactive authorization callback (nil in
// yolo-only setups).
func NewRequestOrchestrator(session *SessionState, cache *AgentCache, registry *ToolRegistry, authPrompt AuthorizeFunc, opts ...OrchestratorOption) *RequestOrchestrator {
	o := &RequestOrchestrator{
		session:       session,
		cache:         cache,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		logger:        nopLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.auth = NewAuthorizer(session, authPrompt)
	o.dispatcher = NewToolDispatcher(registry, o.auth, session.Messages, o.toolResultHook, o.tracer, o.logger)
	o.compactor = NewCompactor(func() bool { return session.Config.LocalMode }, o.logger)
	o.interventions = NewInterventionEngine(session, registry, o.maxIterations, o.logger)
	return o
}

// ProcessRequest runs the iteration loop for one user prompt.
//
// Fatal conditions: ErrUserAbort is re-raised immediately after patching
// orphaned tool calls; ErrGlobalTimeout additionally invalidates the agent
// cache for the current model; any other error is logged with the request
// id, patched, and re-raised.
func (o *RequestOrchestrator) ProcessRequest(ctx context.Context, userText string) (RequestOutcome, error) {
	reqCtx := NewRequestContext(userText)
	o.session.ResetForNewRequest()

	reqLogger := o.logger.With("request_id", reqCtx.RequestID)
	reqLogger.Info("request started", "model", o.session.CurrentModel)

	requestCtx := ctx
	if o.tracer != nil {
		var span Span
		requestCtx, span = o.tracer.Start(ctx, "request",
			StringAttr("request_id", reqCtx.RequestID),
			StringAttr("model", o.session.CurrentModel))
		defer span.End()
	}

	store := o.session.Messages
	store.Append(UserPrompt(userText))
	o.compactor.Compact(store)

	var totalUsage CallUsage
	outcome := func() RequestOutcome {
		return RequestOutcome{
			RequestID:            reqCtx.RequestID,
			FinalText:            store.LastResponseText(),
			Usage:                totalUsage,
			Iterations:           reqCtx.Iteration,
			Completed:            reqCtx.TaskCompleted,
			AwaitingUserGuidance: reqCtx.AwaitingUserGuidance,
		}
	}

	for i := 0; i < o.maxIterations; i++ {
		reqCtx.SetIteration(i)

		agent, err := o.cache.Acquire(o.session.CurrentModel, o.session.Config)
		if err != nil {
			reqLogger.Error("agent construction failed", "error", err)
			return outcome(), o.fail(reqCtx, err)
		}

		node, err := o.runNode(requestCtx, agent, store.Messages())
		if err != nil {
			return outcome(), o.classifyNodeError(requestCtx, reqCtx, reqLogger, err)
		}

		store.Append(ModelResponse(node.Parts...))

		usage := node.Usage
		if o.costFn != nil && usage.Cost == 0 {
			usage.Cost = o.costFn(o.session.CurrentModel, usage.PromptTokens, usage.CompletionTokens)
		}
		o.session.RecordUsage(usage)
		totalUsage.Add(usage)

		if err := o.dispatcher.DispatchNode(requestCtx, reqCtx, node.ToolCalls()); err != nil {
			return outcome(), o.classifyNodeError(requestCtx, reqCtx, reqLogger, err)
		}

		verdict := o.interventions.Evaluate(requestCtx, reqCtx, node, agent)
		if verdict == VerdictComplete || verdict == VerdictAwaitGuidance {
			break
		}
	}

	out := outcome()
	reqLogger.Info("request finished",
		"iterations", reqCtx.Iteration+1,
		"completed", out.Completed,
		"awaiting_guidance", out.AwaitingUserGuidance,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens)
	return out, nil
}

// runNode produces one node under the global request timeout, streaming
// when a streamer is configured.
func (o *RequestOrchestrator) runNode(ctx context.Context, agent *Agent, messages []Message) (ChatResponse, error) {
	timeout := o.session.Config.GlobalRequestTimeout
	if timeout <= 0 {
		timeout = DefaultGlobalTimeout
	}
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		node ChatResponse
		err  error
	)
	if o.streamer != nil {
		node, err = o.streamer.RunNode(nodeCtx, agent, messages)
	} else {
		node, err = agent.RunNode(nodeCtx, messages)
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// The per-iteration deadline fired, not the outer request.
		return ChatResponse{}, ErrGlobalTimeout
	}
	return node, err
}

// classifyNodeError applies the error taxonomy: patch orphans, then
// re-raise as the right kind.
func (o *RequestOrchestrator) classifyNodeError(ctx context.Context, reqCtx *RequestContext, logger *slog.Logger, err error) error {
	switch {
	case errors.Is(err, ErrUserAbort) || errors.Is(err, context.Canceled):
		o.patch(reqCtx, "user abort")
		o.cache.Invalidate(o.session.CurrentModel)
		logger.Info("request aborted by user", "iteration", reqCtx.Iteration)
		return ErrUserAbort
	case errors.Is(err, ErrGlobalTimeout):
		o.cache.Invalidate(o.session.CurrentModel)
		o.patch(reqCtx, "global request timeout")
		logger.Warn("global request timeout", "iteration", reqCtx.Iteration)
		return ErrGlobalTimeout
	default:
		var parseErr *ToolBatchingParseError
		if errors.As(err, &parseErr) {
			logger.Warn("malformed tool call from model", "tool", parseErr.Tool, "error", parseErr.Err)
		} else {
			logger.Error("request failed", "iteration", reqCtx.Iteration, "error", err)
		}
		o.patch(reqCtx, "request error: "+err.Error())
		return err
	}
}

// fail patches orphans and returns err for non-node failures.
func (o *RequestOrchestrator) fail(reqCtx *RequestContext, err error) error {
	o.patch(reqCtx, err.Error())
	return err
}

// patch synthesizes tool returns for orphaned calls so the log stays
// invariant-clean on every exit path.
func (o *RequestOrchestrator) patch(reqCtx *RequestContext, reason string) {
	if n := o.session.Messages.PatchToolMessages(reason); n > 0 {
		o.logger.Debug("patched orphaned tool calls",
			"request_id", reqCtx.RequestID, "count", n)
	}
}
