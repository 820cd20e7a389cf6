package tunacode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// maxParallelDispatch caps concurrent tool goroutines so a large read-only
// batch cannot overwhelm the host.
const maxParallelDispatch = 10

// ToolResultHook notifies the host UI of a completed tool invocation.
type ToolResultHook func(tool string, args json.RawMessage, result string, duration time.Duration)

// ToolDispatcher executes the tool calls of one model-response node.
// Batches containing a write or execute tool run strictly in call order,
// each result appended before the next tool starts. All-read-only batches
// are authorized sequentially up front, then invoked concurrently; their
// returns are still appended in call order.
type ToolDispatcher struct {
	registry *ToolRegistry
	auth     *Authorizer
	store    *MessageStore
	onResult ToolResultHook
	tracer   Tracer
	logger   *slog.Logger
}

// NewToolDispatcher wires a dispatcher. onResult and tracer may be nil.
func NewToolDispatcher(registry *ToolRegistry, auth *Authorizer, store *MessageStore, onResult ToolResultHook, tracer Tracer, logger *slog.Logger) *ToolDispatcher {
	if logger == nil {
		logger = nopLogger
	}
	return &ToolDispatcher{
		registry: registry,
		auth:     auth,
		store:    store,
		onResult: onResult,
		tracer:   tracer,
		logger:   logger,
	}
}

// toolOutcome is one tool call's resolved result, error or not.
type toolOutcome struct {
	content  string
	isError  bool
	duration time.Duration
}

// DispatchNode runs every tool call of one node. Tool failures and denials
// become tool-return content and never abort the request; a user abort
// during authorization propagates immediately (the orchestrator patches
// orphans). Exactly one batch id is consumed per node.
func (d *ToolDispatcher) DispatchNode(ctx context.Context, reqCtx *RequestContext, calls []Part) error {
	if len(calls) == 0 {
		return nil
	}
	batchID := reqCtx.NextBatchID()

	dispatchCtx := ctx
	if d.tracer != nil {
		var span Span
		dispatchCtx, span = d.tracer.Start(ctx, "tool.batch",
			IntAttr("batch_id", batchID),
			IntAttr("tool_count", len(calls)))
		defer span.End()
	}

	if d.readOnlyBatch(calls) {
		return d.dispatchParallel(dispatchCtx, reqCtx, batchID, calls)
	}
	return d.dispatchSequential(dispatchCtx, reqCtx, batchID, calls)
}

// readOnlyBatch reports whether every call in the batch resolves to a
// read-only tool. Unknown tools count as read-only; they resolve to an
// error return without side effects either way.
func (d *ToolDispatcher) readOnlyBatch(calls []Part) bool {
	for _, call := range calls {
		t := d.registry.Get(call.Tool)
		if t != nil && t.Class() != ClassReadOnly {
			return false
		}
	}
	return true
}

// dispatchSequential runs authorize → invoke → append for each call in
// order, awaiting each result before starting the next.
func (d *ToolDispatcher) dispatchSequential(ctx context.Context, reqCtx *RequestContext, batchID int, calls []Part) error {
	for _, call := range calls {
		outcome, err := d.authorizeCall(ctx, call)
		if err != nil {
			return err
		}
		if outcome == nil {
			o := d.invoke(ctx, call)
			outcome = &o
		}
		d.record(reqCtx, batchID, call, *outcome)
		d.store.Append(ModelRequest(ToolReturnPart(call.ID, call.Tool, outcome.content)))
	}
	return nil
}

// dispatchParallel authorizes every call first (sequential, in call order,
// entirely before any tool begins), then invokes the approved ones on a
// bounded worker pool. Completion order is nondeterministic; appends are in
// call order.
func (d *ToolDispatcher) dispatchParallel(ctx context.Context, reqCtx *RequestContext, batchID int, calls []Part) error {
	outcomes := make([]*toolOutcome, len(calls))
	for i, call := range calls {
		outcome, err := d.authorizeCall(ctx, call)
		if err != nil {
			return err
		}
		outcomes[i] = outcome // non-nil when authorization resolved the call
	}

	type workItem struct {
		idx  int
		call Part
	}
	var pending []workItem
	for i, call := range calls {
		if outcomes[i] == nil {
			pending = append(pending, workItem{i, call})
		}
	}

	if len(pending) == 1 {
		// Single call: no goroutine needed.
		o := d.invoke(ctx, pending[0].call)
		outcomes[pending[0].idx] = &o
	} else if len(pending) > 1 {
		workCh := make(chan workItem, len(pending))
		for _, w := range pending {
			workCh <- w
		}
		close(workCh)

		var mu sync.Mutex
		var wg sync.WaitGroup
		workers := min(len(pending), maxParallelDispatch)
		wg.Add(workers)
		for range workers {
			go func() {
				defer wg.Done()
				for w := range workCh {
					var o toolOutcome
					if err := ctx.Err(); err != nil {
						o = toolOutcome{content: "Error: " + err.Error(), isError: true}
					} else {
						o = d.invoke(ctx, w.call)
					}
					mu.Lock()
					outcomes[w.idx] = &o
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	}

	for i, call := range calls {
		o := outcomes[i]
		if o == nil {
			o = &toolOutcome{content: "Error: result not received", isError: true}
		}
		d.record(reqCtx, batchID, call, *o)
		d.store.Append(ModelRequest(ToolReturnPart(call.ID, call.Tool, o.content)))
	}
	return nil
}

// authorizeCall applies the authorization pipeline to one call. It returns
// a resolved outcome when authorization itself settles the call (unknown
// tool, denial), nil when the tool should be invoked, or an error on user
// abort.
func (d *ToolDispatcher) authorizeCall(ctx context.Context, call Part) (*toolOutcome, error) {
	tool := d.registry.Get(call.Tool)
	if tool == nil {
		return &toolOutcome{content: "Error: unknown tool: " + call.Tool, isError: true}, nil
	}
	err := d.auth.Authorize(ctx, tool, call.Args)
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, ErrUserAbort) || errors.Is(err, context.Canceled) {
		return nil, ErrUserAbort
	}
	var denied *AuthorizationDenied
	if errors.As(err, &denied) {
		return &toolOutcome{content: denied.Reason, isError: true}, nil
	}
	return nil, err
}

// invoke runs one tool with panic recovery. Failures become error content.
func (d *ToolDispatcher) invoke(ctx context.Context, call Part) (o toolOutcome) {
	start := time.Now()
	defer func() {
		o.duration = time.Since(start)
		if p := recover(); p != nil {
			o = toolOutcome{
				content:  fmt.Sprintf("Error: tool %q panic: %v", call.Tool, p),
				isError:  true,
				duration: time.Since(start),
			}
		}
	}()

	tool := d.registry.Get(call.Tool)
	content, err := tool.Invoke(ctx, call.Args)
	if err != nil {
		d.logger.Warn("tool failed", "tool", call.Tool, "error", err)
		return toolOutcome{content: "Error: " + err.Error(), isError: true}
	}
	return toolOutcome{content: content}
}

// record books the outcome into the request context and fires the UI hook.
func (d *ToolDispatcher) record(reqCtx *RequestContext, batchID int, call Part, o toolOutcome) {
	reqCtx.RecordToolCall(ToolCallRecord{
		Tool:    call.Tool,
		Args:    call.Args,
		Result:  o.content,
		IsError: o.isError,
		BatchID: batchID,
	})
	if d.onResult != nil {
		d.onResult(call.Tool, call.Args, o.content, o.duration)
	}
}
