package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	tunacode "github.com/ryumacodes/tunacode"
)

// Attribute keys shared by the observer instruments.
var (
	AttrModel     = attribute.Key("llm.model")
	AttrProvider  = attribute.Key("llm.provider")
	AttrOperation = attribute.Key("llm.operation")
	AttrStatus    = attribute.Key("status")
	AttrTokenKind = attribute.Key("token.kind")
)

// ObservedProvider wraps a tunacode.Provider with OTEL instrumentation:
// request counts, token usage, cost, and call duration.
type ObservedProvider struct {
	inner tunacode.Provider
	inst  *Instruments
	model string
}

// WrapProvider returns an instrumented provider.
func WrapProvider(inner tunacode.Provider, model string, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst, model: model}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

func (o *ObservedProvider) Chat(ctx context.Context, req tunacode.ChatRequest) (tunacode.ChatResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.chat", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Chat(ctx, req)
	o.record(ctx, span, "chat", start, resp.Usage, err)
	return resp, err
}

func (o *ObservedProvider) ChatStream(ctx context.Context, req tunacode.ChatRequest, ch chan<- string) (tunacode.ChatResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.chat_stream", trace.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.ChatStream(ctx, req, ch)
	o.record(ctx, span, "chat_stream", start, resp.Usage, err)
	return resp, err
}

func (o *ObservedProvider) record(ctx context.Context, span trace.Span, op string, start time.Time, usage tunacode.CallUsage, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		AttrModel.String(o.model),
		AttrProvider.String(o.inner.Name()),
		AttrOperation.String(op),
		AttrStatus.String(status),
	)
	o.inst.ModelRequests.Add(ctx, 1, attrs)
	o.inst.ModelDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if usage.PromptTokens > 0 {
		o.inst.TokenUsage.Add(ctx, int64(usage.PromptTokens), attrs,
			metric.WithAttributes(AttrTokenKind.String("prompt")))
	}
	if usage.CompletionTokens > 0 {
		o.inst.TokenUsage.Add(ctx, int64(usage.CompletionTokens), attrs,
			metric.WithAttributes(AttrTokenKind.String("completion")))
	}
	if cost := o.inst.Cost.CostFn()(o.model, usage.PromptTokens, usage.CompletionTokens); cost > 0 {
		o.inst.CostTotal.Add(ctx, cost, attrs)
	}
}

var _ tunacode.Provider = (*ObservedProvider)(nil)
