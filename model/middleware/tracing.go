package middleware

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumenanalytics/agentd/model"
	"github.com/lumenanalytics/agentd/telemetry"
)

// tracedClient wraps a model.Client so every Complete/Stream call runs inside
// a client-kind span, recording token usage and stop reason as span events
// and any failure via RecordError/SetStatus.
type tracedClient struct {
	next   model.Client
	tracer telemetry.Tracer
	logger telemetry.Logger
}

// NewTracingMiddleware returns a model.Client middleware that traces every
// LLM call. tracer/logger may be nil, in which case calls pass through
// untraced.
func NewTracingMiddleware(tracer telemetry.Tracer, logger telemetry.Logger) func(model.Client) model.Client {
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return func(next model.Client) model.Client {
		if next == nil {
			return nil
		}
		return &tracedClient{next: next, tracer: tracer, logger: logger}
	}
}

// Complete traces a single non-streaming model invocation.
func (c *tracedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	ctx, span := c.tracer.Start(ctx, "model.complete", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("model.class", string(req.ModelClass)),
	))
	defer span.End()

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model complete failed")
		c.logger.Error(ctx, "model complete failed", "error", err)
		return nil, err
	}
	recordUsage(span, resp.Usage)
	span.AddEvent("model.stop", "stop_reason", resp.StopReason)
	span.SetStatus(codes.Ok, "ok")
	return resp, nil
}

// Stream traces one streaming model invocation. The returned span stays open
// until the wrapped Streamer is closed, so usage/stop events accumulated
// across Recv calls land on the same span.
func (c *tracedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	ctx, span := c.tracer.Start(ctx, "model.stream", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("model.class", string(req.ModelClass)),
	))
	stream, err := c.next.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model stream failed")
		span.End()
		return nil, err
	}
	return &tracedStream{next: stream, span: span, logger: c.logger}, nil
}

type tracedStream struct {
	next   model.Streamer
	span   telemetry.Span
	logger telemetry.Logger
	failed bool
}

func (s *tracedStream) Recv() (model.Chunk, error) {
	chunk, err := s.next.Recv()
	if err != nil && err != io.EOF {
		s.failed = true
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, "model stream recv failed")
		return chunk, err
	}
	switch chunk.Type {
	case model.ChunkTypeUsage:
		if chunk.UsageDelta != nil {
			recordUsage(s.span, *chunk.UsageDelta)
		}
	case model.ChunkTypeStop:
		s.span.AddEvent("model.stop", "stop_reason", chunk.StopReason)
	}
	return chunk, err
}

func (s *tracedStream) Close() error {
	if !s.failed {
		s.span.SetStatus(codes.Ok, "ok")
	}
	s.span.End()
	return s.next.Close()
}

func (s *tracedStream) Metadata() map[string]any { return s.next.Metadata() }

func recordUsage(span telemetry.Span, usage model.TokenUsage) {
	if usage.TotalTokens == 0 {
		return
	}
	span.AddEvent("model.usage",
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"total_tokens", usage.TotalTokens,
		"cache_read_tokens", usage.CacheReadTokens,
		"cache_write_tokens", usage.CacheWriteTokens,
	)
}
