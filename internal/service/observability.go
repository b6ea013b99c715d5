package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UseCaseEvent captures lightweight execution telemetry for a service use case.
type UseCaseEvent struct {
	Name      string
	Duration  time.Duration
	Success   bool
	Err       error
	Fields    map[string]any
	StartedAt time.Time
}

// UseCaseObserver receives use-case execution events.
type UseCaseObserver interface {
	ObserveUseCase(ctx context.Context, event UseCaseEvent)
}

// NoopUseCaseObserver ignores all events.
type NoopUseCaseObserver struct{}

func (NoopUseCaseObserver) ObserveUseCase(context.Context, UseCaseEvent) {}

type logUseCaseObserver struct {
	logger *slog.Logger
}

// NewLogUseCaseObserver writes service use-case events to the provided writer.
// Successful events are logged at info, failures at warn; level filters both.
func NewLogUseCaseObserver(w io.Writer, level slog.Level) UseCaseObserver {
	if w == nil {
		return NoopUseCaseObserver{}
	}
	return &logUseCaseObserver{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

func (o *logUseCaseObserver) ObserveUseCase(ctx context.Context, event UseCaseEvent) {
	attrs := make([]any, 0, 8+len(event.Fields)*2)
	attrs = append(attrs,
		"use_case", event.Name,
		"duration_ms", event.Duration.Milliseconds(),
		"success", event.Success,
	)
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err.Error())
		o.logger.WarnContext(ctx, "service_use_case", attrs...)
		return
	}
	o.logger.InfoContext(ctx, "service_use_case", attrs...)
}

type traceUseCaseObserver struct {
	tracer trace.Tracer
}

// NewTraceUseCaseObserver records one span per use case. Spans are created
// after the fact with the event's own start and end timestamps.
func NewTraceUseCaseObserver(tp trace.TracerProvider) UseCaseObserver {
	if tp == nil {
		return NoopUseCaseObserver{}
	}
	return &traceUseCaseObserver{tracer: tp.Tracer("github.com/alexanderramin/kanban/internal/service")}
}

func (o *traceUseCaseObserver) ObserveUseCase(ctx context.Context, event UseCaseEvent) {
	_, span := o.tracer.Start(ctx, event.Name, trace.WithTimestamp(event.StartedAt))
	attrs := make([]attribute.KeyValue, 0, len(event.Fields)+1)
	attrs = append(attrs, attribute.Bool("success", event.Success))
	for k, v := range event.Fields {
		attrs = append(attrs, attribute.String(k, fmt.Sprint(v)))
	}
	span.SetAttributes(attrs...)
	if event.Err != nil {
		span.RecordError(event.Err)
		span.SetStatus(codes.Error, event.Err.Error())
	}
	span.End(trace.WithTimestamp(event.StartedAt.Add(event.Duration)))
}

type multiUseCaseObserver []UseCaseObserver

func (m multiUseCaseObserver) ObserveUseCase(ctx context.Context, event UseCaseEvent) {
	for _, o := range m {
		o.ObserveUseCase(ctx, event)
	}
}

// CombineObservers fans events out to every non-nil observer.
func CombineObservers(observers ...UseCaseObserver) UseCaseObserver {
	var out multiUseCaseObserver
	for _, obs := range observers {
		if obs == nil {
			continue
		}
		if _, noop := obs.(NoopUseCaseObserver); noop {
			continue
		}
		out = append(out, obs)
	}
	switch len(out) {
	case 0:
		return NoopUseCaseObserver{}
	case 1:
		return out[0]
	}
	return out
}
