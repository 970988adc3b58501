// Package orchestration routes inbound events to matching workflows
// and fires schedule-triggered workflows from cron entries.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"botweave/internal/adapter"
	"botweave/internal/domain"
	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
	"botweave/internal/orchestration/metrics"
	"botweave/internal/orchestration/tracing"
	"botweave/internal/workflow"
)

// sendTimeout bounds one outbound delivery attempt.
const sendTimeout = 30 * time.Second

// Sender delivers a workflow response back through the adapter the
// event arrived on. *adapter.Manager satisfies it.
type Sender interface {
	Deliver(ctx context.Context, ev event.Event, msg message.Message) error
}

// Dispatcher routes one inbound event to every matching workflow. All
// matches run concurrently; completions drain in arrival order and a
// failed run or send never stops the remainder.
type Dispatcher struct {
	bots     domain.BotRepository
	cache    *workflow.Cache
	sender   Sender
	tracer   trace.Tracer
	counters *metrics.Counters
}

// DispatcherParams collects the collaborators a Dispatcher needs.
type DispatcherParams struct {
	Bots     domain.BotRepository
	Cache    *workflow.Cache
	Sender   Sender
	Tracer   trace.Tracer
	Counters *metrics.Counters
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(p DispatcherParams) *Dispatcher {
	if p.Tracer == nil {
		p.Tracer = noop.NewTracerProvider().Tracer("orchestration")
	}
	if p.Counters == nil {
		p.Counters = metrics.NewCounters()
	}
	return &Dispatcher{
		bots:     p.Bots,
		cache:    p.Cache,
		sender:   p.Sender,
		tracer:   p.Tracer,
		counters: p.Counters,
	}
}

// Counters returns the pipeline counters the dispatcher increments.
func (d *Dispatcher) Counters() *metrics.Counters { return d.counters }

// Handler returns the adapter callback that feeds events into
// dispatch. Each event runs on its own goroutine, so a slow workflow
// never blocks an adapter's read loop. A started run is never
// cancelled by the caller; partial work completes.
func (d *Dispatcher) Handler() adapter.Handler {
	return func(ev event.Event) {
		log.SafeGo("dispatch", func() {
			d.Dispatch(context.Background(), ev)
		})
	}
}

// runResult is one workflow completion.
type runResult struct {
	wf      *workflow.CachedWorkflow
	outcome *workflow.Outcome
	err     error
}

// Dispatch runs every workflow that matches ev and delivers the
// responses of handled runs. It returns once all matches have
// completed and their responses were attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) {
	if ev.Kind() == event.KindMeta {
		log.Debug(log.CatDispatch, "skipping meta event",
			"protocol", ev.Protocol(), "bot_id", ev.BotID())
		return
	}
	d.counters.EventReceived()

	trigger, ok := triggerFor(ev.Kind())
	if !ok {
		log.Warn(log.CatDispatch, "event kind has no trigger mapping", "kind", string(ev.Kind()))
		return
	}

	name := eventName(ev)
	matched := d.cache.Match(trigger, ev.Protocol(), d.resolveOwner(ev), name)
	if len(matched) == 0 {
		log.Debug(log.CatDispatch, "no workflows matched",
			"trigger", trigger, "protocol", ev.Protocol(), "session", ev.SessionID())
		return
	}
	d.counters.EventMatched()

	// One correlation id per dispatch ties its log lines together. The
	// webhook route stamps its own id when the event came through it.
	traceID := tracing.TraceID(ctx)
	if traceID == "" {
		traceID = tracing.NewTraceID()
		ctx = tracing.WithTraceID(ctx, traceID)
	}

	ctx, span := d.tracer.Start(ctx, tracing.SpanDispatchEvent, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String(tracing.AttrEventKind, string(ev.Kind())),
		attribute.String(tracing.AttrEventProtocol, ev.Protocol()),
		attribute.String(tracing.AttrEventSession, ev.SessionID()),
		attribute.String(tracing.AttrWorkflowTrigger, trigger),
		attribute.Int64(tracing.AttrBotID, ev.BotID()),
		attribute.Int(tracing.AttrDispatchMatched, len(matched)),
	)
	if name != "" {
		span.SetAttributes(attribute.String(tracing.AttrEventName, name))
	}

	results := make(chan runResult, len(matched))
	for _, cw := range matched {
		d.counters.RunStarted()
		go func() {
			defer func() {
				if r := recover(); r != nil {
					results <- runResult{wf: cw, err: fmt.Errorf("workflow panic: %v", r)}
				}
			}()
			outcome, err := cw.Engine.Execute(ctx, ev)
			results <- runResult{wf: cw, outcome: outcome, err: err}
		}()
	}

	handled := 0
	for range matched {
		res := <-results
		if res.err != nil {
			d.counters.RunFailed()
			span.AddEvent(tracing.EventErrorOccurred, trace.WithAttributes(
				attribute.String(tracing.AttrErrorMessage, res.err.Error()),
				attribute.Int64(tracing.AttrWorkflowID, res.wf.ID),
			))
			log.ErrorErr(log.CatDispatch, "workflow execution failed", res.err,
				"workflow_id", res.wf.ID, "workflow", res.wf.Name, "trace_id", traceID)
			continue
		}
		if !res.outcome.Handled {
			continue
		}
		handled++
		d.counters.RunHandled()
		if res.outcome.Response == nil {
			continue
		}
		if err := d.deliver(ctx, ev, res.outcome.Response); err != nil {
			d.counters.SendFailed()
			log.ErrorErr(log.CatDispatch, "response delivery failed", err,
				"workflow_id", res.wf.ID, "workflow", res.wf.Name, "session", ev.SessionID(), "trace_id", traceID)
			continue
		}
		d.counters.ResponseDelivered()
		span.AddEvent(tracing.EventResponseDelivered, trace.WithAttributes(
			attribute.Int64(tracing.AttrWorkflowID, res.wf.ID),
		))
	}

	span.SetAttributes(attribute.Int(tracing.AttrDispatchHandled, handled))
	log.Debug(log.CatDispatch, "dispatch complete",
		"matched", len(matched), "handled", handled, "session", ev.SessionID(), "trace_id", traceID)
}

// deliver sends one response back through the originating adapter,
// bounded by sendTimeout.
func (d *Dispatcher) deliver(ctx context.Context, ev event.Event, msg message.Message) error {
	ctx, span := d.tracer.Start(ctx, tracing.SpanAdapterSend, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String(tracing.AttrEventProtocol, ev.Protocol()),
		attribute.String(tracing.AttrEventSession, ev.SessionID()),
	)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return d.sender.Deliver(sendCtx, ev, msg)
}

// resolveOwner maps the event's bot to its owning user. Unknown bots
// dispatch with an unresolved owner, which bypasses subscription
// filtering the same way events without a user context do.
func (d *Dispatcher) resolveOwner(ev event.Event) int64 {
	bot, err := d.bots.FindByID(ev.BotID())
	if err != nil {
		var nf *domain.BotNotFoundError
		if errors.As(err, &nf) {
			log.Warn(log.CatDispatch, "event from unknown bot", "bot_id", ev.BotID())
		} else {
			log.ErrorErr(log.CatDispatch, "bot lookup failed", err, "bot_id", ev.BotID())
		}
		return 0
	}
	return bot.OwnerID
}

// triggerFor maps an event kind to the workflow trigger type it fires.
func triggerFor(k event.Kind) (string, bool) {
	switch k {
	case event.KindMessage:
		return workflow.TriggerMessage, true
	case event.KindNotice:
		return workflow.TriggerNotice, true
	case event.KindRequest:
		return workflow.TriggerRequest, true
	case event.KindScheduled:
		return workflow.TriggerSchedule, true
	default:
		return "", false
	}
}

// eventName returns the subtype workflow event filters match against:
// the notice type for notices, the request type for requests, and ""
// for kinds without subtypes.
func eventName(ev event.Event) string {
	switch e := ev.(type) {
	case *event.NoticeEvent:
		return e.NoticeType()
	case *event.RequestEvent:
		return e.RequestType()
	default:
		return ""
	}
}
