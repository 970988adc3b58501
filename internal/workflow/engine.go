package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
)

// DefaultMaxSteps bounds one engine run when no limit is configured.
// Loop iterations count as steps.
const DefaultMaxSteps = 200

// Outcome is the result of one engine execution.
type Outcome struct {
	// Handled reports whether the workflow produced a response.
	Handled bool

	// Response is the outbound message, nil when the workflow handled
	// the event without queuing one.
	Response message.Message

	// Continue reports whether later workflows may also process the
	// event. Advisory: the dispatcher currently runs all matches
	// regardless.
	Continue bool
}

// Engine executes one workflow definition. Engines are precompiled at
// cache load and reused across events; all per-run state lives in the
// Context, so a single Engine may run concurrently.
type Engine struct {
	id       int64
	name     string
	def      *Definition
	reg      *Registry
	globals  *Globals
	debug    *DebugStore
	maxSteps int
	tracer   trace.Tracer
}

// EngineParams collects the collaborators an Engine needs.
type EngineParams struct {
	ID       int64
	Name     string
	Def      *Definition
	Registry *Registry
	Globals  *Globals
	Debug    *DebugStore
	MaxSteps int
	Tracer   trace.Tracer
}

// NewEngine precompiles an engine for a workflow definition.
func NewEngine(p EngineParams) *Engine {
	if p.MaxSteps <= 0 {
		p.MaxSteps = DefaultMaxSteps
	}
	if p.Tracer == nil {
		p.Tracer = noop.NewTracerProvider().Tracer("workflow")
	}
	name := p.Name
	if name == "" {
		name = p.Def.Name
	}
	return &Engine{
		id:       p.ID,
		name:     name,
		def:      p.Def,
		reg:      p.Registry,
		globals:  p.Globals,
		debug:    p.Debug,
		maxSteps: p.MaxSteps,
		tracer:   p.Tracer,
	}
}

// Name returns the workflow name the engine was compiled for.
func (e *Engine) Name() string { return e.name }

// Definition returns the compiled definition.
func (e *Engine) Definition() *Definition { return e.def }

// Execute runs the workflow against an event. Only context cancellation
// surfaces as an error; node failures are absorbed by the step loop and
// reported through the debug trace and logs.
func (e *Engine) Execute(ctx context.Context, ev event.Event) (*Outcome, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.execute", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("workflow.id", e.id),
		attribute.String("workflow.name", e.name),
		attribute.String("event.kind", string(ev.Kind())),
	)

	if e.def.TriggerType == TriggerMessage {
		if _, ok := ev.(*event.MessageEvent); !ok {
			return &Outcome{}, nil
		}
	}
	if !e.def.AllowsProtocol(ev.Protocol()) {
		return &Outcome{}, nil
	}

	var rec *Recorder
	if e.debug != nil && e.def.Debug {
		rec = NewRecorder(e.id, e.name)
		rec.Start(ev)
	}

	globals := map[string]string(nil)
	if e.globals != nil {
		globals = e.globals.Snapshot(ctx)
	}
	flow := NewContext(ev, globals)

	if err := e.runSteps(ctx, flow, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatEngine, "workflow execution aborted", err, "workflow", e.name)
		if rec != nil {
			e.saveTrace(rec.Finish(false, err.Error()))
		}
		return &Outcome{}, err
	}

	if resp, handled := flow.Response(); handled {
		if rec != nil {
			e.saveTrace(rec.Finish(true, ""))
		}
		span.SetStatus(codes.Ok, "")
		log.Info(log.CatEngine, "workflow handled event",
			"workflow", e.name, "elapsed_ms", time.Since(start).Milliseconds())
		return &Outcome{Handled: true, Response: resp, Continue: e.def.AllowContinue}, nil
	}
	return &Outcome{}, nil
}

// loopFrame tracks one active foreach while its body executes.
type loopFrame struct {
	foreachIdx int
	foreachID  string
	bodyIdx    int
	endID      string
}

// runSteps is the interpreter loop. It walks the step list by index,
// following jumps and loop frames, until the program ends, a node
// breaks the sequence, a cycle is detected, or the step budget runs
// out.
func (e *Engine) runSteps(ctx context.Context, flow *Context, rec *Recorder) error {
	steps := e.def.Steps
	indexByID := make(map[string]int, len(steps))
	for i, s := range steps {
		indexByID[s.ID] = i
	}

	cur := 0
	executed := 0
	visited := make(map[string]bool, len(steps))
	var loops []loopFrame

	for cur < len(steps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if executed >= e.maxSteps {
			log.Error(log.CatEngine, "step budget exhausted",
				"workflow", e.name, "max_steps", e.maxSteps)
			break
		}
		executed++

		step := steps[cur]
		if visited[step.ID] {
			log.Error(log.CatEngine, "cycle detected", "workflow", e.name, "step", step.ID)
			break
		}
		visited[step.ID] = true

		result, brk, err := e.executeStep(ctx, flow, step, rec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.applyOnFail(step, flow)
			cur++
			continue
		}
		if brk {
			break
		}

		if result != nil && result.Bool("loop") {
			if idx, ok := e.enterLoop(result, step.ID, cur, indexByID, &loops, visited); ok {
				cur = idx
				if d := result.Float("delay", 0); d > 0 {
					if err := sleepContext(ctx, time.Duration(d*float64(time.Second))); err != nil {
						return err
					}
				}
				continue
			}
		}

		if result != nil {
			if raw, ok := result["next_node"]; ok {
				if target, _ := raw.(string); target != "" {
					if idx, exists := indexByID[target]; exists {
						cur = idx
						continue
					}
					log.Error(log.CatEngine, "jump target not found",
						"workflow", e.name, "step", step.ID, "target", target)
				}
			}
			if result.Bool("stop_sequence") {
				break
			}
		}

		if len(loops) > 0 {
			if idx, ok := e.loopReturn(step.ID, cur, &loops, visited); ok {
				cur = idx
				continue
			}
		}

		cur++
	}
	return nil
}

// executeStep runs one node with tracing and debug recording. The
// returned bool reports whether the node asked to break the sequence.
func (e *Engine) executeStep(ctx context.Context, flow *Context, step Step, rec *Recorder) (Result, bool, error) {
	n, ok := e.reg.Get(step.Type)
	if !ok {
		log.Error(log.CatEngine, "unknown node type",
			"workflow", e.name, "step", step.ID, "type", step.Type)
		return nil, false, nil
	}

	ctx, span := e.tracer.Start(ctx, "node."+step.Type, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("node.id", step.ID))

	start := time.Now()
	result, err := n.Execute(ctx, flow, step.Config)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatNode, "node execution failed", err,
			"workflow", e.name, "step", step.ID, "type", step.Type)
		if rec != nil {
			rec.RecordError(step.ID, step.Type, err.Error(), flow.Snapshot())
		}
		return nil, false, err
	}

	e.captureOutputs(n, flow, result)
	if rec != nil {
		rec.RecordSuccess(step.ID, step.Type, result, duration, flow.Snapshot())
	}

	brk := false
	if b, isBreaker := n.(Breaker); isBreaker {
		brk = b.ShouldBreak(result)
	}
	return result, brk, nil
}

// captureOutputs writes result keys that match the node's declared
// output ports into the variable scope. This is the only path by which
// a result map publishes variables.
func (e *Engine) captureOutputs(n Node, flow *Context, result Result) {
	if result == nil {
		return
	}
	for _, port := range n.Meta().Outputs {
		if v, ok := result[port.Name]; ok && v != nil {
			flow.SetVariable(port.Name, v)
		}
	}
}

// enterLoop pushes a loop frame and returns the body index to jump to.
// The body's visited mark is cleared so re-entry across iterations is
// not mistaken for a cycle.
func (e *Engine) enterLoop(result Result, stepID string, cur int, indexByID map[string]int, loops *[]loopFrame, visited map[string]bool) (int, bool) {
	body := result.Str("loop_body")
	idx, ok := indexByID[body]
	if body == "" || !ok {
		log.Error(log.CatEngine, "foreach body not found",
			"workflow", e.name, "step", stepID, "body", body)
		return 0, false
	}
	*loops = append(*loops, loopFrame{
		foreachIdx: cur,
		foreachID:  stepID,
		bodyIdx:    idx,
		endID:      result.Str("loop_end"),
	})
	delete(visited, body)
	return idx, true
}

// loopReturn decides whether the step just finished ends the innermost
// loop body. If so it pops the frame, clears the body-range visited
// marks, and returns the foreach index so the next iteration can run.
func (e *Engine) loopReturn(stepID string, cur int, loops *[]loopFrame, visited map[string]bool) (int, bool) {
	steps := e.def.Steps
	frame := (*loops)[len(*loops)-1]
	next := cur + 1

	var returnNow bool
	if frame.endID != "" {
		returnNow = stepID == frame.endID
	} else {
		returnNow = next >= len(steps) ||
			next <= frame.foreachIdx ||
			steps[next].Type == "end" ||
			visited[steps[next].ID]
	}
	if !returnNow {
		return 0, false
	}

	*loops = (*loops)[:len(*loops)-1]
	delete(visited, frame.foreachID)
	for i := frame.bodyIdx; i <= cur && i < len(steps); i++ {
		delete(visited, steps[i].ID)
	}
	return frame.foreachIdx, true
}

// applyOnFail runs a failed step's error policy.
func (e *Engine) applyOnFail(step Step, flow *Context) {
	if step.OnFail == nil || step.OnFail.Action != "send_message" {
		return
	}
	msg := step.OnFail.Message
	if msg == "" {
		msg = "processing failed"
	}
	flow.SetResponse(message.New(message.Text(msg)))
}

// saveTrace persists a finished debug trace. Failures are logged only;
// diagnostics must never fail the run they describe.
func (e *Engine) saveTrace(rec *DebugRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.debug.Save(ctx, rec); err != nil {
		log.ErrorErr(log.CatEngine, "failed to save debug trace", err, "workflow", e.name)
	}
}

// sleepContext waits for d or for cancellation, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
