package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"botweave/internal/domain"
	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/orchestration/metrics"
	"botweave/internal/orchestration/tracing"
	"botweave/internal/workflow"
)

// RunningSource reports the running adapters keyed by bot id.
// *adapter.Manager satisfies it.
type RunningSource interface {
	Running() map[int64]string
}

// Scheduler fires schedule-triggered workflows from cron and interval
// entries. Entries install through Resync, which the workflow cache's
// reload hook calls; overlapping fires of one entry are skipped, not
// queued.
type Scheduler struct {
	cron     *cron.Cron
	cache    *workflow.Cache
	bots     domain.BotRepository
	subs     domain.SubscriptionRepository
	adapters RunningSource
	tracer   trace.Tracer
	counters *metrics.Counters
	loc      *time.Location

	mu      sync.Mutex
	entries map[int64]scheduleEntry
}

type scheduleEntry struct {
	id   cron.EntryID
	name string
	desc string
}

// SchedulerParams collects the collaborators a Scheduler needs.
type SchedulerParams struct {
	Cache         *workflow.Cache
	Bots          domain.BotRepository
	Subscriptions domain.SubscriptionRepository
	Adapters      RunningSource
	Location      *time.Location
	Tracer        trace.Tracer
	Counters      *metrics.Counters
}

// NewScheduler creates a scheduler. Nothing fires until Start.
func NewScheduler(p SchedulerParams) *Scheduler {
	if p.Location == nil {
		p.Location = time.Local
	}
	if p.Tracer == nil {
		p.Tracer = noop.NewTracerProvider().Tracer("orchestration")
	}
	if p.Counters == nil {
		p.Counters = metrics.NewCounters()
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(p.Location),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
		),
		cache:    p.Cache,
		bots:     p.Bots,
		subs:     p.Subscriptions,
		adapters: p.Adapters,
		tracer:   p.Tracer,
		counters: p.Counters,
		loc:      p.Location,
		entries:  make(map[int64]scheduleEntry),
	}
}

// Start begins firing installed entries.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info(log.CatScheduler, "scheduler started", "timezone", s.loc.String())
}

// Stop halts firing without waiting for in-flight ticks; a workflow
// mid-run completes on its own goroutine.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Info(log.CatScheduler, "scheduler stopped")
}

// Resync drops every installed entry and installs one per scheduled
// workflow currently in the cache, so cron entries always track the
// enabled workflow set. It returns how many entries installed.
func (s *Scheduler) Resync() int {
	scheduled := s.cache.Scheduled()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ent := range s.entries {
		s.cron.Remove(ent.id)
	}
	s.entries = make(map[int64]scheduleEntry, len(scheduled))

	for _, cw := range scheduled {
		spec, err := scheduleSpec(cw.Def.Schedule)
		if err != nil {
			log.ErrorErr(log.CatScheduler, "skipping workflow with invalid schedule", err,
				"workflow_id", cw.ID, "workflow", cw.Name)
			continue
		}
		id, err := s.cron.AddFunc(spec, func() { s.tick(cw) })
		if err != nil {
			log.ErrorErr(log.CatScheduler, "failed to install schedule", err,
				"workflow_id", cw.ID, "workflow", cw.Name, "spec", spec)
			continue
		}
		desc := describeSchedule(cw.Def.Schedule)
		s.entries[cw.ID] = scheduleEntry{id: id, name: cw.Name, desc: desc}
		log.Info(log.CatScheduler, "schedule installed",
			"workflow_id", cw.ID, "workflow", cw.Name, "schedule", desc)
	}
	return len(s.entries)
}

// JobInfo describes one installed schedule entry.
type JobInfo struct {
	WorkflowID int64     `json:"workflow_id"`
	Workflow   string    `json:"workflow"`
	Schedule   string    `json:"schedule"`
	Next       time.Time `json:"next_run"`
}

// Jobs returns the installed entries ordered by workflow id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.entries))
	for wfID, ent := range s.entries {
		out = append(out, JobInfo{
			WorkflowID: wfID,
			Workflow:   ent.name,
			Schedule:   ent.desc,
			Next:       s.cron.Entry(ent.id).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out
}

// tick runs one schedule fire: fan the workflow out to every running
// bot whose owner subscribes to it. Bots execute sequentially; one
// failing bot never stops the rest.
func (s *Scheduler) tick(cw *workflow.CachedWorkflow) {
	s.counters.TickFired()

	ctx, span := s.tracer.Start(context.Background(), tracing.SpanSchedulerTick, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.Int64(tracing.AttrWorkflowID, cw.ID),
		attribute.String(tracing.AttrWorkflowName, cw.Name),
	)

	bots := s.subscribedRunningBots(cw.ID)
	span.SetAttributes(attribute.Int(tracing.AttrScheduleBots, len(bots)))
	if len(bots) == 0 {
		log.Debug(log.CatScheduler, "no subscribed running bots",
			"workflow_id", cw.ID, "workflow", cw.Name)
		return
	}

	handled := 0
	for _, bot := range bots {
		ev := event.NewScheduled(event.ScheduledParams{
			Protocol:     string(bot.Protocol),
			BotID:        bot.ID,
			SelfID:       bot.AppID(),
			WorkflowName: cw.Name,
		})
		s.counters.RunStarted()
		outcome, err := cw.Engine.Execute(ctx, ev)
		if err != nil {
			s.counters.RunFailed()
			log.ErrorErr(log.CatScheduler, "scheduled workflow failed", err,
				"workflow_id", cw.ID, "workflow", cw.Name, "bot_id", bot.ID)
			continue
		}
		if !outcome.Handled {
			continue
		}
		handled++
		s.counters.RunHandled()
		if outcome.Response != nil {
			// A scheduled run has no conversation to reply into. The
			// queued response is dropped; steps that need delivery
			// name an explicit target through the endpoint node.
			log.Debug(log.CatScheduler, "discarding response without reply target",
				"workflow_id", cw.ID, "workflow", cw.Name, "bot_id", bot.ID)
		}
	}

	if handled > 0 {
		log.Info(log.CatScheduler, "scheduled workflow complete",
			"workflow_id", cw.ID, "workflow", cw.Name, "handled", handled, "bots", len(bots))
	} else {
		log.Debug(log.CatScheduler, "scheduled workflow produced no results",
			"workflow_id", cw.ID, "workflow", cw.Name, "bots", len(bots))
	}
}

// subscribedRunningBots resolves the running bots whose owners hold an
// enabled subscription to the workflow, ordered by bot id.
func (s *Scheduler) subscribedRunningBots(workflowID int64) []*domain.Bot {
	subs, err := s.subs.ListByWorkflow(workflowID)
	if err != nil {
		log.ErrorErr(log.CatScheduler, "failed to load subscribers", err, "workflow_id", workflowID)
		return nil
	}
	if len(subs) == 0 {
		return nil
	}
	owners := make(map[int64]bool, len(subs))
	for _, sub := range subs {
		owners[sub.UserID] = true
	}

	running := s.adapters.Running()
	ids := make([]int64, 0, len(running))
	for id := range running {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*domain.Bot
	for _, id := range ids {
		bot, err := s.bots.FindByID(id)
		if err != nil {
			log.Warn(log.CatScheduler, "running bot missing from store", "bot_id", id)
			continue
		}
		if !bot.Enabled || !owners[bot.OwnerID] {
			continue
		}
		out = append(out, bot)
	}
	return out
}

// scheduleSpec converts a workflow schedule block to a cron spec.
// Intervals become @every descriptors; cron expressions stay the
// standard five fields.
func scheduleSpec(sched *workflow.Schedule) (string, error) {
	if sched == nil {
		return "", errors.New("missing schedule block")
	}
	switch sched.Type {
	case "interval":
		if sched.IntervalMinutes <= 0 {
			return "", fmt.Errorf("interval must be positive, got %d", sched.IntervalMinutes)
		}
		return fmt.Sprintf("@every %dm", sched.IntervalMinutes), nil
	case "cron":
		expr := strings.TrimSpace(sched.Cron)
		if expr == "" {
			return "", errors.New("empty cron expression")
		}
		if len(strings.Fields(expr)) != 5 {
			return "", fmt.Errorf("cron expression needs 5 fields, got %q", sched.Cron)
		}
		return expr, nil
	default:
		return "", fmt.Errorf("unknown schedule type %q", sched.Type)
	}
}

// describeSchedule renders a short human description for logs and the
// management API.
func describeSchedule(sched *workflow.Schedule) string {
	if sched == nil {
		return ""
	}
	if sched.Type == "interval" {
		m := sched.IntervalMinutes
		if m >= 60 && m%60 == 0 {
			return fmt.Sprintf("every %dh", m/60)
		}
		return fmt.Sprintf("every %dm", m)
	}
	return "cron " + strings.TrimSpace(sched.Cron)
}

// cronLogger adapts the process logger to the cron library's
// interface. Skip notices from the still-running wrapper land at
// debug level.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug(log.CatScheduler, msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.ErrorErr(log.CatScheduler, msg, err, keysAndValues...)
}
