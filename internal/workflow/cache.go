package workflow

import (
	"sync"

	"go.opentelemetry.io/otel/trace"

	"botweave/internal/domain"
	"botweave/internal/log"
)

// CachedWorkflow is one enabled workflow with its precompiled engine.
type CachedWorkflow struct {
	ID          int64
	Name        string
	Priority    int
	TriggerType string
	Def         *Definition
	Engine      *Engine
}

// Cache holds the precompiled engines for all enabled workflows. Dispatch
// matches against the cached slice, so a reload swaps the whole slice at
// once and in-flight matches keep the snapshot they started with.
type Cache struct {
	mu    sync.RWMutex
	items []*CachedWorkflow

	repo    domain.WorkflowRepository
	subs    domain.SubscriptionRepository
	reg     *Registry
	globals *Globals
	debug   *DebugStore

	maxSteps int
	tracer   trace.Tracer

	hookMu     sync.Mutex
	reloadHook func()
}

// CacheParams collects the collaborators a Cache needs.
type CacheParams struct {
	Workflows     domain.WorkflowRepository
	Subscriptions domain.SubscriptionRepository
	Registry      *Registry
	Globals       *Globals
	Debug         *DebugStore
	MaxSteps      int
	Tracer        trace.Tracer
}

// NewCache returns an empty cache. Call Reload to populate it.
func NewCache(p CacheParams) *Cache {
	return &Cache{
		repo:     p.Workflows,
		subs:     p.Subscriptions,
		reg:      p.Registry,
		globals:  p.Globals,
		debug:    p.Debug,
		maxSteps: p.MaxSteps,
		tracer:   p.Tracer,
	}
}

// SetReloadHook registers a function invoked after every successful
// reload, outside the cache lock. The scheduler uses it to resync its
// cron entries with the new workflow set.
func (c *Cache) SetReloadHook(fn func()) {
	c.hookMu.Lock()
	c.reloadHook = fn
	c.hookMu.Unlock()
}

// Reload rebuilds the cache from the enabled workflows in the database
// and returns how many loaded. Workflows whose configuration fails to
// parse are skipped with an error log; one broken definition must not
// take dispatch down.
func (c *Cache) Reload() (int, error) {
	enabled := true
	records, err := c.repo.List(domain.WorkflowFilter{Enabled: &enabled})
	if err != nil {
		return 0, err
	}

	items := make([]*CachedWorkflow, 0, len(records))
	byTrigger := make(map[string]int)
	for _, wf := range records {
		def, err := ParseWorkflow(wf)
		if err == nil {
			err = def.Validate()
		}
		if err != nil {
			log.ErrorErr(log.CatEngine, "skipping workflow with invalid config", err,
				"workflow_id", wf.ID, "name", wf.Name)
			continue
		}
		items = append(items, &CachedWorkflow{
			ID:          wf.ID,
			Name:        def.Name,
			Priority:    wf.Priority,
			TriggerType: def.TriggerType,
			Def:         def,
			Engine: NewEngine(EngineParams{
				ID:       wf.ID,
				Name:     def.Name,
				Def:      def,
				Registry: c.reg,
				Globals:  c.globals,
				Debug:    c.debug,
				MaxSteps: c.maxSteps,
				Tracer:   c.tracer,
			}),
		})
		byTrigger[def.TriggerType]++
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()

	log.Info(log.CatEngine, "workflow cache reloaded",
		"total", len(items),
		"message", byTrigger[TriggerMessage],
		"schedule", byTrigger[TriggerSchedule],
		"notice", byTrigger[TriggerNotice],
		"request", byTrigger[TriggerRequest])

	c.hookMu.Lock()
	hook := c.reloadHook
	c.hookMu.Unlock()
	if hook != nil {
		hook()
	}
	return len(items), nil
}

// Match returns the cached workflows that should run for an event, in
// priority order. trigger is the event's trigger type, protocol the
// originating adapter, ownerID the platform user's database id (0 when
// unresolved), and eventName the notice/request subtype used by event
// filters ("" for plain messages).
//
// A workflow matches when its trigger type equals trigger, its protocol
// allowlist admits the protocol, its event filter (when both it and
// eventName are set) contains eventName, and, for resolved users, the
// user subscribes to it.
func (c *Cache) Match(trigger, protocol string, ownerID int64, eventName string) []*CachedWorkflow {
	var subscribed map[int64]bool
	if ownerID > 0 && c.subs != nil {
		subs, err := c.subs.ListByUser(ownerID)
		if err != nil {
			log.ErrorErr(log.CatEngine, "failed to load subscriptions", err, "user_id", ownerID)
			return nil
		}
		subscribed = make(map[int64]bool, len(subs))
		for _, s := range subs {
			subscribed[s.WorkflowID] = true
		}
	}

	c.mu.RLock()
	items := c.items
	c.mu.RUnlock()

	var matched []*CachedWorkflow
	for _, item := range items {
		if item.TriggerType != trigger {
			continue
		}
		if !item.Def.AllowsProtocol(protocol) {
			continue
		}
		if eventName != "" && len(item.Def.EventFilter) > 0 && !containsString(item.Def.EventFilter, eventName) {
			continue
		}
		if subscribed != nil && !subscribed[item.ID] {
			continue
		}
		matched = append(matched, item)
	}
	return matched
}

// All returns the cached workflow snapshot in priority order.
func (c *Cache) All() []*CachedWorkflow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*CachedWorkflow, len(c.items))
	copy(out, c.items)
	return out
}

// ByID returns one cached workflow.
func (c *Cache) ByID(id int64) (*CachedWorkflow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if item.ID == id {
			return item, true
		}
	}
	return nil, false
}

// Scheduled returns the cached workflows with a schedule trigger.
func (c *Cache) Scheduled() []*CachedWorkflow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*CachedWorkflow
	for _, item := range c.items {
		if item.TriggerType == TriggerSchedule && item.Def.Schedule != nil {
			out = append(out, item)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
