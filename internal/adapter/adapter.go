// Package adapter defines the protocol adapter contract and the manager
// that owns running adapter instances.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
)

// startTimeout bounds one adapter start attempt.
const startTimeout = 10 * time.Second

// ErrUnknownProtocol is returned when no constructor is registered for
// the requested protocol.
var ErrUnknownProtocol = errors.New("unknown protocol")

// Handler consumes one parsed inbound event.
type Handler func(ev event.Event)

// Status reports an adapter's runtime condition for the management API.
type Status struct {
	Protocol  string         `json:"protocol"`
	Running   bool           `json:"running"`
	Connected bool           `json:"connected"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	Messages  int64          `json:"messages"`
	LastError string         `json:"last_error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Adapter is one protocol connection serving one bot.
type Adapter interface {
	// Start brings the connection up. The context carries the start
	// budget; a failed start leaves the adapter stopped.
	Start(ctx context.Context) error

	// Stop tears the connection down, best effort.
	Stop() error

	// Protocol returns the protocol name, e.g. "qq" or "onebot".
	Protocol() string

	// CacheKeyField names the config field that routes inbound webhooks
	// to this bot, or "" for protocols without webhook routing.
	CacheKeyField() string

	// SetHandler installs the function invoked for each parsed event.
	SetHandler(h Handler)

	// Send delivers a message into the conversation ev arrived from.
	Send(ctx context.Context, ev event.Event, msg message.Message) error

	// CallAPI invokes a protocol action with raw parameters.
	CallAPI(ctx context.Context, action string, params map[string]any) (any, error)

	// Status reports runtime details.
	Status() Status
}

// Constructor builds an adapter for one bot from its config bag.
type Constructor func(botID int64, config map[string]any) (Adapter, error)

type runningEntry struct {
	adapter    Adapter
	hasHandler bool
}

// Manager holds the protocol registry and the running adapter per bot.
// All start/stop transitions for one bot serialize through that bot's
// lock; the locks map itself is guarded by mu.
type Manager struct {
	mu       sync.Mutex
	ctors    map[string]Constructor
	running  map[int64]runningEntry
	botLocks map[int64]*sync.Mutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		ctors:    make(map[string]Constructor),
		running:  make(map[int64]runningEntry),
		botLocks: make(map[int64]*sync.Mutex),
	}
}

// Register installs a protocol constructor.
func (m *Manager) Register(protocol string, ctor Constructor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctors[protocol] = ctor
	log.Info(log.CatAdapter, "adapter registered", "protocol", protocol)
}

// Protocols lists the registered protocol names, sorted.
func (m *Manager) Protocols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.ctors))
	for name := range m.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) botLock(botID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.botLocks[botID]
	if !ok {
		l = &sync.Mutex{}
		m.botLocks[botID] = l
	}
	return l
}

// Start brings up the adapter for one bot. Calling Start while the bot
// is already running is an idempotent success: a supplied handler is
// attached if the running adapter has none, otherwise nothing happens.
func (m *Manager) Start(ctx context.Context, botID int64, protocol string, config map[string]any, h Handler) error {
	m.mu.Lock()
	ctor, ok := m.ctors[protocol]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProtocol, protocol)
	}

	lock := m.botLock(botID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	entry, alreadyRunning := m.running[botID]
	m.mu.Unlock()

	if alreadyRunning {
		if h != nil && !entry.hasHandler {
			entry.adapter.SetHandler(h)
			entry.hasHandler = true
			m.mu.Lock()
			m.running[botID] = entry
			m.mu.Unlock()
			log.Info(log.CatAdapter, "handler attached to running adapter", "bot_id", botID)
		} else {
			log.Debug(log.CatAdapter, "adapter already running", "bot_id", botID)
		}
		return nil
	}

	ad, err := ctor(botID, config)
	if err != nil {
		return fmt.Errorf("failed to create %s adapter: %w", protocol, err)
	}
	if h != nil {
		ad.SetHandler(h)
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := ad.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start %s adapter for bot %d: %w", protocol, botID, err)
	}

	m.mu.Lock()
	m.running[botID] = runningEntry{adapter: ad, hasHandler: h != nil}
	m.mu.Unlock()

	log.Info(log.CatAdapter, "adapter started", "bot_id", botID, "protocol", protocol)
	return nil
}

// Stop tears down the adapter for one bot. Stopping a bot that is not
// running is a no-op success.
func (m *Manager) Stop(botID int64) error {
	lock := m.botLock(botID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	entry, ok := m.running[botID]
	if ok {
		delete(m.running, botID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	err := entry.adapter.Stop()
	if err != nil {
		log.ErrorErr(log.CatAdapter, "adapter stop failed", err, "bot_id", botID)
		return err
	}
	log.Info(log.CatAdapter, "adapter stopped", "bot_id", botID)
	return nil
}

// StopAll stops every running adapter. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Get returns the running adapter for a bot.
func (m *Manager) Get(botID int64) (Adapter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.running[botID]
	if !ok {
		return nil, false
	}
	return entry.adapter, true
}

// Running maps each running bot id to its protocol name.
func (m *Manager) Running() map[int64]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]string, len(m.running))
	for id, entry := range m.running {
		out[id] = entry.adapter.Protocol()
	}
	return out
}

// IsRunning reports whether the bot has a running adapter.
func (m *Manager) IsRunning(botID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[botID]
	return ok
}

// StatusOf reports the runtime status of one bot's adapter.
func (m *Manager) StatusOf(botID int64) (Status, bool) {
	ad, ok := m.Get(botID)
	if !ok {
		return Status{}, false
	}
	return ad.Status(), true
}

// CallAPI routes a protocol action to the adapter of the bot the event
// belongs to. It satisfies the endpoint node's caller contract.
func (m *Manager) CallAPI(ctx context.Context, ev event.Event, action string, params map[string]any) (any, error) {
	ad, ok := m.Get(ev.BotID())
	if !ok {
		return nil, fmt.Errorf("no running adapter for bot %d", ev.BotID())
	}
	return ad.CallAPI(ctx, action, params)
}

// Deliver sends a message through the adapter of the bot the event
// belongs to.
func (m *Manager) Deliver(ctx context.Context, ev event.Event, msg message.Message) error {
	ad, ok := m.Get(ev.BotID())
	if !ok {
		return fmt.Errorf("no running adapter for bot %d", ev.BotID())
	}
	return ad.Send(ctx, ev, msg)
}
