// Package metrics tracks event pipeline volume for the management API.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Counters accumulates running totals across the event pipeline. All
// increment methods are safe for concurrent use from dispatch and
// scheduler goroutines.
type Counters struct {
	received   atomic.Int64
	matched    atomic.Int64
	runs       atomic.Int64
	handled    atomic.Int64
	errors     atomic.Int64
	delivered  atomic.Int64
	sendErrors atomic.Int64
	duplicates atomic.Int64
	ticks      atomic.Int64

	start time.Time
}

// NewCounters returns zeroed counters with the uptime clock started.
func NewCounters() *Counters {
	return &Counters{start: time.Now()}
}

// EventReceived records one event entering dispatch.
func (c *Counters) EventReceived() { c.received.Add(1) }

// EventMatched records one event that matched at least one workflow.
func (c *Counters) EventMatched() { c.matched.Add(1) }

// RunStarted records one workflow execution.
func (c *Counters) RunStarted() { c.runs.Add(1) }

// RunHandled records one execution that produced a handled result.
func (c *Counters) RunHandled() { c.handled.Add(1) }

// RunFailed records one execution that returned an error.
func (c *Counters) RunFailed() { c.errors.Add(1) }

// ResponseDelivered records one response sent through an adapter.
func (c *Counters) ResponseDelivered() { c.delivered.Add(1) }

// SendFailed records one delivery that errored or timed out.
func (c *Counters) SendFailed() { c.sendErrors.Add(1) }

// DuplicateDropped records one inbound event short-circuited by dedup.
func (c *Counters) DuplicateDropped() { c.duplicates.Add(1) }

// TickFired records one scheduler tick.
func (c *Counters) TickFired() { c.ticks.Add(1) }

// Snapshot returns a consistent-enough copy of the totals for JSON
// responses. Individual fields load atomically; the set as a whole is
// not a transaction.
func (c *Counters) Snapshot() Snapshot {
	var uptime int64
	if !c.start.IsZero() {
		uptime = int64(time.Since(c.start).Seconds())
	}
	return Snapshot{
		UptimeSeconds: uptime,
		Received:      c.received.Load(),
		Matched:       c.matched.Load(),
		Runs:          c.runs.Load(),
		Handled:       c.handled.Load(),
		Errors:        c.errors.Load(),
		Delivered:     c.delivered.Load(),
		SendErrors:    c.sendErrors.Load(),
		Duplicates:    c.duplicates.Load(),
		Ticks:         c.ticks.Load(),
	}
}

// Snapshot holds one point-in-time copy of the pipeline totals.
type Snapshot struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	Received      int64 `json:"events_received"`
	Matched       int64 `json:"events_matched"`
	Runs          int64 `json:"workflow_runs"`
	Handled       int64 `json:"workflows_handled"`
	Errors        int64 `json:"workflow_errors"`
	Delivered     int64 `json:"responses_delivered"`
	SendErrors    int64 `json:"send_errors"`
	Duplicates    int64 `json:"duplicate_events"`
	Ticks         int64 `json:"scheduler_ticks"`
}

// MatchRate returns the percentage of received events that matched at
// least one workflow (0-100).
func (s Snapshot) MatchRate() float64 {
	if s.Received == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Received) * 100
}

// String returns a compact single-line summary for logs.
func (s Snapshot) String() string {
	return fmt.Sprintf("received=%d matched=%d runs=%d handled=%d errors=%d delivered=%d",
		s.Received, s.Matched, s.Runs, s.Handled, s.Errors, s.Delivered)
}
