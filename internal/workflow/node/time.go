package node

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"botweave/internal/workflow"
)

// DelayNode pauses the run for a configurable number of seconds.
type DelayNode struct{}

func (n *DelayNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "delay",
		Name:        "Delay",
		Description: "Pauses execution for a number of seconds",
		Category:    "time",
	}
}

func (n *DelayNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	raw := cfg.Str("delay_seconds")
	if raw == "" {
		raw = "1"
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errResult("invalid delay value"), nil
	}
	if seconds > 0 {
		timer := time.NewTimer(secondsDuration(seconds))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return workflow.Result{"success": true, "delayed": seconds}, nil
}

// ScheduleCheckNode reports whether the current wall clock falls inside
// a configured daily window.
type ScheduleCheckNode struct {
	// now overrides the clock in tests.
	now func() time.Time
}

func (n *ScheduleCheckNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "schedule_check",
		Name:        "Schedule Check",
		Description: "Checks whether the current time is inside a daily window",
		Category:    "time",
		Outputs: []workflow.Port{
			{Name: "in_schedule", Label: "in_schedule - inside the window", Type: "boolean"},
			{Name: "current_time", Label: "current_time - clock at evaluation", Type: "string"},
		},
	}
}

func (n *ScheduleCheckNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	clock := time.Now
	if n.now != nil {
		clock = n.now
	}
	now := clock()
	currentTime := now.Format("15:04:05")

	if cfg.Bool("weekdays_only") {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			flow.SetVariable("in_schedule", false)
			flow.SetVariable("current_time", currentTime)
			return workflow.Result{"success": true, "in_schedule": false, "reason": "weekend"}, nil
		}
	}

	start := cfg.Str("start_time")
	if start == "" {
		start = "00:00"
	}
	end := cfg.Str("end_time")
	if end == "" {
		end = "23:59"
	}

	startMinutes, err := parseClock(start)
	if err != nil {
		return n.failure(flow, currentTime, err), nil
	}
	endMinutes, err := parseClock(end)
	if err != nil {
		return n.failure(flow, currentTime, err), nil
	}

	currentMinutes := now.Hour()*60 + now.Minute()
	inSchedule := startMinutes <= currentMinutes && currentMinutes <= endMinutes
	flow.SetVariable("in_schedule", inSchedule)
	flow.SetVariable("current_time", currentTime)
	return workflow.Result{"success": true, "in_schedule": inSchedule}, nil
}

func (n *ScheduleCheckNode) failure(flow *workflow.Context, currentTime string, err error) workflow.Result {
	flow.SetVariable("in_schedule", false)
	flow.SetVariable("current_time", currentTime)
	return errResult(err.Error())
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return hour*60 + minute, nil
}

// TimestampNode publishes the current time in several shapes for later
// steps to template and compare.
type TimestampNode struct {
	now func() time.Time
}

func (n *TimestampNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "timestamp",
		Name:        "Timestamp",
		Description: "Stores the current time in multiple formats",
		Category:    "time",
		Outputs: []workflow.Port{
			{Name: "timestamp", Label: "timestamp - Unix seconds", Type: "integer"},
			{Name: "datetime", Label: "datetime - formatted date and time", Type: "string"},
			{Name: "date", Label: "date - calendar date", Type: "string"},
			{Name: "time", Label: "time - wall clock", Type: "string"},
			{Name: "year", Label: "year", Type: "integer"},
			{Name: "month", Label: "month", Type: "integer"},
			{Name: "day", Label: "day", Type: "integer"},
			{Name: "hour", Label: "hour", Type: "integer"},
			{Name: "minute", Label: "minute", Type: "integer"},
			{Name: "weekday", Label: "weekday - English day name", Type: "string"},
		},
	}
}

func (n *TimestampNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	clock := time.Now
	if n.now != nil {
		clock = n.now
	}
	now := clock()

	layout := cfg.Str("format")
	if layout == "" {
		layout = "2006-01-02 15:04:05"
	}

	flow.SetVariable("timestamp", now.Unix())
	flow.SetVariable("datetime", now.Format(layout))
	flow.SetVariable("date", now.Format("2006-01-02"))
	flow.SetVariable("time", now.Format("15:04:05"))
	flow.SetVariable("year", now.Year())
	flow.SetVariable("month", int(now.Month()))
	flow.SetVariable("day", now.Day())
	flow.SetVariable("hour", now.Hour())
	flow.SetVariable("minute", now.Minute())
	flow.SetVariable("weekday", now.Weekday().String())

	return workflow.Result{"success": true}, nil
}

// secondsDuration converts fractional seconds to a Duration.
func secondsDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
