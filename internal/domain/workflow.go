package domain

import "time"

// Workflow is a stored workflow definition together with its dispatch
// metadata. Config holds the definition document (nodes, edges, trigger
// settings) as JSON; the engine parses it at dispatch time so that saving
// a draft with unknown node kinds never fails at the persistence layer.
type Workflow struct {
	ID        int64
	Name      string
	Enabled   bool
	Priority  int
	Config    string
	CreatorID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription links a user to a workflow. Only subscribed users have the
// workflow considered for their inbound events and schedule ticks.
type Subscription struct {
	ID         int64
	UserID     int64
	WorkflowID int64
	Enabled    bool
	CreatedAt  time.Time
}
