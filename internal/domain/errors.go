package domain

import "fmt"

// BotNotFoundError indicates that a bot lookup found no match. Exactly one
// of ID or AppID describes the lookup key that missed.
type BotNotFoundError struct {
	ID    int64
	AppID string
}

func (e *BotNotFoundError) Error() string {
	if e.AppID != "" {
		return fmt.Sprintf("bot not found for app id %q", e.AppID)
	}
	return fmt.Sprintf("bot not found: id %d", e.ID)
}

// WorkflowNotFoundError indicates that a workflow lookup found no match.
type WorkflowNotFoundError struct {
	ID int64
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow not found: id %d", e.ID)
}

// UserNotFoundError indicates that a user lookup found no match. Exactly
// one of ID or Username describes the lookup key that missed.
type UserNotFoundError struct {
	ID       int64
	Username string
}

func (e *UserNotFoundError) Error() string {
	if e.Username != "" {
		return fmt.Sprintf("user not found: username %q", e.Username)
	}
	return fmt.Sprintf("user not found: id %d", e.ID)
}

// SubscriptionNotFoundError indicates that no subscription links the user
// to the workflow.
type SubscriptionNotFoundError struct {
	UserID     int64
	WorkflowID int64
}

func (e *SubscriptionNotFoundError) Error() string {
	return fmt.Sprintf("subscription not found: user %d workflow %d", e.UserID, e.WorkflowID)
}

// GlobalVariableNotFoundError indicates that no variable is stored under
// the key.
type GlobalVariableNotFoundError struct {
	Key string
}

func (e *GlobalVariableNotFoundError) Error() string {
	return fmt.Sprintf("global variable not found: %q", e.Key)
}
