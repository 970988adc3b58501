package domain

// BotFilter provides filtering options for listing bots.
type BotFilter struct {
	// Protocol filters bots by platform.
	// If empty, all protocols are included.
	Protocol Protocol

	// Enabled filters bots by their enabled flag.
	// If nil, both enabled and disabled bots are included.
	Enabled *bool

	// Running filters bots by their running flag.
	// If nil, no running filtering is applied.
	Running *bool

	// OwnerID filters to bots owned by a specific user.
	// If nil, no owner filtering is applied.
	OwnerID *int64
}

// BotRepository defines the persistence interface for Bot records.
type BotRepository interface {
	// Save persists a bot to the repository.
	// For new bots (ID == 0), this creates a new record and sets the ID.
	// For existing bots (ID > 0), this updates the existing record and
	// returns BotNotFoundError if no such record exists.
	Save(bot *Bot) error

	// FindByID retrieves a bot by its database ID.
	// Returns BotNotFoundError if no matching bot exists.
	FindByID(id int64) (*Bot, error)

	// FindByAppID retrieves the enabled bot of the given protocol whose
	// config app_id matches. Disabled bots are never returned.
	// Returns BotNotFoundError if no matching bot exists.
	FindByAppID(protocol Protocol, appID string) (*Bot, error)

	// List retrieves bots matching the given filter criteria.
	// Results are ordered by ID ascending.
	List(filter BotFilter) ([]*Bot, error)

	// SetRunning updates only the running flag of a bot. The flag survives
	// restarts so previously running bots can be started again on boot.
	// Returns BotNotFoundError if no matching bot exists.
	SetRunning(id int64, running bool) error

	// Delete permanently removes a bot.
	// Returns BotNotFoundError if no matching bot exists.
	Delete(id int64) error
}

// WorkflowFilter provides filtering options for listing workflows.
type WorkflowFilter struct {
	// Enabled filters workflows by their enabled flag.
	// If nil, both enabled and disabled workflows are included.
	Enabled *bool

	// Limit restricts the number of workflows returned.
	// If 0, no limit is applied.
	Limit int
}

// WorkflowRepository defines the persistence interface for Workflow records.
type WorkflowRepository interface {
	// Save persists a workflow to the repository.
	// For new workflows (ID == 0), this creates a new record and sets the
	// ID. For existing workflows (ID > 0), this updates the existing
	// record and returns WorkflowNotFoundError if no such record exists.
	Save(workflow *Workflow) error

	// FindByID retrieves a workflow by its database ID.
	// Returns WorkflowNotFoundError if no matching workflow exists.
	FindByID(id int64) (*Workflow, error)

	// List retrieves workflows matching the given filter criteria.
	// Results are ordered by priority ascending, then ID ascending, so
	// dispatch evaluates workflows in a stable order.
	List(filter WorkflowFilter) ([]*Workflow, error)

	// Delete permanently removes a workflow along with its subscriptions.
	// Returns WorkflowNotFoundError if no matching workflow exists.
	Delete(id int64) error
}

// SubscriptionRepository defines the persistence interface for the links
// between users and workflows.
type SubscriptionRepository interface {
	// Subscribe creates (or re-enables) the subscription of user to
	// workflow and returns the stored record. Subscribing twice is not an
	// error.
	Subscribe(userID, workflowID int64) (*Subscription, error)

	// Unsubscribe removes the subscription of user to workflow.
	// Returns SubscriptionNotFoundError if no such subscription exists.
	Unsubscribe(userID, workflowID int64) error

	// IsSubscribed reports whether an enabled subscription links the user
	// to the workflow.
	IsSubscribed(userID, workflowID int64) (bool, error)

	// ListByWorkflow retrieves the enabled subscriptions of a workflow,
	// ordered by user ID ascending.
	ListByWorkflow(workflowID int64) ([]*Subscription, error)

	// ListByUser retrieves the enabled subscriptions of a user, ordered by
	// workflow ID ascending.
	ListByUser(userID int64) ([]*Subscription, error)
}

// GlobalVariableRepository defines the persistence interface for global
// template variables.
type GlobalVariableRepository interface {
	// Upsert inserts or replaces the variable stored under v.Key and sets
	// v.ID to the stored record's ID.
	Upsert(v *GlobalVariable) error

	// FindByKey retrieves a variable by its key.
	// Returns GlobalVariableNotFoundError if no matching variable exists.
	FindByKey(key string) (*GlobalVariable, error)

	// List retrieves all variables ordered by key ascending.
	List() ([]*GlobalVariable, error)

	// Delete permanently removes the variable stored under key.
	// Returns GlobalVariableNotFoundError if no matching variable exists.
	Delete(key string) error
}

// UserRepository defines the persistence interface for User records.
type UserRepository interface {
	// Save persists a user to the repository.
	// For new users (ID == 0), this creates a new record and sets the ID.
	// For existing users (ID > 0), this updates the existing record and
	// returns UserNotFoundError if no such record exists.
	Save(user *User) error

	// FindByID retrieves a user by its database ID.
	// Returns UserNotFoundError if no matching user exists.
	FindByID(id int64) (*User, error)

	// FindByUsername retrieves a user by username.
	// Returns UserNotFoundError if no matching user exists.
	FindByUsername(username string) (*User, error)

	// List retrieves all users ordered by ID ascending.
	List() ([]*User, error)

	// Delete permanently removes a user.
	// Returns UserNotFoundError if no matching user exists.
	Delete(id int64) error
}
