package tracing

// Span attribute keys for the event pipeline.
// These constants define the semantic conventions for span attributes
// across webhook receipt, dispatch, engine execution, and scheduling.
const (
	// Event attributes
	AttrEventKind     = "event.kind"
	AttrEventProtocol = "event.protocol"
	AttrEventSession  = "event.session"
	AttrEventName     = "event.name"

	// Bot attributes
	AttrBotID = "bot.id"

	// Workflow attributes
	AttrWorkflowID      = "workflow.id"
	AttrWorkflowName    = "workflow.name"
	AttrWorkflowTrigger = "workflow.trigger"

	// Node attributes
	AttrNodeID = "node.id"

	// Dispatch attributes
	AttrDispatchMatched = "dispatch.matched"
	AttrDispatchHandled = "dispatch.handled"

	// Scheduler attributes
	AttrScheduleBots = "schedule.bots"

	// Webhook attributes
	AttrWebhookAppID  = "webhook.app_id"
	AttrWebhookOp     = "webhook.op"
	AttrWebhookStatus = "webhook.status"

	// Error attributes
	AttrErrorMessage = "error.message"
)

// Span names for the pipeline stages. Node spans append the node type
// to SpanNodePrefix, e.g. "node.send_message".
const (
	SpanWebhookReceive = "webhook.receive"
	SpanDispatchEvent  = "dispatch.event"
	SpanEngineExecute  = "engine.execute"
	SpanNodePrefix     = "node."
	SpanAdapterSend    = "adapter.send"
	SpanSchedulerTick  = "scheduler.tick"
)

// Event names for span events.
const (
	EventResponseDelivered = "response.delivered"
	EventDuplicateDropped  = "duplicate.dropped"
	EventErrorOccurred     = "error.occurred"
)
