package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"botweave/internal/domain"
	"botweave/internal/event"
	"botweave/internal/message"
	"botweave/internal/workflow"
	"botweave/internal/workflow/node"
)

// fakeBotRepo serves a fixed bot set.
type fakeBotRepo struct {
	bots map[int64]*domain.Bot
}

func (r *fakeBotRepo) Save(bot *domain.Bot) error { return nil }

func (r *fakeBotRepo) FindByID(id int64) (*domain.Bot, error) {
	if b, ok := r.bots[id]; ok {
		return b, nil
	}
	return nil, &domain.BotNotFoundError{ID: id}
}

func (r *fakeBotRepo) FindByAppID(protocol domain.Protocol, appID string) (*domain.Bot, error) {
	return nil, &domain.BotNotFoundError{AppID: appID}
}

func (r *fakeBotRepo) List(filter domain.BotFilter) ([]*domain.Bot, error) { return nil, nil }

func (r *fakeBotRepo) SetRunning(id int64, running bool) error { return nil }

func (r *fakeBotRepo) Delete(id int64) error { return nil }

// fakeWorkflowRepo serves a fixed workflow list for cache loads.
type fakeWorkflowRepo struct {
	workflows []*domain.Workflow
}

func (r *fakeWorkflowRepo) Save(wf *domain.Workflow) error { return nil }

func (r *fakeWorkflowRepo) FindByID(id int64) (*domain.Workflow, error) {
	for _, wf := range r.workflows {
		if wf.ID == id {
			return wf, nil
		}
	}
	return nil, &domain.WorkflowNotFoundError{ID: id}
}

func (r *fakeWorkflowRepo) List(filter domain.WorkflowFilter) ([]*domain.Workflow, error) {
	var out []*domain.Workflow
	for _, wf := range r.workflows {
		if filter.Enabled != nil && wf.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

func (r *fakeWorkflowRepo) Delete(id int64) error { return nil }

// fakeSubsRepo serves fixed subscriptions in both directions.
type fakeSubsRepo struct {
	byUser     map[int64][]int64
	byWorkflow map[int64][]int64
}

func (r *fakeSubsRepo) Subscribe(userID, workflowID int64) (*domain.Subscription, error) {
	return &domain.Subscription{UserID: userID, WorkflowID: workflowID, Enabled: true}, nil
}

func (r *fakeSubsRepo) Unsubscribe(userID, workflowID int64) error { return nil }

func (r *fakeSubsRepo) IsSubscribed(userID, workflowID int64) (bool, error) {
	for _, id := range r.byUser[userID] {
		if id == workflowID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeSubsRepo) ListByWorkflow(workflowID int64) ([]*domain.Subscription, error) {
	var out []*domain.Subscription
	for _, uid := range r.byWorkflow[workflowID] {
		out = append(out, &domain.Subscription{UserID: uid, WorkflowID: workflowID, Enabled: true})
	}
	return out, nil
}

func (r *fakeSubsRepo) ListByUser(userID int64) ([]*domain.Subscription, error) {
	var out []*domain.Subscription
	for _, id := range r.byUser[userID] {
		out = append(out, &domain.Subscription{UserID: userID, WorkflowID: id, Enabled: true})
	}
	return out, nil
}

// fakeSender records deliveries and can fail selected ones.
type fakeSender struct {
	mu     sync.Mutex
	sent   []message.Message
	failOn int
}

func (s *fakeSender) Deliver(ctx context.Context, ev event.Event, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.failOn > 0 && len(s.sent) == s.failOn {
		return errors.New("send failed")
	}
	return nil
}

func (s *fakeSender) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newTestCache(t *testing.T, workflows []*domain.Workflow, subs *fakeSubsRepo) *workflow.Cache {
	t.Helper()
	if subs == nil {
		subs = &fakeSubsRepo{}
	}
	reg := workflow.NewRegistry()
	node.RegisterBuiltins(reg, node.Deps{})
	cache := workflow.NewCache(workflow.CacheParams{
		Workflows:     &fakeWorkflowRepo{workflows: workflows},
		Subscriptions: subs,
		Registry:      reg,
	})
	_, err := cache.Reload()
	require.NoError(t, err)
	return cache
}

func testMessageEvent(botID int64, text string) event.Event {
	return event.NewMessage(event.MessageParams{
		Protocol:    "onebot",
		BotID:       botID,
		SelfID:      "10001",
		MessageType: event.ContextGroup,
		MessageID:   "m1",
		UserID:      "200",
		GroupID:     "300",
		RawMessage:  text,
	})
}

const replyConfig = `{"workflow": [{"id": "send", "type": "send_message", "config": {"content": "pong"}}]}`

func TestDispatcher_SkipsMetaEvents(t *testing.T) {
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "reply", Enabled: true, Config: replyConfig},
	}, nil)
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), event.NewMeta(event.MetaParams{
		Protocol: "onebot", BotID: 1, MetaType: "heartbeat",
	}))

	require.Zero(t, sender.delivered(), "meta events never reach workflows")
	require.Zero(t, d.Counters().Snapshot().Received, "meta events do not count as received")
}

func TestDispatcher_DeliversHandledResponse(t *testing.T) {
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "reply", Enabled: true, Config: replyConfig},
	}, nil)
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{bots: map[int64]*domain.Bot{1: {ID: 1, OwnerID: 0, Enabled: true}}},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), testMessageEvent(1, "ping"))

	require.Equal(t, 1, sender.delivered(), "the handled run's response is sent")
	s := d.Counters().Snapshot()
	require.Equal(t, int64(1), s.Received)
	require.Equal(t, int64(1), s.Matched)
	require.Equal(t, int64(1), s.Runs)
	require.Equal(t, int64(1), s.Handled)
	require.Equal(t, int64(1), s.Delivered)
}

func TestDispatcher_DrainsAllMatches(t *testing.T) {
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "first", Enabled: true, Priority: 1, Config: replyConfig},
		{ID: 2, Name: "second", Enabled: true, Priority: 2, Config: replyConfig},
	}, nil)
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), testMessageEvent(1, "ping"))

	require.Equal(t, 2, sender.delivered(), "every matching workflow runs and responds")
	require.Equal(t, int64(2), d.Counters().Snapshot().Runs)
}

func TestDispatcher_SendFailureDoesNotStopDrain(t *testing.T) {
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "first", Enabled: true, Priority: 1, Config: replyConfig},
		{ID: 2, Name: "second", Enabled: true, Priority: 2, Config: replyConfig},
	}, nil)
	sender := &fakeSender{failOn: 1}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), testMessageEvent(1, "ping"))

	require.Equal(t, 2, sender.delivered(), "the second send still happens after the first fails")
	s := d.Counters().Snapshot()
	require.Equal(t, int64(1), s.Delivered)
	require.Equal(t, int64(1), s.SendErrors)
}

func TestDispatcher_SubscriptionFiltersResolvedOwner(t *testing.T) {
	subs := &fakeSubsRepo{byUser: map[int64][]int64{7: {1}}}
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "subscribed", Enabled: true, Priority: 1, Config: replyConfig},
		{ID: 2, Name: "unsubscribed", Enabled: true, Priority: 2, Config: replyConfig},
	}, subs)
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{bots: map[int64]*domain.Bot{1: {ID: 1, OwnerID: 7, Enabled: true}}},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), testMessageEvent(1, "ping"))

	require.Equal(t, 1, sender.delivered(), "only the owner's subscribed workflow runs")
}

func TestDispatcher_UnknownBotBypassesSubscriptions(t *testing.T) {
	subs := &fakeSubsRepo{byUser: map[int64][]int64{7: {1}}}
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "reply", Enabled: true, Config: replyConfig},
	}, subs)
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), testMessageEvent(99, "ping"))

	require.Equal(t, 1, sender.delivered(), "an unresolved owner dispatches without subscription filtering")
}

func TestDispatcher_NoMatchCounts(t *testing.T) {
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "notices-only", Enabled: true, Config: `{"trigger_type": "notice", "workflow": []}`},
	}, nil)
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), testMessageEvent(1, "ping"))

	require.Zero(t, sender.delivered())
	s := d.Counters().Snapshot()
	require.Equal(t, int64(1), s.Received)
	require.Zero(t, s.Matched)
}

func TestDispatcher_EventNameFiltersNotices(t *testing.T) {
	cache := newTestCache(t, []*domain.Workflow{
		{ID: 1, Name: "joins", Enabled: true, Config: `{"trigger_type": "notice", "event_filter": ["group_increase"], "workflow": [{"id": "send", "type": "send_message", "config": {"content": "welcome"}}]}`},
	}, nil)
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherParams{
		Bots:   &fakeBotRepo{},
		Cache:  cache,
		Sender: sender,
	})

	d.Dispatch(context.Background(), event.NewNotice(event.NoticeParams{
		Protocol: "onebot", BotID: 1, NoticeType: "group_increase", GroupID: "300", UserID: "200",
	}))
	require.Equal(t, 1, sender.delivered(), "a notice inside the event filter dispatches")

	d.Dispatch(context.Background(), event.NewNotice(event.NoticeParams{
		Protocol: "onebot", BotID: 1, NoticeType: "group_decrease", GroupID: "300", UserID: "200",
	}))
	require.Equal(t, 1, sender.delivered(), "a notice outside the event filter does not")
}

func TestTriggerFor(t *testing.T) {
	tests := []struct {
		kind    event.Kind
		trigger string
		ok      bool
	}{
		{event.KindMessage, workflow.TriggerMessage, true},
		{event.KindNotice, workflow.TriggerNotice, true},
		{event.KindRequest, workflow.TriggerRequest, true},
		{event.KindScheduled, workflow.TriggerSchedule, true},
		{event.KindMeta, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			trigger, ok := triggerFor(tt.kind)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.trigger, trigger)
		})
	}
}
