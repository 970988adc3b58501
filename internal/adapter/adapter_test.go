package adapter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/adapter"
	"botweave/internal/event"
	"botweave/internal/message"
)

type fakeAdapter struct {
	mu       sync.Mutex
	botID    int64
	startErr error
	stopErr  error
	slow     time.Duration

	started int
	stopped int
	handler adapter.Handler
	sent    []message.Message
	actions []string
}

func (f *fakeAdapter) Start(ctx context.Context) error {
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeAdapter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped++
	return nil
}

func (f *fakeAdapter) Protocol() string      { return "fake" }
func (f *fakeAdapter) CacheKeyField() string { return "" }

func (f *fakeAdapter) SetHandler(h adapter.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeAdapter) Send(ctx context.Context, ev event.Event, msg message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeAdapter) CallAPI(ctx context.Context, action string, params map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return map[string]any{"action": action}, nil
}

func (f *fakeAdapter) Status() adapter.Status {
	return adapter.Status{Protocol: "fake", Running: true, Connected: true}
}

func (f *fakeAdapter) handlerSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

func registerFake(m *adapter.Manager, fake *fakeAdapter) {
	m.Register("fake", func(botID int64, config map[string]any) (adapter.Adapter, error) {
		fake.botID = botID
		return fake, nil
	})
}

func groupEvent(botID int64) event.Event {
	return event.NewMessage(event.MessageParams{
		Protocol:    "fake",
		BotID:       botID,
		MessageType: "group",
		GroupID:     "g1",
		UserID:      "u1",
	})
}

func TestManagerStartAndStop(t *testing.T) {
	m := adapter.NewManager()
	fake := &fakeAdapter{}
	registerFake(m, fake)

	err := m.Start(context.Background(), 1, "fake", nil, nil)
	require.NoError(t, err, "start should succeed")
	require.True(t, m.IsRunning(1), "bot 1 should be running")
	require.Equal(t, int64(1), fake.botID, "constructor should receive the bot id")

	err = m.Stop(1)
	require.NoError(t, err, "stop should succeed")
	require.False(t, m.IsRunning(1), "bot 1 should no longer be running")
	require.Equal(t, 1, fake.started, "adapter should start once")
	require.Equal(t, 1, fake.stopped, "adapter should stop once")
}

func TestManagerUnknownProtocol(t *testing.T) {
	m := adapter.NewManager()

	err := m.Start(context.Background(), 1, "telegraph", nil, nil)
	require.ErrorIs(t, err, adapter.ErrUnknownProtocol, "unregistered protocol should be rejected")
	require.False(t, m.IsRunning(1), "failed start should leave nothing running")
}

func TestManagerStartIdempotent(t *testing.T) {
	m := adapter.NewManager()
	fake := &fakeAdapter{}
	registerFake(m, fake)

	require.NoError(t, m.Start(context.Background(), 1, "fake", nil, nil), "first start")
	require.NoError(t, m.Start(context.Background(), 1, "fake", nil, nil), "second start should be a no-op success")
	require.Equal(t, 1, fake.started, "adapter should only start once")
}

func TestManagerAttachesHandlerOnReentry(t *testing.T) {
	m := adapter.NewManager()
	fake := &fakeAdapter{}
	registerFake(m, fake)

	require.NoError(t, m.Start(context.Background(), 1, "fake", nil, nil), "start without handler")
	require.False(t, fake.handlerSet(), "no handler should be set yet")

	calls := 0
	require.NoError(t, m.Start(context.Background(), 1, "fake", nil, func(ev event.Event) { calls++ }), "re-entry with handler")
	require.True(t, fake.handlerSet(), "handler should be attached to the running adapter")

	fake.mu.Lock()
	attached := fake.handler
	fake.mu.Unlock()
	attached(groupEvent(1))
	require.Equal(t, 1, calls, "attached handler should be the one supplied")

	require.NoError(t, m.Start(context.Background(), 1, "fake", nil, func(ev event.Event) {}), "third start with another handler")
	fake.mu.Lock()
	attached = fake.handler
	fake.mu.Unlock()
	attached(groupEvent(1))
	require.Equal(t, 2, calls, "existing handler should not be replaced")
}

func TestManagerStartFailure(t *testing.T) {
	m := adapter.NewManager()
	fake := &fakeAdapter{startErr: errors.New("dial refused")}
	registerFake(m, fake)

	err := m.Start(context.Background(), 1, "fake", nil, nil)
	require.Error(t, err, "start failure should surface")
	require.Contains(t, err.Error(), "dial refused", "cause should be preserved")
	require.False(t, m.IsRunning(1), "failed start should leave the bot stopped")

	fake.mu.Lock()
	fake.startErr = nil
	fake.mu.Unlock()
	require.NoError(t, m.Start(context.Background(), 1, "fake", nil, nil), "retry after failure should work")
	require.True(t, m.IsRunning(1), "bot should be running after retry")
}

func TestManagerConstructorError(t *testing.T) {
	m := adapter.NewManager()
	m.Register("fake", func(botID int64, config map[string]any) (adapter.Adapter, error) {
		return nil, errors.New("missing app_id")
	})

	err := m.Start(context.Background(), 1, "fake", nil, nil)
	require.Error(t, err, "constructor error should surface")
	require.Contains(t, err.Error(), "missing app_id", "cause should be preserved")
}

func TestManagerStopNotRunning(t *testing.T) {
	m := adapter.NewManager()
	require.NoError(t, m.Stop(42), "stopping an idle bot should be a no-op success")
}

func TestManagerStopAll(t *testing.T) {
	m := adapter.NewManager()
	first := &fakeAdapter{}
	second := &fakeAdapter{}
	adapters := map[int64]*fakeAdapter{1: first, 2: second}
	m.Register("fake", func(botID int64, config map[string]any) (adapter.Adapter, error) {
		return adapters[botID], nil
	})

	require.NoError(t, m.Start(context.Background(), 1, "fake", nil, nil), "start bot 1")
	require.NoError(t, m.Start(context.Background(), 2, "fake", nil, nil), "start bot 2")

	m.StopAll()
	require.False(t, m.IsRunning(1), "bot 1 should be stopped")
	require.False(t, m.IsRunning(2), "bot 2 should be stopped")
	require.Equal(t, 1, first.stopped, "bot 1 adapter should stop")
	require.Equal(t, 1, second.stopped, "bot 2 adapter should stop")
}

func TestManagerConcurrentStartsSerialize(t *testing.T) {
	m := adapter.NewManager()
	fake := &fakeAdapter{slow: 20 * time.Millisecond}
	registerFake(m, fake)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Start(context.Background(), 1, "fake", nil, nil)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, fake.started, "concurrent starts should collapse to one")
	require.True(t, m.IsRunning(1), "bot should be running")
}

func TestManagerCallAPIAndDeliver(t *testing.T) {
	m := adapter.NewManager()
	fake := &fakeAdapter{}
	registerFake(m, fake)
	require.NoError(t, m.Start(context.Background(), 7, "fake", nil, nil), "start bot 7")

	ev := groupEvent(7)
	result, err := m.CallAPI(context.Background(), ev, "get_status", nil)
	require.NoError(t, err, "call should route to the running adapter")
	require.Equal(t, map[string]any{"action": "get_status"}, result, "adapter result should pass through")

	err = m.Deliver(context.Background(), ev, message.Message{message.Text("hi")})
	require.NoError(t, err, "deliver should route to the running adapter")
	require.Len(t, fake.sent, 1, "message should reach the adapter")

	_, err = m.CallAPI(context.Background(), groupEvent(99), "get_status", nil)
	require.Error(t, err, "call for an idle bot should fail")
	err = m.Deliver(context.Background(), groupEvent(99), message.Message{message.Text("hi")})
	require.Error(t, err, "deliver for an idle bot should fail")
}

func TestManagerProtocolsSorted(t *testing.T) {
	m := adapter.NewManager()
	m.Register("qq", func(int64, map[string]any) (adapter.Adapter, error) { return nil, nil })
	m.Register("onebot", func(int64, map[string]any) (adapter.Adapter, error) { return nil, nil })

	require.Equal(t, []string{"onebot", "qq"}, m.Protocols(), "protocols should list sorted")
}
