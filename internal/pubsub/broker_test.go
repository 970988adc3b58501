package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recvOne[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a published value")
		panic("unreachable")
	}
}

func TestSubscribeReceivesPublished(t *testing.T) {
	b := New[string](0)
	defer b.Close()

	ch := b.Subscribe(context.Background())
	b.Publish("bot started")

	require.Equal(t, "bot started", recvOne(t, ch), "subscriber should see the published value")
}

func TestEverySubscriberGetsEachValue(t *testing.T) {
	b := New[int](0)
	defer b.Close()

	chans := []<-chan int{
		b.Subscribe(context.Background()),
		b.Subscribe(context.Background()),
		b.Subscribe(context.Background()),
	}
	require.Equal(t, 3, b.Subscribers(), "three subscribers registered")

	b.Publish(42)
	for i, ch := range chans {
		require.Equal(t, 42, recvOne(t, ch), "subscriber %d should receive the value", i)
	}
}

func TestContextEndDetaches(t *testing.T) {
	b := New[string](0)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	require.Equal(t, 1, b.Subscribers(), "one subscriber registered")

	cancel()
	require.Eventually(t, func() bool { return b.Subscribers() == 0 },
		time.Second, 5*time.Millisecond, "cancellation should detach the subscriber")

	// A publish after detach must neither panic nor reach the channel.
	b.Publish("late")
	_, open := <-ch
	require.False(t, open, "detached channels are closed")
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New[int](1)
	defer b.Close()

	ch := b.Subscribe(context.Background())
	b.Publish(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(2)
		b.Publish(3)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	require.Equal(t, 1, recvOne(t, ch), "the buffered value survives, overflow drops")
}

func TestCloseShutsSubscribersDown(t *testing.T) {
	b := New[string](0)

	ch1 := b.Subscribe(context.Background())
	ch2 := b.Subscribe(context.Background())

	b.Close()
	b.Close() // idempotent

	_, open1 := <-ch1
	_, open2 := <-ch2
	require.False(t, open1, "subscriber channels close with the broker")
	require.False(t, open2, "subscriber channels close with the broker")
	require.Zero(t, b.Subscribers(), "no subscribers remain")

	b.Publish("after close")

	late := b.Subscribe(context.Background())
	_, open := <-late
	require.False(t, open, "subscribing to a closed broker yields a closed channel")
}

func TestCancelAfterCloseIsSafe(t *testing.T) {
	b := New[string](0)
	ctx, cancel := context.WithCancel(context.Background())
	_ = b.Subscribe(ctx)

	b.Close()
	cancel()

	// The detach goroutine must notice the broker already closed the
	// channel and not close it twice.
	time.Sleep(10 * time.Millisecond)
	require.Zero(t, b.Subscribers(), "closed broker holds no subscribers")
}
