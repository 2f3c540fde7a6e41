// ABOUTME: Tests for the router's registry, tracking graph, and dispatch ordering.
// ABOUTME: Covers duplicate registration, removal notifications, and fire-and-forget drops.

package route

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter starts a router whose dispatch loop stops with the test.
func newTestRouter(t *testing.T) *Router {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	router := NewRouter(64, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return router
}

// receiveOne fetches the next message or fails the test after a timeout.
func receiveOne[T any](t *testing.T, a *Agent[T]) Message[T] {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := a.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestRouter_Register_DuplicateAddress(t *testing.T) {
	router := newTestRouter(t)

	first, err := NewAgent[string](router, Key("worker"), 4)
	require.NoError(t, err)
	defer first.Close()

	_, err = NewAgent[string](router, Key("worker"), 4)
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestRouter_Register_AfterClose(t *testing.T) {
	router := newTestRouter(t)

	a, err := NewAgent[string](router, Key("worker"), 4)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// Close submits the unregister asynchronously; the address must become
	// registrable again once the router has processed it.
	require.Eventually(t, func() bool {
		b, err := NewAgent[string](router, Key("worker"), 4)
		if err != nil {
			return false
		}
		b.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_Deliver_UnknownAddressIsSilentDrop(t *testing.T) {
	router := newTestRouter(t)

	sender, err := NewAgent[string](router, Key("sender"), 4)
	require.NoError(t, err)
	defer sender.Close()

	// Never-registered recipient: must neither error nor block.
	done := make(chan error, 1)
	go func() {
		done <- sender.Send(Key("nobody"), "hello")
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send to unknown address blocked")
	}
}

func TestRouter_Deliver_AfterUnregisterIsSilentDrop(t *testing.T) {
	router := newTestRouter(t)

	sender, err := NewAgent[string](router, Key("sender"), 4)
	require.NoError(t, err)
	defer sender.Close()

	target, err := NewAgent[string](router, Key("target"), 4)
	require.NoError(t, err)
	require.NoError(t, target.Close())

	require.Eventually(t, func() bool {
		b, err := NewAgent[string](router, Key("target"), 4)
		if err != nil {
			return false
		}
		b.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, sender.Send(Key("target"), "late"))
}

func TestRouter_Track_NotifiesWatcherOnRemoval(t *testing.T) {
	router := newTestRouter(t)

	watcher, err := NewAgent[string](router, Key("watcher"), 4)
	require.NoError(t, err)
	defer watcher.Close()

	watched, err := NewAgent[string](router, Key("watched"), 4)
	require.NoError(t, err)

	require.NoError(t, watcher.Track(watched.Address()))
	require.NoError(t, watched.Close())

	msg := receiveOne(t, watcher)
	assert.Equal(t, KindAgentRemoved, msg.Kind)
	assert.Equal(t, Key("watched"), msg.Sender)
}

func TestRouter_Track_NoNotificationWithoutEdge(t *testing.T) {
	router := newTestRouter(t)

	bystander, err := NewAgent[string](router, Key("bystander"), 4)
	require.NoError(t, err)
	defer bystander.Close()

	watched, err := NewAgent[string](router, Key("watched"), 4)
	require.NoError(t, err)
	require.NoError(t, watched.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = bystander.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouter_Track_LatentEdgeFiresAfterLaterRegistration(t *testing.T) {
	router := newTestRouter(t)

	watcher, err := NewAgent[string](router, Key("watcher"), 4)
	require.NoError(t, err)
	defer watcher.Close()

	// Edge installed before the watched address exists.
	require.NoError(t, watcher.Track(Key("future")))

	future, err := NewAgent[string](router, Key("future"), 4)
	require.NoError(t, err)
	require.NoError(t, future.Close())

	msg := receiveOne(t, watcher)
	assert.Equal(t, KindAgentRemoved, msg.Kind)
	assert.Equal(t, Key("future"), msg.Sender)
}

func TestRouter_Track_EdgeFiresOnlyOnce(t *testing.T) {
	router := newTestRouter(t)

	watcher, err := NewAgent[string](router, Key("watcher"), 4)
	require.NoError(t, err)
	defer watcher.Close()

	watched, err := NewAgent[string](router, Key("watched"), 4)
	require.NoError(t, err)
	require.NoError(t, watcher.Track(watched.Address()))
	require.NoError(t, watched.Close())

	msg := receiveOne(t, watcher)
	require.Equal(t, KindAgentRemoved, msg.Kind)

	// A second registration-then-removal cycle without a fresh Track call
	// must not notify: unregister cleared the edge.
	again, err := NewAgent[string](router, Key("watched"), 4)
	require.NoError(t, err)
	require.NoError(t, again.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = watcher.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouter_ReverseTrack_NotifiesOtherSide(t *testing.T) {
	router := newTestRouter(t)

	observer, err := NewAgent[string](router, Key("observer"), 4)
	require.NoError(t, err)
	defer observer.Close()

	subject, err := NewAgent[string](router, Key("subject"), 4)
	require.NoError(t, err)

	// subject asks that observer be told about subject's removal.
	require.NoError(t, subject.ReverseTrack(observer.Address()))
	require.NoError(t, subject.Close())

	msg := receiveOne(t, observer)
	assert.Equal(t, KindAgentRemoved, msg.Kind)
	assert.Equal(t, Key("subject"), msg.Sender)
}

func TestRouter_Shutdown_DeliversWithoutUnregistering(t *testing.T) {
	router := newTestRouter(t)

	a, err := NewAgent[string](router, Key("worker"), 4)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, router.Shutdown(a.Address()))

	msg := receiveOne(t, a)
	assert.Equal(t, KindShutdown, msg.Kind)

	// Still registered: a second registration must fail.
	_, err = NewAgent[string](router, Key("worker"), 4)
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestRouter_Shutdown_UnknownAddressIsNoop(t *testing.T) {
	router := newTestRouter(t)
	assert.NoError(t, router.Shutdown(Key("nobody")))
}

func TestRouter_Run_ExitClosesMailboxes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	router := NewRouter(16, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(ctx)
	}()

	a, err := NewAgent[string](router, Key("worker"), 4)
	require.NoError(t, err)

	cancel()
	<-done

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	_, err = a.Receive(recvCtx)
	assert.ErrorIs(t, err, ErrChannelClosed)

	assert.ErrorIs(t, a.Send(Key("anyone"), "x"), ErrRouterClosed)
	_, err = NewAgent[string](router, Key("late"), 4)
	assert.ErrorIs(t, err, ErrRouterClosed)
}

func TestRouter_Deliver_FullMailboxBlocksDispatchLoop(t *testing.T) {
	router := newTestRouter(t)

	sender, err := NewAgent[string](router, Key("sender"), 4)
	require.NoError(t, err)
	defer sender.Close()

	slow, err := NewAgent[string](router, Key("slow"), 1)
	require.NoError(t, err)
	defer slow.Close()

	other, err := NewAgent[string](router, Key("other"), 4)
	require.NoError(t, err)
	defer other.Close()

	// The first message fills slow's capacity-1 mailbox; the second parks
	// the dispatch loop on the full channel, so the third must not reach
	// other until slow drains.
	require.NoError(t, sender.Send(slow.Address(), "first"))
	require.NoError(t, sender.Send(slow.Address(), "second"))
	require.NoError(t, sender.Send(other.Address(), "held up"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = other.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Draining slow frees the loop; everything then arrives in submission
	// order.
	msg := receiveOne(t, slow)
	assert.Equal(t, "first", msg.Value)
	msg = receiveOne(t, slow)
	assert.Equal(t, "second", msg.Value)

	msg = receiveOne(t, other)
	assert.Equal(t, "held up", msg.Value)
}

func TestRouter_Deliver_OrderPreservedPerSender(t *testing.T) {
	router := newTestRouter(t)

	sender, err := NewAgent[string](router, Key("a"), 4)
	require.NoError(t, err)
	defer sender.Close()

	receiver, err := NewAgent[string](router, Key("b"), 10)
	require.NoError(t, err)
	defer receiver.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, sender.Send(receiver.Address(), fmt.Sprintf("msg-%d", i)))
	}
	for i := 0; i < 10; i++ {
		msg := receiveOne(t, receiver)
		require.Equal(t, KindValue, msg.Kind)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Value)
		assert.Equal(t, Key("a"), msg.Sender)
	}
}
