package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationDispatcher(t *testing.T) {
	t.Run("DeliversQueuedNotifications", func(t *testing.T) {
		notifier := &fakeNotifier{}
		d := NewNotificationDispatcher(notifier, 4, nil)
		stop := d.Start(context.Background())
		defer stop()

		d.Enqueue(555, "first")
		d.Enqueue(556, "second")

		require.Eventually(t, func() bool {
			return len(notifier.sentCopy()) == 2
		}, 2*time.Second, 10*time.Millisecond)
		assert.ElementsMatch(t, []string{"first", "second"}, notifier.sentCopy())
	})

	t.Run("EnqueueNeverBlocksOnFullQueue", func(t *testing.T) {
		notifier := &fakeNotifier{}
		d := NewNotificationDispatcher(notifier, 1, nil)
		// Consumer deliberately not started: the queue fills immediately.

		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				d.Enqueue(555, "overflow")
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Enqueue blocked on full queue")
		}

		// Overflowed notifications are delivered by fallback goroutines.
		require.Eventually(t, func() bool {
			return len(notifier.sentCopy()) >= 9
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("StopDrainsQueuedNotifications", func(t *testing.T) {
		notifier := &fakeNotifier{}
		d := NewNotificationDispatcher(notifier, 8, nil)

		// Queue before the consumer exists, then stop right after starting:
		// everything accepted still gets its delivery attempt.
		d.Enqueue(555, "queued-1")
		d.Enqueue(555, "queued-2")
		d.Enqueue(555, "queued-3")

		stop := d.Start(context.Background())
		stop()

		assert.Len(t, notifier.sentCopy(), 3)
	})

	t.Run("NilNotifierIsNoop", func(t *testing.T) {
		d := NewNotificationDispatcher(nil, 4, nil)
		assert.NotPanics(t, func() { d.Enqueue(555, "ignored") })
	})

	t.Run("DeliveryFailureIsSwallowed", func(t *testing.T) {
		notifier := &fakeNotifier{err: assert.AnError}
		d := NewNotificationDispatcher(notifier, 4, nil)
		stop := d.Start(context.Background())
		defer stop()

		d.Enqueue(555, "doomed")
		require.Eventually(t, func() bool {
			return len(notifier.sentCopy()) == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}
