package engine

import (
	"context"
	"log"
	"time"
)

// notification is one queued delivery
type notification struct {
	chatID int64
	text   string
}

// NotificationDispatcher decouples Telegram delivery from the orchestrator's
// return path: enqueueing never blocks, a dedicated consumer drains the
// bounded queue, and a full queue falls back to a one-off goroutine so every
// notification still gets at least one delivery attempt.
type NotificationDispatcher struct {
	notifier Notifier
	queue    chan notification
	logger   *log.Logger
	timeout  time.Duration
}

// NewNotificationDispatcher creates a dispatcher with a bounded queue
func NewNotificationDispatcher(notifier Notifier, queueSize int, logger *log.Logger) *NotificationDispatcher {
	if queueSize < 1 {
		queueSize = 16
	}
	if logger == nil {
		logger = log.Default()
	}
	return &NotificationDispatcher{
		notifier: notifier,
		queue:    make(chan notification, queueSize),
		logger:   logger,
		timeout:  30 * time.Second,
	}
}

// Start launches the consumer goroutine and returns a stop function. Stop
// waits for the consumer to drain whatever is still queued, so an accepted
// notification always gets its delivery attempt even across shutdown.
func (d *NotificationDispatcher) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				d.drain()
				return
			case n := <-d.queue:
				d.deliver(ctx, n)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// drain attempts delivery for everything queued at shutdown, bounded by one
// delivery timeout overall so stop cannot hang on a dead notifier.
func (d *NotificationDispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
			if ctx.Err() != nil {
				return
			}
		default:
			return
		}
	}
}

// Enqueue hands off one notification without ever blocking the caller
func (d *NotificationDispatcher) Enqueue(chatID int64, text string) {
	if d.notifier == nil {
		return
	}

	n := notification{chatID: chatID, text: text}
	select {
	case d.queue <- n:
	default:
		// Queue full: still attempt delivery, just not on the caller's time.
		go d.deliver(context.Background(), n)
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n notification) {
	deliverCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.notifier.Notify(deliverCtx, n.chatID, n.text); err != nil {
		notificationFailuresTotal.Inc()
		d.logger.Printf("engine: telegram notification to chat=%d failed: %v", n.chatID, err)
	}
}
